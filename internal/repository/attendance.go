package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// AttendanceRepository keeps the append-only event log in postgres.
// The day column is computed by the caller in the configured zone.
type AttendanceRepository struct {
	pool PgxPool
	loc  *time.Location
}

func NewAttendanceRepository(pool PgxPool, loc *time.Location) *AttendanceRepository {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceRepository{pool: pool, loc: loc}
}

func (r *AttendanceRepository) Append(ctx context.Context, event domain.AttendanceEvent) error {
	query := `
		INSERT INTO attendance_events (identity_key, day, occurred_at, direction)
		VALUES ($1, $2, $3, $4)
	`

	local := event.Time.In(r.loc)
	if _, err := r.pool.Exec(ctx, query, event.Key, local.Format(domain.DayLayout), local, string(event.Direction)); err != nil {
		return fmt.Errorf("append attendance event: %w", err)
	}

	return nil
}

func (r *AttendanceRepository) ListDay(ctx context.Context, day string) ([]domain.AttendanceEvent, error) {
	query := `
		SELECT identity_key, occurred_at, direction
		FROM attendance_events
		WHERE day = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var events []domain.AttendanceEvent
	for rows.Next() {
		var ev domain.AttendanceEvent
		var direction string
		if err := rows.Scan(&ev.Key, &ev.Time, &direction); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		dir, err := domain.ParseDirection(direction)
		if err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		ev.Direction = dir
		ev.Time = ev.Time.In(r.loc)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}

	return events, nil
}

func (r *AttendanceRepository) Days(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT day FROM attendance_events ORDER BY day`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list attendance days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan attendance day: %w", err)
		}
		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance days: %w", err)
	}

	return days, nil
}

var _ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)
