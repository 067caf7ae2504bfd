package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// AttendanceRepository appends events to LOG_DIR/YYYY-MM-DD.csv
type AttendanceRepository struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

func NewAttendanceRepository(dir string, loc *time.Location) (*AttendanceRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceRepository{dir: dir, loc: loc}, nil
}

func (r *AttendanceRepository) dayPath(day string) string {
	return filepath.Join(r.dir, day+".csv")
}

// Append writes the row with a single Write call
func (r *AttendanceRepository) Append(ctx context.Context, event domain.AttendanceEvent) error {
	event.Time = event.Time.In(r.loc)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(repository.EventRecord(event)); err != nil {
		return fmt.Errorf("encode attendance event: %w", err)
	}
	cw.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.dayPath(event.Day()), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open attendance log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append attendance event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close attendance log: %w", err)
	}

	return nil
}

// ListDay returns an empty slice when the day has no log yet
func (r *AttendanceRepository) ListDay(ctx context.Context, day string) ([]domain.AttendanceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.dayPath(day))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.AttendanceEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open attendance log: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var events []domain.AttendanceEvent
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read attendance log: %w", err)
		}
		ev, err := repository.ParseEventRecord(record, day, r.loc)
		if err != nil {
			return nil, fmt.Errorf("read attendance log %s: %w", day, err)
		}
		events = append(events, ev)
	}

	return events, nil
}

func (r *AttendanceRepository) Days(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list attendance logs: %w", err)
	}

	var days []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		day := strings.TrimSuffix(e.Name(), ".csv")
		if _, err := time.Parse(domain.DayLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}

	sort.Strings(days)
	return days, nil
}

var _ repository.AttendanceRepositoryInterface = (*AttendanceRepository)(nil)
