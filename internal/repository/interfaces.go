package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the postgres repositories use.
// pgxmock.PgxPoolIface satisfies it as well.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// IdentityRepositoryInterface defines operations for the enrolled gallery
type IdentityRepositoryInterface interface {
	// List returns every enrolled identity with its embedding, ascending by key
	List(ctx context.Context) ([]domain.GalleryEntry, error)
	Get(ctx context.Context, key string) (*domain.Identity, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Create persists the embedding artifact and then the roster row
	Create(ctx context.Context, identity *domain.Identity, embedding domain.Embedding) error
}

// AttendanceRepositoryInterface defines operations for the per-day event logs
type AttendanceRepositoryInterface interface {
	Append(ctx context.Context, event domain.AttendanceEvent) error
	// ListDay returns the events of one day in append order
	ListDay(ctx context.Context, day string) ([]domain.AttendanceEvent, error)
	// Days lists the days that have at least one event, ascending
	Days(ctx context.Context) ([]string, error)
}

// ImageStoreInterface stores enrollment photos
type ImageStoreInterface interface {
	Put(ctx context.Context, key string, image []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}
