package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// IdentityRepository stores the gallery in postgres; the embedding lives in a pgvector column
type IdentityRepository struct {
	pool PgxPool
}

func NewIdentityRepository(pool PgxPool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) List(ctx context.Context) ([]domain.GalleryEntry, error) {
	query := `
		SELECT key, name, phone, class, division, image_ref, embedding, created_at
		FROM identities
		ORDER BY key COLLATE "C"
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var entries []domain.GalleryEntry
	for rows.Next() {
		var id domain.Identity
		var embedding *pgvector.Vector
		if err := rows.Scan(
			&id.Key,
			&id.Name,
			&id.Phone,
			&id.Class,
			&id.Division,
			&id.ImageRef,
			&embedding,
			&id.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.EmbeddingRef = embeddingRef(id.Key)
		entry := domain.GalleryEntry{Identity: id}
		if embedding != nil {
			entry.Embedding = fromVector(*embedding)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return entries, nil
}

func (r *IdentityRepository) Get(ctx context.Context, key string) (*domain.Identity, error) {
	query := `
		SELECT key, name, phone, class, division, image_ref, created_at
		FROM identities
		WHERE key = $1
	`

	var id domain.Identity
	err := r.pool.QueryRow(ctx, query, domain.NormalizeKey(key)).Scan(
		&id.Key,
		&id.Name,
		&id.Phone,
		&id.Class,
		&id.Division,
		&id.ImageRef,
		&id.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnregisteredIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}

	id.EmbeddingRef = embeddingRef(id.Key)
	return &id, nil
}

func (r *IdentityRepository) Exists(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM identities WHERE key = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, domain.NormalizeKey(key)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check identity: %w", err)
	}
	return exists, nil
}

// Create inserts identity and embedding in one row, so the roster can never
// reference a missing embedding
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity, embedding domain.Embedding) error {
	query := `
		INSERT INTO identities (key, name, phone, class, division, image_ref, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`

	if len(embedding) == 0 {
		return domain.ErrValidationFailed.WithError(errors.New("empty embedding"))
	}

	identity.Key = domain.NormalizeKey(identity.Key)

	err := r.pool.QueryRow(ctx, query,
		identity.Key,
		identity.Name,
		identity.Phone,
		identity.Class,
		identity.Division,
		identity.ImageRef,
		toVector(embedding),
	).Scan(&identity.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyRegistered
		}
		return fmt.Errorf("create identity: %w", err)
	}

	identity.EmbeddingRef = embeddingRef(identity.Key)
	return nil
}

func embeddingRef(key string) string {
	return "identities/" + key + "#embedding"
}

var _ IdentityRepositoryInterface = (*IdentityRepository)(nil)
