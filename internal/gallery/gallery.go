// Package gallery guards the enrolled identities: scans share a read lock,
// enrollment holds the write lock until every artifact is in place.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

type Gallery struct {
	mu     sync.RWMutex
	repo   repository.IdentityRepositoryInterface
	images repository.ImageStoreInterface
	index  *matcher.Index
	logger *slog.Logger
}

// Option configures a Gallery
type Option func(*Gallery)

// WithIndex keeps an ANN index in step with enrollments
func WithIndex(index *matcher.Index) Option {
	return func(g *Gallery) {
		g.index = index
	}
}

func New(repo repository.IdentityRepositoryInterface, images repository.ImageStoreInterface, logger *slog.Logger, opts ...Option) *Gallery {
	g := &Gallery{
		repo:   repo,
		images: images,
		logger: logger.With("component", "gallery"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Snapshot returns every enrolled entry in ascending key order
func (g *Gallery) Snapshot(ctx context.Context) ([]domain.GalleryEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entries, err := g.repo.List(ctx)
	if err != nil {
		return nil, domain.ErrStorageFailure.WithError(err)
	}
	return entries, nil
}

// Identities returns the enrolled identities without embeddings
func (g *Gallery) Identities(ctx context.Context) ([]domain.Identity, error) {
	entries, err := g.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	identities := make([]domain.Identity, len(entries))
	for i, e := range entries {
		identities[i] = e.Identity
	}
	return identities, nil
}

// Contains reports whether key is enrolled, case-insensitively
func (g *Gallery) Contains(ctx context.Context, key string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	exists, err := g.repo.Exists(ctx, domain.NormalizeKey(key))
	if err != nil {
		return false, domain.ErrStorageFailure.WithError(err)
	}
	return exists, nil
}

// Get returns ErrUnregisteredIdentity for unknown keys
func (g *Gallery) Get(ctx context.Context, key string) (*domain.Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.repo.Get(ctx, domain.NormalizeKey(key))
}

// Add persists a new identity: image first, then embedding and roster row.
// On any failure the artifacts already written are removed.
func (g *Gallery) Add(ctx context.Context, identity *domain.Identity, embedding domain.Embedding, image []byte, contentType string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	identity.Key = domain.NormalizeKey(identity.Key)

	exists, err := g.repo.Exists(ctx, identity.Key)
	if err != nil {
		return domain.ErrStorageFailure.WithError(err)
	}
	if exists {
		return domain.ErrAlreadyRegistered
	}

	ref, err := g.images.Put(ctx, identity.Key, image, contentType)
	if err != nil {
		return domain.ErrStorageFailure.WithError(fmt.Errorf("store image: %w", err))
	}
	identity.ImageRef = ref

	if err := g.repo.Create(ctx, identity, embedding); err != nil {
		if delErr := g.images.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			g.logger.Error("failed to remove image after enrollment failure",
				slog.String("key", identity.Key),
				slog.String("image_ref", ref),
				slog.Any("error", delErr),
			)
		}
		if domain.IsAppError(err) {
			return err
		}
		return domain.ErrStorageFailure.WithError(err)
	}

	if g.index != nil {
		g.index.Add(identity.Key, embedding)
	}

	g.logger.Info("identity enrolled", slog.String("key", identity.Key))
	return nil
}

// RebuildIndex loads the whole gallery into the ANN index
func (g *Gallery) RebuildIndex(ctx context.Context) error {
	if g.index == nil {
		return nil
	}

	entries, err := g.Snapshot(ctx)
	if err != nil {
		return err
	}
	g.index.Build(entries)
	g.logger.Info("match index built", slog.Int("entries", len(entries)))
	return nil
}
