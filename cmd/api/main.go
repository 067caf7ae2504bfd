package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/api"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/audit"
	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/database"
	"github.com/saturnino-fabrica-de-software/ponto/internal/face"
	"github.com/saturnino-fabrica-de-software/ponto/internal/gallery"
	"github.com/saturnino-fabrica-de-software/ponto/internal/ledger"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository/filestore"
	"github.com/saturnino-fabrica-de-software/ponto/internal/service"
	"github.com/saturnino-fabrica-de-software/ponto/internal/storage"
	"github.com/saturnino-fabrica-de-software/ponto/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence chosen by STORAGE_BACKEND and IMAGE_STORE
type stores struct {
	identities repository.IdentityRepositoryInterface
	events     repository.AttendanceRepositoryInterface
	images     repository.ImageStoreInterface
	checks     map[string]handler.Pinger
	closers    []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger.Info("starting Ponto API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageBackend),
		slog.String("images", cfg.ImageStore),
		slog.String("timezone", loc.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, loc, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Face providers
	extractor, err := face.NewEmbeddingExtractor(cfg)
	if err != nil {
		return err
	}
	liveness, err := face.NewLivenessChecker(ctx, cfg)
	if err != nil {
		return err
	}

	// Matching; the index is only a candidate filter, the comparator decides
	var matchOpts []matcher.Option
	var galleryOpts []gallery.Option
	if cfg.MatchIndexEnabled {
		index := matcher.NewIndex(cfg.MatchMetric)
		matchOpts = append(matchOpts, matcher.WithIndex(index, cfg.MatchIndexCandidates))
		galleryOpts = append(galleryOpts, gallery.WithIndex(index))
	}
	m := matcher.New(matcher.NewComparator(cfg.MatchMetric, cfg.MatchThreshold), matchOpts...)

	g := gallery.New(st.identities, st.images, logger, galleryOpts...)
	if cfg.MatchIndexEnabled {
		if err := g.RebuildIndex(ctx); err != nil {
			return fmt.Errorf("failed to build match index: %w", err)
		}
	}
	l := ledger.New(st.events, g, loc, logger)

	// Notifications: WebSocket feed always, NATS when configured
	hub := ws.NewHub()
	publishers := notify.Multi{hub}
	if cfg.NATSURL != "" {
		nats, err := notify.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer nats.Close()
		publishers = append(publishers, nats)
		st.checks["nats"] = handler.PingFunc(func(context.Context) error { return nats.Ping() })
	}

	svc := service.NewAttendanceService(g, l, st.events, extractor, liveness, m, logger).
		WithAudit(audit.NewSlogLogger(logger)).
		WithPublisher(notify.NewBestEffort(publishers, logger)).
		WithLivenessPolicy(service.LivenessPolicy(cfg.LivenessPolicy)).
		WithLivenessThreshold(cfg.LivenessThreshold).
		WithProviderTimeout(cfg.ProviderTimeout).
		WithProviderName(cfg.FaceProvider)

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Service:      svc,
		HealthChecks: st.checks,
		Hub:          hub,
		RateLimit: middleware.RateLimiterConfig{
			Max:    cfg.RateLimitMax,
			Window: cfg.RateLimitWindow,
		},
		CORSOrigins: cfg.CORSOrigins,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, loc *time.Location, logger *slog.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handler.Pinger)}

	switch cfg.StorageBackend {
	case "postgres":
		if cfg.AutoMigrate {
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}

		pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.identities = repository.NewIdentityRepository(pool)
		st.events = repository.NewAttendanceRepository(pool, loc)
		st.checks["database"] = pool

	default:
		identities, err := filestore.NewIdentityRepository(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		events, err := filestore.NewAttendanceRepository(cfg.LogDir, loc)
		if err != nil {
			return nil, err
		}
		st.identities = identities
		st.events = events
	}

	switch cfg.ImageStore {
	case "minio":
		images, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			st.close()
			return nil, err
		}
		if err := images.EnsureBucket(ctx); err != nil {
			st.close()
			return nil, err
		}
		st.images = images
		st.checks["images"] = images

	default:
		images, err := filestore.NewImageStore(cfg.DBPath)
		if err != nil {
			st.close()
			return nil, err
		}
		st.images = images
	}

	return st, nil
}
