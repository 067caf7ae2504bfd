package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Capture routes (/login, /register_new_user) per client address; 0 disables
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"60"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Storage
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"file"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	AutoMigrate    bool   `envconfig:"AUTO_MIGRATE" default:"true"`
	DBPath         string `envconfig:"DB_PATH" default:"./db"`
	LogDir         string `envconfig:"ATTENDANCE_LOG_DIR" default:"./logs"`
	Timezone       string `envconfig:"TIMEZONE" default:"Local"`

	// Image artifacts
	ImageStore     string `envconfig:"IMAGE_STORE" default:"local"`
	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"ponto-enrollments"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Providers
	FaceProvider      string        `envconfig:"FACE_PROVIDER" default:"deepface"`
	LivenessProvider  string        `envconfig:"LIVENESS_PROVIDER" default:"deepface"`
	DeepFaceURL       string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	AWSRegion         string        `envconfig:"AWS_REGION" default:"us-east-1"`
	ProviderTimeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	LivenessThreshold float64       `envconfig:"LIVENESS_THRESHOLD" default:"0.9"`
	LivenessPolicy    string        `envconfig:"LIVENESS_POLICY" default:"unified"`

	// Matching
	MatchMetric          string  `envconfig:"MATCH_METRIC" default:"euclidean"`
	MatchThreshold       float64 `envconfig:"MATCH_THRESHOLD"`
	MatchIndexEnabled    bool    `envconfig:"MATCH_INDEX_ENABLED" default:"false"`
	MatchIndexCandidates int     `envconfig:"MATCH_INDEX_CANDIDATES" default:"16"`

	// Notifications
	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"attendance"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects enum values the wiring in cmd/api does not know about.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q (use: file, postgres)", c.StorageBackend)
	}

	switch c.ImageStore {
	case "local", "minio":
	default:
		return fmt.Errorf("invalid IMAGE_STORE %q (use: local, minio)", c.ImageStore)
	}

	switch c.LivenessPolicy {
	case "unified", "match_only":
	default:
		return fmt.Errorf("invalid LIVENESS_POLICY %q (use: unified, match_only)", c.LivenessPolicy)
	}

	switch c.MatchMetric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("invalid MATCH_METRIC %q (use: euclidean, cosine)", c.MatchMetric)
	}

	if c.LivenessThreshold < 0 || c.LivenessThreshold > 1 {
		return errors.New("LIVENESS_THRESHOLD must be between 0 and 1")
	}

	if c.RateLimitMax < 0 {
		return errors.New("RATE_LIMIT_MAX must not be negative")
	}

	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}

	return nil
}

// Location resolves the zone that decides which calendar day an event belongs to.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
