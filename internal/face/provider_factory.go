package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/config"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider/rekognition"
)

// ProviderType defines supported face provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace HTTP sidecar
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is AWS Rekognition (liveness only)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeMock is the deterministic in-process provider
	ProviderTypeMock ProviderType = "mock"
)

// NewEmbeddingExtractor creates the extractor selected by FACE_PROVIDER
//
// Environment variables:
//   - FACE_PROVIDER: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - PROVIDER_TIMEOUT: per-request timeout
func NewEmbeddingExtractor(cfg *config.Config) (provider.EmbeddingExtractor, error) {
	switch ProviderType(cfg.FaceProvider) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil
	case ProviderTypeMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown face provider: %s (supported: %s, %s)",
			cfg.FaceProvider, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// NewLivenessChecker creates the checker selected by LIVENESS_PROVIDER
//
// Environment variables:
//   - LIVENESS_PROVIDER: "deepface", "rekognition" or "mock" (default: "deepface")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: via AWS SDK credential chain
func NewLivenessChecker(ctx context.Context, cfg *config.Config) (provider.LivenessChecker, error) {
	switch ProviderType(cfg.LivenessProvider) {
	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil
	case ProviderTypeRekognition:
		rekogConfig := rekognition.DefaultConfig()
		if cfg.AWSRegion != "" {
			rekogConfig.Region = cfg.AWSRegion
		}
		checker, err := rekognition.NewChecker(ctx, rekogConfig)
		if err != nil {
			return nil, fmt.Errorf("create rekognition checker: %w", err)
		}
		return checker, nil
	case ProviderTypeMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown liveness provider: %s (supported: %s, %s, %s)",
			cfg.LivenessProvider, ProviderTypeDeepFace, ProviderTypeRekognition, ProviderTypeMock)
	}
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.ProviderTimeout > 0 {
		deepfaceConfig.Timeout = cfg.ProviderTimeout
	}
	deepfaceConfig.Normalize = cfg.MatchMetric == "cosine"

	return deepface.NewProvider(deepfaceConfig)
}
