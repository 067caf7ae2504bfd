package mock

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
)

const (
	embeddingDimension = 128
	minImageSize       = 1000
)

// Provider implements provider.FaceProvider for tests and local development
type Provider struct {
	spoofMarker []byte
	blankMarker []byte
}

// Option configures the mock
type Option func(*Provider)

// WithSpoofMarker makes every image containing marker fail the liveness check
func WithSpoofMarker(marker []byte) Option {
	return func(p *Provider) {
		p.spoofMarker = marker
	}
}

// WithBlankMarker makes every image containing marker yield no faces
func WithBlankMarker(marker []byte) Option {
	return func(p *Provider) {
		p.blankMarker = marker
	}
}

// New creates a mock Provider
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractEmbeddings returns one embedding derived from the image hash
func (p *Provider) ExtractEmbeddings(ctx context.Context, image []byte) ([]domain.Embedding, error) {
	if len(image) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	if len(p.blankMarker) > 0 && bytes.Contains(image, p.blankMarker) {
		return []domain.Embedding{}, nil
	}

	return []domain.Embedding{generateEmbedding(image)}, nil
}

// CheckLiveness performs passive liveness detection (mock returns live unless marked)
func (p *Provider) CheckLiveness(ctx context.Context, image []byte, threshold float64) (*provider.LivenessResult, error) {
	if len(image) < minImageSize {
		return nil, domain.ErrInvalidImage
	}

	if len(p.spoofMarker) > 0 && bytes.Contains(image, p.spoofMarker) {
		return &provider.LivenessResult{
			IsLive:     false,
			Confidence: 0.12,
			Reasons:    []string{"spoof marker present"},
			Checks: provider.LivenessChecks{
				SingleFace: true,
			},
		}, nil
	}

	return &provider.LivenessResult{
		IsLive:     true,
		Confidence: 0.95,
		Checks: provider.LivenessChecks{
			EyesOpen:     true,
			FacingCamera: true,
			QualityOK:    true,
			SingleFace:   true,
		},
	}, nil
}

// generateEmbedding derives a deterministic unit vector from the image hash
func generateEmbedding(image []byte) domain.Embedding {
	hash := sha256.Sum256(image)
	embedding := make(domain.Embedding, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	return embedding.Normalized()
}

var _ provider.FaceProvider = (*Provider)(nil)
