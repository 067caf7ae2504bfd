package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceProvider using DeepFace API
type Provider struct {
	client    *Client
	normalize bool
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client:    NewClient(config),
		normalize: config.Normalize,
	}
}

// ExtractEmbeddings returns one embedding per face DeepFace finds, first face first
func (p *Provider) ExtractEmbeddings(ctx context.Context, image []byte) ([]domain.Embedding, error) {
	if len(image) == 0 {
		return nil, ErrInvalidImageFormat
	}

	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image), false)
	if err != nil {
		if isNoFaceError(err) {
			return []domain.Embedding{}, nil
		}
		return nil, fmt.Errorf("extract embeddings: %w", err)
	}

	embeddings := make([]domain.Embedding, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Embedding) == 0 {
			continue
		}
		embedding := domain.Embedding(result.Embedding)
		if p.normalize {
			embedding = embedding.Normalized()
		}
		embeddings = append(embeddings, embedding)
	}

	return embeddings, nil
}

// CheckLiveness runs DeepFace with anti_spoofing enabled
// Servers that do not report is_real fall back to a face-size heuristic
func (p *Provider) CheckLiveness(ctx context.Context, image []byte, threshold float64) (*provider.LivenessResult, error) {
	if len(image) == 0 {
		return nil, ErrInvalidImageFormat
	}

	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image), true)
	if err != nil {
		switch {
		case isSpoofError(err):
			return &provider.LivenessResult{
				IsLive:  false,
				Reasons: []string{"spoof detected"},
			}, nil
		case isNoFaceError(err):
			return &provider.LivenessResult{
				IsLive:  false,
				Reasons: []string{provider.ReasonNoFace},
			}, nil
		}
		return nil, fmt.Errorf("check liveness: %w", err)
	}

	faces := resp.Results
	singleFace := len(faces) == 1

	result := &provider.LivenessResult{
		Checks: provider.LivenessChecks{
			EyesOpen:   true,
			SingleFace: singleFace,
		},
	}

	if len(faces) == 0 {
		result.Reasons = append(result.Reasons, provider.ReasonNoFace)
		return result, nil
	}

	first := faces[0]
	faceArea := float64(first.FacialArea.W * first.FacialArea.H)
	quality := calculateQuality(faceArea)
	qualityOK := quality >= 0.6
	result.Checks.QualityOK = qualityOK
	result.Checks.FacingCamera = qualityOK

	isReal := true
	if first.IsReal != nil {
		isReal = *first.IsReal
	}

	if first.AntispoofScore != nil {
		result.Confidence = *first.AntispoofScore
	} else {
		result.Confidence = calculateConfidence(faceArea) * quality
	}

	// Only the first face is judged; extra faces are reported in Checks but never fail the gate.
	result.IsLive = isReal && qualityOK && result.Confidence >= threshold

	if !result.IsLive {
		if !isReal {
			result.Reasons = append(result.Reasons, "spoof detected")
		}
		if !qualityOK {
			result.Reasons = append(result.Reasons, "image quality too low")
		}
		if result.Confidence < threshold {
			result.Reasons = append(result.Reasons, "confidence below threshold")
		}
	}

	return result, nil
}

// calculateConfidence estimates confidence based on face area
// Larger faces are more likely to be accurately detected
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4
	}
	// Scale from 0.6 to 0.95 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}

// Ensure Provider implements provider.FaceProvider
var _ provider.FaceProvider = (*Provider)(nil)
