package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// EmbeddingExtractor maps an image to face descriptors
type EmbeddingExtractor interface {
	// ExtractEmbeddings returns one embedding per detected face, in detection order.
	// An image without faces yields an empty slice and a nil error.
	ExtractEmbeddings(ctx context.Context, image []byte) ([]domain.Embedding, error)
}

// LivenessChecker classifies an image as a live subject or a spoof
type LivenessChecker interface {
	// CheckLiveness performs passive liveness detection on an image
	// Returns liveness result with confidence and individual checks
	CheckLiveness(ctx context.Context, image []byte, threshold float64) (*LivenessResult, error)
}

// FaceProvider is a backend able to serve both halves of the pipeline
type FaceProvider interface {
	EmbeddingExtractor
	LivenessChecker
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
	EyesOpen     *bool       `json:"eyes_open,omitempty"`
	Pose         *Pose       `json:"pose,omitempty"`
}

// Pose represents face orientation angles
type Pose struct {
	Pitch float64 `json:"pitch"` // up/down rotation
	Roll  float64 `json:"roll"`  // tilted rotation
	Yaw   float64 `json:"yaw"`   // left/right rotation
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LivenessResult represents the result of a liveness check
type LivenessResult struct {
	IsLive     bool           `json:"is_live"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons,omitempty"`
	Checks     LivenessChecks `json:"checks"`
}

// LivenessChecks contains individual liveness check results
type LivenessChecks struct {
	EyesOpen     bool `json:"eyes_open"`
	FacingCamera bool `json:"facing_camera"`
	QualityOK    bool `json:"quality_ok"`
	SingleFace   bool `json:"single_face"`
}

// ReasonNoFace is reported when the liveness backend found nothing to classify.
const ReasonNoFace = "no face detected"

// NoFace reports whether the check failed only because no face was found.
func (r *LivenessResult) NoFace() bool {
	if r == nil || r.IsLive {
		return false
	}
	for _, reason := range r.Reasons {
		if reason == ReasonNoFace {
			return true
		}
	}
	return false
}

// Passed applies the caller's threshold on top of the provider verdict.
func (r *LivenessResult) Passed(threshold float64) bool {
	return r != nil && r.IsLive && r.Confidence >= threshold
}
