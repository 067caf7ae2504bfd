package rekognition

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

var (
	// ErrInvalidImage is returned for images Rekognition cannot process
	ErrInvalidImage = domain.ErrInvalidImage

	// ErrInvalidCredentials means the AWS credential chain was rejected
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrNoFaceDetected is Rekognition's InvalidParameter for faceless images
	ErrNoFaceDetected = errors.New("no face detected in image")
)

// Checker implements provider.LivenessChecker using AWS Rekognition DetectFaces.
// Rekognition does not expose embeddings, so it only serves the liveness gate.
type Checker struct {
	api    RekognitionAPI
	config Config
}

// Ensure Checker implements provider.LivenessChecker interface at compile time
var _ provider.LivenessChecker = (*Checker)(nil)

// NewChecker creates a checker backed by the real AWS client
func NewChecker(ctx context.Context, cfg Config) (*Checker, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewCheckerWithAPI(client, cfg), nil
}

// NewCheckerWithAPI creates a checker around any RekognitionAPI implementation
func NewCheckerWithAPI(api RekognitionAPI, cfg Config) *Checker {
	return &Checker{api: api, config: cfg}
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return ErrInvalidImage.WithError(fmt.Errorf("image too small (%d bytes, minimum %d)", len(image), minImageSize))
	}
	if len(image) > maxImageSize {
		return ErrInvalidImage.WithError(fmt.Errorf("image too large (%d bytes, maximum %d)", len(image), maxImageSize))
	}
	return nil
}

// CheckLiveness scores the first detected face of a still frame: eyes open, facing the camera, sharp enough.
// Additional faces only clear Checks.SingleFace.
// Confidence is Rekognition's face confidence scaled by the quality score.
func (c *Checker) CheckLiveness(ctx context.Context, image []byte, threshold float64) (*provider.LivenessResult, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}

	output, err := c.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeAll},
	})
	if err != nil {
		classified := classifyError(err)
		if errors.Is(classified, ErrNoFaceDetected) {
			return &provider.LivenessResult{Reasons: []string{provider.ReasonNoFace}}, nil
		}
		return nil, fmt.Errorf("detect faces: %w", classified)
	}

	result := &provider.LivenessResult{}
	if len(output.FaceDetails) == 0 {
		result.Reasons = append(result.Reasons, provider.ReasonNoFace)
		return result, nil
	}

	detail := output.FaceDetails[0]
	quality := calculateQualityScore(detail.Quality)

	result.Checks = provider.LivenessChecks{
		EyesOpen:     eyesOpen(detail.EyesOpen),
		FacingCamera: c.facingCamera(detail.Pose),
		QualityOK:    quality >= c.config.MinQuality,
		SingleFace:   len(output.FaceDetails) == 1,
	}

	faceConfidence := 0.0
	if detail.Confidence != nil {
		faceConfidence = float64(*detail.Confidence) / 100.0
	}
	result.Confidence = faceConfidence * (0.5 + quality/2)

	checks := result.Checks
	result.IsLive = checks.EyesOpen && checks.FacingCamera && checks.QualityOK &&
		result.Confidence >= threshold

	if !checks.EyesOpen {
		result.Reasons = append(result.Reasons, "eyes closed")
	}
	if !checks.FacingCamera {
		result.Reasons = append(result.Reasons, "face not facing camera")
	}
	if !checks.QualityOK {
		result.Reasons = append(result.Reasons, "image quality too low")
	}
	if result.Confidence < threshold {
		result.Reasons = append(result.Reasons, "confidence below threshold")
	}

	return result, nil
}

func eyesOpen(attr *types.EyeOpen) bool {
	if attr == nil {
		return false
	}
	return attr.Value
}

func (c *Checker) facingCamera(pose *types.Pose) bool {
	if pose == nil {
		return false
	}
	limit := c.config.MaxPoseDegrees
	if pose.Yaw != nil && math.Abs(float64(*pose.Yaw)) > limit {
		return false
	}
	if pose.Pitch != nil && math.Abs(float64(*pose.Pitch)) > limit {
		return false
	}
	return true
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}

	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	// Weight sharpness more heavily as it's critical for face recognition
	return brightness*0.3 + sharpness*0.7
}
