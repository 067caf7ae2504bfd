package deepface

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrInvalidResponse     = errors.New("invalid response from deepface")
	ErrInvalidImageFormat  = errors.New("invalid image format for deepface")
)

// StatusError is a non-2xx answer from the DeepFace API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.StatusCode, e.Body)
}

// isClientError checks if the error is a 4xx client error
func isClientError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
	}
	return false
}

// isNoFaceError reports the 4xx DeepFace raises when enforce_detection finds nothing
func isNoFaceError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "face could not be detected")
}

// isSpoofError reports the 4xx DeepFace raises when anti_spoofing rejects the image
func isSpoofError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "spoof detected")
}
