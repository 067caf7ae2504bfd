package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "error without wrapped error",
			appErr:   ErrNoFaceDetected,
			expected: "No face detected in the image",
		},
		{
			name: "error with wrapped error",
			appErr: &AppError{
				Code:       "TEST_ERROR",
				Message:    "Test message",
				StatusCode: 500,
				Err:        errors.New("underlying error"),
			},
			expected: "Test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	appErr := ErrStorageFailure.WithError(underlying)

	assert.Equal(t, underlying, appErr.Unwrap())
	assert.Nil(t, ErrSpoofDetected.Unwrap())
}

func TestAppError_WithError(t *testing.T) {
	underlying := errors.New("disk full")
	wrapped := ErrStorageFailure.WithError(underlying)

	assert.Equal(t, ErrStorageFailure.Code, wrapped.Code)
	assert.Equal(t, ErrStorageFailure.StatusCode, wrapped.StatusCode)
	assert.Nil(t, ErrStorageFailure.Err, "sentinel must not be mutated")
	assert.ErrorIs(t, wrapped, underlying)
}

func TestAppError_Is(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", ErrServiceUnavailable.WithError(errors.New("timeout")))

	assert.True(t, errors.Is(wrapped, ErrServiceUnavailable))
	assert.False(t, errors.Is(wrapped, ErrStorageFailure))
	assert.False(t, errors.Is(ErrNoFaceDetected, ErrUnknownIdentity))
}

func TestErrorTaxonomy_DistinctCodes(t *testing.T) {
	all := []*AppError{
		ErrNoFaceDetected, ErrUnknownIdentity, ErrAlreadyRegistered, ErrAlreadyLoggedIn,
		ErrNotLoggedIn, ErrUnregisteredIdentity, ErrSpoofDetected, ErrStorageFailure,
		ErrServiceUnavailable,
	}

	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", ErrNotLoggedIn.WithError(errors.New("no IN event today")))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "NOT_LOGGED_IN", appErr.Code)
	assert.True(t, IsAppError(wrapped))
	assert.False(t, IsAppError(errors.New("plain")))
}
