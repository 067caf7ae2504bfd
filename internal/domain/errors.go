package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so errors.Is keeps working after WithError copies the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// AsAppError returns the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsAppError reports whether err already carries an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many capture attempts, slow down",
		StatusCode: 429,
	}

	// Recognition errors

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrUnknownIdentity = &AppError{
		Code:       "UNKNOWN_IDENTITY",
		Message:    "Face does not match any registered user",
		StatusCode: 404,
	}

	ErrSpoofDetected = &AppError{
		Code:       "SPOOF_DETECTED",
		Message:    "Liveness check failed, possible spoofing attempt",
		StatusCode: 409,
	}

	// Enrollment errors

	ErrAlreadyRegistered = &AppError{
		Code:       "ALREADY_REGISTERED",
		Message:    "You are already registered! Proceed to login.",
		StatusCode: 400,
	}

	ErrNoRegisteredUsers = &AppError{
		Code:       "NO_REGISTERED_USERS",
		Message:    "No registered users currently.",
		StatusCode: 404,
	}

	// Session errors

	ErrUnregisteredIdentity = &AppError{
		Code:       "UNREGISTERED_IDENTITY",
		Message:    "User does not exist",
		StatusCode: 404,
	}

	ErrAlreadyLoggedIn = &AppError{
		Code:       "ALREADY_LOGGED_IN",
		Message:    "You are already logged in.",
		StatusCode: 409,
	}

	ErrNotLoggedIn = &AppError{
		Code:       "NOT_LOGGED_IN",
		Message:    "User is not logged in.",
		StatusCode: 409,
	}

	ErrNoAttendanceLogs = &AppError{
		Code:       "NO_ATTENDANCE_LOGS",
		Message:    "No logins yet.",
		StatusCode: 404,
	}

	// Infrastructure errors

	ErrStorageFailure = &AppError{
		Code:       "STORAGE_FAILURE",
		Message:    "Failed to read or write attendance data",
		StatusCode: 500,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Face recognition service unavailable, try again later",
		StatusCode: 503,
	}
)
