package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/canvasflow/server/internal/model"
)

// Common error types.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
)

// AppError represents an application error with HTTP status and error code.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Err        error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// RateLimited creates a rate limited error.
func RateLimited(message string) *AppError {
	if message == "" {
		message = "too many requests"
	}
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
		},
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Is reports whether target matches this error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// --- Generation taxonomy ---

type generationMapping struct {
	err    error
	code   string
	status int
}

// Order matters: the first match wins.
var generationMappings = []generationMapping{
	{model.ErrMissingCredentials, "MISSING_CREDENTIALS", http.StatusPreconditionFailed},
	{model.ErrUnsupportedProvider, "UNSUPPORTED_PROVIDER", http.StatusBadRequest},
	{model.ErrUnsupportedCombination, "UNSUPPORTED_COMBINATION", http.StatusBadRequest},
	{model.ErrInvalidMediaInput, "INVALID_MEDIA_INPUT", http.StatusUnprocessableEntity},
	{model.ErrUploadFailed, "UPLOAD_FAILED", http.StatusBadGateway},
	{model.ErrProviderTaskFailed, "PROVIDER_TASK_FAILED", http.StatusBadGateway},
	{model.ErrProviderRejected, "PROVIDER_REJECTED", http.StatusBadGateway},
	{model.ErrMalformedResponse, "MALFORMED_RESPONSE", http.StatusBadGateway},
	{model.ErrDownloadFailed, "DOWNLOAD_FAILED", http.StatusBadGateway},
	{model.ErrTimeout, "TIMEOUT", http.StatusGatewayTimeout},
	{model.ErrProviderUnavailable, "PROVIDER_UNAVAILABLE", http.StatusServiceUnavailable},
	{model.ErrRecordNotFound, "NOT_FOUND", http.StatusNotFound},
}

// FromGeneration maps a generation error to an AppError.
// The message is the full error text so provider messages reach the caller verbatim.
// Returns nil when err is not part of the generation taxonomy.
func FromGeneration(err error) *AppError {
	if err == nil {
		return nil
	}
	for _, m := range generationMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		appErr := NewAppError(m.code, err.Error(), m.status, err)
		if provider, ok := model.ProviderOf(err); ok {
			appErr.Details = map[string]any{"provider": string(provider)}
		}
		return appErr
	}
	return nil
}

// --- Error Checking Helpers ---

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, model.ErrRecordNotFound)
}
