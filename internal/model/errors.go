package model

import (
	"errors"
	"fmt"
)

// Generation error taxonomy.
var (
	// ErrMissingCredentials is returned when a provider's key material is absent.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrUnsupportedProvider is returned when no provider matches a model id.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrUnsupportedCombination is returned for reference media a provider cannot accept together.
	ErrUnsupportedCombination = errors.New("unsupported combination")

	// ErrInvalidMediaInput is returned when an input image or video cannot be read or decoded.
	ErrInvalidMediaInput = errors.New("invalid media input")

	ErrUploadFailed        = errors.New("upload failed")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrProviderTaskFailed  = errors.New("provider task failed")
	ErrTimeout             = errors.New("generation timed out")
	ErrDownloadFailed      = errors.New("download failed")
	ErrMalformedResponse   = errors.New("malformed provider response")
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")

	// ErrRecordNotFound is returned by record stores and indexes for unknown ids or filenames.
	ErrRecordNotFound = errors.New("generation record not found")
)

// ProviderError carries provider context for a taxonomy error.
type ProviderError struct {
	Kind       error
	Provider   ProviderKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewProviderError creates a provider error of the given kind.
func NewProviderError(kind error, provider ProviderKind, statusCode int, message string) *ProviderError {
	return &ProviderError{
		Kind:       kind,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithCause attaches an underlying error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Err = err
	return e
}

// Rejected creates an ErrProviderRejected error.
func Rejected(provider ProviderKind, statusCode int, message string) *ProviderError {
	return NewProviderError(ErrProviderRejected, provider, statusCode, message)
}

// TaskFailed creates an ErrProviderTaskFailed error carrying the provider reason verbatim.
func TaskFailed(provider ProviderKind, reason string) *ProviderError {
	return NewProviderError(ErrProviderTaskFailed, provider, 0, reason)
}

// Malformed creates an ErrMalformedResponse error naming the missing piece.
func Malformed(provider ProviderKind, format string, args ...any) *ProviderError {
	return NewProviderError(ErrMalformedResponse, provider, 0, fmt.Sprintf(format, args...))
}

// UploadFailed creates an ErrUploadFailed error.
func UploadFailed(provider ProviderKind, message string, cause error) *ProviderError {
	return NewProviderError(ErrUploadFailed, provider, 0, message).WithCause(cause)
}

// UnsupportedCombination creates a validation error naming the offending fields.
func UnsupportedCombination(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedCombination, fmt.Sprintf(format, args...))
}

// InvalidMedia wraps a media decoding or loading failure.
func InvalidMedia(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMediaInput, fmt.Sprintf(format, args...))
}

// ProviderOf returns the provider recorded on err, if any.
func ProviderOf(err error) (ProviderKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Provider, true
	}
	return "", false
}

// ProviderMessage returns the provider's own message recorded on err, if any.
func ProviderMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return ""
}
