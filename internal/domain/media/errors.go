package media

import "errors"

var (
	// ErrInvalidCorrelationID is returned when a correlation id cannot name a record.
	ErrInvalidCorrelationID = errors.New("invalid correlation id")

	// ErrInvalidKind is returned for a media kind other than image or video.
	ErrInvalidKind = errors.New("invalid media kind")

	// ErrEmptyModel is returned when the request names no model.
	ErrEmptyModel = errors.New("model is required")

	// ErrEmptyPrompt is returned for a text-only request without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required without reference media")

	// ErrTooManyVariations is returned when more variations are requested than allowed.
	ErrTooManyVariations = errors.New("too many variations requested")
)
