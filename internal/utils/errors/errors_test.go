package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/model"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
		}
		assert.Equal(t, "test error message", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{
			Code:    "TEST_ERROR",
			Message: "test error message",
			Err:     wrapped,
		}
		assert.Contains(t, err.Error(), "test error message")
		assert.Contains(t, err.Error(), "wrapped error")
	})

	t.Run("Unwrap returns wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{Code: "TEST_ERROR", Message: "test", Err: wrapped}
		assert.Equal(t, wrapped, err.Unwrap())
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("generation"), "NOT_FOUND", http.StatusNotFound},
		{"bad request", BadRequest("model is required"), "BAD_REQUEST", http.StatusBadRequest},
		{"internal", Internal("", nil), "INTERNAL_ERROR", http.StatusInternalServerError},
		{"rate limited", RateLimited(""), "RATE_LIMITED", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}

	assert.Equal(t, "generation not found", NotFound("generation").Message)
}

func TestFromGeneration(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		status   int
		provider string
	}{
		{
			name:   "missing credentials",
			err:    fmt.Errorf("%w: kling requires KLING_ACCESS_KEY", model.ErrMissingCredentials),
			code:   "MISSING_CREDENTIALS",
			status: http.StatusPreconditionFailed,
		},
		{
			name:   "unsupported provider",
			err:    fmt.Errorf("%w: midjourney-v6", model.ErrUnsupportedProvider),
			code:   "UNSUPPORTED_PROVIDER",
			status: http.StatusBadRequest,
		},
		{
			name:   "unsupported combination",
			err:    model.UnsupportedCombination("last_frame requires first_frame"),
			code:   "UNSUPPORTED_COMBINATION",
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid media",
			err:    model.InvalidMedia("reference 1: not an image"),
			code:   "INVALID_MEDIA_INPUT",
			status: http.StatusUnprocessableEntity,
		},
		{
			name:     "rejected",
			err:      model.Rejected(model.ProviderOpenAI, 400, "Your request was rejected by the safety system"),
			code:     "PROVIDER_REJECTED",
			status:   http.StatusBadGateway,
			provider: "openai",
		},
		{
			name:     "task failed",
			err:      model.TaskFailed(model.ProviderKling, "content moderation"),
			code:     "PROVIDER_TASK_FAILED",
			status:   http.StatusBadGateway,
			provider: "kling",
		},
		{
			name:     "upload failed",
			err:      model.UploadFailed(model.ProviderKie, "upload reference", errors.New("eof")),
			code:     "UPLOAD_FAILED",
			status:   http.StatusBadGateway,
			provider: "kie",
		},
		{
			name:     "malformed",
			err:      model.Malformed(model.ProviderFal, "missing request_id"),
			code:     "MALFORMED_RESPONSE",
			status:   http.StatusBadGateway,
			provider: "fal",
		},
		{
			name:     "timeout",
			err:      model.NewProviderError(model.ErrTimeout, model.ProviderHailuo, 0, "waited 10m0s"),
			code:     "TIMEOUT",
			status:   http.StatusGatewayTimeout,
			provider: "hailuo",
		},
		{
			name:   "download failed",
			err:    fmt.Errorf("%w: status 403", model.ErrDownloadFailed),
			code:   "DOWNLOAD_FAILED",
			status: http.StatusBadGateway,
		},
		{
			name:     "unavailable",
			err:      model.NewProviderError(model.ErrProviderUnavailable, model.ProviderGemini, 0, ""),
			code:     "PROVIDER_UNAVAILABLE",
			status:   http.StatusServiceUnavailable,
			provider: "gemini",
		},
		{
			name:   "record not found",
			err:    model.ErrRecordNotFound,
			code:   "NOT_FOUND",
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromGeneration(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.err.Error(), appErr.Message)
			assert.ErrorIs(t, appErr, tt.err)
			if tt.provider != "" {
				assert.Equal(t, tt.provider, appErr.Details["provider"])
			} else {
				assert.Nil(t, appErr.Details)
			}
		})
	}

	assert.Nil(t, FromGeneration(nil))
	assert.Nil(t, FromGeneration(errors.New("boom")))
}

func TestFromGeneration_KeepsProviderMessage(t *testing.T) {
	err := fmt.Errorf("generate: %w", model.TaskFailed(model.ProviderKling, "Failure to pass the risk control system"))

	appErr := FromGeneration(err)
	require.NotNil(t, appErr)
	assert.Contains(t, appErr.Message, "Failure to pass the risk control system")
	assert.True(t, strings.HasSuffix(appErr.ToResponse().Error.Message, "Failure to pass the risk control system"))
	assert.Equal(t, "kling", appErr.Details["provider"])
}

func TestAppError_ToResponse(t *testing.T) {
	err := BadRequest("invalid correlation id").WithDetails(map[string]any{"field": "id"})

	resp := err.ToResponse()
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	assert.Equal(t, "invalid correlation id", resp.Error.Message)
	assert.Equal(t, "id", resp.Error.Details["field"])
}

func TestAppError_Is(t *testing.T) {
	err := NotFound("generation")

	assert.True(t, errors.Is(err, &AppError{Code: "NOT_FOUND"}))
	assert.False(t, errors.Is(err, &AppError{Code: "BAD_REQUEST"}))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(model.ErrRecordNotFound))
	assert.False(t, errors.Is(err, ErrRateLimited))
}
