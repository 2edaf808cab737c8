package media

import (
	"errors"
	"time"

	"github.com/canvasflow/server/internal/model"
)

// MetricsRecorder receives generation outcomes.
type MetricsRecorder interface {
	RecordGeneration(provider, kind, mode, outcome string, duration time.Duration)
	RecordMaterialized(kind string, bytes int)
}

type nopMetrics struct{}

func (nopMetrics) RecordGeneration(string, string, string, string, time.Duration) {}
func (nopMetrics) RecordMaterialized(string, int) {}

var outcomeLabels = []struct {
	err   error
	label string
}{
	{model.ErrMissingCredentials, "missing_credentials"},
	{model.ErrUnsupportedProvider, "unsupported"},
	{model.ErrUnsupportedCombination, "unsupported"},
	{model.ErrInvalidMediaInput, "invalid_media"},
	{model.ErrUploadFailed, "upload_failed"},
	{model.ErrProviderTaskFailed, "task_failed"},
	{model.ErrProviderRejected, "rejected"},
	{model.ErrTimeout, "timeout"},
	{model.ErrDownloadFailed, "download_failed"},
	{model.ErrMalformedResponse, "malformed"},
	{model.ErrProviderUnavailable, "unavailable"},
}

// Outcome returns the metrics label for a generation error.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	for _, o := range outcomeLabels {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}
