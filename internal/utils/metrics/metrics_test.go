package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New("test", reg), reg
}

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordPollTick("kling")

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_generation_poll_ticks_total")

	// A second instance on its own registry does not collide.
	assert.NotPanics(t, func() { New("test", prometheus.NewRegistry()) })
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("POST", "/api/v1/generations/images", 200, 2*time.Second)
	m.RecordHTTPRequest("POST", "/api/v1/generations/images", 502, time.Second)
	m.RecordHTTPRequest("POST", "/api/v1/generations/images", 201, time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/generations/images", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/generations/images", "5xx")))
}

func TestRecordGeneration(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordGeneration("kie", "video", "extend", "success", 90*time.Second)
	m.RecordGeneration("kie", "video", "extend", "timeout", 10*time.Minute)
	m.RecordGeneration("", "image", "", "unsupported", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("kie", "video", "extend", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("", "image", "", "unsupported")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationDuration))
}

func TestRecordMaterialized(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordMaterialized("video", 1024)
	m.RecordMaterialized("video", 2048)

	assert.Equal(t, float64(3072), testutil.ToFloat64(m.MaterializedBytesTotal.WithLabelValues("video")))
}

func TestSetProviderHealth(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetProviderHealth("fal", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderHealth.WithLabelValues("fal")))

	m.SetProviderHealth("fal", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ProviderHealth.WithLabelValues("fal")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{412, "4xx"},
		{504, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusCodeToString(tt.code))
		})
	}
}
