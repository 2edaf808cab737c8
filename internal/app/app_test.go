package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/adapter/outbound/credentials"
	"github.com/canvasflow/server/internal/adapter/outbound/filestore"
	"github.com/canvasflow/server/internal/infra/config"
	"github.com/canvasflow/server/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CANVAS_STORAGE_CONTENT_ROOT", dir+"/content")
	t.Setenv("CANVAS_SERVER_MODE", "test")
	t.Setenv("CANVAS_LOG_LEVEL", "error")
	t.Setenv("CANVAS_REDIS_ADDRESS", "")
	t.Setenv(credentials.EnvName(model.CredentialOpenAIAPIKey), "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Providers.OpenAI.APIKey = ""
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	reg := prometheus.NewRegistry()
	a, err := newApp(cfg, reg, reg)
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	return a
}

func serve(a *App, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	return w
}

func TestApp_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t, loadTestConfig(t))

	w := serve(a, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(a, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `canvasflow_generation_provider_health{provider="kling"} 1`)
	assert.Contains(t, w.Body.String(), "canvasflow_http_requests_total")
}

func TestApp_GenerationErrors(t *testing.T) {
	a := newTestApp(t, loadTestConfig(t))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{
			name:   "unknown model",
			path:   "/api/v1/generations/images",
			body:   `{"model":"midjourney-v6","prompt":"a lighthouse"}`,
			status: http.StatusBadRequest,
			code:   "UNSUPPORTED_PROVIDER",
		},
		{
			name:   "missing credentials",
			path:   "/api/v1/generations/images",
			body:   `{"model":"gpt-image-1","prompt":"a lighthouse"}`,
			status: http.StatusPreconditionFailed,
			code:   "MISSING_CREDENTIALS",
		},
		{
			name:   "missing model",
			path:   "/api/v1/generations/videos",
			body:   `{"prompt":"a lighthouse"}`,
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(a, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestApp_RecoversPersistedGeneration(t *testing.T) {
	cfg := loadTestConfig(t)

	store, err := filestore.New(cfg.Storage.ContentRoot, cfg.Storage.URLPrefix, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.WriteBlob(ctx, model.MediaKindImage, "gen-42.png", []byte("png-bytes")))
	require.NoError(t, store.WriteRecord(ctx, &model.GenerationRecord{
		ID:        "gen-42",
		Filename:  "gen-42.png",
		Prompt:    "a lighthouse",
		ModelID:   "gemini-2.5-flash-image",
		CreatedAt: time.Now().UTC(),
		Type:      model.MediaKindImage,
	}))

	a := newTestApp(t, cfg)

	w := serve(a, http.MethodGet, "/api/v1/generations/gen-42/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report model.StatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, model.GenerationStatusSucceeded, report.Status)
	assert.Equal(t, cfg.Storage.URLPrefix+"/images/gen-42.png", report.ContentURL)

	w = serve(a, http.MethodGet, report.ContentURL, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())

	w = serve(a, http.MethodGet, "/api/v1/generations/never-made/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"pending"}`, w.Body.String())

	w = serve(a, http.MethodDelete, "/api/v1/generations/gen-42", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(a, http.MethodGet, "/api/v1/generations/gen-42/status", "")
	assert.JSONEq(t, `{"status":"pending"}`, w.Body.String())
}
