package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 20*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "./data/content", cfg.Storage.ContentRoot)
	assert.Equal(t, "/content", cfg.Storage.URLPrefix)
	assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	assert.Equal(t, "auto", cfg.Storage.S3.Region)
	assert.Equal(t, 4, cfg.Generation.MaxVariations)
	assert.Equal(t, 5*time.Second, cfg.Generation.Poller.Interval)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.FailureThreshold)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.False(t, cfg.Redis.Enabled())
	assert.Empty(t, cfg.Providers.Kling.BaseURL)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := `
server:
  address: ":9090"
storage:
  content_root: /var/lib/canvas
  public_base_url: https://canvas.example.com
redis:
  address: localhost:6379
providers:
  kling:
    access_key: ak-file
    secret_key: sk-file
    poll_interval: 10s
  kie:
    upload_url: https://upload.kie.test
generation:
  max_variations: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("CANVAS_SERVER_ADDRESS", ":7070")
	t.Setenv("CANVAS_PROVIDERS_OPENAI_API_KEY", "sk-openai")
	t.Setenv("CANVAS_STORAGE_S3_BUCKET", "canvas-uploads")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "/var/lib/canvas", cfg.Storage.ContentRoot)
	assert.Equal(t, "canvas-uploads", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Generation.MaxVariations)
	assert.Equal(t, 10*time.Second, cfg.Providers.Get(model.ProviderKling).PollInterval)
	assert.Equal(t, "https://upload.kie.test", cfg.Providers.Get(model.ProviderKie).UploadURL)

	creds := cfg.Providers.Credentials()
	assert.Equal(t, "ak-file", creds[model.CredentialKlingAccessKey])
	assert.Equal(t, "sk-file", creds[model.CredentialKlingSecretKey])
	assert.Equal(t, "sk-openai", creds[model.CredentialOpenAIAPIKey])
	assert.Empty(t, creds[model.CredentialFalAPIKey])
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:    StorageConfig{ContentRoot: "/data"},
			Generation: GenerationConfig{MaxVariations: 4},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no content root", func(c *Config) { c.Storage.ContentRoot = "" }},
		{"zero variations", func(c *Config) { c.Generation.MaxVariations = 0 }},
		{"bad public base", func(c *Config) { c.Storage.PublicBaseURL = "canvas.example.com" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProvidersConfig_GetUnknown(t *testing.T) {
	var p ProvidersConfig
	assert.Equal(t, ProviderConfig{}, p.Get("midjourney"))
}
