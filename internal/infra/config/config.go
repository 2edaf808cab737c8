// Package config loads the server configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/canvasflow/server/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. CANVAS_SERVER_ADDRESS.
const EnvPrefix = "CANVAS"

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Log            LogConfig            `mapstructure:"log"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Generation     GenerationConfig     `mapstructure:"generation"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
	HTTPClient     HTTPClientConfig     `mapstructure:"http_client"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	CORS           CORSConfig           `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RedisConfig holds Redis configuration. An empty address disables Redis.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// StorageConfig holds content and object storage configuration.
type StorageConfig struct {
	// ContentRoot holds the images/ and videos/ directories.
	ContentRoot string `mapstructure:"content_root"`
	// URLPrefix is the path content is served under.
	URLPrefix string `mapstructure:"url_prefix"`
	// PublicBaseURL, when set, makes local content reachable by providers without upload.
	PublicBaseURL string        `mapstructure:"public_base_url"`
	UploadPrefix  string        `mapstructure:"upload_prefix"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
	S3            S3Config      `mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage configuration.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
}

// GenerationConfig holds generation pipeline configuration.
type GenerationConfig struct {
	MaxVariations       int `mapstructure:"max_variations"`
	DownloadConcurrency int `mapstructure:"download_concurrency"`
	// DownloadMaxBytes caps a single result download.
	DownloadMaxBytes int64 `mapstructure:"download_max_bytes"`
	// ReferenceMaxBytes caps a single reference media load.
	ReferenceMaxBytes int64         `mapstructure:"reference_max_bytes"`
	ReferenceCacheTTL time.Duration `mapstructure:"reference_cache_ttl"`
	LoadConcurrency   int           `mapstructure:"load_concurrency"`
	Poller            PollerConfig  `mapstructure:"poller"`
}

// PollerConfig holds task poller defaults. Providers may override interval and timeouts.
type PollerConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	MaxWait              time.Duration `mapstructure:"max_wait"`
	CheckTimeout         time.Duration `mapstructure:"check_timeout"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// ProviderConfig holds one provider's endpoint, polling and key material.
type ProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	UploadURL    string        `mapstructure:"upload_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
	VideoTimeout time.Duration `mapstructure:"video_timeout"`

	APIKey    string `mapstructure:"api_key"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ProvidersConfig holds per-provider configuration.
type ProvidersConfig struct {
	Gemini ProviderConfig `mapstructure:"gemini"`
	Kling  ProviderConfig `mapstructure:"kling"`
	Hailuo ProviderConfig `mapstructure:"hailuo"`
	OpenAI ProviderConfig `mapstructure:"openai"`
	Fal    ProviderConfig `mapstructure:"fal"`
	Kie    ProviderConfig `mapstructure:"kie"`
}

// Get returns the configuration of a provider.
func (c *ProvidersConfig) Get(kind model.ProviderKind) ProviderConfig {
	switch kind {
	case model.ProviderGemini:
		return c.Gemini
	case model.ProviderKling:
		return c.Kling
	case model.ProviderHailuo:
		return c.Hailuo
	case model.ProviderOpenAI:
		return c.OpenAI
	case model.ProviderFal:
		return c.Fal
	case model.ProviderKie:
		return c.Kie
	default:
		return ProviderConfig{}
	}
}

// Credentials returns configured key material keyed by credential name.
func (c *ProvidersConfig) Credentials() map[string]string {
	return map[string]string{
		model.CredentialGeminiAPIKey:   c.Gemini.APIKey,
		model.CredentialKlingAccessKey: c.Kling.AccessKey,
		model.CredentialKlingSecretKey: c.Kling.SecretKey,
		model.CredentialHailuoAPIKey:   c.Hailuo.APIKey,
		model.CredentialOpenAIAPIKey:   c.OpenAI.APIKey,
		model.CredentialFalAPIKey:      c.Fal.APIKey,
		model.CredentialKieAPIKey:      c.Kie.APIKey,
	}
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	// Connection pool settings
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	// Timeout settings
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	// Keep-alive settings
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
}

// CircuitBreakerConfig holds per-provider breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold    uint32        `mapstructure:"failure_threshold"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/canvasflow")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	// CANVAS_STORAGE_S3_BUCKET overrides storage.s3.bucket.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Storage.ContentRoot == "" {
		return errors.New("config: storage.content_root is required")
	}
	if c.Generation.MaxVariations < 1 {
		return fmt.Errorf("config: generation.max_variations must be at least 1, got %d", c.Generation.MaxVariations)
	}
	if base := c.Storage.PublicBaseURL; base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("config: storage.public_base_url must be an http(s) URL, got %q", base)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults. Generation requests block until the provider finishes.
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 20*time.Minute)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<20)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	// Redis defaults
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.content_root", "./data/content")
	v.SetDefault("storage.url_prefix", "/content")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.upload_prefix", "uploads")
	v.SetDefault("storage.presign_ttl", time.Hour)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "auto")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.bucket", "")

	// Generation defaults
	v.SetDefault("generation.max_variations", 4)
	v.SetDefault("generation.download_concurrency", 4)
	v.SetDefault("generation.download_max_bytes", 512<<20)
	v.SetDefault("generation.reference_max_bytes", 64<<20)
	v.SetDefault("generation.reference_cache_ttl", 30*time.Minute)
	v.SetDefault("generation.load_concurrency", 4)
	v.SetDefault("generation.poller.interval", 5*time.Second)
	v.SetDefault("generation.poller.max_wait", 10*time.Minute)
	v.SetDefault("generation.poller.check_timeout", 30*time.Second)
	v.SetDefault("generation.poller.max_consecutive_errors", 3)

	// Provider defaults: empty values fall back to each adapter's built-in endpoint and timeouts.
	for _, p := range model.ProviderKinds() {
		prefix := "providers." + string(p) + "."
		for _, key := range []string{"base_url", "upload_url", "api_key", "access_key", "secret_key"} {
			v.SetDefault(prefix+key, "")
		}
		for _, key := range []string{"poll_interval", "image_timeout", "video_timeout"} {
			v.SetDefault(prefix+key, time.Duration(0))
		}
	}

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 30*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 5*time.Minute)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.idle_ttl", 3*time.Minute)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.interval", time.Minute)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.max_half_open_requests", 1)

	// CORS defaults
	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)
}
