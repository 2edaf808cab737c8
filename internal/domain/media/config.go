package media

// Config holds media domain configuration.
type Config struct {
	// MaxVariations caps the variations a single request may ask for.
	MaxVariations int `mapstructure:"max_variations"`

	// DownloadConcurrency bounds parallel result downloads per request.
	DownloadConcurrency int `mapstructure:"download_concurrency"`
}

// DefaultConfig returns default media configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxVariations:       4,
		DownloadConcurrency: 4,
	}
}
