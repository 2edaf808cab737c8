// Package mediaprovider implements the generation provider adapters.
package mediaprovider

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// Config configures one provider adapter.
type Config struct {
	BaseURL string `mapstructure:"base_url"`
	// UploadURL is the file upload host, used by Kie only.
	UploadURL    string        `mapstructure:"upload_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
	VideoTimeout time.Duration `mapstructure:"video_timeout"`
}

func (c Config) withDefaults(base Config) Config {
	if c.BaseURL == "" {
		c.BaseURL = base.BaseURL
	}
	if c.UploadURL == "" {
		c.UploadURL = base.UploadURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = base.PollInterval
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = base.ImageTimeout
	}
	if c.VideoTimeout <= 0 {
		c.VideoTimeout = base.VideoTimeout
	}
	return c
}

// Deps holds the collaborators shared by every adapter.
type Deps struct {
	Client     *http.Client
	Poller     *task.Poller
	Loader     outbound.MediaLoaderPort
	Resolver   outbound.PublicURLResolverPort
	Normalizer outbound.MediaNormalizerPort
	// Diagnostics receives request and response summaries. Never media bytes or credentials.
	Diagnostics *zap.Logger
}

func (d Deps) diagnostics(provider model.ProviderKind) *zap.Logger {
	l := d.Diagnostics
	if l == nil {
		l = zap.NewNop()
	}
	return l.With(zap.String("provider", string(provider)))
}

func (d Deps) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

// timeoutFor returns the poll ceiling for a media kind.
func (c Config) timeoutFor(kind model.MediaKind) time.Duration {
	if kind == model.MediaKindVideo {
		return c.VideoTimeout
	}
	return c.ImageTimeout
}

// pollSpec builds the await spec for a submitted task.
func (c Config) pollSpec(provider model.ProviderKind, kind model.MediaKind, taskID string) task.Spec {
	return task.Spec{
		ProviderTask: model.ProviderTask{
			TaskID:      taskID,
			Provider:    provider,
			SubmittedAt: time.Now(),
		},
		Interval: c.PollInterval,
		MaxWait:  c.timeoutFor(kind),
	}
}

// requestFields summarizes a request for the diagnostics sink.
func requestFields(req *model.AdapterRequest) []zap.Field {
	return []zap.Field{
		zap.String("model", req.ModelID),
		zap.String("kind", string(req.Kind)),
		zap.String("mode", string(req.Mode)),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("variations", req.VariationCount()),
	}
}

// loadOne loads a single ref through the loader.
func loadOne(ctx context.Context, loader outbound.MediaLoaderPort, ref *model.MediaRef) (*model.LoadedMedia, error) {
	if ref.IsZero() {
		return nil, model.InvalidMedia("missing media reference")
	}
	return loader.Load(ctx, ref)
}

// normalizeFrame loads a frame and normalizes it to the provider's target geometry.
func normalizeFrame(ctx context.Context, d Deps, ref *model.MediaRef, aspectRatio, resolution string) (*model.LoadedMedia, error) {
	media, err := loadOne(ctx, d.Loader, ref)
	if err != nil {
		return nil, err
	}
	if d.Normalizer == nil {
		return media, nil
	}
	norm, err := d.Normalizer.Normalize(ctx, media.Data, aspectRatio, resolution)
	if err != nil {
		return nil, err
	}
	return &model.LoadedMedia{Data: norm.Data, MimeType: norm.MimeType}, nil
}

// urlOrDataURI passes public URLs through and inlines everything else as a data URI.
func urlOrDataURI(ctx context.Context, d Deps, ref *model.MediaRef) (string, error) {
	if ref.IsRemote() {
		return ref.URL, nil
	}
	if ref.IsDataURI() {
		return ref.URL, nil
	}
	media, err := loadOne(ctx, d.Loader, ref)
	if err != nil {
		return "", err
	}
	return media.DataURI(), nil
}

// urlAssets turns result URLs into assets for the materializer to download.
func urlAssets(urls []string, mimeType string) []model.Asset {
	assets := make([]model.Asset, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		assets = append(assets, model.Asset{URL: u, MimeType: mimeType})
	}
	return assets
}

func unsupportedKind(provider model.ProviderKind, kind model.MediaKind) error {
	return model.UnsupportedCombination("%s does not generate %s", provider, kind)
}

func unsupportedMode(provider model.ProviderKind, modelID string, mode model.GenerationMode) error {
	return model.UnsupportedCombination("%s model %s does not support %s mode", provider, modelID, mode)
}
