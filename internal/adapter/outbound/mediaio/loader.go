// Package mediaio turns media refs into bytes, public URLs and normalized images.
package mediaio

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// LoaderConfig configures the media loader.
type LoaderConfig struct {
	// MaxBytes caps a single remote fetch.
	MaxBytes int64         `mapstructure:"max_bytes"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// Concurrency bounds LoadAll.
	Concurrency int `mapstructure:"concurrency"`
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		MaxBytes:    64 << 20,
		CacheTTL:    30 * time.Minute,
		Concurrency: 4,
	}
}

// Loader implements MediaLoaderPort.
type Loader struct {
	client *http.Client
	store  outbound.ContentStorePort
	cache  *cache.Cache
	config LoaderConfig
	logger *zap.Logger
}

// NewLoader creates a loader. store may be nil when local content paths are not served.
func NewLoader(client *http.Client, store outbound.ContentStorePort, cfg LoaderConfig, logger *zap.Logger) *Loader {
	def := DefaultLoaderConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		client: client,
		store:  store,
		cache:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		config: cfg,
		logger: logger.Named("loader"),
	}
}

// Load resolves a single ref to bytes.
func (l *Loader) Load(ctx context.Context, ref *model.MediaRef) (*model.LoadedMedia, error) {
	switch {
	case ref.IsZero():
		return nil, model.InvalidMedia("empty media ref")
	case len(ref.Data) > 0:
		return &model.LoadedMedia{Data: ref.Data, MimeType: mimeOr(ref.MimeType, ref.Data)}, nil
	case ref.IsDataURI():
		return decodeDataURI(ref.URL)
	case ref.IsRemote():
		return l.loadRemote(ctx, ref.URL)
	default:
		return l.loadLocal(ctx, ref.URL)
	}
}

// LoadAll resolves refs concurrently, preserving order.
func (l *Loader) LoadAll(ctx context.Context, refs []model.MediaRef) ([]*model.LoadedMedia, error) {
	out := make([]*model.LoadedMedia, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for i := range refs {
		g.Go(func() error {
			m, err := l.Load(gctx, &refs[i])
			if err != nil {
				return fmt.Errorf("reference %d: %w", i+1, err)
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) loadRemote(ctx context.Context, rawURL string) (*model.LoadedMedia, error) {
	if v, ok := l.cache.Get(rawURL); ok {
		return v.(*model.LoadedMedia), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.InvalidMedia("bad url %q", rawURL)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", model.ErrInvalidMediaInput, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.InvalidMedia("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrInvalidMediaInput, rawURL, err)
	}
	if int64(len(data)) > l.config.MaxBytes {
		return nil, model.InvalidMedia("%s exceeds %d bytes", rawURL, l.config.MaxBytes)
	}

	m := &model.LoadedMedia{Data: data, MimeType: mimeOr(resp.Header.Get("Content-Type"), data)}
	l.cache.SetDefault(rawURL, m)
	l.logger.Debug("fetched remote media", zap.String("url", rawURL), zap.Int("bytes", len(data)))
	return m, nil
}

func (l *Loader) loadLocal(ctx context.Context, ref string) (*model.LoadedMedia, error) {
	if l.store == nil {
		return nil, model.InvalidMedia("local media %q is not available", ref)
	}
	kind, filename, ok := l.store.ParseContentURL(ref)
	if !ok {
		return nil, model.InvalidMedia("unrecognized media ref %q", ref)
	}
	data, err := l.store.ReadBlob(ctx, kind, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidMediaInput, ref, err)
	}
	return &model.LoadedMedia{Data: data, MimeType: mimeOr("", data)}, nil
}

// decodeDataURI parses data:[<mime>][;base64],<payload>.
func decodeDataURI(uri string) (*model.LoadedMedia, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, model.InvalidMedia("data uri has no payload")
	}

	isBase64 := strings.HasSuffix(meta, ";base64")
	mime := strings.TrimSuffix(meta, ";base64")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, model.InvalidMedia("data uri is not valid base64")
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, model.InvalidMedia("data uri is not valid percent-encoding")
		}
		data = []byte(unescaped)
	}
	if len(data) == 0 {
		return nil, model.InvalidMedia("data uri is empty")
	}
	return &model.LoadedMedia{Data: data, MimeType: mimeOr(mime, data)}, nil
}

// mimeOr returns declared unless it is empty or generic, else sniffs the bytes.
func mimeOr(declared string, data []byte) string {
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = declared[:i]
	}
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return DetectMimeType(data)
}

// DetectMimeType sniffs image and video signatures, falling back to net/http sniffing.
func DetectMimeType(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[4:8]) == "ftyp":
		if string(data[8:10]) == "qt" {
			return "video/quicktime"
		}
		return "video/mp4"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	case len(data) >= 4 && data[0] == 0x1a && data[1] == 0x45 && data[2] == 0xdf && data[3] == 0xa3:
		return "video/webm"
	}
	return http.DetectContentType(data)
}

// Compile-time interface check
var _ outbound.MediaLoaderPort = (*Loader)(nil)
