package mediaio

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// ResolverConfig configures public URL resolution.
type ResolverConfig struct {
	// PublicBaseURL is where this server's content paths are reachable from the internet.
	PublicBaseURL string        `mapstructure:"public_base_url"`
	PresignTTL    time.Duration `mapstructure:"presign_ttl"`
	UploadPrefix  string        `mapstructure:"upload_prefix"`
}

// Resolver implements PublicURLResolverPort.
type Resolver struct {
	loader  outbound.MediaLoaderPort
	store   outbound.ContentStorePort
	storage outbound.StoragePort
	config  ResolverConfig
	logger  *zap.Logger
}

// NewResolver creates a resolver. storage may be nil, in which case refs
// that are neither public nor rewritable fail with ErrUploadFailed.
func NewResolver(loader outbound.MediaLoaderPort, store outbound.ContentStorePort, storage outbound.StoragePort, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	if cfg.UploadPrefix == "" {
		cfg.UploadPrefix = "uploads"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		loader:  loader,
		store:   store,
		storage: storage,
		config:  cfg,
		logger:  logger.Named("resolver"),
	}
}

// Resolve returns a URL the provider can fetch.
func (r *Resolver) Resolve(ctx context.Context, ref *model.MediaRef) (string, error) {
	if ref.IsZero() {
		return "", model.InvalidMedia("empty media ref")
	}
	if len(ref.Data) == 0 && ref.IsRemote() && IsPublicURL(ref.URL) {
		return ref.URL, nil
	}
	if rewritten, ok := r.rewrite(ref); ok {
		return rewritten, nil
	}
	return r.upload(ctx, ref)
}

// rewrite maps a local content path onto the public base URL.
func (r *Resolver) rewrite(ref *model.MediaRef) (string, bool) {
	if r.config.PublicBaseURL == "" || r.store == nil || len(ref.Data) > 0 || ref.IsDataURI() {
		return "", false
	}
	kind, filename, ok := r.store.ParseContentURL(ref.URL)
	if !ok {
		return "", false
	}
	return r.config.PublicBaseURL + r.store.ContentURL(kind, filename), true
}

func (r *Resolver) upload(ctx context.Context, ref *model.MediaRef) (string, error) {
	if r.storage == nil {
		return "", fmt.Errorf("%w: no public location for %s and object storage is not configured", model.ErrUploadFailed, ref)
	}

	media, err := r.loader.Load(ctx, ref)
	if err != nil {
		return "", err
	}

	key := path.Join(r.config.UploadPrefix, uuid.NewString()+extensionFor(media.MimeType))
	if err := r.storage.Put(ctx, key, bytes.NewReader(media.Data), int64(len(media.Data)), media.MimeType); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUploadFailed, err)
	}
	signed, err := r.storage.GetPresignedURL(ctx, key, r.config.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrUploadFailed, err)
	}

	r.logger.Debug("staged media for provider", zap.String("key", key), zap.Int("bytes", len(media.Data)))
	return signed, nil
}

// IsPublicURL reports whether rawURL is an http(s) URL whose host is not
// loopback, private, link-local or unspecified.
func IsPublicURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}

// Compile-time interface check
var _ outbound.PublicURLResolverPort = (*Resolver)(nil)
