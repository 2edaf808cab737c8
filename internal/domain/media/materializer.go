package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
	"github.com/canvasflow/server/internal/utils/random"
)

// Materializer turns adapter results into content blobs with sidecar records.
type Materializer struct {
	store       outbound.ContentStorePort
	index       outbound.RecordIndexPort
	downloader  outbound.DownloaderPort
	metrics     MetricsRecorder
	concurrency int
	logger      *zap.Logger

	now    func() time.Time
	suffix func() (string, error)
}

// NewMaterializer creates a materializer.
func NewMaterializer(
	store outbound.ContentStorePort,
	index outbound.RecordIndexPort,
	downloader outbound.DownloaderPort,
	metrics MetricsRecorder,
	config *Config,
	logger *zap.Logger,
) *Materializer {
	if config == nil {
		config = DefaultConfig()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		store:       store,
		index:       index,
		downloader:  downloader,
		metrics:     metrics,
		concurrency: max(config.DownloadConcurrency, 1),
		logger:      logger.Named("materializer"),
		now:         time.Now,
		suffix:      func() (string, error) { return random.Hex(4) },
	}
}

type fetchedAsset struct {
	data []byte
	mime string
}

// Materialize persists every asset of result. The first asset's record takes the
// correlation id when one was given; others are keyed by their filename stem.
func (m *Materializer) Materialize(ctx context.Context, req *model.GenerationRequest, provider model.ProviderKind, result *model.GenerationResult) (*model.GenerationOutput, error) {
	if result == nil || len(result.Assets) == 0 {
		return nil, model.Malformed(provider, "result carried no assets")
	}

	fetched, err := m.fetchAll(ctx, result.Assets)
	if err != nil {
		return nil, err
	}

	out := &model.GenerationOutput{}
	urls := make([]string, 0, len(fetched))
	for i, f := range fetched {
		id := ""
		if i == 0 {
			id = req.CorrelationID
		}
		record, err := m.persist(ctx, req, provider, id, f, result.ProviderTaskID)
		if err != nil {
			return nil, err
		}
		url := m.store.ContentURL(record.Type, record.Filename)
		if i == 0 {
			out.ID = record.ID
			out.ContentURL = url
		}
		urls = append(urls, url)
	}
	if len(urls) > 1 {
		out.ContentURLs = urls
	}
	return out, nil
}

// fetchAll downloads URL assets in parallel, preserving order.
func (m *Materializer) fetchAll(ctx context.Context, assets []model.Asset) ([]fetchedAsset, error) {
	for i, a := range assets {
		if len(a.Data) == 0 && a.URL == "" {
			return nil, fmt.Errorf("%w: asset %d has neither bytes nor url", model.ErrMalformedResponse, i+1)
		}
	}

	out := make([]fetchedAsset, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, a := range assets {
		if len(a.Data) > 0 {
			out[i] = fetchedAsset{data: a.Data, mime: a.MimeType}
			continue
		}
		g.Go(func() error {
			media, err := m.downloader.Download(gctx, a.URL)
			if err != nil {
				return err
			}
			mime := a.MimeType
			if mime == "" {
				mime = media.MimeType
			}
			out[i] = fetchedAsset{data: media.Data, mime: mime}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Materializer) persist(ctx context.Context, req *model.GenerationRequest, provider model.ProviderKind, id string, f fetchedAsset, taskID string) (*model.GenerationRecord, error) {
	now := m.now()
	suffix, err := m.suffix()
	if err != nil {
		return nil, err
	}
	ext := extensionFor(f.mime, req.Kind)
	stem := fmt.Sprintf("%s_%s_%d_%s", provider, req.Kind, now.UnixMilli(), suffix)
	filename := stem + ext
	if id == "" {
		id = stem
	}

	if err := m.store.WriteBlob(ctx, req.Kind, filename, f.data); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}

	record := &model.GenerationRecord{
		ID:             id,
		Filename:       filename,
		Prompt:         req.Prompt,
		ModelID:        req.ModelID,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
		CreatedAt:      now.UTC(),
		Type:           req.Kind,
		ProviderTaskID: taskID,
	}
	if err := m.store.WriteRecord(ctx, record); err != nil {
		m.logger.Error("blob written without record",
			zap.String("filename", filename),
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("write record: %w", err)
	}
	if err := m.index.Put(ctx, record); err != nil {
		m.logger.Warn("failed to index record", zap.String("filename", filename), zap.Error(err))
	}

	m.metrics.RecordMaterialized(string(req.Kind), len(f.data))
	m.logger.Info("materialized",
		zap.String("id", id),
		zap.String("filename", filename),
		zap.Int("bytes", len(f.data)),
	)
	return record, nil
}

func extensionFor(mime string, kind model.MediaKind) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.TrimSpace(mime) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
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
	}
	if kind == model.MediaKindVideo {
		return ".mp4"
	}
	return ".png"
}
