package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/inbound"
	"github.com/canvasflow/server/internal/port/outbound"
	"github.com/canvasflow/server/internal/utils/requestctx"
)

// Domain implements the generation dispatch and recovery logic.
type Domain struct {
	dispatcher   *Dispatcher
	materializer *Materializer
	store        outbound.ContentStorePort
	index        outbound.RecordIndexPort
	metrics      MetricsRecorder
	config       *Config
	logger       *zap.Logger
}

// NewDomain creates a new media domain.
func NewDomain(
	dispatcher *Dispatcher,
	materializer *Materializer,
	store outbound.ContentStorePort,
	index outbound.RecordIndexPort,
	metrics MetricsRecorder,
	config *Config,
	logger *zap.Logger,
) *Domain {
	if config == nil {
		config = DefaultConfig()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Domain{
		dispatcher:   dispatcher,
		materializer: materializer,
		store:        store,
		index:        index,
		metrics:      metrics,
		config:       config,
		logger:       logger.Named("generation"),
	}
}

// GenerateImage dispatches an image generation and materializes its result.
func (d *Domain) GenerateImage(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error) {
	req.Kind = model.MediaKindImage
	return d.generate(ctx, req)
}

// GenerateVideo dispatches a video generation and materializes its result.
func (d *Domain) GenerateVideo(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error) {
	req.Kind = model.MediaKindVideo
	return d.generate(ctx, req)
}

func (d *Domain) generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error) {
	if err := d.validate(req); err != nil {
		return nil, err
	}

	// The provider job and the disk writes outlive a disconnected caller.
	ctx = context.WithoutCancel(ctx)

	plan, err := d.dispatcher.Dispatch(ctx, req)
	if err != nil {
		d.metrics.RecordGeneration("", string(req.Kind), "", Outcome(err), 0)
		return nil, err
	}
	if plan.Mode == model.ModeText && strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	areq := &model.AdapterRequest{
		GenerationRequest: req,
		Mode:              plan.Mode,
		Credentials:       plan.Credentials,
	}
	if plan.Mode == model.ModeExtend {
		taskID, err := d.sourceTaskID(ctx, req.Media.SourceVideo)
		if err != nil {
			return nil, err
		}
		areq.SourceTaskID = taskID
	}

	provider := plan.Route.Provider
	logger := d.logger.With(
		zap.String("request_id", requestctx.RequestID(ctx)),
		zap.String("correlation_id", req.CorrelationID),
		zap.String("provider", string(provider)),
		zap.String("model", req.ModelID),
		zap.String("kind", string(req.Kind)),
		zap.String("mode", string(plan.Mode)),
	)
	logger.Info("dispatching generation", zap.Int("variations", req.VariationCount()))

	start := time.Now()
	var result *model.GenerationResult
	if req.Kind == model.MediaKindVideo {
		result, err = plan.Adapter.SubmitVideo(ctx, areq)
	} else {
		result, err = plan.Adapter.SubmitImage(ctx, areq)
	}
	if err == nil {
		var out *model.GenerationOutput
		out, err = d.materializer.Materialize(ctx, req, provider, result)
		if err == nil {
			elapsed := time.Since(start)
			d.metrics.RecordGeneration(string(provider), string(req.Kind), string(plan.Mode), Outcome(nil), elapsed)
			logger.Info("generation completed",
				zap.String("id", out.ID),
				zap.Int("assets", len(result.Assets)),
				zap.Duration("elapsed", elapsed),
			)
			return out, nil
		}
	}

	d.metrics.RecordGeneration(string(provider), string(req.Kind), string(plan.Mode), Outcome(err), time.Since(start))
	logger.Warn("generation failed", zap.Error(err))
	return nil, err
}

func (d *Domain) validate(req *model.GenerationRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return ErrEmptyModel
	}
	if req.CorrelationID != "" && !model.ValidGenerationID(req.CorrelationID) {
		return fmt.Errorf("%w: %q", ErrInvalidCorrelationID, req.CorrelationID)
	}
	if req.Variations > d.config.MaxVariations {
		return fmt.Errorf("%w: %d > %d", ErrTooManyVariations, req.Variations, d.config.MaxVariations)
	}
	return nil
}

// sourceTaskID finds the provider task behind a previously generated video.
func (d *Domain) sourceTaskID(ctx context.Context, ref *model.MediaRef) (string, error) {
	_, filename, ok := d.store.ParseContentURL(ref.URL)
	if !ok {
		return "", model.UnsupportedCombination("source_video must be a generated content url")
	}
	record, err := d.index.Lookup(ctx, filename)
	if errors.Is(err, model.ErrRecordNotFound) {
		return "", model.UnsupportedCombination("source_video %s has no generation record", filename)
	}
	if err != nil {
		return "", fmt.Errorf("lookup source video: %w", err)
	}
	if record.ProviderTaskID == "" {
		return "", model.UnsupportedCombination("source_video %s cannot be extended", filename)
	}
	return record.ProviderTaskID, nil
}

// CheckGenerationStatus looks the id up in every content directory.
// A generation that failed never writes a record, so it stays pending.
func (d *Domain) CheckGenerationStatus(ctx context.Context, id string) (*model.StatusReport, error) {
	if !model.ValidGenerationID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCorrelationID, id)
	}
	for _, kind := range model.MediaKinds() {
		record, err := d.store.ReadRecord(ctx, kind, id)
		if errors.Is(err, model.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		createdAt := record.CreatedAt
		return &model.StatusReport{
			Status:     model.GenerationStatusSucceeded,
			ContentURL: d.store.ContentURL(record.Type, record.Filename),
			Type:       record.Type,
			CreatedAt:  &createdAt,
		}, nil
	}
	return &model.StatusReport{Status: model.GenerationStatusPending}, nil
}

// DeleteGeneration removes the blob, the sidecar and the index entry of a record.
func (d *Domain) DeleteGeneration(ctx context.Context, id string) error {
	if !model.ValidGenerationID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidCorrelationID, id)
	}

	found := false
	for _, kind := range model.MediaKinds() {
		record, err := d.store.ReadRecord(ctx, kind, id)
		if errors.Is(err, model.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		found = true

		if err := d.store.DeleteBlob(ctx, kind, record.Filename); err != nil && !errors.Is(err, model.ErrRecordNotFound) {
			return fmt.Errorf("delete blob: %w", err)
		}
		if err := d.store.DeleteRecord(ctx, kind, id); err != nil && !errors.Is(err, model.ErrRecordNotFound) {
			return fmt.Errorf("delete record: %w", err)
		}
		if err := d.index.Remove(ctx, record.Filename); err != nil {
			d.logger.Warn("failed to unindex record", zap.String("filename", record.Filename), zap.Error(err))
		}
		d.logger.Info("generation deleted", zap.String("id", id), zap.String("filename", record.Filename))
	}
	if !found {
		return model.ErrRecordNotFound
	}
	return nil
}

// Compile-time interface check
var _ inbound.MediaDomain = (*Domain)(nil)
