package mediaprovider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultGeminiConfig = Config{
	BaseURL:      "https://generativelanguage.googleapis.com",
	PollInterval: 5 * time.Second,
	ImageTimeout: 5 * time.Minute,
	VideoTimeout: 10 * time.Minute,
}

const geminiKeyHeader = "x-goog-api-key"

// GeminiAdapter serves Gemini image models synchronously and Veo video
// models through long-running operations.
type GeminiAdapter struct {
	cfg  Config
	deps Deps
	http *httpClient
	diag *zap.Logger
}

// NewGeminiAdapter creates a new Gemini/Veo adapter.
func NewGeminiAdapter(cfg Config, deps Deps) *GeminiAdapter {
	return &GeminiAdapter{
		cfg:  cfg.withDefaults(defaultGeminiConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderGemini,
			errorPaths: []string{"error.message", "0.error.message"},
		},
		diag: deps.diagnostics(model.ProviderGemini),
	}
}

// Provider returns the provider kind.
func (a *GeminiAdapter) Provider() model.ProviderKind {
	return model.ProviderGemini
}

// Capabilities returns the supported modes.
func (a *GeminiAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage, model.ModeReferences},
		model.MediaKindVideo: {model.ModeText, model.ModeSingleImage, model.ModeFrameInterpolation, model.ModeReferences},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *GeminiAdapter) RequiredCredentials() []string {
	return []string{model.CredentialGeminiAPIKey}
}

// --- Image (generateContent) ---

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// supportsImageSize reports whether a Gemini image model accepts imageConfig.imageSize.
func supportsImageSize(modelID string) bool {
	return strings.HasPrefix(modelID, "gemini-3")
}

func buildGeminiImageConfig(req *model.AdapterRequest) *geminiImageConfig {
	cfg := &geminiImageConfig{AspectRatio: geminiAspect.lookup(req.AspectRatio)}
	if supportsImageSize(req.ModelID) {
		cfg.ImageSize = geminiImageSize.lookup(req.Resolution)
	}
	return cfg
}

// SubmitImage generates images with generateContent, one call per variation.
func (a *GeminiAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	var refs []model.MediaRef
	switch req.Mode {
	case model.ModeText:
	case model.ModeSingleImage:
		refs = []model.MediaRef{*req.Media.SingleSource()}
	case model.ModeReferences:
		refs = req.Media.Ingredients()
	default:
		return nil, unsupportedMode(model.ProviderGemini, req.ModelID, req.Mode)
	}

	parts := []geminiPart{{Text: req.Prompt}}
	if len(refs) > 0 {
		images, err := a.deps.Loader.LoadAll(ctx, refs)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Base64()}})
		}
	}

	body := &geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        buildGeminiImageConfig(req),
		},
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("aspect_ratio", body.GenerationConfig.ImageConfig.AspectRatio),
		zap.String("image_size", body.GenerationConfig.ImageConfig.ImageSize),
		zap.Int("inline_images", len(refs)))...)

	// A failed variation is dropped; the request fails only when none succeed.
	count := req.VariationCount()
	results := make([][]model.Asset, count)
	errs := make([]error, count)
	var g errgroup.Group
	for i := 0; i < count; i++ {
		g.Go(func() error {
			results[i], errs[i] = a.generateContent(ctx, req, body)
			return nil
		})
	}
	_ = g.Wait()

	var assets []model.Asset
	var lastErr error
	for i, r := range results {
		if errs[i] != nil {
			lastErr = errs[i]
			a.diag.Warn("variation failed", zap.Int("variation", i), zap.Error(errs[i]))
			continue
		}
		assets = append(assets, r...)
	}
	if len(assets) == 0 {
		if lastErr == nil {
			lastErr = model.Malformed(model.ProviderGemini, "no image in response")
		}
		return nil, lastErr
	}
	a.diag.Info("result", zap.Int("assets", len(assets)))
	return &model.GenerationResult{Assets: assets}, nil
}

func (a *GeminiAdapter) generateContent(ctx context.Context, req *model.AdapterRequest, body *geminiGenerateRequest) ([]model.Asset, error) {
	url := joinURL(a.cfg.BaseURL, "/v1beta/models/"+req.ModelID+":generateContent")
	httpReq, _, err := newJSONRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(geminiKeyHeader, req.Credentials.Get(model.CredentialGeminiAPIKey))

	var resp geminiGenerateResponse
	if _, err := a.http.doJSON(httpReq, &resp); err != nil {
		return nil, err
	}
	return geminiAssets(&resp)
}

// geminiAssets extracts the inline images of the first candidate.
func geminiAssets(resp *geminiGenerateResponse) ([]model.Asset, error) {
	var (
		assets []model.Asset
		text   string
		finish string
	)
	if len(resp.Candidates) > 0 {
		finish = resp.Candidates[0].FinishReason
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, model.Malformed(model.ProviderGemini, "decode inlineData: %v", err)
				}
				assets = append(assets, model.Asset{Data: data, MimeType: p.InlineData.MimeType})
				continue
			}
			if p.Text != "" {
				text = p.Text
			}
		}
	}
	if len(assets) > 0 {
		return assets, nil
	}

	reason := "no image returned"
	switch {
	case resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "":
		reason = resp.PromptFeedback.BlockReason
	case finish != "" && finish != "STOP":
		reason = finish
	case text != "":
		reason = text
	}
	return nil, model.Rejected(model.ProviderGemini, http.StatusOK, reason)
}

// --- Video (Veo predictLongRunning) ---

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoReference struct {
	Image         veoImage `json:"image"`
	ReferenceType string   `json:"referenceType"`
}

type veoInstance struct {
	Prompt          string         `json:"prompt"`
	Image           *veoImage      `json:"image,omitempty"`
	LastFrame       *veoImage      `json:"lastFrame,omitempty"`
	ReferenceImages []veoReference `json:"referenceImages,omitempty"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio"`
	Resolution      string `json:"resolution"`
	DurationSeconds int    `json:"durationSeconds"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
}

type veoRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// veoParams are the mapped Veo submission parameters.
type veoParams struct {
	Model       string
	AspectRatio string
	Resolution  string
	Duration    int
}

// mapVeoParams maps caller values onto what the chosen Veo model accepts.
func mapVeoParams(req *model.AdapterRequest) veoParams {
	p := veoParams{
		Model:       req.ModelID,
		AspectRatio: veoAspect.lookup(req.AspectRatio),
		Resolution:  veoResolution.lookup(req.Resolution),
		Duration:    veoDuration(req.Duration),
	}
	if alias, ok := veoModels[req.ModelID]; ok {
		p.Model = alias
	}
	switch req.Mode {
	case model.ModeFrameInterpolation:
		p.Model = veoTopModel
	case model.ModeReferences:
		p.Model = veoTopModel
		p.AspectRatio = "16:9"
		p.Duration = 8
	}
	if p.Resolution == "1080p" {
		p.Duration = 8
	}
	return p
}

// SubmitVideo starts a Veo operation and polls it to completion.
func (a *GeminiAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	params := mapVeoParams(req)
	instance := veoInstance{Prompt: req.Prompt}

	switch req.Mode {
	case model.ModeText:
	case model.ModeSingleImage:
		img, err := a.veoFrame(ctx, req.Media.SingleSource(), params)
		if err != nil {
			return nil, err
		}
		instance.Image = img
	case model.ModeFrameInterpolation:
		first, err := a.veoFrame(ctx, req.Media.FirstFrame, params)
		if err != nil {
			return nil, err
		}
		last, err := a.veoFrame(ctx, req.Media.LastFrame, params)
		if err != nil {
			return nil, err
		}
		instance.Image = first
		instance.LastFrame = last
	case model.ModeReferences:
		images, err := a.deps.Loader.LoadAll(ctx, req.Media.Ingredients())
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			instance.ReferenceImages = append(instance.ReferenceImages, veoReference{
				Image:         veoImage{BytesBase64Encoded: img.Base64(), MimeType: img.MimeType},
				ReferenceType: "asset",
			})
		}
	default:
		return nil, unsupportedMode(model.ProviderGemini, req.ModelID, req.Mode)
	}

	body := &veoRequest{
		Instances: []veoInstance{instance},
		Parameters: veoParameters{
			AspectRatio:     params.AspectRatio,
			Resolution:      params.Resolution,
			DurationSeconds: params.Duration,
			NegativePrompt:  req.NegativePrompt,
		},
	}

	apiKey := req.Credentials.Get(model.CredentialGeminiAPIKey)
	url := joinURL(a.cfg.BaseURL, "/v1beta/models/"+params.Model+":predictLongRunning")
	httpReq, size, err := newJSONRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(geminiKeyHeader, apiKey)

	a.diag.Info("submit", append(requestFields(req),
		zap.String("provider_model", params.Model),
		zap.String("aspect_ratio", params.AspectRatio),
		zap.String("resolution", params.Resolution),
		zap.Int("duration", params.Duration),
		zap.Int("payload_bytes", size))...)

	var op veoOperation
	if _, err := a.http.doJSON(httpReq, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, model.Malformed(model.ProviderGemini, "operation name missing")
	}

	uri, err := task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderGemini, req.Kind, op.Name),
		func(ctx context.Context) (*veoOperation, error) {
			return a.getOperation(ctx, op.Name, apiKey)
		},
		classifyVeoOperation,
	)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(geminiKeyHeader, apiKey)
	video, err := a.http.fetch(ctx, uri, header)
	if err != nil {
		return nil, err
	}
	a.diag.Info("result", zap.String("operation", op.Name), zap.Int("video_bytes", len(video.Data)))

	return &model.GenerationResult{
		Assets: []model.Asset{{Data: video.Data, MimeType: videoMime(video.MimeType)}},
	}, nil
}

func (a *GeminiAdapter) veoFrame(ctx context.Context, ref *model.MediaRef, params veoParams) (*veoImage, error) {
	img, err := normalizeFrame(ctx, a.deps, ref, params.AspectRatio, params.Resolution)
	if err != nil {
		return nil, err
	}
	return &veoImage{BytesBase64Encoded: img.Base64(), MimeType: img.MimeType}, nil
}

func (a *GeminiAdapter) getOperation(ctx context.Context, name, apiKey string) (*veoOperation, error) {
	httpReq, _, err := newJSONRequest(ctx, http.MethodGet, joinURL(a.cfg.BaseURL, "/v1beta/"+name), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(geminiKeyHeader, apiKey)

	var op veoOperation
	if _, err := a.http.doJSON(httpReq, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func classifyVeoOperation(op *veoOperation) (task.Observation[string], error) {
	if !op.Done {
		return task.Pending[string](), nil
	}
	if op.Error != nil {
		return task.Failed[string](op.Error.Message), nil
	}
	if op.Response == nil {
		return task.Observation[string]{}, model.Malformed(model.ProviderGemini, "operation done without response")
	}
	resp := op.Response.GenerateVideoResponse
	if len(resp.GeneratedSamples) == 0 || resp.GeneratedSamples[0].Video.URI == "" {
		if len(resp.RaiMediaFilteredReasons) > 0 {
			return task.Failed[string](strings.Join(resp.RaiMediaFilteredReasons, "; ")), nil
		}
		return task.Observation[string]{}, model.Malformed(model.ProviderGemini, "operation done without video uri")
	}
	return task.Succeeded(resp.GeneratedSamples[0].Video.URI), nil
}

// videoMime keeps a specific video content type and defaults everything else to mp4.
func videoMime(contentType string) string {
	if strings.HasPrefix(contentType, "video/") {
		return contentType
	}
	return "video/mp4"
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*GeminiAdapter)(nil)
