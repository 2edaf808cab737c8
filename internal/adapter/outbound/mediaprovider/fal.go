package mediaprovider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultFalConfig = Config{
	BaseURL:      "https://queue.fal.run",
	PollInterval: 3 * time.Second,
	ImageTimeout: 5 * time.Minute,
	VideoTimeout: 10 * time.Minute,
}

// falFamily lists the queue endpoints of one Fal model family per mode.
type falFamily struct {
	endpoints map[model.GenerationMode]string
	video     bool
	// aspectRatio families take aspect_ratio instead of image_size.
	aspectRatio bool
	maxImages   int
}

var falFamilies = map[string]falFamily{
	"fal-flux-dev": {
		endpoints: map[model.GenerationMode]string{
			model.ModeText:        "fal-ai/flux/dev",
			model.ModeSingleImage: "fal-ai/flux/dev/image-to-image",
		},
		maxImages: 4,
	},
	"fal-flux-pro": {
		endpoints: map[model.GenerationMode]string{
			model.ModeText: "fal-ai/flux-pro/v1.1",
		},
		maxImages: 4,
	},
	"fal-nano-banana": {
		endpoints: map[model.GenerationMode]string{
			model.ModeText:        "fal-ai/nano-banana",
			model.ModeSingleImage: "fal-ai/nano-banana/edit",
			model.ModeReferences:  "fal-ai/nano-banana/edit",
		},
		aspectRatio: true,
		maxImages:   4,
	},
	"fal-kling-video": {
		endpoints: map[model.GenerationMode]string{
			model.ModeText:               "fal-ai/kling-video/v2.1/standard/text-to-video",
			model.ModeSingleImage:        "fal-ai/kling-video/v2.1/standard/image-to-video",
			model.ModeFrameInterpolation: "fal-ai/kling-video/v2.1/pro/image-to-video",
		},
		video:       true,
		aspectRatio: true,
	},
}

// falEndpoint returns the queue endpoint for a model, kind and mode.
func falEndpoint(modelID string, kind model.MediaKind, mode model.GenerationMode) (string, falFamily, error) {
	fam, ok := falFamilies[modelID]
	if !ok {
		return "", falFamily{}, model.UnsupportedCombination("fal model %s is not supported", modelID)
	}
	if fam.video != (kind == model.MediaKindVideo) {
		return "", falFamily{}, unsupportedKind(model.ProviderFal, kind)
	}
	endpoint, ok := fam.endpoints[mode]
	if !ok {
		return "", falFamily{}, unsupportedMode(model.ProviderFal, modelID, mode)
	}
	return endpoint, fam, nil
}

// FalAdapter serves Fal models through the queue API.
type FalAdapter struct {
	cfg  Config
	deps Deps
	http *httpClient
	diag *zap.Logger
}

// NewFalAdapter creates a new Fal adapter.
func NewFalAdapter(cfg Config, deps Deps) *FalAdapter {
	return &FalAdapter{
		cfg:  cfg.withDefaults(defaultFalConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderFal,
			errorPaths: []string{"detail.0.msg", "detail", "error", "message"},
		},
		diag: deps.diagnostics(model.ProviderFal),
	}
}

// Provider returns the provider kind.
func (a *FalAdapter) Provider() model.ProviderKind {
	return model.ProviderFal
}

// Capabilities returns the supported modes.
func (a *FalAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage, model.ModeReferences},
		model.MediaKindVideo: {model.ModeText, model.ModeSingleImage, model.ModeFrameInterpolation},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *FalAdapter) RequiredCredentials() []string {
	return []string{model.CredentialFalAPIKey}
}

type falQueueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status string `json:"status"`
	Error  any    `json:"error,omitempty"`
}

// buildFalInput maps a request onto the input of a Fal endpoint.
func (a *FalAdapter) buildFalInput(ctx context.Context, req *model.AdapterRequest, fam falFamily) (map[string]any, error) {
	input := map[string]any{"prompt": req.Prompt}

	if fam.video {
		input["aspect_ratio"] = falVideoAspect.lookup(req.AspectRatio)
		input["duration"] = falDuration(req.Duration)
		if req.NegativePrompt != "" {
			input["negative_prompt"] = req.NegativePrompt
		}
	} else {
		if fam.aspectRatio {
			input["aspect_ratio"] = falAspect.lookup(req.AspectRatio)
		} else {
			input["image_size"] = falImageSize.lookup(req.AspectRatio)
		}
		input["num_images"] = clamp(req.VariationCount(), 1, fam.maxImages)
	}

	switch req.Mode {
	case model.ModeSingleImage:
		image, err := urlOrDataURI(ctx, a.deps, req.Media.SingleSource())
		if err != nil {
			return nil, err
		}
		if fam.aspectRatio && !fam.video {
			input["image_urls"] = []string{image}
		} else {
			input["image_url"] = image
		}
	case model.ModeReferences:
		refs := req.Media.Ingredients()
		urls := make([]string, 0, len(refs))
		for i := range refs {
			u, err := urlOrDataURI(ctx, a.deps, &refs[i])
			if err != nil {
				return nil, err
			}
			urls = append(urls, u)
		}
		input["image_urls"] = urls
	case model.ModeFrameInterpolation:
		first, err := urlOrDataURI(ctx, a.deps, req.Media.FirstFrame)
		if err != nil {
			return nil, err
		}
		last, err := urlOrDataURI(ctx, a.deps, req.Media.LastFrame)
		if err != nil {
			return nil, err
		}
		input["image_url"] = first
		input["tail_image_url"] = last
	}
	return input, nil
}

// SubmitImage submits an image request to the queue and waits for it.
func (a *FalAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	return a.submit(ctx, req)
}

// SubmitVideo submits a video request to the queue and waits for it.
func (a *FalAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	return a.submit(ctx, req)
}

func (a *FalAdapter) submit(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	endpoint, fam, err := falEndpoint(req.ModelID, req.Kind, req.Mode)
	if err != nil {
		return nil, err
	}
	input, err := a.buildFalInput(ctx, req, fam)
	if err != nil {
		return nil, err
	}

	apiKey := req.Credentials.Get(model.CredentialFalAPIKey)
	httpReq, size, err := newJSONRequest(ctx, http.MethodPost, joinURL(a.cfg.BaseURL, "/"+endpoint), input)
	if err != nil {
		return nil, err
	}
	a.authorize(httpReq, apiKey)

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", endpoint),
		zap.Any("aspect_ratio", input["aspect_ratio"]),
		zap.Any("image_size", input["image_size"]),
		zap.Int("payload_bytes", size))...)

	var queued falQueueResponse
	if _, err := a.http.doJSON(httpReq, &queued); err != nil {
		return nil, err
	}
	if queued.RequestID == "" {
		return nil, model.Malformed(model.ProviderFal, "request_id missing")
	}
	statusURL := queued.StatusURL
	if statusURL == "" {
		statusURL = joinURL(a.cfg.BaseURL, "/"+endpoint+"/requests/"+queued.RequestID+"/status")
	}
	responseURL := queued.ResponseURL
	if responseURL == "" {
		responseURL = joinURL(a.cfg.BaseURL, "/"+endpoint+"/requests/"+queued.RequestID)
	}

	_, err = task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderFal, req.Kind, queued.RequestID),
		func(ctx context.Context) (*falStatusResponse, error) {
			return a.status(ctx, apiKey, statusURL)
		},
		classifyFalStatus,
	)
	if err != nil {
		return nil, err
	}

	body, err := a.fetchResult(ctx, apiKey, responseURL)
	if err != nil {
		return nil, err
	}
	assets := falAssets(body, fam.video)
	if len(assets) == 0 {
		return nil, model.Malformed(model.ProviderFal, "request %s completed without output", queued.RequestID)
	}
	a.diag.Info("result", zap.String("request_id", queued.RequestID), zap.Int("assets", len(assets)))
	return &model.GenerationResult{Assets: assets}, nil
}

func (a *FalAdapter) authorize(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Key "+apiKey)
}

func (a *FalAdapter) status(ctx context.Context, apiKey, statusURL string) (*falStatusResponse, error) {
	httpReq, _, err := newJSONRequest(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}
	a.authorize(httpReq, apiKey)

	var resp falStatusResponse
	if _, err := a.http.doJSON(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func classifyFalStatus(resp *falStatusResponse) (task.Observation[struct{}], error) {
	switch resp.Status {
	case "IN_QUEUE", "IN_PROGRESS":
		return task.Pending[struct{}](), nil
	case "COMPLETED":
		if resp.Error != nil {
			return task.Failed[struct{}](falErrorText(resp.Error)), nil
		}
		return task.Succeeded(struct{}{}), nil
	default:
		return task.Observation[struct{}]{}, model.Malformed(model.ProviderFal, "unknown status %q", resp.Status)
	}
}

func falErrorText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			return msg
		}
	}
	return "request failed"
}

// fetchResult reads the response URL. A non-2xx answer means the request itself failed.
func (a *FalAdapter) fetchResult(ctx context.Context, apiKey, responseURL string) ([]byte, error) {
	httpReq, _, err := newJSONRequest(ctx, http.MethodGet, responseURL, nil)
	if err != nil {
		return nil, err
	}
	a.authorize(httpReq, apiKey)

	body, err := a.http.do(httpReq)
	if err != nil {
		if errors.Is(err, model.ErrProviderRejected) {
			return nil, model.TaskFailed(model.ProviderFal, model.ProviderMessage(err))
		}
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, model.Malformed(model.ProviderFal, "response is not JSON")
	}
	return body, nil
}

func falAssets(body []byte, video bool) []model.Asset {
	if video {
		return urlAssets([]string{gjson.GetBytes(body, "video.url").String()}, "video/mp4")
	}
	var urls []string
	for _, u := range gjson.GetBytes(body, "images.#.url").Array() {
		urls = append(urls, u.String())
	}
	return urlAssets(urls, "")
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*FalAdapter)(nil)
