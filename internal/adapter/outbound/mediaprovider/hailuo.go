package mediaprovider

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultHailuoConfig = Config{
	BaseURL:      "https://api.minimax.io",
	PollInterval: 5 * time.Second,
	ImageTimeout: 5 * time.Minute,
	VideoTimeout: 10 * time.Minute,
}

const (
	hailuoDefaultImageModel = "image-01"
	hailuoFastModel         = "MiniMax-Hailuo-2.3-Fast"
	hailuoStandardModel     = "MiniMax-Hailuo-2.3"
)

// HailuoAdapter serves MiniMax Hailuo video (polling) and image (sync) models.
type HailuoAdapter struct {
	cfg  Config
	deps Deps
	http *httpClient
	diag *zap.Logger
}

// NewHailuoAdapter creates a new Hailuo adapter.
func NewHailuoAdapter(cfg Config, deps Deps) *HailuoAdapter {
	return &HailuoAdapter{
		cfg:  cfg.withDefaults(defaultHailuoConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderHailuo,
			errorPaths: []string{"base_resp.status_msg"},
		},
		diag: deps.diagnostics(model.ProviderHailuo),
	}
}

// Provider returns the provider kind.
func (a *HailuoAdapter) Provider() model.ProviderKind {
	return model.ProviderHailuo
}

// Capabilities returns the supported modes.
func (a *HailuoAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage},
		model.MediaKindVideo: {model.ModeText, model.ModeSingleImage, model.ModeFrameInterpolation},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *HailuoAdapter) RequiredCredentials() []string {
	return []string{model.CredentialHailuoAPIKey}
}

type hailuoBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type hailuoVideoRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt,omitempty"`
	FirstFrameImage string `json:"first_frame_image,omitempty"`
	LastFrameImage  string `json:"last_frame_image,omitempty"`
	Duration        int    `json:"duration"`
	Resolution      string `json:"resolution"`
}

type hailuoVideoResponse struct {
	TaskID   string         `json:"task_id"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

type hailuoQueryResponse struct {
	TaskID   string         `json:"task_id"`
	Status   string         `json:"status"`
	FileID   string         `json:"file_id"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

type hailuoFileResponse struct {
	File struct {
		FileID      any    `json:"file_id"`
		Filename    string `json:"filename"`
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

type hailuoSubjectReference struct {
	Type      string `json:"type"`
	ImageFile string `json:"image_file"`
}

type hailuoImageRequest struct {
	Model            string                   `json:"model"`
	Prompt           string                   `json:"prompt"`
	AspectRatio      string                   `json:"aspect_ratio,omitempty"`
	ResponseFormat   string                   `json:"response_format"`
	N                int                      `json:"n"`
	SubjectReference []hailuoSubjectReference `json:"subject_reference,omitempty"`
}

type hailuoImageResponse struct {
	ID   string `json:"id"`
	Data struct {
		ImageURLs []string `json:"image_urls"`
	} `json:"data"`
	BaseResp hailuoBaseResp `json:"base_resp"`
}

// hailuoVideoParams are the mapped Hailuo video parameters.
type hailuoVideoParams struct {
	Model      string
	Resolution string
	Duration   int
}

// mapHailuoVideo maps caller values onto what the chosen Hailuo model accepts.
func mapHailuoVideo(req *model.AdapterRequest) hailuoVideoParams {
	p := hailuoVideoParams{Model: req.ModelID}
	if alias, ok := hailuoModels[req.ModelID]; ok {
		p.Model = alias
	}

	if req.Mode == model.ModeFrameInterpolation {
		p.Model = hailuoInterpolationModel
		p.Resolution = "1080P"
		p.Duration = 6
		return p
	}

	// The fast variant only accepts a first frame.
	if req.Mode == model.ModeText && p.Model == hailuoFastModel {
		p.Model = hailuoStandardModel
	}

	p.Resolution = hailuoResolution.lookup(req.Resolution)
	p.Duration = 6
	if req.Duration >= 10 && p.Resolution != "1080P" {
		p.Duration = 10
	}
	return p
}

// SubmitVideo submits a video task, polls it and resolves the resulting file.
func (a *HailuoAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	params := mapHailuoVideo(req)
	body := &hailuoVideoRequest{
		Model:      params.Model,
		Prompt:     req.Prompt,
		Duration:   params.Duration,
		Resolution: params.Resolution,
	}

	var err error
	switch req.Mode {
	case model.ModeText:
	case model.ModeSingleImage:
		body.FirstFrameImage, err = urlOrDataURI(ctx, a.deps, req.Media.SingleSource())
	case model.ModeFrameInterpolation:
		if body.FirstFrameImage, err = urlOrDataURI(ctx, a.deps, req.Media.FirstFrame); err == nil {
			body.LastFrameImage, err = urlOrDataURI(ctx, a.deps, req.Media.LastFrame)
		}
	default:
		return nil, unsupportedMode(model.ProviderHailuo, req.ModelID, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	apiKey := req.Credentials.Get(model.CredentialHailuoAPIKey)
	httpReq, size, err := newJSONRequest(ctx, http.MethodPost, joinURL(a.cfg.BaseURL, "/v1/video_generation"), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", bearer(apiKey))

	a.diag.Info("submit", append(requestFields(req),
		zap.String("provider_model", params.Model),
		zap.String("resolution", params.Resolution),
		zap.Int("duration", params.Duration),
		zap.Int("payload_bytes", size))...)

	var submitted hailuoVideoResponse
	if _, err := a.http.doJSON(httpReq, &submitted); err != nil {
		return nil, err
	}
	if err := hailuoCheck(submitted.BaseResp); err != nil {
		return nil, err
	}
	if submitted.TaskID == "" {
		return nil, model.Malformed(model.ProviderHailuo, "task_id missing")
	}

	fileID, err := task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderHailuo, req.Kind, submitted.TaskID),
		func(ctx context.Context) (*hailuoQueryResponse, error) {
			return a.query(ctx, apiKey, submitted.TaskID)
		},
		classifyHailuoQuery,
	)
	if err != nil {
		return nil, err
	}

	downloadURL, err := a.retrieveFile(ctx, apiKey, fileID)
	if err != nil {
		return nil, err
	}
	return &model.GenerationResult{Assets: urlAssets([]string{downloadURL}, "video/mp4")}, nil
}

func (a *HailuoAdapter) get(ctx context.Context, apiKey, path string, query url.Values, out any) error {
	httpReq, _, err := newJSONRequest(ctx, http.MethodGet, joinURL(a.cfg.BaseURL, path)+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", bearer(apiKey))
	_, err = a.http.doJSON(httpReq, out)
	return err
}

func (a *HailuoAdapter) query(ctx context.Context, apiKey, taskID string) (*hailuoQueryResponse, error) {
	var resp hailuoQueryResponse
	if err := a.get(ctx, apiKey, "/v1/query/video_generation", url.Values{"task_id": {taskID}}, &resp); err != nil {
		return nil, err
	}
	// A failed task reports its reason in base_resp next to the status.
	if resp.Status == "" {
		if err := hailuoCheck(resp.BaseResp); err != nil {
			return nil, err
		}
		return nil, model.Malformed(model.ProviderHailuo, "status missing for task %s", taskID)
	}
	return &resp, nil
}

func classifyHailuoQuery(resp *hailuoQueryResponse) (task.Observation[string], error) {
	switch resp.Status {
	case "Preparing", "Queueing", "Processing":
		return task.Pending[string](), nil
	case "Success":
		if resp.FileID == "" {
			return task.Observation[string]{}, model.Malformed(model.ProviderHailuo, "task %s succeeded without file_id", resp.TaskID)
		}
		return task.Succeeded(resp.FileID), nil
	case "Fail":
		reason := resp.BaseResp.StatusMsg
		if reason == "" || reason == "success" {
			reason = "video generation failed"
		}
		return task.Failed[string](reason), nil
	default:
		return task.Observation[string]{}, model.Malformed(model.ProviderHailuo, "unknown status %q", resp.Status)
	}
}

func (a *HailuoAdapter) retrieveFile(ctx context.Context, apiKey, fileID string) (string, error) {
	var resp hailuoFileResponse
	if err := a.get(ctx, apiKey, "/v1/files/retrieve", url.Values{"file_id": {fileID}}, &resp); err != nil {
		return "", err
	}
	if err := hailuoCheck(resp.BaseResp); err != nil {
		return "", err
	}
	if resp.File.DownloadURL == "" {
		return "", model.Malformed(model.ProviderHailuo, "file %s has no download_url", fileID)
	}
	return resp.File.DownloadURL, nil
}

// SubmitImage generates images synchronously.
func (a *HailuoAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	modelName := hailuoDefaultImageModel
	if alias, ok := hailuoModels[req.ModelID]; ok {
		modelName = alias
	}

	body := &hailuoImageRequest{
		Model:          modelName,
		Prompt:         req.Prompt,
		AspectRatio:    hailuoImageAspect.lookup(req.AspectRatio),
		ResponseFormat: "url",
		N:              clamp(req.VariationCount(), 1, 9),
	}

	switch req.Mode {
	case model.ModeText:
	case model.ModeSingleImage:
		image, err := urlOrDataURI(ctx, a.deps, req.Media.SingleSource())
		if err != nil {
			return nil, err
		}
		body.SubjectReference = []hailuoSubjectReference{{Type: "character", ImageFile: image}}
	default:
		return nil, unsupportedMode(model.ProviderHailuo, req.ModelID, req.Mode)
	}

	httpReq, size, err := newJSONRequest(ctx, http.MethodPost, joinURL(a.cfg.BaseURL, "/v1/image_generation"), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", bearer(req.Credentials.Get(model.CredentialHailuoAPIKey)))

	a.diag.Info("submit", append(requestFields(req),
		zap.String("provider_model", modelName),
		zap.String("aspect_ratio", body.AspectRatio),
		zap.Int("n", body.N),
		zap.Int("payload_bytes", size))...)

	var resp hailuoImageResponse
	if _, err := a.http.doJSON(httpReq, &resp); err != nil {
		return nil, err
	}
	if err := hailuoCheck(resp.BaseResp); err != nil {
		return nil, err
	}

	assets := urlAssets(resp.Data.ImageURLs, "")
	if len(assets) == 0 {
		return nil, model.Rejected(model.ProviderHailuo, http.StatusOK, "no images returned")
	}
	return &model.GenerationResult{Assets: assets}, nil
}

func hailuoCheck(br hailuoBaseResp) error {
	if br.StatusCode != 0 {
		return model.Rejected(model.ProviderHailuo, http.StatusOK, br.StatusMsg)
	}
	return nil
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*HailuoAdapter)(nil)
