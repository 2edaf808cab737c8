package mediaprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultKlingConfig = Config{
	BaseURL:      "https://api-singapore.klingai.com",
	PollInterval: 5 * time.Second,
	ImageTimeout: 5 * time.Minute,
	VideoTimeout: 10 * time.Minute,
}

const (
	klingMultiImageVideoModel = "kling-v1-6"
	klingMultiImageImageModel = "kling-v2"
	klingMotionExtractionPath = "/v1/videos/motion-extraction"
	klingMotionControlPath    = "/v1/videos/motion-control"
)

// KlingAdapter serves Kling image and video models through submit-and-poll tasks.
type KlingAdapter struct {
	cfg    Config
	deps   Deps
	http   *httpClient
	diag   *zap.Logger
	signer *TokenSigner
}

// NewKlingAdapter creates a new Kling adapter.
func NewKlingAdapter(cfg Config, deps Deps) *KlingAdapter {
	return &KlingAdapter{
		cfg:  cfg.withDefaults(defaultKlingConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderKling,
			errorPaths: []string{"message", "error.message"},
		},
		diag:   deps.diagnostics(model.ProviderKling),
		signer: NewTokenSigner(),
	}
}

// Provider returns the provider kind.
func (a *KlingAdapter) Provider() model.ProviderKind {
	return model.ProviderKling
}

// Capabilities returns the supported modes.
func (a *KlingAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage, model.ModeReferences},
		model.MediaKindVideo: {
			model.ModeText, model.ModeSingleImage, model.ModeFrameInterpolation,
			model.ModeReferences, model.ModeMotionControl,
		},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *KlingAdapter) RequiredCredentials() []string {
	return []string{model.CredentialKlingAccessKey, model.CredentialKlingSecretKey}
}

// klingEnvelope is the response wrapper of every Kling endpoint.
type klingEnvelope struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Data      klingTask `json:"data"`
}

type klingTask struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			ID       string `json:"id"`
			URL      string `json:"url"`
			Duration string `json:"duration"`
		} `json:"videos"`
		Images []struct {
			Index int    `json:"index"`
			URL   string `json:"url"`
		} `json:"images"`
		WorkID string `json:"work_id"`
	} `json:"task_result"`
}

type klingImageItem struct {
	Image string `json:"image"`
}

type klingVideoRequest struct {
	ModelName      string           `json:"model_name,omitempty"`
	Prompt         string           `json:"prompt,omitempty"`
	NegativePrompt string           `json:"negative_prompt,omitempty"`
	Image          string           `json:"image,omitempty"`
	ImageTail      string           `json:"image_tail,omitempty"`
	ImageList      []klingImageItem `json:"image_list,omitempty"`
	Mode           string           `json:"mode,omitempty"`
	AspectRatio    string           `json:"aspect_ratio,omitempty"`
	Duration       string           `json:"duration,omitempty"`
}

type klingImageRequest struct {
	ModelName        string           `json:"model_name,omitempty"`
	Prompt           string           `json:"prompt"`
	NegativePrompt   string           `json:"negative_prompt,omitempty"`
	Image            string           `json:"image,omitempty"`
	SubjectImageList []klingImageItem `json:"subject_image_list,omitempty"`
	Resolution       string           `json:"resolution,omitempty"`
	AspectRatio      string           `json:"aspect_ratio,omitempty"`
	N                int              `json:"n,omitempty"`
}

type klingMotionExtractionRequest struct {
	VideoURL string `json:"video_url"`
}

type klingMotionControlRequest struct {
	WorkID string `json:"work_id"`
	Image  string `json:"image"`
	Prompt string `json:"prompt,omitempty"`
	Mode   string `json:"mode"`
}

// klingEndpoint returns the submit path for a kind and mode. The status path
// is the same path followed by the task id.
func klingEndpoint(kind model.MediaKind, mode model.GenerationMode) (string, bool) {
	switch kind {
	case model.MediaKindVideo:
		switch mode {
		case model.ModeText:
			return "/v1/videos/text2video", true
		case model.ModeSingleImage, model.ModeFrameInterpolation:
			return "/v1/videos/image2video", true
		case model.ModeReferences:
			return "/v1/videos/multi-image2video", true
		case model.ModeMotionControl:
			return klingMotionControlPath, true
		}
	case model.MediaKindImage:
		switch mode {
		case model.ModeText, model.ModeSingleImage:
			return "/v1/images/generations", true
		case model.ModeReferences:
			return "/v1/images/multi-image2image", true
		}
	}
	return "", false
}

// klingMode picks std or pro for a request.
func klingMode(req *model.AdapterRequest) string {
	if req.Mode == model.ModeFrameInterpolation || req.Mode == model.ModeMotionControl {
		return klingModePro
	}
	if klingProOnly[req.ModelID] {
		return klingModePro
	}
	if strings.EqualFold(req.Resolution, "1080p") {
		return klingModePro
	}
	return klingModeStd
}

// frameResolution is the normalization target of video frames for a Kling mode.
func frameResolution(mode string) string {
	if mode == klingModePro {
		return "1080p"
	}
	return "720p"
}

// SubmitVideo submits a video task and polls it to completion.
func (a *KlingAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	if req.Mode == model.ModeMotionControl {
		return a.submitMotionControl(ctx, req)
	}

	path, ok := klingEndpoint(model.MediaKindVideo, req.Mode)
	if !ok {
		return nil, unsupportedMode(model.ProviderKling, req.ModelID, req.Mode)
	}

	mode := klingMode(req)
	aspect := klingVideoAspect.lookup(req.AspectRatio)
	body := &klingVideoRequest{
		ModelName:      req.ModelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Mode:           mode,
		Duration:       klingDuration(req.Duration),
	}

	var err error
	switch req.Mode {
	case model.ModeText:
		body.AspectRatio = aspect
	case model.ModeSingleImage:
		body.Image, err = a.klingFrame(ctx, req.Media.SingleSource(), aspect, mode)
	case model.ModeFrameInterpolation:
		if body.Image, err = a.klingFrame(ctx, req.Media.FirstFrame, aspect, mode); err == nil {
			body.ImageTail, err = a.klingFrame(ctx, req.Media.LastFrame, aspect, mode)
		}
	case model.ModeReferences:
		body.ModelName = klingMultiImageVideoModel
		body.AspectRatio = aspect
		body.ImageList, err = a.klingImageList(ctx, req.Media.Ingredients())
	}
	if err != nil {
		return nil, err
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", path),
		zap.String("provider_model", body.ModelName),
		zap.String("kling_mode", mode),
		zap.String("aspect_ratio", aspect),
		zap.String("duration", body.Duration))...)

	result, err := a.submitAndAwait(ctx, req, path, body)
	if err != nil {
		return nil, err
	}
	return klingVideoResult(result)
}

// SubmitImage submits an image task and polls it to completion.
func (a *KlingAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	path, ok := klingEndpoint(model.MediaKindImage, req.Mode)
	if !ok {
		return nil, unsupportedMode(model.ProviderKling, req.ModelID, req.Mode)
	}

	body := &klingImageRequest{
		ModelName:      req.ModelID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Resolution:     klingImageResolution.lookup(req.Resolution),
		AspectRatio:    klingImageAspect.lookup(req.AspectRatio),
		N:              clamp(req.VariationCount(), 1, 9),
	}

	var err error
	switch req.Mode {
	case model.ModeSingleImage:
		body.Image, err = a.klingImage(ctx, req.Media.SingleSource())
	case model.ModeReferences:
		body.ModelName = klingMultiImageImageModel
		body.SubjectImageList, err = a.klingImageList(ctx, req.Media.Ingredients())
	}
	if err != nil {
		return nil, err
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", path),
		zap.String("provider_model", body.ModelName),
		zap.String("aspect_ratio", body.AspectRatio),
		zap.String("resolution", body.Resolution),
		zap.Int("n", body.N))...)

	result, err := a.submitAndAwait(ctx, req, path, body)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(result.TaskResult.Images))
	for _, img := range result.TaskResult.Images {
		urls = append(urls, img.URL)
	}
	assets := urlAssets(urls, "")
	if len(assets) == 0 {
		return nil, model.Malformed(model.ProviderKling, "task %s succeeded without images", result.TaskID)
	}
	return &model.GenerationResult{Assets: assets}, nil
}

// submitMotionControl runs motion extraction and then motion control.
// A failed extraction never reaches the control step.
func (a *KlingAdapter) submitMotionControl(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	videoURL, err := a.deps.Resolver.Resolve(ctx, req.Media.MotionVideo)
	if err != nil {
		return nil, err
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", klingMotionExtractionPath),
		zap.String("step", "extraction"))...)

	extraction, err := a.submitAndAwait(ctx, req, klingMotionExtractionPath, &klingMotionExtractionRequest{VideoURL: videoURL})
	if err != nil {
		return nil, err
	}
	workID := extraction.TaskResult.WorkID
	if workID == "" {
		return nil, model.Malformed(model.ProviderKling, "motion extraction %s returned no work_id", extraction.TaskID)
	}

	image, err := a.klingFrame(ctx, req.Media.SingleSource(), klingVideoAspect.lookup(req.AspectRatio), klingModePro)
	if err != nil {
		return nil, err
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", klingMotionControlPath),
		zap.String("step", "control"),
		zap.String("work_id", workID))...)

	control, err := a.submitAndAwait(ctx, req, klingMotionControlPath, &klingMotionControlRequest{
		WorkID: workID,
		Image:  image,
		Prompt: req.Prompt,
		Mode:   klingModePro,
	})
	if err != nil {
		return nil, err
	}
	return klingVideoResult(control)
}

func klingVideoResult(t *klingTask) (*model.GenerationResult, error) {
	urls := make([]string, 0, len(t.TaskResult.Videos))
	for _, v := range t.TaskResult.Videos {
		urls = append(urls, v.URL)
	}
	assets := urlAssets(urls, "video/mp4")
	if len(assets) == 0 {
		return nil, model.Malformed(model.ProviderKling, "task %s succeeded without videos", t.TaskID)
	}
	return &model.GenerationResult{Assets: assets}, nil
}

// submitAndAwait posts a task and polls its status path until terminal.
func (a *KlingAdapter) submitAndAwait(ctx context.Context, req *model.AdapterRequest, path string, body any) (*klingTask, error) {
	submitted, err := a.call(ctx, req.Credentials, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	taskID := submitted.TaskID
	if taskID == "" {
		return nil, model.Malformed(model.ProviderKling, "task_id missing from %s", path)
	}

	return task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderKling, req.Kind, taskID),
		func(ctx context.Context) (*klingTask, error) {
			return a.call(ctx, req.Credentials, http.MethodGet, path+"/"+taskID, nil)
		},
		classifyKlingTask,
	)
}

func classifyKlingTask(t *klingTask) (task.Observation[*klingTask], error) {
	switch t.TaskStatus {
	case "submitted", "processing":
		return task.Pending[*klingTask](), nil
	case "succeed":
		return task.Succeeded(t), nil
	case "failed":
		return task.Failed[*klingTask](t.TaskStatusMsg), nil
	default:
		return task.Observation[*klingTask]{}, model.Malformed(model.ProviderKling, "unknown task_status %q", t.TaskStatus)
	}
}

// call signs a fresh token and performs one Kling API call.
func (a *KlingAdapter) call(ctx context.Context, creds model.Credentials, method, path string, body any) (*klingTask, error) {
	token, err := a.signer.Sign(creds.Get(model.CredentialKlingAccessKey), creds.Get(model.CredentialKlingSecretKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMissingCredentials, err)
	}

	httpReq, _, err := newJSONRequest(ctx, method, joinURL(a.cfg.BaseURL, path), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", bearer(token))

	var env klingEnvelope
	if _, err := a.http.doJSON(httpReq, &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, model.Rejected(model.ProviderKling, http.StatusOK, env.Message)
	}
	return &env.Data, nil
}

// klingImage sends public URLs as-is and everything else as raw base64.
func (a *KlingAdapter) klingImage(ctx context.Context, ref *model.MediaRef) (string, error) {
	if ref.IsRemote() {
		return ref.URL, nil
	}
	media, err := loadOne(ctx, a.deps.Loader, ref)
	if err != nil {
		return "", err
	}
	return media.Base64(), nil
}

// klingFrame normalizes a video frame to the target geometry and returns raw base64.
func (a *KlingAdapter) klingFrame(ctx context.Context, ref *model.MediaRef, aspect, mode string) (string, error) {
	media, err := normalizeFrame(ctx, a.deps, ref, aspect, frameResolution(mode))
	if err != nil {
		return "", err
	}
	return media.Base64(), nil
}

func (a *KlingAdapter) klingImageList(ctx context.Context, refs []model.MediaRef) ([]klingImageItem, error) {
	items := make([]klingImageItem, 0, len(refs))
	for i := range refs {
		img, err := a.klingImage(ctx, &refs[i])
		if err != nil {
			return nil, err
		}
		items = append(items, klingImageItem{Image: img})
	}
	return items, nil
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*KlingAdapter)(nil)
