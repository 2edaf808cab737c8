package mediaprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultKieConfig = Config{
	BaseURL:      "https://api.kie.ai",
	UploadURL:    "https://kieai.redpandaai.co",
	PollInterval: 5 * time.Second,
	ImageTimeout: 5 * time.Minute,
	VideoTimeout: 10 * time.Minute,
}

const (
	kieExtendModel     = "kie-veo3-extend"
	kieNanoBananaModel = "kie-nano-banana"
	kieUploadPath      = "canvasflow/uploads"
)

// Veo generation types.
const (
	kieTextToVideo      = "TEXT_2_VIDEO"
	kieFramesToVideo    = "FIRST_AND_LAST_FRAMES_2_VIDEO"
	kieReferenceToVideo = "REFERENCE_2_VIDEO"
)

// kieFamily is the Kie sub-API a model id is served by.
type kieFamily int

const (
	kieFamilyUnknown kieFamily = iota
	kieFamilyGrok
	kieFamilyNanoBanana
	kieFamilyVeo
	kieFamilyExtend
)

func kieFamilyOf(modelID string) kieFamily {
	switch {
	case modelID == kieExtendModel:
		return kieFamilyExtend
	case modelID == kieNanoBananaModel:
		return kieFamilyNanoBanana
	case kieVeoModels[modelID] != "":
		return kieFamilyVeo
	case strings.HasPrefix(modelID, "grok-imagine"), strings.HasPrefix(modelID, "kie-grok-imagine"):
		return kieFamilyGrok
	default:
		return kieFamilyUnknown
	}
}

// KieAdapter serves Grok Imagine, nano-banana and Veo models hosted by Kie.
// Kie only accepts media by URL.
type KieAdapter struct {
	cfg  Config
	deps Deps
	http *httpClient
	diag *zap.Logger
}

// NewKieAdapter creates a new Kie adapter.
func NewKieAdapter(cfg Config, deps Deps) *KieAdapter {
	return &KieAdapter{
		cfg:  cfg.withDefaults(defaultKieConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderKie,
			errorPaths: []string{"msg", "message"},
		},
		diag: deps.diagnostics(model.ProviderKie),
	}
}

// Provider returns the provider kind.
func (a *KieAdapter) Provider() model.ProviderKind {
	return model.ProviderKie
}

// Capabilities returns the supported modes.
func (a *KieAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage, model.ModeReferences},
		model.MediaKindVideo: {
			model.ModeText, model.ModeSingleImage, model.ModeFrameInterpolation,
			model.ModeReferences, model.ModeExtend,
		},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *KieAdapter) RequiredCredentials() []string {
	return []string{model.CredentialKieAPIKey}
}

// kieEnvelope wraps every Kie API response.
type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type kieTaskData struct {
	TaskID string `json:"taskId"`
}

type kieCreateTaskRequest struct {
	Model       string         `json:"model"`
	CallBackURL string         `json:"callBackUrl,omitempty"`
	Input       map[string]any `json:"input"`
}

type kieRecordInfo struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type kieVeoRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	AspectRatio    string   `json:"aspectRatio"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
	GenerationType string   `json:"generationType"`
}

type kieExtendRequest struct {
	TaskID string `json:"taskId"`
	Prompt string `json:"prompt"`
}

type kieVeoRecord struct {
	TaskID       string `json:"taskId"`
	SuccessFlag  int    `json:"successFlag"`
	ErrorCode    any    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Response     *struct {
		ResultURLs []string `json:"resultUrls"`
	} `json:"response"`
}

type kieUploadRequest struct {
	Base64Data string `json:"base64Data"`
	UploadPath string `json:"uploadPath"`
	FileName   string `json:"fileName"`
}

type kieUploadResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Data    struct {
		DownloadURL string `json:"downloadUrl"`
		FileURL     string `json:"fileUrl"`
	} `json:"data"`
}

// kieMarketModel derives the market job model from kind and mode.
func kieMarketModel(fam kieFamily, kind model.MediaKind, mode model.GenerationMode) (string, bool) {
	withImage := mode == model.ModeSingleImage || mode == model.ModeReferences
	switch fam {
	case kieFamilyGrok:
		switch {
		case kind == model.MediaKindImage && mode == model.ModeText:
			return "grok-imagine/text-to-image", true
		case kind == model.MediaKindImage && mode == model.ModeSingleImage:
			return "grok-imagine/image-to-image", true
		case kind == model.MediaKindVideo && mode == model.ModeText:
			return "grok-imagine/text-to-video", true
		case kind == model.MediaKindVideo && mode == model.ModeSingleImage:
			return "grok-imagine/image-to-video", true
		}
	case kieFamilyNanoBanana:
		if kind != model.MediaKindImage {
			return "", false
		}
		if withImage {
			return "google/nano-banana-edit", true
		}
		if mode == model.ModeText {
			return "google/nano-banana", true
		}
	}
	return "", false
}

// SubmitImage runs a market job for an image model.
func (a *KieAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	fam := kieFamilyOf(req.ModelID)
	switch fam {
	case kieFamilyGrok, kieFamilyNanoBanana:
		return a.submitMarket(ctx, req, fam)
	case kieFamilyUnknown:
		return nil, model.UnsupportedCombination("kie model %s is not supported", req.ModelID)
	default:
		return nil, unsupportedKind(model.ProviderKie, model.MediaKindImage)
	}
}

// SubmitVideo runs a market job, a Veo generation or a Veo extension.
func (a *KieAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	switch fam := kieFamilyOf(req.ModelID); fam {
	case kieFamilyGrok:
		return a.submitMarket(ctx, req, fam)
	case kieFamilyVeo:
		return a.submitVeo(ctx, req)
	case kieFamilyExtend:
		return a.submitExtend(ctx, req)
	case kieFamilyNanoBanana:
		return nil, unsupportedKind(model.ProviderKie, model.MediaKindVideo)
	default:
		return nil, model.UnsupportedCombination("kie model %s is not supported", req.ModelID)
	}
}

func (a *KieAdapter) submitMarket(ctx context.Context, req *model.AdapterRequest, fam kieFamily) (*model.GenerationResult, error) {
	marketModel, ok := kieMarketModel(fam, req.Kind, req.Mode)
	if !ok {
		return nil, unsupportedMode(model.ProviderKie, req.ModelID, req.Mode)
	}
	apiKey := req.Credentials.Get(model.CredentialKieAPIKey)

	input := map[string]any{"prompt": req.Prompt}
	if fam == kieFamilyNanoBanana {
		input["output_format"] = "png"
		input["image_size"] = kieGrokImageAspect.lookup(req.AspectRatio)
	} else if req.Kind == model.MediaKindVideo {
		input["aspect_ratio"] = kieGrokVideoAspect.lookup(req.AspectRatio)
	} else {
		input["aspect_ratio"] = kieGrokImageAspect.lookup(req.AspectRatio)
	}

	switch {
	case marketModel == "grok-imagine/image-to-image":
		// Grok image-to-image only accepts files hosted by Kie.
		uploaded, err := a.upload(ctx, apiKey, req.Media.SingleSource())
		if err != nil {
			return nil, err
		}
		input["image_urls"] = []string{uploaded}
	case req.Mode == model.ModeSingleImage || req.Mode == model.ModeReferences:
		urls, err := a.resolveAll(ctx, kieInputRefs(req))
		if err != nil {
			return nil, err
		}
		input["image_urls"] = urls
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("market_model", marketModel),
		zap.Any("aspect_ratio", input["aspect_ratio"]))...)

	var created kieTaskData
	if err := a.call(ctx, apiKey, http.MethodPost, "/api/v1/jobs/createTask",
		&kieCreateTaskRequest{Model: marketModel, Input: input}, &created); err != nil {
		return nil, err
	}
	if created.TaskID == "" {
		return nil, model.Malformed(model.ProviderKie, "taskId missing from createTask")
	}

	urls, err := task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderKie, req.Kind, created.TaskID),
		func(ctx context.Context) (*kieRecordInfo, error) {
			var info kieRecordInfo
			query := url.Values{"taskId": {created.TaskID}}
			if err := a.call(ctx, apiKey, http.MethodGet, "/api/v1/jobs/recordInfo?"+query.Encode(), nil, &info); err != nil {
				return nil, err
			}
			return &info, nil
		},
		classifyKieRecord,
	)
	if err != nil {
		return nil, err
	}

	mime := ""
	if req.Kind == model.MediaKindVideo {
		mime = "video/mp4"
	}
	return &model.GenerationResult{Assets: urlAssets(urls, mime)}, nil
}

func kieInputRefs(req *model.AdapterRequest) []model.MediaRef {
	if req.Mode == model.ModeSingleImage {
		return []model.MediaRef{*req.Media.SingleSource()}
	}
	return req.Media.Ingredients()
}

func classifyKieRecord(info *kieRecordInfo) (task.Observation[[]string], error) {
	switch info.State {
	case "waiting", "queuing", "generating":
		return task.Pending[[]string](), nil
	case "success":
		if !gjson.Valid(info.ResultJSON) {
			return task.Observation[[]string]{}, model.Malformed(model.ProviderKie, "resultJson is not valid JSON")
		}
		var urls []string
		for _, u := range gjson.Get(info.ResultJSON, "resultUrls").Array() {
			urls = append(urls, u.String())
		}
		if len(urls) == 0 {
			return task.Observation[[]string]{}, model.Malformed(model.ProviderKie, "task %s has no resultUrls", info.TaskID)
		}
		return task.Succeeded(urls), nil
	case "fail":
		return task.Failed[[]string](info.FailMsg), nil
	default:
		return task.Observation[[]string]{}, model.Malformed(model.ProviderKie, "unknown state %q", info.State)
	}
}

// kieVeoParams are the mapped Veo-via-Kie parameters.
type kieVeoParams struct {
	Model          string
	AspectRatio    string
	GenerationType string
}

func mapKieVeo(req *model.AdapterRequest) kieVeoParams {
	p := kieVeoParams{
		Model:          kieVeoModels[req.ModelID],
		AspectRatio:    kieVeoAspect.lookup(req.AspectRatio),
		GenerationType: kieTextToVideo,
	}
	switch req.Mode {
	case model.ModeSingleImage:
		p.GenerationType = kieFramesToVideo
	case model.ModeFrameInterpolation:
		p.GenerationType = kieFramesToVideo
		p.Model = "veo3"
	case model.ModeReferences:
		p.GenerationType = kieReferenceToVideo
		p.Model = "veo3_fast"
		p.AspectRatio = "16:9"
	}
	return p
}

func (a *KieAdapter) submitVeo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	params := mapKieVeo(req)
	body := &kieVeoRequest{
		Prompt:         req.Prompt,
		Model:          params.Model,
		AspectRatio:    params.AspectRatio,
		GenerationType: params.GenerationType,
	}

	var refs []model.MediaRef
	switch req.Mode {
	case model.ModeText:
	case model.ModeSingleImage:
		refs = []model.MediaRef{*req.Media.SingleSource()}
	case model.ModeFrameInterpolation:
		refs = []model.MediaRef{*req.Media.FirstFrame, *req.Media.LastFrame}
	case model.ModeReferences:
		refs = req.Media.Ingredients()
	default:
		return nil, unsupportedMode(model.ProviderKie, req.ModelID, req.Mode)
	}
	if len(refs) > 0 {
		urls, err := a.resolveAll(ctx, refs)
		if err != nil {
			return nil, err
		}
		body.ImageURLs = urls
	}

	a.diag.Info("submit", append(requestFields(req),
		zap.String("provider_model", params.Model),
		zap.String("generation_type", params.GenerationType),
		zap.String("aspect_ratio", params.AspectRatio),
		zap.Int("image_urls", len(body.ImageURLs)))...)

	return a.runVeo(ctx, req, "/api/v1/veo/generate", body)
}

// submitExtend continues a previous Veo task found through the record index.
func (a *KieAdapter) submitExtend(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	if req.SourceTaskID == "" {
		return nil, model.UnsupportedCombination("source_video has no chainable provider task")
	}
	a.diag.Info("submit", append(requestFields(req), zap.String("source_task_id", req.SourceTaskID))...)
	return a.runVeo(ctx, req, "/api/v1/veo/extend", &kieExtendRequest{TaskID: req.SourceTaskID, Prompt: req.Prompt})
}

func (a *KieAdapter) runVeo(ctx context.Context, req *model.AdapterRequest, path string, body any) (*model.GenerationResult, error) {
	apiKey := req.Credentials.Get(model.CredentialKieAPIKey)

	var created kieTaskData
	if err := a.call(ctx, apiKey, http.MethodPost, path, body, &created); err != nil {
		return nil, err
	}
	if created.TaskID == "" {
		return nil, model.Malformed(model.ProviderKie, "taskId missing from %s", path)
	}

	urls, err := task.Await(ctx, a.deps.Poller, a.cfg.pollSpec(model.ProviderKie, req.Kind, created.TaskID),
		func(ctx context.Context) (*kieVeoRecord, error) {
			var record kieVeoRecord
			query := url.Values{"taskId": {created.TaskID}}
			if err := a.call(ctx, apiKey, http.MethodGet, "/api/v1/veo/record-info?"+query.Encode(), nil, &record); err != nil {
				return nil, err
			}
			return &record, nil
		},
		classifyKieVeoRecord,
	)
	if err != nil {
		return nil, err
	}

	return &model.GenerationResult{
		Assets:         urlAssets(urls, "video/mp4"),
		ProviderTaskID: created.TaskID,
	}, nil
}

func classifyKieVeoRecord(record *kieVeoRecord) (task.Observation[[]string], error) {
	switch record.SuccessFlag {
	case 0:
		return task.Pending[[]string](), nil
	case 1:
		if record.Response == nil || len(record.Response.ResultURLs) == 0 {
			return task.Observation[[]string]{}, model.Malformed(model.ProviderKie, "task %s has no resultUrls", record.TaskID)
		}
		return task.Succeeded(record.Response.ResultURLs), nil
	case 2, 3:
		return task.Failed[[]string](record.ErrorMessage), nil
	default:
		return task.Observation[[]string]{}, model.Malformed(model.ProviderKie, "unknown successFlag %d", record.SuccessFlag)
	}
}

// call performs one Kie API call and decodes the envelope's data into out.
func (a *KieAdapter) call(ctx context.Context, apiKey, method, path string, body, out any) error {
	httpReq, _, err := newJSONRequest(ctx, method, joinURL(a.cfg.BaseURL, path), body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", bearer(apiKey))

	var env kieEnvelope
	if _, err := a.http.doJSON(httpReq, &env); err != nil {
		return err
	}
	if env.Code != http.StatusOK {
		return model.Rejected(model.ProviderKie, env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return model.Malformed(model.ProviderKie, "data missing from %s", strings.SplitN(path, "?", 2)[0])
	}
	return a.http.decode(env.Data, out)
}

func (a *KieAdapter) resolveAll(ctx context.Context, refs []model.MediaRef) ([]string, error) {
	urls := make([]string, 0, len(refs))
	for i := range refs {
		u, err := a.deps.Resolver.Resolve(ctx, &refs[i])
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// upload pushes a media ref through Kie's base64 file upload API.
func (a *KieAdapter) upload(ctx context.Context, apiKey string, ref *model.MediaRef) (string, error) {
	media, err := loadOne(ctx, a.deps.Loader, ref)
	if err != nil {
		return "", err
	}

	body := &kieUploadRequest{
		Base64Data: media.DataURI(),
		UploadPath: kieUploadPath,
		FileName:   uuid.NewString() + extensionFor(media.MimeType),
	}
	httpReq, size, err := newJSONRequest(ctx, http.MethodPost, joinURL(a.cfg.UploadURL, "/api/file-base64-upload"), body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", bearer(apiKey))

	a.diag.Info("upload", zap.String("file_name", body.FileName), zap.Int("payload_bytes", size))

	var resp kieUploadResponse
	if _, err := a.http.doJSON(httpReq, &resp); err != nil {
		return "", model.UploadFailed(model.ProviderKie, "file upload request failed", err)
	}
	if !resp.Success && resp.Code != http.StatusOK {
		return "", model.UploadFailed(model.ProviderKie, resp.Msg, fmt.Errorf("upload code %d", resp.Code))
	}
	downloadURL := resp.Data.DownloadURL
	if downloadURL == "" {
		downloadURL = resp.Data.FileURL
	}
	if downloadURL == "" {
		return "", model.UploadFailed(model.ProviderKie, "upload returned no downloadUrl", nil)
	}
	return downloadURL, nil
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*KieAdapter)(nil)
