package mediaprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

var defaultOpenAIConfig = Config{
	BaseURL: "https://api.openai.com",
}

// OpenAIAdapter implements the MediaVendorAdapterPort for OpenAI image models.
type OpenAIAdapter struct {
	cfg  Config
	deps Deps
	http *httpClient
	diag *zap.Logger
}

// NewOpenAIAdapter creates a new OpenAI media adapter.
func NewOpenAIAdapter(cfg Config, deps Deps) *OpenAIAdapter {
	return &OpenAIAdapter{
		cfg:  cfg.withDefaults(defaultOpenAIConfig),
		deps: deps,
		http: &httpClient{
			client:     deps.client(),
			provider:   model.ProviderOpenAI,
			errorPaths: []string{"error.message"},
		},
		diag: deps.diagnostics(model.ProviderOpenAI),
	}
}

// Provider returns the provider kind.
func (a *OpenAIAdapter) Provider() model.ProviderKind {
	return model.ProviderOpenAI
}

// Capabilities returns the supported modes.
func (a *OpenAIAdapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		model.MediaKindImage: {model.ModeText, model.ModeSingleImage, model.ModeReferences},
	}
}

// RequiredCredentials returns the credential names the adapter needs.
func (a *OpenAIAdapter) RequiredCredentials() []string {
	return []string{model.CredentialOpenAIAPIKey}
}

// openAIImageRequest represents an OpenAI image generation request.
type openAIImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// openAIImageResponse represents an OpenAI image generation response.
type openAIImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func isDallE(modelID string) bool {
	return strings.HasPrefix(modelID, "dall-e-")
}

// buildOpenAIImageRequest maps a request onto the generations endpoint body.
func buildOpenAIImageRequest(req *model.AdapterRequest) *openAIImageRequest {
	out := &openAIImageRequest{
		Model:  req.ModelID,
		Prompt: req.Prompt,
		N:      clamp(req.VariationCount(), 1, 10),
	}
	if isDallE(req.ModelID) {
		out.Size = dallESize.lookup(req.AspectRatio)
		out.Quality = dallEQuality.lookup(req.Resolution)
		out.ResponseFormat = "b64_json"
		if req.ModelID == "dall-e-3" {
			out.N = 1
		}
		return out
	}
	out.Size = openAISize.lookup(req.AspectRatio)
	out.Quality = openAIQuality.lookup(req.Resolution)
	return out
}

// openAIEndpoint returns the path used for a mode.
func openAIEndpoint(mode model.GenerationMode) string {
	if mode == model.ModeText {
		return "/v1/images/generations"
	}
	return "/v1/images/edits"
}

// SubmitImage generates images synchronously.
func (a *OpenAIAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	body := buildOpenAIImageRequest(req)
	url := joinURL(a.cfg.BaseURL, openAIEndpoint(req.Mode))

	var (
		httpReq *http.Request
		size    int
		err     error
	)
	switch req.Mode {
	case model.ModeText:
		httpReq, size, err = newJSONRequest(ctx, http.MethodPost, url, body)
	case model.ModeSingleImage, model.ModeReferences:
		httpReq, size, err = a.newEditRequest(ctx, url, req, body)
	default:
		return nil, unsupportedMode(model.ProviderOpenAI, req.ModelID, req.Mode)
	}
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", bearer(req.Credentials.Get(model.CredentialOpenAIAPIKey)))

	a.diag.Info("submit", append(requestFields(req),
		zap.String("endpoint", openAIEndpoint(req.Mode)),
		zap.String("size", body.Size),
		zap.String("quality", body.Quality),
		zap.Int("payload_bytes", size))...)

	var resp openAIImageResponse
	if _, err := a.http.doJSON(httpReq, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, model.Rejected(model.ProviderOpenAI, http.StatusOK, resp.Error.Message)
	}

	assets, err := openAIAssets(&resp)
	if err != nil {
		return nil, err
	}
	a.diag.Info("result", zap.Int("assets", len(assets)))
	return &model.GenerationResult{Assets: assets}, nil
}

func openAIAssets(resp *openAIImageResponse) ([]model.Asset, error) {
	assets := make([]model.Asset, 0, len(resp.Data))
	for _, d := range resp.Data {
		switch {
		case d.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, model.Malformed(model.ProviderOpenAI, "decode b64_json: %v", err)
			}
			assets = append(assets, model.Asset{Data: data, MimeType: "image/png"})
		case d.URL != "":
			assets = append(assets, model.Asset{URL: d.URL})
		}
	}
	if len(assets) == 0 {
		return nil, model.Rejected(model.ProviderOpenAI, http.StatusOK, "no images returned")
	}
	return assets, nil
}

// newEditRequest builds the multipart body of the edits endpoint.
func (a *OpenAIAdapter) newEditRequest(ctx context.Context, url string, req *model.AdapterRequest, body *openAIImageRequest) (*http.Request, int, error) {
	refs := req.Media.Ingredients()
	if req.Mode == model.ModeSingleImage {
		refs = []model.MediaRef{*req.Media.SingleSource()}
	}
	images, err := a.deps.Loader.LoadAll(ctx, refs)
	if err != nil {
		return nil, 0, err
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := map[string]string{
		"model":   body.Model,
		"prompt":  body.Prompt,
		"n":       strconv.Itoa(body.N),
		"size":    body.Size,
		"quality": body.Quality,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, 0, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for i, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="image_%d%s"`, i, extensionFor(img.MimeType)))
		h.Set("Content-Type", img.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, 0, fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, 0, fmt.Errorf("write image part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, buf.Len(), nil
}

// SubmitVideo is not supported by OpenAI.
func (a *OpenAIAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	return nil, unsupportedKind(model.ProviderOpenAI, model.MediaKindVideo)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*OpenAIAdapter)(nil)
