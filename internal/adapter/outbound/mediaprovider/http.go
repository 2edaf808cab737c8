package mediaprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/canvasflow/server/internal/model"
)

// maxErrorBody caps how much of an unparseable error body is echoed back.
const maxErrorBody = 512

// httpClient performs provider calls and turns failures into taxonomy errors.
type httpClient struct {
	client   *http.Client
	provider model.ProviderKind
	// errorPaths are gjson paths tried in order to extract the provider's message.
	errorPaths []string
}

// newJSONRequest builds a request with a JSON body.
func newJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, int, error) {
	var reader io.Reader
	size := 0
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		size = len(data)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, size, nil
}

// do executes req and returns the body of a 2xx response.
// Transport failures become ErrProviderUnavailable; non-2xx become ErrProviderRejected.
func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewProviderError(model.ErrProviderUnavailable, c.provider, 0, "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewProviderError(model.ErrProviderUnavailable, c.provider, resp.StatusCode, "read response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.Rejected(c.provider, resp.StatusCode, c.errorMessage(body))
	}
	return body, nil
}

// doJSON executes req and decodes a 2xx body into out.
func (c *httpClient) doJSON(req *http.Request, out any) ([]byte, error) {
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := c.decode(body, out); err != nil {
		return body, err
	}
	return body, nil
}

// decode unmarshals a provider body, reporting MalformedResponse on failure.
func (c *httpClient) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return model.Malformed(c.provider, "decode response: %v", err)
	}
	return nil
}

// errorMessage extracts the provider's message verbatim, falling back to the raw body.
func (c *httpClient) errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range c.errorPaths {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

// fetch downloads a result URL with optional headers.
func (c *httpClient) fetch(ctx context.Context, url string, header http.Header) (*model.LoadedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, model.NewProviderError(model.ErrDownloadFailed, c.provider, 0, "fetch result").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewProviderError(model.ErrDownloadFailed, c.provider, resp.StatusCode, "fetch result")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewProviderError(model.ErrDownloadFailed, c.provider, resp.StatusCode, "read result").WithCause(err)
	}
	return &model.LoadedMedia{Data: data, MimeType: resp.Header.Get("Content-Type")}, nil
}

func bearer(token string) string {
	return "Bearer " + token
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
