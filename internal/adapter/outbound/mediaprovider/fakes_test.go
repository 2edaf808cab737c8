package mediaprovider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
)

type fakeLoader struct{}

func (fakeLoader) Load(ctx context.Context, ref *model.MediaRef) (*model.LoadedMedia, error) {
	if ref.IsZero() {
		return nil, model.InvalidMedia("empty ref")
	}
	return &model.LoadedMedia{Data: []byte("bytes:" + ref.URL), MimeType: "image/png"}, nil
}

func (l fakeLoader) LoadAll(ctx context.Context, refs []model.MediaRef) ([]*model.LoadedMedia, error) {
	out := make([]*model.LoadedMedia, 0, len(refs))
	for i := range refs {
		m, err := l.Load(ctx, &refs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, ref *model.MediaRef) (string, error) {
	if ref.IsRemote() {
		return ref.URL, nil
	}
	return "https://cdn.test/" + path.Base(ref.URL), nil
}

type fakeNormalizer struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNormalizer) Normalize(ctx context.Context, data []byte, aspectRatio, resolution string) (*model.NormalizedMedia, error) {
	n.mu.Lock()
	n.calls = append(n.calls, aspectRatio+"@"+resolution)
	n.mu.Unlock()
	return &model.NormalizedMedia{Data: data, MimeType: "image/jpeg", Width: 1280, Height: 720}, nil
}

func testDeps(client *http.Client) (Deps, *fakeNormalizer) {
	norm := &fakeNormalizer{}
	return Deps{
		Client: client,
		Poller: task.NewPoller(&task.Config{
			Interval:             5 * time.Millisecond,
			MaxWait:              2 * time.Second,
			CheckTimeout:         time.Second,
			MaxConsecutiveErrors: 2,
		}, nil),
		Loader:     fakeLoader{},
		Resolver:   fakeResolver{},
		Normalizer: norm,
	}, norm
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		UploadURL:    baseURL,
		PollInterval: 5 * time.Millisecond,
		ImageTimeout: 2 * time.Second,
		VideoTimeout: 2 * time.Second,
	}
}

func adapterRequest(kind model.MediaKind, modelID string, mode model.GenerationMode, creds model.Credentials) *model.AdapterRequest {
	return &model.AdapterRequest{
		GenerationRequest: &model.GenerationRequest{
			Kind:    kind,
			ModelID: modelID,
			Prompt:  "a lighthouse at dusk",
		},
		Mode:        mode,
		Credentials: creds,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}
