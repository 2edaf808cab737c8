package mediaio

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/adapter/outbound/filestore"
	"github.com/canvasflow/server/internal/model"
)

func pngBytes(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(t.TempDir(), "", nil)
	require.NoError(t, err)
	return s
}

// ===== Loader =====

func TestLoader_DataURI(t *testing.T) {
	l := NewLoader(nil, nil, LoaderConfig{}, nil)
	ctx := context.Background()

	m, err := l.Load(ctx, &model.MediaRef{URL: "data:image/png;base64,aGVsbG8="})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), m.Data)
	assert.Equal(t, "image/png", m.MimeType)

	m, err = l.Load(ctx, &model.MediaRef{URL: "data:text/plain,a%20b"})
	require.NoError(t, err)
	assert.Equal(t, []byte("a b"), m.Data)

	_, err = l.Load(ctx, &model.MediaRef{URL: "data:image/png;base64,!!!"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)

	_, err = l.Load(ctx, &model.MediaRef{URL: "data:image/png;base64"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestLoader_InlineBytesSniffed(t *testing.T) {
	l := NewLoader(nil, nil, LoaderConfig{}, nil)
	data := pngBytes(t, 4, 4, 255)

	m, err := l.Load(context.Background(), &model.MediaRef{Data: data})
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MimeType)
}

func TestLoader_RemoteCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), nil, LoaderConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m, err := l.Load(ctx, &model.MediaRef{URL: srv.URL + "/a.jpg"})
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", m.MimeType)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := l.Load(ctx, &model.MediaRef{URL: srv.URL + "/missing.png"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestLoader_RemoteTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), nil, LoaderConfig{MaxBytes: 10}, nil)
	_, err := l.Load(context.Background(), &model.MediaRef{URL: srv.URL + "/big"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestLoader_LocalContent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	data := pngBytes(t, 4, 4, 255)
	require.NoError(t, store.WriteBlob(ctx, model.MediaKindImage, "gemini_image_1_aa.png", data))

	l := NewLoader(nil, store, LoaderConfig{}, nil)
	m, err := l.Load(ctx, &model.MediaRef{URL: "/content/images/gemini_image_1_aa.png"})
	require.NoError(t, err)
	assert.Equal(t, data, m.Data)
	assert.Equal(t, "image/png", m.MimeType)

	_, err = l.Load(ctx, &model.MediaRef{URL: "/content/images/nope.png"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)

	_, err = l.Load(ctx, &model.MediaRef{URL: "relative/thing.png"})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestLoader_LoadAllPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(30 * time.Millisecond)
		}
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), nil, LoaderConfig{}, nil)
	refs := []model.MediaRef{
		{URL: srv.URL + "/slow"},
		{URL: "data:text/plain,inline"},
		{URL: srv.URL + "/fast"},
	}
	out, err := l.LoadAll(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "/slow", string(out[0].Data))
	assert.Equal(t, "inline", string(out[1].Data))
	assert.Equal(t, "/fast", string(out[2].Data))

	_, err = l.LoadAll(context.Background(), []model.MediaRef{{URL: "data:x;base64,%%%"}})
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"mp4", []byte("\x00\x00\x00\x18ftypisom\x00\x00"), "video/mp4"},
		{"mov", []byte("\x00\x00\x00\x14ftypqt  \x00\x00"), "video/quicktime"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"webm", []byte{0x1a, 0x45, 0xdf, 0xa3, 0, 0}, "video/webm"},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.data))
		})
	}
}

// ===== Resolver =====

type recordingStorage struct {
	puts   map[string][]byte
	putErr error
}

func (s *recordingStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, _ := io.ReadAll(r)
	if s.puts == nil {
		s.puts = map[string][]byte{}
	}
	s.puts[key] = data
	return nil
}

func (s *recordingStorage) Delete(ctx context.Context, key string) error { return nil }

func (s *recordingStorage) GetPresignedURL(ctx context.Context, key string, d time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?sig=1", nil
}

func TestIsPublicURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a.png", true},
		{"http://203.0.113.9/a.png", true},
		{"http://localhost:8080/content/images/a.png", false},
		{"http://app.localhost/a.png", false},
		{"http://127.0.0.1/a.png", false},
		{"http://10.1.2.3/a.png", false},
		{"http://192.168.0.4/a.png", false},
		{"http://169.254.1.1/a.png", false},
		{"http://[::1]/a.png", false},
		{"http://0.0.0.0/a.png", false},
		{"ftp://example.com/a.png", false},
		{"/content/images/a.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPublicURL(tt.url))
		})
	}
}

func TestResolver(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	data := pngBytes(t, 4, 4, 255)
	require.NoError(t, store.WriteBlob(ctx, model.MediaKindImage, "a.png", data))
	loader := NewLoader(nil, store, LoaderConfig{}, nil)

	t.Run("public url passes through", func(t *testing.T) {
		r := NewResolver(loader, store, nil, ResolverConfig{}, nil)
		got, err := r.Resolve(ctx, &model.MediaRef{URL: "https://cdn.example.com/x.png"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/x.png", got)
	})

	t.Run("content path rewritten against public base", func(t *testing.T) {
		r := NewResolver(loader, store, nil, ResolverConfig{PublicBaseURL: "https://canvas.example.com/"}, nil)
		got, err := r.Resolve(ctx, &model.MediaRef{URL: "http://localhost:8080/content/images/a.png"})
		require.NoError(t, err)
		assert.Equal(t, "https://canvas.example.com/content/images/a.png", got)
	})

	t.Run("inline data uploaded", func(t *testing.T) {
		storage := &recordingStorage{}
		r := NewResolver(loader, store, storage, ResolverConfig{UploadPrefix: "staging"}, nil)
		got, err := r.Resolve(ctx, &model.MediaRef{Data: data})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, "https://bucket.test/staging/"), got)
		assert.True(t, strings.Contains(got, ".png?"), got)
		require.Len(t, storage.puts, 1)
		for _, v := range storage.puts {
			assert.Equal(t, data, v)
		}
	})

	t.Run("no storage", func(t *testing.T) {
		r := NewResolver(loader, store, nil, ResolverConfig{}, nil)
		_, err := r.Resolve(ctx, &model.MediaRef{URL: "data:image/png;base64,aGVsbG8="})
		assert.ErrorIs(t, err, model.ErrUploadFailed)
	})

	t.Run("storage failure", func(t *testing.T) {
		r := NewResolver(loader, store, &recordingStorage{putErr: errors.New("denied")}, ResolverConfig{}, nil)
		_, err := r.Resolve(ctx, &model.MediaRef{URL: "/content/images/a.png"})
		assert.ErrorIs(t, err, model.ErrUploadFailed)
		assert.Contains(t, err.Error(), "denied")
	})
}

// ===== Normalizer =====

func TestNormalizer(t *testing.T) {
	n := NewNormalizer()
	ctx := context.Background()

	tests := []struct {
		name       string
		src        []byte
		aspect     string
		resolution string
		w, h       int
		mime       string
	}{
		{"landscape crop to 16:9 720p", jpegBytes(t, 400, 400), "16:9", "720p", 1280, 720, "image/jpeg"},
		{"portrait 9:16 1080p", jpegBytes(t, 300, 200), "9:16", "1080p", 1080, 1920, "image/jpeg"},
		{"square 1k upscales", pngBytes(t, 64, 32, 255), "1:1", "1K", 1024, 1024, "image/jpeg"},
		{"alpha stays png", pngBytes(t, 40, 40, 100), "1:1", "512p", 512, 512, "image/png"},
		{"auto keeps source ratio", pngBytes(t, 200, 100, 255), "auto", "720p", 1440, 720, "image/jpeg"},
		{"auto resolution keeps crop size", jpegBytes(t, 301, 200), "1:1", "", 200, 200, "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(ctx, tt.src, tt.aspect, tt.resolution)
			require.NoError(t, err)
			assert.Equal(t, tt.w, out.Width)
			assert.Equal(t, tt.h, out.Height)
			assert.Equal(t, tt.mime, out.MimeType)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.w, cfg.Width)
			assert.Equal(t, tt.h, cfg.Height)
		})
	}
}

func TestNormalizer_InvalidInput(t *testing.T) {
	_, err := NewNormalizer().Normalize(context.Background(), []byte("not an image"), "16:9", "720p")
	assert.ErrorIs(t, err, model.ErrInvalidMediaInput)
}

func TestParseAspectRatio(t *testing.T) {
	r, ok := ParseAspectRatio("16:9")
	assert.True(t, ok)
	assert.InDelta(t, 16.0/9.0, r, 1e-9)

	for _, s := range []string{"", "Auto", "16x9", "0:1", "a:b"} {
		_, ok := ParseAspectRatio(s)
		assert.False(t, ok, s)
	}
}

// ===== Downloader =====

func TestDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("\x00\x00\x00\x18ftypisom"))
		case "/empty":
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), 0)
	ctx := context.Background()

	m, err := d.Download(ctx, srv.URL+"/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", m.MimeType)

	_, err = d.Download(ctx, srv.URL+"/expired")
	assert.ErrorIs(t, err, model.ErrDownloadFailed)
	assert.Contains(t, err.Error(), "403")

	_, err = d.Download(ctx, srv.URL+"/empty")
	assert.ErrorIs(t, err, model.ErrDownloadFailed)
}
