package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "", nil)
	require.NoError(t, err)
	return s
}

func testRecord(id, filename string, kind model.MediaKind) *model.GenerationRecord {
	return &model.GenerationRecord{
		ID:          id,
		Filename:    filename,
		Prompt:      "a red fox",
		ModelID:     "gemini-2.5-flash-image",
		AspectRatio: "1:1",
		Resolution:  "1k",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Type:        kind,
	}
}

func TestStore_BlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}

	require.NoError(t, s.WriteBlob(ctx, model.MediaKindImage, "gemini_image_1_abcd1234.png", data))
	got, err := s.ReadBlob(ctx, model.MediaKindImage, "gemini_image_1_abcd1234.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.DeleteBlob(ctx, model.MediaKindImage, "gemini_image_1_abcd1234.png"))
	_, err = s.ReadBlob(ctx, model.MediaKindImage, "gemini_image_1_abcd1234.png")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestStore_RejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.WriteBlob(ctx, model.MediaKindImage, "../escape.png", []byte("x")))
	assert.Error(t, s.WriteBlob(ctx, model.MediaKindImage, "a/b.png", []byte("x")))
	_, err := s.ReadBlob(ctx, model.MediaKindImage, "../../etc/passwd")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := testRecord("corr-1", "kie_video_1_00ff00ff.mp4", model.MediaKindVideo)
	rec.ProviderTaskID = "task-9"

	require.NoError(t, s.WriteRecord(ctx, rec))
	assert.FileExists(t, filepath.Join(s.Dir(model.MediaKindVideo), "corr-1.json"))

	got, err := s.ReadRecord(ctx, model.MediaKindVideo, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.ReadRecord(ctx, model.MediaKindImage, "corr-1")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)

	require.NoError(t, s.DeleteRecord(ctx, model.MediaKindVideo, "corr-1"))
	assert.ErrorIs(t, s.DeleteRecord(ctx, model.MediaKindVideo, "corr-1"), model.ErrRecordNotFound)
}

func TestStore_WriteRecordReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRecord(ctx, testRecord("same", "a.png", model.MediaKindImage)))
	require.NoError(t, s.WriteRecord(ctx, testRecord("same", "b.png", model.MediaKindImage)))

	got, err := s.ReadRecord(ctx, model.MediaKindImage, "same")
	require.NoError(t, err)
	assert.Equal(t, "b.png", got.Filename)
}

func TestStore_RecordJSONFields(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteRecord(context.Background(), testRecord("fields", "x.png", model.MediaKindImage)))

	raw, err := os.ReadFile(filepath.Join(s.Dir(model.MediaKindImage), "fields.json"))
	require.NoError(t, err)
	for _, key := range []string{`"id"`, `"filename"`, `"prompt"`, `"modelId"`, `"aspectRatio"`, `"resolution"`, `"createdAt"`, `"type"`} {
		assert.Contains(t, string(raw), key)
	}
	assert.NotContains(t, string(raw), "providerTaskId")
}

func TestStore_InvalidID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.WriteRecord(ctx, testRecord("../x", "x.png", model.MediaKindImage)))
	_, err := s.ReadRecord(ctx, model.MediaKindImage, "has space")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestStore_ListRecordsSkipsGarbage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testRecord("older", "1.png", model.MediaKindImage)
	newer := testRecord("newer", "2.png", model.MediaKindImage)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	require.NoError(t, s.WriteRecord(ctx, newer))
	require.NoError(t, s.WriteRecord(ctx, older))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(model.MediaKindImage), "broken.json"), []byte("{"), 0o644))
	require.NoError(t, s.WriteBlob(ctx, model.MediaKindImage, "1.png", []byte("x")))

	records, err := s.ListRecords(ctx, model.MediaKindImage)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "older", records[0].ID)
	assert.Equal(t, "newer", records[1].ID)
}

func TestStore_ContentURL(t *testing.T) {
	s := newTestStore(t)

	u := s.ContentURL(model.MediaKindVideo, "hailuo_video_1_deadbeef.mp4")
	assert.Equal(t, "/content/videos/hailuo_video_1_deadbeef.mp4", u)

	tests := []struct {
		ref      string
		kind     model.MediaKind
		filename string
		ok       bool
	}{
		{u, model.MediaKindVideo, "hailuo_video_1_deadbeef.mp4", true},
		{"http://localhost:8080/content/images/a.png?x=1", model.MediaKindImage, "a.png", true},
		{"/content/images/a.png#frag", model.MediaKindImage, "a.png", true},
		{"/content/audio/a.mp3", "", "", false},
		{"/content/images/../secret", "", "", false},
		{"https://cdn.example.com/a.png", "", "", false},
		{"data:image/png;base64,AAAA", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			kind, filename, ok := s.ParseContentURL(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.filename, filename)
		})
	}
}

func TestMemoryIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	rec := testRecord("id-1", "kie_video_1.mp4", model.MediaKindVideo)
	require.NoError(t, idx.Put(ctx, rec))

	got, err := idx.Lookup(ctx, "kie_video_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	got.ID = "mutated"
	again, err := idx.Lookup(ctx, "kie_video_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "id-1", again.ID)

	require.NoError(t, idx.Remove(ctx, "kie_video_1.mp4"))
	_, err = idx.Lookup(ctx, "kie_video_1.mp4")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestWarm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRecord(ctx, testRecord("img", "a.png", model.MediaKindImage)))
	require.NoError(t, s.WriteRecord(ctx, testRecord("vid", "b.mp4", model.MediaKindVideo)))

	idx := NewMemoryIndex()
	n, err := Warm(ctx, s, idx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.Len())

	got, err := idx.Lookup(ctx, "b.mp4")
	require.NoError(t, err)
	assert.Equal(t, model.MediaKindVideo, got.Type)
}
