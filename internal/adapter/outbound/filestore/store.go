// Package filestore persists generated content and its sidecar records on local disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// DefaultURLPrefix is the path content blobs are served under.
const DefaultURLPrefix = "/content"

const recordExt = ".json"

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,200}$`)

// Store implements ContentStorePort on a directory tree:
// {root}/images and {root}/videos, each holding blobs and {id}.json sidecars.
type Store struct {
	root      string
	urlPrefix string
	logger    *zap.Logger
}

// New creates the content directories under root.
func New(root, urlPrefix string, logger *zap.Logger) (*Store, error) {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		root:      root,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		logger:    logger.Named("filestore"),
	}
	for _, kind := range model.MediaKinds() {
		if err := os.MkdirAll(s.Dir(kind), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", kind, err)
		}
	}
	return s, nil
}

// Dir returns the directory holding a kind's content.
func (s *Store) Dir(kind model.MediaKind) string {
	return filepath.Join(s.root, kind.Dir())
}

// URLPrefix returns the path content is served under.
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

func validFilename(name string) bool {
	return filenamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// WriteBlob writes a content blob atomically.
func (s *Store) WriteBlob(ctx context.Context, kind model.MediaKind, filename string, data []byte) error {
	if !validFilename(filename) {
		return fmt.Errorf("invalid content filename %q", filename)
	}
	return writeAtomic(s.Dir(kind), filename, data)
}

// ReadBlob reads a content blob.
func (s *Store) ReadBlob(ctx context.Context, kind model.MediaKind, filename string) ([]byte, error) {
	if !validFilename(filename) {
		return nil, fmt.Errorf("%w: %s", model.ErrRecordNotFound, filename)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(kind), filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", model.ErrRecordNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// DeleteBlob removes a content blob.
func (s *Store) DeleteBlob(ctx context.Context, kind model.MediaKind, filename string) error {
	if !validFilename(filename) {
		return fmt.Errorf("%w: %s", model.ErrRecordNotFound, filename)
	}
	return remove(filepath.Join(s.Dir(kind), filename))
}

// WriteRecord writes {id}.json next to the blob, replacing any previous sidecar.
func (s *Store) WriteRecord(ctx context.Context, record *model.GenerationRecord) error {
	if !model.ValidGenerationID(record.ID) {
		return fmt.Errorf("invalid record id %q", record.ID)
	}
	if !record.Type.Valid() {
		return fmt.Errorf("invalid record type %q", record.Type)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return writeAtomic(s.Dir(record.Type), record.ID+recordExt, data)
}

// ReadRecord reads a sidecar by id.
func (s *Store) ReadRecord(ctx context.Context, kind model.MediaKind, id string) (*model.GenerationRecord, error) {
	if !model.ValidGenerationID(id) {
		return nil, model.ErrRecordNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(kind), id+recordExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var record model.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &record, nil
}

// DeleteRecord removes a sidecar by id.
func (s *Store) DeleteRecord(ctx context.Context, kind model.MediaKind, id string) error {
	if !model.ValidGenerationID(id) {
		return model.ErrRecordNotFound
	}
	return remove(filepath.Join(s.Dir(kind), id+recordExt))
}

// ListRecords returns every readable sidecar of a kind, oldest first.
func (s *Store) ListRecords(ctx context.Context, kind model.MediaKind) ([]*model.GenerationRecord, error) {
	entries, err := os.ReadDir(s.Dir(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	var records []*model.GenerationRecord
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		record, err := s.ReadRecord(ctx, kind, strings.TrimSuffix(name, recordExt))
		if err != nil {
			s.logger.Warn("skipping unreadable record", zap.String("file", name), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ContentURL returns the stable URL a blob is served under.
func (s *Store) ContentURL(kind model.MediaKind, filename string) string {
	return s.urlPrefix + "/" + kind.Dir() + "/" + filename
}

// ParseContentURL maps a content URL or path back to its kind and filename.
// Absolute URLs are accepted as long as their path is a content path.
func (s *Store) ParseContentURL(ref string) (model.MediaKind, string, bool) {
	p := ref
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", "", false
		}
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	rest, ok := strings.CutPrefix(p, s.urlPrefix+"/")
	if !ok {
		return "", "", false
	}
	dir, filename, ok := strings.Cut(rest, "/")
	if !ok || !validFilename(filename) {
		return "", "", false
	}
	for _, kind := range model.MediaKinds() {
		if kind.Dir() == dir {
			return kind, filename, true
		}
	}
	return "", "", false
}

// writeAtomic writes data to a temp file in dir and renames it into place.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Compile-time interface check
var _ outbound.ContentStorePort = (*Store)(nil)
