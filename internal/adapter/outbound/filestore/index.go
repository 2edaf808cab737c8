package filestore

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// MemoryIndex implements RecordIndexPort in process memory.
// Entries never expire; the index is rebuilt by Warm on startup.
type MemoryIndex struct {
	entries *cache.Cache
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: cache.New(cache.NoExpiration, 0)}
}

// Put indexes a record by its filename.
func (i *MemoryIndex) Put(ctx context.Context, record *model.GenerationRecord) error {
	if record.Filename == "" {
		return fmt.Errorf("record %s has no filename", record.ID)
	}
	clone := *record
	i.entries.Set(record.Filename, &clone, cache.NoExpiration)
	return nil
}

// Lookup returns the record for a filename.
func (i *MemoryIndex) Lookup(ctx context.Context, filename string) (*model.GenerationRecord, error) {
	v, ok := i.entries.Get(filename)
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	clone := *v.(*model.GenerationRecord)
	return &clone, nil
}

// Remove drops a filename from the index.
func (i *MemoryIndex) Remove(ctx context.Context, filename string) error {
	i.entries.Delete(filename)
	return nil
}

// Len returns the number of indexed filenames.
func (i *MemoryIndex) Len() int {
	return i.entries.ItemCount()
}

// Warm loads every sidecar of the store into the index and returns how many were indexed.
func Warm(ctx context.Context, store outbound.ContentStorePort, index outbound.RecordIndexPort) (int, error) {
	n := 0
	for _, kind := range model.MediaKinds() {
		records, err := store.ListRecords(ctx, kind)
		if err != nil {
			return n, err
		}
		for _, r := range records {
			if err := index.Put(ctx, r); err != nil {
				return n, fmt.Errorf("index %s: %w", r.Filename, err)
			}
			n++
		}
	}
	return n, nil
}

// Compile-time interface check
var _ outbound.RecordIndexPort = (*MemoryIndex)(nil)
