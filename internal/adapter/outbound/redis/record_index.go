package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

const recordIndexKeyPrefix = "canvas:records:"

// RecordIndexAdapter implements RecordIndexPort on Redis so several
// server instances sharing a content volume see the same index.
type RecordIndexAdapter struct {
	client redis.UniversalClient
}

// NewRecordIndexAdapter creates a new Redis record index.
func NewRecordIndexAdapter(client redis.UniversalClient) *RecordIndexAdapter {
	return &RecordIndexAdapter{client: client}
}

func (a *RecordIndexAdapter) Put(ctx context.Context, record *model.GenerationRecord) error {
	if record.Filename == "" {
		return fmt.Errorf("record %s has no filename", record.ID)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := a.client.Set(ctx, recordIndexKeyPrefix+record.Filename, data, 0).Err(); err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}

func (a *RecordIndexAdapter) Lookup(ctx context.Context, filename string) (*model.GenerationRecord, error) {
	data, err := a.client.Get(ctx, recordIndexKeyPrefix+filename).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	var record model.GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

func (a *RecordIndexAdapter) Remove(ctx context.Context, filename string) error {
	if err := a.client.Del(ctx, recordIndexKeyPrefix+filename).Err(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Compile-time interface check
var _ outbound.RecordIndexPort = (*RecordIndexAdapter)(nil)
