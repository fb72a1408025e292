package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// RepairHistoryStore persists the last successful repair of every range
type RepairHistoryStore interface {
	// LoadRepairHistory returns the recorded vnode states of a table. The
	// replica sets are those recorded at repair time.
	LoadRepairHistory(ctx context.Context, tableID uuid.UUID) ([]model.VnodeRepairState, error)
	RecordRepair(ctx context.Context, tableID uuid.UUID, state model.VnodeRepairState) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// IdempotencyStore remembers processed request keys
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetNX stores the value only when the key is absent and reports whether
	// it was stored
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
