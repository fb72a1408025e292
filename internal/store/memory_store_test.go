package store

import (
	"context"
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepairHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryRepairHistoryStore()
	tableID := uuid.New()

	r1 := model.NewLongTokenRange(10, 20)
	r2 := model.NewLongTokenRange(0, 10)

	require.NoError(t, s.RecordRepair(ctx, tableID, model.NewVnodeRepairState(r1, replicasAB, 200)))
	require.NoError(t, s.RecordRepair(ctx, tableID, model.NewVnodeRepairState(r2, replicasAB, 100)))
	// Older report does not move time backwards
	require.NoError(t, s.RecordRepair(ctx, tableID, model.NewVnodeRepairState(r1, replicasAC, 150)))

	states, err := s.LoadRepairHistory(ctx, tableID)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, r2, states[0].TokenRange)
	assert.Equal(t, r1, states[1].TokenRange)
	assert.Equal(t, int64(200), states[1].LastRepairedAt)
	assert.Equal(t, []string{"a", "c"}, states[1].ReplicaIDs())

	empty, err := s.LoadRepairHistory(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryIdempotencyStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryIdempotencyStore(10)
	defer s.Close()

	stored, err := s.SetNX(ctx, "key", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.SetNX(ctx, "key", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), value)

	require.NoError(t, s.Delete(ctx, "key"))
	_, err = s.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryIdempotencyStore(10)
	defer s.Close()

	now := time.Now()
	s.mu.Lock()
	s.now = func() time.Time { return now }
	s.mu.Unlock()

	_, err := s.SetNX(ctx, "key", []byte("v"), time.Second)
	require.NoError(t, err)

	s.mu.Lock()
	s.now = func() time.Time { return now.Add(2 * time.Second) }
	s.mu.Unlock()

	_, err = s.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := s.SetNX(ctx, "key", []byte("v2"), time.Second)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestInMemoryIdempotencyStore_Eviction(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryIdempotencyStore(2)
	defer s.Close()

	_, _ = s.SetNX(ctx, "a", []byte("a"), time.Minute)
	_, _ = s.SetNX(ctx, "b", []byte("b"), 2*time.Minute)
	_, _ = s.SetNX(ctx, "c", []byte("c"), 3*time.Minute)

	assert.Equal(t, 2, s.Size())
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
