package store

import (
	"context"
	"sort"
	"sync"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
)

// InMemoryRepairHistoryStore implements RepairHistoryStore in process memory
type InMemoryRepairHistoryStore struct {
	data map[uuid.UUID]map[model.LongTokenRange]model.VnodeRepairState
	mu   sync.RWMutex
}

// NewInMemoryRepairHistoryStore creates an empty history store
func NewInMemoryRepairHistoryStore() *InMemoryRepairHistoryStore {
	return &InMemoryRepairHistoryStore{
		data: make(map[uuid.UUID]map[model.LongTokenRange]model.VnodeRepairState),
	}
}

// LoadRepairHistory implements RepairHistoryStore
func (s *InMemoryRepairHistoryStore) LoadRepairHistory(ctx context.Context, tableID uuid.UUID) ([]model.VnodeRepairState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]model.VnodeRepairState, 0, len(s.data[tableID]))
	for _, state := range s.data[tableID] {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].TokenRange.Start != states[j].TokenRange.Start {
			return states[i].TokenRange.Start < states[j].TokenRange.Start
		}
		return states[i].TokenRange.End < states[j].TokenRange.End
	})
	return states, nil
}

// RecordRepair implements RepairHistoryStore
func (s *InMemoryRepairHistoryStore) RecordRepair(ctx context.Context, tableID uuid.UUID, state model.VnodeRepairState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, exists := s.data[tableID]
	if !exists {
		table = make(map[model.LongTokenRange]model.VnodeRepairState)
		s.data[tableID] = table
	}

	if current, exists := table[state.TokenRange]; exists && current.LastRepairedAt > state.LastRepairedAt {
		state = state.WithLastRepairedAt(current.LastRepairedAt)
	}
	table[state.TokenRange] = state
	return nil
}

// Ping always succeeds
func (s *InMemoryRepairHistoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *InMemoryRepairHistoryStore) Close() {}
