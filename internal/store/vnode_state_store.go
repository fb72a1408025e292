package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
)

// VnodeStateStore holds the per-range repair state of every table.
// Writers of one table are serialized by that table's lock; readers load an
// immutable snapshot without locking.
type VnodeStateStore struct {
	tables sync.Map // *model.TableReference -> *tableStates
}

type tableStates struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[model.VnodeRepairStates]
}

// NewVnodeStateStore creates an empty store
func NewVnodeStateStore() *VnodeStateStore {
	return &VnodeStateStore{}
}

func (s *VnodeStateStore) entry(table *model.TableReference) *tableStates {
	if e, ok := s.tables.Load(table); ok {
		return e.(*tableStates)
	}
	fresh := &tableStates{}
	empty := model.NewVnodeRepairStatesBuilder().Build()
	fresh.snapshot.Store(&empty)
	e, _ := s.tables.LoadOrStore(table, fresh)
	return e.(*tableStates)
}

// Upsert replaces the record for exactly this token range
func (s *VnodeStateStore) Upsert(table *model.TableReference, tokenRange model.LongTokenRange, replicas []model.Host, lastRepairedAt int64) {
	e := s.entry(table)
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.snapshot.Load()
	states := current.States()
	replacement := model.NewVnodeRepairState(tokenRange, replicas, lastRepairedAt)

	builder := model.NewVnodeRepairStatesBuilder()
	for _, state := range states {
		if state.TokenRange != tokenRange {
			builder.Add(state)
		}
	}
	next := builder.Add(replacement).Build()
	e.snapshot.Store(&next)
}

// Snapshot returns the ordered vnode states of a table. Unknown tables
// yield an empty collection.
func (s *VnodeStateStore) Snapshot(table *model.TableReference) model.VnodeRepairStates {
	if e, ok := s.tables.Load(table); ok {
		return *e.(*tableStates).snapshot.Load()
	}
	return model.NewVnodeRepairStatesBuilder().Build()
}

// Update applies fn to the current states of a table and publishes the result
// atomically with respect to other writers of the same table
func (s *VnodeStateStore) Update(table *model.TableReference, fn func(current model.VnodeRepairStates) model.VnodeRepairStates) {
	e := s.entry(table)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := fn(*e.snapshot.Load())
	e.snapshot.Store(&next)
}

// UpdateExisting is Update for tables that already have an entry. It reports
// false and does nothing for unknown tables.
func (s *VnodeStateStore) UpdateExisting(table *model.TableReference, fn func(current model.VnodeRepairStates) model.VnodeRepairStates) bool {
	value, ok := s.tables.Load(table)
	if !ok {
		return false
	}
	e := value.(*tableStates)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := fn(*e.snapshot.Load())
	e.snapshot.Store(&next)
	return true
}

// Replace supersedes the whole collection of a table
func (s *VnodeStateStore) Replace(table *model.TableReference, states model.VnodeRepairStates) {
	s.Update(table, func(model.VnodeRepairStates) model.VnodeRepairStates {
		return states
	})
}

// Remove drops all state of a table
func (s *VnodeStateStore) Remove(table *model.TableReference) {
	s.tables.Delete(table)
}

// Contains checks if the table has an entry
func (s *VnodeStateStore) Contains(table *model.TableReference) bool {
	_, ok := s.tables.Load(table)
	return ok
}

// Tables returns the tables with state ordered by keyspace.table
func (s *VnodeStateStore) Tables() []*model.TableReference {
	tables := make([]*model.TableReference, 0)
	s.tables.Range(func(key, _ interface{}) bool {
		tables = append(tables, key.(*model.TableReference))
		return true
	})
	sort.Slice(tables, func(i, j int) bool { return tables[i].String() < tables[j].String() })
	return tables
}
