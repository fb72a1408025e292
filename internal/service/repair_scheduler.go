package service

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RepairJobRegistry is the write side of the repair scheduler used by the
// configuration provider
type RepairJobRegistry interface {
	PutConfiguration(table *model.TableReference, config model.RepairConfiguration)
	RemoveConfiguration(table *model.TableReference)
}

// VnodeStateInitializer seeds the vnode state of a newly tracked table
type VnodeStateInitializer interface {
	Initialize(table *model.TableReference)
}

// repairJob is published as a whole; it is never modified after creation
type repairJob struct {
	id     uuid.UUID
	table  *model.TableReference
	config model.RepairConfiguration
}

// RepairScheduler tracks the repair configuration of every table and
// serves their current repair state
type RepairScheduler struct {
	jobs        sync.Map // *model.TableReference -> *repairJob
	locks       sync.Map // *model.TableReference -> *sync.Mutex
	count       int64
	vnodeStore  *store.VnodeStateStore
	aggregator  *RepairStateAggregator
	initializer VnodeStateInitializer
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewRepairScheduler creates a repair scheduler. initializer may be nil, in
// which case vnode state is left to whoever writes the store.
func NewRepairScheduler(
	vnodeStore *store.VnodeStateStore,
	aggregator *RepairStateAggregator,
	initializer VnodeStateInitializer,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *RepairScheduler {
	return &RepairScheduler{
		vnodeStore:  vnodeStore,
		aggregator:  aggregator,
		initializer: initializer,
		metrics:     metrics,
		logger:      logger,
	}
}

// PutConfiguration installs or replaces the configuration of a table.
// The disabled configuration removes the table. A new table's vnode state is
// seeded before its job becomes visible.
func (s *RepairScheduler) PutConfiguration(table *model.TableReference, config model.RepairConfiguration) {
	if config.IsDisabled() {
		s.RemoveConfiguration(table)
		return
	}

	mu := s.tableLock(table)
	mu.Lock()
	defer mu.Unlock()

	if existing, loaded := s.jobs.Load(table); loaded {
		if existing.(*repairJob).config.Equal(config) {
			return
		}
		replacement := &repairJob{id: uuid.New(), table: table, config: config}
		s.jobs.Store(table, replacement)
		s.metrics.RecordTransition("updated")
		s.logger.Info("Repair configuration updated",
			zap.String("table", table.String()),
			zap.String("job_id", replacement.id.String()),
			zap.Duration("repair_interval", config.RepairInterval))
		return
	}

	if s.initializer != nil {
		s.initializer.Initialize(table)
	}
	job := &repairJob{id: uuid.New(), table: table, config: config}
	s.jobs.Store(table, job)
	atomic.AddInt64(&s.count, 1)
	s.metrics.RecordTransition("added")
	s.logger.Info("Repair configuration added",
		zap.String("table", table.String()),
		zap.String("job_id", job.id.String()),
		zap.Duration("repair_interval", config.RepairInterval))
}

// RemoveConfiguration stops tracking a table. Untracked tables are ignored.
func (s *RepairScheduler) RemoveConfiguration(table *model.TableReference) {
	mu := s.tableLock(table)
	mu.Lock()
	defer mu.Unlock()

	existing, loaded := s.jobs.LoadAndDelete(table)
	if !loaded {
		return
	}
	atomic.AddInt64(&s.count, -1)
	s.vnodeStore.Remove(table)

	s.metrics.RecordTransition("removed")
	s.logger.Info("Repair configuration removed",
		zap.String("table", table.String()),
		zap.String("job_id", existing.(*repairJob).id.String()))
}

// tableLock serializes writers of one table; readers never take it
func (s *RepairScheduler) tableLock(table *model.TableReference) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(table, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// GetCurrentRepairJobs returns every tracked table with a freshly
// aggregated repair state, ordered by keyspace.table
func (s *RepairScheduler) GetCurrentRepairJobs() []model.RepairJobView {
	views := make([]model.RepairJobView, 0, s.Size())
	s.jobs.Range(func(_, value interface{}) bool {
		views = append(views, s.view(value.(*repairJob)))
		return true
	})
	sort.Slice(views, func(i, j int) bool {
		return views[i].TableReference.String() < views[j].TableReference.String()
	})
	return views
}

// GetRepairJob looks up a tracked table by keyspace.table, ignoring case
func (s *RepairScheduler) GetRepairJob(name string) (model.RepairJobView, error) {
	var found *repairJob
	s.jobs.Range(func(_, value interface{}) bool {
		job := value.(*repairJob)
		if strings.EqualFold(job.table.String(), name) {
			found = job
			return false
		}
		return true
	})
	if found == nil {
		return model.RepairJobView{}, errors.TableNotFound(name)
	}
	return s.view(found), nil
}

// IsTracked checks if the table has a repair job
func (s *RepairScheduler) IsTracked(table *model.TableReference) bool {
	_, ok := s.jobs.Load(table)
	return ok
}

// Size returns the number of tracked tables
func (s *RepairScheduler) Size() int {
	return int(atomic.LoadInt64(&s.count))
}

func (s *RepairScheduler) view(job *repairJob) model.RepairJobView {
	return model.RepairJobView{
		ID:                  job.id,
		TableReference:      job.table,
		RepairConfiguration: job.config,
		RepairStateSnapshot: s.aggregator.Aggregate(s.vnodeStore.Snapshot(job.table), job.config),
	}
}
