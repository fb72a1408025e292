package service

import (
	"sync"
	"sync/atomic"

	"github.com/devrev/pairdb/repairscheduler/internal/cluster"
	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TableReferenceFactory hands out one *model.TableReference per table id for
// the lifetime of the process, so references can be compared by pointer
type TableReferenceFactory struct {
	metadata   cluster.Metadata
	references sync.Map // uuid.UUID -> *model.TableReference
	size       int64
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewTableReferenceFactory creates a table reference factory
func NewTableReferenceFactory(metadata cluster.Metadata, metrics *metrics.Metrics, logger *zap.Logger) (*TableReferenceFactory, error) {
	if metadata == nil {
		return nil, errors.ConfigurationError("table reference factory requires cluster metadata")
	}
	return &TableReferenceFactory{
		metadata: metadata,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// ForTable resolves a table by name against the live metadata. It returns
// false when the keyspace or table does not exist.
func (f *TableReferenceFactory) ForTable(keyspace, table string) (*model.TableReference, bool) {
	ks, exists := f.metadata.Keyspace(keyspace)
	if !exists {
		return nil, false
	}
	tm, exists := ks.Table(table)
	if !exists {
		return nil, false
	}
	return f.ForTableMetadata(tm), true
}

// ForTableMetadata returns the reference for a table the caller already has
// metadata for, such as a table carried in a removal event
func (f *TableReferenceFactory) ForTableMetadata(tm model.TableMetadata) *model.TableReference {
	if ref, ok := f.references.Load(tm.ID); ok {
		return ref.(*model.TableReference)
	}

	ref, loaded := f.references.LoadOrStore(tm.ID, model.NewTableReference(tm.ID, tm.Keyspace, tm.Name))
	if !loaded {
		size := atomic.AddInt64(&f.size, 1)
		f.metrics.UpdateTableReferences(int(size))
		f.logger.Debug("Created table reference",
			zap.String("table", tm.Keyspace+"."+tm.Name),
			zap.String("table_id", tm.ID.String()))
	}
	return ref.(*model.TableReference)
}

// Lookup returns the cached reference for a table id
func (f *TableReferenceFactory) Lookup(id uuid.UUID) (*model.TableReference, bool) {
	ref, ok := f.references.Load(id)
	if !ok {
		return nil, false
	}
	return ref.(*model.TableReference), true
}

// Size returns the number of cached references
func (f *TableReferenceFactory) Size() int {
	return int(atomic.LoadInt64(&f.size))
}
