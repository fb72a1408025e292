package service

import (
	"sync"

	"github.com/devrev/pairdb/repairscheduler/internal/cluster"
	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"go.uber.org/zap"
)

// RepairConfigurationFunc returns the repair configuration of a table
type RepairConfigurationFunc func(table *model.TableReference) model.RepairConfiguration

// WithDefaultRepairConfiguration applies the same configuration to every table
func WithDefaultRepairConfiguration(config model.RepairConfiguration) RepairConfigurationFunc {
	return func(*model.TableReference) model.RepairConfiguration {
		return config
	}
}

// SchemaNotifier is the cluster metadata together with its notification
// subscription
type SchemaNotifier interface {
	cluster.Metadata
	Register(listener cluster.SchemaChangeListener)
	Unregister(listener cluster.SchemaChangeListener)
	RegisterTopologyListener(listener cluster.TopologyListener)
	UnregisterTopologyListener(listener cluster.TopologyListener)
}

// RepairConfigurationProviderConfig holds the collaborators of the provider.
// All fields except Metrics and Logger are required.
type RepairConfigurationProviderConfig struct {
	Cluster                 SchemaNotifier
	ReplicatedTableProvider cluster.ReplicatedTableProvider
	RepairScheduler         RepairJobRegistry
	TableReferenceFactory   *TableReferenceFactory
	RepairConfiguration     RepairConfigurationFunc
	Metrics                 *metrics.Metrics
	Logger                  *zap.Logger
}

// RepairConfigurationProvider turns schema changes into repair
// configuration changes for the tables replicated to the local host
type RepairConfigurationProvider struct {
	cluster     SchemaNotifier
	replication cluster.ReplicatedTableProvider
	scheduler   RepairJobRegistry
	factory     *TableReferenceFactory
	configFn    RepairConfigurationFunc
	metrics     *metrics.Metrics
	logger      *zap.Logger

	pushed sync.Map // *model.TableReference -> struct{}

	// mu is held for reading by event handlers so Close can wait for an
	// in-flight event before draining
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewRepairConfigurationProvider validates its collaborators, seeds the
// configuration of every replicated table and subscribes to schema changes
func NewRepairConfigurationProvider(cfg RepairConfigurationProviderConfig) (*RepairConfigurationProvider, error) {
	switch {
	case cfg.Cluster == nil:
		return nil, errors.ConfigurationError("cluster metadata cannot be nil")
	case cfg.ReplicatedTableProvider == nil:
		return nil, errors.ConfigurationError("replicated table provider cannot be nil")
	case cfg.RepairScheduler == nil:
		return nil, errors.ConfigurationError("repair scheduler cannot be nil")
	case cfg.TableReferenceFactory == nil:
		return nil, errors.ConfigurationError("table reference factory cannot be nil")
	case cfg.RepairConfiguration == nil:
		return nil, errors.ConfigurationError("repair configuration function cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &RepairConfigurationProvider{
		cluster:     cfg.Cluster,
		replication: cfg.ReplicatedTableProvider,
		scheduler:   cfg.RepairScheduler,
		factory:     cfg.TableReferenceFactory,
		configFn:    cfg.RepairConfiguration,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}

	for _, ks := range p.cluster.Keyspaces() {
		if p.replication.Accept(ks.Name) {
			p.putKeyspace(ks)
		}
	}

	p.cluster.Register(p)
	p.cluster.RegisterTopologyListener(p)

	return p, nil
}

// OnSchemaChange implements cluster.SchemaChangeListener
func (p *RepairConfigurationProvider) OnSchemaChange(event model.SchemaEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.metrics.RecordSchemaEvent(event.Kind.String())

	switch event.Kind {
	case model.KeyspaceAdded:
		// Tables follow as TableAdded events
	case model.KeyspaceChanged:
		p.keyspaceChanged(event.Keyspace)
	case model.KeyspaceRemoved:
		for _, tm := range event.Keyspace.TableList() {
			p.remove(p.factory.ForTableMetadata(tm))
		}
	case model.TableAdded:
		p.tableAdded(event.Table)
	case model.TableRemoved:
		// The keyspace may be unreplicated or gone by now; removal of an
		// untracked table is a no-op
		p.remove(p.factory.ForTableMetadata(event.Table))
	case model.TableChanged, model.OtherObjectChanged:
	}
}

// OnTopologyChange implements cluster.TopologyListener. Ring membership
// decides whether keyspaces are replicated locally, so every keyspace is
// re-evaluated.
func (p *RepairConfigurationProvider) OnTopologyChange() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	for _, ks := range p.cluster.Keyspaces() {
		p.keyspaceChanged(ks)
	}
}

func (p *RepairConfigurationProvider) keyspaceChanged(ks model.KeyspaceMetadata) {
	if p.replication.Accept(ks.Name) {
		p.putKeyspace(ks)
		return
	}
	for _, tm := range ks.TableList() {
		p.remove(p.factory.ForTableMetadata(tm))
	}
}

func (p *RepairConfigurationProvider) tableAdded(tm model.TableMetadata) {
	if !p.replication.Accept(tm.Keyspace) {
		return
	}
	ref, ok := p.factory.ForTable(tm.Keyspace, tm.Name)
	if !ok {
		p.logger.Debug("Added table not visible in metadata, skipping",
			zap.String("table", tm.Keyspace+"."+tm.Name))
		return
	}
	p.put(ref)
}

func (p *RepairConfigurationProvider) putKeyspace(ks model.KeyspaceMetadata) {
	for _, tm := range ks.TableList() {
		ref, ok := p.factory.ForTable(ks.Name, tm.Name)
		if !ok {
			p.logger.Debug("Table not visible in metadata, skipping",
				zap.String("table", ks.Name+"."+tm.Name))
			continue
		}
		p.put(ref)
	}
}

func (p *RepairConfigurationProvider) put(ref *model.TableReference) {
	p.pushed.Store(ref, struct{}{})
	p.scheduler.PutConfiguration(ref, p.configFn(ref))
}

func (p *RepairConfigurationProvider) remove(ref *model.TableReference) {
	p.scheduler.RemoveConfiguration(ref)
	p.pushed.Delete(ref)
}

// Close unsubscribes and removes the configuration of every table. Events
// delivered after Close are ignored.
func (p *RepairConfigurationProvider) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cluster.Unregister(p)
		p.cluster.UnregisterTopologyListener(p)

		for _, ks := range p.cluster.Keyspaces() {
			for _, tm := range ks.TableList() {
				p.remove(p.factory.ForTableMetadata(tm))
			}
		}
		p.pushed.Range(func(key, _ interface{}) bool {
			p.remove(key.(*model.TableReference))
			return true
		})

		p.logger.Info("Repair configuration provider closed")
	})
}
