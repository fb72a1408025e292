package cluster

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Metadata gives read access to the current cluster schema
type Metadata interface {
	Keyspaces() []model.KeyspaceMetadata
	Keyspace(name string) (model.KeyspaceMetadata, bool)
}

// SchemaChangeListener receives schema change notifications.
// Implementations must not call Cluster mutators from the callback.
type SchemaChangeListener interface {
	OnSchemaChange(event model.SchemaEvent)
}

// TopologyListener is notified after hosts join or leave the ring
type TopologyListener interface {
	OnTopologyChange()
}

// HostSpec is a host together with its virtual node count
type HostSpec struct {
	Host         model.Host
	VirtualNodes int
}

// Snapshot is a complete view of schema and, optionally, membership.
// A nil Hosts slice leaves the ring untouched.
type Snapshot struct {
	Keyspaces []model.KeyspaceMetadata
	Hosts     []HostSpec
}

// Cluster holds the schema and token ring of the data store and delivers
// change notifications in the order the changes were applied
type Cluster struct {
	keyspaces map[string]model.KeyspaceMetadata
	ring      *TokenRing
	mu        sync.RWMutex

	// deliveryMu serializes mutation+dispatch so listeners see events in
	// mutation order
	deliveryMu sync.Mutex

	listeners         []SchemaChangeListener
	topologyListeners []TopologyListener
	listenersMu       sync.RWMutex

	logger *zap.Logger
}

// NewCluster creates an empty cluster view
func NewCluster(logger *zap.Logger) *Cluster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cluster{
		keyspaces: make(map[string]model.KeyspaceMetadata),
		ring:      NewTokenRing(),
		logger:    logger,
	}
}

// Ring returns the token ring
func (c *Cluster) Ring() *TokenRing {
	return c.ring
}

// Keyspaces returns all keyspaces ordered by name
func (c *Cluster) Keyspaces() []model.KeyspaceMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keyspaces := make([]model.KeyspaceMetadata, 0, len(c.keyspaces))
	for _, ks := range c.keyspaces {
		keyspaces = append(keyspaces, ks.Clone())
	}
	sort.Slice(keyspaces, func(i, j int) bool { return keyspaces[i].Name < keyspaces[j].Name })
	return keyspaces
}

// Keyspace returns the named keyspace
func (c *Cluster) Keyspace(name string) (model.KeyspaceMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ks, exists := c.keyspaces[name]
	if !exists {
		return model.KeyspaceMetadata{}, false
	}
	return ks.Clone(), true
}

// Register adds a schema change listener
func (c *Cluster) Register(listener SchemaChangeListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
	c.dispatchOther(listener, "register")
}

// Unregister removes a schema change listener. An event that is being
// delivered concurrently may still reach the listener.
func (c *Cluster) Unregister(listener SchemaChangeListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for i, l := range c.listeners {
		if l == listener {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			c.dispatchOther(listener, "unregister")
			return
		}
	}
}

// RegisterTopologyListener adds a topology listener
func (c *Cluster) RegisterTopologyListener(listener TopologyListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.topologyListeners = append(c.topologyListeners, listener)
}

// UnregisterTopologyListener removes a topology listener
func (c *Cluster) UnregisterTopologyListener(listener TopologyListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for i, l := range c.topologyListeners {
		if l == listener {
			c.topologyListeners = append(c.topologyListeners[:i:i], c.topologyListeners[i+1:]...)
			return
		}
	}
}

// AddKeyspace creates a keyspace
func (c *Cluster) AddKeyspace(name string, replication model.Replication) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		if _, exists := c.keyspaces[name]; exists {
			return nil, fmt.Errorf("keyspace %s already exists", name)
		}
		ks := model.NewKeyspaceMetadata(name, replication)
		c.keyspaces[name] = ks
		return []model.SchemaEvent{{Kind: model.KeyspaceAdded, Keyspace: ks.Clone()}}, nil
	})
}

// AlterKeyspace changes the replication of a keyspace
func (c *Cluster) AlterKeyspace(name string, replication model.Replication) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		previous, exists := c.keyspaces[name]
		if !exists {
			return nil, fmt.Errorf("keyspace %s does not exist", name)
		}
		current := previous.Clone()
		current.Replication = replication
		c.keyspaces[name] = current
		return []model.SchemaEvent{{
			Kind:             model.KeyspaceChanged,
			Keyspace:         current.Clone(),
			PreviousKeyspace: &previous,
		}}, nil
	})
}

// DropKeyspace removes a keyspace and all its tables
func (c *Cluster) DropKeyspace(name string) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		ks, exists := c.keyspaces[name]
		if !exists {
			return nil, fmt.Errorf("keyspace %s does not exist", name)
		}
		delete(c.keyspaces, name)
		return []model.SchemaEvent{{Kind: model.KeyspaceRemoved, Keyspace: ks}}, nil
	})
}

// AddTable creates a table. A nil id generates a random one.
func (c *Cluster) AddTable(keyspace, table string, id uuid.UUID) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		ks, exists := c.keyspaces[keyspace]
		if !exists {
			return nil, fmt.Errorf("keyspace %s does not exist", keyspace)
		}
		if _, exists := ks.Tables[table]; exists {
			return nil, fmt.Errorf("table %s.%s already exists", keyspace, table)
		}
		if id == uuid.Nil {
			id = uuid.New()
		}
		tm := model.TableMetadata{ID: id, Keyspace: keyspace, Name: table}
		ks = ks.Clone()
		ks.Tables[table] = tm
		c.keyspaces[keyspace] = ks
		return []model.SchemaEvent{{Kind: model.TableAdded, Table: tm}}, nil
	})
}

// AlterTable records a table change that keeps its identity
func (c *Cluster) AlterTable(keyspace, table string) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		ks, exists := c.keyspaces[keyspace]
		if !exists {
			return nil, fmt.Errorf("keyspace %s does not exist", keyspace)
		}
		tm, exists := ks.Tables[table]
		if !exists {
			return nil, fmt.Errorf("table %s.%s does not exist", keyspace, table)
		}
		previous := tm
		return []model.SchemaEvent{{Kind: model.TableChanged, Table: tm, PreviousTable: &previous}}, nil
	})
}

// DropTable removes a table
func (c *Cluster) DropTable(keyspace, table string) error {
	return c.mutate(func() ([]model.SchemaEvent, error) {
		ks, exists := c.keyspaces[keyspace]
		if !exists {
			return nil, fmt.Errorf("keyspace %s does not exist", keyspace)
		}
		tm, exists := ks.Tables[table]
		if !exists {
			return nil, fmt.Errorf("table %s.%s does not exist", keyspace, table)
		}
		ks = ks.Clone()
		delete(ks.Tables, table)
		c.keyspaces[keyspace] = ks
		return []model.SchemaEvent{{Kind: model.TableRemoved, Table: tm}}, nil
	})
}

// NotifyObjectChange delivers a change to a schema object the scheduler does
// not track, such as a user type or function
func (c *Cluster) NotifyObjectChange(object string) {
	_ = c.mutate(func() ([]model.SchemaEvent, error) {
		return []model.SchemaEvent{{Kind: model.OtherObjectChanged, Object: object}}, nil
	})
}

// AddHost places a host on the ring
func (c *Cluster) AddHost(host model.Host, virtualNodes int) {
	c.deliveryMu.Lock()
	defer c.deliveryMu.Unlock()

	if c.ring.AddHost(host, virtualNodes) {
		c.logger.Info("Host added to ring",
			zap.String("host_id", host.ID),
			zap.Int("virtual_nodes", virtualNodes))
		c.dispatchTopology()
	}
}

// RemoveHost takes a host off the ring
func (c *Cluster) RemoveHost(hostID string) {
	c.deliveryMu.Lock()
	defer c.deliveryMu.Unlock()

	if c.ring.RemoveHost(hostID) {
		c.logger.Info("Host removed from ring", zap.String("host_id", hostID))
		c.dispatchTopology()
	}
}

// Apply replaces the schema (and membership, when present) with the given
// snapshot and emits the events that describe the difference
func (c *Cluster) Apply(snapshot *Snapshot) {
	c.deliveryMu.Lock()
	defer c.deliveryMu.Unlock()

	c.mu.Lock()
	events := c.diffLocked(snapshot.Keyspaces)
	c.mu.Unlock()

	topologyChanged := false
	if snapshot.Hosts != nil {
		topologyChanged = c.applyHosts(snapshot.Hosts)
	}

	c.dispatch(events)
	if topologyChanged {
		c.dispatchTopology()
	}
}

func (c *Cluster) applyHosts(hosts []HostSpec) bool {
	changed := false
	wanted := make(map[string]bool, len(hosts))
	for _, spec := range hosts {
		wanted[spec.Host.ID] = true
		if c.ring.AddHost(spec.Host, spec.VirtualNodes) {
			changed = true
		}
	}
	for _, h := range c.ring.Hosts() {
		if !wanted[h.ID] && c.ring.RemoveHost(h.ID) {
			changed = true
		}
	}
	return changed
}

// diffLocked installs the new keyspaces and returns the events. Table
// events come before the keyspace change of the same keyspace.
func (c *Cluster) diffLocked(keyspaces []model.KeyspaceMetadata) []model.SchemaEvent {
	events := make([]model.SchemaEvent, 0)
	next := make(map[string]model.KeyspaceMetadata, len(keyspaces))
	for _, ks := range keyspaces {
		if ks.Tables == nil {
			ks.Tables = make(map[string]model.TableMetadata)
		}
		next[ks.Name] = ks.Clone()
	}

	oldNames := make([]string, 0, len(c.keyspaces))
	for name := range c.keyspaces {
		oldNames = append(oldNames, name)
	}
	sort.Strings(oldNames)
	for _, name := range oldNames {
		if _, exists := next[name]; !exists {
			events = append(events, model.SchemaEvent{Kind: model.KeyspaceRemoved, Keyspace: c.keyspaces[name]})
		}
	}

	newNames := make([]string, 0, len(next))
	for name := range next {
		newNames = append(newNames, name)
	}
	sort.Strings(newNames)
	for _, name := range newNames {
		current := next[name]
		previous, existed := c.keyspaces[name]
		if !existed {
			events = append(events, model.SchemaEvent{Kind: model.KeyspaceAdded, Keyspace: current.Clone()})
			for _, tm := range current.TableList() {
				events = append(events, model.SchemaEvent{Kind: model.TableAdded, Table: tm})
			}
			continue
		}

		for _, tm := range previous.TableList() {
			if nt, exists := current.Tables[tm.Name]; !exists || nt.ID != tm.ID {
				events = append(events, model.SchemaEvent{Kind: model.TableRemoved, Table: tm})
			}
		}
		for _, tm := range current.TableList() {
			if pt, exists := previous.Tables[tm.Name]; !exists || pt.ID != tm.ID {
				events = append(events, model.SchemaEvent{Kind: model.TableAdded, Table: tm})
			}
		}
		if previous.Replication != current.Replication {
			prev := previous
			events = append(events, model.SchemaEvent{
				Kind:             model.KeyspaceChanged,
				Keyspace:         current.Clone(),
				PreviousKeyspace: &prev,
			})
		}
	}

	c.keyspaces = next
	return events
}

func (c *Cluster) mutate(fn func() ([]model.SchemaEvent, error)) error {
	c.deliveryMu.Lock()
	defer c.deliveryMu.Unlock()

	c.mu.Lock()
	events, err := fn()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.dispatch(events)
	return nil
}

func (c *Cluster) dispatch(events []model.SchemaEvent) {
	if len(events) == 0 {
		return
	}

	c.listenersMu.RLock()
	listeners := make([]SchemaChangeListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, event := range events {
		c.logger.Debug("Dispatching schema event",
			zap.String("kind", event.Kind.String()),
			zap.String("keyspace", event.Keyspace.Name),
			zap.String("table", event.Table.Keyspace+"."+event.Table.Name))
		for _, l := range listeners {
			c.deliver(l, event)
		}
	}
}

// dispatchOther delivers a registration event; caller holds listenersMu
func (c *Cluster) dispatchOther(listener SchemaChangeListener, object string) {
	c.deliver(listener, model.SchemaEvent{Kind: model.OtherObjectChanged, Object: object})
}

func (c *Cluster) deliver(listener SchemaChangeListener, event model.SchemaEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Schema listener panic recovered",
				zap.String("kind", event.Kind.String()),
				zap.Any("panic", r))
		}
	}()
	listener.OnSchemaChange(event)
}

func (c *Cluster) dispatchTopology() {
	c.listenersMu.RLock()
	listeners := make([]TopologyListener, len(c.topologyListeners))
	copy(listeners, c.topologyListeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Topology listener panic recovered", zap.Any("panic", r))
				}
			}()
			l.OnTopologyChange()
		}()
	}
}
