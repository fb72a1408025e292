package cluster

import (
	"sync"
	"testing"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	mu     sync.Mutex
	events []model.SchemaEvent
}

func (l *recordingListener) OnSchemaChange(event model.SchemaEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) kinds() []model.SchemaEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]model.SchemaEventKind, 0, len(l.events))
	for _, e := range l.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (l *recordingListener) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type countingTopologyListener struct {
	mu    sync.Mutex
	count int
}

func (l *countingTopologyListener) OnTopologyChange() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
}

func (l *countingTopologyListener) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

type panickingListener struct{}

func (panickingListener) OnSchemaChange(model.SchemaEvent) {
	panic("boom")
}

var rf3 = model.Replication{Strategy: "SimpleStrategy", ReplicationFactor: 3}

func TestCluster_RegisterDeliversOtherEvent(t *testing.T) {
	c := NewCluster(zap.NewNop())
	listener := &recordingListener{}

	c.Register(listener)
	assert.Equal(t, []model.SchemaEventKind{model.OtherObjectChanged}, listener.kinds())

	listener.reset()
	c.Unregister(listener)
	assert.Equal(t, []model.SchemaEventKind{model.OtherObjectChanged}, listener.kinds())

	listener.reset()
	require.NoError(t, c.AddKeyspace("ks", rf3))
	assert.Empty(t, listener.kinds())
}

func TestCluster_Mutations(t *testing.T) {
	c := NewCluster(zap.NewNop())
	listener := &recordingListener{}
	c.Register(listener)
	listener.reset()

	require.NoError(t, c.AddKeyspace("ks", rf3))
	require.NoError(t, c.AddTable("ks", "tbl", uuid.Nil))
	require.NoError(t, c.AlterTable("ks", "tbl"))
	require.NoError(t, c.AlterKeyspace("ks", model.Replication{Strategy: "SimpleStrategy", ReplicationFactor: 2}))
	require.NoError(t, c.DropTable("ks", "tbl"))
	require.NoError(t, c.DropKeyspace("ks"))
	c.NotifyObjectChange("type ks.address")

	assert.Equal(t, []model.SchemaEventKind{
		model.KeyspaceAdded,
		model.TableAdded,
		model.TableChanged,
		model.KeyspaceChanged,
		model.TableRemoved,
		model.KeyspaceRemoved,
		model.OtherObjectChanged,
	}, listener.kinds())

	added := listener.events[1].Table
	assert.NotEqual(t, uuid.Nil, added.ID)
	assert.Equal(t, added, listener.events[4].Table)

	changed := listener.events[3]
	require.NotNil(t, changed.PreviousKeyspace)
	assert.Equal(t, 3, changed.PreviousKeyspace.Replication.ReplicationFactor)
	assert.Equal(t, 2, changed.Keyspace.Replication.ReplicationFactor)
}

func TestCluster_MutationErrors(t *testing.T) {
	c := NewCluster(zap.NewNop())

	assert.Error(t, c.AddTable("missing", "tbl", uuid.Nil))
	assert.Error(t, c.DropKeyspace("missing"))

	require.NoError(t, c.AddKeyspace("ks", rf3))
	assert.Error(t, c.AddKeyspace("ks", rf3))
	assert.Error(t, c.DropTable("ks", "missing"))
	assert.Error(t, c.AlterTable("ks", "missing"))

	require.NoError(t, c.AddTable("ks", "tbl", uuid.Nil))
	assert.Error(t, c.AddTable("ks", "tbl", uuid.Nil))
}

func TestCluster_DropKeyspaceCarriesTables(t *testing.T) {
	c := NewCluster(zap.NewNop())
	require.NoError(t, c.AddKeyspace("ks", rf3))
	require.NoError(t, c.AddTable("ks", "t1", uuid.Nil))
	require.NoError(t, c.AddTable("ks", "t2", uuid.Nil))

	listener := &recordingListener{}
	c.Register(listener)
	listener.reset()

	require.NoError(t, c.DropKeyspace("ks"))
	require.Len(t, listener.events, 1)
	assert.Len(t, listener.events[0].Keyspace.TableList(), 2)

	_, exists := c.Keyspace("ks")
	assert.False(t, exists)
}

func TestCluster_ApplyDiff(t *testing.T) {
	c := NewCluster(zap.NewNop())
	listener := &recordingListener{}
	c.Register(listener)
	listener.reset()

	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()
	ks := model.NewKeyspaceMetadata("ks", rf3)
	ks.Tables["t1"] = model.TableMetadata{ID: id1, Keyspace: "ks", Name: "t1"}
	ks.Tables["t2"] = model.TableMetadata{ID: id2, Keyspace: "ks", Name: "t2"}

	c.Apply(&Snapshot{Keyspaces: []model.KeyspaceMetadata{ks}})
	assert.Equal(t, []model.SchemaEventKind{model.KeyspaceAdded, model.TableAdded, model.TableAdded}, listener.kinds())

	// Same snapshot produces nothing
	listener.reset()
	c.Apply(&Snapshot{Keyspaces: []model.KeyspaceMetadata{ks.Clone()}})
	assert.Empty(t, listener.kinds())

	// t1 dropped, t2 recreated with a new id, replication changed
	listener.reset()
	next := model.NewKeyspaceMetadata("ks", model.Replication{Strategy: "SimpleStrategy", ReplicationFactor: 1})
	next.Tables["t2"] = model.TableMetadata{ID: id3, Keyspace: "ks", Name: "t2"}
	c.Apply(&Snapshot{Keyspaces: []model.KeyspaceMetadata{next}})

	require.Equal(t, []model.SchemaEventKind{
		model.TableRemoved,
		model.TableRemoved,
		model.TableAdded,
		model.KeyspaceChanged,
	}, listener.kinds())
	assert.Equal(t, id1, listener.events[0].Table.ID)
	assert.Equal(t, id2, listener.events[1].Table.ID)
	assert.Equal(t, id3, listener.events[2].Table.ID)

	listener.reset()
	c.Apply(&Snapshot{})
	assert.Equal(t, []model.SchemaEventKind{model.KeyspaceRemoved}, listener.kinds())
	assert.Empty(t, c.Keyspaces())
}

func TestCluster_ApplyHosts(t *testing.T) {
	c := NewCluster(zap.NewNop())
	topology := &countingTopologyListener{}
	c.RegisterTopologyListener(topology)

	hosts := []HostSpec{
		{Host: model.Host{ID: "node-1"}, VirtualNodes: 4},
		{Host: model.Host{ID: "node-2"}, VirtualNodes: 4},
	}
	c.Apply(&Snapshot{Hosts: hosts})
	assert.Equal(t, 2, c.Ring().HostCount())
	assert.Equal(t, 1, topology.calls())

	// Unchanged membership does not notify
	c.Apply(&Snapshot{Hosts: hosts})
	assert.Equal(t, 1, topology.calls())

	// Nil hosts leave the ring untouched
	c.Apply(&Snapshot{})
	assert.Equal(t, 2, c.Ring().HostCount())

	c.Apply(&Snapshot{Hosts: hosts[:1]})
	assert.Equal(t, 1, c.Ring().HostCount())
	assert.Equal(t, 2, topology.calls())
}

func TestCluster_AddRemoveHost(t *testing.T) {
	c := NewCluster(zap.NewNop())
	topology := &countingTopologyListener{}
	c.RegisterTopologyListener(topology)

	c.AddHost(model.Host{ID: "node-1"}, 4)
	c.AddHost(model.Host{ID: "node-1"}, 4)
	c.RemoveHost("node-1")
	c.RemoveHost("node-1")

	assert.Equal(t, 2, topology.calls())
}

func TestCluster_UnregisterTopologyListener(t *testing.T) {
	c := NewCluster(zap.NewNop())
	first := &countingTopologyListener{}
	second := &countingTopologyListener{}
	c.RegisterTopologyListener(first)
	c.RegisterTopologyListener(second)

	c.AddHost(model.Host{ID: "node-1"}, 4)
	c.UnregisterTopologyListener(first)
	c.RemoveHost("node-1")

	assert.Equal(t, 1, first.calls())
	assert.Equal(t, 2, second.calls())
}

func TestCluster_ListenerPanicDoesNotStopDelivery(t *testing.T) {
	c := NewCluster(zap.NewNop())
	c.Register(panickingListener{})
	listener := &recordingListener{}
	c.Register(listener)
	listener.reset()

	require.NoError(t, c.AddKeyspace("ks", rf3))
	assert.Equal(t, []model.SchemaEventKind{model.KeyspaceAdded}, listener.kinds())
}

func TestCluster_KeyspacesAreCopies(t *testing.T) {
	c := NewCluster(zap.NewNop())
	require.NoError(t, c.AddKeyspace("ks", rf3))

	ks, exists := c.Keyspace("ks")
	require.True(t, exists)
	ks.Tables["injected"] = model.TableMetadata{Name: "injected"}

	fresh, _ := c.Keyspace("ks")
	assert.Empty(t, fresh.Tables)
}
