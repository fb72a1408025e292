package service

import (
	"sync"
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/cluster"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testReplication = model.Replication{Strategy: "SimpleStrategy", ReplicationFactor: 2}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// fakeReplication accepts a mutable set of keyspaces
type fakeReplication struct {
	mu       sync.RWMutex
	accepted map[string]bool
}

func newFakeReplication(keyspaces ...string) *fakeReplication {
	f := &fakeReplication{accepted: make(map[string]bool)}
	for _, ks := range keyspaces {
		f.accepted[ks] = true
	}
	return f
}

func (f *fakeReplication) Accept(keyspace string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.accepted[keyspace]
}

func (f *fakeReplication) set(keyspace string, accepted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted[keyspace] = accepted
}

// fixedClock returns a clock frozen at the given epoch millis
func fixedClock(millis int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(millis) }
}

type testEnv struct {
	cluster     *cluster.Cluster
	factory     *TableReferenceFactory
	vnodeStore  *store.VnodeStateStore
	aggregator  *RepairStateAggregator
	scheduler   *RepairScheduler
	replication *fakeReplication
	metrics     *metrics.Metrics
}

func newTestEnv(t *testing.T, replicated ...string) *testEnv {
	t.Helper()

	m := newTestMetrics()
	c := cluster.NewCluster(zap.NewNop())
	factory, err := NewTableReferenceFactory(c, m, zap.NewNop())
	require.NoError(t, err)

	vnodeStore := store.NewVnodeStateStore()
	aggregator := NewRepairStateAggregator(nil, nil)
	return &testEnv{
		cluster:     c,
		factory:     factory,
		vnodeStore:  vnodeStore,
		aggregator:  aggregator,
		scheduler:   NewRepairScheduler(vnodeStore, aggregator, nil, m, zap.NewNop()),
		replication: newFakeReplication(replicated...),
		metrics:     m,
	}
}

func (e *testEnv) newProvider(t *testing.T) *RepairConfigurationProvider {
	t.Helper()

	p, err := NewRepairConfigurationProvider(RepairConfigurationProviderConfig{
		Cluster:                 e.cluster,
		ReplicatedTableProvider: e.replication,
		RepairScheduler:         e.scheduler,
		TableReferenceFactory:   e.factory,
		RepairConfiguration:     WithDefaultRepairConfiguration(model.DefaultRepairConfiguration()),
		Metrics:                 e.metrics,
		Logger:                  zap.NewNop(),
	})
	require.NoError(t, err)
	return p
}

func snapshotOf(keyspaces ...model.KeyspaceMetadata) *cluster.Snapshot {
	return &cluster.Snapshot{Keyspaces: keyspaces}
}

func trackedTables(s *RepairScheduler) []string {
	jobs := s.GetCurrentRepairJobs()
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.TableReference.String())
	}
	return names
}
