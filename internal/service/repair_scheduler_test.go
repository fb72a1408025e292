package service

import (
	"sync"
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockVnodeStateInitializer is a mock implementation of VnodeStateInitializer
type MockVnodeStateInitializer struct {
	mock.Mock
}

func (m *MockVnodeStateInitializer) Initialize(table *model.TableReference) {
	m.Called(table)
}

func newTable(keyspace, table string) *model.TableReference {
	return model.NewTableReference(uuid.New(), keyspace, table)
}

func TestRepairScheduler_PutConfigurationIdempotent(t *testing.T) {
	env := newTestEnv(t)
	table := newTable("ks", "tbl")
	cfg := model.DefaultRepairConfiguration()

	env.scheduler.PutConfiguration(table, cfg)
	first := env.scheduler.GetCurrentRepairJobs()
	env.scheduler.PutConfiguration(table, cfg)
	second := env.scheduler.GetCurrentRepairJobs()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Same(t, table, second[0].TableReference)
	assert.Equal(t, 1, env.scheduler.Size())
}

func TestRepairScheduler_PutConfigurationReplaces(t *testing.T) {
	env := newTestEnv(t)
	table := newTable("ks", "tbl")

	env.scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
	before, err := env.scheduler.GetRepairJob("ks.tbl")
	require.NoError(t, err)

	cfg := model.DefaultRepairConfiguration()
	cfg.RepairInterval = 24 * time.Hour
	env.scheduler.PutConfiguration(table, cfg)

	after, err := env.scheduler.GetRepairJob("ks.tbl")
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, 24*time.Hour, after.RepairConfiguration.RepairInterval)
	assert.Equal(t, 1, env.scheduler.Size())
}

func TestRepairScheduler_DisabledRemoves(t *testing.T) {
	env := newTestEnv(t)
	table := newTable("ks", "tbl")

	env.scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
	env.scheduler.PutConfiguration(table, model.DisabledRepairConfiguration)
	assert.Empty(t, env.scheduler.GetCurrentRepairJobs())
	assert.False(t, env.scheduler.IsTracked(table))

	// Disabled on an untracked table stays untracked
	env.scheduler.PutConfiguration(table, model.DisabledRepairConfiguration)
	assert.Equal(t, 0, env.scheduler.Size())
}

func TestRepairScheduler_RemoveUntrackedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	table := newTable("ks", "tbl")

	env.scheduler.RemoveConfiguration(table)
	env.scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
	env.scheduler.RemoveConfiguration(table)
	env.scheduler.RemoveConfiguration(table)

	assert.Empty(t, env.scheduler.GetCurrentRepairJobs())
	assert.Equal(t, 0, env.scheduler.Size())
}

func TestRepairScheduler_GetRepairJob(t *testing.T) {
	env := newTestEnv(t)
	env.scheduler.PutConfiguration(newTable("ks1", "tbl1"), model.DefaultRepairConfiguration())
	env.scheduler.PutConfiguration(newTable("ks2", "tbl2"), model.DefaultRepairConfiguration())

	job, err := env.scheduler.GetRepairJob("KS2.Tbl2")
	require.NoError(t, err)
	assert.Equal(t, "ks2.tbl2", job.TableReference.String())

	_, err = env.scheduler.GetRepairJob("ks3.missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "ks3.missing")
	assert.Contains(t, err.Error(), "<keyspace>.<table>")
}

func TestRepairScheduler_JobsReflectVnodeState(t *testing.T) {
	env := newTestEnv(t)
	table := newTable("ks", "tbl")
	env.scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())

	r := model.NewLongTokenRange(0, 100)
	env.vnodeStore.Upsert(table, r, testReplicas, model.VnodeNeverRepaired)
	job, err := env.scheduler.GetRepairJob("ks.tbl")
	require.NoError(t, err)
	assert.True(t, job.RepairStateSnapshot.CanRepair())

	now := time.Now().UnixMilli()
	env.vnodeStore.Upsert(table, r, testReplicas, now)
	job, err = env.scheduler.GetRepairJob("ks.tbl")
	require.NoError(t, err)
	assert.False(t, job.RepairStateSnapshot.CanRepair())
	assert.Equal(t, now, job.RepairStateSnapshot.LastRepairedAt())
}

func TestRepairScheduler_InitializerAndStoreCleanup(t *testing.T) {
	vnodeStore := store.NewVnodeStateStore()
	initializer := new(MockVnodeStateInitializer)
	scheduler := NewRepairScheduler(vnodeStore, NewRepairStateAggregator(nil, nil), initializer, newTestMetrics(), zap.NewNop())

	table := newTable("ks", "tbl")
	initializer.On("Initialize", table).Run(func(mock.Arguments) {
		vnodeStore.Upsert(table, model.NewLongTokenRange(0, 1), testReplicas, model.VnodeNeverRepaired)
	}).Once()

	scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
	scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
	assert.True(t, vnodeStore.Contains(table))

	scheduler.RemoveConfiguration(table)
	assert.False(t, vnodeStore.Contains(table))

	initializer.AssertExpectations(t)
}

func TestRepairScheduler_JobVisibleOnlyAfterSeeding(t *testing.T) {
	vnodeStore := store.NewVnodeStateStore()
	initializer := new(MockVnodeStateInitializer)
	scheduler := NewRepairScheduler(vnodeStore, NewRepairStateAggregator(nil, nil), initializer, newTestMetrics(), zap.NewNop())

	table := newTable("ks", "tbl")
	var visibleDuringSeed []model.RepairJobView
	initializer.On("Initialize", table).Run(func(mock.Arguments) {
		visibleDuringSeed = scheduler.GetCurrentRepairJobs()
		vnodeStore.Upsert(table, model.NewLongTokenRange(0, 1), testReplicas, model.VnodeNeverRepaired)
	}).Once()

	scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())

	assert.Empty(t, visibleDuringSeed)
	job, err := scheduler.GetRepairJob("ks.tbl")
	require.NoError(t, err)
	assert.Len(t, job.RepairStateSnapshot.VnodeRepairStates().States(), 1)
	assert.True(t, job.RepairStateSnapshot.CanRepair())
	initializer.AssertExpectations(t)
}

// seedingInitializer upserts a single never repaired range
type seedingInitializer struct {
	vnodeStore *store.VnodeStateStore
}

func (i seedingInitializer) Initialize(table *model.TableReference) {
	i.vnodeStore.Upsert(table, model.NewLongTokenRange(0, 1), testReplicas, model.VnodeNeverRepaired)
}

func TestRepairScheduler_ConcurrentPutAndRemoveKeepStoreInSync(t *testing.T) {
	vnodeStore := store.NewVnodeStateStore()
	scheduler := NewRepairScheduler(vnodeStore, NewRepairStateAggregator(nil, nil), seedingInitializer{vnodeStore}, nil, zap.NewNop())
	table := newTable("ks", "tbl")

	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
			}()
			go func() {
				defer wg.Done()
				scheduler.RemoveConfiguration(table)
			}()
		}
		wg.Wait()

		_, err := scheduler.GetRepairJob("ks.tbl")
		if err == nil {
			require.True(t, vnodeStore.Contains(table), "round %d", round)
			require.Equal(t, 1, scheduler.Size())
		} else {
			require.False(t, vnodeStore.Contains(table), "round %d", round)
			require.Equal(t, 0, scheduler.Size())
		}
	}
}

func TestRepairScheduler_ConcurrentAccess(t *testing.T) {
	env := newTestEnv(t)
	tables := make([]*model.TableReference, 20)
	for i := range tables {
		tables[i] = newTable("ks", uuid.NewString())
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, table := range tables {
				env.scheduler.PutConfiguration(table, model.DefaultRepairConfiguration())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				for _, job := range env.scheduler.GetCurrentRepairJobs() {
					assert.NotNil(t, job.TableReference)
					assert.False(t, job.RepairConfiguration.IsDisabled())
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, env.scheduler.GetCurrentRepairJobs(), 20)
	assert.Equal(t, 20, env.scheduler.Size())
}
