package service

import (
	"context"

	"github.com/devrev/pairdb/repairscheduler/internal/cluster"
	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/devrev/pairdb/repairscheduler/internal/util/workerpool"
	"go.uber.org/zap"
)

// VnodeStateSynchronizer keeps the vnode state store aligned with the token
// ring and with recorded repair history
type VnodeStateSynchronizer struct {
	cluster    *cluster.Cluster
	vnodeStore *store.VnodeStateStore
	history    store.RepairHistoryStore
	pool       *workerpool.Pool
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewVnodeStateSynchronizer creates a synchronizer. History loading runs on
// the given pool.
func NewVnodeStateSynchronizer(
	c *cluster.Cluster,
	vnodeStore *store.VnodeStateStore,
	history store.RepairHistoryStore,
	pool *workerpool.Pool,
	metrics *metrics.Metrics,
	logger *zap.Logger,
) *VnodeStateSynchronizer {
	return &VnodeStateSynchronizer{
		cluster:    c,
		vnodeStore: vnodeStore,
		history:    history,
		pool:       pool,
		metrics:    metrics,
		logger:     logger,
	}
}

// Initialize implements VnodeStateInitializer. Ranges whose replicas did not
// change keep their repair time; new or moved ranges start as never repaired.
func (s *VnodeStateSynchronizer) Initialize(table *model.TableReference) {
	s.synchronize(table, true)
}

// synchronize rebuilds the vnode state of a table from the ring. Without
// create, tables that have no state (untracked meanwhile) are left alone.
func (s *VnodeStateSynchronizer) synchronize(table *model.TableReference, create bool) {
	ks, exists := s.cluster.Keyspace(table.Keyspace())
	if !exists {
		s.logger.Debug("Keyspace gone before vnode state initialization",
			zap.String("table", table.String()))
		return
	}

	ranges := s.cluster.Ring().RangeReplicas(ks.Replication.ReplicationFactor)
	rebuild := func(current model.VnodeRepairStates) model.VnodeRepairStates {
		builder := model.NewVnodeRepairStatesBuilder()
		for tokenRange, replicas := range ranges {
			builder.Add(model.NewVnodeRepairState(tokenRange, replicas, model.VnodeNeverRepaired))
		}
		return builder.Update(current.States()).Build()
	}
	if create {
		s.vnodeStore.Update(table, rebuild)
	} else if !s.vnodeStore.UpdateExisting(table, rebuild) {
		return
	}

	err := s.pool.Submit(workerpool.Task{
		Name: table.String(),
		Fn: func(ctx context.Context) error {
			return s.mergeHistory(ctx, table)
		},
	})
	if err != nil {
		s.logger.Warn("Failed to schedule repair history load",
			zap.String("table", table.String()),
			zap.Error(err))
	}
}

func (s *VnodeStateSynchronizer) mergeHistory(ctx context.Context, table *model.TableReference) error {
	history, err := s.history.LoadRepairHistory(ctx, table.ID())
	if err != nil {
		return errors.HistoryFailed("failed to load repair history of "+table.String(), err)
	}
	if len(history) == 0 {
		return nil
	}

	merged := s.vnodeStore.UpdateExisting(table, func(current model.VnodeRepairStates) model.VnodeRepairStates {
		return model.NewVnodeRepairStatesBuilderFrom(current).Update(history).Build()
	})
	if merged {
		s.logger.Debug("Merged repair history",
			zap.String("table", table.String()),
			zap.Int("ranges", len(history)))
	}
	return nil
}

// OnTopologyChange implements cluster.TopologyListener
func (s *VnodeStateSynchronizer) OnTopologyChange() {
	s.metrics.UpdateRingHosts(s.cluster.Ring().HostCount())

	tables := s.vnodeStore.Tables()
	s.logger.Info("Topology changed, resynchronizing vnode state",
		zap.Int("tables", len(tables)))
	for _, table := range tables {
		s.synchronize(table, false)
	}
}

// RecordRepairCompletion records a successful repair of one range of a
// tracked table and persists it to the repair history
func (s *VnodeStateSynchronizer) RecordRepairCompletion(ctx context.Context, table *model.TableReference, tokenRange model.LongTokenRange, repairedAt int64) error {
	var state model.VnodeRepairState
	var known bool
	s.vnodeStore.UpdateExisting(table, func(current model.VnodeRepairStates) model.VnodeRepairStates {
		state, known = current.Get(tokenRange)
		if !known {
			return current
		}
		state = state.WithLastRepairedAt(repairedAt)
		return model.NewVnodeRepairStatesBuilderFrom(current).Update([]model.VnodeRepairState{state}).Build()
	})
	if !known {
		s.metrics.RecordRepairCompletion("rejected")
		return errors.InvalidArgument("token range "+tokenRange.String()+" is not a vnode of "+table.String(), nil).
			WithDetail("table", table.String())
	}

	if err := s.history.RecordRepair(ctx, table.ID(), state); err != nil {
		s.metrics.RecordRepairCompletion("failed")
		return errors.HistoryFailed("failed to persist repair of "+table.String(), err)
	}

	s.metrics.RecordRepairCompletion("recorded")
	s.logger.Debug("Recorded repair completion",
		zap.String("table", table.String()),
		zap.String("range", tokenRange.String()),
		zap.Int64("repaired_at", repairedAt))
	return nil
}
