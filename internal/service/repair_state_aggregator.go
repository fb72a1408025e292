package service

import (
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
)

// DuePolicy decides whether a single range is due for repair
type DuePolicy func(state model.VnodeRepairState, config model.RepairConfiguration, now time.Time) bool

// DefaultDuePolicy treats a range as due when it was never repaired or when a
// full repair interval has elapsed since its last repair
func DefaultDuePolicy(state model.VnodeRepairState, config model.RepairConfiguration, now time.Time) bool {
	if !state.IsRepaired() {
		return true
	}
	elapsed := now.UnixMilli() - state.LastRepairedAt
	return elapsed >= config.RepairInterval.Milliseconds()
}

// RepairStateAggregator derives table level repair state from vnode states.
// It holds no state of its own.
type RepairStateAggregator struct {
	duePolicy DuePolicy
	now       func() time.Time
}

// NewRepairStateAggregator creates an aggregator. Nil arguments select the
// default policy and the wall clock.
func NewRepairStateAggregator(duePolicy DuePolicy, now func() time.Time) *RepairStateAggregator {
	if duePolicy == nil {
		duePolicy = DefaultDuePolicy
	}
	if now == nil {
		now = time.Now
	}
	return &RepairStateAggregator{
		duePolicy: duePolicy,
		now:       now,
	}
}

// Aggregate computes the snapshot of one table
func (a *RepairStateAggregator) Aggregate(states model.VnodeRepairStates, config model.RepairConfiguration) model.RepairStateSnapshot {
	now := a.now()
	ranges := states.States()

	lastRepairedAt := model.VnodeNeverRepaired
	due := make([]model.VnodeRepairState, 0)
	for i, state := range ranges {
		switch {
		case i == 0:
			lastRepairedAt = state.LastRepairedAt
		case !state.IsRepaired():
			lastRepairedAt = model.VnodeNeverRepaired
		case lastRepairedAt != model.VnodeNeverRepaired && state.LastRepairedAt < lastRepairedAt:
			lastRepairedAt = state.LastRepairedAt
		}

		if !config.IsDisabled() && a.duePolicy(state, config, now) {
			due = append(due, state)
		}
	}
	if lastRepairedAt < model.VnodeNeverRepaired {
		lastRepairedAt = model.VnodeNeverRepaired
	}

	canRepair := !config.IsDisabled() && len(due) > 0
	return model.NewRepairStateSnapshot(canRepair, lastRepairedAt, states, due, now)
}
