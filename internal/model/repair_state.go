package model

import (
	"time"

	"github.com/google/uuid"
)

// RepairStateSnapshot is a point-in-time aggregate of a table's repair state
type RepairStateSnapshot struct {
	canRepair      bool
	lastRepairedAt int64
	vnodeStates    VnodeRepairStates
	dueVnodes      []VnodeRepairState
	createdAt      time.Time
}

// NewRepairStateSnapshot creates a snapshot
func NewRepairStateSnapshot(
	canRepair bool,
	lastRepairedAt int64,
	vnodeStates VnodeRepairStates,
	dueVnodes []VnodeRepairState,
	createdAt time.Time,
) RepairStateSnapshot {
	due := make([]VnodeRepairState, len(dueVnodes))
	copy(due, dueVnodes)
	return RepairStateSnapshot{
		canRepair:      canRepair,
		lastRepairedAt: lastRepairedAt,
		vnodeStates:    vnodeStates,
		dueVnodes:      due,
		createdAt:      createdAt,
	}
}

// CanRepair reports whether the table is due for repair
func (s RepairStateSnapshot) CanRepair() bool {
	return s.canRepair
}

// LastRepairedAt returns the least recent repair time across all vnodes
func (s RepairStateSnapshot) LastRepairedAt() int64 {
	return s.lastRepairedAt
}

// VnodeRepairStates returns the vnode states the snapshot was computed from
func (s RepairStateSnapshot) VnodeRepairStates() VnodeRepairStates {
	return s.vnodeStates
}

// DueVnodes returns the vnodes that are due for repair
func (s RepairStateSnapshot) DueVnodes() []VnodeRepairState {
	out := make([]VnodeRepairState, len(s.dueVnodes))
	copy(out, s.dueVnodes)
	return out
}

// CreatedAt returns when the snapshot was computed
func (s RepairStateSnapshot) CreatedAt() time.Time {
	return s.createdAt
}

// RepairJobView is a read-only view of a tracked table
type RepairJobView struct {
	ID                  uuid.UUID
	TableReference      *TableReference
	RepairConfiguration RepairConfiguration
	RepairStateSnapshot RepairStateSnapshot
}
