package model

import (
	"sort"
	"strings"
)

// VnodeNeverRepaired marks a range that has no known successful repair
const VnodeNeverRepaired int64 = -1

// VnodeRepairState is the repair state of a single token range.
// It is a value type; the With* methods return modified copies.
type VnodeRepairState struct {
	TokenRange     LongTokenRange `json:"token_range"`
	Replicas       []Host         `json:"replicas"`
	LastRepairedAt int64          `json:"last_repaired_at"`
}

// NewVnodeRepairState creates a vnode repair state with a normalized replica set
func NewVnodeRepairState(tokenRange LongTokenRange, replicas []Host, lastRepairedAt int64) VnodeRepairState {
	return VnodeRepairState{
		TokenRange:     tokenRange,
		Replicas:       normalizeReplicas(replicas),
		LastRepairedAt: lastRepairedAt,
	}
}

// IsRepaired checks if the range has ever been repaired
func (v VnodeRepairState) IsRepaired() bool {
	return v.LastRepairedAt > VnodeNeverRepaired
}

// IsSameVnode checks if both states cover the same range with the same replicas
func (v VnodeRepairState) IsSameVnode(other VnodeRepairState) bool {
	return v.TokenRange == other.TokenRange && sameReplicas(v.Replicas, other.Replicas)
}

// WithLastRepairedAt returns a copy with a new repair time
func (v VnodeRepairState) WithLastRepairedAt(lastRepairedAt int64) VnodeRepairState {
	return NewVnodeRepairState(v.TokenRange, v.Replicas, lastRepairedAt)
}

// WithReplicas returns a copy owned by a new replica set
func (v VnodeRepairState) WithReplicas(replicas []Host) VnodeRepairState {
	return NewVnodeRepairState(v.TokenRange, replicas, v.LastRepairedAt)
}

// ReplicaIDs returns the ids of the replicas in order
func (v VnodeRepairState) ReplicaIDs() []string {
	ids := make([]string, 0, len(v.Replicas))
	for _, h := range v.Replicas {
		ids = append(ids, h.ID)
	}
	return ids
}

// String returns a compact representation for logging
func (v VnodeRepairState) String() string {
	return v.TokenRange.String() + " [" + strings.Join(v.ReplicaIDs(), ",") + "]"
}

func normalizeReplicas(replicas []Host) []Host {
	seen := make(map[string]bool, len(replicas))
	out := make([]Host, 0, len(replicas))
	for _, h := range replicas {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameReplicas(a, b []Host) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
