package model

import "sort"

// VnodeRepairStates is an immutable collection of vnode repair states for one
// table, ordered by range start
type VnodeRepairStates struct {
	states []VnodeRepairState
}

// States returns a copy of the ordered vnode states
func (s VnodeRepairStates) States() []VnodeRepairState {
	out := make([]VnodeRepairState, len(s.states))
	copy(out, s.states)
	return out
}

// Len returns the number of vnodes
func (s VnodeRepairStates) Len() int {
	return len(s.states)
}

// Get returns the state for the exact token range
func (s VnodeRepairStates) Get(tokenRange LongTokenRange) (VnodeRepairState, bool) {
	idx := sort.Search(len(s.states), func(i int) bool {
		return !rangeLess(s.states[i].TokenRange, tokenRange)
	})
	if idx < len(s.states) && s.states[idx].TokenRange == tokenRange {
		return s.states[idx], true
	}
	return VnodeRepairState{}, false
}

// VnodeRepairStatesBuilder assembles a VnodeRepairStates snapshot.
//
// Add inserts a vnode, keeping the most recent repair time when the same
// range is added twice with the same replicas and letting the newer entry win
// when the replicas differ. Update only touches vnodes that are already known
// with the same replica set and never moves a repair time backwards.
type VnodeRepairStatesBuilder struct {
	states map[LongTokenRange]VnodeRepairState
}

// NewVnodeRepairStatesBuilder creates an empty builder
func NewVnodeRepairStatesBuilder() *VnodeRepairStatesBuilder {
	return &VnodeRepairStatesBuilder{
		states: make(map[LongTokenRange]VnodeRepairState),
	}
}

// NewVnodeRepairStatesBuilderFrom creates a builder seeded with existing states
func NewVnodeRepairStatesBuilderFrom(existing VnodeRepairStates) *VnodeRepairStatesBuilder {
	b := NewVnodeRepairStatesBuilder()
	for _, state := range existing.states {
		b.states[state.TokenRange] = state
	}
	return b
}

// Add combines a vnode state into the builder
func (b *VnodeRepairStatesBuilder) Add(state VnodeRepairState) *VnodeRepairStatesBuilder {
	state = NewVnodeRepairState(state.TokenRange, state.Replicas, state.LastRepairedAt)

	current, exists := b.states[state.TokenRange]
	if exists && current.IsSameVnode(state) && current.LastRepairedAt > state.LastRepairedAt {
		return b
	}
	b.states[state.TokenRange] = state
	return b
}

// AddAll combines all vnode states into the builder
func (b *VnodeRepairStatesBuilder) AddAll(states []VnodeRepairState) *VnodeRepairStatesBuilder {
	for _, state := range states {
		b.Add(state)
	}
	return b
}

// Update merges repair times into known vnodes
func (b *VnodeRepairStatesBuilder) Update(states []VnodeRepairState) *VnodeRepairStatesBuilder {
	for _, state := range states {
		current, exists := b.states[state.TokenRange]
		if !exists || !current.IsSameVnode(NewVnodeRepairState(state.TokenRange, state.Replicas, 0)) {
			continue
		}
		if state.LastRepairedAt > current.LastRepairedAt {
			b.states[state.TokenRange] = current.WithLastRepairedAt(state.LastRepairedAt)
		}
	}
	return b
}

// Build returns the immutable snapshot
func (b *VnodeRepairStatesBuilder) Build() VnodeRepairStates {
	states := make([]VnodeRepairState, 0, len(b.states))
	for _, state := range b.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return rangeLess(states[i].TokenRange, states[j].TokenRange)
	})
	return VnodeRepairStates{states: states}
}

func rangeLess(a, b LongTokenRange) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End < b.End
}
