package service

import (
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hour = int64(time.Hour / time.Millisecond)

var testReplicas = []model.Host{{ID: "node-1"}, {ID: "node-2"}}

func statesAt(times ...int64) model.VnodeRepairStates {
	builder := model.NewVnodeRepairStatesBuilder()
	for i, at := range times {
		r := model.NewLongTokenRange(int64(i*100), int64(i*100+100))
		builder.Add(model.NewVnodeRepairState(r, testReplicas, at))
	}
	return builder.Build()
}

func hourlyConfig() model.RepairConfiguration {
	cfg := model.DefaultRepairConfiguration()
	cfg.RepairInterval = time.Hour
	return cfg
}

func TestAggregate_LastRepairedIsMinimum(t *testing.T) {
	a := NewRepairStateAggregator(nil, fixedClock(300))

	snapshot := a.Aggregate(statesAt(100, 200, 50), model.DefaultRepairConfiguration())
	assert.Equal(t, int64(50), snapshot.LastRepairedAt())
	assert.Equal(t, 3, snapshot.VnodeRepairStates().Len())
	assert.Equal(t, time.UnixMilli(300), snapshot.CreatedAt())
}

func TestAggregate_WithinIntervalCannotRepair(t *testing.T) {
	now := 10 * hour
	a := NewRepairStateAggregator(nil, fixedClock(now))

	snapshot := a.Aggregate(statesAt(now-30*60*1000, now-10*60*1000, now), hourlyConfig())
	assert.False(t, snapshot.CanRepair())
	assert.Empty(t, snapshot.DueVnodes())
}

func TestAggregate_NeverRepairedFlipsCanRepair(t *testing.T) {
	now := 10 * hour
	a := NewRepairStateAggregator(nil, fixedClock(now))

	snapshot := a.Aggregate(statesAt(now, model.VnodeNeverRepaired, now), hourlyConfig())
	assert.True(t, snapshot.CanRepair())
	assert.Equal(t, model.VnodeNeverRepaired, snapshot.LastRepairedAt())

	due := snapshot.DueVnodes()
	require.Len(t, due, 1)
	assert.Equal(t, int64(100), due[0].TokenRange.Start)
}

func TestAggregate_NeverRepairedFirstRange(t *testing.T) {
	a := NewRepairStateAggregator(nil, fixedClock(10*hour))

	snapshot := a.Aggregate(statesAt(model.VnodeNeverRepaired, 5), hourlyConfig())
	assert.Equal(t, model.VnodeNeverRepaired, snapshot.LastRepairedAt())
}

func TestAggregate_OverdueRange(t *testing.T) {
	now := 10 * hour
	a := NewRepairStateAggregator(nil, fixedClock(now))

	snapshot := a.Aggregate(statesAt(now, now-hour), hourlyConfig())
	assert.True(t, snapshot.CanRepair())
	assert.Len(t, snapshot.DueVnodes(), 1)
	assert.Equal(t, now-hour, snapshot.LastRepairedAt())
}

func TestAggregate_DisabledNeverRepairs(t *testing.T) {
	a := NewRepairStateAggregator(nil, fixedClock(10*hour))

	snapshot := a.Aggregate(statesAt(model.VnodeNeverRepaired, 0), model.DisabledRepairConfiguration)
	assert.False(t, snapshot.CanRepair())
	assert.Empty(t, snapshot.DueVnodes())
}

func TestAggregate_Empty(t *testing.T) {
	a := NewRepairStateAggregator(nil, fixedClock(10*hour))

	snapshot := a.Aggregate(model.NewVnodeRepairStatesBuilder().Build(), hourlyConfig())
	assert.False(t, snapshot.CanRepair())
	assert.Equal(t, model.VnodeNeverRepaired, snapshot.LastRepairedAt())
}

func TestAggregate_CustomDuePolicy(t *testing.T) {
	never := func(model.VnodeRepairState, model.RepairConfiguration, time.Time) bool { return false }
	a := NewRepairStateAggregator(never, fixedClock(10*hour))

	snapshot := a.Aggregate(statesAt(model.VnodeNeverRepaired), hourlyConfig())
	assert.False(t, snapshot.CanRepair())
}

func TestDefaultDuePolicy_Boundary(t *testing.T) {
	cfg := hourlyConfig()
	now := time.UnixMilli(10 * hour)
	r := model.NewLongTokenRange(0, 1)

	assert.True(t, DefaultDuePolicy(model.NewVnodeRepairState(r, nil, 9*hour), cfg, now))
	assert.False(t, DefaultDuePolicy(model.NewVnodeRepairState(r, nil, 9*hour+1), cfg, now))
	assert.True(t, DefaultDuePolicy(model.NewVnodeRepairState(r, nil, model.VnodeNeverRepaired), cfg, now))
}
