package metrics

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRequest("GET", "/v1/repair/status", "200", time.Millisecond)
		m.RecordSchemaEvent("TABLE_ADDED")
		m.RecordTransition("added")
		m.UpdateTableReferences(3)
		m.RecordRepairCompletion("success")
		m.UpdateRepairState(1, 1, 0, 0, time.Hour)
		m.UpdateRingHosts(3)
		m.TaskFinished("repair-history", time.Millisecond, stderrors.New("boom"))
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransition("added")
	m.RecordTransition("added")
	m.RecordTransition("removed")
	m.UpdateRepairState(4, 2, 1, 0, time.Minute)
	m.TaskFinished("repair-history", time.Millisecond, nil)
	m.TaskFinished("repair-history", time.Millisecond, stderrors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConfigurationTransitions.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigurationTransitions.WithLabelValues("removed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TrackedTables))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TablesLate.WithLabelValues("warning")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.OldestRepairAge))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryTasks.WithLabelValues("repair-history", "failure")))
}
