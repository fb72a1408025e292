package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Schema propagation metrics
	SchemaEvents             *prometheus.CounterVec
	ConfigurationTransitions *prometheus.CounterVec
	TableReferences          prometheus.Gauge

	// Repair state metrics
	TrackedTables      prometheus.Gauge
	TablesDue          prometheus.Gauge
	TablesLate         *prometheus.GaugeVec
	OldestRepairAge    prometheus.Gauge
	RepairCompletions  *prometheus.CounterVec
	HistoryTasks       *prometheus.CounterVec
	HistoryTaskLatency *prometheus.HistogramVec

	// Cluster metrics
	RingHosts prometheus.Gauge
}

// NewMetrics creates Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairscheduler_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repairscheduler_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SchemaEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairscheduler_schema_events_total",
				Help: "Total number of schema change events handled",
			},
			[]string{"kind"},
		),

		ConfigurationTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairscheduler_configuration_transitions_total",
				Help: "Total number of repair configuration changes",
			},
			[]string{"action"},
		),

		TableReferences: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repairscheduler_table_references",
				Help: "Number of cached table references",
			},
		),

		TrackedTables: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repairscheduler_tracked_tables",
				Help: "Number of tables with a repair job",
			},
		),

		TablesDue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repairscheduler_tables_due",
				Help: "Number of tracked tables that are due for repair",
			},
		),

		TablesLate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "repairscheduler_tables_late",
				Help: "Number of tracked tables past their warning or error time",
			},
			[]string{"severity"},
		),

		OldestRepairAge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repairscheduler_oldest_repair_age_seconds",
				Help: "Age of the least recently repaired table",
			},
		),

		RepairCompletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairscheduler_repair_completions_total",
				Help: "Total number of reported range repairs",
			},
			[]string{"status"},
		),

		HistoryTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repairscheduler_history_tasks_total",
				Help: "Total number of background repair history tasks",
			},
			[]string{"pool", "status"},
		),

		HistoryTaskLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repairscheduler_history_task_duration_seconds",
				Help:    "Duration of background repair history tasks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool"},
		),

		RingHosts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repairscheduler_ring_hosts",
				Help: "Number of hosts on the token ring",
			},
		),
	}
}

// Recording methods are no-ops on a nil *Metrics so components can run
// without metrics.

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSchemaEvent records a handled schema event
func (m *Metrics) RecordSchemaEvent(kind string) {
	if m == nil {
		return
	}
	m.SchemaEvents.WithLabelValues(kind).Inc()
}

// RecordTransition records a configuration change: added, updated or removed
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.ConfigurationTransitions.WithLabelValues(action).Inc()
}

// UpdateTableReferences updates the identity cache size
func (m *Metrics) UpdateTableReferences(count int) {
	if m == nil {
		return
	}
	m.TableReferences.Set(float64(count))
}

// RecordRepairCompletion records a reported range repair
func (m *Metrics) RecordRepairCompletion(status string) {
	if m == nil {
		return
	}
	m.RepairCompletions.WithLabelValues(status).Inc()
}

// UpdateRepairState updates the gauges derived from the current repair jobs
func (m *Metrics) UpdateRepairState(tracked, due, warning, errored int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.TrackedTables.Set(float64(tracked))
	m.TablesDue.Set(float64(due))
	m.TablesLate.WithLabelValues("warning").Set(float64(warning))
	m.TablesLate.WithLabelValues("error").Set(float64(errored))
	m.OldestRepairAge.Set(oldestAge.Seconds())
}

// UpdateRingHosts updates the ring host count
func (m *Metrics) UpdateRingHosts(count int) {
	if m == nil {
		return
	}
	m.RingHosts.Set(float64(count))
}

// TaskFinished implements workerpool.Observer
func (m *Metrics) TaskFinished(pool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.HistoryTasks.WithLabelValues(pool, status).Inc()
	m.HistoryTaskLatency.WithLabelValues(pool).Observe(duration.Seconds())
}
