package service

import (
	"sync"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"go.uber.org/zap"
)

// RepairStatus summarizes the repair jobs at one point in time
type RepairStatus struct {
	Tracked   int
	Due       int
	Warning   []*model.TableReference
	Error     []*model.TableReference
	OldestAge time.Duration
}

// RepairStatusReporter periodically publishes repair gauges and reports
// tables that were not repaired within their warning or error time
type RepairStatusReporter struct {
	scheduler *RepairScheduler
	interval  time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRepairStatusReporter creates a status reporter
func NewRepairStatusReporter(scheduler *RepairScheduler, interval time.Duration, metrics *metrics.Metrics, logger *zap.Logger) *RepairStatusReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RepairStatusReporter{
		scheduler: scheduler,
		interval:  interval,
		now:       time.Now,
		metrics:   metrics,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins periodic reporting
func (r *RepairStatusReporter) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Report()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop ends periodic reporting
func (r *RepairStatusReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// Report computes the current status, updates gauges and logs late tables.
// Tables that were never repaired are due but not late.
func (r *RepairStatusReporter) Report() RepairStatus {
	now := r.now().UnixMilli()
	jobs := r.scheduler.GetCurrentRepairJobs()

	status := RepairStatus{Tracked: len(jobs)}
	for _, job := range jobs {
		snapshot := job.RepairStateSnapshot
		if snapshot.CanRepair() {
			status.Due++
		}
		if snapshot.LastRepairedAt() == model.VnodeNeverRepaired {
			continue
		}

		age := time.Duration(now-snapshot.LastRepairedAt()) * time.Millisecond
		if age > status.OldestAge {
			status.OldestAge = age
		}

		config := job.RepairConfiguration
		switch {
		case config.ErrorTime > 0 && age >= config.ErrorTime:
			status.Error = append(status.Error, job.TableReference)
			r.logger.Error("Table not repaired within error time",
				zap.String("table", job.TableReference.String()),
				zap.Duration("age", age),
				zap.Duration("error_time", config.ErrorTime))
		case config.WarningTime > 0 && age >= config.WarningTime:
			status.Warning = append(status.Warning, job.TableReference)
			r.logger.Warn("Table not repaired within warning time",
				zap.String("table", job.TableReference.String()),
				zap.Duration("age", age),
				zap.Duration("warning_time", config.WarningTime))
		}
	}

	r.metrics.UpdateRepairState(status.Tracked, status.Due, len(status.Warning), len(status.Error), status.OldestAge)
	return status
}
