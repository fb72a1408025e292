// Package handler provides the HTTP handlers of the repair scheduler API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/errors"
	"github.com/devrev/pairdb/repairscheduler/internal/middleware"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader deduplicates completion reports
const IdempotencyKeyHeader = "Idempotency-Key"

// Sort orders accepted by the status endpoints
const (
	SortTable        = "TABLE"
	SortCanRepair    = "CAN_REPAIR"
	SortLastRepaired = "LAST_REPAIRED"
	SortRange        = "RANGE"
)

// RepairJobSource lists tracked tables
type RepairJobSource interface {
	GetCurrentRepairJobs() []model.RepairJobView
	GetRepairJob(name string) (model.RepairJobView, error)
}

// CompletionRecorder records finished range repairs
type CompletionRecorder interface {
	RecordRepairCompletion(ctx context.Context, table *model.TableReference, tokenRange model.LongTokenRange, repairedAt int64) error
}

// TableStatus is the repair status of one table
type TableStatus struct {
	ID             string  `json:"id"`
	Keyspace       string  `json:"keyspace"`
	Table          string  `json:"table"`
	CanRepair      bool    `json:"can_repair"`
	LastRepairedAt int64   `json:"last_repaired_at"`
	RepairedRatio  float64 `json:"repaired_ratio"`
}

// VnodeStatus is the repair status of one token range
type VnodeStatus struct {
	Start          int64    `json:"start"`
	End            int64    `json:"end"`
	LastRepairedAt int64    `json:"last_repaired_at"`
	Replicas       []string `json:"replicas"`
}

// TableStatusDetail is a table status with its vnodes
type TableStatusDetail struct {
	TableStatus
	Vnodes []VnodeStatus `json:"vnodes"`
}

// TableConfig is the repair configuration of one table
type TableConfig struct {
	ID               string  `json:"id"`
	Keyspace         string  `json:"keyspace"`
	Table            string  `json:"table"`
	RepairIntervalMs int64   `json:"repair_interval_ms"`
	Parallelism      string  `json:"parallelism"`
	UnwindRatio      float64 `json:"unwind_ratio"`
	WarningTimeMs    int64   `json:"warning_time_ms"`
	ErrorTimeMs      int64   `json:"error_time_ms"`
}

// CompletionRequest reports a successful repair of one range.
// RepairedAt defaults to the time the report is received.
type CompletionRequest struct {
	Table      string `json:"table"`
	Start      *int64 `json:"start"`
	End        *int64 `json:"end"`
	RepairedAt int64  `json:"repaired_at,omitempty"`
}

// CompletionResponse acknowledges a completion report
type CompletionResponse struct {
	Table      string `json:"table"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	RepairedAt int64  `json:"repaired_at"`
}

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// RepairHandler serves repair status and accepts completion reports
type RepairHandler struct {
	jobs           RepairJobSource
	recorder       CompletionRecorder
	idempotency    store.IdempotencyStore
	idempotencyTTL time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewRepairHandler creates a repair handler. The idempotency store may be
// nil, in which case Idempotency-Key headers are ignored.
func NewRepairHandler(
	jobs RepairJobSource,
	recorder CompletionRecorder,
	idempotency store.IdempotencyStore,
	idempotencyTTL time.Duration,
	logger *zap.Logger,
) *RepairHandler {
	return &RepairHandler{
		jobs:           jobs,
		recorder:       recorder,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		now:            time.Now,
		logger:         logger,
	}
}

// RegisterRoutes adds the repair routes to the router
func (h *RepairHandler) RegisterRoutes(router *mux.Router) {
	repair := router.PathPrefix("/v1/repair").Subrouter()
	repair.HandleFunc("/status", h.ListStatus).Methods(http.MethodGet)
	repair.HandleFunc("/status/{table}", h.GetTableStatus).Methods(http.MethodGet)
	repair.HandleFunc("/config", h.ListConfig).Methods(http.MethodGet)
	repair.HandleFunc("/completions", h.RecordCompletion).Methods(http.MethodPost)
}

// ListStatus handles GET /v1/repair/status
func (h *RepairHandler) ListStatus(w http.ResponseWriter, r *http.Request) {
	sortBy, reverse, limit, err := parseListOptions(r, SortTable, SortTable, SortCanRepair, SortLastRepaired)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jobs := h.jobs.GetCurrentRepairJobs()
	var less func(a, b model.RepairJobView) bool
	switch sortBy {
	case SortCanRepair:
		less = func(a, b model.RepairJobView) bool {
			return !a.RepairStateSnapshot.CanRepair() && b.RepairStateSnapshot.CanRepair()
		}
	case SortLastRepaired:
		less = func(a, b model.RepairJobView) bool {
			return a.RepairStateSnapshot.LastRepairedAt() < b.RepairStateSnapshot.LastRepairedAt()
		}
	default:
		less = func(a, b model.RepairJobView) bool {
			return a.TableReference.String() < b.TableReference.String()
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if reverse {
			return less(jobs[j], jobs[i])
		}
		return less(jobs[i], jobs[j])
	})

	statuses := make([]TableStatus, 0, len(jobs))
	for _, job := range jobs {
		if len(statuses) == limit {
			break
		}
		statuses = append(statuses, toTableStatus(job))
	}
	h.writeJSONResponse(w, http.StatusOK, statuses)
}

// GetTableStatus handles GET /v1/repair/status/{table}
func (h *RepairHandler) GetTableStatus(w http.ResponseWriter, r *http.Request) {
	sortBy, reverse, limit, err := parseListOptions(r, SortRange, SortRange, SortLastRepaired)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	job, err := h.jobs.GetRepairJob(mux.Vars(r)["table"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	states := job.RepairStateSnapshot.VnodeRepairStates().States()
	var less func(a, b model.VnodeRepairState) bool
	if sortBy == SortLastRepaired {
		less = func(a, b model.VnodeRepairState) bool { return a.LastRepairedAt < b.LastRepairedAt }
	} else {
		less = func(a, b model.VnodeRepairState) bool { return a.TokenRange.Start < b.TokenRange.Start }
	}
	sort.SliceStable(states, func(i, j int) bool {
		if reverse {
			return less(states[j], states[i])
		}
		return less(states[i], states[j])
	})

	detail := TableStatusDetail{
		TableStatus: toTableStatus(job),
		Vnodes:      make([]VnodeStatus, 0, len(states)),
	}
	for _, state := range states {
		if len(detail.Vnodes) == limit {
			break
		}
		detail.Vnodes = append(detail.Vnodes, VnodeStatus{
			Start:          state.TokenRange.Start,
			End:            state.TokenRange.End,
			LastRepairedAt: state.LastRepairedAt,
			Replicas:       state.ReplicaIDs(),
		})
	}
	h.writeJSONResponse(w, http.StatusOK, detail)
}

// ListConfig handles GET /v1/repair/config
func (h *RepairHandler) ListConfig(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.GetCurrentRepairJobs()
	configs := make([]TableConfig, 0, len(jobs))
	for _, job := range jobs {
		cfg := job.RepairConfiguration
		configs = append(configs, TableConfig{
			ID:               job.ID.String(),
			Keyspace:         job.TableReference.Keyspace(),
			Table:            job.TableReference.Table(),
			RepairIntervalMs: cfg.RepairInterval.Milliseconds(),
			Parallelism:      string(cfg.Parallelism),
			UnwindRatio:      cfg.UnwindRatio,
			WarningTimeMs:    cfg.WarningTime.Milliseconds(),
			ErrorTimeMs:      cfg.ErrorTime.Milliseconds(),
		})
	}
	h.writeJSONResponse(w, http.StatusOK, configs)
}

// RecordCompletion handles POST /v1/repair/completions
func (h *RepairHandler) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.InvalidArgument("invalid request body", err))
		return
	}
	if req.Table == "" || req.Start == nil || req.End == nil {
		h.writeError(w, r, errors.InvalidArgument("table, start and end are required", nil))
		return
	}
	if req.RepairedAt <= 0 {
		req.RepairedAt = h.now().UnixMilli()
	}

	job, err := h.jobs.GetRepairJob(req.Table)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && h.idempotency != nil {
		stored, err := h.idempotency.SetNX(r.Context(), key, []byte(job.TableReference.String()), h.idempotencyTTL)
		if err != nil {
			h.writeError(w, r, errors.Unavailable("idempotency store unavailable", err))
			return
		}
		if !stored {
			h.writeError(w, r, errors.DuplicateRequest(key))
			return
		}
	}

	tokenRange := model.NewLongTokenRange(*req.Start, *req.End)
	if err := h.recorder.RecordRepairCompletion(r.Context(), job.TableReference, tokenRange, req.RepairedAt); err != nil {
		if key != "" && h.idempotency != nil {
			// Failed reports can be retried with the same key
			if delErr := h.idempotency.Delete(r.Context(), key); delErr != nil {
				h.logger.Warn("Failed to release idempotency key",
					zap.String("idempotency_key", key),
					zap.Error(delErr))
			}
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, CompletionResponse{
		Table:      job.TableReference.String(),
		Start:      tokenRange.Start,
		End:        tokenRange.End,
		RepairedAt: req.RepairedAt,
	})
}

func toTableStatus(job model.RepairJobView) TableStatus {
	snapshot := job.RepairStateSnapshot
	total := snapshot.VnodeRepairStates().Len()
	ratio := 0.0
	if total > 0 {
		ratio = float64(total-len(snapshot.DueVnodes())) / float64(total)
	}
	return TableStatus{
		ID:             job.ID.String(),
		Keyspace:       job.TableReference.Keyspace(),
		Table:          job.TableReference.Table(),
		CanRepair:      snapshot.CanRepair(),
		LastRepairedAt: snapshot.LastRepairedAt(),
		RepairedRatio:  ratio,
	}
}

// parseListOptions reads sort, reverse and limit query parameters. A limit
// of -1 means unlimited.
func parseListOptions(r *http.Request, defaultSort string, allowed ...string) (string, bool, int, error) {
	query := r.URL.Query()

	sortBy := defaultSort
	if raw := query.Get("sort"); raw != "" {
		sortBy = strings.ToUpper(raw)
		valid := false
		for _, s := range allowed {
			if s == sortBy {
				valid = true
				break
			}
		}
		if !valid {
			return "", false, 0, errors.InvalidArgument("sort must be one of: "+strings.Join(allowed, ", "), nil).
				WithDetail("sort", raw)
		}
	}

	reverse := false
	if raw := query.Get("reverse"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return "", false, 0, errors.InvalidArgument("reverse must be a boolean", err)
		}
		reverse = parsed
	}

	limit := -1
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return "", false, 0, errors.InvalidArgument("limit must be a non-negative integer", err).
				WithDetail("limit", raw)
		}
		limit = parsed
	}

	return sortBy, reverse, limit, nil
}

func (h *RepairHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se, ok := errors.AsSchedulerError(err)
	if !ok {
		se = errors.InternalError("internal server error", err)
	}

	status := se.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
	}

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: se.Code.String(),
		Message:   se.Error(),
		RequestID: middleware.GetRequestID(r.Context()),
	}
	if len(se.Details) > 0 {
		resp.Details = se.Details
	}
	h.writeJSONResponse(w, status, resp)
}

func (h *RepairHandler) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
