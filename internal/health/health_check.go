package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the repair scheduler
const ServiceName = "pairdb.repairscheduler.RepairScheduler"

// Pinger is a dependency that can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints and keeps the gRPC health
// service in line with dependency health
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]Pinger
	serving bool
	timeout time.Duration
	grpc    *grpchealth.Server
	logger  *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a health checker. It reports not serving until
// SetServing(true) is called.
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	h := &HealthChecker{
		checks:  make(map[string]Pinger),
		timeout: 5 * time.Second,
		grpc:    grpchealth.NewServer(),
		logger:  logger,
	}
	h.publish(false)
	return h
}

// AddCheck registers a dependency probed by readiness checks
func (h *HealthChecker) AddCheck(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = p
}

// GRPCServer returns the gRPC health service implementation
func (h *HealthChecker) GRPCServer() *grpchealth.Server {
	return h.grpc
}

// SetServing marks the scheduler as able to serve, typically once the
// initial schema scan is done and until shutdown begins
func (h *HealthChecker) SetServing(serving bool) {
	h.mu.Lock()
	h.serving = serving
	h.mu.Unlock()
	h.publish(serving)
}

// Shutdown marks every service as not serving
func (h *HealthChecker) Shutdown() {
	h.mu.Lock()
	h.serving = false
	h.mu.Unlock()
	h.grpc.Shutdown()
}

// Check probes every dependency and reports the result per dependency
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]Pinger, len(h.checks))
	for name, p := range h.checks {
		checks[name] = p
	}
	serving := h.serving
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]string, len(names)+1)
	healthy := serving
	if serving {
		results["scheduler"] = "serving"
	} else {
		results["scheduler"] = "not serving"
	}
	for _, name := range names {
		if err := checks[name].Ping(ctx); err != nil {
			h.logger.Error("Health check failed",
				zap.String("check", name),
				zap.Error(err))
			results[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		results[name] = "healthy"
	}
	return results, healthy
}

// Start periodically probes dependencies and updates the gRPC serving
// status until the context is cancelled
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, healthy := h.Check(ctx)
			h.publish(healthy)
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.Check(r.Context())

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	if healthy {
		status.Status = "ready"
		writeStatus(w, http.StatusOK, status)
		return
	}
	status.Status = "not_ready"
	writeStatus(w, http.StatusServiceUnavailable, status)
}

func (h *HealthChecker) publish(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		h.mu.RLock()
		if h.serving {
			status = healthpb.HealthCheckResponse_SERVING
		}
		h.mu.RUnlock()
	}
	h.grpc.SetServingStatus("", status)
	h.grpc.SetServingStatus(ServiceName, status)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
