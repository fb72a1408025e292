// Package server provides the HTTP and gRPC servers of the repair scheduler.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/config"
	"github.com/devrev/pairdb/repairscheduler/internal/handler"
	"github.com/devrev/pairdb/repairscheduler/internal/health"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server represents the HTTP and gRPC servers.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	grpcServer    *grpc.Server
	repairHandler *handler.RepairHandler
	healthChecker *health.HealthChecker
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	logger        *zap.Logger
	cfg           *config.Config
}

// NewServer creates the servers. Metrics and gatherer may be nil when
// metrics are disabled.
func NewServer(
	cfg *config.Config,
	repairHandler *handler.RepairHandler,
	healthChecker *health.HealthChecker,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	s := &Server{
		router:        router,
		httpServer:    httpServer,
		repairHandler: repairHandler,
		healthChecker: healthChecker,
		metrics:       m,
		gatherer:      gatherer,
		logger:        logger,
		cfg:           cfg,
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.ChainUnaryInterceptor(s.unaryLogging),
	)
	healthpb.RegisterHealthServer(s.grpcServer, healthChecker.GRPCServer())

	return s
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, middleware.Metrics(s.metrics))
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthChecker.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthChecker.ReadinessHandler).Methods(http.MethodGet)

	if s.cfg.Metrics.Enabled && s.gatherer != nil {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.repairHandler.RegisterRoutes(s.router)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, http.StatusNotFound, "endpoint not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// ServeGRPC serves the gRPC health service on the listener and blocks
// until the server stops.
func (s *Server) ServeGRPC(lis net.Listener) error {
	s.logger.Info("Starting gRPC server", zap.String("address", lis.Addr().String()))

	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down both servers, forcing the gRPC server
// to stop if the context expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down servers")

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	err := s.httpServer.Shutdown(ctx)

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("gRPC server stop timeout, forcing shutdown")
		s.grpcServer.Stop()
		<-stopped
	}
	return err
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

func (s *Server) unaryLogging(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	next grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	if err != nil {
		s.logger.Warn("gRPC request failed",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return resp, err
	}
	s.logger.Debug("gRPC request completed",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func writeRouteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.ErrorResponse{
		Status:    "error",
		ErrorCode: "INVALID_REQUEST",
		Message:   message,
	})
}
