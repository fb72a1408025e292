package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/cluster"
	"github.com/devrev/pairdb/repairscheduler/internal/config"
	"github.com/devrev/pairdb/repairscheduler/internal/handler"
	"github.com/devrev/pairdb/repairscheduler/internal/health"
	"github.com/devrev/pairdb/repairscheduler/internal/metrics"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/devrev/pairdb/repairscheduler/internal/server"
	"github.com/devrev/pairdb/repairscheduler/internal/service"
	"github.com/devrev/pairdb/repairscheduler/internal/store"
	"github.com/devrev/pairdb/repairscheduler/internal/util/workerpool"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	idempotencyCacheSize = 10000
	healthCheckInterval  = 10 * time.Second
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting PairDB Repair Scheduler",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Bool("database_enabled", cfg.Database.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("gossip_enabled", cfg.Gossip.Enabled))

	overrides, err := config.LoadTableOverrides(cfg.Repair.OverridesFile)
	if err != nil {
		logger.Fatal("Failed to load table overrides", zap.Error(err))
	}
	defaults := cfg.RepairConfiguration()
	if err := overrides.Validate(defaults); err != nil {
		logger.Fatal("Invalid table overrides", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Initialize stores
	var (
		pgPool       *pgxpool.Pool
		schemaSource cluster.SchemaSource
		historyStore store.RepairHistoryStore
	)
	if cfg.Database.Enabled {
		pgPool, err = store.NewPostgresPool(ctx, store.PostgresOptions{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			MaxConns: cfg.Database.MaxConnections,
			MinConns: cfg.Database.MinConnections,
		})
		if err != nil {
			logger.Fatal("Failed to connect to metadata database", zap.Error(err))
		}
		defer pgPool.Close()

		schemaSource = cluster.NewPostgresSchemaSource(pgPool, cfg.Schema.LoadHosts, logger)
		historyStore = store.NewPostgresRepairHistoryStore(pgPool, logger)
		logger.Info("Metadata database initialized")
	} else {
		historyStore = store.NewInMemoryRepairHistoryStore()
		logger.Warn("Metadata database disabled, repair history is kept in memory")
	}
	defer historyStore.Close()

	var idempotencyStore store.IdempotencyStore
	if cfg.Redis.Enabled {
		idempotencyStore, err = store.NewRedisIdempotencyStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize idempotency store", zap.Error(err))
		}
	} else {
		idempotencyStore = store.NewInMemoryIdempotencyStore(idempotencyCacheSize)
	}
	defer idempotencyStore.Close()

	// Cluster view
	c := cluster.NewCluster(logger)
	localHost := model.Host{ID: cfg.Server.NodeID, Address: cfg.Server.Address}

	var refresher *cluster.SchemaRefresher
	if schemaSource != nil {
		refresher = cluster.NewSchemaRefresher(schemaSource, c, cfg.Schema.RefreshInterval, logger)
		if err := refresher.Refresh(ctx); err != nil {
			logger.Fatal("Failed to load initial schema", zap.Error(err))
		}
	}
	if c.Ring().HostCount() == 0 {
		c.AddHost(localHost, cfg.Schema.VirtualNodes)
	}

	// Repair state
	pool := workerpool.New(workerpool.Config{
		Name:        "repair-history",
		MaxWorkers:  cfg.WorkerPool.MaxWorkers,
		QueueSize:   cfg.WorkerPool.QueueSize,
		TaskTimeout: cfg.WorkerPool.TaskTimeout,
		Observer:    m,
		Logger:      logger,
	})

	vnodeStore := store.NewVnodeStateStore()
	synchronizer := service.NewVnodeStateSynchronizer(c, vnodeStore, historyStore, pool, m, logger)
	aggregator := service.NewRepairStateAggregator(nil, nil)
	scheduler := service.NewRepairScheduler(vnodeStore, aggregator, synchronizer, m, logger)
	c.RegisterTopologyListener(synchronizer)

	factory, err := service.NewTableReferenceFactory(c, m, logger)
	if err != nil {
		logger.Fatal("Failed to create table reference factory", zap.Error(err))
	}

	provider, err := service.NewRepairConfigurationProvider(service.RepairConfigurationProviderConfig{
		Cluster:                 c,
		ReplicatedTableProvider: cluster.NewLocalReplicationProvider(c, localHost.ID, cfg.Repair.ExcludedKeyspaces),
		RepairScheduler:         scheduler,
		TableReferenceFactory:   factory,
		RepairConfiguration:     overrides.Policy(defaults),
		Metrics:                 m,
		Logger:                  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create repair configuration provider", zap.Error(err))
	}
	logger.Info("Repair configuration provider started", zap.Int("tables", scheduler.Size()))

	reporter := service.NewRepairStatusReporter(scheduler, cfg.Repair.StatusInterval, m, logger)
	reporter.Start()

	if refresher != nil {
		refresher.Start()
	}

	var membership *cluster.Membership
	if cfg.Gossip.Enabled {
		membership, err = cluster.NewMembership(&cluster.MembershipConfig{
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
			VirtualNodes:   cfg.Schema.VirtualNodes,
		}, localHost, c, logger)
		if err != nil {
			logger.Fatal("Failed to join gossip cluster", zap.Error(err))
		}
	}

	// Servers
	healthChecker := health.NewHealthChecker(logger)
	healthChecker.AddCheck("repair_history", historyStore)
	healthChecker.AddCheck("idempotency_store", idempotencyStore)
	if schemaSource != nil {
		healthChecker.AddCheck("schema_source", schemaSource)
	}

	repairHandler := handler.NewRepairHandler(scheduler, synchronizer, idempotencyStore, cfg.Redis.IdempotencyTTL, logger)
	srv := server.NewServer(cfg, repairHandler, healthChecker, m, registry, logger)
	srv.SetupRoutes()

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to create gRPC listener", zap.Error(err))
	}

	healthChecker.SetServing(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return srv.ServeGRPC(grpcListener)
	})
	g.Go(func() error {
		healthChecker.Start(gctx, healthCheckInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully")
		healthChecker.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	// Stop background work before closing the stores it uses
	if membership != nil {
		if err := membership.Shutdown(); err != nil {
			logger.Warn("Failed to leave gossip cluster", zap.Error(err))
		}
	}
	if refresher != nil {
		refresher.Stop()
	}
	provider.Close()
	reporter.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		logger.Warn("Repair history tasks did not drain", zap.Error(err))
	}

	logger.Info("Repair scheduler stopped")
}

func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
