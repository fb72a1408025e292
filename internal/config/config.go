package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
)

// Config represents the repair scheduler configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Repair      RepairConfig      `mapstructure:"repair"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Schema      SchemaConfig      `mapstructure:"schema"`
	Gossip      GossipConfig      `mapstructure:"gossip"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"worker_pool"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP and gRPC server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	NodeID          string        `mapstructure:"node_id"`
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RepairConfig represents the default repair policy and reporting
type RepairConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Parallelism       string        `mapstructure:"parallelism"`
	UnwindRatio       float64       `mapstructure:"unwind_ratio"`
	WarningTime       time.Duration `mapstructure:"warning_time"`
	ErrorTime         time.Duration `mapstructure:"error_time"`
	OverridesFile     string        `mapstructure:"overrides_file"`
	StatusInterval    time.Duration `mapstructure:"status_interval"`
	ExcludedKeyspaces []string      `mapstructure:"excluded_keyspaces"`
}

// DatabaseConfig represents the PostgreSQL cluster metadata and repair
// history database
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents the Redis idempotency store configuration
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// SchemaConfig represents schema and ring refresh configuration
type SchemaConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	VirtualNodes    int           `mapstructure:"virtual_nodes"`
	LoadHosts       bool          `mapstructure:"load_hosts"`
}

// GossipConfig represents memberlist gossip configuration
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

// WorkerPoolConfig represents the repair history worker pool
type WorkerPoolConfig struct {
	MaxWorkers  int           `mapstructure:"max_workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// RateLimiterConfig represents HTTP rate limiting configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RepairConfiguration returns the default per-table repair policy
func (c *Config) RepairConfiguration() model.RepairConfiguration {
	return model.RepairConfiguration{
		RepairInterval: c.Repair.Interval,
		Parallelism:    model.RepairParallelism(c.Repair.Parallelism),
		UnwindRatio:    c.Repair.UnwindRatio,
		WarningTime:    c.Repair.WarningTime,
		ErrorTime:      c.Repair.ErrorTime,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return errors.New("server.http_port must be between 1 and 65535")
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return errors.New("server.grpc_port must be between 1 and 65535")
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		return errors.New("server.http_port and server.grpc_port must differ")
	}
	if err := c.RepairConfiguration().Validate(); err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Host == "" {
			return errors.New("redis.host is required")
		}
		if c.Redis.IdempotencyTTL <= 0 {
			return errors.New("redis.idempotency_ttl must be positive")
		}
	}
	if c.Schema.VirtualNodes <= 0 {
		return errors.New("schema.virtual_nodes must be positive")
	}
	if c.Gossip.Enabled && (c.Gossip.BindPort <= 0 || c.Gossip.BindPort > 65535) {
		return errors.New("gossip.bind_port must be between 1 and 65535")
	}
	if c.WorkerPool.MaxWorkers <= 0 {
		return errors.New("worker_pool.max_workers must be positive")
	}
	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return errors.New("rate_limiter.requests_per_second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return errors.New("rate_limiter.burst_size must be positive")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errors.New("logging.format must be one of: json, console")
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8080,
			GRPCPort:        50061,
			NodeID:          "repair-scheduler-1",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Repair: RepairConfig{
			Interval:          model.DefaultRepairInterval,
			Parallelism:       string(model.RepairParallelismParallel),
			UnwindRatio:       0,
			WarningTime:       model.DefaultRepairWarningTime,
			ErrorTime:         model.DefaultRepairErrorTime,
			StatusInterval:    time.Minute,
			ExcludedKeyspaces: []string{"system", "system_schema", "system_virtual_schema", "system_views"},
		},
		Database: DatabaseConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           5432,
			Database:       "pairdb_metadata",
			User:           "repair_scheduler",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           6379,
			DB:             0,
			IdempotencyTTL: 24 * time.Hour,
		},
		Schema: SchemaConfig{
			RefreshInterval: 30 * time.Second,
			VirtualNodes:    150,
			LoadHosts:       true,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeTimeout:   500 * time.Millisecond,
			ProbeInterval:  time.Second,
		},
		WorkerPool: WorkerPoolConfig{
			MaxWorkers:  4,
			QueueSize:   1024,
			TaskTimeout: 30 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			BurstSize:         20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
