package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment variables take precedence
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config.
// Setting a database, redis or gossip endpoint also enables that component.
func applyEnvironmentOverrides(cfg *Config) {
	envString("REPAIR_SCHEDULER_NODE_ID", &cfg.Server.NodeID)
	envString("REPAIR_SCHEDULER_ADDRESS", &cfg.Server.Address)
	envInt("HTTP_PORT", &cfg.Server.HTTPPort)
	envInt("GRPC_PORT", &cfg.Server.GRPCPort)

	if envString("DATABASE_HOST", &cfg.Database.Host) {
		cfg.Database.Enabled = true
	}
	envInt("DATABASE_PORT", &cfg.Database.Port)
	envString("DATABASE_NAME", &cfg.Database.Database)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)

	if envString("REDIS_HOST", &cfg.Redis.Host) {
		cfg.Redis.Enabled = true
	}
	envInt("REDIS_PORT", &cfg.Redis.Port)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)

	if seeds := os.Getenv("GOSSIP_SEED_NODES"); seeds != "" {
		cfg.Gossip.Enabled = true
		var nodes []string
		for _, seed := range strings.Split(seeds, ",") {
			if seed = strings.TrimSpace(seed); seed != "" {
				nodes = append(nodes, seed)
			}
		}
		cfg.Gossip.SeedNodes = nodes
	}

	envString("REPAIR_OVERRIDES_FILE", &cfg.Repair.OverridesFile)
	envString("LOG_LEVEL", &cfg.Logging.Level)
}

func envString(key string, target *string) bool {
	value := os.Getenv(key)
	if value == "" {
		return false
	}
	*target = value
	return true
}

// envInt ignores values that are not integers
func envInt(key string, target *int) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
