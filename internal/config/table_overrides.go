package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"gopkg.in/yaml.v3"
)

// RepairOverride changes part of the default repair policy. Unset fields
// inherit from the enclosing level.
type RepairOverride struct {
	Enabled     *bool          `yaml:"enabled"`
	Interval    *time.Duration `yaml:"interval"`
	Parallelism *string        `yaml:"parallelism"`
	UnwindRatio *float64       `yaml:"unwind_ratio"`
	WarningTime *time.Duration `yaml:"warning_time"`
	ErrorTime   *time.Duration `yaml:"error_time"`
}

// KeyspaceOverride is the override for a keyspace and its tables
type KeyspaceOverride struct {
	RepairOverride `yaml:",inline"`
	Tables         map[string]RepairOverride `yaml:"tables"`
}

// TableOverrides holds per-keyspace and per-table repair policy overrides.
// Names are matched case-insensitively.
//
//	keyspaces:
//	  orders:
//	    interval: 24h
//	    tables:
//	      audit_log:
//	        enabled: false
type TableOverrides struct {
	Keyspaces map[string]KeyspaceOverride `yaml:"keyspaces"`
}

// LoadTableOverrides reads an override file. An empty path yields no overrides.
func LoadTableOverrides(filePath string) (*TableOverrides, error) {
	if filePath == "" {
		return &TableOverrides{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}
	return ParseTableOverrides(data)
}

// ParseTableOverrides parses override YAML
func ParseTableOverrides(data []byte) (*TableOverrides, error) {
	var raw TableOverrides
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}

	overrides := &TableOverrides{Keyspaces: make(map[string]KeyspaceOverride, len(raw.Keyspaces))}
	for ksName, ks := range raw.Keyspaces {
		tables := make(map[string]RepairOverride, len(ks.Tables))
		for tblName, tbl := range ks.Tables {
			tables[strings.ToLower(tblName)] = tbl
		}
		ks.Tables = tables
		overrides.Keyspaces[strings.ToLower(ksName)] = ks
	}
	return overrides, nil
}

// Resolve returns the repair configuration of one table
func (o *TableOverrides) Resolve(defaults model.RepairConfiguration, keyspace, table string) model.RepairConfiguration {
	ks, exists := o.Keyspaces[strings.ToLower(keyspace)]
	if !exists {
		return defaults
	}

	config, enabled := ks.RepairOverride.apply(defaults, true)
	if tbl, exists := ks.Tables[strings.ToLower(table)]; exists {
		config, enabled = tbl.apply(config, enabled)
	}
	if !enabled {
		return model.DisabledRepairConfiguration
	}
	return config
}

// Validate checks that every override resolves to a valid configuration
func (o *TableOverrides) Validate(defaults model.RepairConfiguration) error {
	for ksName, ks := range o.Keyspaces {
		if err := o.Resolve(defaults, ksName, "").Validate(); err != nil {
			return fmt.Errorf("keyspace %s: %w", ksName, err)
		}
		for tblName := range ks.Tables {
			if err := o.Resolve(defaults, ksName, tblName).Validate(); err != nil {
				return fmt.Errorf("table %s.%s: %w", ksName, tblName, err)
			}
		}
	}
	return nil
}

// Policy returns the configuration function used by the configuration
// provider
func (o *TableOverrides) Policy(defaults model.RepairConfiguration) func(*model.TableReference) model.RepairConfiguration {
	return func(table *model.TableReference) model.RepairConfiguration {
		return o.Resolve(defaults, table.Keyspace(), table.Table())
	}
}

func (r RepairOverride) apply(base model.RepairConfiguration, enabled bool) (model.RepairConfiguration, bool) {
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	if r.Interval != nil {
		base.RepairInterval = *r.Interval
	}
	if r.Parallelism != nil {
		base.Parallelism = model.RepairParallelism(*r.Parallelism)
	}
	if r.UnwindRatio != nil {
		base.UnwindRatio = *r.UnwindRatio
	}
	if r.WarningTime != nil {
		base.WarningTime = *r.WarningTime
	}
	if r.ErrorTime != nil {
		base.ErrorTime = *r.ErrorTime
	}
	return base, enabled
}
