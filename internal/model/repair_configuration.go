package model

import (
	"errors"
	"time"
)

// RepairParallelism controls how replicas of a range are repaired
type RepairParallelism string

const (
	// RepairParallelismParallel repairs all replicas of a range at once
	RepairParallelismParallel RepairParallelism = "parallel"
)

const (
	// DefaultRepairInterval is the target time between repairs of a range
	DefaultRepairInterval = 7 * 24 * time.Hour
	// DefaultRepairWarningTime is the age at which a table is reported late
	DefaultRepairWarningTime = 8 * 24 * time.Hour
	// DefaultRepairErrorTime is the age at which a table is reported failing
	DefaultRepairErrorTime = 10 * 24 * time.Hour
)

// RepairConfiguration is the policy for repairing one table
type RepairConfiguration struct {
	RepairInterval time.Duration     `json:"repair_interval"`
	Parallelism    RepairParallelism `json:"parallelism"`
	UnwindRatio    float64           `json:"unwind_ratio"`
	WarningTime    time.Duration     `json:"warning_time"`
	ErrorTime      time.Duration     `json:"error_time"`

	disabled bool
}

// DisabledRepairConfiguration marks a table that must not be scheduled
var DisabledRepairConfiguration = RepairConfiguration{disabled: true}

// DefaultRepairConfiguration returns the built-in repair policy
func DefaultRepairConfiguration() RepairConfiguration {
	return RepairConfiguration{
		RepairInterval: DefaultRepairInterval,
		Parallelism:    RepairParallelismParallel,
		UnwindRatio:    0,
		WarningTime:    DefaultRepairWarningTime,
		ErrorTime:      DefaultRepairErrorTime,
	}
}

// IsDisabled checks if this is the disabled configuration
func (c RepairConfiguration) IsDisabled() bool {
	return c.disabled
}

// Equal checks if two configurations describe the same policy
func (c RepairConfiguration) Equal(other RepairConfiguration) bool {
	return c == other
}

// Validate checks the configuration values
func (c RepairConfiguration) Validate() error {
	if c.disabled {
		return nil
	}
	if c.RepairInterval <= 0 {
		return errors.New("repair interval must be positive")
	}
	if c.UnwindRatio < 0 {
		return errors.New("unwind ratio must not be negative")
	}
	if c.WarningTime < 0 || c.ErrorTime < 0 {
		return errors.New("warning and error time must not be negative")
	}
	if c.WarningTime > 0 && c.ErrorTime > 0 && c.ErrorTime < c.WarningTime {
		return errors.New("error time must not be shorter than warning time")
	}
	switch c.Parallelism {
	case RepairParallelismParallel:
	default:
		return errors.New("parallelism must be one of: parallel")
	}
	return nil
}
