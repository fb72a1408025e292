package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/config"
	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overridesYAML = `
keyspaces:
  Orders:
    interval: 24h
    tables:
      audit_log:
        enabled: false
      payments:
        warning_time: 36h
        error_time: 48h
  archive:
    enabled: false
    tables:
      kept:
        enabled: true
`

func TestTableOverrides_Resolve(t *testing.T) {
	overrides, err := config.ParseTableOverrides([]byte(overridesYAML))
	require.NoError(t, err)

	defaults := model.DefaultRepairConfiguration()

	assert.Equal(t, defaults, overrides.Resolve(defaults, "users", "profiles"))

	orders := overrides.Resolve(defaults, "orders", "items")
	assert.Equal(t, 24*time.Hour, orders.RepairInterval)
	assert.Equal(t, defaults.WarningTime, orders.WarningTime)

	payments := overrides.Resolve(defaults, "ORDERS", "Payments")
	assert.Equal(t, 24*time.Hour, payments.RepairInterval)
	assert.Equal(t, 36*time.Hour, payments.WarningTime)
	assert.Equal(t, 48*time.Hour, payments.ErrorTime)

	assert.True(t, overrides.Resolve(defaults, "orders", "audit_log").IsDisabled())
	assert.True(t, overrides.Resolve(defaults, "archive", "old").IsDisabled())

	// A table can opt back in below a disabled keyspace
	kept := overrides.Resolve(defaults, "archive", "kept")
	assert.False(t, kept.IsDisabled())
	assert.Equal(t, defaults, kept)

	require.NoError(t, overrides.Validate(defaults))
}

func TestTableOverrides_Policy(t *testing.T) {
	overrides, err := config.ParseTableOverrides([]byte(overridesYAML))
	require.NoError(t, err)

	policy := overrides.Policy(model.DefaultRepairConfiguration())
	assert.True(t, policy(model.NewTableReference(uuid.New(), "orders", "audit_log")).IsDisabled())
	assert.Equal(t, 24*time.Hour, policy(model.NewTableReference(uuid.New(), "orders", "items")).RepairInterval)
}

func TestTableOverrides_ValidateRejectsBadValues(t *testing.T) {
	overrides, err := config.ParseTableOverrides([]byte(`
keyspaces:
  ks:
    tables:
      tbl:
        warning_time: 10h
        error_time: 5h
`))
	require.NoError(t, err)

	err = overrides.Validate(model.DefaultRepairConfiguration())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ks.tbl")
}

func TestLoadTableOverrides(t *testing.T) {
	empty, err := config.LoadTableOverrides("")
	require.NoError(t, err)
	defaults := model.DefaultRepairConfiguration()
	assert.Equal(t, defaults, empty.Resolve(defaults, "ks", "tbl"))

	path := writeFile(t, "overrides.yaml", overridesYAML)
	overrides, err := config.LoadTableOverrides(path)
	require.NoError(t, err)
	assert.True(t, overrides.Resolve(defaults, "orders", "audit_log").IsDisabled())

	_, err = config.LoadTableOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.ParseTableOverrides([]byte("keyspaces: [1, 2"))
	assert.Error(t, err)
}
