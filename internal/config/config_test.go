package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMySQL, cfg.Store.Driver)
	assert.Equal(t, "retail-sales-stream", cfg.Stream.Prefix)
	assert.Equal(t, 2, cfg.Stream.Partitions)
	assert.Equal(t, 5, cfg.Applier.CriticalFloor)
	assert.Equal(t, AlertModeEvery, cfg.Alerts.Mode)
	assert.Equal(t, []string{SinkLog}, cfg.Alerts.Sinks)
	assert.Equal(t, 25*time.Second, cfg.Verifier.Timeout)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INVENTORY_STORE_DRIVER", "memory")
	t.Setenv("INVENTORY_STREAM_DRIVER", "memory")
	t.Setenv("INVENTORY_STREAM_PARTITIONS", "4")
	t.Setenv("INVENTORY_ALERT_MODE", "transition")
	t.Setenv("INVENTORY_CRITICAL_FLOOR", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Stream.Partitions)
	assert.Equal(t, AlertModeTransition, cfg.Alerts.Mode)
	assert.Equal(t, 3, cfg.Applier.CriticalFloor)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("INVENTORY_STORE_DRIVER", "dynamo")
	t.Setenv("INVENTORY_ALERT_SINKS", "log,pubsub")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
	assert.Contains(t, err.Error(), "ALERT_PUBSUB_PROJECT")
}
