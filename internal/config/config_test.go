package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLeavesSchedulerOffByDefault(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL_MINUTES", "")
	assert.Zero(t, Load().ReconcileInterval)

	t.Setenv("RECONCILE_INTERVAL_MINUTES", "15")
	assert.Equal(t, 15*time.Minute, Load().ReconcileInterval)
}

func TestLoadDatabaseLogging(t *testing.T) {
	t.Setenv("DATABASE_LOG_LEVEL", "")
	t.Setenv("DATABASE_SLOW_QUERY_MS", "")
	cfg := Load()
	assert.Equal(t, "warn", cfg.DBLogLevel)
	assert.Equal(t, 200*time.Millisecond, cfg.DBSlowQueryThreshold)

	t.Setenv("DATABASE_LOG_LEVEL", "info")
	t.Setenv("DATABASE_SLOW_QUERY_MS", "50")
	cfg = Load()
	assert.Equal(t, "info", cfg.DBLogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.DBSlowQueryThreshold)
}
