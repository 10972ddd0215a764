package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORAGE_BACKEND", "COMPLETION_POLICY", "RATE_LIMIT_JOIN", "RECONCILE_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, BackendJSON, cfg.StorageBackend)
	assert.Equal(t, "recompute", cfg.CompletionPolicy)
	assert.Equal(t, int64(20), cfg.RateLimitJoin)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("RATE_LIMIT_JOIN", "5")
	t.Setenv("RECONCILE_ENABLED", "true")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("SESSION_CACHE_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, int64(5), cfg.RateLimitJoin)
	assert.True(t, cfg.ReconcileEnabled)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 5*time.Minute, cfg.SessionCacheTTL)
}
