package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 50, cfg.ImportBatchSize)
	assert.Equal(t, 4, cfg.ImportWorkers)
	assert.Equal(t, 3, cfg.DispatchMaxAttempts)
	assert.Equal(t, time.Second, cfg.DispatchBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.DispatchMaxDelay)
	assert.Equal(t, 3, cfg.BreakerFailureThreshold)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	assert.False(t, cfg.ERPWaitForRecovery)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("IMPORT_BATCH_SIZE", "25")
	t.Setenv("DISPATCH_BASE_DELAY", "250ms")
	t.Setenv("BREAKER_COOLDOWN", "5m")
	t.Setenv("ERP_WAIT_FOR_RECOVERY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.ImportBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.BreakerCooldown)
	assert.True(t, cfg.ERPWaitForRecovery)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("IMPORT_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMPORT_WORKERS")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: "5432", DBUser: "app",
		DBPassword: "pw", DBName: "mw", DBSSLMode: "require",
	}
	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=mw sslmode=require", cfg.DSN())
}
