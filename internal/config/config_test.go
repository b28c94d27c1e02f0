package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8002", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerResetTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.True(t, cfg.FallbackEnabled)
	assert.Equal(t, 30*time.Minute, cfg.ExpiryStandard)
	assert.Equal(t, 24*time.Hour, cfg.ExpiryBankTransfer)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PAYMENT_MAX_RETRIES", "7")
	t.Setenv("PAYMENT_FALLBACK_ENABLED", "false")
	t.Setenv("PAYMENT_EXPIRY_STANDARD", "45m")
	t.Setenv("BREAKER_RESET_TIMEOUT", "90s")

	cfg := Load()

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.False(t, cfg.FallbackEnabled)
	assert.Equal(t, 45*time.Minute, cfg.ExpiryStandard)
	assert.Equal(t, 90*time.Second, cfg.BreakerResetTimeout)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PAYMENT_MAX_RETRIES", "several")
	t.Setenv("PAYMENT_EXPIRY_STANDARD", "soon")
	t.Setenv("PAYMENT_FALLBACK_ENABLED", "yep")

	cfg := Load()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.ExpiryStandard)
	assert.True(t, cfg.FallbackEnabled)
}
