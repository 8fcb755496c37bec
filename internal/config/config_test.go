package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/subscription"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OWNER_ACCOUNT", "owner")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
	assert.Equal(t, 720*time.Hour, cfg.SubscriptionPeriod)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.DevFaucet)

	lc, err := cfg.Ledger()
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", lc.Fee.String())
	assert.Equal(t, "owner", lc.Owner)
	assert.Equal(t, int64(30*24*3600), lc.PeriodSeconds())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OWNER_ACCOUNT", " owner ")
	t.Setenv("SUBSCRIPTION_FEE", "10")
	t.Setenv("SUBSCRIPTION_PERIOD", "1h")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DEV_FAUCET", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevFaucet)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)

	lc, err := cfg.Ledger()
	require.NoError(t, err)
	assert.Equal(t, "10", lc.Fee.String())
	assert.Equal(t, time.Hour, lc.Period)
	assert.Equal(t, "owner", lc.Owner)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("OWNER_ACCOUNT", "owner")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad fee", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("OWNER_ACCOUNT", "owner")
		t.Setenv("SUBSCRIPTION_FEE", "0.5")
		_, err := Load()
		assert.ErrorIs(t, err, subscription.ErrInvalidConfig)
	})

	t.Run("faucet with remote rail", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("OWNER_ACCOUNT", "owner")
		t.Setenv("DEV_FAUCET", "true")
		t.Setenv("PAYMENT_RAIL_URL", "http://rail")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadRelay(t *testing.T) {
	t.Setenv("RELAY_BATCH_SIZE", "5")
	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, "@every 1m", cfg.Schedule)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
}

func TestLoad_UnparsableFee(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OWNER_ACCOUNT", "owner")
	t.Setenv("SUBSCRIPTION_FEE", "ten")
	_, err := Load()
	assert.Error(t, err)
}
