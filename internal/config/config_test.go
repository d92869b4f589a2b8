package config_test

import (
	"testing"
	"time"

	"github.com/francopay/settleops/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/settleops")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "simulate", cfg.KotaniMode)
	assert.Equal(t, "simulate", cfg.LedgerMode)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
}

func TestLoadRequiresDBSourceForPostgres(t *testing.T) {
	t.Setenv("DB_SOURCE", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadMemoryBackendNeedsNoDB(t *testing.T) {
	t.Setenv("DB_SOURCE", "")
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreBackend)
}

func TestLoadRejectsBadKotaniMode(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/settleops")
	t.Setenv("KOTANI_MODE", "lvie")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsRPCModeWithoutURL(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/settleops")
	t.Setenv("LEDGER_MODE", "rpc")
	t.Setenv("LEDGER_RPC_URL", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/settleops")
	t.Setenv("CALL_TIMEOUT", "banana")

	_, err := config.Load()
	assert.Error(t, err)
}
