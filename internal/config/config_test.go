package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersvc/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"COMPUTE_TIMEOUT", "MAX_WORKERS", "MAX_GROUPS", "MAX_CASES", "LEDGER_DRIVER", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultComputeTimeout, cfg.Compute.Timeout)
	assert.Equal(t, int64(0), cfg.Compute.MaxWorkers)
	assert.Equal(t, 100, cfg.Limits.MaxGroups)
	assert.Equal(t, 72, cfg.Limits.MaxCases)
	assert.Empty(t, cfg.Ledger.Driver)
}

func TestLoadComputeTimeoutFormats(t *testing.T) {
	t.Setenv("COMPUTE_TIMEOUT", "30s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Compute.Timeout)

	t.Setenv("COMPUTE_TIMEOUT", "45")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Compute.Timeout)
}

func TestLoadRejectsLedgerWithoutURL(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadRejectsUnknownLedgerDriver(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "mysql")
	t.Setenv("DATABASE_URL", "x")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadMemoryLedgerNeedsNoURL(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Ledger.Driver)
}
