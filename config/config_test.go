package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

var keys = []string{
	"DB_PATH", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "STRATEGIES_FILE", "INSTRUMENTS",
	"TIMEFRAME", "IS_TESTNET", "MAX_QUANTITY", "MAX_OPEN_POSITIONS", "DEFAULT_QUANTITY",
	"DEFAULT_STOP_LOSS_PCT", "DEFAULT_TAKE_PROFIT_PCT", "WORKERS", "CYCLE_TIMEOUT_MS",
	"HOLD_TIMEOUT_MS", "RECHECK_INTERVAL_SECONDS", "METRICS_WINDOW_DAYS", "HISTORY_BARS",
	"RECONNECT_DELAY_SECONDS", "MAX_RECONNECT_ATTEMPTS", "PNL_PCT_MIN", "PNL_PCT_MAX",
	"STRATEGY_PRESET", "STRATEGY_DIRECTION", "STRATEGY_RSI_PERIOD", "STRATEGY_RSI_OVERBOUGHT",
	"STRATEGY_RSI_OVERSOLD", "STRATEGY_FAST_MA_PERIOD", "STRATEGY_SLOW_MA_PERIOD", "STRATEGY_ADX_PERIOD",
	"STRATEGY_MIN_ADX",
}

// clearEnv unsets every configuration key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		old, ok := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "./data/paper_trader.db", cfg.DBPath)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"ETHUSDT"}, cfg.Instruments)
	assert.Equal(t, "1m", cfg.Timeframe)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.CycleTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.HoldTimeout)
	assert.Equal(t, 30*time.Second, cfg.RecheckInterval)
	assert.Equal(t, 30, cfg.MetricsWindowDays)
	assert.Equal(t, domain.Long, cfg.StrategyDirection)

	def := cfg.DefaultStrategy()
	assert.Equal(t, "rsi", def.Preset)
	assert.Equal(t, 14, def.RSIPeriod)
	assert.Equal(t, 1.0, def.Risk.Quantity)
	assert.Equal(t, 0.02, def.Risk.StopLossPct)
	assert.Zero(t, cfg.RiskConfig().MaxOpenPositions)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"INSTRUMENTS=btcusdt, ethusdt\nWORKERS=3\nLOG_FORMAT=JSON\nSTRATEGY_DIRECTION=short\nMAX_OPEN_POSITIONS=2\n"), 0o600))
	// Explicit environment wins over the file.
	t.Setenv("WORKERS", "5")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Instruments)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, domain.Short, cfg.StrategyDirection)
	assert.Equal(t, 2, cfg.RiskConfig().MaxOpenPositions)
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKERS", "many")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("PNL_PCT_MIN", "10")
	t.Setenv("PNL_PCT_MAX", "5")
	t.Setenv("STRATEGY_DIRECTION", "sideways")
	t.Setenv("STRATEGY_PRESET", "martingale")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	for _, want := range []string{"WORKERS", "LOG_FORMAT", "PNL_PCT_MIN", "STRATEGY_DIRECTION", "martingale"} {
		assert.Contains(t, err.Error(), want)
	}
}
