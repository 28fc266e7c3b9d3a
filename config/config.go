package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/risk"
	"paperTrader/internal/strategy/strategies"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	Log logger.Config

	// Market data
	Instruments          []string
	Timeframe            string
	IsTestnet            bool
	HistoryBars          int
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Strategies
	StrategiesFile        string
	StrategyPreset        string // rsi or ma-crossover
	StrategyDirection     domain.Direction
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIOverbought float64 // e.g., 70.0
	StrategyRSIOversold   float64 // e.g., 30.0
	StrategyFastMAPeriod  int     // e.g., 8
	StrategySlowMAPeriod  int     // e.g., 21
	StrategyADXPeriod     int     // e.g., 14
	StrategyMinADX        float64 // 0 disables the trend filter

	// Risk
	MaxQuantity          float64
	MaxOpenPositions     int
	DefaultQuantity      float64
	DefaultStopLossPct   float64 // e.g., 0.02 for 2%
	DefaultTakeProfitPct float64
	PNLPctMin            float64
	PNLPctMax            float64

	// Engine
	Workers           int
	CycleTimeout      time.Duration
	HoldTimeout       time.Duration
	RecheckInterval   time.Duration
	MetricsWindowDays int
}

// LoadConfig loads configuration from environment variables, reading a .env
// file first when one exists.
func LoadConfig(envFiles ...string) (*Config, error) {
	// Variables already set in the environment take precedence over the file.
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	var errs error
	var err error

	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")

	cfg.Log = logger.Config{
		Level:  getEnv("LOG_LEVEL", "INFO"),
		Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		File:   getEnv("LOG_FILE", ""),
	}
	switch cfg.Log.Format {
	case "text", "console", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("LOG_FORMAT must be text, console or json, got %q", cfg.Log.Format))
	}

	cfg.Instruments = getEnvAsList("INSTRUMENTS", []string{"ETHUSDT"})
	if len(cfg.Instruments) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("INSTRUMENTS must name at least one instrument"))
	}
	cfg.Timeframe = getEnv("TIMEFRAME", "1m")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	cfg.HistoryBars, err = getEnvAsIntRequired("HISTORY_BARS", 500)
	errs = multierr.Append(errs, err)
	if cfg.HistoryBars <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("HISTORY_BARS must be positive"))
	}

	reconnectDelaySeconds, err := getEnvAsIntRequired("RECONNECT_DELAY_SECONDS", 5)
	errs = multierr.Append(errs, err)
	if reconnectDelaySeconds <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("RECONNECT_DELAY_SECONDS must be positive"))
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts, err = getEnvAsIntRequired("MAX_RECONNECT_ATTEMPTS", 10)
	errs = multierr.Append(errs, err)
	if cfg.MaxReconnectAttempts < 0 {
		errs = multierr.Append(errs, fmt.Errorf("MAX_RECONNECT_ATTEMPTS cannot be negative"))
	}

	// Strategy Parameters (using defaults if not set)
	cfg.StrategiesFile = getEnv("STRATEGIES_FILE", "strategies.yaml")
	cfg.StrategyDirection = domain.Direction(strings.ToLower(getEnv("STRATEGY_DIRECTION", string(domain.Long))))
	if !cfg.StrategyDirection.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("STRATEGY_DIRECTION must be long or short, got %q", cfg.StrategyDirection))
	}
	cfg.StrategyPreset = strings.ToLower(getEnv("STRATEGY_PRESET", strategies.PresetRSI))
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	if cfg.StrategyRSIPeriod <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("STRATEGY_RSI_PERIOD must be positive"))
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold, between 0-100)"))
	}
	cfg.StrategyFastMAPeriod = getEnvAsInt("STRATEGY_FAST_MA_PERIOD", 8)
	cfg.StrategySlowMAPeriod = getEnvAsInt("STRATEGY_SLOW_MA_PERIOD", 21)
	cfg.StrategyADXPeriod = getEnvAsInt("STRATEGY_ADX_PERIOD", 14)
	cfg.StrategyMinADX = getEnvAsFloat("STRATEGY_MIN_ADX", 0)
	if _, err := strategies.Build(cfg.DefaultStrategy()); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("STRATEGY_* settings: %w", err))
	}

	// Risk
	cfg.MaxQuantity, err = getEnvAsFloatRequired("MAX_QUANTITY", 0)
	errs = multierr.Append(errs, err)
	if cfg.MaxQuantity < 0 {
		errs = multierr.Append(errs, fmt.Errorf("MAX_QUANTITY cannot be negative"))
	}
	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 0)
	errs = multierr.Append(errs, err)
	if cfg.MaxOpenPositions < 0 {
		errs = multierr.Append(errs, fmt.Errorf("MAX_OPEN_POSITIONS cannot be negative"))
	}
	cfg.DefaultQuantity, err = getEnvAsFloatRequired("DEFAULT_QUANTITY", 1.0)
	errs = multierr.Append(errs, err)
	if cfg.DefaultQuantity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("DEFAULT_QUANTITY must be positive"))
	}
	cfg.DefaultStopLossPct, err = getEnvAsFloatRequired("DEFAULT_STOP_LOSS_PCT", 0.02)
	errs = multierr.Append(errs, err)
	if cfg.DefaultStopLossPct < 0 || cfg.DefaultStopLossPct >= 1.0 {
		errs = multierr.Append(errs, fmt.Errorf("DEFAULT_STOP_LOSS_PCT must be in [0.0, 1.0)"))
	}
	cfg.DefaultTakeProfitPct, err = getEnvAsFloatRequired("DEFAULT_TAKE_PROFIT_PCT", 0.03)
	errs = multierr.Append(errs, err)
	if cfg.DefaultTakeProfitPct < 0 {
		errs = multierr.Append(errs, fmt.Errorf("DEFAULT_TAKE_PROFIT_PCT cannot be negative"))
	}
	cfg.PNLPctMin, err = getEnvAsFloatRequired("PNL_PCT_MIN", -100)
	errs = multierr.Append(errs, err)
	cfg.PNLPctMax, err = getEnvAsFloatRequired("PNL_PCT_MAX", 100000)
	errs = multierr.Append(errs, err)
	if cfg.PNLPctMin >= cfg.PNLPctMax {
		errs = multierr.Append(errs, fmt.Errorf("PNL_PCT_MIN must be less than PNL_PCT_MAX"))
	}

	// Engine
	cfg.Workers, err = getEnvAsIntRequired("WORKERS", 8)
	errs = multierr.Append(errs, err)
	if cfg.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("WORKERS must be positive"))
	}
	cycleTimeoutMS, err := getEnvAsIntRequired("CYCLE_TIMEOUT_MS", 2000)
	errs = multierr.Append(errs, err)
	if cycleTimeoutMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("CYCLE_TIMEOUT_MS must be positive"))
	}
	cfg.CycleTimeout = time.Duration(cycleTimeoutMS) * time.Millisecond
	holdTimeoutMS, err := getEnvAsIntRequired("HOLD_TIMEOUT_MS", 500)
	errs = multierr.Append(errs, err)
	if holdTimeoutMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("HOLD_TIMEOUT_MS must be positive"))
	}
	cfg.HoldTimeout = time.Duration(holdTimeoutMS) * time.Millisecond
	recheckSeconds, err := getEnvAsIntRequired("RECHECK_INTERVAL_SECONDS", 30)
	errs = multierr.Append(errs, err)
	if recheckSeconds < 0 {
		errs = multierr.Append(errs, fmt.Errorf("RECHECK_INTERVAL_SECONDS cannot be negative"))
	}
	cfg.RecheckInterval = time.Duration(recheckSeconds) * time.Second
	cfg.MetricsWindowDays, err = getEnvAsIntRequired("METRICS_WINDOW_DAYS", 30)
	errs = multierr.Append(errs, err)
	if cfg.MetricsWindowDays <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("METRICS_WINDOW_DAYS must be positive"))
	}

	if errs != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", ports.ErrConfigurationError, errs)
	}
	return cfg, nil
}

// RiskConfig returns the global risk limits.
func (c *Config) RiskConfig() risk.RiskConfig {
	return risk.RiskConfig{MaxQuantity: c.MaxQuantity, MaxOpenPositions: c.MaxOpenPositions}
}

// DefaultStrategy returns the settings of the strategy used when no
// strategies file is present.
func (c *Config) DefaultStrategy() strategies.Config {
	return strategies.Config{
		Preset:        c.StrategyPreset,
		Instruments:   c.Instruments,
		Timeframe:     c.Timeframe,
		Direction:     c.StrategyDirection,
		RSIPeriod:     c.StrategyRSIPeriod,
		RSIOverbought: c.StrategyRSIOverbought,
		RSIOversold:   c.StrategyRSIOversold,
		FastMAPeriod:  c.StrategyFastMAPeriod,
		SlowMAPeriod:  c.StrategySlowMAPeriod,
		ADXPeriod:     c.StrategyADXPeriod,
		MinADX:        c.StrategyMinADX,
		Risk: domain.RiskParams{
			Quantity:      c.DefaultQuantity,
			StopLossPct:   c.DefaultStopLossPct,
			TakeProfitPct: c.DefaultTakeProfitPct,
		},
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Set but invalid is an error, unlike unset.
		return defaultValue, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
