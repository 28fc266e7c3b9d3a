package strategies

import (
	"fmt"

	"paperTrader/internal/domain"
)

// maCrossover follows the fast EMA crossing the slow EMA, confirmed by MACD
// momentum and filtered by RSI and, optionally, ADX trend strength.
//
// Long entry: fast > slow, MACD histogram > 0, RSI below overbought, ADX >= MinADX.
// Long exit: fast < slow or RSI above overbought. Short mirrors both.
func maCrossover(cfg Config) (entry, exit *domain.Condition, name string, err error) {
	if cfg.FastMAPeriod < 2 || cfg.SlowMAPeriod <= cfg.FastMAPeriod {
		return nil, nil, "", fmt.Errorf("need 2 <= fast MA period (%d) < slow MA period (%d)", cfg.FastMAPeriod, cfg.SlowMAPeriod)
	}
	if cfg.RSIPeriod <= 0 {
		return nil, nil, "", fmt.Errorf("RSI period must be positive")
	}
	if cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, nil, "", fmt.Errorf("RSI oversold (%v) must be below overbought (%v)", cfg.RSIOversold, cfg.RSIOverbought)
	}
	if cfg.MinADX > 0 && cfg.ADXPeriod <= 0 {
		return nil, nil, "", fmt.Errorf("ADX period must be positive when a minimum ADX is set")
	}

	fast := fmt.Sprintf("EMA_%d", cfg.FastMAPeriod)
	slow := fmt.Sprintf("EMA_%d", cfg.SlowMAPeriod)
	rsi := fmt.Sprintf("RSI_%d", cfg.RSIPeriod)

	var entryAll, exitAny []*domain.Condition
	if cfg.Direction == domain.Short {
		entryAll = []*domain.Condition{
			cross("fast-below-slow", fast, domain.OpLess, slow),
			leaf("macd-falling", "MACDHIST", domain.OpLess, 0),
			leaf("rsi-not-oversold", rsi, domain.OpGreater, cfg.RSIOversold),
		}
		exitAny = []*domain.Condition{
			cross("fast-above-slow", fast, domain.OpGreater, slow),
			leaf("rsi-oversold", rsi, domain.OpLess, cfg.RSIOversold),
		}
	} else {
		entryAll = []*domain.Condition{
			cross("fast-above-slow", fast, domain.OpGreater, slow),
			leaf("macd-rising", "MACDHIST", domain.OpGreater, 0),
			leaf("rsi-not-overbought", rsi, domain.OpLess, cfg.RSIOverbought),
		}
		exitAny = []*domain.Condition{
			cross("fast-below-slow", fast, domain.OpLess, slow),
			leaf("rsi-overbought", rsi, domain.OpGreater, cfg.RSIOverbought),
		}
	}
	if cfg.MinADX > 0 {
		entryAll = append(entryAll, leaf("trend-strength", fmt.Sprintf("ADX_%d", cfg.ADXPeriod), domain.OpGreaterEqual, cfg.MinADX))
	}

	entry = &domain.Condition{ID: "ma-crossover-entry", All: entryAll}
	exit = &domain.Condition{ID: "ma-crossover-exit", Any: exitAny}
	return entry, exit, fmt.Sprintf("EMA(%d/%d) crossover", cfg.FastMAPeriod, cfg.SlowMAPeriod), nil
}
