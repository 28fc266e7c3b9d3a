package strategies

import (
	"fmt"

	"paperTrader/internal/domain"
)

// rsiMeanReversion buys the oversold level and exits overbought. Short
// strategies do the reverse.
func rsiMeanReversion(cfg Config) (entry, exit *domain.Condition, name string, err error) {
	if cfg.RSIPeriod <= 0 {
		return nil, nil, "", fmt.Errorf("RSI period must be positive")
	}
	if cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, nil, "", fmt.Errorf("RSI oversold (%v) must be below overbought (%v)", cfg.RSIOversold, cfg.RSIOverbought)
	}

	rsi := fmt.Sprintf("RSI_%d", cfg.RSIPeriod)
	entry = leaf("rsi-oversold", rsi, domain.OpLess, cfg.RSIOversold)
	exit = leaf("rsi-overbought", rsi, domain.OpGreater, cfg.RSIOverbought)
	if cfg.Direction == domain.Short {
		entry, exit = exit, entry
	}
	return entry, exit, fmt.Sprintf("RSI(%d) %v/%v", cfg.RSIPeriod, cfg.RSIOversold, cfg.RSIOverbought), nil
}
