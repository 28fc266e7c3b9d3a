package domain

// RiskParams are the per-strategy risk settings supplied by configuration.
type RiskParams struct {
	Quantity         float64 // Size of each simulated entry
	MaxQuantity      float64 // Upper bound for Quantity, 0 means the global limit
	MaxOpenPositions int     // Concurrent open positions for the strategy, 0 means the global limit
	StopLossPct      float64 // Distance of the stop-loss from entry, e.g. 0.05 = 5%. 0 disables it.
	TakeProfitPct    float64 // Distance of the take-profit from entry. 0 disables it.
}

// Strategy is a read-only strategy definition: condition trees plus risk parameters.
type Strategy struct {
	ID          string
	Name        string
	Instruments []string
	Timeframe   string
	Direction   Direction
	Entry       *Condition
	Exit        *Condition
	Risk        RiskParams
	Enabled     bool
}

// Trades reports whether the strategy is enabled for the instrument.
func (s *Strategy) Trades(instrument string) bool {
	if !s.Enabled {
		return false
	}
	for _, i := range s.Instruments {
		if i == instrument {
			return true
		}
	}
	return false
}
