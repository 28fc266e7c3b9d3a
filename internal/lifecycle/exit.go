package lifecycle

import "paperTrader/internal/domain"

// Decision is the outcome of an exit check: why and at which price to close.
type Decision struct {
	Reason domain.ExitReason
	Price  float64
}

// EvaluateExit decides whether pos should close at the current price.
// Stop-loss is checked first, then take-profit, then the exit signal, so
// exactly one reason is ever reported. Protective levels exit at the level
// itself; the exit signal exits at the current price.
func EvaluateExit(pos *domain.Position, price float64, exitSignal bool) (Decision, bool) {
	if pos == nil || !pos.IsOpen() {
		return Decision{}, false
	}

	switch pos.Direction {
	case domain.Long:
		if pos.StopLoss != nil && price <= *pos.StopLoss {
			return Decision{Reason: domain.ExitStopLoss, Price: *pos.StopLoss}, true
		}
		if pos.TakeProfit != nil && price >= *pos.TakeProfit {
			return Decision{Reason: domain.ExitTakeProfit, Price: *pos.TakeProfit}, true
		}
	case domain.Short:
		if pos.StopLoss != nil && price >= *pos.StopLoss {
			return Decision{Reason: domain.ExitStopLoss, Price: *pos.StopLoss}, true
		}
		if pos.TakeProfit != nil && price <= *pos.TakeProfit {
			return Decision{Reason: domain.ExitTakeProfit, Price: *pos.TakeProfit}, true
		}
	}

	if exitSignal {
		return Decision{Reason: domain.ExitSignal, Price: price}, true
	}
	return Decision{}, false
}
