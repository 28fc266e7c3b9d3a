package domain

// Direction is the side of a simulated position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// PositionStatus represents the status of a simulated position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop-loss-hit"
	ExitTakeProfit ExitReason = "take-profit-hit"
	ExitSignal     ExitReason = "exit-signal"
	ExitManual     ExitReason = "manual-close"
)

// Valid reports whether r is one of the recognised exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitStopLoss, ExitTakeProfit, ExitSignal, ExitManual:
		return true
	}
	return false
}

// SignalType classifies the outcome of a single evaluation cycle.
type SignalType string

const (
	SignalEntry SignalType = "entry" // Entry tree fired
	SignalExit  SignalType = "exit"  // Exit tree, stop-loss or take-profit fired
	SignalHold  SignalType = "hold"  // Position open, nothing fired
	SignalNone  SignalType = "none"  // No position, entry tree did not fire
	SignalError SignalType = "error" // Cycle aborted (storage fault, invalid input)
)

// Valid reports whether s is a known signal classification.
func (s SignalType) Valid() bool {
	switch s {
	case SignalEntry, SignalExit, SignalHold, SignalNone, SignalError:
		return true
	}
	return false
}
