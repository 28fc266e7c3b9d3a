package domain

import "time"

// AuditEntry is the immutable record of one evaluation cycle of one strategy.
// Entries are written for every cycle, including those where nothing fired.
type AuditEntry struct {
	ID                  int64
	CycleID             string // Correlates entries written for the same bar
	StrategyID          string
	Instrument          string
	Timestamp           time.Time
	Signal              SignalType
	TriggeredConditions []string // Leaf condition identifiers that evaluated true
	MissingIndicators   []string // Indicators that were unavailable during evaluation
	Outcome             string   // Human readable result of the cycle
	PositionID          *int64   // Position opened or closed by the cycle, if any
}
