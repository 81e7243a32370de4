package strategy

import (
	"pairs_go/internal/domain"
	"pairs_go/internal/position"
)

// Strategy is the interface that all pair strategies must implement.
// It is called synchronously by the Sequencer.
type Strategy interface {
	// PairID identifies the pair the strategy owns.
	PairID() string
	// OnBar is called for every new aligned bar.
	// Only non-recoverable errors are returned; the Sequencer halts on them.
	OnBar(bar domain.Bar) (CycleResult, error)
	// Position returns a copy of the current position.
	Position() domain.Position
	// Reset drops all history and flattens without emitting an intent.
	Reset()
}

// CycleResult is everything one evaluation cycle computed.
// Undefined numbers are NaN.
type CycleResult struct {
	PairID   string
	Bar      domain.Bar
	Coint    domain.CointegrationResult
	Hedge    domain.HedgeRatio
	Spread   float64 // Current spread value
	ZScore   float64
	Signal   domain.Signal // Signal after the cointegration gate
	Decision position.Decision
	Skipped  bool   // True when the cycle did not reach the controller
	Reason   string // Why the cycle was skipped or held
}

// Intent returns the intent emitted this cycle, if any.
func (r CycleResult) Intent() *domain.PositionIntent {
	return r.Decision.Intent
}
