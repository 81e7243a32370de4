// Package signal maps a spread z-score to a discrete trading signal.
package signal

import (
	"fmt"
	"math"

	"pairs_go/internal/domain"
)

// Default thresholds.
const (
	DefaultEntryThreshold = 2.0
	DefaultExitThreshold  = 0.5
)

// Generator holds the thresholds. It keeps no other state, so Generate is a pure function.
type Generator struct {
	EntryThreshold float64
	ExitThreshold  float64
}

// NewGenerator validates the thresholds: 0 <= exit < entry.
func NewGenerator(entry, exit float64) (*Generator, error) {
	if !(entry > 0) || math.IsInf(entry, 0) {
		return nil, &domain.ConfigError{Field: "entry_threshold", Err: fmt.Errorf("must be positive, got %v", entry)}
	}
	if !(exit >= 0) || exit >= entry {
		return nil, &domain.ConfigError{Field: "exit_threshold", Err: fmt.Errorf("must be in [0, %v), got %v", entry, exit)}
	}
	return &Generator{EntryThreshold: entry, ExitThreshold: exit}, nil
}

// Generate applies the rules in priority order. Boundaries are inclusive.
//  1. undefined z-score -> HOLD
//  2. FLAT: z <= -entry -> ENTER_LONG_SPREAD, z >= +entry -> ENTER_SHORT_SPREAD, else HOLD
//  3. in a position and |z| <= exit -> EXIT
//  4. otherwise HOLD
func (g *Generator) Generate(z float64, state domain.PositionState) domain.Signal {
	if math.IsNaN(z) {
		return domain.SignalHold
	}

	if state == domain.Flat {
		switch {
		case z <= -g.EntryThreshold:
			return domain.SignalEnterLongSpread
		case z >= g.EntryThreshold:
			return domain.SignalEnterShortSpread
		default:
			return domain.SignalHold
		}
	}

	if math.Abs(z) <= g.ExitThreshold {
		return domain.SignalExit
	}
	return domain.SignalHold
}
