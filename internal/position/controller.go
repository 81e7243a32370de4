// Package position owns the pair's position state machine and its risk overrides.
package position

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pairs_go/internal/domain"
)

// Override identifies a risk rule that forced an exit.
type Override int

const (
	OverrideNone Override = iota
	OverrideMaxHold
	OverrideStopLoss
)

// String returns the string representation of Override
func (o Override) String() string {
	switch o {
	case OverrideNone:
		return "NONE"
	case OverrideMaxHold:
		return "MAX_HOLD"
	case OverrideStopLoss:
		return "STOP_LOSS"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets overrides appear by name in JSON.
func (o Override) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Config holds the risk limits and sizing of one pair.
type Config struct {
	PairID      string
	MaxHold     time.Duration   // 0 disables the holding-time override
	StopLossZ   float64         // 0 disables the stop-loss override
	LegNotional decimal.Decimal // Equal-dollar size of each leg
	NewID       func() string   // Intent ID generator; uuid.NewString when nil
}

// Observation is what the controller sees of the current cycle.
type Observation struct {
	Time        time.Time
	ZScore      float64 // NaN when undefined
	SpreadValue float64
}

// Decision is the outcome of one transition.
type Decision struct {
	Prev     domain.PositionState   `json:"prev"`
	Next     domain.PositionState   `json:"next"`
	Signal   domain.Signal          `json:"signal"`
	Override Override               `json:"override"`
	Intent   *domain.PositionIntent `json:"intent,omitempty"` // nil unless the state changed
}

// Changed reports whether the transition moved the position.
func (d Decision) Changed() bool {
	return d.Prev != d.Next
}

// Controller is the only writer of a pair's Position. Not safe for concurrent use:
// each pair's sequencer owns exactly one controller.
type Controller struct {
	cfg Config
	pos domain.Position
}

// NewController creates a FLAT controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.MaxHold < 0 {
		return nil, &domain.ConfigError{Field: "max_hold_duration", Err: fmt.Errorf("must not be negative, got %s", cfg.MaxHold)}
	}
	if cfg.StopLossZ < 0 || math.IsNaN(cfg.StopLossZ) {
		return nil, &domain.ConfigError{Field: "stop_loss_zscore", Err: fmt.Errorf("must not be negative, got %v", cfg.StopLossZ)}
	}
	if cfg.LegNotional.IsNegative() {
		return nil, &domain.ConfigError{Field: "leg_notional", Err: fmt.Errorf("must not be negative, got %s", cfg.LegNotional)}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Controller{cfg: cfg, pos: domain.Position{State: domain.Flat}}, nil
}

// Position returns a copy of the current position.
func (c *Controller) Position() domain.Position {
	p := c.pos
	if p.Entry != nil {
		entry := *p.Entry
		p.Entry = &entry
	}
	return p
}

// Apply runs one transition. Risk overrides are checked before the signal and win over it.
func (c *Controller) Apply(obs Observation, sig domain.Signal) Decision {
	d := Decision{Prev: c.pos.State, Next: c.pos.State, Signal: sig}

	if c.pos.State != domain.Flat {
		if ov := c.riskOverride(obs); ov != OverrideNone {
			d.Override = ov
			c.close()
			d.Next = domain.Flat
			d.Intent = c.intent(obs, domain.Flat, ov.String())
			c.pos.VerifyInvariant()
			return d
		}
	}

	switch c.pos.State {
	case domain.Flat:
		switch sig {
		case domain.SignalEnterLongSpread:
			c.open(domain.LongSpread, obs)
		case domain.SignalEnterShortSpread:
			c.open(domain.ShortSpread, obs)
		}
	default:
		// No pyramiding: entries while open are ignored
		if sig == domain.SignalExit {
			c.close()
		}
	}

	d.Next = c.pos.State
	if d.Changed() {
		d.Intent = c.intent(obs, d.Next, sig.String())
	}
	c.pos.VerifyInvariant()
	return d
}

// Reset forces the position back to FLAT without emitting an intent (process teardown).
func (c *Controller) Reset() {
	c.close()
}

func (c *Controller) riskOverride(obs Observation) Override {
	if c.cfg.MaxHold > 0 && obs.Time.Sub(c.pos.Entry.Time) >= c.cfg.MaxHold {
		return OverrideMaxHold
	}
	if c.cfg.StopLossZ > 0 && !math.IsNaN(obs.ZScore) && math.Abs(obs.ZScore) > c.cfg.StopLossZ {
		return OverrideStopLoss
	}
	return OverrideNone
}

func (c *Controller) open(state domain.PositionState, obs Observation) {
	c.pos = domain.Position{
		State: state,
		Entry: &domain.EntryMetadata{Time: obs.Time, ZScore: obs.ZScore, SpreadValue: obs.SpreadValue},
	}
}

func (c *Controller) close() {
	c.pos = domain.Position{State: domain.Flat}
}

// intent builds the equal-dollar target exposures for state.
func (c *Controller) intent(obs Observation, state domain.PositionState, reason string) *domain.PositionIntent {
	n := c.cfg.LegNotional
	x, y := decimal.Zero, decimal.Zero
	switch state {
	case domain.LongSpread:
		x, y = n, n.Neg()
	case domain.ShortSpread:
		x, y = n.Neg(), n
	}

	z := obs.ZScore
	if math.IsNaN(z) {
		z = 0 // undefined scores are journaled as 0
	}

	return &domain.PositionIntent{
		ID:              c.cfg.NewID(),
		PairID:          c.cfg.PairID,
		Direction:       state,
		TargetExposureX: x,
		TargetExposureY: y,
		Timestamp:       obs.Time,
		Reason:          reason,
		ZScore:          z,
	}
}
