package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the discrete decision derived from a z-score.
type Signal int

const (
	SignalHold Signal = iota
	SignalEnterLongSpread
	SignalEnterShortSpread
	SignalExit
)

// String returns the string representation of Signal
func (s Signal) String() string {
	switch s {
	case SignalHold:
		return "HOLD"
	case SignalEnterLongSpread:
		return "ENTER_LONG_SPREAD"
	case SignalEnterShortSpread:
		return "ENTER_SHORT_SPREAD"
	case SignalExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// IsEntry reports whether the signal opens a position.
func (s Signal) IsEntry() bool {
	return s == SignalEnterLongSpread || s == SignalEnterShortSpread
}

// PositionState is the exposure a pair currently holds.
type PositionState int

const (
	Flat        PositionState = iota
	LongSpread                // long X, short Y
	ShortSpread               // short X, long Y
)

// String returns the string representation of PositionState
func (p PositionState) String() string {
	switch p {
	case Flat:
		return "FLAT"
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets states appear by name in JSON and logs.
func (p PositionState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (p *PositionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "FLAT":
		*p = Flat
	case "LONG_SPREAD":
		*p = LongSpread
	case "SHORT_SPREAD":
		*p = ShortSpread
	default:
		return fmt.Errorf("unknown position state %q", b)
	}
	return nil
}

// MarshalText lets signals appear by name in JSON and logs.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a signal name produced by MarshalText.
func (s *Signal) UnmarshalText(b []byte) error {
	switch string(b) {
	case "HOLD":
		*s = SignalHold
	case "ENTER_LONG_SPREAD":
		*s = SignalEnterLongSpread
	case "ENTER_SHORT_SPREAD":
		*s = SignalEnterShortSpread
	case "EXIT":
		*s = SignalExit
	default:
		return fmt.Errorf("unknown signal %q", b)
	}
	return nil
}

// EntryMetadata records the conditions a position was opened under.
type EntryMetadata struct {
	Time        time.Time `json:"entry_ts"`
	ZScore      float64   `json:"entry_zscore"`
	SpreadValue float64   `json:"entry_spread"`
}

// Position is the only cross-cycle mutable state of a pair.
// Only position.Controller mutates it.
type Position struct {
	State PositionState  `json:"state"`
	Entry *EntryMetadata `json:"entry,omitempty"`
}

// IsFlat reports whether there is no open exposure.
func (p Position) IsFlat() bool {
	return p.State == Flat
}

// VerifyInvariant checks that State is non-Flat iff entry metadata is present.
// Call this after any state change to ensure data integrity.
func (p *Position) VerifyInvariant() {
	if p.State == Flat && p.Entry != nil {
		panic(fmt.Sprintf("POSITION_INVARIANT_FLAT_WITH_ENTRY: entry=%+v", *p.Entry))
	}
	if p.State != Flat && p.Entry == nil {
		panic(fmt.Sprintf("POSITION_INVARIANT_OPEN_WITHOUT_ENTRY: state=%s", p.State))
	}
	if p.State != Flat && p.State != LongSpread && p.State != ShortSpread {
		panic(fmt.Sprintf("POSITION_INVARIANT_UNKNOWN_STATE: %d", p.State))
	}
}

// PositionIntent is the instruction handed to the execution host on a state change.
// Exposures are signed notionals: positive is long, negative is short.
type PositionIntent struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	PairID          string          `gorm:"index" json:"pair_id"`
	Direction       PositionState   `json:"direction"`
	TargetExposureX decimal.Decimal `gorm:"type:text" json:"target_exposure_x"`
	TargetExposureY decimal.Decimal `gorm:"type:text" json:"target_exposure_y"`
	Timestamp       time.Time       `gorm:"index" json:"timestamp"`
	Reason          string          `json:"reason"` // Signal or risk override that caused the change
	ZScore          float64         `json:"zscore"`
	CreatedAt       time.Time       `json:"created_at"`
}
