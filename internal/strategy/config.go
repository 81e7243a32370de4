package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pairs_go/internal/coint"
	"pairs_go/internal/domain"
	"pairs_go/internal/signal"
	"pairs_go/internal/spread"
)

// Default tuning.
const (
	DefaultLookbackWindow = 60
)

// Config is the full per-pair tuning surface.
type Config struct {
	PairID               string
	LookbackWindow       int
	SecondaryWindow      int // 0 means LookbackWindow
	MinSpreadPoints      int // 0 means spread.DefaultMinPoints
	EntryThreshold       float64
	ExitThreshold        float64
	ConfidenceLevel      domain.ConfidenceLevel
	MaxHold              time.Duration // 0 disables
	StopLossZ            float64       // 0 disables
	InterceptMode        domain.InterceptMode
	HedgeEstimator       string
	MinSamples           int
	ADFMaxLag            int // < 0 uses the Schwert bound
	ADFAutoLag           bool
	RecomputeHistory     bool
	LegNotional          decimal.Decimal
	RequireCointegration bool // Suppress entries while the pair fails the test
}

// DefaultConfig returns the documented defaults for pairID.
func DefaultConfig(pairID string) Config {
	return Config{
		PairID:               pairID,
		LookbackWindow:       DefaultLookbackWindow,
		EntryThreshold:       signal.DefaultEntryThreshold,
		ExitThreshold:        signal.DefaultExitThreshold,
		ConfidenceLevel:      domain.Level5Pct,
		InterceptMode:        domain.InterceptDemeaned,
		HedgeEstimator:       "ols",
		MinSamples:           coint.DefaultMinSamples,
		ADFMaxLag:            -1,
		ADFAutoLag:           true,
		LegNotional:          decimal.NewFromInt(1000),
		RequireCointegration: true,
	}
}

// Validate checks cross-field constraints the component constructors cannot see.
func (c Config) Validate() error {
	if c.PairID == "" {
		return &domain.ConfigError{Field: "pair_id", Err: fmt.Errorf("must not be empty")}
	}
	if c.LookbackWindow < 3 {
		return &domain.ConfigError{Field: "lookback_window", Err: fmt.Errorf("must be at least 3, got %d", c.LookbackWindow)}
	}
	if c.MinSamples > c.LookbackWindow {
		return &domain.ConfigError{Field: "min_samples", Err: fmt.Errorf("%d exceeds lookback_window %d", c.MinSamples, c.LookbackWindow)}
	}
	if c.StopLossZ != 0 && c.StopLossZ <= c.EntryThreshold {
		return &domain.ConfigError{Field: "stop_loss_zscore", Err: fmt.Errorf("%v must exceed entry_threshold %v", c.StopLossZ, c.EntryThreshold)}
	}
	if _, err := domain.ParseConfidenceLevel(string(c.ConfidenceLevel)); err != nil {
		return &domain.ConfigError{Field: "cointegration_confidence_level", Err: err}
	}
	return nil
}

func (c Config) spreadConfig() spread.Config {
	return spread.Config{
		Window:           c.LookbackWindow,
		SecondaryWindow:  c.SecondaryWindow,
		MinPoints:        c.MinSpreadPoints,
		InterceptMode:    c.InterceptMode,
		RecomputeHistory: c.RecomputeHistory,
	}
}

func (c Config) tester() *coint.Tester {
	level, _ := domain.ParseConfidenceLevel(string(c.ConfidenceLevel))
	t := coint.NewTester(level)
	if c.MinSamples > 0 {
		t.MinSamples = c.MinSamples
	}
	t.MaxLag = c.ADFMaxLag
	t.AutoLag = c.ADFAutoLag
	return t
}
