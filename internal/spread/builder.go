// Package spread builds the per-pair spread history and its rolling statistics.
package spread

import (
	"fmt"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/quant"
)

// DefaultMinPoints is the smallest statistics sample that yields a defined z-score.
const DefaultMinPoints = 20

// Config tunes a Builder.
type Config struct {
	Window          int                  // Primary window (spread history length)
	SecondaryWindow int                  // Statistics window, <= Window. 0 means Window
	MinPoints       int                  // 0 means DefaultMinPoints (capped at SecondaryWindow)
	InterceptMode   domain.InterceptMode // demeaned (default) or raw_residual
	// RecomputeHistory refits every buffered value with the current hedge ratio
	// each cycle. When false a value keeps the fit that was active when its bar arrived.
	RecomputeHistory bool
}

// Builder is stateful per pair: it appends one spread value per new bar.
// Not safe for concurrent use.
type Builder struct {
	cfg      Config
	history  *ring
	lastTime time.Time
}

// NewBuilder validates cfg and creates a builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Window < 2 {
		return nil, &domain.ConfigError{Field: "lookback_window", Err: fmt.Errorf("must be at least 2, got %d", cfg.Window)}
	}
	if cfg.SecondaryWindow == 0 {
		cfg.SecondaryWindow = cfg.Window
	}
	if cfg.SecondaryWindow < 2 || cfg.SecondaryWindow > cfg.Window {
		return nil, &domain.ConfigError{Field: "secondary_window", Err: fmt.Errorf("must be in [2, %d], got %d", cfg.Window, cfg.SecondaryWindow)}
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = DefaultMinPoints
	}
	cfg.MinPoints = min(cfg.MinPoints, cfg.SecondaryWindow)
	if cfg.InterceptMode == "" {
		cfg.InterceptMode = domain.InterceptDemeaned
	}
	if cfg.InterceptMode != domain.InterceptDemeaned && cfg.InterceptMode != domain.InterceptRawResidual {
		return nil, &domain.ConfigError{Field: "intercept_mode", Err: fmt.Errorf("unknown mode %q", cfg.InterceptMode)}
	}

	return &Builder{cfg: cfg, history: newRing(cfg.Window)}, nil
}

// Build brings the spread history up to the newest bar of series using hr and
// returns it with rolling mean/std over the secondary window.
// The first call seeds the history from the whole window.
func (b *Builder) Build(series domain.PairSeries, hr domain.HedgeRatio) (domain.Spread, error) {
	if series.Len() == 0 {
		return domain.Spread{}, domain.NewInsufficientData("spread", 1, 0)
	}

	if b.cfg.RecomputeHistory || b.history.len() == 0 {
		b.history.reset()
		b.appendFrom(series, hr, time.Time{})
	} else {
		b.appendFrom(series, hr, b.lastTime)
	}

	values := b.history.ordered()
	st := quant.RollingStats(values, b.cfg.SecondaryWindow)

	return domain.Spread{
		Values:    values,
		Current:   values[len(values)-1],
		Mean:      st.Mean,
		Std:       st.Std,
		Window:    b.cfg.SecondaryWindow,
		MinPoints: b.cfg.MinPoints,
	}, nil
}

// appendFrom pushes the spread of every bar strictly after since.
func (b *Builder) appendFrom(series domain.PairSeries, hr domain.HedgeRatio, since time.Time) {
	for i := range series.X {
		ts := series.X[i].Time
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		b.history.push(hr.SpreadValue(series.X[i].Price, series.Y[i].Price, b.cfg.InterceptMode))
		b.lastTime = ts
	}
}

// Len returns the number of buffered spread values.
func (b *Builder) Len() int {
	return b.history.len()
}

// Config returns the effective configuration after defaults.
func (b *Builder) Config() Config {
	return b.cfg
}

// Reset clears the spread history.
func (b *Builder) Reset() {
	b.history.reset()
	b.lastTime = time.Time{}
}
