// Package coint implements the Engle-Granger two-step cointegration test
// that gates whether a pair is tradable in the current cycle.
package coint

import (
	"errors"
	"fmt"

	"pairs_go/internal/domain"
	"pairs_go/internal/quant"
)

// DefaultMinSamples is the shortest window the test accepts.
const DefaultMinSamples = 30

// Tester runs the Engle-Granger test. It is stateless and safe for concurrent use.
type Tester struct {
	Level      domain.ConfidenceLevel
	MinSamples int
	MaxLag     int  // < 0 uses the Schwert bound
	AutoLag    bool // AIC lag selection up to MaxLag
}

// NewTester creates a tester gating at the given level with AIC lag selection.
func NewTester(level domain.ConfidenceLevel) *Tester {
	if level == "" {
		level = domain.Level5Pct
	}
	return &Tester{
		Level:      level,
		MinSamples: DefaultMinSamples,
		MaxLag:     -1,
		AutoLag:    true,
	}
}

// Test regresses X on Y, runs an ADF test on the residuals and compares the
// statistic with the residual-based critical values.
// A degenerate fit is reported as ErrDegenerateRegression together with a
// non-cointegrated result.
func (t *Tester) Test(series domain.PairSeries) (domain.CointegrationResult, error) {
	notCointegrated := domain.CointegrationResult{Level: t.Level}

	minSamples := t.MinSamples
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if series.Len() < minSamples {
		return notCointegrated, domain.NewInsufficientData("coint", minSamples, series.Len())
	}

	xs, ys := series.Prices()

	// Step 1: X = a + b*Y
	fit, err := quant.FitLinear(ys, xs)
	if err != nil {
		return notCointegrated, fmt.Errorf("coint: %w", err)
	}
	resid := fit.Residuals(ys, xs)

	// Step 2: unit root test on the residuals (mean zero by construction)
	adf, err := quant.ADF(resid, quant.ADFOptions{Constant: false, MaxLag: t.MaxLag, AutoLag: t.AutoLag})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			return notCointegrated, err
		}
		return notCointegrated, fmt.Errorf("coint: %w", err)
	}

	// Step 3: compare against the gating level
	crit := quant.EngleGrangerCrit(len(resid) - 1)
	threshold, ok := crit[t.Level]
	if !ok {
		return notCointegrated, &domain.ConfigError{Field: "cointegration_confidence_level", Err: fmt.Errorf("unsupported level %q", t.Level)}
	}

	return domain.CointegrationResult{
		IsCointegrated: adf.Statistic < threshold,
		Statistic:      adf.Statistic,
		PValue:         quant.EngleGrangerPValue(adf.Statistic),
		CriticalValues: crit,
		Level:          t.Level,
		Lags:           adf.Lags,
		Nobs:           adf.Nobs,
	}, nil
}
