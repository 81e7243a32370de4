package domain

import (
	"fmt"
	"math"
	"strings"
)

// ConfidenceLevel is a significance level of the cointegration test.
type ConfidenceLevel string

const (
	Level1Pct  ConfidenceLevel = "1%"
	Level5Pct  ConfidenceLevel = "5%"
	Level10Pct ConfidenceLevel = "10%"
)

// ConfidenceLevels lists the supported levels from strictest to loosest.
var ConfidenceLevels = []ConfidenceLevel{Level1Pct, Level5Pct, Level10Pct}

// ParseConfidenceLevel accepts "1%", "0.01", "1" and the like.
func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	switch strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")) {
	case "1", "0.01":
		return Level1Pct, nil
	case "5", "0.05", "":
		return Level5Pct, nil
	case "10", "0.1", "0.10":
		return Level10Pct, nil
	}
	return "", fmt.Errorf("unsupported confidence level %q", s)
}

// CointegrationResult is the outcome of one Engle-Granger test. It gates a single cycle.
type CointegrationResult struct {
	IsCointegrated bool                        `json:"is_cointegrated"`
	Statistic      float64                     `json:"test_statistic"`
	PValue         float64                     `json:"p_value"`
	CriticalValues map[ConfidenceLevel]float64 `json:"critical_values"`
	Level          ConfidenceLevel             `json:"level"`
	Lags           int                         `json:"lags"`
	Nobs           int                         `json:"nobs"`
}

// HedgeRatio is a full fit of X = Intercept + Beta*Y over a window.
type HedgeRatio struct {
	Beta       float64 `json:"beta"`
	Intercept  float64 `json:"intercept"`
	RSquared   float64 `json:"r_squared"`
	WindowUsed int     `json:"window_used"`
}

// InterceptMode selects whether the fitted intercept is removed from the spread.
type InterceptMode string

const (
	// InterceptDemeaned builds X - beta*Y - intercept.
	InterceptDemeaned InterceptMode = "demeaned"
	// InterceptRawResidual builds X - beta*Y.
	InterceptRawResidual InterceptMode = "raw_residual"
)

// SpreadValue computes one spread observation for the given fit.
func (h HedgeRatio) SpreadValue(x, y float64, mode InterceptMode) float64 {
	s := x - h.Beta*y
	if mode != InterceptRawResidual {
		s -= h.Intercept
	}
	return s
}

// zeroStdTol is the relative std-dev treated as zero; sums of equal floats are not exact.
const zeroStdTol = 1e-10

// Spread is the spread history of a window plus its rolling statistics.
type Spread struct {
	Values    []float64 `json:"values"`
	Current   float64   `json:"current"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Window    int       `json:"window"`     // Secondary window the statistics cover
	MinPoints int       `json:"min_points"` // Minimum statistics sample for a defined z-score
}

// ZScore returns (Current - Mean) / Std.
// It fails with ErrUndefinedZScore instead of dividing by zero or by a short sample.
func (s Spread) ZScore() (float64, error) {
	minPoints := s.MinPoints
	if minPoints < 2 {
		minPoints = 2
	}
	n := min(len(s.Values), s.Window)
	if n < minPoints {
		return math.NaN(), fmt.Errorf("%w: %d points, need %d", ErrUndefinedZScore, n, minPoints)
	}
	if !(s.Std > zeroStdTol*(1+math.Abs(s.Mean))) {
		return math.NaN(), fmt.Errorf("%w: zero standard deviation", ErrUndefinedZScore)
	}
	return (s.Current - s.Mean) / s.Std, nil
}
