package strategy

import (
	"errors"
	"math"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/hedge"
	"pairs_go/internal/quant"
	"pairs_go/internal/spread"
)

// Analysis is the batch view of a whole history: one entry per bar.
// Entries before the first full lookback window are NaN.
type Analysis struct {
	PairID  string
	Coint   domain.CointegrationResult
	Static  domain.HedgeRatio // Fit over the whole history
	Times   []time.Time
	Betas   []float64
	Spread  []float64
	ZScores []float64
}

// Analyze evaluates a complete history offline. The hedge ratio is refit on
// every lookback window (or frozen on the first one for the static estimator)
// and z-scores use the trailing secondary window of spread values.
func Analyze(series domain.PairSeries, cfg Config) (Analysis, error) {
	if err := cfg.Validate(); err != nil {
		return Analysis{}, err
	}
	builder, err := spread.NewBuilder(cfg.spreadConfig())
	if err != nil {
		return Analysis{}, err
	}
	sc := builder.Config()

	ct, err := cfg.tester().Test(series)
	if err != nil && !errors.Is(err, domain.ErrDegenerateRegression) {
		return Analysis{}, err
	}

	static, err := hedge.NewOLSEstimator().Estimate(series)
	if err != nil {
		return Analysis{}, err
	}

	estimator, err := hedge.New(cfg.HedgeEstimator)
	if err != nil {
		return Analysis{}, err
	}

	n := series.Len()
	a := Analysis{
		PairID:  series.PairID,
		Coint:   ct,
		Static:  static,
		Times:   make([]time.Time, n),
		Betas:   nanSlice(n),
		Spread:  nanSlice(n),
		ZScores: nanSlice(n),
	}

	for i := 0; i < n; i++ {
		a.Times[i] = series.X[i].Time
		if i+1 < cfg.LookbackWindow {
			continue
		}
		hr, err := estimator.Estimate(series.Slice(i+1-cfg.LookbackWindow, i+1))
		if err != nil {
			if domain.IsRecoverable(err) {
				continue
			}
			return Analysis{}, err
		}
		a.Betas[i] = hr.Beta
		a.Spread[i] = hr.SpreadValue(series.X[i].Price, series.Y[i].Price, sc.InterceptMode)
		a.ZScores[i] = trailingZ(a.Spread[:i+1], sc)
	}
	return a, nil
}

// trailingZ scores the last value against the defined values of the trailing window.
func trailingZ(values []float64, sc spread.Config) float64 {
	from := max(len(values)-sc.SecondaryWindow, 0)
	defined := make([]float64, 0, len(values)-from)
	for _, v := range values[from:] {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return math.NaN()
	}

	sp := domain.Spread{
		Values:    defined,
		Current:   values[len(values)-1],
		Window:    sc.SecondaryWindow,
		MinPoints: sc.MinPoints,
	}
	st := quant.RollingStats(defined, 0)
	sp.Mean, sp.Std = st.Mean, st.Std
	z, err := sp.ZScore()
	if err != nil {
		return math.NaN()
	}
	return z
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
