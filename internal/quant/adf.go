package quant

import (
	"fmt"
	"math"

	"pairs_go/internal/domain"
)

// ADFResult is the augmented Dickey-Fuller regression outcome.
type ADFResult struct {
	Statistic float64 // t-statistic of the lagged level coefficient
	Lags      int     // Number of lagged differences used
	Nobs      int     // Observations in the final regression
}

// ADFOptions configures the test regression.
type ADFOptions struct {
	Constant bool // Include an intercept in the test regression
	MaxLag   int  // < 0 selects the Schwert bound 12*(n/100)^(1/4)
	AutoLag  bool // Pick the lag order in [0, MaxLag] minimising AIC
}

// SchwertMaxLag returns the default upper bound on the lag order for n observations.
func SchwertMaxLag(n int, constant bool) int {
	lag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	ntrend := 0
	if constant {
		ntrend = 1
	}
	return max(0, min(lag, n/2-ntrend-1))
}

// ADF runs Δs_t = [c] + γ s_{t-1} + Σ φ_i Δs_{t-i} + ε_t and returns the t-statistic of γ.
func ADF(series []float64, opts ADFOptions) (ADFResult, error) {
	n := len(series)
	maxLag := opts.MaxLag
	if maxLag < 0 {
		maxLag = SchwertMaxLag(n, opts.Constant)
	}

	k := 1 + maxLag
	if opts.Constant {
		k++
	}
	if n-1-maxLag <= k+1 {
		return ADFResult{}, domain.NewInsufficientData("adf", k+maxLag+3, n)
	}
	if IsDegenerate(series) {
		return ADFResult{}, fmt.Errorf("adf: %w: series variance is zero", domain.ErrDegenerateRegression)
	}

	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = series[i] - series[i-1]
	}

	lag := maxLag
	if opts.AutoLag && maxLag > 0 {
		best := math.Inf(1)
		for p := 0; p <= maxLag; p++ {
			// Every candidate is fitted on the same sample so AICs are comparable
			reg, err := adfRegression(series, diffs, p, maxLag, opts.Constant)
			if err != nil {
				return ADFResult{}, err
			}
			if aic := reg.AIC(); aic < best {
				best, lag = aic, p
			}
		}
	}

	reg, err := adfRegression(series, diffs, lag, lag, opts.Constant)
	if err != nil {
		return ADFResult{}, err
	}

	levelIdx := 0
	if opts.Constant {
		levelIdx = 1
	}
	stat := reg.TStat(levelIdx)
	if math.IsNaN(stat) || math.IsInf(stat, 0) {
		return ADFResult{}, fmt.Errorf("adf: %w: undefined test statistic", domain.ErrDegenerateRegression)
	}

	return ADFResult{Statistic: stat, Lags: lag, Nobs: reg.Nobs}, nil
}

// adfRegression fits the test regression with p lagged differences on rows start..len(diffs)-1.
func adfRegression(series, diffs []float64, p, start int, constant bool) (Regression, error) {
	rows := make([][]float64, 0, len(diffs)-start)
	y := make([]float64, 0, len(diffs)-start)

	for t := start; t < len(diffs); t++ {
		row := make([]float64, 0, p+2)
		if constant {
			row = append(row, 1)
		}
		row = append(row, series[t])
		for i := 1; i <= p; i++ {
			row = append(row, diffs[t-i])
		}
		rows = append(rows, row)
		y = append(y, diffs[t])
	}

	return Regress(y, rows)
}
