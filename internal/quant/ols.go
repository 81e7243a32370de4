// Package quant holds the numerical kernels of the signal engine:
// least squares fits, the augmented Dickey-Fuller regression, MacKinnon
// response surfaces and window statistics.
package quant

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"pairs_go/internal/domain"
)

// degenerateTol is the relative variance below which a regressor is treated as constant.
const degenerateTol = 1e-12

// LinearFit is the result of regressing y on x with an intercept.
type LinearFit struct {
	Alpha    float64 // Intercept
	Beta     float64 // Slope
	RSquared float64
}

// FitLinear regresses y = Alpha + Beta*x by ordinary least squares.
// It fails with domain.ErrDegenerateRegression when x has (numerically) zero variance.
func FitLinear(x, y []float64) (LinearFit, error) {
	if len(x) != len(y) {
		return LinearFit{}, fmt.Errorf("fit linear: length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return LinearFit{}, domain.NewInsufficientData("ols", 2, len(x))
	}
	if IsDegenerate(x) {
		return LinearFit{}, fmt.Errorf("fit linear: %w: regressor variance is zero", domain.ErrDegenerateRegression)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		// y is constant: the fit explains nothing
		r2 = 0
	}
	return LinearFit{Alpha: alpha, Beta: beta, RSquared: r2}, nil
}

// Residuals returns y - (Alpha + Beta*x).
func (f LinearFit) Residuals(x, y []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] - f.Alpha - f.Beta*x[i]
	}
	return out
}

// IsDegenerate reports whether the sample variance of v is negligible relative to its level.
func IsDegenerate(v []float64) bool {
	if len(v) < 2 {
		return true
	}
	mean, variance := stat.MeanVariance(v, nil)
	return !(variance > degenerateTol*(1+mean*mean))
}

// Regression is a multiple least squares fit with coefficient standard errors.
type Regression struct {
	Params []float64
	StdErr []float64
	SSR    float64
	Nobs   int
}

// TStat returns the t-statistic of coefficient i.
func (r Regression) TStat(i int) float64 {
	return r.Params[i] / r.StdErr[i]
}

// AIC returns the Gaussian log-likelihood Akaike criterion of the fit.
func (r Regression) AIC() float64 {
	n := float64(r.Nobs)
	llf := -n / 2 * (math.Log(2*math.Pi) + math.Log(r.SSR/n) + 1)
	return -2*llf + 2*float64(len(r.Params))
}

// Regress solves y = X*b for a design matrix given as rows.
func Regress(y []float64, rows [][]float64) (Regression, error) {
	n := len(y)
	if n == 0 || len(rows) != n {
		return Regression{}, fmt.Errorf("regress: %d observations, %d rows", n, len(rows))
	}
	k := len(rows[0])
	if n <= k {
		return Regression{}, domain.NewInsufficientData("ols", k+1, n)
	}

	design := mat.NewDense(n, k, nil)
	for i, row := range rows {
		design.SetRow(i, row)
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		return Regression{}, fmt.Errorf("regress: %w: %v", domain.ErrDegenerateRegression, err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(target, &fitted)
	ssr := mat.Dot(&resid, &resid)

	var xtx, inv mat.Dense
	xtx.Mul(design.T(), design)
	if err := inv.Inverse(&xtx); err != nil {
		return Regression{}, fmt.Errorf("regress: %w: %v", domain.ErrDegenerateRegression, err)
	}

	sigma2 := ssr / float64(n-k)
	params := make([]float64, k)
	stderr := make([]float64, k)
	for j := 0; j < k; j++ {
		params[j] = beta.AtVec(j)
		stderr[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}

	return Regression{Params: params, StdErr: stderr, SSR: ssr, Nobs: n}, nil
}
