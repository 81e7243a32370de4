// Package hedge provides hedge-ratio estimators behind domain.HedgeRatioEstimator.
package hedge

import (
	"fmt"
	"strings"
	"sync"

	"pairs_go/internal/domain"
	"pairs_go/internal/quant"
)

// Estimator kinds accepted by New.
const (
	KindOLS    = "ols"
	KindStatic = "static"
	KindKalman = "kalman"
)

// OLSEstimator refits X = intercept + beta*Y over the whole window on every call.
type OLSEstimator struct{}

// NewOLSEstimator creates the default rolling OLS estimator.
func NewOLSEstimator() *OLSEstimator {
	return &OLSEstimator{}
}

// Estimate fits the window. beta = cov(X,Y)/var(Y).
func (e *OLSEstimator) Estimate(series domain.PairSeries) (domain.HedgeRatio, error) {
	return fitWindow(series)
}

// StaticEstimator fits once on the first window it sees and then keeps that fit.
// Instances are per pair.
type StaticEstimator struct {
	mu    sync.Mutex
	fit   domain.HedgeRatio
	ready bool
}

// NewStaticEstimator creates an estimator that freezes its first successful fit.
func NewStaticEstimator() *StaticEstimator {
	return &StaticEstimator{}
}

// Estimate returns the frozen fit, computing it on the first call.
func (e *StaticEstimator) Estimate(series domain.PairSeries) (domain.HedgeRatio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return e.fit, nil
	}
	fit, err := fitWindow(series)
	if err != nil {
		return domain.HedgeRatio{}, err
	}
	e.fit, e.ready = fit, true
	return fit, nil
}

// Reset discards the frozen fit.
func (e *StaticEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.fit = domain.HedgeRatio{}
}

// New returns an estimator matching the configured kind.
func New(kind string) (domain.HedgeRatioEstimator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindOLS, "rolling_ols", "dynamic":
		return NewOLSEstimator(), nil
	case KindStatic:
		return NewStaticEstimator(), nil
	case KindKalman:
		return nil, &domain.ConfigError{Field: "hedge_estimator", Err: fmt.Errorf("%w: %s", domain.ErrEstimatorUnavailable, kind)}
	default:
		return nil, &domain.ConfigError{Field: "hedge_estimator", Err: fmt.Errorf("unknown estimator %q", kind)}
	}
}

func fitWindow(series domain.PairSeries) (domain.HedgeRatio, error) {
	if series.Len() < 3 {
		return domain.HedgeRatio{}, domain.NewInsufficientData("hedge", 3, series.Len())
	}
	xs, ys := series.Prices()

	fit, err := quant.FitLinear(ys, xs)
	if err != nil {
		return domain.HedgeRatio{}, fmt.Errorf("hedge: %w", err)
	}

	return domain.HedgeRatio{
		Beta:       fit.Beta,
		Intercept:  fit.Alpha,
		RSquared:   fit.RSquared,
		WindowUsed: series.Len(),
	}, nil
}
