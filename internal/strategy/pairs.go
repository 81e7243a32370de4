// Package strategy composes the pair analytics into one evaluation cycle per bar.
package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"pairs_go/internal/coint"
	"pairs_go/internal/domain"
	"pairs_go/internal/hedge"
	"pairs_go/internal/position"
	"pairs_go/internal/signal"
	"pairs_go/internal/spread"
)

// Hold reasons reported in CycleResult.Reason.
const (
	ReasonInsufficientData = "insufficient data"
	ReasonDegenerate       = "degenerate regression"
	ReasonUndefinedZ       = "undefined z-score"
	ReasonNotCointegrated  = "not cointegrated"
	ReasonDuplicateBar     = "duplicate bar"
)

// PairsStrategy owns every piece of per-pair state: the price window, the
// spread history and the position. It is stateful and deterministic, and it
// must only be driven by one goroutine.
type PairsStrategy struct {
	cfg        Config
	window     *domain.PairWindow
	tester     *coint.Tester
	estimator  domain.HedgeRatioEstimator
	builder    *spread.Builder
	generator  *signal.Generator
	controller *position.Controller
}

// NewPairsStrategy validates cfg and wires the components.
func NewPairsStrategy(cfg Config) (*PairsStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	estimator, err := hedge.New(cfg.HedgeEstimator)
	if err != nil {
		return nil, err
	}
	builder, err := spread.NewBuilder(cfg.spreadConfig())
	if err != nil {
		return nil, err
	}
	generator, err := signal.NewGenerator(cfg.EntryThreshold, cfg.ExitThreshold)
	if err != nil {
		return nil, err
	}
	controller, err := position.NewController(position.Config{
		PairID:      cfg.PairID,
		MaxHold:     cfg.MaxHold,
		StopLossZ:   cfg.StopLossZ,
		LegNotional: cfg.LegNotional,
	})
	if err != nil {
		return nil, err
	}

	return &PairsStrategy{
		cfg:        cfg,
		window:     domain.NewPairWindow(cfg.PairID, cfg.LookbackWindow),
		tester:     cfg.tester(),
		estimator:  estimator,
		builder:    builder,
		generator:  generator,
		controller: controller,
	}, nil
}

// PairID implements Strategy.
func (s *PairsStrategy) PairID() string {
	return s.cfg.PairID
}

// Config returns the strategy configuration.
func (s *PairsStrategy) Config() Config {
	return s.cfg
}

// Position returns a copy of the current position.
func (s *PairsStrategy) Position() domain.Position {
	return s.controller.Position()
}

// OnBar runs one cycle: window -> cointegration -> hedge ratio -> spread ->
// z-score -> signal -> position controller.
func (s *PairsStrategy) OnBar(bar domain.Bar) (CycleResult, error) {
	res := CycleResult{
		PairID: s.cfg.PairID,
		Bar:    bar,
		Spread: math.NaN(),
		ZScore: math.NaN(),
	}

	if err := s.window.Push(bar); err != nil {
		if errors.Is(err, domain.ErrDuplicateBar) {
			slog.Warn("Duplicate bar dropped",
				slog.String("pair", s.cfg.PairID),
				slog.Time("ts", bar.Time))
			return s.skip(res, ReasonDuplicateBar), nil
		}
		return res, err
	}
	series := s.window.Snapshot()

	// 1. Cointegration gate
	ct, err := s.tester.Test(series)
	res.Coint = ct
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			return s.skip(res, ReasonInsufficientData), nil
		case errors.Is(err, domain.ErrDegenerateRegression):
			slog.Warn("Cointegration fit degenerate",
				slog.String("pair", s.cfg.PairID),
				slog.Any("error", err))
		default:
			return res, fmt.Errorf("strategy %s: %w", s.cfg.PairID, err)
		}
	}

	// 2. Hedge ratio and spread
	hr, err := s.estimator.Estimate(series)
	switch {
	case err == nil:
		res.Hedge = hr
		if err := s.evaluateSpread(&res, series, hr); err != nil {
			return res, err
		}
	case errors.Is(err, domain.ErrInsufficientData):
		return s.skip(res, ReasonInsufficientData), nil
	case errors.Is(err, domain.ErrDegenerateRegression):
		res.Reason = ReasonDegenerate
		slog.Warn("Hedge ratio fit degenerate, holding",
			slog.String("pair", s.cfg.PairID),
			slog.Any("error", err))
	default:
		return res, fmt.Errorf("strategy %s: %w", s.cfg.PairID, err)
	}

	// 3. Signal, gated on cointegration for entries only
	state := s.controller.Position().State
	sig := s.generator.Generate(res.ZScore, state)
	if sig.IsEntry() && s.cfg.RequireCointegration && !res.Coint.IsCointegrated {
		sig = domain.SignalHold
		if res.Reason == "" {
			res.Reason = ReasonNotCointegrated
		}
	}
	res.Signal = sig

	// 4. Position lifecycle; risk overrides still run on held cycles
	res.Decision = s.controller.Apply(position.Observation{
		Time:        bar.Time,
		ZScore:      res.ZScore,
		SpreadValue: res.Spread,
	}, sig)

	if res.Decision.Changed() {
		slog.Info("Position changed",
			slog.String("pair", s.cfg.PairID),
			slog.String("from", res.Decision.Prev.String()),
			slog.String("to", res.Decision.Next.String()),
			slog.String("reason", res.Decision.Intent.Reason),
			slog.Float64("zscore", res.ZScore))
	}
	return res, nil
}

func (s *PairsStrategy) evaluateSpread(res *CycleResult, series domain.PairSeries, hr domain.HedgeRatio) error {
	sp, err := s.builder.Build(series, hr)
	if err != nil {
		if domain.IsRecoverable(err) {
			res.Reason = ReasonInsufficientData
			return nil
		}
		return fmt.Errorf("strategy %s: %w", s.cfg.PairID, err)
	}
	res.Spread = sp.Current

	z, err := sp.ZScore()
	if err != nil {
		res.Reason = ReasonUndefinedZ
		return nil
	}
	res.ZScore = z
	return nil
}

func (s *PairsStrategy) skip(res CycleResult, reason string) CycleResult {
	res.Skipped = true
	res.Reason = reason
	res.Decision = position.Decision{
		Prev: s.controller.Position().State,
		Next: s.controller.Position().State,
	}
	return res
}

// Reset drops all accumulated state and flattens the position without an intent.
func (s *PairsStrategy) Reset() {
	s.window.Reset()
	s.builder.Reset()
	s.controller.Reset()
	if r, ok := s.estimator.(interface{ Reset() }); ok {
		r.Reset()
	}
}
