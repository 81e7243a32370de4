package strategy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"pairs_go/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// cointegratedBars builds X = 1.5*Y + 10 + noise over a random-walk Y.
func cointegratedBars(seed int64, n int) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	y := 100.0
	bars := make([]domain.Bar, n)
	for i := range bars {
		y += rng.NormFloat64()
		bars[i] = domain.Bar{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			PriceX: 1.5*y + 10 + rng.NormFloat64(),
			PriceY: y,
		}
	}
	return bars
}

func randomWalkBars(seed int64, n int) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	x, y := 100.0, 100.0
	bars := make([]domain.Bar, n)
	for i := range bars {
		x += rng.NormFloat64()
		y += rng.NormFloat64()
		bars[i] = domain.Bar{Time: t0.Add(time.Duration(i) * time.Minute), PriceX: x, PriceY: y}
	}
	return bars
}

func newTestStrategy(t *testing.T, mutate func(*Config)) *PairsStrategy {
	t.Helper()
	cfg := DefaultConfig("AB")
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewPairsStrategy(cfg)
	if err != nil {
		t.Fatalf("NewPairsStrategy failed: %v", err)
	}
	return s
}

func TestPairsStrategy_Warmup(t *testing.T) {
	s := newTestStrategy(t, nil)
	bars := cointegratedBars(1, 40)

	for i, bar := range bars {
		res, err := s.OnBar(bar)
		if err != nil {
			t.Fatalf("bar %d: OnBar failed: %v", i, err)
		}
		warm := i+1 >= s.Config().MinSamples
		if res.Skipped == warm {
			t.Fatalf("bar %d: Skipped = %v, want %v (reason %q)", i, res.Skipped, !warm, res.Reason)
		}
		if res.Skipped && (res.Reason != ReasonInsufficientData || res.Decision.Intent != nil) {
			t.Fatalf("bar %d: unexpected skipped result %+v", i, res)
		}
	}
}

func TestPairsStrategy_MisalignedIsFatal(t *testing.T) {
	s := newTestStrategy(t, nil)
	bar := domain.Bar{Time: t0, PriceX: 10, PriceY: 5}
	if _, err := s.OnBar(bar); err != nil {
		t.Fatalf("first bar failed: %v", err)
	}

	_, err := s.OnBar(domain.Bar{Time: t0, PriceX: 11, PriceY: 5})
	var me *domain.MisalignedSeriesError
	if !errors.As(err, &me) {
		t.Fatalf("Expected MisalignedSeriesError, got %v", err)
	}
	if domain.IsRecoverable(err) {
		t.Error("Misalignment must not be recoverable")
	}
}

func TestPairsStrategy_DuplicateBarSkipped(t *testing.T) {
	s := newTestStrategy(t, nil)
	bars := cointegratedBars(3, 40)
	for _, bar := range bars {
		if _, err := s.OnBar(bar); err != nil {
			t.Fatalf("OnBar failed: %v", err)
		}
	}

	res, err := s.OnBar(bars[len(bars)-1])
	if err != nil {
		t.Fatalf("Duplicate bar should not fail, got %v", err)
	}
	if !res.Skipped || res.Reason != ReasonDuplicateBar || res.Decision.Intent != nil {
		t.Errorf("Expected a skipped duplicate, got %+v", res)
	}

	next := domain.Bar{Time: bars[len(bars)-1].Time.Add(time.Minute), PriceX: bars[0].PriceX, PriceY: bars[0].PriceY}
	if _, err := s.OnBar(next); err != nil {
		t.Fatalf("Bar after duplicate failed: %v", err)
	}
}

func TestPairsStrategy_EntersAndExitsOnDeviation(t *testing.T) {
	s := newTestStrategy(t, func(c *Config) { c.RequireCointegration = false })
	bars := cointegratedBars(7, 160)

	for _, bar := range bars[:100] {
		if _, err := s.OnBar(bar); err != nil {
			t.Fatalf("OnBar failed: %v", err)
		}
	}
	if !s.Position().IsFlat() {
		// Noise alone may cross the entry band; flatten for a clean start
		s.controller.Reset()
	}

	shock := bars[100]
	shock.PriceX += 20
	res, err := s.OnBar(shock)
	if err != nil {
		t.Fatalf("OnBar failed: %v", err)
	}
	if !(res.ZScore > 2) {
		t.Fatalf("Expected z > 2 after the shock, got %v", res.ZScore)
	}
	if res.Decision.Next != domain.ShortSpread || res.Intent() == nil {
		t.Fatalf("Expected SHORT_SPREAD entry, got %+v", res.Decision)
	}
	if res.Intent().Reason != "ENTER_SHORT_SPREAD" || !res.Intent().TargetExposureX.IsNegative() {
		t.Errorf("Unexpected intent: %+v", res.Intent())
	}

	for _, bar := range bars[101:] {
		res, err := s.OnBar(bar)
		if err != nil {
			t.Fatalf("OnBar failed: %v", err)
		}
		if res.Decision.Changed() {
			if res.Decision.Next != domain.Flat || res.Signal != domain.SignalExit {
				t.Fatalf("Expected an EXIT to FLAT, got %+v", res.Decision)
			}
			return
		}
	}
	t.Fatal("Position never exited after the spread reverted")
}

func TestPairsStrategy_CointegrationGatesEntries(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		s := newTestStrategy(t, nil)
		for i, bar := range randomWalkBars(seed, 200) {
			res, err := s.OnBar(bar)
			if err != nil {
				t.Fatalf("seed %d bar %d: OnBar failed: %v", seed, i, err)
			}
			if res.Decision.Changed() && res.Decision.Next != domain.Flat && !res.Coint.IsCointegrated {
				t.Fatalf("seed %d bar %d: entered while not cointegrated", seed, i)
			}
			if res.Signal.IsEntry() && !res.Coint.IsCointegrated {
				t.Fatalf("seed %d bar %d: entry signal not suppressed", seed, i)
			}
		}
	}
}

func TestPairsStrategy_DegenerateHolds(t *testing.T) {
	s := newTestStrategy(t, func(c *Config) { c.MinSamples = 10 })

	for i := 0; i < 15; i++ {
		bar := domain.Bar{Time: t0.Add(time.Duration(i) * time.Minute), PriceX: 100 + float64(i%3), PriceY: 50}
		res, err := s.OnBar(bar)
		if err != nil {
			t.Fatalf("bar %d: degenerate input must not be fatal: %v", i, err)
		}
		if i+1 < 10 {
			continue
		}
		if res.Skipped || res.Reason != ReasonDegenerate || res.Signal != domain.SignalHold {
			t.Fatalf("bar %d: expected a degenerate HOLD, got %+v", i, res)
		}
		if !math.IsNaN(res.ZScore) {
			t.Errorf("bar %d: z should be undefined, got %v", i, res.ZScore)
		}
	}
}

func TestPairsStrategy_Reset(t *testing.T) {
	s := newTestStrategy(t, nil)
	for _, bar := range cointegratedBars(3, 40) {
		_, _ = s.OnBar(bar)
	}
	s.Reset()

	// Replaying the same timestamps is only legal after a reset
	res, err := s.OnBar(cointegratedBars(3, 1)[0])
	if err != nil || !res.Skipped {
		t.Fatalf("Expected a fresh warmup after Reset, got %+v, %v", res, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty pair", func(c *Config) { c.PairID = "" }, "pair_id"},
		{"tiny lookback", func(c *Config) { c.LookbackWindow = 2 }, "lookback_window"},
		{"min samples above lookback", func(c *Config) { c.MinSamples = 61 }, "min_samples"},
		{"stop inside entry band", func(c *Config) { c.StopLossZ = 1.5 }, "stop_loss_zscore"},
		{"bad level", func(c *Config) { c.ConfidenceLevel = "2%" }, "cointegration_confidence_level"},
		{"kalman", func(c *Config) { c.HedgeEstimator = "kalman" }, "hedge_estimator"},
		{"bad exit", func(c *Config) { c.ExitThreshold = 3 }, "exit_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("AB")
			tt.mutate(&cfg)
			_, err := NewPairsStrategy(cfg)
			var ce *domain.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Fatalf("Expected ConfigError on %s, got %v", tt.field, err)
			}
		})
	}

	_, err := NewPairsStrategy(func() Config { c := DefaultConfig("AB"); c.HedgeEstimator = "kalman"; return c }())
	if !errors.Is(err, domain.ErrEstimatorUnavailable) {
		t.Errorf("Expected ErrEstimatorUnavailable, got %v", err)
	}
}
