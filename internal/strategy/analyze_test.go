package strategy

import (
	"math"
	"testing"

	"pairs_go/internal/domain"
)

func seriesOf(t *testing.T, bars []domain.Bar) domain.PairSeries {
	t.Helper()
	x := make([]domain.PricePoint, len(bars))
	y := make([]domain.PricePoint, len(bars))
	for i, b := range bars {
		x[i] = domain.PricePoint{Time: b.Time, Price: b.PriceX}
		y[i] = domain.PricePoint{Time: b.Time, Price: b.PriceY}
	}
	ps, err := domain.NewPairSeries("AB", x, y)
	if err != nil {
		t.Fatalf("NewPairSeries failed: %v", err)
	}
	return ps
}

func TestAnalyze_Dynamic(t *testing.T) {
	cfg := DefaultConfig("AB")
	a, err := Analyze(seriesOf(t, cointegratedBars(11, 250)), cfg)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !a.Coint.IsCointegrated {
		t.Errorf("Constructed pair should be cointegrated: %+v", a.Coint)
	}
	if math.Abs(a.Static.Beta-1.5) > 0.05 {
		t.Errorf("Static beta = %v, want ~1.5", a.Static.Beta)
	}
	if len(a.Betas) != 250 || len(a.ZScores) != 250 || len(a.Times) != 250 {
		t.Fatalf("Unexpected lengths: %d/%d/%d", len(a.Betas), len(a.ZScores), len(a.Times))
	}

	for i := 0; i < cfg.LookbackWindow-1; i++ {
		if !math.IsNaN(a.Betas[i]) || !math.IsNaN(a.Spread[i]) {
			t.Fatalf("index %d: values before the first full window must be NaN", i)
		}
	}
	for i := cfg.LookbackWindow - 1; i < 250; i++ {
		if math.Abs(a.Betas[i]-1.5) > 0.3 {
			t.Fatalf("index %d: rolling beta = %v, want ~1.5", i, a.Betas[i])
		}
	}

	// z needs MinPoints defined spread values
	firstZ := cfg.LookbackWindow - 1 + 19
	if !math.IsNaN(a.ZScores[firstZ-1]) || math.IsNaN(a.ZScores[firstZ]) {
		t.Errorf("z-scores should start at index %d: %v, %v", firstZ, a.ZScores[firstZ-1], a.ZScores[firstZ])
	}
}

func TestAnalyze_StaticEstimator(t *testing.T) {
	cfg := DefaultConfig("AB")
	cfg.HedgeEstimator = "static"
	a, err := Analyze(seriesOf(t, cointegratedBars(11, 150)), cfg)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	first := a.Betas[cfg.LookbackWindow-1]
	for i := cfg.LookbackWindow; i < 150; i++ {
		if a.Betas[i] != first {
			t.Fatalf("index %d: static beta moved from %v to %v", i, first, a.Betas[i])
		}
	}
}

func TestAnalyze_TooShort(t *testing.T) {
	_, err := Analyze(seriesOf(t, cointegratedBars(1, 10)), DefaultConfig("AB"))
	if !domain.IsRecoverable(err) || err == nil {
		t.Fatalf("Expected an insufficient data error, got %v", err)
	}
}
