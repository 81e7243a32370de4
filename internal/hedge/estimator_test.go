package hedge

import (
	"errors"
	"math"
	"testing"
	"time"

	"pairs_go/internal/domain"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func pairSeries(t *testing.T, xs, ys []float64) domain.PairSeries {
	t.Helper()
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	x := make([]domain.PricePoint, len(xs))
	y := make([]domain.PricePoint, len(ys))
	for i := range xs {
		ts := start.Add(time.Duration(i) * time.Hour)
		x[i] = domain.PricePoint{Time: ts, Price: xs[i]}
		y[i] = domain.PricePoint{Time: ts, Price: ys[i]}
	}
	ps, err := domain.NewPairSeries("TEST", x, y)
	if err != nil {
		t.Fatalf("NewPairSeries failed: %v", err)
	}
	return ps
}

func TestOLSEstimator_PerfectlyLinear(t *testing.T) {
	// X = 2Y + 5 exactly: regressing X on Y recovers beta 2, intercept 5
	ys := make([]float64, 60)
	xs := make([]float64, 60)
	for i := range ys {
		ys[i] = 20 + float64(i)*0.5
		xs[i] = 2*ys[i] + 5
	}

	hr, err := NewOLSEstimator().Estimate(pairSeries(t, xs, ys))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if !almostEqual(hr.Beta, 2.0, 1e-9) {
		t.Errorf("Beta = %v, want 2.0", hr.Beta)
	}
	if !almostEqual(hr.Intercept, 5.0, 1e-7) {
		t.Errorf("Intercept = %v, want 5.0", hr.Intercept)
	}
	if !almostEqual(hr.RSquared, 1.0, 1e-9) {
		t.Errorf("RSquared = %v, want 1.0", hr.RSquared)
	}
	if hr.WindowUsed != 60 {
		t.Errorf("WindowUsed = %d, want 60", hr.WindowUsed)
	}
}

func TestOLSEstimator_DegenerateY(t *testing.T) {
	ys := []float64{7, 7, 7, 7, 7, 7}
	xs := []float64{1, 2, 3, 4, 5, 6}

	_, err := NewOLSEstimator().Estimate(pairSeries(t, xs, ys))
	if !errors.Is(err, domain.ErrDegenerateRegression) {
		t.Fatalf("Expected ErrDegenerateRegression, got %v", err)
	}
	if !domain.IsRecoverable(err) {
		t.Error("Degenerate regression should be recoverable")
	}
}

func TestOLSEstimator_Refits(t *testing.T) {
	est := NewOLSEstimator()

	first, _ := est.Estimate(pairSeries(t, []float64{2, 4, 6, 8}, []float64{1, 2, 3, 4}))
	second, _ := est.Estimate(pairSeries(t, []float64{3, 6, 9, 12}, []float64{1, 2, 3, 4}))

	if !almostEqual(first.Beta, 2, 1e-9) || !almostEqual(second.Beta, 3, 1e-9) {
		t.Errorf("Expected refit per call, got %v then %v", first.Beta, second.Beta)
	}
}

func TestStaticEstimator_Freezes(t *testing.T) {
	est := NewStaticEstimator()

	first, err := est.Estimate(pairSeries(t, []float64{2, 4, 6, 8}, []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	second, _ := est.Estimate(pairSeries(t, []float64{3, 6, 9, 12}, []float64{1, 2, 3, 4}))
	if first != second {
		t.Errorf("Static estimator should return frozen fit, got %+v then %+v", first, second)
	}

	est.Reset()
	third, _ := est.Estimate(pairSeries(t, []float64{3, 6, 9, 12}, []float64{1, 2, 3, 4}))
	if !almostEqual(third.Beta, 3, 1e-9) {
		t.Errorf("After Reset expected beta 3, got %v", third.Beta)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr error
	}{
		{"", nil},
		{"OLS", nil},
		{"static", nil},
		{"kalman", domain.ErrEstimatorUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			est, err := New(tt.kind)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New(%q) error = %v, want %v", tt.kind, err, tt.wantErr)
				}
				return
			}
			if err != nil || est == nil {
				t.Fatalf("New(%q) = %v, %v", tt.kind, est, err)
			}
		})
	}

	var ce *domain.ConfigError
	if _, err := New("garch"); !errors.As(err, &ce) {
		t.Errorf("Expected ConfigError for unknown kind, got %v", err)
	}
}
