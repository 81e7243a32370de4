package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseConfidenceLevel(t *testing.T) {
	tests := []struct {
		in   string
		want ConfidenceLevel
	}{
		{"1%", Level1Pct},
		{"0.01", Level1Pct},
		{"5%", Level5Pct},
		{"", Level5Pct},
		{" 10% ", Level10Pct},
		{"0.10", Level10Pct},
	}
	for _, tt := range tests {
		got, err := ParseConfidenceLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseConfidenceLevel(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseConfidenceLevel("2.5%"); err == nil {
		t.Error("Expected error for unsupported level")
	}
}

func TestHedgeRatio_SpreadValue(t *testing.T) {
	h := HedgeRatio{Beta: 2, Intercept: 5}

	if got := h.SpreadValue(30, 10, InterceptDemeaned); got != 5 {
		t.Errorf("demeaned spread = %v, want 5", got)
	}
	if got := h.SpreadValue(30, 10, InterceptRawResidual); got != 10 {
		t.Errorf("raw residual spread = %v, want 10", got)
	}
}

func TestSpread_ZScore(t *testing.T) {
	t.Run("defined", func(t *testing.T) {
		s := Spread{Values: make([]float64, 60), Current: 3, Mean: 1, Std: 0.5, Window: 60, MinPoints: 20}
		z, err := s.ZScore()
		if err != nil {
			t.Fatalf("ZScore failed: %v", err)
		}
		if z != 4 {
			t.Errorf("z = %v, want 4", z)
		}
	})

	t.Run("zero std", func(t *testing.T) {
		s := Spread{Values: make([]float64, 60), Current: 3, Mean: 3, Std: 0, Window: 60}
		z, err := s.ZScore()
		if !errors.Is(err, ErrUndefinedZScore) {
			t.Fatalf("Expected ErrUndefinedZScore, got %v", err)
		}
		if !math.IsNaN(z) {
			t.Errorf("Expected NaN, got %v", z)
		}
	})

	t.Run("short sample", func(t *testing.T) {
		s := Spread{Values: make([]float64, 5), Current: 3, Mean: 1, Std: 1, Window: 60, MinPoints: 10}
		if _, err := s.ZScore(); !errors.Is(err, ErrUndefinedZScore) {
			t.Fatalf("Expected ErrUndefinedZScore, got %v", err)
		}
	})
}
