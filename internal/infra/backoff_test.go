package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retry    int
		max      time.Duration
		low, top time.Duration
	}{
		{0, time.Minute, 800 * time.Millisecond, time.Second},
		{3, time.Minute, 6400 * time.Millisecond, 8 * time.Second},
		{20, 10 * time.Second, 8 * time.Second, 10 * time.Second},
		{2, 0, 3200 * time.Millisecond, 4 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			got := CalculateBackoff(tt.retry, tt.max)
			if got < tt.low || got > tt.top {
				t.Fatalf("CalculateBackoff(%d, %s) = %s, want in [%s, %s]", tt.retry, tt.max, got, tt.low, tt.top)
			}
		}
	}
}
