package quant

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// WindowStats summarises the newest period values of a sample.
type WindowStats struct {
	Mean  float64
	Std   float64 // Sample standard deviation (n-1)
	Count int
}

// RollingStats computes mean and sample std-dev over the newest period values.
// A period of zero or more than len(data) uses the whole slice.
func RollingStats(data []float64, period int) WindowStats {
	n := len(data)
	if n == 0 {
		return WindowStats{Mean: math.NaN(), Std: math.NaN()}
	}
	if period <= 0 || period > n {
		period = n
	}
	recent := data[n-period:]
	if len(recent) == 1 {
		return WindowStats{Mean: recent[0], Std: math.NaN(), Count: 1}
	}

	mean, std := stat.MeanStdDev(recent, nil)
	return WindowStats{Mean: mean, Std: std, Count: len(recent)}
}
