package quant

import (
	"gonum.org/v1/gonum/stat/distuv"

	"pairs_go/internal/domain"
)

// Residual-based (Engle-Granger, two variables, constant) critical value
// response surfaces from MacKinnon (2010): cv = b0 + b1/T + b2/T^2.
var egCritSurface = map[domain.ConfidenceLevel][3]float64{
	domain.Level1Pct:  {-3.89644, -10.9519, -22.527},
	domain.Level5Pct:  {-3.33613, -6.1101, -6.823},
	domain.Level10Pct: {-3.04445, -4.2412, -2.720},
}

// MacKinnon (1994) approximate asymptotic p-value surface for two variables with a constant.
const (
	egTauMax  = 0.92
	egTauMin  = -18.86
	egTauStar = -2.62
)

var (
	egSmallP = [3]float64{2.92, 1.5012, 0.039796}
	egLargeP = [4]float64{2.1945, 0.64695, -0.29198, -0.042377}
)

// EngleGrangerCrit returns the critical values for a residual series of nobs observations.
func EngleGrangerCrit(nobs int) map[domain.ConfidenceLevel]float64 {
	t := float64(nobs)
	out := make(map[domain.ConfidenceLevel]float64, len(egCritSurface))
	for level, b := range egCritSurface {
		out[level] = b[0] + b[1]/t + b[2]/(t*t)
	}
	return out
}

// EngleGrangerPValue returns the approximate p-value of an Engle-Granger statistic.
func EngleGrangerPValue(stat float64) float64 {
	if stat > egTauMax {
		return 1
	}
	if stat < egTauMin {
		return 0
	}

	var poly float64
	if stat <= egTauStar {
		poly = horner(egSmallP[:], stat)
	} else {
		poly = horner(egLargeP[:], stat)
	}
	return distuv.UnitNormal.CDF(poly)
}

// horner evaluates c[0] + c[1]x + c[2]x^2 + ...
func horner(c []float64, x float64) float64 {
	var acc float64
	for i := len(c) - 1; i >= 0; i-- {
		acc = acc*x + c[i]
	}
	return acc
}
