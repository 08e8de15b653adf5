package pricing

import "math"

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// NormCDF is the standard normal CDF via the Abramowitz-Stegun rational
// polynomial approximation. Absolute error is below 7.5e-8, and it is
// symmetric (NormCDF(x) + NormCDF(-x) == 1 up to rounding), which keeps
// put-call parity tight.
func NormCDF(x float64) float64 {
	ax := math.Abs(x)
	k := 1 / (1 + asP*ax)
	poly := k * (asB1 + k*(asB2+k*(asB3+k*(asB4+k*asB5))))
	tail := NormPDF(ax) * poly
	if x >= 0 {
		return 1 - tail
	}
	return tail
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}
