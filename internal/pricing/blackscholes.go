// Package pricing implements the closed-form Black-Scholes model used to value
// option legs: price, Greeks, implied volatility, and portfolio aggregation.
//
// Time to expiry T is in years, r and sigma are annualised decimals
// (0.06 = 6%).
package pricing

import (
	"math"

	"optlab/internal/domain"
	"optlab/internal/util"
)

const (
	ivInitialGuess  = 0.20
	ivMaxIterations = 100
	ivTolerance     = 1e-4
	ivFloor         = 0.01

	greeksPrecision = 4
	daysPerYear     = 365.0
)

// Price returns the Black-Scholes value of a European call or put. At or past
// expiry it returns intrinsic value; a non-positive sigma prices the
// discounted forward payoff. A stock is worth spot.
func Price(spot, strike, t, r, sigma float64, typ domain.InstrumentType) float64 {
	if typ == domain.InstrumentStock {
		return spot
	}
	if t <= 0 {
		return intrinsic(spot, strike, typ)
	}
	if sigma <= 0 {
		fwd := spot - strike*math.Exp(-r*t)
		if typ == domain.InstrumentPut {
			return math.Max(-fwd, 0)
		}
		return math.Max(fwd, 0)
	}

	d1, d2 := d1d2(spot, strike, t, r, sigma)
	disc := strike * math.Exp(-r*t)
	if typ == domain.InstrumentPut {
		return disc*NormCDF(-d2) - spot*NormCDF(-d1)
	}
	return spot*NormCDF(d1) - disc*NormCDF(d2)
}

// Greeks returns delta, gamma, theta (per day), vega and rho (per one
// percentage point), rounded to four decimals. At or past expiry delta is the
// terminal step function and every other Greek is zero. A stock has delta 1
// and nothing else.
func Greeks(spot, strike, t, r, sigma float64, typ domain.InstrumentType) domain.Greeks {
	return round(rawGreeks(spot, strike, t, r, sigma, typ))
}

func round(g domain.Greeks) domain.Greeks {
	return domain.Greeks{
		Delta: util.Round(g.Delta, greeksPrecision),
		Gamma: util.Round(g.Gamma, greeksPrecision),
		Theta: util.Round(g.Theta, greeksPrecision),
		Vega:  util.Round(g.Vega, greeksPrecision),
		Rho:   util.Round(g.Rho, greeksPrecision),
	}
}

// rawGreeks is Greeks at full precision; aggregation works from these so
// rounding happens once.
func rawGreeks(spot, strike, t, r, sigma float64, typ domain.InstrumentType) domain.Greeks {
	if typ == domain.InstrumentStock {
		return domain.Greeks{Delta: 1}
	}
	if t <= 0 || sigma <= 0 {
		return domain.Greeks{Delta: terminalDelta(spot, strike, typ)}
	}

	d1, d2 := d1d2(spot, strike, t, r, sigma)
	sqrtT := math.Sqrt(t)
	pdf := NormPDF(d1)
	disc := strike * math.Exp(-r*t)

	g := domain.Greeks{
		Gamma: pdf / (spot * sigma * sqrtT),
		Vega:  spot * pdf * sqrtT / 100,
	}
	decay := -(spot * pdf * sigma) / (2 * sqrtT)
	if typ == domain.InstrumentPut {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + r*disc*NormCDF(-d2)) / daysPerYear
		g.Rho = -t * disc * NormCDF(-d2) / 100
	} else {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - r*disc*NormCDF(d2)) / daysPerYear
		g.Rho = t * disc * NormCDF(d2) / 100
	}
	return g
}

// ImpliedVolatility solves Price(sigma) = marketPrice by Newton-Raphson with
// vega as the derivative. It never fails: when the iteration budget runs out,
// or vega vanishes, it returns the best estimate so far.
func ImpliedVolatility(marketPrice, spot, strike, t, r float64, typ domain.InstrumentType) float64 {
	sigma := ivInitialGuess
	if t <= 0 {
		return sigma
	}

	for i := 0; i < ivMaxIterations; i++ {
		diff := Price(spot, strike, t, r, sigma, typ) - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma
		}

		v := vega(spot, strike, t, r, sigma)
		if v < 1e-12 {
			return sigma
		}

		sigma -= diff / v
		if sigma <= 0 {
			sigma = ivFloor
		}
	}
	return sigma
}

// vega is dPrice/dSigma per unit of volatility, as Newton-Raphson needs it.
func vega(spot, strike, t, r, sigma float64) float64 {
	d1, _ := d1d2(spot, strike, t, r, sigma)
	return spot * NormPDF(d1) * math.Sqrt(t)
}

func d1d2(spot, strike, t, r, sigma float64) (float64, float64) {
	sd := sigma * math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+0.5*sigma*sigma)*t) / sd
	return d1, d1 - sd
}

func terminalDelta(spot, strike float64, typ domain.InstrumentType) float64 {
	switch typ {
	case domain.InstrumentCall:
		if spot > strike {
			return 1
		}
	case domain.InstrumentPut:
		if spot < strike {
			return -1
		}
	case domain.InstrumentStock:
		return 1
	}
	return 0
}

func intrinsic(spot, strike float64, typ domain.InstrumentType) float64 {
	switch typ {
	case domain.InstrumentPut:
		return math.Max(strike-spot, 0)
	case domain.InstrumentStock:
		return spot
	default:
		return math.Max(spot-strike, 0)
	}
}

// YearFraction converts calendar days to the T used by the model.
func YearFraction(days int) float64 {
	return float64(days) / daysPerYear
}
