package pricing

import (
	"math"
	"time"

	"optlab/internal/domain"
	"optlab/internal/util"
)

// LegGreeks pairs a leg's side and size with its per-unit Greeks.
type LegGreeks struct {
	Action   domain.Action `json:"action"`
	Quantity int           `json:"quantity"`
	Greeks   domain.Greeks `json:"greeks"`
}

// Rounded returns a copy with the Greeks at four decimals.
func (lg LegGreeks) Rounded() LegGreeks {
	lg.Greeks = round(lg.Greeks)
	return lg
}

// LegGreeksFor values one leg as of the given date. Stock legs carry a delta
// of one per unit and nothing else.
func LegGreeksFor(leg domain.Leg, spot float64, asOf domain.Date, r, sigma float64) LegGreeks {
	lg := LegGreeks{Action: leg.Action, Quantity: leg.Quantity}
	if !leg.InstrumentType.IsOption() {
		lg.Greeks = domain.Greeks{Delta: 1}
		return lg
	}
	t := YearFraction(asOf.DaysUntil(leg.ExpiryDate))
	lg.Greeks = rawGreeks(spot, leg.StrikePrice, t, r, sigma, leg.InstrumentType)
	return lg
}

// PortfolioGreeks sums signed (buy +1, sell -1), quantity-weighted Greeks
// across legs. NetExposure is the absolute total delta.
func PortfolioGreeks(legs []LegGreeks) domain.PortfolioGreeks {
	var p domain.PortfolioGreeks
	for _, l := range legs {
		w := l.Action.Sign() * float64(l.Quantity)
		p.Delta += w * l.Greeks.Delta
		p.Gamma += w * l.Greeks.Gamma
		p.Theta += w * l.Greeks.Theta
		p.Vega += w * l.Greeks.Vega
	}
	return domain.PortfolioGreeks{
		Delta:       util.Round(p.Delta, greeksPrecision),
		Gamma:       util.Round(p.Gamma, greeksPrecision),
		Theta:       util.Round(p.Theta, greeksPrecision),
		Vega:        util.Round(p.Vega, greeksPrecision),
		NetExposure: util.Round(math.Abs(p.Delta), greeksPrecision),
	}
}

// Positions values a leg set as of a date, ready for PortfolioGreeks.
func Positions(legs []domain.Leg, spot float64, asOf time.Time, r, sigma float64) []LegGreeks {
	day := domain.DateOf(asOf)
	out := make([]LegGreeks, 0, len(legs))
	for _, l := range legs {
		out = append(out, LegGreeksFor(l, spot, day, r, sigma))
	}
	return out
}
