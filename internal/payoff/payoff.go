// Package payoff computes the P&L-at-expiry profile of a leg set. It works on
// a position snapshot and is independent of the backtest engine.
package payoff

import (
	"math"
	"slices"

	"optlab/internal/domain"
	"optlab/internal/pricing"
)

const (
	rangePadding = 0.20
	stepDivisor  = 100.0
	minStep      = 1.0
	maxSamples   = 20000
)

// Range is the sampled underlying-price interval. A zero Step is derived
// from the interval width.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// AutoRange derives the sampling interval from the strike set and the current
// price, padded by 20% of the strike spread on each side. When every price
// coincides the spread falls back to the current price itself.
func AutoRange(legs []domain.Leg, currentPrice float64) Range {
	lo, hi := currentPrice, currentPrice
	for _, l := range legs {
		if l.StrikePrice <= 0 {
			continue
		}
		lo = math.Min(lo, l.StrikePrice)
		hi = math.Max(hi, l.StrikePrice)
	}

	spread := hi - lo
	if spread == 0 {
		spread = currentPrice
	}
	if spread <= 0 {
		spread = stepDivisor
	}
	return Range{
		Min:  math.Max(lo-rangePadding*spread, 0),
		Max:  hi + rangePadding*spread,
		Step: math.Max(spread/stepDivisor, minStep),
	}
}

// LegPnL is the expiry P&L of one leg at the given underlying price:
// (intrinsic - entry premium) x quantity x sign.
func LegPnL(l domain.Leg, price float64) float64 {
	return (l.Intrinsic(price) - l.EntryPrice) * float64(l.Quantity) * l.Sign()
}

// PnLAt sums LegPnL across legs.
func PnLAt(legs []domain.Leg, price float64) float64 {
	var total float64
	for _, l := range legs {
		total += LegPnL(l, price)
	}
	return total
}

// Calculate samples the payoff curve over rng (auto-derived when nil) and
// derives breakevens, extremes, the P&L nearest the current price, and the
// risk/reward ratio. Extremes are bounded by the sampled range.
func Calculate(legs []domain.Leg, currentPrice float64, rng *Range) domain.PayoffDiagram {
	r := AutoRange(legs, currentPrice)
	if rng != nil {
		r = normalise(*rng)
	}

	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	d := domain.PayoffDiagram{
		Points:     make([]domain.PayoffPoint, 0, n),
		Breakevens: []float64{},
	}
	for i := 0; i < n; i++ {
		price := r.Min + float64(i)*r.Step
		d.Points = append(d.Points, domain.PayoffPoint{UnderlyingPrice: price, PnL: PnLAt(legs, price)})
	}
	if len(d.Points) == 0 {
		return d
	}

	d.MaxProfit = d.Points[0].PnL
	d.MaxLoss = d.Points[0].PnL
	nearest := 0
	for i, p := range d.Points {
		d.MaxProfit = math.Max(d.MaxProfit, p.PnL)
		d.MaxLoss = math.Min(d.MaxLoss, p.PnL)
		if math.Abs(p.UnderlyingPrice-currentPrice) < math.Abs(d.Points[nearest].UnderlyingPrice-currentPrice) {
			nearest = i
		}
	}
	d.CurrentPnL = d.Points[nearest].PnL
	d.Breakevens = breakevens(d.Points)
	if d.MaxLoss != 0 {
		d.RiskRewardRatio = math.Abs(d.MaxProfit) / math.Abs(d.MaxLoss)
	}
	return d
}

// breakevens interpolates every zero crossing between adjacent samples. A
// sample that lands exactly on zero counts once, on arrival.
func breakevens(points []domain.PayoffPoint) []float64 {
	out := []float64{}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		switch {
		case a.PnL*b.PnL < 0:
			x := a.UnderlyingPrice + (0-a.PnL)*(b.UnderlyingPrice-a.UnderlyingPrice)/(b.PnL-a.PnL)
			out = append(out, x)
		case b.PnL == 0 && a.PnL != 0:
			out = append(out, b.UnderlyingPrice)
		}
	}
	return out
}

func normalise(r Range) Range {
	if r.Max < r.Min {
		r.Min, r.Max = r.Max, r.Min
	}
	if r.Step <= 0 {
		r.Step = math.Max((r.Max-r.Min)/stepDivisor, minStep)
	}
	if (r.Max-r.Min)/r.Step > maxSamples {
		r.Step = (r.Max - r.Min) / maxSamples
	}
	return r
}

// ProbabilityOfProfit approximates the chance that the underlying finishes
// between the two breakevens, using a normal move with standard deviation
// spot x iv x sqrt(days/365). It is non-zero only for diagrams with exactly
// two breakevens.
func ProbabilityOfProfit(d domain.PayoffDiagram, currentPrice, iv float64, daysToExpiry int) float64 {
	if len(d.Breakevens) != 2 || iv <= 0 || daysToExpiry <= 0 || currentPrice <= 0 {
		return 0
	}
	bes := slices.Clone(d.Breakevens)
	slices.Sort(bes)

	sd := currentPrice * iv * math.Sqrt(pricing.YearFraction(daysToExpiry))
	zl := (bes[0] - currentPrice) / sd
	zu := (bes[1] - currentPrice) / sd
	return pricing.NormCDF(zu) - pricing.NormCDF(zl)
}
