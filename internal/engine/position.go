package engine

import (
	"math"
	"time"

	"optlab/internal/domain"
	"optlab/internal/pricing"
	"optlab/internal/util"
)

// position is the engine's view of the open trade.
type position struct {
	trade          domain.Trade
	expiry         domain.Date
	totalDays      int     // calendar days from entry to expiry
	netPremium     float64 // signed: debit +, credit -
	costBasis      float64 // |netPremium| + entry commission
	entryComm      float64
	exitCommission float64
}

// value is the signed closing value of the legs on day: intrinsic at spot
// plus each option's entry extrinsic decayed linearly to expiry. It is not a
// re-pricing through the model.
func (p *position) value(day domain.Date, spot float64) float64 {
	remaining := max(day.DaysUntil(p.expiry), 0)
	var v float64
	for _, l := range p.trade.Legs {
		per := l.Intrinsic(spot)
		if l.InstrumentType.IsOption() && p.totalDays > 0 {
			per += l.Extrinsic() * float64(remaining) / float64(p.totalDays)
		}
		v += l.Sign() * per * float64(l.Quantity)
	}
	return v
}

// unrealizedPct is the open P&L after the entry commission as a percentage
// of the capital put at risk.
func (p *position) unrealizedPct(v float64) float64 {
	if p.costBasis == 0 {
		return 0
	}
	return (v - p.netPremium - p.entryComm) / p.costBasis * 100
}

// ExpiryFor returns entry + daysToExpiry rolled forward to the next Thursday,
// the weekly index-option expiry. A Thursday stays put.
func ExpiryFor(entry domain.Date, daysToExpiry int) domain.Date {
	return domain.DateOf(util.NextWeekday(entry.AddDays(daysToExpiry).Time, time.Thursday))
}

// SelectStrike picks a strike on the interval grid. ATM is the nearest grid
// point; OTM moves one interval away from the money (up for calls, down for
// puts) and ITM the other way. offset adds further intervals out of the money
// for every rule, so ITM with offset 2 lands one interval OTM. Strikes never
// go below one interval.
func SelectStrike(spot, interval float64, rule domain.StrikeSelection, typ domain.InstrumentType, offset int) float64 {
	// outward is the direction of "out of the money" for this option type.
	outward := 1.0
	if typ == domain.InstrumentPut {
		outward = -1
	}

	steps := float64(offset)
	switch rule {
	case domain.StrikeOTM:
		steps++
	case domain.StrikeITM:
		steps--
	}
	atm := math.Round(spot/interval) * interval
	return math.Max(atm+outward*steps*interval, interval)
}

// enter prices the configured legs and opens a position if the cost basis
// fits in available capital. Unaffordable entries are skipped silently.
func (e *Engine) enter(day domain.Date, spot float64) {
	expiry := ExpiryFor(day, e.cfg.EntryRules.DaysToExpiry)
	totalDays := day.DaysUntil(expiry)
	t := pricing.YearFraction(totalDays)

	legs := make([]domain.Leg, len(e.cfg.Legs))
	var net float64
	for i, tmpl := range e.cfg.Legs {
		leg := domain.Leg{
			LegNumber:      i + 1,
			InstrumentType: tmpl.InstrumentType,
			Action:         tmpl.Action,
			Quantity:       tmpl.Quantity,
			ExpiryDate:     expiry,
		}
		if tmpl.InstrumentType.IsOption() {
			leg.StrikePrice = SelectStrike(spot, e.opts.StrikeInterval, e.cfg.EntryRules.Strike(), tmpl.InstrumentType, tmpl.StrikeOffset)
			leg.EntryPrice = pricing.Price(spot, leg.StrikePrice, t, e.opts.RiskFreeRate, e.opts.Volatility, tmpl.InstrumentType)
			leg.EntryIntrinsic = leg.Intrinsic(spot)
		} else {
			leg.StrikePrice = spot
			leg.EntryPrice = spot
		}
		legs[i] = leg
		net += leg.Sign() * leg.EntryPrice * float64(leg.Quantity)
	}

	comm := e.cfg.CommissionPerLeg * float64(len(legs))
	cost := math.Abs(net) + comm
	if !e.risk.CanAfford(cost, e.capital) {
		e.log.Debug("skipping entry", "date", day, "cost", cost, "capital", e.capital)
		return
	}

	e.capital -= net + comm
	e.pos = &position{
		trade: domain.Trade{
			ID:         e.nextID,
			EntryDate:  day,
			ExitDate:   expiry,
			EntryPrice: net,
			Legs:       legs,
		},
		expiry:         expiry,
		totalDays:      totalDays,
		netPremium:     net,
		costBasis:      cost,
		entryComm:      comm,
		exitCommission: comm,
	}
	e.nextID++
	e.state = open

	e.log.Debug("opening position",
		"trade", e.pos.trade.ID,
		"date", day,
		"spot", spot,
		"expiry", expiry,
		"net_premium", net,
	)
}

// evaluateExit applies the exit rules in priority order: target profit, stop
// loss, days to expiry, expiry, then end of window when forceClose is set.
func (e *Engine) evaluateExit(day domain.Date, spot float64, forceClose bool) {
	p := e.pos
	v := p.value(day, spot)
	pct := p.unrealizedPct(v)
	rules := e.cfg.ExitRules

	var reason domain.ExitReason
	switch {
	case rules.TargetProfitPct != nil && pct >= *rules.TargetProfitPct:
		reason = domain.ExitTargetProfit
	case rules.StopLossPct != nil && pct <= -*rules.StopLossPct:
		reason = domain.ExitStopLoss
	case rules.DaysToExpiry != nil && day.DaysUntil(p.expiry) <= *rules.DaysToExpiry:
		reason = domain.ExitDaysToExpiry
	case !day.Before(p.expiry):
		reason = domain.ExitExpiry
	case forceClose:
		reason = domain.ExitEndOfWindow
	default:
		return
	}
	e.exit(day, v, reason)
}

func (e *Engine) exit(day domain.Date, v float64, reason domain.ExitReason) {
	p := e.pos
	t := p.trade
	t.ExitDate = day
	t.ExitPrice = v
	t.GrossPnL = v - p.netPremium
	t.Commission = p.entryComm + p.exitCommission
	t.PnL = t.GrossPnL - t.Commission
	if p.costBasis != 0 {
		t.PnLPct = t.PnL / p.costBasis * 100
	}
	t.DurationDays = t.EntryDate.DaysUntil(day)
	t.ExitReason = reason

	e.capital += v - p.exitCommission
	e.trades = append(e.trades, t)
	e.pos = nil
	e.state = flat

	e.log.Debug("closing position",
		"trade", t.ID,
		"date", day,
		"reason", reason,
		"pnl", t.PnL,
	)
}
