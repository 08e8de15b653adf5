// Package builtins provides the option strategy presets that ship with
// optlab.
package builtins

import (
	"optlab/internal/domain"
	"optlab/internal/strategy"
)

func leg(typ domain.InstrumentType, action domain.Action, qty, offset int) domain.LegTemplate {
	return domain.LegTemplate{InstrumentType: typ, Action: action, Quantity: qty, StrikeOffset: offset}
}

var (
	call  = domain.InstrumentCall
	put   = domain.InstrumentPut
	stock = domain.InstrumentStock
	buy   = domain.ActionBuy
	sell  = domain.ActionSell
)

// Presets returns the built-in strategy templates.
func Presets() []strategy.Template {
	weekly := domain.ExitRules{DaysToExpiry: domain.Int(1)}
	credit := domain.ExitRules{
		TargetProfitPct: domain.Float(50),
		StopLossPct:     domain.Float(100),
		DaysToExpiry:    domain.Int(1),
	}

	return []strategy.Template{
		{
			ID:              "long_call",
			Summary:         "Buy one at-the-money call",
			StrikeSelection: domain.StrikeATM,
			DaysToExpiry:    7,
			Legs:            []domain.LegTemplate{leg(call, buy, 1, 0)},
			ExitRules:       weekly,
		},
		{
			ID:              "long_put",
			Summary:         "Buy one at-the-money put",
			StrikeSelection: domain.StrikeATM,
			DaysToExpiry:    7,
			Legs:            []domain.LegTemplate{leg(put, buy, 1, 0)},
			ExitRules:       weekly,
		},
		{
			ID:              "covered_call",
			Summary:         "Hold 100 units of the underlying and sell 100 out-of-the-money calls",
			StrikeSelection: domain.StrikeOTM,
			DaysToExpiry:    30,
			Legs:            []domain.LegTemplate{leg(stock, buy, 100, 0), leg(call, sell, 100, 0)},
			ExitRules:       domain.ExitRules{DaysToExpiry: domain.Int(2)},
		},
		{
			ID:              "bull_call_spread",
			Summary:         "Buy an at-the-money call, sell a call two strikes higher",
			StrikeSelection: domain.StrikeATM,
			DaysToExpiry:    14,
			Legs:            []domain.LegTemplate{leg(call, buy, 1, 0), leg(call, sell, 1, 2)},
			ExitRules:       domain.ExitRules{TargetProfitPct: domain.Float(60), StopLossPct: domain.Float(50), DaysToExpiry: domain.Int(1)},
		},
		{
			ID:              "bear_put_spread",
			Summary:         "Buy an at-the-money put, sell a put two strikes lower",
			StrikeSelection: domain.StrikeATM,
			DaysToExpiry:    14,
			Legs:            []domain.LegTemplate{leg(put, buy, 1, 0), leg(put, sell, 1, 2)},
			ExitRules:       domain.ExitRules{TargetProfitPct: domain.Float(60), StopLossPct: domain.Float(50), DaysToExpiry: domain.Int(1)},
		},
		{
			ID:              "long_straddle",
			Summary:         "Buy an at-the-money call and put",
			StrikeSelection: domain.StrikeATM,
			DaysToExpiry:    14,
			Legs:            []domain.LegTemplate{leg(call, buy, 1, 0), leg(put, buy, 1, 0)},
			ExitRules:       domain.ExitRules{TargetProfitPct: domain.Float(40), StopLossPct: domain.Float(30), DaysToExpiry: domain.Int(2)},
		},
		{
			ID:              "short_strangle",
			Summary:         "Sell an out-of-the-money call and put",
			StrikeSelection: domain.StrikeOTM,
			DaysToExpiry:    7,
			Legs:            []domain.LegTemplate{leg(call, sell, 1, 1), leg(put, sell, 1, 1)},
			ExitRules:       credit,
		},
		{
			ID:              "iron_condor",
			Summary:         "Sell an out-of-the-money strangle, buy wings two strikes further out",
			StrikeSelection: domain.StrikeOTM,
			DaysToExpiry:    7,
			Legs: []domain.LegTemplate{
				leg(put, buy, 1, 2),
				leg(put, sell, 1, 0),
				leg(call, sell, 1, 0),
				leg(call, buy, 1, 2),
			},
			ExitRules: credit,
		},
	}
}

// Register adds every built-in preset to r.
func Register(r *strategy.Registry) {
	for _, p := range Presets() {
		r.Register(p)
	}
}

// NewRegistry returns a registry holding the built-in presets.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
