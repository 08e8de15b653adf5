package pricing

import (
	"math"
	"testing"

	"optlab/internal/domain"
)

func TestPortfolioGreeksSignsAndQuantities(t *testing.T) {
	g := domain.Greeks{Delta: 0.5, Gamma: 0.02, Theta: -0.05, Vega: 0.1}

	legs := []LegGreeks{
		{Action: domain.ActionBuy, Quantity: 2, Greeks: g},
		{Action: domain.ActionSell, Quantity: 1, Greeks: g},
	}
	p := PortfolioGreeks(legs)

	if p.Delta != 0.5 || p.Gamma != 0.02 || p.Theta != -0.05 || p.Vega != 0.1 {
		t.Errorf("PortfolioGreeks = %+v, want one net long unit", p)
	}
	if p.NetExposure != 0.5 {
		t.Errorf("NetExposure = %v, want 0.5", p.NetExposure)
	}
}

func TestPortfolioGreeksShortStraddleIsDeltaNeutral(t *testing.T) {
	expiry := domain.MustDate("2024-02-01")
	asOf := domain.MustDate("2024-01-02")
	legs := []domain.Leg{
		{InstrumentType: domain.InstrumentCall, Action: domain.ActionSell, Quantity: 1, StrikePrice: 100, ExpiryDate: expiry},
		{InstrumentType: domain.InstrumentPut, Action: domain.ActionSell, Quantity: 1, StrikePrice: 100, ExpiryDate: expiry},
	}

	p := PortfolioGreeks(Positions(legs, 100, asOf.Time, 0, 0.2))
	if math.Abs(p.Delta) > 0.1 {
		t.Errorf("short ATM straddle delta = %v, want near 0", p.Delta)
	}
	if p.Gamma >= 0 {
		t.Errorf("short straddle gamma = %v, want negative", p.Gamma)
	}
	if p.Theta <= 0 {
		t.Errorf("short straddle theta = %v, want positive", p.Theta)
	}
	if p.NetExposure != math.Abs(p.Delta) {
		t.Errorf("NetExposure = %v, want |delta| = %v", p.NetExposure, math.Abs(p.Delta))
	}
}

func TestLegGreeksForStock(t *testing.T) {
	leg := domain.Leg{InstrumentType: domain.InstrumentStock, Action: domain.ActionBuy, Quantity: 100}
	lg := LegGreeksFor(leg, 50, domain.MustDate("2024-01-02"), 0.06, 0.2)
	if lg.Greeks.Delta != 1 || lg.Greeks.Gamma != 0 {
		t.Errorf("stock leg greeks = %+v, want delta 1 only", lg.Greeks)
	}
	if p := PortfolioGreeks([]LegGreeks{lg}); p.Delta != 100 {
		t.Errorf("100 shares delta = %v, want 100", p.Delta)
	}
}
