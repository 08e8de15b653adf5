package payoff

import (
	"math"
	"testing"

	"optlab/internal/domain"
)

func call(action domain.Action, qty int, strike, premium float64) domain.Leg {
	return domain.Leg{InstrumentType: domain.InstrumentCall, Action: action, Quantity: qty, StrikePrice: strike, EntryPrice: premium}
}

func put(action domain.Action, qty int, strike, premium float64) domain.Leg {
	return domain.Leg{InstrumentType: domain.InstrumentPut, Action: action, Quantity: qty, StrikePrice: strike, EntryPrice: premium}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFarFieldSlopes(t *testing.T) {
	tests := []struct {
		name      string
		legs      []domain.Leg
		wantAbove float64 // slope beyond 2x the max strike
		wantBelow float64 // slope near zero
	}{
		{"long call", []domain.Leg{call(domain.ActionBuy, 2, 100, 5)}, 2, 0},
		{"long put", []domain.Leg{put(domain.ActionBuy, 1, 100, 4)}, 0, -1},
		{"short call", []domain.Leg{call(domain.ActionSell, 1, 100, 5)}, -1, 0},
		{"bear call credit spread", []domain.Leg{call(domain.ActionSell, 1, 100, 5), call(domain.ActionBuy, 1, 110, 1)}, 0, 0},
		{"long stock", []domain.Leg{{InstrumentType: domain.InstrumentStock, Action: domain.ActionBuy, Quantity: 100, StrikePrice: 50, EntryPrice: 50}}, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			above := (PnLAt(tt.legs, 400) - PnLAt(tt.legs, 300)) / 100
			if !approx(above, tt.wantAbove) {
				t.Errorf("slope above strikes = %v, want %v", above, tt.wantAbove)
			}
			below := (PnLAt(tt.legs, 20) - PnLAt(tt.legs, 10)) / 10
			if !approx(below, tt.wantBelow) {
				t.Errorf("slope below strikes = %v, want %v", below, tt.wantBelow)
			}
		})
	}
}

func TestCreditSpreadFlattens(t *testing.T) {
	legs := []domain.Leg{call(domain.ActionSell, 1, 100, 5), call(domain.ActionBuy, 1, 110, 1)}
	if got := PnLAt(legs, 500); !approx(got, -6) {
		t.Errorf("PnL far above = %v, want -6", got)
	}
	if got := PnLAt(legs, 50); !approx(got, 4) {
		t.Errorf("PnL far below = %v, want 4", got)
	}

	d := Calculate(legs, 105, nil)
	if !approx(d.MaxProfit, 4) || !approx(d.MaxLoss, -6) {
		t.Errorf("MaxProfit/MaxLoss = %v/%v, want 4/-6", d.MaxProfit, d.MaxLoss)
	}
	if !approx(d.RiskRewardRatio, 4.0/6.0) {
		t.Errorf("RiskRewardRatio = %v, want %v", d.RiskRewardRatio, 4.0/6.0)
	}
	if len(d.Breakevens) != 1 || !approx(d.Breakevens[0], 104) {
		t.Errorf("Breakevens = %v, want [104]", d.Breakevens)
	}
}

func TestSingleOptionHasOneBreakeven(t *testing.T) {
	tests := []struct {
		name string
		leg  domain.Leg
		want float64
	}{
		{"long call", call(domain.ActionBuy, 1, 100, 5), 105},
		{"long put", put(domain.ActionBuy, 1, 100, 4), 96},
		{"long call off grid", call(domain.ActionBuy, 1, 100, 5.5), 105.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Calculate([]domain.Leg{tt.leg}, 100, nil)
			if len(d.Breakevens) != 1 {
				t.Fatalf("Breakevens = %v, want exactly one", d.Breakevens)
			}
			if !approx(d.Breakevens[0], tt.want) {
				t.Errorf("breakeven = %v, want %v", d.Breakevens[0], tt.want)
			}
		})
	}
}

func TestStraddleBreakevensSymmetric(t *testing.T) {
	legs := []domain.Leg{call(domain.ActionBuy, 1, 100, 5), put(domain.ActionBuy, 1, 100, 5)}
	d := Calculate(legs, 100, nil)

	if len(d.Breakevens) != 2 {
		t.Fatalf("Breakevens = %v, want two", d.Breakevens)
	}
	lo, hi := d.Breakevens[0], d.Breakevens[1]
	if !approx(100-lo, hi-100) {
		t.Errorf("breakevens %v and %v are not equidistant from 100", lo, hi)
	}
	if !approx(lo, 90) || !approx(hi, 110) {
		t.Errorf("breakevens = %v, want [90 110]", d.Breakevens)
	}
	if !approx(d.CurrentPnL, -10) {
		t.Errorf("CurrentPnL = %v, want -10", d.CurrentPnL)
	}
	if !approx(d.MaxLoss, -10) {
		t.Errorf("MaxLoss = %v, want -10", d.MaxLoss)
	}
}

func TestAutoRange(t *testing.T) {
	legs := []domain.Leg{call(domain.ActionSell, 1, 100, 5), call(domain.ActionBuy, 1, 200, 1)}
	r := AutoRange(legs, 150)
	if r.Min != 80 || r.Max != 220 || r.Step != 1 {
		t.Errorf("AutoRange = %+v, want {80 220 1}", r)
	}

	r = AutoRange([]domain.Leg{call(domain.ActionBuy, 1, 20000, 100)}, 20000)
	if r.Min != 16000 || r.Max != 24000 || r.Step != 200 {
		t.Errorf("AutoRange with zero spread = %+v, want {16000 24000 200}", r)
	}
}

func TestCalculateExplicitRange(t *testing.T) {
	legs := []domain.Leg{call(domain.ActionBuy, 1, 100, 5)}
	d := Calculate(legs, 100, &Range{Min: 90, Max: 110, Step: 5})

	if len(d.Points) != 5 {
		t.Fatalf("len(Points) = %d, want 5", len(d.Points))
	}
	if d.Points[0].UnderlyingPrice != 90 || d.Points[4].UnderlyingPrice != 110 {
		t.Errorf("range = [%v, %v], want [90, 110]", d.Points[0].UnderlyingPrice, d.Points[4].UnderlyingPrice)
	}
	if d.RiskRewardRatio != 1 {
		t.Errorf("RiskRewardRatio = %v, want 1", d.RiskRewardRatio)
	}
}

func TestRiskRewardZeroWithoutLoss(t *testing.T) {
	// A call bought for nothing never loses.
	d := Calculate([]domain.Leg{call(domain.ActionBuy, 1, 100, 0)}, 100, nil)
	if d.RiskRewardRatio != 0 {
		t.Errorf("RiskRewardRatio = %v, want 0", d.RiskRewardRatio)
	}
}

func TestProbabilityOfProfit(t *testing.T) {
	short := []domain.Leg{call(domain.ActionSell, 1, 100, 5), put(domain.ActionSell, 1, 100, 5)}
	d := Calculate(short, 100, nil)

	// Breakevens 90/110, one-year sd of 20 -> z = +/-0.5.
	got := ProbabilityOfProfit(d, 100, 0.2, 365)
	if math.Abs(got-0.3829) > 1e-3 {
		t.Errorf("ProbabilityOfProfit = %v, want 0.3829", got)
	}

	single := Calculate([]domain.Leg{call(domain.ActionBuy, 1, 100, 5)}, 100, nil)
	if got := ProbabilityOfProfit(single, 100, 0.2, 30); got != 0 {
		t.Errorf("ProbabilityOfProfit with one breakeven = %v, want 0", got)
	}
	if got := ProbabilityOfProfit(d, 100, 0, 30); got != 0 {
		t.Errorf("ProbabilityOfProfit with zero iv = %v, want 0", got)
	}
}
