package domain

import (
	"time"

	"optlab/internal/util"
)

// Trade is one round trip through the position state machine.
type Trade struct {
	ID           int        `json:"id"`
	EntryDate    Date       `json:"entryDate"`
	ExitDate     Date       `json:"exitDate"`
	EntryPrice   float64    `json:"entryPrice"` // signed net premium: debit +, credit -
	ExitPrice    float64    `json:"exitPrice"`  // signed closing value of the legs
	GrossPnL     float64    `json:"grossPnl"`
	Commission   float64    `json:"commission"` // entry and exit
	PnL          float64    `json:"pnl"`        // net of commission
	PnLPct       float64    `json:"pnlPct"`
	DurationDays int        `json:"durationDays"`
	ExitReason   ExitReason `json:"exitReason,omitempty"`
	Legs         []Leg      `json:"legs"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Date   Date    `json:"date"`
	Equity float64 `json:"equity"`
}

// BacktestResult is the immutable aggregate returned by a run.
type BacktestResult struct {
	StrategyName     string             `json:"strategyName"`
	StartDate        Date               `json:"startDate"`
	EndDate          Date               `json:"endDate"`
	TotalTrades      int                `json:"totalTrades"`
	WinningTrades    int                `json:"winningTrades"`
	LosingTrades     int                `json:"losingTrades"`
	WinRate          float64            `json:"winRate"`
	TotalPnL         float64            `json:"totalPnl"`
	AvgWin           float64            `json:"avgWin"`
	AvgLoss          float64            `json:"avgLoss"`
	LargestWin       float64            `json:"largestWin"`
	LargestLoss      float64            `json:"largestLoss"`
	ProfitFactor     float64            `json:"profitFactor"`
	MaxDrawdown      float64            `json:"maxDrawdown"`
	MaxDrawdownPct   float64            `json:"maxDrawdownPct"`
	SharpeRatio      float64            `json:"sharpeRatio"`
	AvgTradeDuration float64            `json:"avgTradeDuration"`
	TotalCommissions float64            `json:"totalCommissions"`
	InitialCapital   float64            `json:"initialCapital"`
	FinalCapital     float64            `json:"finalCapital"`
	ReturnPct        float64            `json:"returnPct"`
	EquityCurve      []EquityPoint      `json:"equityCurve"`
	Trades           []Trade            `json:"trades"`
	MonthlyReturns   map[string]float64 `json:"monthlyReturns"`
	OpenTrade        *Trade             `json:"openTrade,omitempty"`
}

// Rounded returns a copy for presentation: money and percentages to 2
// decimals, ratios to 4. The receiver keeps full precision.
func (r *BacktestResult) Rounded() *BacktestResult {
	out := *r
	out.WinRate = util.Round(r.WinRate, 2)
	out.TotalPnL = util.Round(r.TotalPnL, 2)
	out.AvgWin = util.Round(r.AvgWin, 2)
	out.AvgLoss = util.Round(r.AvgLoss, 2)
	out.LargestWin = util.Round(r.LargestWin, 2)
	out.LargestLoss = util.Round(r.LargestLoss, 2)
	out.ProfitFactor = util.Round(r.ProfitFactor, 4)
	out.MaxDrawdown = util.Round(r.MaxDrawdown, 2)
	out.MaxDrawdownPct = util.Round(r.MaxDrawdownPct, 2)
	out.SharpeRatio = util.Round(r.SharpeRatio, 4)
	out.AvgTradeDuration = util.Round(r.AvgTradeDuration, 2)
	out.TotalCommissions = util.Round(r.TotalCommissions, 2)
	out.FinalCapital = util.Round(r.FinalCapital, 2)
	out.ReturnPct = util.Round(r.ReturnPct, 2)

	out.EquityCurve = make([]EquityPoint, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out.EquityCurve[i] = EquityPoint{Date: p.Date, Equity: util.Round(p.Equity, 2)}
	}
	out.Trades = make([]Trade, len(r.Trades))
	for i, t := range r.Trades {
		out.Trades[i] = t.rounded()
	}
	out.MonthlyReturns = make(map[string]float64, len(r.MonthlyReturns))
	for k, v := range r.MonthlyReturns {
		out.MonthlyReturns[k] = util.Round(v, 2)
	}
	if r.OpenTrade != nil {
		t := r.OpenTrade.rounded()
		out.OpenTrade = &t
	}
	return &out
}

func (t Trade) rounded() Trade {
	t.EntryPrice = util.Round(t.EntryPrice, 2)
	t.ExitPrice = util.Round(t.ExitPrice, 2)
	t.GrossPnL = util.Round(t.GrossPnL, 2)
	t.Commission = util.Round(t.Commission, 2)
	t.PnL = util.Round(t.PnL, 2)
	t.PnLPct = util.Round(t.PnLPct, 2)
	legs := make([]Leg, len(t.Legs))
	for i, l := range t.Legs {
		l.EntryPrice = util.Round(l.EntryPrice, 2)
		l.EntryIntrinsic = util.Round(l.EntryIntrinsic, 2)
		legs[i] = l
	}
	t.Legs = legs
	return t
}

// PayoffPoint is one sample of a payoff curve.
type PayoffPoint struct {
	UnderlyingPrice float64 `json:"underlyingPrice"`
	PnL             float64 `json:"pnl"`
}

// PayoffDiagram is the P&L-at-expiry profile of a leg set.
type PayoffDiagram struct {
	Points          []PayoffPoint `json:"points"`
	MaxProfit       float64       `json:"maxProfit"`
	MaxLoss         float64       `json:"maxLoss"`
	Breakevens      []float64     `json:"breakevens"`
	CurrentPnL      float64       `json:"currentPnl"`
	RiskRewardRatio float64       `json:"riskRewardRatio"`
}

// Rounded returns a copy with prices and P&L at 2 decimals and the ratio at 4.
func (d PayoffDiagram) Rounded() PayoffDiagram {
	out := PayoffDiagram{
		Points:          make([]PayoffPoint, len(d.Points)),
		MaxProfit:       util.Round(d.MaxProfit, 2),
		MaxLoss:         util.Round(d.MaxLoss, 2),
		Breakevens:      make([]float64, len(d.Breakevens)),
		CurrentPnL:      util.Round(d.CurrentPnL, 2),
		RiskRewardRatio: util.Round(d.RiskRewardRatio, 4),
	}
	for i, p := range d.Points {
		out.Points[i] = PayoffPoint{UnderlyingPrice: util.Round(p.UnderlyingPrice, 2), PnL: util.Round(p.PnL, 2)}
	}
	for i, b := range d.Breakevens {
		out.Breakevens[i] = util.Round(b, 2)
	}
	return out
}

// BacktestRun is the persisted record of one run.
type BacktestRun struct {
	ID           string          `json:"id"`
	StrategyName string          `json:"strategyName"`
	CreatedAt    time.Time       `json:"createdAt"`
	Config       StrategyConfig  `json:"config"`
	Result       *BacktestResult `json:"result"`
}

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	ID           string    `json:"id"`
	StrategyName string    `json:"strategyName"`
	CreatedAt    time.Time `json:"createdAt"`
	TotalTrades  int       `json:"totalTrades"`
	TotalPnL     float64   `json:"totalPnl"`
	ReturnPct    float64   `json:"returnPct"`
	SharpeRatio  float64   `json:"sharpeRatio"`
}
