// Package domain defines the core data model shared by the pricing model,
// payoff calculator, backtest engine, storage, and API layers.
package domain

import (
	"math"
	"time"
)

// InstrumentType identifies what a leg holds.
type InstrumentType string

const (
	InstrumentCall  InstrumentType = "call"
	InstrumentPut   InstrumentType = "put"
	InstrumentStock InstrumentType = "stock"
)

// Valid reports whether t is a known instrument type.
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentCall, InstrumentPut, InstrumentStock:
		return true
	}
	return false
}

// IsOption reports whether t is a call or a put.
func (t InstrumentType) IsOption() bool {
	return t == InstrumentCall || t == InstrumentPut
}

// Action is the side of a leg.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid reports whether a is buy or sell.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Sign returns +1 for buy (debit) and -1 for sell (credit).
func (a Action) Sign() float64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// StrikeSelection is the rule used to pick a leg's strike relative to spot.
type StrikeSelection string

const (
	StrikeATM StrikeSelection = "ATM"
	StrikeOTM StrikeSelection = "OTM"
	StrikeITM StrikeSelection = "ITM"
)

// Valid reports whether s is ATM, OTM, or ITM.
func (s StrikeSelection) Valid() bool {
	switch s {
	case StrikeATM, StrikeOTM, StrikeITM:
		return true
	}
	return false
}

// ExitReason records which rule closed a trade.
type ExitReason string

const (
	ExitTargetProfit ExitReason = "target_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitDaysToExpiry ExitReason = "days_to_expiry"
	ExitExpiry       ExitReason = "expiry"
	ExitEndOfWindow  ExitReason = "end_of_window"
)

// Leg is one component of an open or closed position. Strike, expiry and
// entry price are assigned by the run (or by the caller for payoff snapshots).
type Leg struct {
	LegNumber      int            `json:"legNumber" yaml:"leg_number"`
	InstrumentType InstrumentType `json:"instrumentType" yaml:"instrument_type"`
	Action         Action         `json:"action" yaml:"action"`
	Quantity       int            `json:"quantity" yaml:"quantity"`
	StrikePrice    float64        `json:"strikePrice" yaml:"strike_price"`
	ExpiryDate     Date           `json:"expiryDate" yaml:"expiry_date"`
	EntryPrice     float64        `json:"entryPrice" yaml:"entry_price"` // per-unit premium; spot for stock legs
	EntryIntrinsic float64        `json:"entryIntrinsic,omitempty" yaml:"entry_intrinsic,omitempty"`
}

// Sign returns +1 for long legs and -1 for short legs.
func (l Leg) Sign() float64 { return l.Action.Sign() }

// Intrinsic returns the per-unit intrinsic value of the leg at the given
// underlying price. Stock legs are worth the price itself.
func (l Leg) Intrinsic(price float64) float64 {
	switch l.InstrumentType {
	case InstrumentCall:
		return math.Max(price-l.StrikePrice, 0)
	case InstrumentPut:
		return math.Max(l.StrikePrice-price, 0)
	default:
		return price
	}
}

// Extrinsic returns the time value paid (or received) per unit at entry. It
// is negative for a deep in-the-money European put, which prices below
// intrinsic when rates are positive.
func (l Leg) Extrinsic() float64 {
	if !l.InstrumentType.IsOption() {
		return 0
	}
	return l.EntryPrice - l.EntryIntrinsic
}

// Greeks are the sensitivities of one option's theoretical price. Vega and
// rho are per one percentage point; theta is per calendar day.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// PortfolioGreeks aggregates signed, quantity-weighted Greeks across legs.
type PortfolioGreeks struct {
	Delta       float64 `json:"totalDelta"`
	Gamma       float64 `json:"totalGamma"`
	Theta       float64 `json:"totalTheta"`
	Vega        float64 `json:"totalVega"`
	NetExposure float64 `json:"netExposure"`
}

// Bar is one daily OHLCV bar of the underlying.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}
