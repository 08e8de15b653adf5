package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every StrategyConfig validation failure.
var ErrInvalidConfig = errors.New("invalid strategy config")

// EntryRules control when and how a position is opened.
type EntryRules struct {
	DaysToExpiry    int             `json:"daysToExpiry" yaml:"days_to_expiry"`
	StrikeSelection StrikeSelection `json:"strikeSelection" yaml:"strike_selection"`
}

// ExitRules are optional thresholds checked every simulated day. A nil field
// disables its rule; expiry always closes the position.
type ExitRules struct {
	TargetProfitPct *float64 `json:"targetProfitPct,omitempty" yaml:"target_profit_pct,omitempty"`
	StopLossPct     *float64 `json:"stopLossPct,omitempty" yaml:"stop_loss_pct,omitempty"`
	DaysToExpiry    *int     `json:"daysToExpiry,omitempty" yaml:"days_to_expiry,omitempty"`
}

// LegTemplate describes one leg before a run assigns its strike and price.
// StrikeOffset moves the selected strike that many further intervals out of
// the money, whatever the strike rule, which is how wings of spreads and
// condors are placed. With ITM a positive offset walks back toward and past
// the money.
type LegTemplate struct {
	InstrumentType InstrumentType `json:"instrumentType" yaml:"instrument_type"`
	Action         Action         `json:"action" yaml:"action"`
	Quantity       int            `json:"quantity" yaml:"quantity"`
	StrikeOffset   int            `json:"strikeOffset,omitempty" yaml:"strike_offset,omitempty"`
}

// StrategyConfig parameterises one backtest run. It is treated as immutable
// once a run starts.
type StrategyConfig struct {
	Name             string        `json:"name" yaml:"name"`
	InitialCapital   float64       `json:"initialCapital" yaml:"initial_capital"`
	StartDate        Date          `json:"startDate" yaml:"start_date"`
	EndDate          Date          `json:"endDate" yaml:"end_date"`
	EntryRules       EntryRules    `json:"entryRules" yaml:"entry_rules"`
	ExitRules        ExitRules     `json:"exitRules" yaml:"exit_rules"`
	Legs             []LegTemplate `json:"legsConfig" yaml:"legs"`
	CommissionPerLeg float64       `json:"commissionPerLeg,omitempty" yaml:"commission_per_leg,omitempty"`
	StrikeInterval   float64       `json:"strikeInterval,omitempty" yaml:"strike_interval,omitempty"`
}

// Validate rejects configs no run could ever simulate. Configs that are
// merely unprofitable or unaffordable pass and simply produce no trades.
func (c StrategyConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.InitialCapital <= 0 {
		add("initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		add("start and end dates are required")
	} else if c.EndDate.Before(c.StartDate) {
		add("end date %s is before start date %s", c.EndDate, c.StartDate)
	}
	if c.EntryRules.DaysToExpiry < 0 {
		add("entry days to expiry must not be negative, got %d", c.EntryRules.DaysToExpiry)
	}
	if c.EntryRules.StrikeSelection != "" && !c.EntryRules.StrikeSelection.Valid() {
		add("unknown strike selection %q", c.EntryRules.StrikeSelection)
	}
	if c.CommissionPerLeg < 0 {
		add("commission per leg must not be negative, got %v", c.CommissionPerLeg)
	}
	if c.StrikeInterval < 0 {
		add("strike interval must not be negative, got %v", c.StrikeInterval)
	}
	if len(c.Legs) == 0 {
		add("at least one leg is required")
	}
	for i, l := range c.Legs {
		if !l.InstrumentType.Valid() {
			add("leg %d: unknown instrument type %q", i+1, l.InstrumentType)
		}
		if !l.Action.Valid() {
			add("leg %d: unknown action %q", i+1, l.Action)
		}
		if l.Quantity <= 0 {
			add("leg %d: quantity must be positive, got %d", i+1, l.Quantity)
		}
	}
	return errors.Join(errs...)
}

// Strike returns the configured strike selection, defaulting to ATM.
func (r EntryRules) Strike() StrikeSelection {
	if r.StrikeSelection == "" {
		return StrikeATM
	}
	return r.StrikeSelection
}

// Float returns a pointer to v, for filling optional exit thresholds.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for filling optional exit thresholds.
func Int(v int) *int { return &v }
