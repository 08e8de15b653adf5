// Package strategy names reusable option strategies, loads strategy files,
// and runs backtests for them.
package strategy

import (
	"sort"

	"optlab/internal/domain"
)

// Preset builds a ready-to-run StrategyConfig from a small set of run
// parameters.
type Preset interface {
	// Name returns the unique identifier for this preset.
	Name() string

	// Description is a one-line human summary.
	Description() string

	// Config fills the preset's legs and defaults with p.
	Config(p Params) domain.StrategyConfig
}

// Params are the per-run knobs a preset accepts. Zero values take the
// preset's defaults.
type Params struct {
	Name             string                 `json:"name,omitempty" yaml:"name,omitempty"`
	InitialCapital   float64                `json:"initialCapital" yaml:"initial_capital"`
	StartDate        domain.Date            `json:"startDate" yaml:"start_date"`
	EndDate          domain.Date            `json:"endDate" yaml:"end_date"`
	DaysToExpiry     int                    `json:"daysToExpiry,omitempty" yaml:"days_to_expiry,omitempty"`
	StrikeSelection  domain.StrikeSelection `json:"strikeSelection,omitempty" yaml:"strike_selection,omitempty"`
	Quantity         int                    `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	CommissionPerLeg float64                `json:"commissionPerLeg,omitempty" yaml:"commission_per_leg,omitempty"`
	StrikeInterval   float64                `json:"strikeInterval,omitempty" yaml:"strike_interval,omitempty"`
	ExitRules        *domain.ExitRules      `json:"exitRules,omitempty" yaml:"exit_rules,omitempty"`
}

// Template is a Preset defined by a fixed leg layout.
type Template struct {
	ID              string
	Summary         string
	StrikeSelection domain.StrikeSelection
	DaysToExpiry    int
	Legs            []domain.LegTemplate
	ExitRules       domain.ExitRules
}

// Name returns the template ID.
func (t Template) Name() string { return t.ID }

// Description returns the template summary.
func (t Template) Description() string { return t.Summary }

// Config builds the StrategyConfig, multiplying every leg's quantity by
// p.Quantity when set.
func (t Template) Config(p Params) domain.StrategyConfig {
	cfg := domain.StrategyConfig{
		Name:             t.ID,
		InitialCapital:   p.InitialCapital,
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		EntryRules:       domain.EntryRules{DaysToExpiry: t.DaysToExpiry, StrikeSelection: t.StrikeSelection},
		ExitRules:        t.ExitRules,
		CommissionPerLeg: p.CommissionPerLeg,
		StrikeInterval:   p.StrikeInterval,
	}
	if p.Name != "" {
		cfg.Name = p.Name
	}
	if p.DaysToExpiry > 0 {
		cfg.EntryRules.DaysToExpiry = p.DaysToExpiry
	}
	if p.StrikeSelection != "" {
		cfg.EntryRules.StrikeSelection = p.StrikeSelection
	}
	if p.ExitRules != nil {
		cfg.ExitRules = *p.ExitRules
	}

	mult := max(p.Quantity, 1)
	cfg.Legs = make([]domain.LegTemplate, len(t.Legs))
	for i, l := range t.Legs {
		l.Quantity *= mult
		cfg.Legs[i] = l
	}
	return cfg
}

// Registry holds a named collection of presets for lookup and enumeration.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates an empty preset Registry.
func NewRegistry() *Registry {
	return &Registry{
		presets: make(map[string]Preset),
	}
}

// Register adds a preset to the registry, keyed by its Name().
func (r *Registry) Register(p Preset) {
	r.presets[p.Name()] = p
}

// Get retrieves a preset by name. The second return value indicates whether
// the preset was found.
func (r *Registry) Get(name string) (Preset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// List returns a sorted slice of all registered preset names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
