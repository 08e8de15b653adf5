package main

import (
	"fmt"
	"strconv"
	"strings"

	"optlab/internal/domain"
)

// parseLegs reads a comma-separated leg list. Each leg is
// action:type:strike:premium[:qty[:expiry]], e.g. "buy:call:100:5:2:2024-03-28".
// Stock legs use their entry price as the premium and ignore the strike.
func parseLegs(spec string) ([]domain.Leg, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("-legs is required")
	}
	var legs []domain.Leg
	for i, part := range strings.Split(spec, ",") {
		f := strings.Split(strings.TrimSpace(part), ":")
		if len(f) < 4 || len(f) > 6 {
			return nil, fmt.Errorf("leg %d %q: want action:type:strike:premium[:qty[:expiry]]", i+1, part)
		}
		leg := domain.Leg{
			LegNumber:      i + 1,
			Action:         domain.Action(strings.ToLower(f[0])),
			InstrumentType: domain.InstrumentType(strings.ToLower(f[1])),
			Quantity:       1,
		}
		if !leg.Action.Valid() {
			return nil, fmt.Errorf("leg %d: unknown action %q", i+1, f[0])
		}
		if !leg.InstrumentType.Valid() {
			return nil, fmt.Errorf("leg %d: unknown type %q", i+1, f[1])
		}

		var err error
		if leg.StrikePrice, err = strconv.ParseFloat(f[2], 64); err != nil {
			return nil, fmt.Errorf("leg %d strike: %w", i+1, err)
		}
		if leg.EntryPrice, err = strconv.ParseFloat(f[3], 64); err != nil {
			return nil, fmt.Errorf("leg %d premium: %w", i+1, err)
		}
		if len(f) > 4 {
			if leg.Quantity, err = strconv.Atoi(f[4]); err != nil || leg.Quantity <= 0 {
				return nil, fmt.Errorf("leg %d: quantity must be a positive integer, got %q", i+1, f[4])
			}
		}
		if len(f) > 5 {
			if leg.ExpiryDate, err = domain.ParseDate(f[5]); err != nil {
				return nil, fmt.Errorf("leg %d expiry: %w", i+1, err)
			}
		}
		legs = append(legs, leg)
	}
	return legs, nil
}
