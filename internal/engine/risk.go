package engine

// RiskManager gates entries: the account must hold a minimum share of its
// starting capital to open anything, and a position must fit in cash.
type RiskManager struct {
	initialCapital float64
	minCapitalPct  float64
}

// NewRiskManager creates a RiskManager for an account that started with
// initialCapital.
//
//   - minCapitalPct: fraction of initial capital that must remain before a new
//     position may be opened (e.g. 0.20 for 20%).
func NewRiskManager(initialCapital, minCapitalPct float64) *RiskManager {
	return &RiskManager{
		initialCapital: initialCapital,
		minCapitalPct:  minCapitalPct,
	}
}

// CanEnter reports whether capital clears the minimum-capital gate.
func (rm *RiskManager) CanEnter(capital float64) bool {
	return capital >= rm.initialCapital*rm.minCapitalPct
}

// CanAfford reports whether a position costing cost can be opened.
func (rm *RiskManager) CanAfford(cost, capital float64) bool {
	return cost <= capital
}
