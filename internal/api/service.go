// Package api hosts the optlab service: the operations shared by the HTTP and
// gRPC transports, the gRPC service itself, and the server lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"optlab/internal/domain"
	"optlab/internal/payoff"
	"optlab/internal/pricing"
	"optlab/internal/store"
	"optlab/internal/strategy"
	"optlab/internal/util"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNoResultStore is returned by run lookups when persistence is disabled.
var ErrNoResultStore = errors.New("result store not configured")

const defaultListLimit = 50

// BacktestRequest is either a full strategy config or a preset name plus
// params.
type BacktestRequest struct {
	domain.StrategyConfig

	Preset string           `json:"preset,omitempty"`
	Params *strategy.Params `json:"params,omitempty"`
}

// PayoffRequest asks for the expiry profile of a leg set. Volatility and
// DaysToExpiry are only needed for the probability of profit.
type PayoffRequest struct {
	Legs         []domain.Leg  `json:"legs"`
	CurrentPrice float64       `json:"currentPrice"`
	Range        *payoff.Range `json:"range,omitempty"`
	Volatility   float64       `json:"volatility,omitempty"`
	DaysToExpiry int           `json:"daysToExpiry,omitempty"`
}

// PayoffResponse is a rounded payoff diagram plus its probability of profit.
type PayoffResponse struct {
	domain.PayoffDiagram
	ProbabilityOfProfit float64 `json:"probabilityOfProfit"`
}

// GreeksRequest values a leg set as of a date. Zero rate and volatility take
// the service defaults; a zero AsOf means today.
type GreeksRequest struct {
	Legs         []domain.Leg `json:"legs"`
	Spot         float64      `json:"spot"`
	AsOf         domain.Date  `json:"asOf"`
	RiskFreeRate float64      `json:"riskFreeRate,omitempty"`
	Volatility   float64      `json:"volatility,omitempty"`
}

// GreeksResponse carries per-leg and aggregated Greeks.
type GreeksResponse struct {
	Legs      []pricing.LegGreeks    `json:"legs"`
	Portfolio domain.PortfolioGreeks `json:"portfolio"`
}

// IVRequest asks for the volatility implied by an option's market price.
type IVRequest struct {
	InstrumentType domain.InstrumentType `json:"instrumentType"`
	MarketPrice    float64               `json:"marketPrice"`
	Spot           float64               `json:"spot"`
	Strike         float64               `json:"strike"`
	DaysToExpiry   int                   `json:"daysToExpiry"`
	RiskFreeRate   float64               `json:"riskFreeRate,omitempty"`
}

// IVResponse holds the implied volatility as an annualised decimal.
type IVResponse struct {
	ImpliedVolatility float64 `json:"impliedVolatility"`
}

// StrategyInfo describes one registered preset.
type StrategyInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Legs        []domain.LegTemplate `json:"legs"`
}

// Service implements the API operations independently of transport.
type Service struct {
	backtester   *strategy.Backtester
	results      store.ResultStore
	riskFreeRate float64
	volatility   float64
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates a Service. results may be nil, in which case runs are not
// listed or retrievable. rate and vol are the defaults for Greeks requests.
func NewService(bt *strategy.Backtester, results store.ResultStore, rate, vol float64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		backtester:   bt,
		results:      results,
		riskFreeRate: rate,
		volatility:   vol,
		log:          log.With("component", "api"),
		now:          time.Now,
	}
}

// Strategies lists the registered presets.
func (s *Service) Strategies() []StrategyInfo {
	reg := s.backtester.Registry()
	names := reg.List()
	out := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		p, _ := reg.Get(name)
		out = append(out, StrategyInfo{
			Name:        p.Name(),
			Description: p.Description(),
			Legs:        p.Config(strategy.Params{}).Legs,
		})
	}
	return out
}

// Backtest runs req and returns the run with its result rounded for
// presentation.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*domain.BacktestRun, error) {
	var (
		run *domain.BacktestRun
		err error
	)
	if req.Preset != "" {
		var p strategy.Params
		if req.Params != nil {
			p = *req.Params
		}
		run, err = s.backtester.RunPreset(ctx, req.Preset, p)
	} else {
		run, err = s.backtester.Run(ctx, req.StrategyConfig)
	}
	if err != nil {
		if run == nil {
			return nil, err
		}
		// The run finished but persisting it failed; still return it.
		s.log.Error("persisting run", "run", run.ID, "error", err)
	}
	return presentRun(run), nil
}

// GetRun returns a persisted run.
func (s *Service) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	if s.results == nil {
		return nil, ErrNoResultStore
	}
	run, err := s.results.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return presentRun(run), nil
}

// ListRuns returns summaries of persisted runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.results == nil {
		return nil, ErrNoResultStore
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.results.ListRuns(ctx, limit)
}

// DeleteRun removes a persisted run.
func (s *Service) DeleteRun(ctx context.Context, id string) error {
	if s.results == nil {
		return ErrNoResultStore
	}
	return s.results.DeleteRun(ctx, id)
}

// Payoff computes the payoff diagram for req.
func (s *Service) Payoff(req PayoffRequest) (*PayoffResponse, error) {
	if err := validateLegs(req.Legs); err != nil {
		return nil, err
	}
	if req.CurrentPrice <= 0 {
		return nil, fmt.Errorf("%w: currentPrice must be positive", ErrInvalidRequest)
	}
	if r := req.Range; r != nil && (r.Max <= r.Min || r.Step < 0) {
		return nil, fmt.Errorf("%w: range must have max > min and a non-negative step", ErrInvalidRequest)
	}

	d := payoff.Calculate(req.Legs, req.CurrentPrice, req.Range)
	pop := payoff.ProbabilityOfProfit(d, req.CurrentPrice, req.Volatility, req.DaysToExpiry)
	return &PayoffResponse{
		PayoffDiagram:       d.Rounded(),
		ProbabilityOfProfit: util.Round(pop, 4),
	}, nil
}

// Greeks values req's legs and aggregates them.
func (s *Service) Greeks(req GreeksRequest) (*GreeksResponse, error) {
	if err := validateLegs(req.Legs); err != nil {
		return nil, err
	}
	if req.Spot <= 0 {
		return nil, fmt.Errorf("%w: spot must be positive", ErrInvalidRequest)
	}
	r, vol := req.RiskFreeRate, req.Volatility
	if r == 0 {
		r = s.riskFreeRate
	}
	if vol <= 0 {
		vol = s.volatility
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = domain.DateOf(s.now())
	}

	legs := pricing.Positions(req.Legs, req.Spot, asOf.Time, r, vol)
	resp := &GreeksResponse{
		Legs:      make([]pricing.LegGreeks, len(legs)),
		Portfolio: pricing.PortfolioGreeks(legs),
	}
	for i, lg := range legs {
		resp.Legs[i] = lg.Rounded()
	}
	return resp, nil
}

// ImpliedVolatility solves for the volatility implied by req.MarketPrice.
func (s *Service) ImpliedVolatility(req IVRequest) (*IVResponse, error) {
	if !req.InstrumentType.IsOption() {
		return nil, fmt.Errorf("%w: instrumentType must be call or put", ErrInvalidRequest)
	}
	if req.MarketPrice <= 0 || req.Spot <= 0 || req.Strike <= 0 || req.DaysToExpiry <= 0 {
		return nil, fmt.Errorf("%w: marketPrice, spot, strike and daysToExpiry must be positive", ErrInvalidRequest)
	}
	r := req.RiskFreeRate
	if r == 0 {
		r = s.riskFreeRate
	}
	iv := pricing.ImpliedVolatility(req.MarketPrice, req.Spot, req.Strike, pricing.YearFraction(req.DaysToExpiry), r, req.InstrumentType)
	return &IVResponse{ImpliedVolatility: util.Round(iv, 4)}, nil
}

func validateLegs(legs []domain.Leg) error {
	if len(legs) == 0 {
		return fmt.Errorf("%w: at least one leg is required", ErrInvalidRequest)
	}
	for i, l := range legs {
		if !l.InstrumentType.Valid() || !l.Action.Valid() || l.Quantity <= 0 {
			return fmt.Errorf("%w: leg %d needs a known type, a buy/sell action and a positive quantity", ErrInvalidRequest, i+1)
		}
	}
	return nil
}

func presentRun(run *domain.BacktestRun) *domain.BacktestRun {
	out := *run
	if run.Result != nil {
		out.Result = run.Result.Rounded()
	}
	return &out
}
