package httpapi

import (
	"optlab/internal/api"
	"optlab/internal/domain"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// StrategiesResponse lists the registered presets.
type StrategiesResponse struct {
	Strategies []api.StrategyInfo `json:"strategies"`
}

// RunsResponse lists persisted runs, newest first.
type RunsResponse struct {
	Runs []domain.RunSummary `json:"runs"`
}
