// Package optlab is the Go SDK for the optlab-server HTTP and gRPC APIs.
package optlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"optlab/internal/api"
	"optlab/internal/domain"
	"optlab/internal/strategy"
)

// Request and response types shared with the server.
type (
	BacktestRequest = api.BacktestRequest
	PayoffRequest   = api.PayoffRequest
	PayoffResponse  = api.PayoffResponse
	GreeksRequest   = api.GreeksRequest
	GreeksResponse  = api.GreeksResponse
	IVRequest       = api.IVRequest
	IVResponse      = api.IVResponse
	StrategyInfo    = api.StrategyInfo
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("optlab: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client provides a Go SDK for interacting with the optlab-server HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new optlab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Strategies lists the server's presets.
func (c *Client) Strategies(ctx context.Context) ([]StrategyInfo, error) {
	var resp struct {
		Strategies []StrategyInfo `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// RunBacktest backtests a full strategy config.
func (c *Client) RunBacktest(ctx context.Context, cfg domain.StrategyConfig) (*domain.BacktestRun, error) {
	return c.backtest(ctx, BacktestRequest{StrategyConfig: cfg})
}

// RunPreset backtests a named preset.
func (c *Client) RunPreset(ctx context.Context, preset string, p strategy.Params) (*domain.BacktestRun, error) {
	return c.backtest(ctx, BacktestRequest{Preset: preset, Params: &p})
}

func (c *Client) backtest(ctx context.Context, req BacktestRequest) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtests", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a persisted run.
func (c *Client) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	var run domain.BacktestRun
	if err := c.do(ctx, http.MethodGet, "/api/v1/backtests/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists persisted runs, newest first. A zero limit takes the
// server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	path := "/api/v1/backtests"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Runs []domain.RunSummary `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// DeleteRun removes a persisted run.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/backtests/"+url.PathEscape(id), nil, nil)
}

// Payoff computes a payoff diagram.
func (c *Client) Payoff(ctx context.Context, req PayoffRequest) (*PayoffResponse, error) {
	var resp PayoffResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payoff", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Greeks values a leg set.
func (c *Client) Greeks(ctx context.Context, req GreeksRequest) (*GreeksResponse, error) {
	var resp GreeksResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/greeks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImpliedVolatility solves for an option's implied volatility.
func (c *Client) ImpliedVolatility(ctx context.Context, req IVRequest) (*IVResponse, error) {
	var resp IVResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/implied-volatility", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
