package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Client runs one chain request against the backtest engine
type Client interface {
	Run(ctx context.Context, req strategy.BacktestRequest) (*Result, error)
}

// ReadinessChecker is implemented by clients that can refuse a run up front.
// Runner consults it once per submission, never per chain.
type ReadinessChecker interface {
	Ready() error
}

// breakerFailures is the number of consecutive engine failures that opens the breaker
const breakerFailures = 3

// HTTPClient posts chain requests to the engine endpoint. Requests are not
// retried. A circuit breaker tracks engine health; while it is open new runs
// are refused, but every chain of an accepted run still reaches the engine.
type HTTPClient struct {
	url     string
	client  *http.Client
	breaker *gobreaker.TwoStepCircuitBreaker
	log     zerolog.Logger
}

// NewHTTPClient creates an engine client for the endpoint url
func NewHTTPClient(url string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	c := &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("client", "backtest-engine").Logger(),
	}

	st := gobreaker.Settings{
		Name:     "backtest-engine",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	c.breaker = gobreaker.NewTwoStepCircuitBreaker(st)
	return c
}

// Ready refuses new runs while the breaker is open
func (c *HTTPClient) Ready() error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, gobreaker.ErrOpenState)
	}
	return nil
}

// Run submits req and returns the engine result with summary metrics filled in.
// The outcome is reported to the breaker when it admits the call; a chain is
// posted either way.
func (c *HTTPClient) Run(ctx context.Context, req strategy.BacktestRequest) (*Result, error) {
	done, allowErr := c.breaker.Allow()

	result, err := c.post(ctx, req)
	if allowErr == nil {
		done(engineHealthy(err))
	}
	if err != nil {
		return nil, err
	}

	result.FillSummaryMetrics()
	return result, nil
}

// engineHealthy reports whether err leaves the engine counted as up.
// The engine rejecting a request is not an outage.
func engineHealthy(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.StatusCode < 500
	}
	return err == nil
}

func (c *HTTPClient) post(ctx context.Context, req strategy.BacktestRequest) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backtest request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create backtest request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("chain", req.Name).Int("bytes", len(body)).Msg("Submitting backtest")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backtest request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &EngineError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse backtest response: %w", err)
	}
	return &result, nil
}
