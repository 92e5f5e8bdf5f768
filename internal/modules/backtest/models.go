// Package backtest submits strategy chains to the external backtest engine
// and records per-chain outcomes.
package backtest

import (
	"time"

	"github.com/aristath/tactical/internal/modules/strategy"
)

// Result is the engine response for one chain. Series are keyed by date string.
type Result struct {
	PortfolioValues map[string]float64 `json:"portfolio_values"`
	Returns         map[string]float64 `json:"returns"`
	Metrics         map[string]float64 `json:"metrics"`
}

// ChainStatus is the lifecycle state of one chain's backtest
type ChainStatus string

// Chain statuses
const (
	StatusPending   ChainStatus = "pending"
	StatusRunning   ChainStatus = "running"
	StatusSucceeded ChainStatus = "succeeded"
	StatusFailed    ChainStatus = "failed"
)

// Done reports whether the chain has reached a terminal state
func (s ChainStatus) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ChainResult is the recorded outcome of one chain
type ChainResult struct {
	Index       int                      `json:"index"`
	Label       string                   `json:"label"`
	Status      ChainStatus              `json:"status"`
	Request     strategy.BacktestRequest `json:"request"`
	Result      *Result                  `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// Run is one submission of every chain of a strategy
type Run struct {
	ID         string        `json:"id"`
	StrategyID string        `json:"strategy_id"`
	Revision   int64         `json:"strategy_revision"`
	CreatedAt  time.Time     `json:"created_at"`
	Chains     []ChainResult `json:"chains"`
}

// RunSummary is the list view of a run
type RunSummary struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Revision   int64     `json:"strategy_revision"`
	ChainCount int       `json:"chain_count"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status derives the overall run state from its chains
func (r Run) Status() string {
	var succeeded, failed int
	for _, c := range r.Chains {
		switch c.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		default:
			return "running"
		}
	}
	switch {
	case failed == 0:
		return "succeeded"
	case succeeded == 0:
		return "failed"
	}
	return "partial"
}
