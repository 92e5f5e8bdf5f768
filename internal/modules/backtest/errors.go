package backtest

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound is returned for unknown run ids
	ErrRunNotFound = errors.New("backtest run not found")
	// ErrEngineUnavailable is returned when a run is submitted while the engine circuit breaker is open
	ErrEngineUnavailable = errors.New("backtest engine unavailable")
	// ErrNoChains is returned when a strategy decomposes into nothing to run
	ErrNoChains = errors.New("strategy has no chains to backtest")
)

// EngineError is a non-2xx response from the engine
type EngineError struct {
	StatusCode int
	Body       string
}

func (e *EngineError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backtest engine returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backtest engine returned status %d: %s", e.StatusCode, e.Body)
}
