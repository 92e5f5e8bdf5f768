package backtest

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// runProgress counts outstanding chains of one run
type runProgress struct {
	remaining int
	succeeded int
	failed    int
}

// Runner fans a run out to one goroutine per chain. Chains finish
// independently; a failed chain is recorded for that chain only and never
// cancels its siblings. Nothing is retried.
type Runner struct {
	client  Client
	repo    *Repository
	events  *events.Manager
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	progress map[string]*runProgress

	log zerolog.Logger
}

// NewRunner creates a runner. timeout bounds each chain's engine call.
func NewRunner(client Client, repo *Repository, eventManager *events.Manager, timeout time.Duration, log zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		client:   client,
		repo:     repo,
		events:   eventManager,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		progress: make(map[string]*runProgress),
		log:      log.With().Str("component", "backtest_runner").Logger(),
	}
}

// Submit records a run for requests and dispatches every chain. It returns
// as soon as the run is stored; chain outcomes arrive asynchronously.
func (r *Runner) Submit(strategyID string, revision int64, requests []strategy.BacktestRequest) (*Run, error) {
	if len(requests) == 0 {
		return nil, ErrNoChains
	}
	if checker, ok := r.client.(ReadinessChecker); ok {
		if err := checker.Ready(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	run := &Run{
		ID:         uuid.New().String(),
		StrategyID: strategyID,
		Revision:   revision,
		CreatedAt:  now,
		Chains:     make([]ChainResult, len(requests)),
	}
	for i, req := range requests {
		run.Chains[i] = ChainResult{
			Index:     i,
			Label:     req.Name,
			Status:    StatusPending,
			Request:   req,
			StartedAt: now,
		}
	}
	if err := r.repo.CreateRun(run); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.progress[run.ID] = &runProgress{remaining: len(requests)}
	r.mu.Unlock()

	r.events.EmitTyped("backtest", &events.BacktestStartedData{
		RunID:      run.ID,
		StrategyID: strategyID,
		Chains:     len(requests),
	})
	r.log.Info().
		Str("run_id", run.ID).
		Str("strategy_id", strategyID).
		Int("chains", len(requests)).
		Msg("Backtest run started")

	for i, req := range requests {
		r.wg.Add(1)
		go r.runChain(run.ID, i, req)
	}
	return run, nil
}

func (r *Runner) runChain(runID string, index int, req strategy.BacktestRequest) {
	defer r.wg.Done()
	log := r.log.With().Str("run_id", runID).Int("chain", index).Str("label", req.Name).Logger()

	if err := r.repo.MarkRunning(runID, index); err != nil {
		log.Warn().Err(err).Msg("Failed to mark chain running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	result, runErr := r.client.Run(ctx, req)
	cancel()

	if err := r.repo.CompleteChain(runID, index, result, runErr); err != nil {
		log.Error().Err(err).Msg("Failed to record chain outcome")
	}

	data := &events.BacktestChainData{RunID: runID, ChainIndex: index, Label: req.Name}
	if runErr != nil {
		data.Error = runErr.Error()
		log.Warn().Err(runErr).Msg("Chain backtest failed")
	} else {
		log.Info().Msg("Chain backtest completed")
	}
	r.events.EmitTyped("backtest", data)

	r.finishChain(runID, runErr == nil)
}

func (r *Runner) finishChain(runID string, ok bool) {
	r.mu.Lock()
	p := r.progress[runID]
	if ok {
		p.succeeded++
	} else {
		p.failed++
	}
	p.remaining--
	done := p.remaining == 0
	if done {
		delete(r.progress, runID)
	}
	r.mu.Unlock()

	if !done {
		return
	}
	r.events.EmitTyped("backtest", &events.BacktestFinishedData{
		RunID:     runID,
		Succeeded: p.succeeded,
		Failed:    p.failed,
	})
	r.log.Info().
		Str("run_id", runID).
		Int("succeeded", p.succeeded).
		Int("failed", p.failed).
		Msg("Backtest run finished")
}

// Wait blocks until every dispatched chain has reported
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels in-flight engine calls and waits for their chains to record
// the failure
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}
