package backtest

import (
	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/rs/zerolog"
)

// Service submits strategies for backtesting and reads back run outcomes
type Service struct {
	strategies *strategy.Service
	runner     *Runner
	repo       *Repository
	log        zerolog.Logger
}

// NewService creates a new backtest service
func NewService(strategies *strategy.Service, runner *Runner, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		strategies: strategies,
		runner:     runner,
		repo:       repo,
		log:        log.With().Str("service", "backtest").Logger(),
	}
}

// Submit builds one request per chain of the strategy's current revision and
// dispatches them. The strategy must pass the validity gate.
func (s *Service) Submit(strategyID string) (*Run, error) {
	var (
		requests []strategy.BacktestRequest
		revision int64
	)
	err := s.strategies.Read(strategyID, func(e *strategy.Editor) error {
		var err error
		revision = e.Revision()
		requests, err = e.Requests()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(strategyID, revision, requests)
}

// ListRuns returns the runs of a strategy
func (s *Service) ListRuns(strategyID string) ([]RunSummary, error) {
	if _, err := s.strategies.Get(strategyID); err != nil {
		return nil, err
	}
	return s.repo.ListRuns(strategyID)
}

// GetRun returns one run
func (s *Service) GetRun(runID string) (*Run, error) {
	return s.repo.GetRun(runID)
}

// RecoverInterrupted fails chains a previous process left unfinished
func (s *Service) RecoverInterrupted() error {
	n, err := s.repo.FailInterrupted()
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Warn().Int64("chains", n).Msg("Marked interrupted backtest chains as failed")
	}
	return nil
}

// SubscribeCleanup deletes a strategy's runs when the strategy is deleted.
// It returns the unsubscribe func.
func (s *Service) SubscribeCleanup(bus *events.Bus) func() {
	return bus.Subscribe(events.StrategyDeleted, func(e events.Event) {
		var data events.StrategyLifecycleData
		if err := events.Decode(e, &data); err != nil || data.StrategyID == "" {
			s.log.Warn().Err(err).Msg("Ignoring malformed strategy deletion event")
			return
		}
		n, err := s.repo.DeleteRunsForStrategy(data.StrategyID)
		if err != nil {
			s.log.Error().Err(err).Str("strategy_id", data.StrategyID).Msg("Failed to clean up backtest runs")
			return
		}
		if n > 0 {
			s.log.Info().Int64("runs", n).Str("strategy_id", data.StrategyID).Msg("Deleted backtest runs of removed strategy")
		}
	})
}
