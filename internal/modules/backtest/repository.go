package backtest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tactical/internal/database"
	"github.com/rs/zerolog"
)

// Repository handles backtest run persistence
// Database: backtests.db (backtest_runs, backtest_chain_results tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new backtest repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "backtest").Logger(),
	}
}

// CreateRun stores a run and one pending row per chain
func (r *Repository) CreateRun(run *Run) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO backtest_runs (id, strategy_id, strategy_revision, chain_count, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			run.ID, run.StrategyID, run.Revision, len(run.Chains), run.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
		}

		for _, c := range run.Chains {
			req, err := json.Marshal(c.Request)
			if err != nil {
				return fmt.Errorf("failed to encode chain %d request: %w", c.Index, err)
			}
			_, err = tx.Exec(`
				INSERT INTO backtest_chain_results (run_id, chain_index, label, status, request, started_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, c.Index, c.Label, string(c.Status), string(req), c.StartedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to insert chain %d of run %s: %w", c.Index, run.ID, err)
			}
		}
		return nil
	})
}

// MarkRunning flags a chain as submitted to the engine
func (r *Repository) MarkRunning(runID string, index int) error {
	_, err := r.db.Exec(`
		UPDATE backtest_chain_results SET status = ?, started_at = ?
		WHERE run_id = ? AND chain_index = ?`,
		string(StatusRunning), time.Now().Unix(), runID, index)
	if err != nil {
		return fmt.Errorf("failed to mark chain %d of run %s running: %w", index, runID, err)
	}
	return nil
}

// CompleteChain records a chain's result or failure
func (r *Repository) CompleteChain(runID string, index int, result *Result, runErr error) error {
	status := StatusSucceeded
	var resultJSON, errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	} else if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode chain %d result: %w", index, err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := r.db.Exec(`
		UPDATE backtest_chain_results
		SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE run_id = ? AND chain_index = ?`,
		string(status), resultJSON, errText, time.Now().Unix(), runID, index)
	if err != nil {
		return fmt.Errorf("failed to complete chain %d of run %s: %w", index, runID, err)
	}
	return nil
}

// GetRun returns a run with every chain outcome
func (r *Repository) GetRun(runID string) (*Run, error) {
	var (
		run       Run
		createdAt int64
	)
	err := r.db.QueryRow(`
		SELECT id, strategy_id, strategy_revision, created_at
		FROM backtest_runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.StrategyID, &run.Revision, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := r.db.Query(`
		SELECT chain_index, label, status, request, result, error, started_at, completed_at
		FROM backtest_chain_results WHERE run_id = ?
		ORDER BY chain_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains of run %s: %w", runID, err)
	}
	defer rows.Close()

	run.Chains = []ChainResult{}
	for rows.Next() {
		var (
			c               ChainResult
			status, request string
			result, errText sql.NullString
			startedAt       int64
			completedAt     sql.NullInt64
		)
		if err := rows.Scan(&c.Index, &c.Label, &status, &request, &result, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		c.Status = ChainStatus(status)
		if err := json.Unmarshal([]byte(request), &c.Request); err != nil {
			return nil, fmt.Errorf("failed to decode chain %d request: %w", c.Index, err)
		}
		if result.Valid {
			c.Result = &Result{}
			if err := json.Unmarshal([]byte(result.String), c.Result); err != nil {
				return nil, fmt.Errorf("failed to decode chain %d result: %w", c.Index, err)
			}
		}
		c.Error = errText.String
		c.StartedAt = time.Unix(startedAt, 0).UTC()
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0).UTC()
			c.CompletedAt = &t
		}
		run.Chains = append(run.Chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chains: %w", err)
	}
	return &run, nil
}

// ListRuns returns the runs of a strategy, newest first
func (r *Repository) ListRuns(strategyID string) ([]RunSummary, error) {
	rows, err := r.db.Query(`
		SELECT r.id, r.strategy_id, r.strategy_revision, r.chain_count, r.created_at,
			COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0)
		FROM backtest_runs r
		LEFT JOIN backtest_chain_results c ON c.run_id = r.id
		WHERE r.strategy_id = ?
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id`,
		string(StatusSucceeded), string(StatusFailed), strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for %s: %w", strategyID, err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.Revision, &s.ChainCount, &createdAt, &s.Succeeded, &s.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// DeleteRunsForStrategy removes every run of a strategy
func (r *Repository) DeleteRunsForStrategy(strategyID string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM backtest_runs WHERE strategy_id = ?", strategyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs for %s: %w", strategyID, err)
	}
	return res.RowsAffected()
}

// FailInterrupted marks chains left pending or running by a previous process as failed
func (r *Repository) FailInterrupted() (int64, error) {
	res, err := r.db.Exec(`
		UPDATE backtest_chain_results
		SET status = ?, error = ?, completed_at = ?
		WHERE status IN (?, ?)`,
		string(StatusFailed), "interrupted by shutdown", time.Now().Unix(),
		string(StatusPending), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted chains: %w", err)
	}
	return res.RowsAffected()
}
