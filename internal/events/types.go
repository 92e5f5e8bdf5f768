package events

// EventType represents different event types
type EventType string

const (
	// Strategy lifecycle
	StrategyCreated  EventType = "STRATEGY_CREATED"
	StrategyChanged  EventType = "STRATEGY_CHANGED"
	StrategyDeleted  EventType = "STRATEGY_DELETED"
	StrategyRestored EventType = "STRATEGY_RESTORED"

	// Backtest runs
	BacktestStarted        EventType = "BACKTEST_STARTED"
	BacktestChainCompleted EventType = "BACKTEST_CHAIN_COMPLETED"
	BacktestChainFailed    EventType = "BACKTEST_CHAIN_FAILED"
	BacktestFinished       EventType = "BACKTEST_FINISHED"

	// Maintenance
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)
