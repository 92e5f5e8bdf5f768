package events

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// StrategyChangedData describes a committed strategy edit
type StrategyChangedData struct {
	StrategyID string `json:"strategy_id"`
	Revision   int64  `json:"revision"`
	Operation  string `json:"operation"`
}

// EventType returns the event type for StrategyChangedData
func (d *StrategyChangedData) EventType() EventType {
	return StrategyChanged
}

// StrategyLifecycleData describes a strategy being created or deleted
type StrategyLifecycleData struct {
	StrategyID string    `json:"strategy_id"`
	Name       string    `json:"name"`
	Type       EventType `json:"-"`
}

// EventType returns the lifecycle event carried by the data
func (d *StrategyLifecycleData) EventType() EventType {
	return d.Type
}

// BacktestStartedData describes a dispatched backtest run
type BacktestStartedData struct {
	RunID      string `json:"run_id"`
	StrategyID string `json:"strategy_id"`
	Chains     int    `json:"chains"`
}

// EventType returns the event type for BacktestStartedData
func (d *BacktestStartedData) EventType() EventType {
	return BacktestStarted
}

// BacktestChainData describes the outcome of one chain's backtest
type BacktestChainData struct {
	RunID      string `json:"run_id"`
	ChainIndex int    `json:"chain_index"`
	Label      string `json:"label"`
	Error      string `json:"error,omitempty"`
}

// EventType returns completed or failed depending on Error
func (d *BacktestChainData) EventType() EventType {
	if d.Error != "" {
		return BacktestChainFailed
	}
	return BacktestChainCompleted
}

// BacktestFinishedData summarizes a run once every chain has reported
type BacktestFinishedData struct {
	RunID     string `json:"run_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// EventType returns the event type for BacktestFinishedData
func (d *BacktestFinishedData) EventType() EventType {
	return BacktestFinished
}

// BackupCompletedData describes an uploaded backup archive
type BackupCompletedData struct {
	Key        string `json:"key"`
	SizeBytes  int64  `json:"size_bytes"`
	Strategies int    `json:"strategies"`
	Pruned     int    `json:"pruned"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData carries an error report
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
