package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EmitTypedRoundTrips(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	var got []Event
	unsubscribe := bus.Subscribe(StrategyChanged, func(e Event) { got = append(got, e) })
	defer unsubscribe()

	m.EmitTyped("strategy", &StrategyChangedData{StrategyID: "s1", Revision: 4, Operation: "connect"})

	require.Len(t, got, 1)
	assert.Equal(t, StrategyChanged, got[0].Type)
	assert.Equal(t, "strategy", got[0].Module)
	assert.False(t, got[0].Timestamp.IsZero())

	var data StrategyChangedData
	require.NoError(t, Decode(got[0], &data))
	assert.Equal(t, StrategyChangedData{StrategyID: "s1", Revision: 4, Operation: "connect"}, data)
}

func TestManager_LifecycleTypeComesFromData(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	var deleted int
	defer bus.Subscribe(StrategyDeleted, func(Event) { deleted++ })()

	m.EmitTyped("strategy", &StrategyLifecycleData{StrategyID: "s1", Type: StrategyDeleted})
	m.EmitTyped("strategy", &StrategyLifecycleData{StrategyID: "s2", Type: StrategyCreated})

	assert.Equal(t, 1, deleted)
}

func TestManager_ChainDataSelectsOutcome(t *testing.T) {
	assert.Equal(t, BacktestChainCompleted, (&BacktestChainData{RunID: "r"}).EventType())
	assert.Equal(t, BacktestChainFailed, (&BacktestChainData{RunID: "r", Error: "boom"}).EventType())
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	m := NewManager(bus, zerolog.Nop())

	var got Event
	defer bus.Subscribe(ErrorOccurred, func(e Event) { got = e })()

	m.EmitError("backup", errors.New("upload failed"), map[string]interface{}{"key": "k"})

	var data ErrorEventData
	require.NoError(t, Decode(got, &data))
	assert.Equal(t, "upload failed", data.Error)
	assert.Equal(t, "k", data.Context["key"])
	assert.Equal(t, "backup", got.Module)
}
