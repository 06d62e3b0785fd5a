package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stubCatalog approves "gameType/phase" keys.
type stubCatalog map[string]bool

func (c stubCatalog) IsGameplayPhase(gameType, phase string) bool {
	return c[gameType+"/"+phase]
}

func TestPhaseMachineLifecycle(t *testing.T) {
	m := NewPhaseMachine(stubCatalog{"quiz/question": true, "quiz/results": true})

	require.Equal(t, PhaseWaiting, m.Outer())
	require.Empty(t, m.Inner())

	require.NoError(t, m.StartReceived("quiz"))
	require.Equal(t, PhasePlaying, m.Outer())
	require.Equal(t, "quiz", m.GameType())

	require.NoError(t, m.SetInner("question"))
	require.Equal(t, "question", m.Inner())
	require.NoError(t, m.SetInner("results"))

	m.FinishReceived()
	require.Equal(t, PhaseFinished, m.Outer())
	require.Empty(t, m.Inner())
}

func TestPhaseMachineFinishedIsTerminal(t *testing.T) {
	m := NewPhaseMachine(nil)
	require.NoError(t, m.StartReceived("quiz"))
	m.FinishReceived()

	require.Error(t, m.StartReceived("quiz"))

	m.reset()
	require.Equal(t, PhaseWaiting, m.Outer())
	require.NoError(t, m.StartReceived("quiz"))
}

func TestPhaseMachineInnerGuards(t *testing.T) {
	m := NewPhaseMachine(stubCatalog{"quiz/question": true})

	// No inner phase while waiting.
	require.Error(t, m.SetInner("question"))

	require.NoError(t, m.StartReceived("quiz"))
	require.NoError(t, m.SetInner("question"))

	// Phases the catalog does not know are rejected.
	require.Error(t, m.SetInner("lightning-round"))
	require.Equal(t, "question", m.Inner())

	// Clearing the inner phase is always allowed.
	require.NoError(t, m.SetInner(""))
}
