package client

import (
	"fmt"
	"sync"
)

type OuterPhase string

const (
	PhaseWaiting  OuterPhase = "waiting"
	PhasePlaying  OuterPhase = "playing"
	PhaseFinished OuterPhase = "finished"
)

// Catalog answers the one question the outer machine asks about inner
// phases, so it never special-cases individual game types. Implemented
// by the game module registry.
type Catalog interface {
	IsGameplayPhase(gameType, phase string) bool
}

// PhaseMachine is the outer game lifecycle shared by all game types.
// Inner phases are opaque strings owned by the active game module.
// The playing transition is mirror-only: it fires when the startGame
// broadcast arrives, never optimistically on the initiator's own send.
type PhaseMachine struct {
	mu       sync.Mutex
	catalog  Catalog
	outer    OuterPhase
	inner    string
	gameType string
}

func NewPhaseMachine(catalog Catalog) *PhaseMachine {
	return &PhaseMachine{catalog: catalog, outer: PhaseWaiting}
}

func (m *PhaseMachine) Outer() OuterPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outer
}

func (m *PhaseMachine) Inner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner
}

func (m *PhaseMachine) GameType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gameType
}

// StartReceived mirrors a startGame broadcast into the playing state.
func (m *PhaseMachine) StartReceived(gameType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outer == PhaseFinished {
		return fmt.Errorf("cannot start from %s without reset", m.outer)
	}
	m.outer = PhasePlaying
	m.gameType = gameType
	return nil
}

// FinishReceived mirrors a gameFinished broadcast. Finished is
// terminal until an explicit reset.
func (m *PhaseMachine) FinishReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outer = PhaseFinished
	m.inner = ""
}

// SetInner records a game-module phase transition. The machine may
// only be playing while an inner gameplay phase is active.
func (m *PhaseMachine) SetInner(phase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if phase != "" && m.outer != PhasePlaying {
		return fmt.Errorf("inner phase %q while outer is %s", phase, m.outer)
	}
	if phase != "" && m.catalog != nil && !m.catalog.IsGameplayPhase(m.gameType, phase) {
		return fmt.Errorf("phase %q is not a gameplay phase of %q", phase, m.gameType)
	}
	m.inner = phase
	return nil
}

func (m *PhaseMachine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outer = PhaseWaiting
	m.inner = ""
	m.gameType = ""
}
