// Package games holds the catalog of pluggable game modules. Each
// module owns one game type's inner phase vocabulary, its message
// handling, and its scoring fold; the client core stays generic and
// consults the registry instead of special-casing game types.
package games

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/Seednode/partyline/client"
	"go.uber.org/zap"
)

// Runtime bundles what a mounted module needs from the client core.
type Runtime struct {
	Session *client.Session
	Conn    *client.Conn
	Router  *client.Router
	Log     *zap.SugaredLogger
}

// StartGame broadcasts the host's startGame message with precomputed
// content. The local phase transition happens only when the broadcast
// comes back, never optimistically on this send.
func (rt Runtime) StartGame(gameType string, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return rt.Conn.Send(client.StartGameMessage{
		Envelope: rt.Session.Envelope("startGame"),
		GameType: gameType,
		Content:  raw,
	})
}

// Interactive is implemented by game handlers that accept free-text
// input from a terminal participant.
type Interactive interface {
	// SubmitText parses and submits one line of input.
	SubmitText(text string) error
	// PromptText renders the current question or round for display.
	PromptText() string
}

// Module describes one game type.
type Module interface {
	// Type is the wire identifier for this game.
	Type() string
	// Name is the human-readable title.
	Name() string
	// MinPlayers is the fewest non-host participants needed.
	MinPlayers() int
	// Phases lists the inner phases that count as active gameplay.
	Phases() []string
	// Mount builds the message handler for one session. The caller
	// registers it on the router; exactly one registration per
	// activation.
	Mount(rt Runtime) client.Handler
}

// Registry is the static catalog mapping game-type identifiers to
// their modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

func NewRegistry(mods ...Module) *Registry {
	r := &Registry{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		r.modules[m.Type()] = m
	}
	return r
}

// Default returns the registry with every built-in game module.
func Default() *Registry {
	return NewRegistry(Quiz{}, WordRace{}, MathDash{})
}

func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Type()] = m
}

func (r *Registry) Lookup(gameType string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[gameType]
	return m, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for t := range r.modules {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsGameplayPhase implements client.Catalog for the outer phase
// machine.
func (r *Registry) IsGameplayPhase(gameType, phase string) bool {
	m, ok := r.Lookup(gameType)
	if !ok {
		return false
	}
	for _, p := range m.Phases() {
		if p == phase {
			return true
		}
	}
	return false
}

// Activate mounts the module for gameType and installs its handler as
// the single active game handler, replacing any previous one.
func Activate(rt Runtime, reg *Registry, gameType string) (client.Handler, bool) {
	m, ok := reg.Lookup(gameType)
	if !ok {
		return nil, false
	}
	h := m.Mount(rt)
	rt.Router.SetGameHandler(h)
	return h, true
}

// Deactivate removes the active game handler.
func Deactivate(rt Runtime) {
	rt.Router.ClearGameHandler()
}
