package client

import "sync"

// Handler consumes one inbound message. Returning true means the
// message was fully handled; false offers it to the next handler in
// line.
type Handler interface {
	Handle(msg Inbound) bool
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(msg Inbound) bool

func (f HandlerFunc) Handle(msg Inbound) bool { return f(msg) }

// Router dispatches every inbound message to the core handler first
// and, only if the core declines it, to the handler of the currently
// active game module. Registration is replace-only: a module mounting
// swaps out whatever handler was there before, so a stale handler can
// never double-process a message.
type Router struct {
	mu   sync.Mutex
	core Handler
	game Handler
}

func NewRouter() *Router {
	return &Router{}
}

// BindCore installs the core handler. Called once during wiring.
func (r *Router) BindCore(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.core = h
}

// SetGameHandler replaces the active game module's handler.
func (r *Router) SetGameHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.game = h
}

// ClearGameHandler removes the active handler on module deactivation.
func (r *Router) ClearGameHandler() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.game = nil
}

// Route offers msg to the core handler, then to the game handler if
// the core declined. Reports whether anyone handled it.
func (r *Router) Route(msg Inbound) bool {
	r.mu.Lock()
	core, game := r.core, r.game
	r.mu.Unlock()

	if core != nil && core.Handle(msg) {
		return true
	}
	if game != nil {
		return game.Handle(msg)
	}
	return false
}
