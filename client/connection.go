package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	StatusIdle           = "idle"
	StatusWaiting        = "waiting"
	StatusConnecting     = "connecting"
	StatusAuthenticating = "authenticating"
	StatusIdentifying    = "identifying"
	StatusReady          = "ready"
	StatusReconnecting   = "reconnecting"
	StatusFailed         = "failed"
	StatusClosed         = "closed"
)

var (
	ErrIdentityIncomplete  = errors.New("session identity incomplete")
	ErrConnectionInFlight  = errors.New("connection attempt already in flight")
	ErrNotConnected        = errors.New("channel not ready")
	ErrAuthRejected        = errors.New("authentication rejected")
	ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")
)

// ConnConfig tunes one connection manager.
type ConnConfig struct {
	// URL is the full websocket endpoint for this session's lobby.
	URL string

	ReconnectBase    time.Duration
	ReconnectCap     time.Duration
	MaxReconnects    int
	HandshakeTimeout time.Duration
}

func (c *ConnConfig) defaults() {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectCap <= 0 {
		c.ReconnectCap = 30 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 6
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// backoffDelay returns min(base * 2^(attempt-1), cap) for attempt >= 1.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// Conn owns the lifecycle of one bidirectional channel: opening,
// authenticating, identifying, detecting loss, and reconnecting with
// bounded exponential backoff. All state transitions surface through
// an observable status string.
type Conn struct {
	cfg     ConnConfig
	log     *zap.SugaredLogger
	session *Session
	router  *Router
	dialer  *websocket.Dialer

	mu             sync.Mutex
	ws             *websocket.Conn
	status         string
	attempt        int
	inflight       bool
	closed         bool
	reconnectTimer *time.Timer
	delays         []time.Duration
	notify         func(status string)

	writeMu sync.Mutex
}

func NewConn(cfg ConnConfig, session *Session, router *Router, log *zap.SugaredLogger) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     cfg,
		log:     log,
		session: session,
		router:  router,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		status:  StatusIdle,
	}
}

// OnStatus registers a callback invoked on every status change, so
// the surrounding UI can render feedback without internal knowledge
// of the state machine.
func (c *Conn) OnStatus(fn func(status string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

func (c *Conn) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ReconnectDelays returns the backoff delays scheduled so far.
func (c *Conn) ReconnectDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func (c *Conn) setStatus(status string) {
	c.mu.Lock()
	// Closed is terminal; a racing dial or timer cannot revive the
	// status once Close has run.
	if c.closed && status != StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = status
	fn := c.notify
	c.mu.Unlock()

	c.log.Debugw("channel status", "status", status)
	if fn != nil {
		fn(status)
	}
}

// EnsureConnected is idempotent: if the channel is ready it returns
// nil without side effects, if an attempt is already in flight it
// refuses to start a second one, and otherwise it runs the full
// connect-authenticate-identify sequence. A session whose identity is
// incomplete is reported as waiting rather than dialed.
func (c *Conn) EnsureConnected() error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrNotConnected
	case c.status == StatusReady:
		c.mu.Unlock()
		return nil
	case c.inflight:
		c.mu.Unlock()
		return ErrConnectionInFlight
	}
	c.inflight = true
	c.mu.Unlock()

	if !c.session.identityComplete() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
		c.setStatus(StatusWaiting)
		return ErrIdentityIncomplete
	}

	if err := c.connect(); err != nil {
		if errors.Is(err, ErrAuthRejected) {
			c.mu.Lock()
			c.inflight = false
			c.mu.Unlock()
			c.setStatus(StatusFailed)
			return err
		}
		c.scheduleReconnect()
		return err
	}
	return nil
}

// connect runs one dial + handshake attempt. On success the channel
// is ready and the read pump is running. A Close racing the attempt
// wins: the freshly opened socket is discarded instead of installed.
func (c *Conn) connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.setStatus(StatusConnecting)

	ws, _, err := c.dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	if err := c.handshake(ws); err != nil {
		_ = ws.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrNotConnected
	}
	c.ws = ws
	c.attempt = 0
	c.inflight = false
	c.mu.Unlock()
	c.setStatus(StatusReady)

	go c.readPump(ws)
	return nil
}

// handshake performs authenticate -> authenticated -> identify ->
// identified before the channel is considered ready.
func (c *Conn) handshake(ws *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = ws.SetReadDeadline(deadline)
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	c.setStatus(StatusAuthenticating)

	auth := AuthenticateMessage{
		Envelope: c.session.Envelope("authenticate"),
		Token:    c.session.Token().Value,
	}
	if err := ws.WriteJSON(auth); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}

	reply, err := c.awaitHandshake(ws)
	if err != nil {
		return err
	}
	authed, ok := reply.(*Authenticated)
	if !ok {
		return fmt.Errorf("expected authenticated, got %T", reply)
	}
	if !authed.Success {
		return fmt.Errorf("%w: %s", ErrAuthRejected, authed.Message)
	}

	c.setStatus(StatusIdentifying)

	ident := IdentifyMessage{
		Envelope: c.session.Envelope("identify"),
		Role:     c.session.Role(),
	}
	if err := ws.WriteJSON(ident); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	reply, err = c.awaitHandshake(ws)
	if err != nil {
		return err
	}
	if _, ok := reply.(*Identified); !ok {
		if se, isErr := reply.(*ServerError); isErr {
			return se
		}
		return fmt.Errorf("expected identified, got %T", reply)
	}

	return nil
}

// awaitHandshake reads frames until one decodes to a known action,
// skipping malformed bodies the same way the pump does.
func (c *Conn) awaitHandshake(ws *websocket.Conn) (Inbound, error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("handshake read: %w", err)
		}
		msg, err := DecodeInbound(data)
		if err != nil {
			c.log.Warnw("dropping malformed handshake frame", "error", err)
			continue
		}
		if _, unknown := msg.(*Unknown); unknown {
			continue
		}
		return msg, nil
	}
}

// readPump decodes and routes inbound frames until the channel drops.
// A malformed frame is logged and dropped without touching any state.
func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			clean := c.closed
			c.mu.Unlock()
			if clean || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setStatus(StatusClosed)
				return
			}
			c.log.Warnw("channel lost", "error", err)
			c.scheduleReconnect()
			return
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			c.log.Warnw("dropping malformed frame", "error", err)
			continue
		}
		if u, ok := msg.(*Unknown); ok {
			c.log.Debugw("ignoring unknown action", "action", u.Action)
			continue
		}

		c.router.Route(msg)
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// transitions to the terminal failed status once the retry budget is
// exhausted.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.attempt++
	if c.attempt > c.cfg.MaxReconnects {
		c.inflight = false
		c.mu.Unlock()
		c.log.Errorw("reconnect budget exhausted", "attempts", c.cfg.MaxReconnects)
		c.setStatus(StatusFailed)
		return
	}

	delay := backoffDelay(c.attempt, c.cfg.ReconnectBase, c.cfg.ReconnectCap)
	c.delays = append(c.delays, delay)
	c.inflight = true
	attempt := c.attempt
	// The status write happens before the timer is armed so a short
	// delay cannot complete the next attempt and then be clobbered by
	// a late "reconnecting".
	c.status = StatusReconnecting
	fn := c.notify
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.connect(); err != nil {
			if errors.Is(err, ErrAuthRejected) {
				c.mu.Lock()
				c.inflight = false
				c.mu.Unlock()
				c.setStatus(StatusFailed)
				return
			}
			c.scheduleReconnect()
		}
	})
	c.mu.Unlock()

	c.log.Infow("reconnect scheduled", "attempt", attempt, "delay", delay)
	if fn != nil {
		fn(StatusReconnecting)
	}
}

// Send writes one outbound message. The caller is expected to have a
// ready channel; anything else is an error rather than a queue.
func (c *Conn) Send(msg any) error {
	c.mu.Lock()
	ws := c.ws
	ready := c.status == StatusReady
	c.mu.Unlock()

	if !ready || ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(msg)
}

// Close issues a clean client-initiated close. It cancels any pending
// reconnect timer and never triggers reconnection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.inflight = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.setStatus(StatusClosed)

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		c.writeMu.Unlock()
		return ws.Close()
	}
	return nil
}
