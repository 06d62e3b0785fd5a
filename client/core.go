package client

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Core handles the connection/session/lifecycle actions universal to
// all game types. It is offered every inbound message before the
// active game module; returning false hands the message on. Some
// actions are deliberately partial: the core records what it needs
// and still returns false so the game module runs its own setup on
// the same message.
type Core struct {
	session *Session
	conn    *Conn
	tb      *TieBreaker
	log     *zap.SugaredLogger

	mu       sync.Mutex
	observer func(msg Inbound)
}

func NewCore(session *Session, conn *Conn, tb *TieBreaker, log *zap.SugaredLogger) *Core {
	return &Core{session: session, conn: conn, tb: tb, log: log}
}

// Observe registers a callback invoked after the core has processed a
// message, whether or not it consumed it.
func (c *Core) Observe(fn func(msg Inbound)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

func (c *Core) observe(msg Inbound) {
	c.mu.Lock()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (c *Core) Handle(msg Inbound) bool {
	defer c.observe(msg)

	switch m := msg.(type) {
	case *Authenticated, *Identified:
		// Normally consumed during the handshake; a late duplicate is
		// harmless and fully handled here.
		return true

	case *PlayerJoined:
		c.session.addPlayer(Player{ClientID: m.ClientID, DisplayName: m.PlayerName})
		c.log.Infow("player joined", "clientId", m.ClientID, "name", m.PlayerName)
		return true

	case *PlayerLeft:
		// Scores stay on the board; only the roster entry goes.
		c.session.removePlayer(m.ClientID)
		c.log.Infow("player left", "clientId", m.ClientID)
		return true

	case *PlayerReconnected:
		c.session.addPlayer(Player{ClientID: m.ClientID, DisplayName: m.PlayerName})
		c.log.Infow("player reconnected", "clientId", m.ClientID)
		return true

	case *GameStarted:
		// Partial: store the raw payload and mirror the outer phase,
		// then let the active game module do its type-specific setup.
		c.session.setStartRaw(m)
		if err := c.session.Phase().StartReceived(m.GameType); err != nil {
			c.log.Warnw("startGame ignored", "error", err)
			return true
		}
		return false

	case *QuestionResult:
		// Partial: the score merge is universal, the display is not.
		c.session.mergeScores(m.Scores)
		if len(m.Players) > 0 {
			c.session.setPlayers(m.Players)
		}
		return false

	case *GameFinished:
		// Partial: outer phase, final scores and tie detection are
		// universal; the module still sees the message for teardown.
		c.session.mergeScores(m.FinalScores)
		if len(m.Players) > 0 {
			c.session.setPlayers(m.Players)
		}
		c.session.Phase().FinishReceived()
		c.maybeBreakTie(m.FinalScores)
		return false

	case *TieResolved:
		c.session.setTieResolved(m.UltimateWinnerID)
		c.log.Infow("tie resolved", "winnerId", m.UltimateWinnerID)
		return true

	case *ServerError:
		c.session.setLastError(m.Message)
		c.log.Warnw("server error", "message", m.Message)
		if strings.Contains(strings.ToLower(m.Message), "lobby not found") {
			// Half-initialized membership is worse than none.
			c.tb.Cancel()
			c.session.Reset()
		}
		return true

	case *Unknown:
		return true
	}

	return false
}

// maybeBreakTie starts the host-driven tie resolution when the final
// scores contain two or more ids at the strict maximum. Only the host
// selects; everyone else waits for the tieResolved broadcast.
func (c *Core) maybeBreakTie(finalScores map[string]int) {
	tied := FindTied(finalScores)
	if tied == nil {
		return
	}

	c.session.setTieBreaking(tied)

	if c.session.Role() != RoleHost {
		return
	}

	c.tb.Run(tied, nil, func(winnerID string) {
		c.session.setTieResolved(winnerID)
		out := ResolveTieMessage{
			Envelope:         c.session.Envelope("resolveTie"),
			UltimateWinnerID: winnerID,
		}
		if err := c.conn.Send(out); err != nil {
			c.log.Errorw("broadcast tie winner", "error", err)
		}
	})
}
