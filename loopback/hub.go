// Package loopback is a self-contained practice server speaking the
// partyline wire protocol. It backs the practice subcommand and the
// end-to-end tests; it is a fixture, not the production service.
package loopback

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the superset of every field a client frame can carry. The
// hub parses just enough to route; relayed payloads stay raw.
type frame struct {
	Action           string `json:"action"`
	GameID           string `json:"gameId"`
	ClientID         string `json:"clientId"`
	Token            string `json:"token"`
	Role             string `json:"role"`
	PlayerName       string `json:"playerName"`
	UltimateWinnerID string `json:"ultimateWinnerId"`
}

type conn struct {
	ws       *websocket.Conn
	send     chan []byte
	clientID string
	role     string
	name     string
}

// hub relays one lobby's traffic: broadcasts go to every connected
// participant (including the sender, so mirror-only clients see their
// own host actions come back), answers go to the host only.
type hub struct {
	id       string
	gameType string
	log      *zap.SugaredLogger

	mu         sync.Mutex
	clients    map[*conn]bool
	seen       map[string]string // clientID -> last announced name
	lastActive time.Time
}

func newHub(gameID, gameType string, log *zap.SugaredLogger) *hub {
	return &hub{
		id:         gameID,
		gameType:   gameType,
		log:        log,
		clients:    make(map[*conn]bool),
		seen:       make(map[string]string),
		lastActive: time.Now(),
	}
}

func (h *hub) touch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActive = time.Now()
}

func (h *hub) idle(cutoff time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastActive.Before(cutoff)
}

func (h *hub) register(c *conn) (reconnected bool, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActive = time.Now()
	h.clients[c] = true
	name, reconnected = h.seen[c.clientID]
	return reconnected, name
}

func (h *hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActive = time.Now()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) announce(c *conn, name string) {
	h.mu.Lock()
	c.name = name
	h.seen[c.clientID] = name
	h.mu.Unlock()
}

// broadcast queues raw bytes on every client, dropping members whose
// send buffer is stuck.
func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// toHost forwards raw bytes to the host connection only.
func (h *hub) toHost(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.role != "host" {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
		return
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		_ = c.ws.Close()
		delete(h.clients, c)
	}
}

func marshal(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// relay is the post-handshake read loop for one participant.
func (h *hub) relay(c *conn) {
	defer func() {
		h.unregister(c)
		_ = c.ws.Close()
		if c.name != "" {
			h.broadcast(marshal(map[string]any{
				"action":   "playerLeft",
				"gameId":   h.id,
				"clientId": c.clientID,
			}))
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		h.touch()

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Action {
		case "announcePlayer":
			h.announce(c, f.PlayerName)
			h.broadcast(marshal(map[string]any{
				"action":     "playerJoined",
				"gameId":     h.id,
				"clientId":   c.clientID,
				"playerName": f.PlayerName,
			}))

		case "submitAnswer":
			h.toHost(data)

		case "startGame", "nextQuestion", "questionResult", "gameFinished":
			if c.role != "host" {
				continue
			}
			h.broadcast(data)

		case "resolveTie":
			if c.role != "host" {
				continue
			}
			h.broadcast(marshal(map[string]any{
				"action":           "tieResolved",
				"gameId":           h.id,
				"ultimateWinnerId": f.UltimateWinnerID,
			}))

		default:
			// Unknown and repeated handshake actions are ignored.
		}
	}
}

// randomHex returns n crypto-random bytes hex encoded.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
