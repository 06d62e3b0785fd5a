package loopback

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Options tunes the practice server.
type Options struct {
	Bind           string
	Port           int
	SessionTimeout time.Duration
	TokenTTL       time.Duration
	Profile        bool
}

func (o *Options) defaults() {
	if o.Bind == "" {
		o.Bind = "127.0.0.1"
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = time.Hour
	}
	if o.TokenTTL <= 0 {
		o.TokenTTL = time.Hour
	}
}

type tokenInfo struct {
	gameID  string
	role    string
	expires time.Time
}

type lobby struct {
	gameType string
	hub      *hub
}

// Server hosts the HTTP collaborators and the per-lobby websocket
// relays.
type Server struct {
	opts Options
	log  *zap.SugaredLogger

	mu      sync.Mutex
	lobbies map[string]*lobby
	tokens  map[string]tokenInfo
}

func NewServer(opts Options, log *zap.SugaredLogger) *Server {
	opts.defaults()
	return &Server{
		opts:    opts,
		log:     log,
		lobbies: make(map[string]*lobby),
		tokens:  make(map[string]tokenInfo),
	}
}

// Router builds the route table. Exposed separately so tests can run
// it under httptest.
func (s *Server) Router() *httprouter.Router {
	mux := httprouter.New()

	mux.POST("/lobby", s.createLobby)
	mux.GET("/lobby/:gameid", s.lobbyInfo)
	mux.GET("/lobby/:gameid/questions", s.lobbyContent)
	mux.POST("/lobby/:gameid/token", s.issueToken)
	mux.GET("/lobby/:gameid/ws", s.serveWS)
	mux.GET("/lobby/:gameid/qr", s.serveQR)

	if s.opts.Profile {
		mux.HandlerFunc("GET", "/pprof/profile", pprof.Profile)
		mux.HandlerFunc("GET", "/pprof/symbol", pprof.Symbol)
		mux.HandlerFunc("GET", "/pprof/trace", pprof.Trace)
		mux.Handler("GET", "/pprof/heap", pprof.Handler("heap"))
		mux.Handler("GET", "/pprof/goroutine", pprof.Handler("goroutine"))
	}

	return mux
}

// Serve runs the practice server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.opts.Bind, strconv.Itoa(s.opts.Port)),
		Handler:           s.Router(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.reaperLoop(ctx)

	errC := make(chan error, 1)
	go func() {
		s.log.Infow("practice server listening", "addr", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newGameID generates a random 8-char id, retrying on the rare
// collision with a live lobby.
func (s *Server) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		s.mu.Lock()
		_, exists := s.lobbies[id]
		s.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func (s *Server) getLobby(gameID string) (*lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lb, ok := s.lobbies[gameID]
	return lb, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) createLobby(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		GameType string `json:"gameType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameType == "" {
		http.Error(w, "missing game type", http.StatusBadRequest)
		return
	}
	if _, ok := cannedContent(req.GameType); !ok {
		http.Error(w, "unknown game type", http.StatusBadRequest)
		return
	}

	id := s.newGameID()
	s.mu.Lock()
	s.lobbies[id] = &lobby{
		gameType: req.GameType,
		hub:      newHub(id, req.GameType, s.log),
	}
	s.mu.Unlock()

	s.log.Infow("lobby created", "gameId", id, "gameType", req.GameType)
	writeJSON(w, http.StatusOK, map[string]string{"gameId": id, "gameType": req.GameType})
}

func (s *Server) lobbyInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lb, ok := s.getLobby(ps.ByName("gameid"))
	if !ok {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"gameId":   ps.ByName("gameid"),
		"gameType": lb.gameType,
	})
}

func (s *Server) lobbyContent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lb, ok := s.getLobby(ps.ByName("gameid"))
	if !ok {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}
	content, _ := cannedContent(lb.gameType)
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if _, ok := s.getLobby(gameID); !ok {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	var req struct {
		Role       string `json:"role"`
		PlayerName string `json:"playerName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Role != "host" && req.Role != "player" {
		http.Error(w, "bad role", http.StatusBadRequest)
		return
	}

	tok := "tok-" + randomHex(16)
	expires := time.Now().Add(s.opts.TokenTTL)
	s.mu.Lock()
	s.tokens[tok] = tokenInfo{gameID: gameID, role: req.Role, expires: expires}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tok,
		"expiresAt": expires.Format(time.RFC3339),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and walks it through the
// authenticate/identify handshake before handing it to the hub.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	lb, ok := s.getLobby(gameID)
	if !ok {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("upgrade failed", "error", err)
		return
	}

	c, ok := s.handshake(ws, gameID)
	if !ok {
		_ = ws.Close()
		return
	}

	reconnected, name := lb.hub.register(c)
	go c.writePump()

	if reconnected && name != "" {
		c.name = name
		lb.hub.broadcast(marshal(map[string]any{
			"action":     "playerReconnected",
			"gameId":     gameID,
			"clientId":   c.clientID,
			"playerName": name,
		}))
	}

	lb.hub.relay(c)
}

// handshake expects authenticate then identify, in order, and answers
// each. Anything else on a fresh connection is a protocol error.
func (s *Server) handshake(ws *websocket.Conn, gameID string) (*conn, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	var auth frame
	if err := ws.ReadJSON(&auth); err != nil || auth.Action != "authenticate" {
		return nil, false
	}

	s.mu.Lock()
	info, known := s.tokens[auth.Token]
	s.mu.Unlock()

	if !known || info.gameID != gameID || time.Now().After(info.expires) {
		_ = ws.WriteJSON(map[string]any{
			"action":  "authenticated",
			"success": false,
			"message": "token rejected",
		})
		return nil, false
	}
	if err := ws.WriteJSON(map[string]any{"action": "authenticated", "success": true}); err != nil {
		return nil, false
	}

	var ident frame
	if err := ws.ReadJSON(&ident); err != nil || ident.Action != "identify" {
		return nil, false
	}
	if ident.Role != info.role || ident.ClientID == "" {
		_ = ws.WriteJSON(map[string]any{"action": "error", "message": "role mismatch"})
		return nil, false
	}
	if err := ws.WriteJSON(map[string]any{
		"action":   "identified",
		"clientId": ident.ClientID,
		"gameId":   gameID,
	}); err != nil {
		return nil, false
	}

	return &conn{
		ws:       ws,
		send:     make(chan []byte, 16),
		clientID: ident.ClientID,
		role:     ident.Role,
	}, true
}

// serveQR returns a PNG QR code of the lobby's join URL so phones on
// the same network can scan in.
func (s *Server) serveQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if _, ok := s.getLobby(gameID); !ok {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + "/lobby/" + gameID

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// reaperLoop removes lobbies idle past the session timeout and prunes
// expired tokens.
func (s *Server) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-s.opts.SessionTimeout)

		s.mu.Lock()
		for id, lb := range s.lobbies {
			if lb.hub.idle(cutoff) {
				delete(s.lobbies, id)
				go lb.hub.closeAll()
				s.log.Infow("lobby reaped", "gameId", id)
			}
		}
		now := time.Now()
		for tok, info := range s.tokens {
			if now.After(info.expires) {
				delete(s.tokens, tok)
			}
		}
		s.mu.Unlock()
	}
}
