package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Role string

const (
	RoleNone   Role = ""
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Player is one entry in the server-broadcast participant list. The
// client never invents entries except transiently when announcing
// itself.
type Player struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"playerName"`
}

// Token is an auth token with its expiry, as issued by the token
// endpoints.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (t Token) Valid() bool {
	return t.Value != "" && time.Now().Before(t.ExpiresAt)
}

// Session is the root aggregate for one participant's membership in a
// game instance. It is created on host/join, passed by reference to
// the connection manager, router and phase machine, and destroyed on
// explicit reset. The client id is generated once per Session and
// never persisted, so every new Session is a distinct participant.
type Session struct {
	mu  sync.Mutex
	log *zap.SugaredLogger

	clientID string
	gameID   string
	role     Role
	token    Token
	name     string

	players []Player
	scores  ScoreBoard
	phase   *PhaseMachine
	tie     TieBreakerState

	startRaw  *GameStarted // stored startGame payload, kept for late-mounting modules
	lastError string
}

func NewSession(catalog Catalog, log *zap.SugaredLogger) *Session {
	return &Session{
		log:      log,
		clientID: uuid.NewString(),
		scores:   ScoreBoard{},
		phase:    NewPhaseMachine(catalog),
	}
}

// Join binds the session to a lobby as a guest player.
func (s *Session) Join(gameID, name string, tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = gameID
	s.role = RolePlayer
	s.name = name
	s.token = tok
}

// Host binds the session to a lobby it controls.
func (s *Session) Host(gameID string, tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = gameID
	s.role = RoleHost
	s.token = tok
}

func (s *Session) ClientID() string { return s.clientID }

func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SetToken(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

// identityComplete reports whether a connection attempt may proceed.
func (s *Session) identityComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID != "" && s.clientID != "" && s.role != RoleNone && s.token.Valid()
}

// Envelope stamps an outbound action with the session identity.
func (s *Session) Envelope(action string) Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Envelope{Action: action, GameID: s.gameID, ClientID: s.clientID}
}

func (s *Session) Players() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Player, len(s.players))
	copy(out, s.players)
	return out
}

func (s *Session) addPlayer(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.players {
		if s.players[i].ClientID == p.ClientID {
			s.players[i].DisplayName = p.DisplayName
			return
		}
	}
	s.players = append(s.players, p)
}

func (s *Session) removePlayer(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.players[:0]
	for _, p := range s.players {
		if p.ClientID != clientID {
			dst = append(dst, p)
		}
	}
	s.players = dst
}

// setPlayers replaces the list with a server-asserted snapshot.
func (s *Session) setPlayers(players []Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = append(s.players[:0], players...)
}

// Scores returns a copy of the score board.
func (s *Session) Scores() ScoreBoard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores.Clone()
}

func (s *Session) mergeScores(updates map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores.Merge(updates)
}

func (s *Session) Phase() *PhaseMachine { return s.phase }

func (s *Session) TieState() TieBreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tie.clone()
}

func (s *Session) setTieBreaking(tied []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tie = TieBreakerState{Stage: TieBreaking, TiedPlayerIDs: append([]string(nil), tied...)}
}

// setTieResolved records the host-broadcast winner. The winner is set
// exactly once; repeated broadcasts are idempotent.
func (s *Session) setTieResolved(winnerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tie.Stage == TieResolvedStage && s.tie.WinnerID != "" {
		return
	}
	s.tie.Stage = TieResolvedStage
	s.tie.WinnerID = winnerID
}

func (s *Session) setStartRaw(msg *GameStarted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startRaw = msg
}

// StartPayload returns the stored startGame payload, if any.
func (s *Session) StartPayload() *GameStarted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startRaw
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Reset returns the session to its initial unjoined state. Players,
// scores, phase and tie state are cleared atomically together; the
// client id survives so the participant identity is stable for the
// tab lifetime.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameID = ""
	s.role = RoleNone
	s.token = Token{}
	s.players = nil
	s.scores = ScoreBoard{}
	s.tie = TieBreakerState{}
	s.startRaw = nil
	s.lastError = ""
	s.phase.reset()
}
