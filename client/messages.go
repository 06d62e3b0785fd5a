package client

import (
	"encoding/json"
	"fmt"
)

// Envelope carries the fields every channel message shares. Once a
// session exists, every outbound message embeds it so the server can
// attribute the sender without relying on channel-level identity.
type Envelope struct {
	Action   string `json:"action"`
	GameID   string `json:"gameId,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}

// Outbound messages (client -> server).

type AuthenticateMessage struct {
	Envelope
	Token string `json:"token"`
}

type IdentifyMessage struct {
	Envelope
	Role Role `json:"role"`
}

type AnnouncePlayerMessage struct {
	Envelope
	PlayerName string `json:"playerName"`
}

type StartGameMessage struct {
	Envelope
	GameType string          `json:"gameType"`
	Content  json.RawMessage `json:"content,omitempty"` // game-type specific payload
}

type SubmitAnswerMessage struct {
	Envelope
	AnswerIndex   *int   `json:"answerIndex,omitempty"` // quiz
	Answer        string `json:"answer,omitempty"`      // wordrace / mathdash
	QuestionIndex int    `json:"questionIndex"`
	Timestamp     int64  `json:"timestamp,omitempty"` // unix millis at submission
}

type NextQuestionMessage struct {
	Envelope
	QuestionIndex int `json:"questionIndex"`
}

type QuestionResultMessage struct {
	Envelope
	Scores  map[string]int `json:"scores"`
	Players []Player       `json:"players"`
}

type GameFinishedMessage struct {
	Envelope
	FinalScores map[string]int `json:"finalScores"`
	Players     []Player       `json:"players"`
}

type ResolveTieMessage struct {
	Envelope
	UltimateWinnerID string `json:"ultimateWinnerId"`
}

// Inbound is the decoded form of a server/host -> client message.
// Exactly one concrete type exists per known action; anything else
// decodes to Unknown so forward-compatible server additions are
// ignored instead of raised.
type Inbound interface{ isInbound() }

type Authenticated struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type Identified struct {
	ClientID string `json:"clientId"`
	GameID   string `json:"gameId"`
}

type PlayerJoined struct {
	ClientID   string `json:"clientId"`
	PlayerName string `json:"playerName"`
}

type PlayerLeft struct {
	ClientID string `json:"clientId"`
}

type PlayerReconnected struct {
	ClientID   string `json:"clientId"`
	PlayerName string `json:"playerName"`
}

// GameStarted keeps the game-type specific payload raw; the active
// game module decodes it during its own handling pass.
type GameStarted struct {
	GameType string          `json:"gameType"`
	Content  json.RawMessage `json:"content"`
}

// AnswerSubmitted is a player's answer relayed to the host, which
// folds it into the score table.
type AnswerSubmitted struct {
	ClientID      string `json:"clientId"`
	AnswerIndex   *int   `json:"answerIndex"`
	Answer        string `json:"answer"`
	QuestionIndex int    `json:"questionIndex"`
	Timestamp     int64  `json:"timestamp"`
}

type NextQuestion struct {
	QuestionIndex int `json:"questionIndex"`
}

type QuestionResult struct {
	Scores  map[string]int `json:"scores"`
	Players []Player       `json:"players"`
}

type GameFinished struct {
	FinalScores map[string]int `json:"finalScores"`
	Players     []Player       `json:"players"`
}

type TieResolved struct {
	UltimateWinnerID string `json:"ultimateWinnerId"`
}

// ServerError is the protocol-level error action.
type ServerError struct {
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// Unknown represents an action this client does not recognize.
type Unknown struct {
	Action string
}

func (*Authenticated) isInbound()     {}
func (*Identified) isInbound()        {}
func (*PlayerJoined) isInbound()      {}
func (*PlayerLeft) isInbound()        {}
func (*PlayerReconnected) isInbound() {}
func (*GameStarted) isInbound()       {}
func (*AnswerSubmitted) isInbound()   {}
func (*NextQuestion) isInbound()      {}
func (*QuestionResult) isInbound()    {}
func (*GameFinished) isInbound()      {}
func (*TieResolved) isInbound()       {}
func (*ServerError) isInbound()       {}
func (*Unknown) isInbound()           {}

// DecodeInbound parses a raw channel frame into its variant. A
// malformed body returns an error so the caller can drop the frame;
// an unrecognized action succeeds and returns *Unknown.
func DecodeInbound(data []byte) (Inbound, error) {
	var peek struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var msg Inbound
	switch peek.Action {
	case "authenticated":
		msg = &Authenticated{}
	case "identified":
		msg = &Identified{}
	case "playerJoined":
		msg = &PlayerJoined{}
	case "playerLeft":
		msg = &PlayerLeft{}
	case "playerReconnected":
		msg = &PlayerReconnected{}
	case "startGame":
		msg = &GameStarted{}
	case "submitAnswer":
		msg = &AnswerSubmitted{}
	case "nextQuestion":
		msg = &NextQuestion{}
	case "questionResult":
		msg = &QuestionResult{}
	case "gameFinished":
		msg = &GameFinished{}
	case "tieResolved":
		msg = &TieResolved{}
	case "error":
		msg = &ServerError{}
	default:
		return &Unknown{Action: peek.Action}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("malformed %q payload: %w", peek.Action, err)
	}

	return msg, nil
}
