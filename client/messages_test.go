package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeInboundKnownAction(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"action":"playerJoined","clientId":"p1","playerName":"alice"}`))
	require.NoError(t, err)

	joined, ok := msg.(*PlayerJoined)
	require.True(t, ok)
	require.Equal(t, "p1", joined.ClientID)
	require.Equal(t, "alice", joined.PlayerName)
}

func TestDecodeInboundUnknownAction(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"action":"confetti","payload":42}`))
	require.NoError(t, err)

	u, ok := msg.(*Unknown)
	require.True(t, ok)
	require.Equal(t, "confetti", u.Action)
}

func TestDecodeInboundMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"action":`))
	require.Error(t, err)

	// Well-formed envelope, malformed payload for the action.
	_, err = DecodeInbound([]byte(`{"action":"nextQuestion","questionIndex":"one"}`))
	require.Error(t, err)
}

func TestDecodeInboundStartGameKeepsContentRaw(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"action":"startGame","gameType":"quiz","content":{"questions":[]}}`))
	require.NoError(t, err)

	started, ok := msg.(*GameStarted)
	require.True(t, ok)
	require.Equal(t, "quiz", started.GameType)
	require.JSONEq(t, `{"questions":[]}`, string(started.Content))
}

func TestServerErrorIsError(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"action":"error","message":"lobby not found"}`))
	require.NoError(t, err)

	se, ok := msg.(*ServerError)
	require.True(t, ok)
	require.ErrorContains(t, se, "lobby not found")
}

func TestSubmitAnswerOmitsEmptyFields(t *testing.T) {
	idx := 2
	data, err := json.Marshal(SubmitAnswerMessage{
		Envelope:      Envelope{Action: "submitAnswer", GameID: "g", ClientID: "c"},
		AnswerIndex:   &idx,
		QuestionIndex: 0,
	})
	require.NoError(t, err)
	require.NotContains(t, string(data), "answer\":")
	require.Contains(t, string(data), `"answerIndex":2`)
}
