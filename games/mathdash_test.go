package games

import (
	"testing"
	"time"

	"github.com/Seednode/partyline/client"
	"github.com/stretchr/testify/require"
)

var mathPlayers = []client.Player{
	{ClientID: "host", DisplayName: "Host"},
	{ClientID: "p1", DisplayName: "alice"},
	{ClientID: "p2", DisplayName: "bob"},
}

var twelveProblem = MathProblem{Prompt: "3 x 4", Answer: 12}

func TestScoreMathRoundCorrectWithBonus(t *testing.T) {
	out := ScoreMathRound(client.ScoreBoard{}, map[string]MathAnswer{
		"p1": {Value: 12, Latency: 2500 * time.Millisecond},
		"p2": {Value: 12, Latency: 9900 * time.Millisecond},
	}, twelveProblem, mathPlayers, "host")

	require.Equal(t, mathBase+7, out["p1"]) // 7 full seconds of window left
	require.Equal(t, mathBase, out["p2"])   // window nearly gone
}

func TestScoreMathRoundIncorrectScoresZero(t *testing.T) {
	prev := client.ScoreBoard{"p1": 11}
	out := ScoreMathRound(prev, map[string]MathAnswer{
		"p1": {Value: 13, Latency: time.Second},
	}, twelveProblem, mathPlayers, "host")

	require.Equal(t, 11, out["p1"])
}

func TestScoreMathRoundBonusNeverNegative(t *testing.T) {
	out := ScoreMathRound(client.ScoreBoard{}, map[string]MathAnswer{
		"p1": {Value: 12, Latency: 25 * time.Second},
	}, twelveProblem, mathPlayers, "host")

	require.Equal(t, mathBase, out["p1"])
}

func TestScoreMathRoundHostExcluded(t *testing.T) {
	out := ScoreMathRound(client.ScoreBoard{}, map[string]MathAnswer{
		"host": {Value: 12, Latency: time.Second},
	}, twelveProblem, mathPlayers, "host")

	require.Empty(t, out)
}

func TestScoreMathRoundAbsentKeepTotals(t *testing.T) {
	prev := client.ScoreBoard{"p2": 20}
	out := ScoreMathRound(prev, map[string]MathAnswer{
		"p1": {Value: 12, Latency: time.Second},
	}, twelveProblem, mathPlayers, "host")

	require.Equal(t, 20, out["p2"])
}

func TestMathHandlerPrompt(t *testing.T) {
	rt := testRuntime(client.RolePlayer)
	h := MathDash{}.Mount(rt).(*mathHandler)

	require.Empty(t, h.PromptText())

	require.NoError(t, rt.Session.Phase().StartReceived("mathdash"))
	require.True(t, h.Handle(&client.GameStarted{
		GameType: "mathdash",
		Content:  []byte(`{"problems":[{"prompt":"3 x 4","answer":12}]}`),
	}))

	require.Equal(t, "3 x 4 = ?", h.PromptText())
	require.Equal(t, "problem", rt.Session.Phase().Inner())
}
