package games

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/partyline/client"
)

// MathDash is the arithmetic game: a flat base for a correct answer
// plus a bonus that shrinks the longer the answer takes.
type MathDash struct{}

func (MathDash) Type() string     { return "mathdash" }
func (MathDash) Name() string     { return "Math Dash" }
func (MathDash) MinPlayers() int  { return 1 }
func (MathDash) Phases() []string { return []string{"problem", "scoring", "results"} }

const (
	// mathBase is the flat score for a correct answer.
	mathBase = 5
	// mathBonusWindow bounds the latency bonus: a correct answer
	// earns one extra point per full second of the window left.
	mathBonusWindow = 10 * time.Second
)

type MathProblem struct {
	Prompt string `json:"prompt"`
	Answer int    `json:"answer"`
}

type MathContent struct {
	Problems []MathProblem `json:"problems"`
	// TimeLimit is seconds per problem before the host folds the
	// round with whatever answers arrived. Zero means 30.
	TimeLimit int `json:"timeLimit,omitempty"`
}

// MathAnswer is one participant's numeric submission with the latency
// from problem broadcast to answer receipt, as measured by the host.
type MathAnswer struct {
	Value   int
	Latency time.Duration
}

// ScoreMathRound folds one problem: a correct value scores the flat
// base plus the remaining-window bonus, an incorrect one scores zero.
// Absent participants keep their prior totals and nothing subtracts.
func ScoreMathRound(prev client.ScoreBoard, answers map[string]MathAnswer, problem MathProblem, players []client.Player, excluded string) client.ScoreBoard {
	out := prev.Clone()
	for _, p := range players {
		if p.ClientID == excluded {
			continue
		}
		a, ok := answers[p.ClientID]
		if !ok || a.Value != problem.Answer {
			continue
		}
		bonus := int((mathBonusWindow - a.Latency) / time.Second)
		if bonus < 0 {
			bonus = 0
		}
		out[p.ClientID] += mathBase + bonus
	}
	return out
}

func (MathDash) Mount(rt Runtime) client.Handler {
	return &mathHandler{rt: rt}
}

type mathHandler struct {
	rt Runtime

	mu         sync.Mutex
	problems   []MathProblem
	index      int
	roundStart time.Time
	answers    map[string]MathAnswer
	limit      time.Duration
	timer      *time.Timer
}

func (h *mathHandler) Handle(msg client.Inbound) bool {
	switch m := msg.(type) {
	case *client.GameStarted:
		if m.GameType != "mathdash" {
			return false
		}
		var content MathContent
		if err := json.Unmarshal(m.Content, &content); err != nil {
			h.rt.Log.Warnw("bad mathdash content", "error", err)
			return true
		}
		h.mu.Lock()
		h.problems = content.Problems
		h.index = 0
		h.roundStart = time.Now()
		h.answers = make(map[string]MathAnswer)
		h.limit = time.Duration(content.TimeLimit) * time.Second
		if h.limit <= 0 {
			h.limit = 30 * time.Second
		}
		h.mu.Unlock()
		_ = h.rt.Session.Phase().SetInner("problem")
		h.armRound(0)
		return true

	case *client.NextQuestion:
		h.mu.Lock()
		h.index = m.QuestionIndex
		h.roundStart = time.Now()
		h.answers = make(map[string]MathAnswer)
		h.mu.Unlock()
		_ = h.rt.Session.Phase().SetInner("problem")
		h.armRound(m.QuestionIndex)
		return true

	case *client.AnswerSubmitted:
		return h.handleAnswer(m)

	case *client.QuestionResult:
		_ = h.rt.Session.Phase().SetInner("results")
		return true

	case *client.GameFinished:
		h.stopTimer()
		return true
	}

	return false
}

// armRound schedules a host-side fold for the problem so a silent
// player cannot stall the dash.
func (h *mathHandler) armRound(index int) {
	if h.rt.Session.Role() != client.RoleHost {
		return
	}
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.limit, func() { h.finishRound(index) })
	h.mu.Unlock()
}

func (h *mathHandler) stopTimer() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
}

func (h *mathHandler) handleAnswer(m *client.AnswerSubmitted) bool {
	if h.rt.Session.Role() != client.RoleHost {
		return true
	}

	value, err := strconv.Atoi(strings.TrimSpace(m.Answer))
	if err != nil {
		// An unparsable answer still counts as submitted, it just
		// cannot be correct.
		value = int(^uint(0) >> 1)
	}

	expected := 0
	for _, p := range h.rt.Session.Players() {
		if p.ClientID != h.rt.Session.ClientID() {
			expected++
		}
	}

	h.mu.Lock()
	if m.QuestionIndex != h.index || h.index >= len(h.problems) {
		h.mu.Unlock()
		return true
	}
	if h.answers == nil {
		h.answers = make(map[string]MathAnswer)
	}
	h.answers[m.ClientID] = MathAnswer{
		Value:   value,
		Latency: time.Since(h.roundStart),
	}
	complete := expected > 0 && len(h.answers) >= expected
	index := h.index
	h.mu.Unlock()

	if complete {
		h.finishRound(index)
	}
	return true
}

// finishRound folds the problem's answers and broadcasts the result.
// Both the last-answer path and the timer path land here; advancing
// the index under the lock makes them fold at most once.
func (h *mathHandler) finishRound(index int) {
	h.mu.Lock()
	if index != h.index || h.index >= len(h.problems) {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	answers := h.answers
	problem := h.problems[h.index]
	last := h.index == len(h.problems)-1
	next := h.index + 1
	h.answers = make(map[string]MathAnswer)
	h.index = next
	h.roundStart = time.Now()
	h.mu.Unlock()

	_ = h.rt.Session.Phase().SetInner("scoring")

	players := h.rt.Session.Players()
	scores := ScoreMathRound(h.rt.Session.Scores(), answers, problem, players, h.rt.Session.ClientID())

	if err := h.rt.Conn.Send(client.QuestionResultMessage{
		Envelope: h.rt.Session.Envelope("questionResult"),
		Scores:   scores,
		Players:  players,
	}); err != nil {
		h.rt.Log.Errorw("broadcast problem result", "error", err)
		return
	}

	if last {
		err := h.rt.Conn.Send(client.GameFinishedMessage{
			Envelope:    h.rt.Session.Envelope("gameFinished"),
			FinalScores: scores,
			Players:     players,
		})
		if err != nil {
			h.rt.Log.Errorw("broadcast game finished", "error", err)
		}
		return
	}

	if err := h.rt.Conn.Send(client.NextQuestionMessage{
		Envelope:      h.rt.Session.Envelope("nextQuestion"),
		QuestionIndex: next,
	}); err != nil {
		h.rt.Log.Errorw("broadcast next problem", "error", err)
	}
}

// Submit sends this participant's numeric answer for the current
// problem.
func (h *mathHandler) Submit(answer string) error {
	h.mu.Lock()
	index := h.index
	h.mu.Unlock()

	return h.rt.Conn.Send(client.SubmitAnswerMessage{
		Envelope:      h.rt.Session.Envelope("submitAnswer"),
		Answer:        answer,
		QuestionIndex: index,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// SubmitText submits the line as this problem's answer.
func (h *mathHandler) SubmitText(text string) error {
	return h.Submit(strings.TrimSpace(text))
}

// PromptText renders the current problem.
func (h *mathHandler) PromptText() string {
	p, _, ok := h.CurrentProblem()
	if !ok {
		return ""
	}
	return p.Prompt + " = ?"
}

// CurrentProblem returns the active problem, if any.
func (h *mathHandler) CurrentProblem() (MathProblem, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 || h.index >= len(h.problems) {
		return MathProblem{}, h.index, false
	}
	return h.problems[h.index], h.index, true
}
