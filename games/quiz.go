package games

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/partyline/client"
)

// Quiz is option-index trivia: the host broadcasts questions, players
// pick an option, one point per correct pick.
type Quiz struct{}

func (Quiz) Type() string     { return "quiz" }
func (Quiz) Name() string     { return "Quiz" }
func (Quiz) MinPlayers() int  { return 1 }
func (Quiz) Phases() []string { return []string{"question", "scoring", "results"} }

type QuizQuestion struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

type QuizContent struct {
	Questions []QuizQuestion `json:"questions"`
	// TimeLimit is seconds per question before the host folds the
	// round with whatever answers arrived. Zero means 30.
	TimeLimit int `json:"timeLimit,omitempty"`
}

// ScoreQuiz folds one question's submitted option indexes into an
// updated score table: one point per participant whose index matches
// the correct one. Every listed player except the excluded id gets an
// explicit entry, so the board stays stable for display ordering even
// when someone never submitted. Prior totals of absent participants
// are untouched and nothing ever subtracts.
func ScoreQuiz(prev client.ScoreBoard, answers map[string]int, correctIndex int, players []client.Player, excluded string) client.ScoreBoard {
	out := prev.Clone()
	for _, p := range players {
		if p.ClientID == excluded {
			continue
		}
		if _, ok := out[p.ClientID]; !ok {
			out[p.ClientID] = 0
		}
		if idx, ok := answers[p.ClientID]; ok && idx == correctIndex {
			out[p.ClientID]++
		}
	}
	return out
}

func (Quiz) Mount(rt Runtime) client.Handler {
	return &quizHandler{rt: rt}
}

type quizHandler struct {
	rt Runtime

	mu        sync.Mutex
	questions []QuizQuestion
	index     int
	answers   map[string]int
	limit     time.Duration
	timer     *time.Timer
}

func (h *quizHandler) Handle(msg client.Inbound) bool {
	switch m := msg.(type) {
	case *client.GameStarted:
		if m.GameType != "quiz" {
			return false
		}
		var content QuizContent
		if err := json.Unmarshal(m.Content, &content); err != nil {
			h.rt.Log.Warnw("bad quiz content", "error", err)
			return true
		}
		h.mu.Lock()
		h.questions = content.Questions
		h.index = 0
		h.answers = make(map[string]int)
		h.limit = time.Duration(content.TimeLimit) * time.Second
		if h.limit <= 0 {
			h.limit = 30 * time.Second
		}
		h.mu.Unlock()
		if err := h.rt.Session.Phase().SetInner("question"); err != nil {
			h.rt.Log.Warnw("quiz phase", "error", err)
		}
		h.armRound(0)
		return true

	case *client.NextQuestion:
		h.mu.Lock()
		h.index = m.QuestionIndex
		h.answers = make(map[string]int)
		h.mu.Unlock()
		_ = h.rt.Session.Phase().SetInner("question")
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

// armRound schedules a host-side fold for the round so a silent
// player cannot stall the game past the time limit.
func (h *quizHandler) armRound(index int) {
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

func (h *quizHandler) stopTimer() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
}

// handleAnswer runs on the host, which is where answers are relayed.
// Once every non-host player has answered the current question, the
// host folds the batch and broadcasts the authoritative result.
func (h *quizHandler) handleAnswer(m *client.AnswerSubmitted) bool {
	if h.rt.Session.Role() != client.RoleHost || m.AnswerIndex == nil {
		return true
	}

	expected := 0
	for _, p := range h.rt.Session.Players() {
		if p.ClientID != h.rt.Session.ClientID() {
			expected++
		}
	}

	h.mu.Lock()
	if m.QuestionIndex != h.index || h.index >= len(h.questions) {
		h.mu.Unlock()
		return true
	}
	if h.answers == nil {
		h.answers = make(map[string]int)
	}
	h.answers[m.ClientID] = *m.AnswerIndex
	complete := expected > 0 && len(h.answers) >= expected
	index := h.index
	h.mu.Unlock()

	if complete {
		h.finishRound(index)
	}
	return true
}

// finishRound folds whatever answers arrived for the given question
// and broadcasts the authoritative result. It runs when the last
// answer lands or when the round timer fires, whichever comes first;
// advancing the index under the lock makes the two paths fold at
// most once.
func (h *quizHandler) finishRound(index int) {
	h.mu.Lock()
	if index != h.index || h.index >= len(h.questions) {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	answers := h.answers
	correct := h.questions[h.index].CorrectIndex
	last := h.index == len(h.questions)-1
	next := h.index + 1
	h.answers = make(map[string]int)
	h.index = next
	h.mu.Unlock()

	_ = h.rt.Session.Phase().SetInner("scoring")

	players := h.rt.Session.Players()
	scores := ScoreQuiz(h.rt.Session.Scores(), answers, correct, players, h.rt.Session.ClientID())

	if err := h.rt.Conn.Send(client.QuestionResultMessage{
		Envelope: h.rt.Session.Envelope("questionResult"),
		Scores:   scores,
		Players:  players,
	}); err != nil {
		h.rt.Log.Errorw("broadcast question result", "error", err)
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
		h.rt.Log.Errorw("broadcast next question", "error", err)
	}
}

// Submit sends this participant's option pick for the current
// question.
func (h *quizHandler) Submit(answerIndex int) error {
	h.mu.Lock()
	index := h.index
	h.mu.Unlock()

	return h.rt.Conn.Send(client.SubmitAnswerMessage{
		Envelope:      h.rt.Session.Envelope("submitAnswer"),
		AnswerIndex:   &answerIndex,
		QuestionIndex: index,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// SubmitText accepts a 1-based option number.
func (h *quizHandler) SubmitText(text string) error {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("enter an option number: %w", err)
	}
	return h.Submit(n - 1)
}

// PromptText renders the current question with numbered options.
func (h *quizHandler) PromptText() string {
	q, _, ok := h.Current()
	if !ok {
		return ""
	}
	var b strings.Builder
	b.WriteString(q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "\n  %d) %s", i+1, opt)
	}
	return b.String()
}

// Current returns the question the handler believes is active.
func (h *quizHandler) Current() (QuizQuestion, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 || h.index >= len(h.questions) {
		return QuizQuestion{}, h.index, false
	}
	return h.questions[h.index], h.index, true
}
