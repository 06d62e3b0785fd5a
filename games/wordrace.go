package games

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/partyline/client"
)

// WordRace is the word-category game: each round names a category,
// players race to submit a valid word, and unique answers beat
// duplicated ones.
type WordRace struct{}

func (WordRace) Type() string     { return "wordrace" }
func (WordRace) Name() string     { return "Word Race" }
func (WordRace) MinPlayers() int  { return 2 }
func (WordRace) Phases() []string { return []string{"category-reveal", "input", "scoring", "results"} }

type WordRound struct {
	Category  string   `json:"category"`
	Valid     []string `json:"valid"`
	TimeLimit int      `json:"timeLimit"` // seconds
}

type WordContent struct {
	Rounds []WordRound `json:"rounds"`
}

// WordAnswer is one participant's submission with the elapsed time
// since the round was broadcast, as measured by the host.
type WordAnswer struct {
	Word           string
	SecondsElapsed int
}

// ScoreWordRound folds one round: a valid word unique in the batch
// scores 3, a valid word duplicated by another participant scores 1,
// anything invalid or blank scores 0. A non-zero base earns a speed
// bonus of floor((timeLimit - elapsed)/3), clamped so it never goes
// negative. Absent participants keep their prior totals.
func ScoreWordRound(prev client.ScoreBoard, answers map[string]WordAnswer, round WordRound, players []client.Player, excluded string) client.ScoreBoard {
	valid := make(map[string]bool, len(round.Valid))
	for _, w := range round.Valid {
		valid[normalizeWord(w)] = true
	}

	counts := make(map[string]int, len(answers))
	for id, a := range answers {
		if id == excluded {
			continue
		}
		counts[normalizeWord(a.Word)]++
	}

	out := prev.Clone()
	for _, p := range players {
		if p.ClientID == excluded {
			continue
		}
		a, ok := answers[p.ClientID]
		if !ok {
			continue
		}
		word := normalizeWord(a.Word)

		base := 0
		switch {
		case word == "" || !valid[word]:
			base = 0
		case counts[word] == 1:
			base = 3
		default:
			base = 1
		}
		if base == 0 {
			continue
		}

		bonus := (round.TimeLimit - a.SecondsElapsed) / 3
		if bonus < 0 {
			bonus = 0
		}
		out[p.ClientID] += base + bonus
	}
	return out
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

func (WordRace) Mount(rt Runtime) client.Handler {
	return &wordHandler{rt: rt}
}

type wordHandler struct {
	rt Runtime

	mu         sync.Mutex
	rounds     []WordRound
	index      int
	roundStart time.Time
	answers    map[string]WordAnswer
	timer      *time.Timer
}

func (h *wordHandler) Handle(msg client.Inbound) bool {
	switch m := msg.(type) {
	case *client.GameStarted:
		if m.GameType != "wordrace" {
			return false
		}
		var content WordContent
		if err := json.Unmarshal(m.Content, &content); err != nil {
			h.rt.Log.Warnw("bad wordrace content", "error", err)
			return true
		}
		h.mu.Lock()
		h.rounds = content.Rounds
		h.index = 0
		h.roundStart = time.Now()
		h.answers = make(map[string]WordAnswer)
		h.mu.Unlock()
		_ = h.rt.Session.Phase().SetInner("category-reveal")
		h.armRound(0)
		return true

	case *client.NextQuestion:
		h.mu.Lock()
		h.index = m.QuestionIndex
		h.roundStart = time.Now()
		h.answers = make(map[string]WordAnswer)
		h.mu.Unlock()
		_ = h.rt.Session.Phase().SetInner("input")
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

// armRound schedules a host-side fold at the round's own time limit,
// so a silent player cannot stall the race.
func (h *wordHandler) armRound(index int) {
	if h.rt.Session.Role() != client.RoleHost {
		return
	}
	h.mu.Lock()
	if index >= len(h.rounds) {
		h.mu.Unlock()
		return
	}
	limit := time.Duration(h.rounds[index].TimeLimit) * time.Second
	if limit <= 0 {
		limit = 30 * time.Second
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(limit, func() { h.finishRound(index) })
	h.mu.Unlock()
}

func (h *wordHandler) stopTimer() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
}

func (h *wordHandler) handleAnswer(m *client.AnswerSubmitted) bool {
	if h.rt.Session.Role() != client.RoleHost {
		return true
	}

	expected := 0
	for _, p := range h.rt.Session.Players() {
		if p.ClientID != h.rt.Session.ClientID() {
			expected++
		}
	}

	h.mu.Lock()
	if m.QuestionIndex != h.index || h.index >= len(h.rounds) {
		h.mu.Unlock()
		return true
	}
	if h.answers == nil {
		h.answers = make(map[string]WordAnswer)
	}
	h.answers[m.ClientID] = WordAnswer{
		Word:           m.Answer,
		SecondsElapsed: int(time.Since(h.roundStart).Seconds()),
	}
	complete := expected > 0 && len(h.answers) >= expected
	index := h.index
	h.mu.Unlock()

	if complete {
		h.finishRound(index)
	}
	return true
}

// finishRound folds the round's answers and broadcasts the result.
// Both the last-answer path and the timer path land here; advancing
// the index under the lock makes them fold at most once.
func (h *wordHandler) finishRound(index int) {
	h.mu.Lock()
	if index != h.index || h.index >= len(h.rounds) {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	answers := h.answers
	round := h.rounds[h.index]
	last := h.index == len(h.rounds)-1
	next := h.index + 1
	h.answers = make(map[string]WordAnswer)
	h.index = next
	h.roundStart = time.Now()
	h.mu.Unlock()

	_ = h.rt.Session.Phase().SetInner("scoring")

	players := h.rt.Session.Players()
	scores := ScoreWordRound(h.rt.Session.Scores(), answers, round, players, h.rt.Session.ClientID())

	if err := h.rt.Conn.Send(client.QuestionResultMessage{
		Envelope: h.rt.Session.Envelope("questionResult"),
		Scores:   scores,
		Players:  players,
	}); err != nil {
		h.rt.Log.Errorw("broadcast round result", "error", err)
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
		h.rt.Log.Errorw("broadcast next round", "error", err)
	}
}

// Submit sends this participant's word for the current round.
func (h *wordHandler) Submit(word string) error {
	h.mu.Lock()
	index := h.index
	h.mu.Unlock()

	return h.rt.Conn.Send(client.SubmitAnswerMessage{
		Envelope:      h.rt.Session.Envelope("submitAnswer"),
		Answer:        word,
		QuestionIndex: index,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// SubmitText submits the line as this round's word.
func (h *wordHandler) SubmitText(text string) error {
	return h.Submit(strings.TrimSpace(text))
}

// PromptText renders the current category and time limit.
func (h *wordHandler) PromptText() string {
	round, _, ok := h.CurrentRound()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Category: %s (%ds to answer)", round.Category, round.TimeLimit)
}

// CurrentRound returns the active round, if any.
func (h *wordHandler) CurrentRound() (WordRound, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 || h.index >= len(h.rounds) {
		return WordRound{}, h.index, false
	}
	return h.rounds[h.index], h.index, true
}
