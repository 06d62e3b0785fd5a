package client

import (
	"crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type TieStage string

const (
	TieNone          TieStage = "none"
	TieBreaking      TieStage = "breaking"
	TieResolvedStage TieStage = "resolved"
)

// TieBreakerState mirrors the synchronized tie-break procedure. The
// winner is set exactly once, by the host, and broadcast; everyone
// else treats it as read-only.
type TieBreakerState struct {
	Stage         TieStage
	TiedPlayerIDs []string
	WinnerID      string
}

func (t TieBreakerState) clone() TieBreakerState {
	t.TiedPlayerIDs = append([]string(nil), t.TiedPlayerIDs...)
	if t.Stage == "" {
		t.Stage = TieNone
	}
	return t
}

// pickWinner selects a uniformly random index among n tied entries.
func pickWinner(n int) int {
	if n <= 1 {
		return 0
	}
	// Rejection sampling over crypto/rand bytes avoids modulo bias.
	limit := 256 - (256 % n)
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0
		}
		if int(b[0]) < limit {
			return int(b[0]) % n
		}
	}
}

// highlightSchedule computes the full delay sequence for the animated
// selection up front: the cycle accelerates toward the middle and
// decelerates toward the end, and the delays always sum to total, so
// the animation length is stable regardless of how many ids are tied.
func highlightSchedule(tiedCount int, total time.Duration) []time.Duration {
	steps := 4 * tiedCount
	if steps < 16 {
		steps = 16
	}

	weights := make([]float64, steps)
	var sum float64
	for i := range weights {
		// u sweeps -1..1; u^2 makes the edges slow and the middle fast.
		u := 2*float64(i)/float64(steps-1) - 1
		weights[i] = 0.15 + 0.85*u*u
		sum += weights[i]
	}

	delays := make([]time.Duration, steps)
	for i, w := range weights {
		delays[i] = time.Duration(float64(total) * w / sum)
	}
	return delays
}

// TieBreaker runs the host side of the tie resolution protocol:
// pre-select a winner, animate the highlight cycle for at least the
// configured duration, and only then broadcast the result. Non-host
// participants never construct one; they converge on the broadcast.
type TieBreaker struct {
	log      *zap.SugaredLogger
	duration time.Duration

	mu        sync.Mutex
	cancel    chan struct{}
	running   bool
	cancelled bool
}

func NewTieBreaker(duration time.Duration, log *zap.SugaredLogger) *TieBreaker {
	if duration <= 0 {
		duration = 4 * time.Second
	}
	return &TieBreaker{log: log, duration: duration}
}

// Run animates through the tied ids and invokes broadcast with the
// pre-selected winner once the schedule completes. onHighlight may be
// nil. Run returns immediately; the animation proceeds on its own
// timer-driven goroutine and is abandoned by Cancel.
func (t *TieBreaker) Run(tied []string, onHighlight func(clientID string), broadcast func(winnerID string)) {
	if len(tied) < 2 {
		return
	}

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.cancelled = false
	t.cancel = make(chan struct{})
	cancel := t.cancel
	t.mu.Unlock()

	winnerIdx := pickWinner(len(tied))
	schedule := highlightSchedule(len(tied), t.duration)

	// Rotate the cycle so the last highlighted id is the winner.
	offset := (winnerIdx - (len(schedule) - 1)) % len(tied)
	if offset < 0 {
		offset += len(tied)
	}

	t.log.Infow("tie break started", "tied", len(tied), "steps", len(schedule))

	go func() {
		timer := time.NewTimer(0)
		defer timer.Stop()
		if !timer.Stop() {
			<-timer.C
		}

		for i, delay := range schedule {
			timer.Reset(delay)
			select {
			case <-cancel:
				return
			case <-timer.C:
			}
			if onHighlight != nil {
				onHighlight(tied[(offset+i)%len(tied)])
			}
		}

		t.mu.Lock()
		done := t.cancelled
		t.running = false
		t.mu.Unlock()
		if done {
			return
		}

		broadcast(tied[winnerIdx])
	}()
}

// Cancel abandons a pending animation so a late timer callback cannot
// mutate a torn-down session. Idempotent.
func (t *TieBreaker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil && !t.cancelled {
		t.cancelled = true
		close(t.cancel)
	}
	t.running = false
}
