package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPickWinnerRange(t *testing.T) {
	require.Equal(t, 0, pickWinner(0))
	require.Equal(t, 0, pickWinner(1))

	for i := 0; i < 200; i++ {
		w := pickWinner(5)
		require.GreaterOrEqual(t, w, 0)
		require.Less(t, w, 5)
	}
}

func TestHighlightScheduleShape(t *testing.T) {
	for _, n := range []int{2, 3, 4, 10} {
		total := 4 * time.Second
		delays := highlightSchedule(n, total)

		want := 4 * n
		if want < 16 {
			want = 16
		}
		require.Len(t, delays, want)

		var sum time.Duration
		for _, d := range delays {
			require.Greater(t, d, time.Duration(0))
			sum += d
		}
		// Truncation loses at most a nanosecond per step.
		require.InDelta(t, float64(total), float64(sum), float64(len(delays)))

		// The cycle decelerates toward the end: the last delay is the
		// longest in the back half.
		require.GreaterOrEqual(t, delays[len(delays)-1], delays[len(delays)/2])
	}
}

func TestHighlightScheduleDurationIndependentOfTieSize(t *testing.T) {
	total := 2 * time.Second
	sum := func(delays []time.Duration) time.Duration {
		var s time.Duration
		for _, d := range delays {
			s += d
		}
		return s
	}
	a := sum(highlightSchedule(2, total))
	b := sum(highlightSchedule(8, total))
	require.InDelta(t, float64(a), float64(b), float64(64))
}

func TestTieBreakerRunBroadcastsWinner(t *testing.T) {
	tb := NewTieBreaker(50*time.Millisecond, zap.NewNop().Sugar())
	tied := []string{"a", "b", "c"}

	var highlights []string
	done := make(chan string, 1)
	tb.Run(tied,
		func(clientID string) { highlights = append(highlights, clientID) },
		func(winnerID string) { done <- winnerID },
	)

	select {
	case winner := <-done:
		require.Contains(t, tied, winner)
		require.NotEmpty(t, highlights)
		// The animation lands on the winner.
		require.Equal(t, winner, highlights[len(highlights)-1])
	case <-time.After(5 * time.Second):
		t.Fatal("tie breaker never broadcast")
	}
}

func TestTieBreakerSingleEntryNoOp(t *testing.T) {
	tb := NewTieBreaker(10*time.Millisecond, zap.NewNop().Sugar())
	done := make(chan string, 1)
	tb.Run([]string{"a"}, nil, func(winnerID string) { done <- winnerID })

	select {
	case <-done:
		t.Fatal("single entry is not a tie")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTieBreakerCancel(t *testing.T) {
	tb := NewTieBreaker(100*time.Millisecond, zap.NewNop().Sugar())
	done := make(chan string, 1)
	tb.Run([]string{"a", "b"}, nil, func(winnerID string) { done <- winnerID })
	tb.Cancel()
	tb.Cancel() // idempotent

	select {
	case <-done:
		t.Fatal("cancelled tie breaker still broadcast")
	case <-time.After(300 * time.Millisecond):
	}
}
