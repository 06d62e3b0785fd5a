package client

import "sort"

// ScoreBoard maps clientId to a non-negative running total. Totals
// are monotonically non-decreasing within a session except on
// explicit reset; the host's own client id never appears.
type ScoreBoard map[string]int

func (b ScoreBoard) Clone() ScoreBoard {
	out := make(ScoreBoard, len(b))
	for id, v := range b {
		out[id] = v
	}
	return out
}

// Merge folds a server-asserted score snapshot into the board. An
// update can only raise a total, which keeps the board monotonic even
// if a stale broadcast arrives after a reconnect.
func (b ScoreBoard) Merge(updates map[string]int) {
	for id, v := range updates {
		if v > b[id] {
			b[id] = v
		}
	}
}

// FindTied returns the client ids sharing the strictly maximal score,
// but only when at least two of them do; a single leader returns nil.
func FindTied(scores map[string]int) []string {
	if len(scores) == 0 {
		return nil
	}

	max := 0
	first := true
	for _, v := range scores {
		if first || v > max {
			max = v
			first = false
		}
	}

	var tied []string
	for id, v := range scores {
		if v == max {
			tied = append(tied, id)
		}
	}
	if len(tied) < 2 {
		return nil
	}
	sort.Strings(tied)
	return tied
}
