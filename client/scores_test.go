package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreBoardMergeOnlyRaises(t *testing.T) {
	b := ScoreBoard{"a": 3, "b": 1}

	b.Merge(map[string]int{"a": 5, "b": 0, "c": 2})

	require.Equal(t, ScoreBoard{"a": 5, "b": 1, "c": 2}, b)

	// A stale snapshot after a reconnect must not lower anything.
	b.Merge(map[string]int{"a": 2, "c": 1})
	require.Equal(t, ScoreBoard{"a": 5, "b": 1, "c": 2}, b)
}

func TestScoreBoardClone(t *testing.T) {
	b := ScoreBoard{"a": 1}
	c := b.Clone()
	c["a"] = 9
	require.Equal(t, 1, b["a"])
}

func TestFindTied(t *testing.T) {
	require.Nil(t, FindTied(nil))
	require.Nil(t, FindTied(map[string]int{}))
	require.Nil(t, FindTied(map[string]int{"a": 3}))
	require.Nil(t, FindTied(map[string]int{"a": 3, "b": 2}))

	require.Equal(t, []string{"a", "b"}, FindTied(map[string]int{"a": 3, "b": 3, "c": 1}))
	require.Equal(t, []string{"a", "b", "c"}, FindTied(map[string]int{"a": 2, "b": 2, "c": 2}))

	// Ties below the maximum are not ties.
	require.Nil(t, FindTied(map[string]int{"a": 5, "b": 2, "c": 2}))
}
