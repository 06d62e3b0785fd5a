package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateStoreTokenRoundtrip(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	_, ok := store.LoadToken()
	require.False(t, ok)

	tok := Token{Value: "tok-abc", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.SaveToken(tok))

	got, ok := store.LoadToken()
	require.True(t, ok)
	require.Equal(t, tok.Value, got.Value)
	require.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestStateStoreExpiredTokenNotReturned(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveToken(Token{Value: "tok-old", ExpiresAt: time.Now().Add(-time.Minute)}))

	_, ok := store.LoadToken()
	require.False(t, ok)
}

func TestStateStoreAutoJoinMarkers(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	require.False(t, store.AutoJoined("abc12345"))
	require.NoError(t, store.MarkAutoJoined("abc12345"))
	require.True(t, store.AutoJoined("abc12345"))
	require.False(t, store.AutoJoined("other123"))

	// Markers and token live in the same file without clobbering.
	require.NoError(t, store.SaveToken(Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	require.True(t, store.AutoJoined("abc12345"))
}

func TestStateStoreCorruptFileDiscarded(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o600))

	_, ok := store.LoadToken()
	require.False(t, ok)

	// Still writable afterwards.
	require.NoError(t, store.SaveToken(Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	_, ok = store.LoadToken()
	require.True(t, ok)
}

func TestStateStoreClear(t *testing.T) {
	store, err := NewStateStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Clear()) // nothing persisted yet

	require.NoError(t, store.SaveToken(Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Clear())

	_, ok := store.LoadToken()
	require.False(t, ok)
}
