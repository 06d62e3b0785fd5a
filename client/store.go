package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// StateStore persists the only two things that survive a client
// restart: an auth token with its expiry, and per-lobby auto-join
// markers. Game state is never persisted; a restart always begins a
// fresh session.
type StateStore struct {
	mu   sync.Mutex
	path string
}

type storedState struct {
	Token      Token           `json:"token"`
	AutoJoined map[string]bool `json:"autoJoined,omitempty"`
}

func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &StateStore{path: filepath.Join(dir, "state.json")}, nil
}

func (s *StateStore) load() (storedState, error) {
	var st storedState
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt state file is discarded, not fatal.
		return storedState{}, nil
	}
	return st, nil
}

func (s *StateStore) save(st storedState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// SaveToken stores the token for reuse until it expires.
func (s *StateStore) SaveToken(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	st.Token = tok
	return s.save(st)
}

// LoadToken returns the stored token, if present and unexpired.
func (s *StateStore) LoadToken() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil || !st.Token.Valid() {
		return Token{}, false
	}
	return st.Token, true
}

// MarkAutoJoined records that this client already auto-joined the
// given lobby, so a restart does not re-announce.
func (s *StateStore) MarkAutoJoined(gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	if st.AutoJoined == nil {
		st.AutoJoined = make(map[string]bool)
	}
	st.AutoJoined[gameID] = true
	return s.save(st)
}

func (s *StateStore) AutoJoined(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return false
	}
	return st.AutoJoined[gameID]
}

// Clear wipes persisted state, used when a token is rejected and the
// user must re-authenticate.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
