package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API wraps the small set of request/response HTTP collaborators used
// for setup. Every call is single-shot: retry, where it exists at
// all, lives in the connection manager's reconnect loop, never here.
type API struct {
	base string
	http *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		base: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// LobbyInfo describes a lobby before joining it.
type LobbyInfo struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
}

// CreateLobby asks the server for a fresh session identifier.
func (a *API) CreateLobby(ctx context.Context, gameType string) (LobbyInfo, error) {
	var out LobbyInfo
	err := a.do(ctx, http.MethodPost, "/lobby", map[string]string{"gameType": gameType}, &out)
	return out, err
}

// Lobby fetches the game type for a session identifier before joining.
func (a *API) Lobby(ctx context.Context, gameID string) (LobbyInfo, error) {
	var out LobbyInfo
	err := a.do(ctx, http.MethodGet, "/lobby/"+gameID, nil, &out)
	return out, err
}

// FetchContent retrieves the precomputed content payload (question
// sets and the like) for a lobby. The payload shape belongs to the
// game module, so it stays raw here.
func (a *API) FetchContent(ctx context.Context, gameID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := a.do(ctx, http.MethodGet, "/lobby/"+gameID+"/questions", nil, &out)
	return out, err
}

// HostToken requests an authoritative token for the lobby creator.
func (a *API) HostToken(ctx context.Context, gameID string) (Token, error) {
	var out Token
	err := a.do(ctx, http.MethodPost, "/lobby/"+gameID+"/token",
		map[string]string{"role": string(RoleHost)}, &out)
	return out, err
}

// GuestToken requests a player token for joining the lobby.
func (a *API) GuestToken(ctx context.Context, gameID, playerName string) (Token, error) {
	var out Token
	err := a.do(ctx, http.MethodPost, "/lobby/"+gameID+"/token",
		map[string]string{"role": string(RolePlayer), "playerName": playerName}, &out)
	return out, err
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
