package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Seednode/partyline/client"
	"github.com/Seednode/partyline/games"
	"go.uber.org/zap"
)

// participant wires one session's core components together.
type participant struct {
	session *client.Session
	router  *client.Router
	conn    *client.Conn
	core    *client.Core
	reg     *games.Registry
	rt      games.Runtime
	log     *zap.SugaredLogger
}

func newParticipant(cfg *Config, gameID string, log *zap.SugaredLogger) *participant {
	reg := games.Default()
	session := client.NewSession(reg, log)
	router := client.NewRouter()
	conn := client.NewConn(client.ConnConfig{
		URL:           wsURL(cfg.server, gameID),
		ReconnectBase: cfg.reconnectBase,
		ReconnectCap:  cfg.reconnectCap,
		MaxReconnects: cfg.reconnectMax,
	}, session, router, log)
	tb := client.NewTieBreaker(cfg.tieBreakFor, log)
	core := client.NewCore(session, conn, tb, log)
	router.BindCore(core)

	return &participant{
		session: session,
		router:  router,
		conn:    conn,
		core:    core,
		reg:     reg,
		rt:      games.Runtime{Session: session, Conn: conn, Router: router, Log: log},
		log:     log,
	}
}

// wsURL maps the http(s) server base to the lobby's ws(s) endpoint.
func wsURL(server, gameID string) string {
	base := server
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/lobby/" + gameID + "/ws"
}

// watch prints game progress and signals completion: the done channel
// closes once the game finished and any tie was resolved.
func (p *participant) watch(handler client.Handler) <-chan struct{} {
	done := make(chan struct{})
	var closed bool

	finish := func() {
		if !closed {
			closed = true
			close(done)
		}
	}

	p.core.Observe(func(msg client.Inbound) {
		switch m := msg.(type) {
		case *client.PlayerJoined:
			fmt.Printf("* %s joined\n", m.PlayerName)
		case *client.PlayerLeft:
			fmt.Printf("* player %s left\n", m.ClientID)
		case *client.PlayerReconnected:
			fmt.Printf("* %s reconnected\n", m.PlayerName)
		case *client.GameStarted, *client.NextQuestion:
			if in, ok := handler.(games.Interactive); ok {
				if prompt := in.PromptText(); prompt != "" {
					fmt.Println("\n" + prompt)
				}
			}
		case *client.QuestionResult:
			fmt.Println(renderScores(p.session, m.Scores))
		case *client.GameFinished:
			fmt.Println("\nFinal scores:")
			fmt.Println(renderScores(p.session, m.FinalScores))
			if p.session.TieState().Stage == client.TieBreaking {
				fmt.Println("Tie! Breaking...")
			} else {
				finish()
			}
		case *client.TieResolved:
			fmt.Printf("Tie broken: %s wins!\n", displayName(p.session, m.UltimateWinnerID))
			finish()
		case *client.ServerError:
			fmt.Printf("! server error: %s\n", m.Message)
		}
	})

	return done
}

func displayName(s *client.Session, clientID string) string {
	for _, p := range s.Players() {
		if p.ClientID == clientID {
			return p.DisplayName
		}
	}
	return clientID
}

func renderScores(s *client.Session, scores map[string]int) string {
	type row struct {
		name  string
		score int
	}
	rows := make([]row, 0, len(scores))
	for id, v := range scores {
		rows = append(rows, row{displayName(s, id), v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].name < rows[j].name
	})

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-20s %d\n", r.name, r.score)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runHost(ctx context.Context, cfg *Config) error {
	log, err := newLogger(cfg.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api := client.NewAPI(cfg.server)

	info, err := api.CreateLobby(ctx, cfg.gameType)
	if err != nil {
		return fmt.Errorf("create lobby: %w", err)
	}
	tok, err := api.HostToken(ctx, info.GameID)
	if err != nil {
		return fmt.Errorf("host token: %w", err)
	}
	content, err := api.FetchContent(ctx, info.GameID)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}

	p := newParticipant(cfg, info.GameID, log)
	p.session.Host(info.GameID, tok)

	handler, ok := games.Activate(p.rt, p.reg, info.GameType)
	if !ok {
		return fmt.Errorf("unknown game type %q", info.GameType)
	}
	defer games.Deactivate(p.rt)
	defer p.conn.Close()

	done := p.watch(handler)

	if err := p.conn.EnsureConnected(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	module, _ := p.reg.Lookup(info.GameType)
	fmt.Printf("Hosting %s, game id: %s\n", module.Name(), info.GameID)
	fmt.Printf("Players join with: partyline join %s --name <name> --server %s\n", info.GameID, cfg.server)
	fmt.Printf("Waiting for at least %d player(s). Press Enter to start.\n", module.MinPlayers())

	// Stdin drives the host: first Enter starts the game.
	started := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			close(started)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-started:
	}

	if len(p.session.Players()) < module.MinPlayers() {
		return fmt.Errorf("need at least %d player(s), have %d", module.MinPlayers(), len(p.session.Players()))
	}

	if err := p.rt.StartGame(info.GameType, content); err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	return nil
}

func runJoin(ctx context.Context, cfg *Config, gameID string) error {
	log, err := newLogger(cfg.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	api := client.NewAPI(cfg.server)

	info, err := api.Lobby(ctx, gameID)
	if err != nil {
		return fmt.Errorf("lobby lookup: %w", err)
	}

	store, err := client.NewStateStore(cfg.stateDir)
	if err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	// A persisted token is only good for a lobby this client already
	// joined once.
	tok, ok := store.LoadToken()
	if !ok || !store.AutoJoined(gameID) {
		tok, err = api.GuestToken(ctx, gameID, cfg.name)
		if err != nil {
			return fmt.Errorf("guest token: %w", err)
		}
		if err := store.SaveToken(tok); err != nil {
			log.Warnw("persist token", "error", err)
		}
	}

	p := newParticipant(cfg, gameID, log)
	p.session.Join(gameID, cfg.name, tok)

	handler, ok := games.Activate(p.rt, p.reg, info.GameType)
	if !ok {
		return fmt.Errorf("unknown game type %q", info.GameType)
	}
	defer games.Deactivate(p.rt)
	defer p.conn.Close()

	done := p.watch(handler)

	if err := p.conn.EnsureConnected(); err != nil {
		if errors.Is(err, client.ErrAuthRejected) {
			_ = store.Clear()
		}
		return fmt.Errorf("connect: %w", err)
	}

	if !store.AutoJoined(gameID) {
		if err := p.conn.Send(client.AnnouncePlayerMessage{
			Envelope:   p.session.Envelope("announcePlayer"),
			PlayerName: cfg.name,
		}); err != nil {
			return fmt.Errorf("announce: %w", err)
		}
		if err := store.MarkAutoJoined(gameID); err != nil {
			log.Warnw("persist autojoin marker", "error", err)
		}
	}

	module, _ := p.reg.Lookup(info.GameType)
	fmt.Printf("Joined %s as %s. Waiting for the host to start.\n", module.Name(), cfg.name)

	// Stdin lines are answers for the active game.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			in, ok := handler.(games.Interactive)
			if !ok {
				continue
			}
			if err := in.SubmitText(scanner.Text()); err != nil {
				fmt.Printf("! %v\n", err)
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	return nil
}
