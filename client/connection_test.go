package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func hostedSession() *Session {
	s := NewSession(nil, testLogger())
	s.Host("abc12345", Token{Value: "tok-test", ExpiresAt: time.Now().Add(time.Hour)})
	return s
}

// relayServer speaks the authenticate/identify handshake and then
// collects every frame the client sends.
type relayServer struct {
	ts         *httptest.Server
	rejectAuth bool
	frames     chan []byte
	failDials  atomic.Int32
	stallDials atomic.Int64 // nanoseconds to sleep before accepting

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newRelayServer(t *testing.T, rejectAuth bool) *relayServer {
	f := &relayServer{rejectAuth: rejectAuth, frames: make(chan []byte, 32)}
	up := websocket.Upgrader{}

	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.failDials.Add(-1) >= 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if d := f.stallDials.Load(); d > 0 {
			time.Sleep(time.Duration(d))
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var auth map[string]any
		if err := ws.ReadJSON(&auth); err != nil || auth["action"] != "authenticate" {
			_ = ws.Close()
			return
		}
		if f.rejectAuth {
			_ = ws.WriteJSON(map[string]any{"action": "authenticated", "success": false, "message": "token rejected"})
			_ = ws.Close()
			return
		}
		if err := ws.WriteJSON(map[string]any{"action": "authenticated", "success": true}); err != nil {
			return
		}

		var ident map[string]any
		if err := ws.ReadJSON(&ident); err != nil || ident["action"] != "identify" {
			_ = ws.Close()
			return
		}
		if err := ws.WriteJSON(map[string]any{
			"action":   "identified",
			"clientId": ident["clientId"],
			"gameId":   ident["gameId"],
		}); err != nil {
			return
		}

		f.mu.Lock()
		f.conns = append(f.conns, ws)
		f.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case f.frames <- data:
			default:
			}
		}
	}))
	t.Cleanup(f.ts.Close)
	return f
}

func (f *relayServer) url() string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http")
}

// push writes a frame to the most recently accepted connection.
func (f *relayServer) push(t *testing.T, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns)
	require.NoError(t, f.conns[len(f.conns)-1].WriteJSON(v))
}

func (f *relayServer) pushRaw(t *testing.T, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns)
	require.NoError(t, f.conns[len(f.conns)-1].WriteMessage(websocket.TextMessage, data))
}

// dropAll severs every accepted connection without a close frame.
func (f *relayServer) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.conns {
		_ = ws.Close()
	}
	f.conns = nil
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	require.Equal(t, 1*time.Second, backoffDelay(1, base, cap))
	require.Equal(t, 2*time.Second, backoffDelay(2, base, cap))
	require.Equal(t, 4*time.Second, backoffDelay(3, base, cap))
	require.Equal(t, 16*time.Second, backoffDelay(5, base, cap))
	require.Equal(t, 30*time.Second, backoffDelay(6, base, cap))
	require.Equal(t, 30*time.Second, backoffDelay(20, base, cap))

	// A base above the cap is clipped immediately.
	require.Equal(t, cap, backoffDelay(1, time.Minute, cap))
}

func TestEnsureConnectedRequiresIdentity(t *testing.T) {
	session := NewSession(nil, testLogger())
	conn := NewConn(ConnConfig{URL: "ws://127.0.0.1:1/ws"}, session, NewRouter(), testLogger())

	err := conn.EnsureConnected()
	require.ErrorIs(t, err, ErrIdentityIncomplete)
	require.Equal(t, StatusWaiting, conn.Status())
	require.Empty(t, conn.ReconnectDelays())
}

func TestSendBeforeConnect(t *testing.T) {
	conn := NewConn(ConnConfig{URL: "ws://127.0.0.1:1/ws"}, hostedSession(), NewRouter(), testLogger())
	require.ErrorIs(t, conn.Send(map[string]string{"action": "x"}), ErrNotConnected)
}

func TestConnectHandshakeAndSend(t *testing.T) {
	srv := newRelayServer(t, false)
	session := hostedSession()
	conn := NewConn(ConnConfig{URL: srv.url()}, session, NewRouter(), testLogger())

	require.NoError(t, conn.EnsureConnected())
	require.Equal(t, StatusReady, conn.Status())

	// Idempotent while ready.
	require.NoError(t, conn.EnsureConnected())

	require.NoError(t, conn.Send(AnnouncePlayerMessage{
		Envelope:   session.Envelope("announcePlayer"),
		PlayerName: "alice",
	}))

	select {
	case data := <-srv.frames:
		require.Contains(t, string(data), `"action":"announcePlayer"`)
		require.Contains(t, string(data), session.ClientID())
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached server")
	}

	require.NoError(t, conn.Close())
	require.Equal(t, StatusClosed, conn.Status())
}

func TestReadPumpRoutesAndDropsBadFrames(t *testing.T) {
	srv := newRelayServer(t, false)
	session := hostedSession()

	routed := make(chan Inbound, 8)
	router := NewRouter()
	router.BindCore(HandlerFunc(func(msg Inbound) bool {
		routed <- msg
		return true
	}))

	conn := NewConn(ConnConfig{URL: srv.url()}, session, router, testLogger())
	require.NoError(t, conn.EnsureConnected())
	defer conn.Close()

	srv.pushRaw(t, []byte(`{"action":`))                // malformed, dropped
	srv.push(t, map[string]any{"action": "confetti"})   // unknown, ignored
	srv.push(t, map[string]any{"action": "playerJoined", "clientId": "p1", "playerName": "alice"})

	select {
	case msg := <-routed:
		joined, ok := msg.(*PlayerJoined)
		require.True(t, ok)
		require.Equal(t, "alice", joined.PlayerName)
	case <-time.After(2 * time.Second):
		t.Fatal("message never routed")
	}

	// Nothing else leaked through.
	select {
	case msg := <-routed:
		t.Fatalf("unexpected message routed: %T", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAuthRejectedIsTerminal(t *testing.T) {
	srv := newRelayServer(t, true)
	conn := NewConn(ConnConfig{URL: srv.url()}, hostedSession(), NewRouter(), testLogger())

	err := conn.EnsureConnected()
	require.ErrorIs(t, err, ErrAuthRejected)
	require.Equal(t, StatusFailed, conn.Status())
	require.Empty(t, conn.ReconnectDelays())
}

func TestReconnectAfterChannelLoss(t *testing.T) {
	srv := newRelayServer(t, false)
	conn := NewConn(ConnConfig{
		URL:           srv.url(),
		ReconnectBase: 10 * time.Millisecond,
		ReconnectCap:  40 * time.Millisecond,
		MaxReconnects: 5,
	}, hostedSession(), NewRouter(), testLogger())

	require.NoError(t, conn.EnsureConnected())
	defer conn.Close()

	// First redial is refused, the second lands: the backoff doubles
	// in between and the channel comes back by itself.
	srv.failDials.Store(1)
	srv.dropAll()

	require.Eventually(t, func() bool {
		return conn.Status() == StatusReady
	}, 5*time.Second, 10*time.Millisecond, "channel never recovered")

	require.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
	}, conn.ReconnectDelays())

	// A stale "reconnecting" write must not land after recovery.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, StatusReady, conn.Status())
}

func TestReconnectBudgetExhausted(t *testing.T) {
	// Nothing listens on the target, every attempt fails.
	conn := NewConn(ConnConfig{
		URL:           "ws://127.0.0.1:1/ws",
		ReconnectBase: 2 * time.Millisecond,
		ReconnectCap:  8 * time.Millisecond,
		MaxReconnects: 3,
	}, hostedSession(), NewRouter(), testLogger())

	require.Error(t, conn.EnsureConnected())

	require.Eventually(t, func() bool {
		return conn.Status() == StatusFailed
	}, 5*time.Second, 5*time.Millisecond, "never reached failed")

	require.Equal(t, []time.Duration{
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
	}, conn.ReconnectDelays())
}

func TestCloseWinsOverInFlightReconnect(t *testing.T) {
	srv := newRelayServer(t, false)
	conn := NewConn(ConnConfig{
		URL:           srv.url(),
		ReconnectBase: 10 * time.Millisecond,
	}, hostedSession(), NewRouter(), testLogger())

	require.NoError(t, conn.EnsureConnected())

	// Sever the channel with the next dial held open, then close the
	// manager while that attempt is still in flight.
	srv.stallDials.Store(int64(300 * time.Millisecond))
	srv.dropAll()

	require.Eventually(t, func() bool {
		return conn.Status() != StatusReady
	}, 2*time.Second, 5*time.Millisecond, "loss never detected")

	time.Sleep(50 * time.Millisecond) // let the redial reach the stalled server
	require.NoError(t, conn.Close())

	// The completing handshake must not resurrect the channel.
	time.Sleep(500 * time.Millisecond)
	require.Equal(t, StatusClosed, conn.Status())
	require.ErrorIs(t, conn.Send(map[string]string{"action": "x"}), ErrNotConnected)
	require.Len(t, conn.ReconnectDelays(), 1)
}

func TestCleanCloseNeverReconnects(t *testing.T) {
	srv := newRelayServer(t, false)
	conn := NewConn(ConnConfig{
		URL:           srv.url(),
		ReconnectBase: 5 * time.Millisecond,
	}, hostedSession(), NewRouter(), testLogger())

	require.NoError(t, conn.EnsureConnected())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close()) // idempotent

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, StatusClosed, conn.Status())
	require.Empty(t, conn.ReconnectDelays())

	require.ErrorIs(t, conn.EnsureConnected(), ErrNotConnected)
}
