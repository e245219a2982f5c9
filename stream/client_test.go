package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer is a minimal streaming backend for tests. Every accepted
// connection is pushed onto conns so the test can drive it directly.
type wsServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	reject   int32
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 8)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&s.reject, -1) >= 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// rejectNext makes the server fail the next n upgrade requests with 503.
func (s *wsServer) rejectNext(n int32) { atomic.StoreInt32(&s.reject, n) }

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func testStreamConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	return cfg
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func TestConnectAndDispatch(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	events := make(chan Event, 8)
	c.Subscribe(TopicTradeUpdate, func(ev Event) { events <- ev })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	assert.True(t, c.IsConnected())

	conn := srv.accept(t)
	err := conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"trade_update","data":{"order_id":"ord-1","status":"filled"}}`))
	require.NoError(t, err)

	ev := waitEvent(t, events)
	assert.Equal(t, TopicTradeUpdate, ev.Type)

	update, err := ParseTradeUpdate(ev)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", update.OrderID)
	assert.Equal(t, "filled", update.Status)
}

func TestConnectSendsAuthFrameFirst(t *testing.T) {
	srv := newWSServer(t)
	cfg := testStreamConfig(srv.url())
	cfg.Token = "secret-token"
	c := NewClient(cfg)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	conn := srv.accept(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame authFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "auth", frame.Type)
	assert.Equal(t, "secret-token", frame.Token)
}

func TestNoAuthFrameWithoutToken(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	conn := srv.accept(t)
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no frame should arrive before the deadline")
}

func TestConnectTwiceFails(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	srv.accept(t)

	assert.Error(t, c.Connect(context.Background()))
}

func TestMalformedFramesKeepConnectionAlive(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	errs := make(chan Event, 8)
	events := make(chan Event, 8)
	c.Subscribe(TopicError, func(ev Event) { errs <- ev })
	c.Subscribe(TopicPriceUpdate, func(ev Event) { events <- ev })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	conn := srv.accept(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)))

	waitEvent(t, errs)
	waitEvent(t, errs)
	assert.Equal(t, uint64(2), c.ParseErrorCount())
	assert.True(t, c.IsConnected(), "parse failures must not drop the connection")

	// The connection still delivers well-formed frames afterwards.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"price_update","data":{"symbol":"BTC-USD"}}`)))
	ev := waitEvent(t, events)
	assert.Equal(t, TopicPriceUpdate, ev.Type)
}

func TestReconnectAfterRemoteClose(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	connected := make(chan Event, 8)
	c.Subscribe(TopicConnected, func(ev Event) { connected <- ev })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitEvent(t, connected)

	first := srv.accept(t)
	first.Close()

	// A second connection arrives without any caller intervention.
	second := srv.accept(t)
	defer second.Close()
	waitEvent(t, connected)
	waitState(t, c, Connected)

	events := make(chan Event, 8)
	c.Subscribe(TopicTradeUpdate, func(ev Event) { events <- ev })
	require.NoError(t, second.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"trade_update","data":{}}`)))
	waitEvent(t, events)
}

func TestInitialConnectFailureRetriesInBackground(t *testing.T) {
	srv := newWSServer(t)
	srv.rejectNext(2)
	c := NewClient(testStreamConfig(srv.url()))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, Disconnected, c.State(), "manager must keep running after a failed first dial")
	defer c.Disconnect()

	// The manager keeps dialing and eventually lands a connection.
	conn := srv.accept(t)
	defer conn.Close()
	waitState(t, c, Connected)
}

func TestReconnectExhaustionEmitsErrorAndStops(t *testing.T) {
	srv := newWSServer(t)
	cfg := testStreamConfig(srv.url())
	cfg.MaxReconnectAttempts = 2
	c := NewClient(cfg)

	errs := make(chan Event, 8)
	c.Subscribe(TopicError, func(ev Event) { errs <- ev })

	require.NoError(t, c.Connect(context.Background()))
	conn := srv.accept(t)

	// Take the backend away for good.
	conn.Close()
	srv.srv.Close()

	ev := waitEvent(t, errs)
	info, perr := ParseErrorInfo(ev)
	require.NoError(t, perr)
	assert.Contains(t, info.Message, "exhausted")

	waitState(t, c, Disconnected)

	// The manager gave up; Disconnect is still safe to call.
	require.NoError(t, c.Disconnect())
}

func TestDisconnectStopsReconnects(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	require.NoError(t, c.Connect(context.Background()))
	conn := srv.accept(t)
	conn.Close()

	// Let the manager enter its reconnect cycle before tearing down.
	waitState(t, c, Connected) // may already have reconnected; both fine
	require.NoError(t, c.Disconnect())
	assert.Equal(t, Disconnected, c.State())

	// Drain anything that connected before Disconnect, then verify no
	// new dial arrives afterwards.
	for {
		select {
		case stale := <-srv.conns:
			stale.Close()
			continue
		case <-time.After(150 * time.Millisecond):
		}
		break
	}
	select {
	case <-srv.conns:
		t.Fatal("client dialed again after Disconnect")
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, Disconnected, c.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	require.NoError(t, c.Disconnect())

	require.NoError(t, c.Connect(context.Background()))
	srv.accept(t)
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, Disconnected, c.State())
}

func TestConnectAfterDisconnectStartsFresh(t *testing.T) {
	srv := newWSServer(t)
	c := NewClient(testStreamConfig(srv.url()))

	require.NoError(t, c.Connect(context.Background()))
	srv.accept(t)
	require.NoError(t, c.Disconnect())

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	srv.accept(t)
	assert.True(t, c.IsConnected())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
}
