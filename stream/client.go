// Package stream implements the websocket side of the gotrade SDK: a
// connection manager that keeps one streaming connection alive through a
// reconnect state machine, and a topic dispatcher that fans inbound
// events out to subscribers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config controls one stream client.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Token, when set, is sent as an auth frame right after the socket
	// opens.
	Token string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	// ReconnectDelay is the base reconnect backoff; it doubles per
	// consecutive failure up to MaxReconnectDelay and resets to the base
	// after any successful connect.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// the manager gives up and goes Disconnected. Zero means retry
	// forever.
	MaxReconnectAttempts int

	Logger *logrus.Logger
}

// DefaultConfig returns the config used when fields are left zero.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		HandshakeTimeout:     30 * time.Second,
		WriteTimeout:         10 * time.Second,
		PingInterval:         30 * time.Second,
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.URL)
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	return c
}

// Client owns one streaming connection. One background goroutine reads
// inbound messages and drives the reconnect timer; the two never overlap
// in time. Subscribe/Unsubscribe/Disconnect may be called from any
// goroutine.
type Client struct {
	cfg  Config
	log  *logrus.Logger
	subs *registry

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	running  bool
	attempts int
	delay    time.Duration
	stopCh   chan struct{}

	wg sync.WaitGroup

	parseErrMu    sync.Mutex
	parseErrCount uint64
}

// NewClient creates a stream client. Nothing connects until Connect.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	return &Client{
		cfg:   cfg,
		log:   log,
		subs:  newRegistry(),
		state: Disconnected,
		delay: cfg.ReconnectDelay,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool { return c.State() == Connected }

// ParseErrorCount returns how many inbound frames failed to parse since
// Connect. Parse failures never tear the connection down.
func (c *Client) ParseErrorCount() uint64 {
	c.parseErrMu.Lock()
	defer c.parseErrMu.Unlock()
	return c.parseErrCount
}

// Connect opens the streaming connection. It blocks until the first dial
// attempt finishes: on success the manager is Connected and nil is
// returned; on failure the dial error is returned and the manager keeps
// retrying in the background with backoff. Connect after Disconnect
// starts a fresh session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("stream: already connected")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.state = Connecting
	c.attempts = 0
	c.delay = c.cfg.ReconnectDelay
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.WithError(err).Warn("initial connect failed, retrying in background")
		c.setState(Reconnecting)
		c.wg.Add(1)
		go c.run(nil)
		return errors.Wrap(err, "stream: connect")
	}

	if !c.adopt(conn) {
		return errors.New("stream: disconnected during connect")
	}
	c.wg.Add(1)
	go c.run(conn)
	return nil
}

// Disconnect terminates the session: it cancels any pending reconnect,
// closes the connection, and guarantees that no further automatic
// reconnect happens after it returns. Dispatches already in flight may
// complete. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.running {
		c.state = Disconnected
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.state = Disconnected
	close(c.stopCh)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}

	// Bounded wait for the manager goroutine, as a stuck transport must
	// not block the caller forever.
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		c.log.Warn("timed out waiting for stream goroutines to exit")
	}
	return nil
}

// run is the manager's single background task. It alternates between
// reading the active connection and waiting out the reconnect timer;
// it never does both at once.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		if conn != nil {
			c.readLoop(conn)
			if c.stopped() {
				return
			}
			c.setState(Reconnecting)
			c.log.Info("connection lost, reconnecting")
		}

		var ok bool
		conn, ok = c.reconnect()
		if !ok {
			return
		}
	}
}

// reconnect waits out the backoff delay and dials until a connection is
// established, the attempt budget runs out, or the client is stopped.
func (c *Client) reconnect() (*websocket.Conn, bool) {
	for {
		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			return nil, false
		}
		stop := c.stopCh
		c.attempts++
		attempt := c.attempts
		delay := c.delay
		c.delay *= 2
		if c.delay > c.cfg.MaxReconnectDelay {
			c.delay = c.cfg.MaxReconnectDelay
		}
		limit := c.cfg.MaxReconnectAttempts
		c.mu.Unlock()

		if limit > 0 && attempt > limit {
			c.log.WithField("attempts", limit).Error("reconnect attempts exhausted")
			c.emitError(fmt.Sprintf("reconnect attempts exhausted after %d tries", limit), "")
			c.mu.Lock()
			c.running = false
			c.state = Disconnected
			c.mu.Unlock()
			return nil, false
		}

		c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).
			Info("waiting before reconnect")

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		if !c.transition(Connecting) {
			return nil, false
		}
		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.WithError(err).WithField("attempt", attempt).Warn("reconnect failed")
			if !c.transition(Reconnecting) {
				return nil, false
			}
			continue
		}
		if !c.adopt(conn) {
			return nil, false
		}
		return conn, true
	}
}

// dial opens the socket and sends the auth frame when a token is
// configured.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s (status %d)", c.cfg.URL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", c.cfg.URL)
	}

	if c.cfg.Token != "" {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteJSON(authFrame{Type: "auth", Token: c.cfg.Token}); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "send auth frame")
		}
	}

	return conn, nil
}

// adopt installs a freshly dialed connection, unless the client was
// stopped while dialing, in which case the connection is closed and
// false is returned. On success the backoff resets to the base delay and
// a connected event is dispatched.
func (c *Client) adopt(conn *websocket.Conn) bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.delay = c.cfg.ReconnectDelay
	c.mu.Unlock()

	c.log.WithField("url", c.cfg.URL).Info("stream connected")
	c.dispatch(Event{Type: TopicConnected, Data: json.RawMessage(`{}`)})
	return true
}

// readLoop reads frames until the transport fails or the client stops.
// A keepalive pinger runs alongside it for the lifetime of this
// connection; it only writes pings and touches no state.
func (c *Client) readLoop(conn *websocket.Conn) {
	c.mu.Lock()
	stop := c.stopCh
	c.mu.Unlock()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.stopped() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("read failed")
			}
			conn.Close()
			c.clearConn(conn)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// The read loop will observe the dead transport and
				// drive the reconnect; nothing to do here.
				return
			}
		}
	}
}

// handleFrame parses one inbound frame and dispatches it. Malformed
// frames are reported on the error topic and never tear the connection
// down.
func (c *Client) handleFrame(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		c.parseErrMu.Lock()
		c.parseErrCount++
		c.parseErrMu.Unlock()

		reason := "frame has no type"
		if err != nil {
			reason = err.Error()
		}
		c.log.WithFields(logrus.Fields{
			"reason": reason,
			"frame":  preview(data, 200),
		}).Warn("dropping malformed frame")
		c.emitError("malformed frame: "+reason, preview(data, 200))
		return
	}
	c.dispatch(ev)
}

func (c *Client) emitError(message, raw string) {
	payload, err := json.Marshal(ErrorInfo{Message: message, Raw: raw})
	if err != nil {
		return
	}
	c.dispatch(Event{Type: TopicError, Data: payload})
}

func (c *Client) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.running
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.running {
		c.state = s
	}
	c.mu.Unlock()
}

// transition moves to s only while the client is running.
func (c *Client) transition(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.state = s
	return true
}

// clearConn drops the stored connection if it is still the one that
// failed, so Disconnect does not double-close a stale handle.
func (c *Client) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func preview(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "...(truncated)"
}
