// Package transport implements the Go client for the messaging
// websocket endpoint: one persistent connection, automatic reconnection
// with a configurable delay policy, and a terminal deliberate teardown.
//
// The client is fire-and-forget by design: Send drops frames while not
// connected, and callers needing delivery guarantees re-issue the REST
// call instead of relying on the socket.
package transport

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the connection lifecycle position. Transitions:
// Idle → Connecting → Connected → Disconnected → Connecting → ...
// Disconnect() moves to Closed from any state; Closed is terminal.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Status is what the status callback reports. Intermediate reconnect
// scheduling is never reported.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Event is one inbound frame from the hub.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty"`
}

// TokenProvider supplies the bearer token at connect time. Injected so
// call sites never reach into ambient storage for credentials.
type TokenProvider interface {
	Token() string
}

// StaticToken is a TokenProvider for a fixed token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// TokenFunc adapts a function to a TokenProvider.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// ReconnectPolicy controls the delay between reconnection attempts.
// The zero value means the default fixed 2 second delay, the behavior
// the product shipped with. Backoff > 1 turns it into exponential
// backoff capped at MaxDelay.
type ReconnectPolicy struct {
	Delay    time.Duration
	Backoff  float64
	MaxDelay time.Duration
}

// DefaultReconnectDelay is the fixed interval between attempts when the
// policy does not specify one.
const DefaultReconnectDelay = 2 * time.Second

func (p ReconnectPolicy) initial() time.Duration {
	if p.Delay <= 0 {
		return DefaultReconnectDelay
	}
	return p.Delay
}

func (p ReconnectPolicy) next(current time.Duration) time.Duration {
	if p.Backoff <= 1 {
		return current
	}
	next := time.Duration(float64(current) * p.Backoff)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

// Config holds the dependencies of a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://host/api/messaging/ws".
	// The token is appended as a query parameter at connect time.
	URL string
	// Credentials supplies the bearer token. A missing or empty token
	// makes Connect a silent no-op.
	Credentials TokenProvider
	// OnEvent receives every parsed inbound frame. Malformed frames are
	// dropped without surfacing an error.
	OnEvent func(Event)
	// OnStatus reports connected/disconnected/error transitions.
	OnStatus func(Status)
	// Reconnect is the delay policy after non-deliberate closes.
	Reconnect ReconnectPolicy
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Client owns one persistent connection to the messaging endpoint.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	// timer is the single-owner reconnect slot: always stopped before a
	// new one is set, so parallel reconnect attempts cannot exist.
	timer *time.Timer
	delay time.Duration
}

// New creates a Client. No connection is attempted until Connect.
func New(cfg Config) *Client {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		log:    log,
		state:  StateIdle,
		delay:  cfg.Reconnect.initial(),
	}
}

// Connect opens the connection. Without a token this is a silent no-op:
// callers are expected to check credential availability first. Connect
// is also what the reconnect timer fires; calling it while already
// connecting, connected or closed does nothing.
func (c *Client) Connect() {
	var token string
	if c.cfg.Credentials != nil {
		token = c.cfg.Credentials.Token()
	}
	if token == "" {
		c.log.Debug().Msg("connect skipped: no token available")
		return
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateClosed:
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	sep := "?"
	if strings.Contains(c.cfg.URL, "?") {
		sep = "&"
	}
	endpoint := c.cfg.URL + sep + "token=" + url.QueryEscape(token)

	conn, resp, err := c.dialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("websocket dial failed")
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.notify(StatusError)
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Disconnect raced the dial; honor the teardown
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.delay = c.cfg.Reconnect.initial()
	c.mu.Unlock()

	c.log.Debug().Msg("websocket connected")
	c.notify(StatusConnected)

	go c.readLoop(conn)
}

// Send transmits a structured frame while connected. Anything else is
// silently dropped: there is no outbound queue.
func (c *Client) Send(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(v); err != nil {
		c.log.Warn().Err(err).Msg("websocket send failed")
	}
}

// Disconnect is the deliberate, terminal teardown. Any pending reconnect
// timer is cancelled and no further connection attempt will be made.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	c.notify(StatusDisconnected)
}

// State returns the current lifecycle position.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			// Malformed payloads are dropped
			continue
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(ev)
		}
	}

	c.mu.Lock()
	if c.conn != conn {
		// Stale loop from a connection that was already torn down
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	// Non-deliberate close: exactly one reconnect attempt is scheduled
	c.state = StateDisconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.notify(StatusDisconnected)
}

func (c *Client) scheduleReconnectLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	d := c.delay
	c.delay = c.cfg.Reconnect.next(d)
	c.log.Debug().Dur("delay", d).Msg("reconnect scheduled")
	c.timer = time.AfterFunc(d, c.Connect)
}

func (c *Client) notify(s Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}
