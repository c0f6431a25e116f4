package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Defaults for the websocket transport.
const (
	DefaultEventBuffer = 64
	DefaultPongWait    = 60 * time.Second
	DefaultWriteWait   = 10 * time.Second
)

// WebSocketConfig configures the websocket transport.
type WebSocketConfig struct {
	// BaseURL is the backend endpoint, e.g. "wss://realtime.example.com/v1".
	// The channel domain is appended as a path segment and the canonical
	// filter travels as the "filter" query parameter.
	BaseURL string
	// Header is sent on every dial (auth tokens and the like).
	Header http.Header
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// EventBuffer is the per-connection event channel capacity.
	EventBuffer int
	// PongWait bounds silence on the read side; the read deadline is pushed
	// on every frame and every pong. Zero means DefaultPongWait.
	PongWait time.Duration
	// ReadLimit caps incoming frame size in bytes (0 = no limit).
	ReadLimit int64
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// WebSocket is the production Transport over gorilla/websocket: one
// websocket connection per logical channel.
type WebSocket struct {
	base      *url.URL
	header    http.Header
	dialer    *websocket.Dialer
	buffer    int
	pongWait  time.Duration
	readLimit int64
	log       *zap.Logger
}

// NewWebSocket validates the base URL and returns a websocket transport.
func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("transport: base url scheme must be ws or wss, got %q", base.Scheme)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WebSocket{
		base:      base,
		header:    cfg.Header,
		dialer:    cfg.Dialer,
		buffer:    cfg.EventBuffer,
		pongWait:  cfg.PongWait,
		readLimit: cfg.ReadLimit,
		log:       cfg.Logger,
	}, nil
}

// Open dials one websocket connection for the given domain and filter.
func (t *WebSocket) Open(ctx context.Context, domain string, filter []byte) (Conn, error) {
	if domain == "" {
		return nil, fmt.Errorf("transport: empty domain")
	}

	u := *t.base
	u.Path = path.Join(u.Path, domain)
	q := u.Query()
	if len(filter) > 0 {
		q.Set("filter", string(filter))
	}
	u.RawQuery = q.Encode()

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), t.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", domain, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", domain, err)
	}

	wc := &wsConn{
		conn:   conn,
		events: make(chan Event, t.buffer),
		log:    t.log,
	}
	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}
	go wc.readPump(t.pongWait)
	return wc, nil
}

// wsConn adapts one gorilla connection to the Conn event stream.
type wsConn struct {
	conn      *websocket.Conn
	events    chan Event
	log       *zap.Logger
	closeOnce sync.Once
}

// Events implements Conn.
func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Close implements Conn. Sends a best-effort close frame, then tears the
// connection down; the read pump exits and finishes the event stream.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(DefaultWriteWait)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		err = c.conn.Close()
	})
	return err
}

// emit delivers an event without blocking. A full buffer drops the event;
// the stream-terminating close(events) still signals the consumer.
func (c *wsConn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *wsConn) readPump(pongWait time.Duration) {
	resetDeadline := func() {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	resetDeadline()
	c.conn.SetPongHandler(func(string) error {
		resetDeadline()
		c.emit(Event{Kind: EventHeartbeat, At: time.Now()})
		return nil
	})
	c.conn.SetPingHandler(func(appData string) error {
		resetDeadline()
		deadline := time.Now().Add(DefaultWriteWait)
		_ = c.conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
		c.emit(Event{Kind: EventHeartbeat, At: time.Now()})
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				c.emit(Event{Kind: EventError, Err: err, At: time.Now()})
			}
			c.emit(Event{Kind: EventClosed, At: time.Now()})
			close(c.events)
			_ = c.conn.Close()
			return
		}
		resetDeadline()
		c.emit(Event{Kind: EventMessage, Payload: data, At: time.Now()})
	}
}

// isExpectedClose reports whether err is a normal end-of-stream rather than
// a transport failure.
func isExpectedClose(err error) bool {
	return websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
