// Package transport abstracts the realtime pub/sub backend. The coordinator
// never sees wire details: it opens connections through Transport and
// consumes a uniform event stream per connection.
package transport

import (
	"context"
	"time"
)

// EventKind classifies connection events.
type EventKind int

const (
	// EventMessage carries one payload published on the channel.
	EventMessage EventKind = iota
	// EventHeartbeat reports transport-level liveness with no payload.
	EventHeartbeat
	// EventError reports a transport error; the connection may still recover.
	EventError
	// EventClosed is the final event: the connection is gone. The events
	// channel is closed after it.
	EventClosed
)

// Event is one occurrence on an open connection.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
	At      time.Time
}

// Conn is one live subscription on the backend. Exclusively owned by the
// channel entry that opened it; consumers never hold a Conn.
type Conn interface {
	// Events returns the connection's event stream. The stream ends with
	// an EventClosed and is then closed.
	Events() <-chan Event
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport opens connections to logical channels. filter is the canonical
// JSON filter for the channel, as produced by channel.CanonicalFilter.
//
// Open returns an error only for synchronous misuse (malformed domain or
// filter, unusable base URL); I/O failures during establishment are also
// returned here and the caller decides retry policy.
type Transport interface {
	Open(ctx context.Context, domain string, filter []byte) (Conn, error)
}
