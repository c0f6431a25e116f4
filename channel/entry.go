package channel

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Entry represents one active logical channel: the single owner of the
// underlying transport connection shared by every consumer of that channel.
// Static fields are set at creation; dynamic fields use atomics or mu.
//
// Refcounting is expressed through the sink set: one sink per live handle.
// Sink mutations must happen under the registry's per-key Compute so that
// the count and the registry's entry lifetime can never disagree.
type Entry struct {
	// --- Static (immutable after creation) ---
	Key       Key
	Domain    string
	CreatedAt time.Time

	// --- Dynamic (guarded by mu) ---
	mu        sync.RWMutex
	sinks     map[string]chan<- Update
	lastError string
	conn      io.Closer

	// Atomic dynamic fields for concurrent hot-path reads.
	state          atomic.Int32
	LastActivityNs atomic.Int64 // unix-nano of last message; 0 = never
	ErrorCount     atomic.Int32 // transport errors in the current session window
	OpenSinceNs    atomic.Int64 // unix-nano of last transition to Open; 0 = not open yet

	// attempt is a generation counter for connection attempts. A completion
	// carrying a stale attempt number must be discarded: its connection is
	// closed and its result never published.
	attempt atomic.Int64

	// reconnecting guards against more than one reconnect loop per entry.
	reconnecting atomic.Bool

	kick         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewEntry creates an Entry in the Connecting state.
func NewEntry(key Key, domain string, createdAt time.Time) *Entry {
	e := &Entry{
		Key:       key,
		Domain:    domain,
		CreatedAt: createdAt,
		sinks:     make(map[string]chan<- Update),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	e.state.Store(int32(StateConnecting))
	return e
}

// State returns the current lifecycle state.
func (e *Entry) State() State {
	return State(e.state.Load())
}

// SetState stores the lifecycle state. Once shutdown has begun the state is
// pinned to Closed; late writers (event pumps, reconnect loops) lose.
func (e *Entry) SetState(s State) {
	if e.IsShutdown() {
		e.state.Store(int32(StateClosed))
		return
	}
	e.state.Store(int32(s))
}

// AddSink registers a handle's update sink.
// Must be called under external synchronization (the registry's Compute).
func (e *Entry) AddSink(handleID string, sink chan<- Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[handleID] = sink
}

// RemoveSink removes a handle's update sink.
// Returns true if the sink set is now empty (entry should be torn down).
// Must be called under external synchronization (the registry's Compute).
func (e *Entry) RemoveSink(handleID string) (empty bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sinks, handleID)
	return len(e.sinks) == 0
}

// Refs returns the number of live handles referencing this entry.
func (e *Entry) Refs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sinks)
}

// Broadcast delivers an update to every sink without blocking. A consumer
// whose buffer is full misses the update; slow consumers never stall the
// channel. Returns the number of sinks that dropped the update.
func (e *Entry) Broadcast(u Update) (dropped int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sink := range e.sinks {
		select {
		case sink <- u:
		default:
			dropped++
		}
	}
	return dropped
}

// Touch records message/heartbeat activity.
func (e *Entry) Touch(now time.Time) {
	e.LastActivityNs.Store(now.UnixNano())
}

// RecordError increments the session error count and stores the message.
func (e *Entry) RecordError(msg string) {
	e.ErrorCount.Add(1)
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

// ResetErrors clears the error count and message after a successful
// (re)connect.
func (e *Entry) ResetErrors() {
	e.ErrorCount.Store(0)
	e.mu.Lock()
	e.lastError = ""
	e.mu.Unlock()
}

// LastError returns the most recent transport error message ("" if none).
func (e *Entry) LastError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// NextAttempt advances the connection-attempt generation and returns it.
// Called before starting a dial; the returned value is presented back in
// PublishConn so stale completions can be rejected.
func (e *Entry) NextAttempt() int64 {
	return e.attempt.Add(1)
}

// PublishConn installs a freshly opened connection, but only if the entry is
// still alive and attempt is still the current generation. On success the
// entry transitions to Open. On refusal the caller owns closing conn.
func (e *Entry) PublishConn(attempt int64, conn io.Closer, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.IsShutdown() || attempt != e.attempt.Load() {
		return false
	}
	if e.conn != nil {
		// Should not happen: a newer generation always takes the old
		// connection before dialing. Close the orphan defensively.
		_ = e.conn.Close()
	}
	e.conn = conn
	e.state.Store(int32(StateOpen))
	e.OpenSinceNs.Store(now.UnixNano())
	e.LastActivityNs.Store(now.UnixNano())
	return true
}

// TakeConn removes and returns the current connection (nil if none).
// The caller becomes responsible for closing it.
func (e *Entry) TakeConn() io.Closer {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conn
	e.conn = nil
	return c
}

// BeginShutdown marks the entry Closed and wakes everything waiting on
// Done(): reconnect backoff timers, event pumps, in-flight dials. Returns
// true on the first call. The actual transport close may finish
// asynchronously via TakeConn.
func (e *Entry) BeginShutdown() (first bool) {
	e.shutdownOnce.Do(func() {
		first = true
		e.state.Store(int32(StateClosed))
		close(e.done)
	})
	return first
}

// Done is closed when shutdown begins.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// IsShutdown reports whether shutdown has begun.
func (e *Entry) IsShutdown() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Kick nudges the entry's reconnect loop to restart its backoff from the
// base delay. Non-blocking; a pending kick is enough.
func (e *Entry) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// KickCh exposes the kick signal for the reconnect loop's select.
func (e *Entry) KickCh() <-chan struct{} {
	return e.kick
}

// TryStartReconnect claims the entry's single reconnect-loop slot.
func (e *Entry) TryStartReconnect() bool {
	return e.reconnecting.CompareAndSwap(false, true)
}

// EndReconnect releases the reconnect-loop slot.
func (e *Entry) EndReconnect() {
	e.reconnecting.Store(false)
}

// Snapshot is a read-only copy of an entry's observable state.
type Snapshot struct {
	Key          Key
	Domain       string
	State        State
	Refs         int
	ErrorCount   int
	LastActivity time.Time // zero if no message has arrived yet
	OpenSince    time.Time // zero if never opened
	LastError    string
}

// Snapshot captures the entry's observable state at one instant.
func (e *Entry) Snapshot() Snapshot {
	s := Snapshot{
		Key:        e.Key,
		Domain:     e.Domain,
		State:      e.State(),
		Refs:       e.Refs(),
		ErrorCount: int(e.ErrorCount.Load()),
		LastError:  e.LastError(),
	}
	if ns := e.LastActivityNs.Load(); ns != 0 {
		s.LastActivity = time.Unix(0, ns)
	}
	if ns := e.OpenSinceNs.Load(); ns != 0 {
		s.OpenSince = time.Unix(0, ns)
	}
	return s
}
