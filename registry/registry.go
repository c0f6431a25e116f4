// Package registry is the single source of truth mapping channel keys to
// live channel entries. It refcounts consumers through opaque handles and
// guarantees one entry (and so one transport connection) per key.
package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/farmstand/realtime/channel"
)

// DefaultUpdatesBuffer is the per-handle update channel capacity.
const DefaultUpdatesBuffer = 32

// OpenFunc establishes the transport connection for a newly created entry.
// It is invoked exactly once per entry, never for attach-to-existing. It
// must not block on connection completion: validate synchronously, dial
// asynchronously, and publish the result through entry.PublishConn. A
// returned error indicates a caller bug (malformed channel parameters) and
// is surfaced to the acquiring caller while the entry goes Errored.
type OpenFunc func(e *channel.Entry) error

// Config configures a Registry.
type Config struct {
	// UpdatesBuffer sizes each handle's update channel (0 = default).
	UpdatesBuffer int
	// OnTeardown runs after an entry leaves the registry (refcount zero or
	// Drain). It owns closing the entry's connection. Nil falls back to
	// closing the connection directly.
	OnTeardown func(e *channel.Entry)
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Registry holds the active channel entries.
// All entry/refcount mutations go through xsync Compute on the entry's key,
// which is the single mutation point that keeps refcounts and entry
// lifetimes consistent under concurrent subscribe/unsubscribe.
type Registry struct {
	entries    *xsync.Map[channel.Key, *channel.Entry]
	buffer     int
	onTeardown func(e *channel.Entry)
	log        *zap.Logger
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	if cfg.UpdatesBuffer <= 0 {
		cfg.UpdatesBuffer = DefaultUpdatesBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		entries:    xsync.NewMap[channel.Key, *channel.Entry](),
		buffer:     cfg.UpdatesBuffer,
		onTeardown: cfg.OnTeardown,
		log:        cfg.Logger,
	}
}

// Acquire returns a new handle bound to the entry for key, creating the
// entry (and invoking open) if this is the first consumer. Never blocks on
// connection completion; the entry transitions state asynchronously.
//
// If open fails, the handle is still acquired and counted — the caller owns
// the retry decision — and the error is returned so the caller bug is not
// swallowed.
func (r *Registry) Acquire(key channel.Key, domain string, open OpenFunc) (*Handle, error) {
	h := &Handle{
		ID:        uuid.NewString(),
		Key:       key,
		Domain:    domain,
		CreatedAt: time.Now(),
		updates:   make(chan channel.Update, r.buffer),
	}

	var created *channel.Entry
	r.entries.Compute(key, func(e *channel.Entry, loaded bool) (*channel.Entry, xsync.ComputeOp) {
		if !loaded {
			e = channel.NewEntry(key, domain, time.Now())
			created = e
		}
		e.AddSink(h.ID, h.updates)
		return e, xsync.UpdateOp
	})

	if created != nil && open != nil {
		if err := open(created); err != nil {
			created.RecordError(err.Error())
			created.SetState(channel.StateErrored)
			r.log.Warn("channel open rejected",
				zap.String("channel", key.Hex()),
				zap.String("domain", domain),
				zap.Error(err))
			return h, err
		}
	}
	return h, nil
}

// Release drops one handle's claim. When the last claim goes, the entry is
// removed from the registry and shut down within this call (state Closed,
// Done closed, backoff timers woken), with the transport close finishing
// asynchronously via OnTeardown.
//
// Idempotent: releasing an already-released or unknown handle logs a
// warning and is otherwise a no-op.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		r.log.Warn("release of nil handle")
		return
	}
	if !h.released.CompareAndSwap(false, true) {
		r.log.Warn("double release of handle",
			zap.String("handle", h.ID),
			zap.String("channel", h.Key.Hex()))
		return
	}

	var torn *channel.Entry
	r.entries.Compute(h.Key, func(e *channel.Entry, loaded bool) (*channel.Entry, xsync.ComputeOp) {
		if !loaded {
			return e, xsync.CancelOp
		}
		if e.RemoveSink(h.ID) {
			e.BeginShutdown()
			torn = e
			return nil, xsync.DeleteOp
		}
		return e, xsync.UpdateOp
	})

	if torn == nil {
		return
	}
	if r.onTeardown != nil {
		r.onTeardown(torn)
		return
	}
	if c := torn.TakeConn(); c != nil {
		go func() { _ = c.Close() }()
	}
}

// Get retrieves the entry for key, if present. Read-only lookup for the
// health monitor and status reads.
func (r *Registry) Get(key channel.Key) (*channel.Entry, bool) {
	return r.entries.Load(key)
}

// Range iterates all live entries.
func (r *Registry) Range(fn func(key channel.Key, e *channel.Entry) bool) {
	r.entries.Range(fn)
}

// Size returns the number of live entries.
func (r *Registry) Size() int {
	return r.entries.Size()
}

// Drain removes every entry, begins its shutdown, and returns the removed
// entries. Used by the manager's Close; handles left over after Drain
// release as no-ops.
func (r *Registry) Drain() []*channel.Entry {
	var keys []channel.Key
	r.entries.Range(func(key channel.Key, _ *channel.Entry) bool {
		keys = append(keys, key)
		return true
	})

	var drained []*channel.Entry
	for _, key := range keys {
		r.entries.Compute(key, func(e *channel.Entry, loaded bool) (*channel.Entry, xsync.ComputeOp) {
			if !loaded {
				return e, xsync.CancelOp
			}
			e.BeginShutdown()
			drained = append(drained, e)
			return nil, xsync.DeleteOp
		})
	}
	return drained
}
