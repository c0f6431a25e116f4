// Package facade presents per-domain adapters over the shared subscription
// manager. Every facade returns the same status shape, so dashboards and
// error boundaries treat all domains uniformly instead of special-casing
// each one's fields.
package facade

import (
	"sync"

	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/manager"
	"github.com/farmstand/realtime/replay"
	"github.com/farmstand/realtime/status"
)

// Facade adapts one domain's filter parameters onto the shared manager.
// A facade is enabled while attached; detaching releases its claim on the
// underlying channel.
type Facade struct {
	mgr    *manager.Manager
	domain string
	filter any

	mu  sync.Mutex
	sub *manager.Subscription
}

// New builds a facade for (domain, filter). The facade starts detached;
// nothing connects until Attach.
func New(mgr *manager.Manager, domain string, filter any) *Facade {
	return &Facade{mgr: mgr, domain: domain, filter: filter}
}

// Domain returns the facade's domain name.
func (f *Facade) Domain() string {
	return f.domain
}

// Attach subscribes the facade to its channel. Attaching twice is a no-op
// on the second call — one facade holds at most one handle. The returned
// error covers caller bugs only (empty domain, bad filter); connection
// failures surface through Status.
func (f *Facade) Attach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		return nil
	}
	sub, err := f.mgr.Subscribe(f.domain, f.filter)
	if err != nil {
		return err
	}
	f.sub = sub
	return nil
}

// Detach releases the facade's handle. The last facade on a channel tears
// it down. Detaching while detached is a no-op.
func (f *Facade) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return
	}
	f.mgr.Unsubscribe(f.sub)
	f.sub = nil
}

// Attached reports whether the facade currently holds a handle.
func (f *Facade) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub != nil
}

// Key returns the channel key the facade maps to, whether or not it is
// attached. Two facades with the same domain and an equivalent filter get
// the same key.
func (f *Facade) Key() (channel.Key, error) {
	return channel.KeyFor(f.domain, f.filter)
}

// Status returns the uniform domain snapshot. A detached facade reports as
// disabled; an attached one reflects the live channel.
func (f *Facade) Status() status.Status {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub == nil {
		return status.Disabled(f.domain)
	}
	return sub.Status()
}

// Updates streams the channel's payloads while attached; nil otherwise.
func (f *Facade) Updates() <-chan channel.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return nil
	}
	return f.sub.Updates()
}

// Replay returns the channel's recent messages while attached.
func (f *Facade) Replay() []replay.Message {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Replay()
}

// Manager exposes the underlying manager for the coordinator's fan-out.
func (f *Facade) Manager() *manager.Manager {
	return f.mgr
}
