package registry

import (
	"sync/atomic"
	"time"

	"github.com/farmstand/realtime/channel"
)

// Handle is one consumer's claim on a logical channel. It is owned by the
// facade that acquired it; the registry tracks only the claim itself. A
// handle never exposes the underlying connection.
type Handle struct {
	ID        string
	Key       channel.Key
	Domain    string
	CreatedAt time.Time

	released atomic.Bool
	updates  chan channel.Update
}

// Updates returns the handle's message stream. The channel is buffered;
// when the consumer falls behind, new updates are dropped rather than
// stalling the channel's other consumers.
func (h *Handle) Updates() <-chan channel.Update {
	return h.updates
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	return h.released.Load()
}
