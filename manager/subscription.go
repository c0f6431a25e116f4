package manager

import (
	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/registry"
	"github.com/farmstand/realtime/replay"
	"github.com/farmstand/realtime/status"
)

// Subscription is one consumer's claim on a shared channel. Updates arrive
// on a per-subscription buffered channel; slow consumers lose updates, they
// never stall the fan-out.
type Subscription struct {
	m      *Manager
	h      *registry.Handle
	filter []byte
}

// Key identifies the underlying shared channel.
func (s *Subscription) Key() channel.Key {
	return s.h.Key
}

// Domain returns the channel's domain name.
func (s *Subscription) Domain() string {
	return s.h.Domain
}

// Updates streams channel payloads to this consumer.
func (s *Subscription) Updates() <-chan channel.Update {
	return s.h.Updates()
}

// Replay returns the channel's recent messages, oldest first. A consumer
// subscribing to an already-open channel uses this to catch up.
func (s *Subscription) Replay() []replay.Message {
	return s.m.replays.Recent(s.h.Key.Hex())
}

// Status computes the channel's current snapshot. After the last handle on
// the channel is released the channel reports as disabled.
func (s *Subscription) Status() status.Status {
	if st, ok := s.m.Status(s.h.Key); ok {
		return st
	}
	return status.Disabled(s.h.Domain)
}

// Released reports whether this subscription has been unsubscribed.
func (s *Subscription) Released() bool {
	return s.h.Released()
}
