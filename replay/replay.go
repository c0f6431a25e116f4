// Package replay keeps a bounded window of recent messages per channel so
// late-attaching consumers can warm their view before live updates arrive.
package replay

import (
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// Message is one retained channel payload.
type Message struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Table is a bounded, thread-safe per-channel replay window backed by an
// otter cache. Channels are evicted LRU when the channel bound is hit;
// within a channel, only the newest window of messages is retained.
// In-memory only; nothing is persisted.
type Table struct {
	mu     sync.Mutex
	cache  otter.Cache[string, []Message]
	window int
}

// NewTable creates a Table bounded to maxChannels channels of at most
// window messages each.
func NewTable(maxChannels, window int) *Table {
	if window <= 0 {
		window = 16
	}
	cache, err := otter.MustBuilder[string, []Message](maxChannels).
		Cost(func(_ string, _ []Message) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("replay: failed to create table: " + err.Error())
	}
	return &Table{cache: cache, window: window}
}

// Add appends a message to the channel's window, dropping the oldest
// retained message once the window is full.
func (t *Table) Add(channelKey string, m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs, _ := t.cache.Get(channelKey)
	msgs = append(msgs, m)
	if len(msgs) > t.window {
		msgs = msgs[len(msgs)-t.window:]
	}
	t.cache.Set(channelKey, msgs)
}

// Recent returns a copy of the channel's retained window, oldest first.
func (t *Table) Recent(channelKey string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs, ok := t.cache.Get(channelKey)
	if !ok {
		return nil
	}
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	return cp
}

// Forget drops the channel's window, e.g. when its entry is torn down.
func (t *Table) Forget(channelKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(channelKey)
}

// Size returns the number of channels with retained messages.
func (t *Table) Size() int {
	return t.cache.Size()
}

// Close releases resources held by the underlying cache.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Close()
}
