package facade

import (
	"sync"

	"github.com/farmstand/realtime/manager"
	"github.com/farmstand/realtime/status"
)

// Coordinator aggregates the statuses of several domain facades into one
// top-level health object. Disabled domains are excluded from the health
// AND, not counted as unhealthy.
type Coordinator struct {
	mu      sync.RWMutex
	facades []*Facade
}

// NewCoordinator builds a coordinator over the given facades.
func NewCoordinator(facades ...*Facade) *Coordinator {
	return &Coordinator{facades: facades}
}

// Add registers another facade with the coordinator.
func (c *Coordinator) Add(f *Facade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facades = append(c.facades, f)
}

// Summary combines every facade's current status.
func (c *Coordinator) Summary() status.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	statuses := make([]status.Status, 0, len(c.facades))
	for _, f := range c.facades {
		statuses = append(statuses, f.Status())
	}
	return status.Aggregate(statuses)
}

// ReconnectAll fans the manual-retry action out to every underlying
// manager, once per manager even when facades share one.
func (c *Coordinator) ReconnectAll() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[*manager.Manager]struct{}, len(c.facades))
	for _, f := range c.facades {
		m := f.Manager()
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		m.ReconnectAll()
	}
}
