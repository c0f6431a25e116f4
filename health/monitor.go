package health

import (
	"time"

	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/registry"
)

// Record is the derived, read-only health view of one channel. Recomputed
// on every read; never stored beyond the process.
type Record struct {
	Key          channel.Key
	Domain       string
	State        channel.State
	Quality      Quality
	Refs         int
	ErrorCount   int
	LastActivity time.Time
	LastError    string
}

// Monitor translates raw registry state into quality records.
type Monitor struct {
	reg *registry.Registry
	th  Thresholds
}

// NewMonitor creates a Monitor over the given registry.
func NewMonitor(reg *registry.Registry, th Thresholds) *Monitor {
	if th.Staleness <= 0 {
		th.Staleness = DefaultThresholds().Staleness
	}
	if th.StabilityWindow <= 0 {
		th.StabilityWindow = DefaultThresholds().StabilityWindow
	}
	return &Monitor{reg: reg, th: th}
}

// Thresholds returns the monitor's classification thresholds.
func (m *Monitor) Thresholds() Thresholds {
	return m.th
}

// Record computes the health record for one channel key.
func (m *Monitor) Record(key channel.Key) (Record, bool) {
	e, ok := m.reg.Get(key)
	if !ok {
		return Record{}, false
	}
	return m.record(e.Snapshot(), time.Now()), true
}

// Records computes health records for every live channel.
func (m *Monitor) Records() []Record {
	now := time.Now()
	records := make([]Record, 0, m.reg.Size())
	m.reg.Range(func(_ channel.Key, e *channel.Entry) bool {
		records = append(records, m.record(e.Snapshot(), now))
		return true
	})
	return records
}

// Worst returns the lowest quality among live channels. ok is false when
// there are no channels to grade.
func (m *Monitor) Worst() (worst Quality, ok bool) {
	worst = Excellent
	m.reg.Range(func(_ channel.Key, e *channel.Entry) bool {
		ok = true
		worst = Worse(worst, Classify(e.Snapshot(), time.Now(), m.th))
		return worst > Disconnected // already at the floor, stop early
	})
	if !ok {
		return Disconnected, false
	}
	return worst, true
}

func (m *Monitor) record(s channel.Snapshot, now time.Time) Record {
	return Record{
		Key:          s.Key,
		Domain:       s.Domain,
		State:        s.State,
		Quality:      Classify(s, now, m.th),
		Refs:         s.Refs,
		ErrorCount:   s.ErrorCount,
		LastActivity: s.LastActivity,
		LastError:    s.LastError,
	}
}
