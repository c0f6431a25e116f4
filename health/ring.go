package health

import (
	"sync"
	"time"
)

// Sample is one point in the quality ring buffer: the per-grade channel
// counts observed on one sweep.
type Sample struct {
	Timestamp time.Time
	Counts    [Excellent + 1]int
	Worst     Quality
	Channels  int
}

// Ring is a fixed-size ring buffer of quality samples for dashboards.
// In-memory only; nothing outlives the process.
type Ring struct {
	mu      sync.RWMutex
	samples []Sample
	head    int
	count   int
	cap     int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 360 // 1 hour at a 10s sweep
	}
	return &Ring{
		samples: make([]Sample, capacity),
		cap:     capacity,
	}
}

// SampleRecords folds a record set into one Sample stamped at now.
func SampleRecords(records []Record, now time.Time) Sample {
	s := Sample{Timestamp: now, Worst: Excellent, Channels: len(records)}
	if len(records) == 0 {
		s.Worst = Disconnected
		return s
	}
	for _, rec := range records {
		s.Counts[rec.Quality]++
		s.Worst = Worse(s.Worst, rec.Quality)
	}
	return s
}

// Push adds a sample, overwriting the oldest when full.
func (r *Ring) Push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.head] = s
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// Query returns samples within [from, to], newest first.
func (r *Ring) Query(from, to time.Time) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Sample
	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + r.cap) % r.cap
		s := r.samples[idx]
		if s.Timestamp.Before(from) {
			break // ring is chronologically ordered; stop early
		}
		if !s.Timestamp.After(to) {
			result = append(result, s)
		}
	}
	return result
}

// Latest returns the most recent sample.
func (r *Ring) Latest() (Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return Sample{}, false
	}
	idx := (r.head - 1 + r.cap) % r.cap
	return r.samples[idx], true
}
