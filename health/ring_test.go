package health

import (
	"testing"
	"time"
)

// --- Sampling tests ---

func TestSampleRecords(t *testing.T) {
	now := time.Now()
	records := []Record{
		{Quality: Good},
		{Quality: Good},
		{Quality: Poor},
		{Quality: Excellent},
	}
	s := SampleRecords(records, now)
	if s.Channels != 4 {
		t.Fatalf("expected 4 channels, got %d", s.Channels)
	}
	if s.Worst != Poor {
		t.Fatalf("expected worst poor, got %s", s.Worst)
	}
	if s.Counts[Good] != 2 || s.Counts[Poor] != 1 || s.Counts[Excellent] != 1 {
		t.Fatalf("unexpected counts %v", s.Counts)
	}
}

func TestSampleRecords_Empty(t *testing.T) {
	s := SampleRecords(nil, time.Now())
	if s.Channels != 0 {
		t.Fatalf("expected 0 channels, got %d", s.Channels)
	}
	if s.Worst != Disconnected {
		t.Fatalf("expected disconnected for empty set, got %s", s.Worst)
	}
}

// --- Ring tests ---

func TestRing_Overwrite(t *testing.T) {
	r := NewRing(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.Push(Sample{Timestamp: base.Add(time.Duration(i) * time.Second), Channels: i})
	}

	latest, ok := r.Latest()
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if latest.Channels != 4 {
		t.Fatalf("expected latest channels 4, got %d", latest.Channels)
	}

	samples := r.Query(base, base.Add(time.Hour))
	if len(samples) != 3 {
		t.Fatalf("expected capacity-bounded 3 samples, got %d", len(samples))
	}
	// Newest first.
	if samples[0].Channels != 4 || samples[2].Channels != 2 {
		t.Fatalf("unexpected order: %v", samples)
	}
}

func TestRing_QueryWindow(t *testing.T) {
	r := NewRing(10)
	base := time.Now()
	for i := 0; i < 6; i++ {
		r.Push(Sample{Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	got := r.Query(base.Add(2*time.Minute), base.Add(4*time.Minute))
	if len(got) != 3 {
		t.Fatalf("expected 3 samples in window, got %d", len(got))
	}
}

func TestRing_Empty(t *testing.T) {
	r := NewRing(4)
	if _, ok := r.Latest(); ok {
		t.Fatal("empty ring should have no latest sample")
	}
	if got := r.Query(time.Time{}, time.Now()); len(got) != 0 {
		t.Fatalf("empty ring query returned %d samples", len(got))
	}
}
