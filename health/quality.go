// Package health classifies channel entries into connection-quality grades
// that consumers can act on.
package health

import (
	"time"

	"github.com/farmstand/realtime/channel"
)

// Quality grades a channel's connection. Ordered worst to best so that
// "worst of" is a plain min.
type Quality int

const (
	Disconnected Quality = iota
	Poor
	Fair
	Good
	Excellent
)

// String returns the lowercase name of the quality grade.
func (q Quality) String() string {
	switch q {
	case Disconnected:
		return "disconnected"
	case Poor:
		return "poor"
	case Fair:
		return "fair"
	case Good:
		return "good"
	case Excellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// Worse returns the lower-ranked of two qualities.
func Worse(a, b Quality) Quality {
	if a < b {
		return a
	}
	return b
}

// Thresholds parameterize classification. These are configuration, not
// load-bearing constants.
type Thresholds struct {
	// Staleness bounds how old the last activity may be while the channel
	// still counts as actively healthy.
	Staleness time.Duration
	// StabilityWindow is how long Good conditions must hold, error-free,
	// before a channel is graded Excellent.
	StabilityWindow time.Duration
}

// DefaultThresholds returns the default classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Staleness:       30 * time.Second,
		StabilityWindow: 2 * time.Minute,
	}
}

// Classify grades one entry snapshot. The checks form a strict precedence
// chain, worst grade first, so a tie always resolves toward the worse
// classification and health is never over-reported.
//
//	Disconnected — Closed, or Errored with no successful reconnect since.
//	Poor         — 3+ errors in the current session window, any state.
//	Fair         — 1–2 errors; or Open but stale; or still establishing.
//	Good         — Open, zero errors, activity within the staleness bound.
//	Excellent    — Good, and held error-free for the full stability window.
func Classify(s channel.Snapshot, now time.Time, th Thresholds) Quality {
	if s.State == channel.StateClosed || s.State == channel.StateErrored {
		return Disconnected
	}
	if s.ErrorCount >= 3 {
		return Poor
	}
	if s.ErrorCount >= 1 {
		return Fair
	}

	// Zero errors from here on.
	if s.State != channel.StateOpen {
		// Connecting or Reconnecting: not proven healthy yet.
		return Fair
	}
	if s.LastActivity.IsZero() || now.Sub(s.LastActivity) > th.Staleness {
		return Fair
	}
	if !s.OpenSince.IsZero() && now.Sub(s.OpenSince) >= th.StabilityWindow {
		return Excellent
	}
	return Good
}
