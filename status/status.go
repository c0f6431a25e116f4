// Package status defines the uniform status shapes shared by every domain
// facade and the coordinator-level aggregate built from them.
package status

import (
	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/health"
)

// Status is the immutable per-domain snapshot handed to UI consumers.
// Every facade returns exactly this type — the uniformity is the contract
// that lets a generic aggregator and a generic error boundary treat all
// domains alike.
type Status struct {
	Domain    string         `json:"domain"`
	Enabled   bool           `json:"isEnabled"`
	Connected bool           `json:"isConnected"`
	Healthy   bool           `json:"isHealthy"`
	Quality   health.Quality `json:"connectionQuality"`
	Err       string         `json:"error,omitempty"`
}

// Disabled returns the snapshot for a domain with no active subscription.
func Disabled(domain string) Status {
	return Status{
		Domain:  domain,
		Quality: health.Disconnected,
	}
}

// FromRecord builds an enabled-domain snapshot from a health record.
func FromRecord(domain string, rec health.Record) Status {
	return Status{
		Domain:    domain,
		Enabled:   true,
		Connected: rec.State == channel.StateOpen,
		Healthy:   rec.Quality >= health.Good,
		Quality:   rec.Quality,
		Err:       rec.LastError,
	}
}
