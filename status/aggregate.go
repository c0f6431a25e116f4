package status

import "github.com/farmstand/realtime/health"

// Summary is the coordinator-level health object combining N domain
// statuses for top-level UI.
type Summary struct {
	// Healthy is the AND over enabled domains; disabled domains are
	// excluded from the AND, not counted as unhealthy. Vacuously true when
	// nothing is enabled.
	Healthy bool `json:"isHealthy"`
	// Quality is the worst grade among enabled domains (Disconnected when
	// nothing is enabled).
	Quality   health.Quality `json:"connectionQuality"`
	Enabled   int            `json:"enabledDomains"`
	Connected int            `json:"connectedDomains"`
	Domains   []Status       `json:"domains"`
}

// Aggregate folds domain statuses into one summary. Tie-breaks favor the
// worse quality, matching the per-channel classification policy.
func Aggregate(domains []Status) Summary {
	s := Summary{
		Healthy: true,
		Quality: health.Disconnected,
		Domains: domains,
	}

	first := true
	for _, d := range domains {
		if !d.Enabled {
			continue
		}
		s.Enabled++
		if d.Connected {
			s.Connected++
		}
		s.Healthy = s.Healthy && d.Healthy
		if first {
			s.Quality = d.Quality
			first = false
		} else {
			s.Quality = health.Worse(s.Quality, d.Quality)
		}
	}
	return s
}
