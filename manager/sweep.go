package manager

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/farmstand/realtime/health"
)

// sweepLoop samples channel quality on a jittered interval and feeds the
// ring buffer. Jitter keeps many coordinators in one process from sweeping
// in lockstep.
func (m *Manager) sweepLoop() {
	timer := time.NewTimer(m.sweepDelay())
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-timer.C:
		}
		m.sweep(time.Now())
		timer.Reset(m.sweepDelay())
	}
}

func (m *Manager) sweepDelay() time.Duration {
	d := m.cfg.SweepInterval.Std()
	if j := m.cfg.SweepJitter.Std(); j > 0 {
		d += time.Duration(rand.Int63n(int64(j)))
	}
	return d
}

func (m *Manager) sweep(now time.Time) {
	sample := health.SampleRecords(m.mon.Records(), now)
	m.ring.Push(sample)
	m.log.Debug("health sweep",
		zap.Int("channels", sample.Channels),
		zap.Stringer("worst", sample.Worst))
}

// reportHealth is the cron-scheduled summary line. It reads the latest
// sweep sample rather than recomputing, so the report and the dashboard
// always agree.
func (m *Manager) reportHealth() {
	sample, ok := m.ring.Latest()
	if !ok {
		sample = health.SampleRecords(m.mon.Records(), time.Now())
	}
	m.log.Info("channel health report",
		zap.Int("channels", sample.Channels),
		zap.Stringer("worst", sample.Worst),
		zap.Int("disconnected", sample.Counts[health.Disconnected]),
		zap.Int("poor", sample.Counts[health.Poor]),
		zap.Int("fair", sample.Counts[health.Fair]),
		zap.Int("good", sample.Counts[health.Good]),
		zap.Int("excellent", sample.Counts[health.Excellent]))
}
