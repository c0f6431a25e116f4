// Package manager implements the subscription coordination façade: the one
// component domain facades talk to. It owns the channel registry, the
// health monitor, the replay table, and the reconnection policy.
package manager

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/config"
	"github.com/farmstand/realtime/health"
	"github.com/farmstand/realtime/registry"
	"github.com/farmstand/realtime/replay"
	"github.com/farmstand/realtime/status"
	"github.com/farmstand/realtime/transport"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("manager: closed")

// Config wires a Manager's collaborators. Managers are constructed
// explicitly and passed to facades — there is no package-level instance, so
// tests run as many independent managers as they like.
type Config struct {
	// Transport opens channel connections. Required.
	Transport transport.Transport
	// Settings default to config.Default().
	Settings *config.Config
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Manager multiplexes consumers onto shared channel connections: at most
// one live connection per channel key, refcounted handles, centralized
// reconnection with exponential backoff, uniform status snapshots.
type Manager struct {
	cfg *config.Config
	log *zap.Logger
	tr  transport.Transport

	reg     *registry.Registry
	mon     *health.Monitor
	ring    *health.Ring
	replays *replay.Table

	cron *cron.Cron

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// New validates cfg and builds a Manager. Call Start to launch the
// background sweep and the optional cron health report.
func New(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, errors.New("manager: transport is required")
	}
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		cfg:    cfg.Settings,
		log:    cfg.Logger,
		tr:     cfg.Transport,
		stopCh: make(chan struct{}),
	}
	m.reg = registry.New(registry.Config{
		UpdatesBuffer: cfg.Settings.UpdatesBuffer,
		OnTeardown:    m.teardownEntry,
		Logger:        cfg.Logger.Named("registry"),
	})
	m.mon = health.NewMonitor(m.reg, health.Thresholds{
		Staleness:       cfg.Settings.StalenessThreshold.Std(),
		StabilityWindow: cfg.Settings.StabilityWindow.Std(),
	})
	m.ring = health.NewRing(cfg.Settings.RingCapacity)
	m.replays = replay.NewTable(cfg.Settings.ReplayChannels, cfg.Settings.ReplayWindow)

	if cfg.Settings.ReportSchedule != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(cfg.Settings.ReportSchedule, m.reportHealth); err != nil {
			return nil, fmt.Errorf("manager: report schedule: %w", err)
		}
	}
	return m, nil
}

// Start launches the jittered health sweep and, if configured, the cron
// health report.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweepLoop()
	}()
	if m.cron != nil {
		m.cron.Start()
	}
}

// Subscribe attaches a consumer to the logical channel identified by
// (domain, filter). The first consumer triggers an asynchronous transport
// open; later consumers share the existing connection. Returns synchronous
// misuse errors only (empty domain, unmarshalable filter) — connection
// failures surface through Status, never here.
func (m *Manager) Subscribe(domain string, filter any) (*Subscription, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	canonical, err := channel.CanonicalFilter(filter)
	if err != nil {
		return nil, err
	}
	key, err := channel.KeyFor(domain, filter)
	if err != nil {
		return nil, err
	}

	h, err := m.reg.Acquire(key, domain, func(e *channel.Entry) error {
		m.startDial(e, canonical, true)
		return nil
	})
	if err != nil {
		// Handle is still acquired per registry contract; surface the bug.
		return &Subscription{m: m, h: h, filter: canonical}, err
	}
	m.log.Debug("subscribed",
		zap.String("channel", key.Hex()),
		zap.String("domain", domain))
	return &Subscription{m: m, h: h, filter: canonical}, nil
}

// Unsubscribe releases a consumer's claim. The last release tears the
// channel down within this call: the entry leaves the registry, pending
// backoff timers are woken and exit, and the transport close completes
// asynchronously. Double unsubscribe logs a warning and is a no-op.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		m.log.Warn("unsubscribe of nil subscription")
		return
	}
	m.reg.Release(sub.h)
}

// Status computes the immutable snapshot for a channel key.
func (m *Manager) Status(key channel.Key) (status.Status, bool) {
	rec, ok := m.mon.Record(key)
	if !ok {
		return status.Status{}, false
	}
	return status.FromRecord(rec.Domain, rec), true
}

// StatusFor computes the snapshot for (domain, filter); a channel with no
// live entry reports as disabled.
func (m *Manager) StatusFor(domain string, filter any) status.Status {
	key, err := channel.KeyFor(domain, filter)
	if err != nil {
		st := status.Disabled(domain)
		st.Err = err.Error()
		return st
	}
	if st, ok := m.Status(key); ok {
		return st
	}
	return status.Disabled(domain)
}

// ReconnectAll forces every live channel to restart its backoff sequence
// from the base delay. Open channels are dropped and redialed; channels
// already backing off retry immediately. Used for manual "retry" actions.
func (m *Manager) ReconnectAll() {
	m.reg.Range(func(_ channel.Key, e *channel.Entry) bool {
		switch e.State() {
		case channel.StateOpen:
			if c := e.TakeConn(); c != nil {
				go func() { _ = c.Close() }()
			}
		default:
			e.Kick()
		}
		return true
	})
	m.log.Info("reconnect-all requested", zap.Int("channels", m.reg.Size()))
}

// Health exposes the monitor for dashboards and the aggregator.
func (m *Manager) Health() *health.Monitor {
	return m.mon
}

// QualityHistory exposes the sweep-time quality samples.
func (m *Manager) QualityHistory() *health.Ring {
	return m.ring
}

// Channels returns the number of live channel entries.
func (m *Manager) Channels() int {
	return m.reg.Size()
}

// Close tears down every channel, stops the background loops, and waits
// for all coordinator goroutines to exit. Subscribe fails afterwards;
// stray Unsubscribe calls become no-ops.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	for _, e := range m.reg.Drain() {
		if c := e.TakeConn(); c != nil {
			_ = c.Close()
		}
	}
	m.wg.Wait()
	m.replays.Close()
	m.log.Debug("manager closed")
}

// teardownEntry runs when an entry leaves the registry at refcount zero.
// Shutdown has already begun (timers woken, state Closed); only the
// transport close remains, and that may finish asynchronously.
func (m *Manager) teardownEntry(e *channel.Entry) {
	m.replays.Forget(e.Key.Hex())
	if c := e.TakeConn(); c != nil {
		go func() { _ = c.Close() }()
	}
	m.log.Debug("channel torn down",
		zap.String("channel", e.Key.Hex()),
		zap.String("domain", e.Domain))
}
