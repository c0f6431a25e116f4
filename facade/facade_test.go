package facade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farmstand/realtime/config"
	"github.com/farmstand/realtime/health"
	"github.com/farmstand/realtime/manager"
	"github.com/farmstand/realtime/transport"
)

// fakeConn is a minimal scriptable connection for facade-level tests.
type fakeConn struct {
	mu     sync.Mutex
	events chan transport.Event
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 16)}
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) message(payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- transport.Event{Kind: transport.EventMessage, Payload: []byte(payload), At: time.Now()}
}

type fakeTransport struct {
	mu    sync.Mutex
	fail  bool
	opens int
	conns []*fakeConn
}

func (f *fakeTransport) Open(ctx context.Context, domain string, filter []byte) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.fail {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) Conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func newTestManager(t *testing.T, ft *fakeTransport) *manager.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.BackoffBase = config.Duration(5 * time.Millisecond)
	cfg.BackoffCap = config.Duration(20 * time.Millisecond)
	cfg.SweepInterval = config.Duration(10 * time.Millisecond)
	cfg.SweepJitter = config.Duration(time.Millisecond)
	m, err := manager.New(manager.Config{Transport: ft, Settings: cfg})
	if err != nil {
		t.Fatal(err)
	}
	m.Start()
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Facade tests ---

func TestFacade_AttachIdempotent(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	f := NewInventory(m, InventoryFilter{SellerID: "s-1"})

	if f.Attached() {
		t.Fatal("facade must start detached")
	}
	if err := f.Attach(); err != nil {
		t.Fatal(err)
	}
	if err := f.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "open", func() bool { return ft.Opens() == 1 })
	if m.Channels() != 1 {
		t.Fatalf("double attach leaked a channel: %d", m.Channels())
	}

	f.Detach()
	f.Detach() // no-op
	waitFor(t, "teardown", func() bool { return m.Channels() == 0 })
}

func TestFacade_SharedChannelAcrossFacades(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)

	f1 := NewInventory(m, InventoryFilter{SellerID: "s-1", Location: "us"})
	f2 := NewInventory(m, InventoryFilter{SellerID: "s-1", Location: "us"})

	k1, err := f1.Key()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := f2.Key()
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("equivalent facades must share one channel key")
	}

	if err := f1.Attach(); err != nil {
		t.Fatal(err)
	}
	if err := f2.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "single open", func() bool { return ft.Opens() == 1 })

	f1.Detach()
	time.Sleep(20 * time.Millisecond)
	if m.Channels() != 1 {
		t.Fatal("channel must survive while the second facade is attached")
	}
	f2.Detach()
	waitFor(t, "teardown", func() bool { return m.Channels() == 0 })
}

func TestFacade_StatusShape(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	f := NewMarketing(m, MarketingFilter{CampaignID: "c-1"})

	st := f.Status()
	if st.Enabled || st.Connected || st.Healthy {
		t.Fatalf("detached facade must report disabled, got %+v", st)
	}
	if st.Domain != DomainMarketing {
		t.Fatalf("unexpected domain %q", st.Domain)
	}

	if err := f.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "open", func() bool { return ft.Conn(0) != nil })
	ft.Conn(0).message(`{}`)
	waitFor(t, "healthy", func() bool {
		st := f.Status()
		return st.Enabled && st.Connected && st.Healthy
	})
}

func TestFacade_AttachCallerBug(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	f := New(m, "", nil)

	if err := f.Attach(); err == nil {
		t.Fatal("expected error for empty domain")
	}
	if f.Attached() {
		t.Fatal("failed attach must leave the facade detached")
	}
}

func TestFacade_UpdatesAndReplay(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)
	f := NewInventory(m, InventoryFilter{SellerID: "s-1"})

	if f.Updates() != nil || f.Replay() != nil {
		t.Fatal("detached facade exposes no stream")
	}
	if err := f.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "open", func() bool { return ft.Conn(0) != nil })
	ft.Conn(0).message(`{"sku":"a"}`)

	select {
	case u := <-f.Updates():
		if string(u.Payload) != `{"sku":"a"}` {
			t.Fatalf("unexpected payload %q", u.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("facade never received the update")
	}
	waitFor(t, "replay", func() bool { return len(f.Replay()) == 1 })
}

// --- Coordinator tests ---

func TestCoordinator_Summary(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)

	healthyF := NewInventory(m, InventoryFilter{SellerID: "s-1"})
	failingF := NewMarketing(m, MarketingFilter{CampaignID: "c-1"})
	disabledF := NewInventory(m, InventoryFilter{SellerID: "s-2"})
	c := NewCoordinator(healthyF, failingF)
	c.Add(disabledF)

	if err := healthyF.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "open", func() bool { return ft.Conn(0) != nil })
	ft.Conn(0).message(`{}`)
	waitFor(t, "healthy facade", func() bool { return healthyF.Status().Healthy })

	// Dials for the marketing facade fail from here on.
	ft.mu.Lock()
	ft.fail = true
	ft.mu.Unlock()
	if err := failingF.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "unhealthy facade", func() bool {
		st := failingF.Status()
		return st.Enabled && !st.Healthy
	})

	s := c.Summary()
	if s.Healthy {
		t.Fatal("one unhealthy enabled domain must sink the aggregate")
	}
	if s.Enabled != 2 {
		t.Fatalf("expected 2 enabled domains, got %d", s.Enabled)
	}
	if s.Quality >= health.Good {
		t.Fatalf("aggregate quality must be the worst enabled grade, got %s", s.Quality)
	}
	if len(s.Domains) != 3 {
		t.Fatalf("expected 3 domain statuses, got %d", len(s.Domains))
	}
}

func TestCoordinator_SummaryAllHealthy(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)

	f1 := NewInventory(m, InventoryFilter{SellerID: "s-1"})
	f2 := NewInventory(m, InventoryFilter{SellerID: "s-2"})
	c := NewCoordinator(f1, f2)

	if err := f1.Attach(); err != nil {
		t.Fatal(err)
	}
	if err := f2.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both open", func() bool { return ft.Conn(0) != nil && ft.Conn(1) != nil })
	ft.Conn(0).message(`{}`)
	ft.Conn(1).message(`{}`)

	waitFor(t, "healthy aggregate", func() bool {
		s := c.Summary()
		return s.Healthy && s.Enabled == 2 && s.Connected == 2
	})
}

func TestCoordinator_EmptyIsVacuouslyHealthy(t *testing.T) {
	c := NewCoordinator()
	s := c.Summary()
	if !s.Healthy {
		t.Fatal("empty coordinator should be vacuously healthy")
	}
	if s.Quality != health.Disconnected {
		t.Fatalf("expected disconnected, got %s", s.Quality)
	}
}

func TestCoordinator_ReconnectAllOncePerManager(t *testing.T) {
	ft := &fakeTransport{}
	m := newTestManager(t, ft)

	f1 := NewInventory(m, InventoryFilter{SellerID: "s-1"})
	f2 := NewMarketing(m, MarketingFilter{CampaignID: "c-1"})
	c := NewCoordinator(f1, f2)

	if err := f1.Attach(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "open", func() bool { return ft.Conn(0) != nil })

	c.ReconnectAll()
	waitFor(t, "redial", func() bool { return ft.Conn(1) != nil })
	waitFor(t, "connected again", func() bool { return f1.Status().Connected })
}
