package manager

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/farmstand/realtime/channel"
	"github.com/farmstand/realtime/replay"
	"github.com/farmstand/realtime/transport"
)

// startDial launches the asynchronous first open for a fresh entry. The
// acquiring caller is never blocked on connection completion.
func (m *Manager) startDial(e *channel.Entry, filter []byte, initial bool) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if m.dialOnce(e, filter) {
			return
		}
		if initial {
			e.SetState(channel.StateErrored)
		}
		m.startReconnect(e, filter)
	}()
}

// dialOnce performs one connection attempt. Returns true when the attempt
// is terminal: the connection opened, or the entry shut down and retrying
// is pointless. Returns false when the attempt failed and the caller owns
// the retry.
func (m *Manager) dialOnce(e *channel.Entry, filter []byte) bool {
	attempt := e.NextAttempt()

	// Abort in-flight dials the moment the entry (or the manager) goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dialDone := make(chan struct{})
	defer close(dialDone)
	go func() {
		select {
		case <-e.Done():
		case <-m.stopCh:
		case <-dialDone:
		}
		cancel()
	}()

	conn, err := m.tr.Open(ctx, e.Domain, filter)
	if err != nil {
		e.RecordError(err.Error())
		if e.IsShutdown() {
			return true
		}
		m.log.Warn("channel dial failed",
			zap.String("channel", e.Key.Hex()),
			zap.String("domain", e.Domain),
			zap.Error(err))
		return false
	}

	// Refcount may have hit zero (or a newer attempt superseded this one)
	// while the open was in flight. The late connection is closed right
	// here and its result never reaches a status read.
	if !e.PublishConn(attempt, conn, time.Now()) {
		_ = conn.Close()
		return true
	}
	e.ResetErrors()
	m.log.Debug("channel open",
		zap.String("channel", e.Key.Hex()),
		zap.String("domain", e.Domain))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pump(e, conn, filter)
	}()
	return true
}

// startReconnect ensures at most one reconnect loop per entry.
func (m *Manager) startReconnect(e *channel.Entry, filter []byte) {
	if !e.TryStartReconnect() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer e.EndReconnect()
		m.reconnectLoop(e, filter)
	}()
}

// reconnectLoop retries the channel's connection with exponential backoff
// (base, factor, and cap from config; jittered) for as long as at least one
// consumer holds a handle. Release-to-zero closes the entry's Done channel,
// which cancels the pending timer wait immediately — no timer outlives its
// channel. A Kick restarts the sequence from the base delay.
func (m *Manager) reconnectLoop(e *channel.Entry, filter []byte) {
	b := &backoff.Backoff{
		Min:    m.cfg.BackoffBase.Std(),
		Max:    m.cfg.BackoffCap.Std(),
		Factor: m.cfg.BackoffFactor,
		Jitter: true,
	}

	e.SetState(channel.StateReconnecting)
	timer := time.NewTimer(b.Duration())
	defer timer.Stop()

	for {
		select {
		case <-e.Done():
			return
		case <-m.stopCh:
			return
		case <-e.KickCh():
			b.Reset()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if m.dialOnce(e, filter) {
			return
		}

		e.SetState(channel.StateReconnecting)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.Duration())
	}
}

// pump drains one connection's event stream: messages bump activity, feed
// the replay window, and fan out to every handle; errors count against the
// session window; the stream ending hands the entry to the reconnect loop
// unless the entry itself is done.
func (m *Manager) pump(e *channel.Entry, conn transport.Conn, filter []byte) {
	sawError := false
	for ev := range conn.Events() {
		if e.IsShutdown() {
			break
		}
		switch ev.Kind {
		case transport.EventMessage:
			e.Touch(ev.At)
			m.replays.Add(e.Key.Hex(), replay.Message{Payload: ev.Payload, ReceivedAt: ev.At})
			if dropped := e.Broadcast(channel.Update{Payload: ev.Payload, ReceivedAt: ev.At}); dropped > 0 {
				m.log.Debug("slow consumers missed an update",
					zap.String("channel", e.Key.Hex()),
					zap.Int("dropped", dropped))
			}
		case transport.EventHeartbeat:
			e.Touch(ev.At)
		case transport.EventError:
			sawError = true
			msg := "transport error"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			e.RecordError(msg)
			m.log.Warn("channel transport error",
				zap.String("channel", e.Key.Hex()),
				zap.String("domain", e.Domain),
				zap.String("error", msg))
		case transport.EventClosed:
			// Stream ends after this; fall out of the loop.
		}
	}

	// The connection is gone, or the entry shut down mid-stream.
	if c := e.TakeConn(); c != nil {
		_ = c.Close()
	}
	if e.IsShutdown() {
		return
	}
	select {
	case <-m.stopCh:
		return
	default:
	}

	if sawError {
		e.SetState(channel.StateErrored)
	}
	m.startReconnect(e, filter)
}
