package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shiftgrid/realtime/internal/api"
	"github.com/shiftgrid/realtime/internal/metrics"
	"github.com/shiftgrid/realtime/internal/model"
	"github.com/shiftgrid/realtime/internal/poller"
	"github.com/shiftgrid/realtime/internal/queue"
	"github.com/shiftgrid/realtime/internal/socket"
)

// socketMessage aliases the socket transport's inbound message type so the
// real client satisfies socketClient without an adapter.
type socketMessage = socket.Message

// dialSocket is the production dial function.
func (m *Manager) dialSocket(url string) socketClient {
	return socket.NewClient(socket.Config{
		URL:               url,
		HeartbeatInterval: m.cfg.HeartbeatInterval,
		PongTimeout:       m.cfg.PongTimeout,
		WriteTimeout:      m.cfg.WriteTimeout,
		BufferSize:        m.cfg.BufferSize,
	}, m.logger)
}

// startConnectCycle begins a fresh connection cycle at the given first
// attempt number. Attempt 0 is an initial connect (state connecting);
// attempt 1+ are reconnects after a drop (state reconnecting, with backoff).
// Any cycle still in flight is cancelled first.
func (m *Manager) startConnectCycle(firstAttempt int) {
	m.mu.Lock()
	if m.destroyed || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	if m.cycleCancel != nil {
		m.cycleCancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cycleCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.connectCycle(ctx, firstAttempt)
}

// connectCycle attempts to establish the socket transport, backing off
// exponentially between attempts. Exhausting the budget falls back to
// polling — never to error; error is reserved for setup failures.
func (m *Manager) connectCycle(ctx context.Context, attempt int) {
	defer m.wg.Done()

	for ; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		if attempt == 0 {
			m.setState(model.StateConnecting)
		} else {
			if attempt > m.cfg.MaxReconnectAttempts {
				m.enterPolling()
				return
			}

			m.setState(model.StateReconnecting)
			metrics.RecordReconnectAttempt()
			m.statsMu.Lock()
			m.reconnects++
			m.statsMu.Unlock()

			delay := Backoff(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, attempt)
			m.logger.Info("reconnecting",
				"attempt", attempt,
				"max_attempts", m.cfg.MaxReconnectAttempts,
				"delay", delay,
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		url := socket.BuildURL(m.cfg.WSBase, m.identity, m.tokens.Token())
		sock := m.dial(url)

		if err := sock.Connect(ctx); err != nil {
			m.logger.Warn("socket connect failed", "attempt", attempt, "error", err)
			sock.Close()
			continue
		}

		m.mu.Lock()
		if m.destroyed || ctx.Err() != nil {
			m.mu.Unlock()
			sock.Close()
			return
		}
		m.sock = sock
		visible := m.visible
		m.mu.Unlock()

		if !visible {
			sock.SuspendHeartbeat()
		}

		m.setState(model.StateConnected)
		m.drainAsync()

		m.wg.Add(1)
		go m.readLoop(ctx, sock)
		return
	}
}

// readLoop consumes the active socket until it errors or the cycle ends.
// Inbound events go through the shared dispatch path; a connection error
// starts a reconnect cycle (attempt 1, so backoff applies immediately).
func (m *Manager) readLoop(ctx context.Context, sock socketClient) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-sock.Errors():
			m.mu.Lock()
			destroyed := m.destroyed
			if m.sock == sock {
				m.sock = nil
			}
			m.mu.Unlock()

			sock.Close()

			if destroyed || ctx.Err() != nil {
				return
			}

			m.logger.Warn("socket connection lost", "error", err)
			m.startConnectCycle(1)
			return

		case msg, ok := <-sock.Messages():
			if !ok {
				return
			}
			m.dispatch(msg.Envelope, "socket")
		}
	}
}

// enterPolling switches to the degraded periodic-fetch transport. Polling is
// terminal until a manual Reconnect or a network-online signal. The queue is
// drained here too: the REST channel is the one polling itself relies on, so
// leaving user actions parked for the whole degraded session would be worse
// than an occasional failed (and re-queued) replay.
func (m *Manager) enterPolling() {
	pollCfg := poller.Config{
		Interval: m.cfg.PollInterval,
		Timeout:  m.cfg.PollTimeout,
	}

	handle := func(env model.Envelope) {
		m.dispatch(env, "poll")
	}

	p := poller.New(pollCfg, m.client, m.identity, m.tokens, handle, m.onPollingAuthFailure, m.logger)

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.poll = p
	ctx := m.ctx
	m.mu.Unlock()

	m.setState(model.StatePolling)

	if err := p.Start(ctx); err != nil {
		m.logger.Error("failed to start poller", "error", err)
		return
	}

	m.drainAsync()
}

// stopPoller stops the fallback poller if one is running.
func (m *Manager) stopPoller() {
	m.mu.Lock()
	p := m.poll
	m.poll = nil
	m.mu.Unlock()

	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Stop(ctx)
}

// onPollingAuthFailure handles a failed credential refresh during polling.
// The poller has already stopped; the credential is unusable, so this is a
// setup-class failure: state error, no automatic retry.
func (m *Manager) onPollingAuthFailure(err error) {
	m.logger.Error("credential refresh failed, realtime updates stopped", "error", err)

	m.mu.Lock()
	m.poll = nil
	m.mu.Unlock()

	m.setState(model.StateError)
}

// drainAsync replays the offline queue in the background. The queue itself
// serializes concurrent drains.
func (m *Manager) drainAsync() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		delivered, err := m.actions.Drain(m.ctx, m.sendQueued)
		metrics.SetQueueDepth(m.actions.Len())

		if delivered > 0 {
			m.logger.Info("offline queue drained", "delivered", delivered)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("queue drain halted", "delivered", delivered, "error", err)
		}
	}()
}

// sendQueued delivers one queued action and classifies the outcome for the
// queue: success, undeliverable (dropped), or failure (re-queued at tail).
func (m *Manager) sendQueued(ctx context.Context, action model.QueuedAction) error {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := m.client.SendAction(sendCtx, m.identity, action)
	switch {
	case err == nil:
		metrics.RecordActionReplay("delivered")
		return nil
	case errors.Is(err, api.ErrUnknownActionType), errors.Is(err, api.ErrMalformedPayload):
		metrics.RecordActionReplay("dropped")
		return fmt.Errorf("%w: %s", queue.ErrUndeliverable, err)
	default:
		metrics.RecordActionReplay("requeued")
		return err
	}
}

// watchSignals reacts to visibility and connectivity transitions from the
// platform. These are inputs to the state machine, not independent deciders.
func (m *Manager) watchSignals() {
	defer m.wg.Done()

	vis := m.signals.Visibility()
	net := m.signals.Connectivity()

	for {
		select {
		case <-m.ctx.Done():
			return

		case v, ok := <-vis:
			if !ok {
				vis = nil
				continue
			}
			m.onVisibility(v)

		case online, ok := <-net:
			if !ok {
				net = nil
				continue
			}
			m.onConnectivity(online)
		}
	}
}

// onVisibility suspends the heartbeat while hidden (the connection stays
// open) and resumes it — or retries the connection — on becoming visible.
func (m *Manager) onVisibility(visible bool) {
	m.mu.Lock()
	m.visible = visible
	sock := m.sock
	state := m.state
	m.mu.Unlock()

	if !visible {
		if sock != nil {
			sock.SuspendHeartbeat()
		}
		return
	}

	if sock != nil && sock.IsConnected() {
		sock.ResumeHeartbeat()
		return
	}

	if state == model.StateDisconnected {
		m.startConnectCycle(0)
	}
}

// onConnectivity moves the machine to offline when the network goes away and
// restarts the transport selector when it returns. A network-online signal
// is also the automatic exit from terminal polling mode.
func (m *Manager) onConnectivity(online bool) {
	if !online {
		m.mu.Lock()
		if m.cycleCancel != nil {
			m.cycleCancel()
			m.cycleCancel = nil
		}
		sock := m.sock
		m.sock = nil
		m.mu.Unlock()

		if sock != nil {
			sock.Close()
		}
		m.stopPoller()

		m.setState(model.StateOffline)
		return
	}

	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state == model.StateOffline || state == model.StatePolling {
		m.stopPoller()
		m.startConnectCycle(0)
	}
}
