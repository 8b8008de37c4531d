package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shiftgrid/realtime/internal/api"
	"github.com/shiftgrid/realtime/internal/auth"
	"github.com/shiftgrid/realtime/internal/bus"
	"github.com/shiftgrid/realtime/internal/metrics"
	"github.com/shiftgrid/realtime/internal/model"
	"github.com/shiftgrid/realtime/internal/platform"
	"github.com/shiftgrid/realtime/internal/poller"
	"github.com/shiftgrid/realtime/internal/queue"
)

// ErrAuthenticationRequired is returned by Initialize when no credential is
// available. Fatal for the attempt: the caller must re-authenticate and
// re-initialize.
var ErrAuthenticationRequired = errors.New("realtime: authentication required")

// ErrDestroyed is returned by operations on a destroyed manager.
var ErrDestroyed = errors.New("realtime: manager destroyed")

// Config holds manager settings.
type Config struct {
	WSBase string // socket base URL, e.g. "wss://api.example.com"

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	BufferSize        int

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for everything but WSBase.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    15 * time.Second,
		PongTimeout:          45 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           256,
		PollInterval:         30 * time.Second,
		PollTimeout:          10 * time.Second,
	}
}

// Stats is a point-in-time snapshot of manager counters.
type Stats struct {
	State            model.ConnectionState
	QueueDepth       int
	EventsDispatched int64
	Reconnects       int64
}

// socketClient is the slice of the socket client the manager drives.
// Narrowed to an interface so tests can substitute transports.
type socketClient interface {
	Connect(ctx context.Context) error
	Close() error
	Send(env model.Envelope) error
	Messages() <-chan socketMessage
	Errors() <-chan error
	IsConnected() bool
	SuspendHeartbeat()
	ResumeHeartbeat()
}

// Manager owns the connection state machine for one identity.
type Manager struct {
	cfg      Config
	identity model.Identity
	tokens   auth.TokenSource
	client   *api.Client
	registry *bus.Bus
	actions  *queue.Queue
	signals  platform.Signals
	logger   *slog.Logger

	// dial is swappable for tests; defaults to the websocket client.
	dial func(url string) socketClient

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	state       model.ConnectionState
	sock        socketClient
	poll        *poller.Poller
	cycleCancel context.CancelFunc
	visible     bool
	initialized bool
	destroyed   bool

	statsMu    sync.Mutex
	dispatched int64
	reconnects int64
}

// New creates a manager. registry and actions must be non-nil; signals may
// be nil when the host has no visibility or connectivity sources.
func New(cfg Config, identity model.Identity, tokens auth.TokenSource, client *api.Client, registry *bus.Bus, actions *queue.Queue, signals platform.Signals, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		identity: identity,
		tokens:   tokens,
		client:   client,
		registry: registry,
		actions:  actions,
		signals:  signals,
		logger:   logger.With("role", identity.Role, "id", identity.ID),
		state:    model.StateDisconnected,
		visible:  true,
	}
	m.dial = m.dialSocket

	return m
}

// Initialize gates on authentication and starts the transport selector.
// Transport problems are never returned here; they surface only as state
// transitions. Only a missing credential fails the call.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}

	if m.tokens == nil || !m.tokens.IsAuthenticated() {
		m.mu.Unlock()
		m.setState(model.StateError)
		return ErrAuthenticationRequired
	}

	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	if m.signals != nil {
		m.wg.Add(1)
		go m.watchSignals()
	}

	m.startConnectCycle(0)

	m.logger.Info("realtime manager initialized")
	return nil
}

// Subscribe registers a handler for a named event type and returns its
// unsubscribe function.
func (m *Manager) Subscribe(eventType string, h bus.Handler) bus.UnsubscribeFunc {
	return m.registry.Subscribe(eventType, h)
}

// QueueAction captures a user action for at-least-once delivery. The action
// is persisted before the call returns and never blocks on the network. If a
// transport is currently available a drain is kicked off immediately.
func (m *Manager) QueueAction(ctx context.Context, actionType string, payload json.RawMessage) error {
	m.mu.RLock()
	destroyed := m.destroyed
	state := m.state
	m.mu.RUnlock()

	if destroyed {
		return ErrDestroyed
	}

	action := model.NewQueuedAction(actionType, payload)
	if err := m.actions.Enqueue(ctx, action); err != nil {
		return fmt.Errorf("queue action: %w", err)
	}
	metrics.SetQueueDepth(m.actions.Len())

	if state == model.StateConnected || state == model.StatePolling {
		m.drainAsync()
	}

	return nil
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stats returns a snapshot of manager counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	dispatched := m.dispatched
	reconnects := m.reconnects
	m.statsMu.Unlock()

	return Stats{
		State:            m.State(),
		QueueDepth:       m.actions.Len(),
		EventsDispatched: dispatched,
		Reconnects:       reconnects,
	}
}

// Reconnect manually restarts the transport selector. This is the exit from
// terminal polling mode, and a no-op on a destroyed manager.
func (m *Manager) Reconnect() error {
	m.mu.RLock()
	destroyed := m.destroyed
	initialized := m.initialized
	m.mu.RUnlock()

	if destroyed {
		return ErrDestroyed
	}
	if !initialized {
		return errors.New("realtime: not initialized")
	}

	// Release the current transport first: cancelling the cycle alone would
	// strand a live socket's goroutines against an open server connection.
	m.mu.Lock()
	sock := m.sock
	m.sock = nil
	m.mu.Unlock()
	if sock != nil {
		sock.Close()
	}

	m.stopPoller()
	m.startConnectCycle(0)
	return nil
}

// Destroy closes any open transport, clears all timers, and detaches signal
// listeners. Idempotent and safe to call multiple times.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	cancel := m.cancel
	sock := m.sock
	m.sock = nil
	cycleCancel := m.cycleCancel
	m.cycleCancel = nil
	m.mu.Unlock()

	if cycleCancel != nil {
		cycleCancel()
	}
	if cancel != nil {
		cancel()
	}
	if sock != nil {
		sock.Close()
	}
	m.stopPoller()

	m.wg.Wait()

	m.setState(model.StateDisconnected)
	m.logger.Info("realtime manager destroyed")
}

// setState performs a state transition and announces it on the registry.
// The reserved event is published outside the lock so subscribers may query
// the manager reentrantly.
func (m *Manager) setState(to model.ConnectionState) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()

	metrics.RecordStateTransition(from, to)
	m.logger.Info("connection state changed", "from", from, "to", to)

	m.registry.PublishStateChange(model.StateChange{State: to, Previous: from})
}

// dispatch feeds one inbound event into the registry. Identical code path
// for both transports: a consumer cannot tell which produced the event.
func (m *Manager) dispatch(env model.Envelope, transport string) {
	if env.Type == model.EventPong {
		return
	}

	m.statsMu.Lock()
	m.dispatched++
	m.statsMu.Unlock()

	metrics.RecordEventDispatched(env.Type, transport)
	m.registry.Publish(env.Type, env.Payload)
}
