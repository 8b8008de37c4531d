package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shiftgrid/realtime/internal/api"
	"github.com/shiftgrid/realtime/internal/auth"
	"github.com/shiftgrid/realtime/internal/model"
)

// EventHandler receives fetched events, one call per event, in array order.
type EventHandler func(env model.Envelope)

// AuthFailureHandler is notified when a credential refresh fails; polling
// has already stopped by the time it runs.
type AuthFailureHandler func(err error)

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // poll period (default: 30s)
	Timeout  time.Duration // per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Poller periodically fetches pending updates via the REST API.
type Poller struct {
	cfg      Config
	client   *api.Client
	identity model.Identity
	tokens   auth.TokenSource
	handle   EventHandler
	onAuthFn AuthFailureHandler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller. handle must not be nil; onAuthFailure may be.
func New(cfg Config, client *api.Client, identity model.Identity, tokens auth.TokenSource, handle EventHandler, onAuthFailure AuthFailureHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:      cfg,
		client:   client,
		identity: identity,
		tokens:   tokens,
		handle:   handle,
		onAuthFn: onAuthFailure,
		logger:   logger,
	}
}

// Start begins the polling loop with an immediate first poll.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("update poller started", "interval", p.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("update poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	if !p.poll() {
		return
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if !p.poll() {
				return
			}
		}
	}
}

// poll fetches pending updates once and dispatches them in order. Returns
// false when polling must stop (credential refresh failed).
func (p *Poller) poll() bool {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	events, err := p.client.FetchUpdates(ctx, p.identity)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuthError() {
			return p.refreshCredential()
		}

		// Transient fetch failure: keep polling on the same cadence.
		p.logger.Warn("poll failed", "error", err)
		return true
	}

	for _, env := range events {
		p.handle(env)
	}

	if len(events) > 0 {
		p.logger.Debug("dispatched polled events", "count", len(events))
	}

	return true
}

// refreshCredential delegates a rejected token to the auth collaborator.
// A refresh failure stops polling and escalates.
func (p *Poller) refreshCredential() bool {
	p.logger.Info("credential rejected during polling, refreshing token")

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	if _, err := p.tokens.Refresh(ctx); err != nil {
		p.logger.Error("token refresh failed, stopping poller", "error", err)
		if p.onAuthFn != nil {
			p.onAuthFn(err)
		}
		return false
	}

	return true
}
