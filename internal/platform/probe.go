package platform

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Probe watches network connectivity for headless hosts by issuing periodic
// HEAD requests against a reachability URL. It emits only transitions, never
// repeated states. Visibility never fires: a headless agent is always
// "visible".
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	network chan bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProbe creates a connectivity probe. Call Start to begin probing.
func NewProbe(url string, interval time.Duration, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Probe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		network:  make(chan bool, 8),
	}
}

func (p *Probe) Visibility() <-chan bool   { return nil }
func (p *Probe) Connectivity() <-chan bool { return p.network }

// Start begins probing until the context is cancelled or Stop is called.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop halts probing. Idempotent.
func (p *Probe) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.started = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Probe) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Assume online until the first probe says otherwise.
	last := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := p.check(ctx)
			if online == last {
				continue
			}
			last = online
			p.logger.Info("connectivity changed", "online", online)
			select {
			case p.network <- online:
			default:
			}
		}
	}
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
