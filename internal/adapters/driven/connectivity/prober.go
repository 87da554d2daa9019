// Package connectivity provides reachability sources for the sync
// engine. The HTTP prober stands in for the platform reachability API
// on hosts that lack one: it polls the backend health endpoint and
// reports raw up/down readings, leaving debouncing to the monitor.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/logger"
)

// DefaultProbeInterval is how often the prober checks the health
// endpoint.
const DefaultProbeInterval = 10 * time.Second

// Ensure Prober implements the interface.
var _ driven.ConnectivitySource = (*Prober)(nil)

// Prober polls an HTTP health endpoint and reports reachability.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu     sync.Mutex
	online bool
	out    chan bool
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber starts probing healthURL every interval. A zero interval
// uses DefaultProbeInterval. The first reading is taken synchronously
// so Current is meaningful immediately.
func NewProber(healthURL string, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prober{
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		out:      make(chan bool, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.online = p.probe(ctx)
	go p.loop(ctx)
	return p
}

// Subscribe implements driven.ConnectivitySource.
func (p *Prober) Subscribe() <-chan bool {
	return p.out
}

// Current implements driven.ConnectivitySource.
func (p *Prober) Current() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Close implements driven.ConnectivitySource.
func (p *Prober) Close() error {
	p.cancel()
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
	return nil
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(p.probe(ctx))
		}
	}
}

// probe returns true when the health endpoint answers with any HTTP
// status. A 5xx still proves the network path is up; classification of
// backend errors belongs to the transport.
func (p *Prober) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		logger.Warn("Invalid health URL %s: %v", p.url, err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// report publishes a reading, replacing any undelivered one so the
// channel always holds the latest.
func (p *Prober) report(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.online = online
	select {
	case <-p.out:
	default:
	}
	p.out <- online
}
