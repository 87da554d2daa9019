package services

import (
	"sync"
	"time"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/logger"
)

// ConnectivityMonitor observes the platform reachability source and
// emits debounced online/offline transitions. Flaps shorter than the
// debounce window are ignored so a train ride through patchy coverage
// does not trigger a sync storm.
//
// The monitor exclusively owns domain.ConnectivityState; everything
// else reads it through Current.
type ConnectivityMonitor struct {
	source driven.ConnectivitySource
	clock  driven.Clock
	window time.Duration

	mu    sync.RWMutex
	state domain.ConnectivityState

	out    chan bool
	stopCh chan struct{}
	done   chan struct{}
}

// NewConnectivityMonitor creates a monitor over the given source. The
// initial state is the source's current raw reading, taken without
// debounce.
func NewConnectivityMonitor(source driven.ConnectivitySource, clock driven.Clock, window time.Duration) *ConnectivityMonitor {
	m := &ConnectivityMonitor{
		source: source,
		clock:  clock,
		window: window,
		state: domain.ConnectivityState{
			Online:           source.Current(),
			LastTransitionAt: clock.Now(),
		},
		out:    make(chan bool, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Current returns the debounced connectivity state. Pure read.
func (m *ConnectivityMonitor) Current() domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transitions returns the debounced transition stream: true for
// OnlineRestored, false for WentOffline. Only the latest undelivered
// transition is retained.
func (m *ConnectivityMonitor) Transitions() <-chan bool {
	return m.out
}

// Close stops the monitor.
func (m *ConnectivityMonitor) Close() error {
	close(m.stopCh)
	<-m.done
	return nil
}

func (m *ConnectivityMonitor) run() {
	defer close(m.done)

	raw := m.source.Subscribe()
	var pending *bool
	var timer <-chan time.Time

	for {
		select {
		case <-m.stopCh:
			return

		case reading, ok := <-raw:
			if !ok {
				return
			}
			if reading == m.Current().Online {
				// Reading matches committed state: any pending flap is
				// cancelled.
				pending, timer = nil, nil
				continue
			}
			if pending != nil && *pending == reading {
				continue // debounce already running for this transition
			}
			r := reading
			pending = &r
			timer = m.clock.After(m.window)

		case <-timer:
			online := *pending
			pending, timer = nil, nil

			m.mu.Lock()
			m.state = domain.ConnectivityState{
				Online:           online,
				LastTransitionAt: m.clock.Now(),
			}
			m.mu.Unlock()

			logger.Info("connectivity: online=%v", online)
			m.deliver(online)
		}
	}
}

// deliver pushes a transition, replacing an undelivered one so slow
// consumers always see the latest state.
func (m *ConnectivityMonitor) deliver(online bool) {
	for {
		select {
		case m.out <- online:
			return
		default:
			select {
			case <-m.out:
			default:
			}
		}
	}
}
