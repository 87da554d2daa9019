package connectivity

import (
	"sync"

	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

// Ensure Manual implements the interface.
var _ driven.ConnectivitySource = (*Manual)(nil)

// Manual is a reachability source driven by explicit Set calls. It
// backs host integrations that receive connectivity callbacks from the
// platform instead of polling.
type Manual struct {
	mu     sync.Mutex
	online bool
	out    chan bool
	closed bool
}

// NewManual creates a manual source with the given initial reading.
func NewManual(online bool) *Manual {
	return &Manual{online: online, out: make(chan bool, 1)}
}

// Set publishes a new reading. Repeated identical readings are still
// delivered; the monitor deduplicates.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.online = online
	select {
	case <-m.out:
	default:
	}
	m.out <- online
}

// Subscribe implements driven.ConnectivitySource.
func (m *Manual) Subscribe() <-chan bool {
	return m.out
}

// Current implements driven.ConnectivitySource.
func (m *Manual) Current() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Close implements driven.ConnectivitySource.
func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.out)
	}
	return nil
}
