package driven

import "time"

// Clock abstracts time so the orchestrator's state machine is testable
// with fake time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the time package.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
