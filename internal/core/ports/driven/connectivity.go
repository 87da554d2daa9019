package driven

// ConnectivitySource is the platform reachability signal the monitor
// subscribes to. Implementations push raw (undebounced) online/offline
// readings; the monitor owns debouncing.
type ConnectivitySource interface {
	// Subscribe returns a channel of raw reachability readings. The
	// channel is closed when the source is closed.
	Subscribe() <-chan bool

	// Current returns the latest raw reading.
	Current() bool

	// Close stops the source and closes subscriber channels.
	Close() error
}
