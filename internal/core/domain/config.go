package domain

import "time"

// Config holds engine configuration.
type Config struct {
	// QueueCapacity bounds the outbox. On overflow the lowest-priority,
	// oldest pending entries are evicted first.
	QueueCapacity int `toml:"queue_capacity"`

	// MaxRetries bounds transient retries per action before the action
	// is dropped and surfaced as permanently failed.
	MaxRetries int `toml:"max_retries"`

	// BatchSize bounds how many pending actions one drain session
	// snapshots at a time.
	BatchSize int `toml:"batch_size"`

	// ActionTimeout bounds each remote call. A timeout is classified
	// transient and follows the retry path.
	ActionTimeout time.Duration `toml:"action_timeout"`

	// DefaultTTL is applied to cache entries stored without an explicit
	// TTL.
	DefaultTTL time.Duration `toml:"default_ttl"`

	// DebounceWindow suppresses connectivity flaps shorter than this
	// before the orchestrator reacts.
	DebounceWindow time.Duration `toml:"debounce_window"`

	// SyncInterval is the periodic drain tick while online.
	SyncInterval time.Duration `toml:"sync_interval"`

	// BackoffBase is the first delay after a transport-level failure.
	// Subsequent delays double up to BackoffMax.
	BackoffBase time.Duration `toml:"backoff_base"`

	// BackoffMax caps the exponential backoff delay.
	BackoffMax time.Duration `toml:"backoff_max"`

	// Strategy selects conflict resolution. Defaults to ServerWins.
	Strategy ConflictStrategy `toml:"strategy"`

	// EventBuffer sizes each subscriber's event channel.
	EventBuffer int `toml:"event_buffer"`
}

// DefaultConfig returns sensible defaults for a mobile client.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  5000,
		MaxRetries:     5,
		BatchSize:      50,
		ActionTimeout:  30 * time.Second,
		DefaultTTL:     15 * time.Minute,
		DebounceWindow: 2 * time.Second,
		SyncInterval:   5 * time.Minute,
		BackoffBase:    1 * time.Second,
		BackoffMax:     60 * time.Second,
		Strategy:       ServerWins,
		EventBuffer:    64,
	}
}

// Normalise fills zero-valued fields with defaults so a partially
// populated config (e.g. loaded from TOML) behaves predictably.
func (c *Config) Normalise() {
	def := DefaultConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = def.ActionTimeout
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = def.DebounceWindow
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = def.BackoffMax
	}
	switch c.Strategy {
	case ServerWins, ClientWins, MergeStrategy:
	default:
		c.Strategy = def.Strategy
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
}
