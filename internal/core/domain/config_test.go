package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseFillsZeroFields(t *testing.T) {
	var cfg Config
	cfg.Normalise()

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestNormaliseKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		QueueCapacity: 10,
		MaxRetries:    1,
		BatchSize:     2,
		SyncInterval:  time.Minute,
	}
	cfg.Normalise()

	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	// Unset fields picked up defaults.
	assert.Equal(t, DefaultConfig().ActionTimeout, cfg.ActionTimeout)
	assert.Equal(t, ServerWins, cfg.Strategy)
}

func TestNormaliseRejectsUnknownStrategy(t *testing.T) {
	cfg := Config{Strategy: ConflictStrategy("coin_flip")}
	cfg.Normalise()
	assert.Equal(t, ServerWins, cfg.Strategy)
}

func TestNormaliseBackoffMaxAtLeastBase(t *testing.T) {
	cfg := Config{BackoffBase: 5 * time.Second, BackoffMax: time.Second}
	cfg.Normalise()
	assert.GreaterOrEqual(t, cfg.BackoffMax, cfg.BackoffBase)
}
