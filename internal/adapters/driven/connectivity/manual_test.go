package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualCurrentTracksSet(t *testing.T) {
	src := NewManual(false)
	defer src.Close()

	assert.False(t, src.Current())
	src.Set(true)
	assert.True(t, src.Current())
}

func TestManualDeliversReadings(t *testing.T) {
	src := NewManual(false)
	defer src.Close()

	src.Set(true)
	assert.True(t, <-src.Subscribe())
}

func TestManualLatestReadingWins(t *testing.T) {
	src := NewManual(false)
	defer src.Close()

	// Two readings without a consumer: only the latest is retained.
	src.Set(true)
	src.Set(false)
	assert.False(t, <-src.Subscribe())
}

func TestManualCloseIsIdempotent(t *testing.T) {
	src := NewManual(true)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())

	// Set after close must not panic.
	src.Set(false)

	_, ok := <-src.Subscribe()
	assert.False(t, ok, "channel closes with the source")
}
