package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowDefaults(t *testing.T) {
	out, err := execute(t, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "Server URL:   (not set)")
	assert.Contains(t, out, "queue_capacity: 5000")
	assert.Contains(t, out, "strategy:       server_wins")
}

func TestConfigSetServerPersists(t *testing.T) {
	out, err := execute(t, "config", "set-server", "https://sams.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "https://sams.example.com")

	// The saved value survives a reload.
	loaded, err := configStore.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sams.example.com", loaded.ServerURL)
}

func TestSyncRequiresServerURL(t *testing.T) {
	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_url is not configured")
}
