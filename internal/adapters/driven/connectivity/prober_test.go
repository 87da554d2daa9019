package connectivity

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProberInitialReadingOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	p := NewProber(server.URL, 10*time.Millisecond)
	defer p.Close()

	assert.True(t, p.Current())
}

func TestProberInitialReadingOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	p := NewProber(server.URL, 10*time.Millisecond)
	defer p.Close()

	assert.False(t, p.Current())
}

func TestProberDetectsOutage(t *testing.T) {
	var down atomic.Bool
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer backend.Close()

	// A proxy that refuses once down is flipped.
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if down.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer proxy.Close()

	p := NewProber(proxy.URL, 10*time.Millisecond)
	defer p.Close()
	require.True(t, p.Current())

	down.Store(true)
	require.Eventually(t, func() bool { return !p.Current() },
		3*time.Second, 10*time.Millisecond)
}

func TestProberBackendErrorStillCountsAsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "degraded", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewProber(server.URL, 10*time.Millisecond)
	defer p.Close()

	// A 5xx proves the network path works; outage classification is the
	// transport's job.
	assert.True(t, p.Current())
}
