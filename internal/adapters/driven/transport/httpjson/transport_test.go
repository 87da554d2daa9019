package httpjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sams-labs/synckit/internal/core/domain"
)

func testAction(kind domain.ActionKind, payload string) domain.QueuedAction {
	return domain.QueuedAction{
		ID:      "act-123",
		Kind:    kind,
		Payload: []byte(payload),
	}
}

func TestSendSuccess(t *testing.T) {
	var gotPath, gotIdempotency, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIdempotency = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"v7","entity":{"alert_id":"a1","status":"acknowledged"}}`))
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	result, err := tr.Send(context.Background(),
		testAction(domain.KindAcknowledgeAlert, `{"alert_id":"a1","user_id":"u1"}`))
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/alerts/acknowledge", gotPath)
	assert.Equal(t, "act-123", gotIdempotency)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "v7", result.RemoteVersion)
	assert.JSONEq(t, `{"alert_id":"a1","status":"acknowledged"}`, string(result.Payload))
}

func TestSendEndpointPerKind(t *testing.T) {
	tests := []struct {
		kind domain.ActionKind
		path string
	}{
		{domain.KindAcknowledgeAlert, "/api/v1/alerts/acknowledge"},
		{domain.KindResolveAlert, "/api/v1/alerts/resolve"},
		{domain.KindSnoozeAlert, "/api/v1/alerts/snooze"},
		{domain.KindAddServer, "/api/v1/servers"},
		{domain.KindUpdateServer, "/api/v1/servers/update"},
		{domain.KindRemoveServer, "/api/v1/servers/remove"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := endpointFor(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.path, got)
		})
	}

	_, err := endpointFor(domain.ActionKind("bogus"))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestSendServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	_, err := tr.Send(context.Background(), testAction(domain.KindAcknowledgeAlert, `{}`))
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestSendClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "alert does not exist", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	_, err := tr.Send(context.Background(), testAction(domain.KindAcknowledgeAlert, `{}`))
	assert.ErrorIs(t, err, domain.ErrPermanent)
	assert.Contains(t, err.Error(), "alert does not exist")
}

func TestSendRateLimitedIsTransientAndBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	_, err := tr.Send(context.Background(), testAction(domain.KindAcknowledgeAlert, `{}`))
	assert.ErrorIs(t, err, domain.ErrTransient)

	// The limiter honours Retry-After: an immediate second call must
	// block past its context deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Send(ctx, testAction(domain.KindAcknowledgeAlert, `{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendConnectionRefusedIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // nothing listens any more

	tr := New(server.URL, nil)
	_, err := tr.Send(context.Background(), testAction(domain.KindAcknowledgeAlert, `{}`))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/state/alert%2Fa1", r.URL.EscapedPath())
		w.Write([]byte(`{"key":"alert/a1","entity":{"severity":"critical"},"version":"v4","ttl_seconds":600}`))
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	entity, err := tr.Fetch(context.Background(), "alert/a1")
	require.NoError(t, err)

	assert.Equal(t, "alert/a1", entity.Key)
	assert.Equal(t, "v4", entity.Version)
	assert.Equal(t, 10*time.Minute, entity.TTL)
	assert.JSONEq(t, `{"severity":"critical"}`, string(entity.Payload))
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr := New(server.URL, nil)
	_, err := tr.Fetch(context.Background(), "alert/gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	limiter.RecordRetryAfter(30)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
