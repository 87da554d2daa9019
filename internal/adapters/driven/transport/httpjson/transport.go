// Package httpjson implements the transport port over the remote
// authority's JSON API. Each action kind has its own idempotent
// endpoint; the action ID travels as the idempotency key so a retried
// call after a timeout is recognised as a duplicate rather than
// re-applied.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

// idempotencyHeader carries the action ID on every Send.
const idempotencyHeader = "Idempotency-Key"

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// Transport talks to the remote authority over HTTP JSON.
type Transport struct {
	baseURL string
	client  *http.Client
	limiter *RateLimiter
}

// New creates a transport against baseURL. A nil client falls back to a
// default with a 30s overall timeout; per-action deadlines arrive via
// the context.
func New(baseURL string, client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transport{
		baseURL: baseURL,
		client:  client,
		limiter: NewRateLimiter(DefaultRateLimit),
	}
}

// endpointFor maps each action kind to its remote endpoint.
func endpointFor(kind domain.ActionKind) (string, error) {
	switch kind {
	case domain.KindAcknowledgeAlert:
		return "/api/v1/alerts/acknowledge", nil
	case domain.KindResolveAlert:
		return "/api/v1/alerts/resolve", nil
	case domain.KindSnoozeAlert:
		return "/api/v1/alerts/snooze", nil
	case domain.KindAddServer:
		return "/api/v1/servers", nil
	case domain.KindUpdateServer:
		return "/api/v1/servers/update", nil
	case domain.KindRemoveServer:
		return "/api/v1/servers/remove", nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
}

// sendResponse is the remote's answer to an applied action.
type sendResponse struct {
	Version string          `json:"version"`
	Entity  json.RawMessage `json:"entity,omitempty"`
}

// Send implements driven.Transport.
func (t *Transport) Send(ctx context.Context, action domain.QueuedAction) (*driven.SendResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint, err := endpointFor(action.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+endpoint, bytes.NewReader(action.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, action.ID)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.classifyNetErr(err)
	}
	defer resp.Body.Close()

	if err := t.classifyStatus(resp); err != nil {
		return nil, err
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
	}
	return &driven.SendResult{
		RemoteVersion: body.Version,
		Payload:       body.Entity,
	}, nil
}

// entityResponse is the remote's representation of an entity snapshot.
type entityResponse struct {
	Key        string          `json:"key"`
	Entity     json.RawMessage `json:"entity"`
	Version    string          `json:"version"`
	TTLSeconds int             `json:"ttl_seconds,omitempty"`
}

// Fetch implements driven.Transport.
func (t *Transport) Fetch(ctx context.Context, key string) (*domain.CachedEntity, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/api/v1/state/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermanent, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if err := t.classifyStatus(resp); err != nil {
		return nil, err
	}

	var body entityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode entity: %v", domain.ErrTransient, err)
	}
	return &domain.CachedEntity{
		Key:     key,
		Payload: body.Entity,
		Version: body.Version,
		TTL:     time.Duration(body.TTLSeconds) * time.Second,
	}, nil
}

// classifyNetErr maps a client-level error into the engine's taxonomy.
// Timeouts are transient; anything else at the connection level means
// the transport is down.
func (t *Transport) classifyNetErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

// classifyStatus maps HTTP status codes into the engine's taxonomy:
// 5xx and 408 are transient, 429 is transient with Retry-After applied
// to the limiter, any other 4xx is a permanent rejection.
func (t *Transport) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		t.limiter.RecordRetryAfter(retryAfter)
		return fmt.Errorf("%w: rate limited (429)", domain.ErrTransient)
	case resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: request timeout (408)", domain.ErrTransient)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server error (%d)", domain.ErrTransient, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", domain.ErrPermanent, resp.StatusCode, bytes.TrimSpace(detail))
	}
}
