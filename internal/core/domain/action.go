package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind identifies a state-changing operation the mobile client can
// perform. The set is closed: the capability gate and the priority table
// are defined exhaustively over these values.
type ActionKind string

const (
	// KindAcknowledgeAlert marks an alert as seen by an operator.
	KindAcknowledgeAlert ActionKind = "alert.acknowledge"
	// KindResolveAlert closes an alert with a resolution note.
	KindResolveAlert ActionKind = "alert.resolve"
	// KindSnoozeAlert suppresses an alert until a given time.
	KindSnoozeAlert ActionKind = "alert.snooze"
	// KindAddServer registers a new monitored server.
	KindAddServer ActionKind = "server.add"
	// KindUpdateServer changes a monitored server's configuration.
	KindUpdateServer ActionKind = "server.update"
	// KindRemoveServer deregisters a monitored server.
	KindRemoveServer ActionKind = "server.remove"
)

// Kinds returns all members of the closed action-kind set.
func Kinds() []ActionKind {
	return []ActionKind{
		KindAcknowledgeAlert,
		KindResolveAlert,
		KindSnoozeAlert,
		KindAddServer,
		KindUpdateServer,
		KindRemoveServer,
	}
}

// Valid reports whether k is a member of the closed set.
func (k ActionKind) Valid() bool {
	switch k {
	case KindAcknowledgeAlert, KindResolveAlert, KindSnoozeAlert,
		KindAddServer, KindUpdateServer, KindRemoveServer:
		return true
	}
	return false
}

// AcknowledgeAlertPayload acknowledges an alert on behalf of a user.
type AcknowledgeAlertPayload struct {
	AlertID string `json:"alert_id"`
	UserID  string `json:"user_id"`
	Note    string `json:"note,omitempty"`
}

// ResolveAlertPayload resolves an alert with a resolution note.
type ResolveAlertPayload struct {
	AlertID    string `json:"alert_id"`
	UserID     string `json:"user_id"`
	Resolution string `json:"resolution"`
}

// SnoozeAlertPayload suppresses an alert until the given time.
type SnoozeAlertPayload struct {
	AlertID string    `json:"alert_id"`
	UserID  string    `json:"user_id"`
	Until   time.Time `json:"until"`
}

// AddServerPayload registers a server for monitoring.
type AddServerPayload struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// UpdateServerPayload changes a monitored server's configuration.
type UpdateServerPayload struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// RemoveServerPayload deregisters a monitored server.
type RemoveServerPayload struct {
	ServerID string `json:"server_id"`
}

// payloadType maps each kind to the zero value of its payload struct.
// DecodePayload uses it to give callers a typed payload back.
func payloadType(kind ActionKind) (any, error) {
	switch kind {
	case KindAcknowledgeAlert:
		return &AcknowledgeAlertPayload{}, nil
	case KindResolveAlert:
		return &ResolveAlertPayload{}, nil
	case KindSnoozeAlert:
		return &SnoozeAlertPayload{}, nil
	case KindAddServer:
		return &AddServerPayload{}, nil
	case KindUpdateServer:
		return &UpdateServerPayload{}, nil
	case KindRemoveServer:
		return &RemoveServerPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// EncodePayload serialises a typed payload for queueing.
func EncodePayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserialises a queued payload into its typed form.
func DecodePayload(kind ActionKind, data []byte) (any, error) {
	target, err := payloadType(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", ErrCorruptedEntry, kind, err)
	}
	return target, nil
}

// EntityKey returns the cache key of the entity an action mutates.
// Conflict detection compares the cached entity's version under this key
// against the version observed when the action was enqueued.
func EntityKey(kind ActionKind, payload any) string {
	switch p := payload.(type) {
	case *AcknowledgeAlertPayload:
		return "alert/" + p.AlertID
	case *ResolveAlertPayload:
		return "alert/" + p.AlertID
	case *SnoozeAlertPayload:
		return "alert/" + p.AlertID
	case *AddServerPayload:
		return "server/" + p.Host
	case *UpdateServerPayload:
		return "server/" + p.ServerID
	case *RemoveServerPayload:
		return "server/" + p.ServerID
	default:
		return ""
	}
}

// ActionStatus tracks a queued action through its lifecycle.
type ActionStatus string

const (
	// StatusPending means the action awaits transmission.
	StatusPending ActionStatus = "pending"
	// StatusInFlight means the action is being transmitted.
	StatusInFlight ActionStatus = "in_flight"
	// StatusFailed means the action failed its last attempt and will be
	// retried.
	StatusFailed ActionStatus = "failed"
	// StatusDone is terminal; done actions are removed, not retained.
	StatusDone ActionStatus = "done"
)

// QueuedAction is a pending state-changing operation in the outbox.
//
// The outbox owns creation, retry increments and deletion; only the sync
// orchestrator transitions Status. The ID doubles as the idempotency key
// for the remote call, so a retry after a timeout is recognised as a
// duplicate rather than re-applied.
type QueuedAction struct {
	ID         string       `json:"id"`
	Kind       ActionKind   `json:"kind"`
	Payload    []byte       `json:"payload"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	Priority   int          `json:"priority"`
	RetryCount int          `json:"retry_count"`
	MaxRetries int          `json:"max_retries"`
	Status     ActionStatus `json:"status"`

	// BaseVersion is the remote entity version observed at enqueue time.
	// The conflict resolver compares it against the current remote
	// version to detect drift.
	BaseVersion string `json:"base_version,omitempty"`
}

// DefaultPriorities maps each action kind to its queue priority.
// Higher values drain sooner. Alert resolution outranks acknowledgement
// so that an operator's final word survives queue eviction under
// capacity pressure.
var DefaultPriorities = map[ActionKind]int{
	KindResolveAlert:     50,
	KindAcknowledgeAlert: 40,
	KindSnoozeAlert:      30,
	KindRemoveServer:     20,
	KindUpdateServer:     15,
	KindAddServer:        10,
}

// DefaultOfflineCapabilities maps each kind to whether it may be queued
// while offline. Alert workflow operations queue offline; server CRUD
// needs the remote to validate connectivity details first, so it is
// rejected until the device is back online.
var DefaultOfflineCapabilities = map[ActionKind]bool{
	KindAcknowledgeAlert: true,
	KindResolveAlert:     true,
	KindSnoozeAlert:      true,
	KindAddServer:        false,
	KindUpdateServer:     false,
	KindRemoveServer:     false,
}
