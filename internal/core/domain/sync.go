package domain

import "time"

// SyncSession records one drain attempt. Created when the orchestrator
// enters Syncing, immutable once closed; used for caller-visible status
// and testing.
type SyncSession struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Conflicts int       `json:"conflicts"`
}

// ConnectivityState is owned exclusively by the connectivity monitor and
// read-only elsewhere.
type ConnectivityState struct {
	Online           bool      `json:"online"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// SyncState is the orchestrator's externally visible state machine state.
type SyncState string

const (
	// SyncIdle means no drain is active.
	SyncIdle SyncState = "idle"
	// SyncSyncing means a drain session is in progress.
	SyncSyncing SyncState = "syncing"
	// SyncBackoff means a transport-level failure aborted the last drain
	// and a retry is scheduled.
	SyncBackoff SyncState = "backoff"
	// SyncDisabled means the engine is paused; the queue is retained but
	// nothing drains until resume.
	SyncDisabled SyncState = "disabled"
)

// ConflictStrategy selects how a queued local mutation is reconciled
// against diverged remote state.
type ConflictStrategy string

const (
	// ServerWins discards the local mutation and refreshes the cache
	// from the remote value. The default.
	ServerWins ConflictStrategy = "server_wins"
	// ClientWins applies the local mutation regardless of remote drift.
	ClientWins ConflictStrategy = "client_wins"
	// MergeStrategy delegates to a per-entity-kind merge function
	// supplied by the caller.
	MergeStrategy ConflictStrategy = "merge"
)

// ConflictOutcome is the resolver's verdict for one action.
type ConflictOutcome string

const (
	// OutcomeApplied means the local mutation proceeds.
	OutcomeApplied ConflictOutcome = "applied"
	// OutcomeDiscarded means the local mutation was dropped in favour of
	// the remote state.
	OutcomeDiscarded ConflictOutcome = "discarded"
	// OutcomeMerged means a merge function produced the new
	// authoritative payload.
	OutcomeMerged ConflictOutcome = "merged"
)

// ConflictRecord documents one resolved conflict for audit and status.
type ConflictRecord struct {
	ActionID      string           `json:"action_id"`
	Key           string           `json:"key"`
	LocalVersion  string           `json:"local_version"`
	RemoteVersion string           `json:"remote_version"`
	Strategy      ConflictStrategy `json:"strategy"`
	Outcome       ConflictOutcome  `json:"outcome"`
	ResolvedAt    time.Time        `json:"resolved_at"`
}

// EventType tags engine events delivered to the caller/UI layer.
type EventType string

const (
	// EventSyncStarted fires when a drain session begins.
	EventSyncStarted EventType = "sync_started"
	// EventSyncCompleted fires when a drain session ends, successfully
	// or not.
	EventSyncCompleted EventType = "sync_completed"
	// EventActionFailed fires exactly once when an action is removed
	// after exhausting retries or on a permanent rejection.
	EventActionFailed EventType = "action_permanently_failed"
	// EventOnlineRestored fires after a debounced offline-to-online
	// transition.
	EventOnlineRestored EventType = "online_restored"
	// EventWentOffline fires after a debounced online-to-offline
	// transition.
	EventWentOffline EventType = "went_offline"
)

// Event is a caller-visible notification.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	// Session is set on sync started/completed events.
	Session *SyncSession `json:"session,omitempty"`

	// ActionID and Err are set on action failure events.
	ActionID string `json:"action_id,omitempty"`
	Err      string `json:"error,omitempty"`
}
