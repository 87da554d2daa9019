package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/logger"
)

// MergeFunc reconciles a diverged entity. It receives the last-known
// local payload (the queued mutation) and the current remote payload,
// and returns the payload that becomes the new authoritative cache
// entry.
type MergeFunc func(local, remote []byte) ([]byte, error)

// Resolution is the resolver's verdict for one queued action.
type Resolution struct {
	// Conflict reports whether the remote version had advanced past the
	// version observed at enqueue time.
	Conflict bool

	// Outcome is Applied, Discarded or Merged.
	Outcome domain.ConflictOutcome

	// Merged carries the merge function's result when Outcome is
	// OutcomeMerged.
	Merged []byte

	// Remote is the authoritative entity used for the decision, if one
	// was fetched.
	Remote *domain.CachedEntity
}

// conflictHistory bounds the retained conflict records.
const conflictHistory = 100

// ConflictResolver reconciles a queued local mutation against the
// authoritative remote state when they diverge.
//
// Merge functions are registered per entity kind (the prefix of the
// entity key, e.g. "alert" or "server"). The engine only guarantees the
// merge function is invoked with both payloads and that its result
// becomes the new authoritative cache entry; field-level semantics are
// the caller's extension point.
type ConflictResolver struct {
	strategy domain.ConflictStrategy
	clock    driven.Clock

	mu      sync.Mutex
	merges  map[string]MergeFunc
	records []domain.ConflictRecord
}

// NewConflictResolver creates a resolver with the given default
// strategy.
func NewConflictResolver(strategy domain.ConflictStrategy, clock driven.Clock) *ConflictResolver {
	return &ConflictResolver{
		strategy: strategy,
		clock:    clock,
		merges:   make(map[string]MergeFunc),
	}
}

// RegisterMerge installs the merge function for an entity kind. Only
// consulted when the strategy is MergeStrategy.
func (r *ConflictResolver) RegisterMerge(entityKind string, fn MergeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merges[entityKind] = fn
}

// Resolve reconciles an action against the current remote entity. A
// conflict exists when the remote version differs from the version the
// action observed at enqueue time. Actions enqueued with no observed
// version never conflict.
func (r *ConflictResolver) Resolve(action domain.QueuedAction, key string, remote *domain.CachedEntity) (*Resolution, error) {
	if action.BaseVersion == "" || remote == nil || remote.Version == action.BaseVersion {
		return &Resolution{Outcome: domain.OutcomeApplied, Remote: remote}, nil
	}

	res := &Resolution{Conflict: true, Remote: remote}
	strategy := r.strategy

	switch strategy {
	case domain.ClientWins:
		res.Outcome = domain.OutcomeApplied

	case domain.MergeStrategy:
		fn := r.mergeFor(key)
		if fn == nil {
			// No merge function registered for this entity kind: fall
			// back to the safe default.
			logger.Warn("resolver: no merge func for %q, falling back to server-wins", key)
			strategy = domain.ServerWins
			res.Outcome = domain.OutcomeDiscarded
			break
		}
		merged, err := fn(action.Payload, remote.Payload)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", key, err)
		}
		res.Outcome = domain.OutcomeMerged
		res.Merged = merged

	default: // domain.ServerWins
		res.Outcome = domain.OutcomeDiscarded
	}

	r.record(domain.ConflictRecord{
		ActionID:      action.ID,
		Key:           key,
		LocalVersion:  action.BaseVersion,
		RemoteVersion: remote.Version,
		Strategy:      strategy,
		Outcome:       res.Outcome,
		ResolvedAt:    r.clock.Now(),
	})
	return res, nil
}

// Records returns the retained conflict records, newest last.
func (r *ConflictResolver) Records() []domain.ConflictRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConflictRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *ConflictResolver) mergeFor(key string) MergeFunc {
	kind, _, _ := strings.Cut(key, "/")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merges[kind]
}

func (r *ConflictResolver) record(rec domain.ConflictRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if len(r.records) > conflictHistory {
		r.records = r.records[len(r.records)-conflictHistory:]
	}
}
