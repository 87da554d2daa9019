package services

import (
	"context"
	"fmt"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

// EngineDeps carries the injected collaborators the engine is built
// from. There is no process-wide singleton: callers construct an engine
// instance per store, which keeps the state machine testable with fake
// time and fake transports.
type EngineDeps struct {
	Store        driven.KVStore
	Transport    driven.Transport
	Connectivity driven.ConnectivitySource
	Keys         driven.KeyProvider

	// Clock defaults to the system clock when nil.
	Clock driven.Clock

	// CapabilityOverrides adjusts the default offline policy per kind.
	CapabilityOverrides map[domain.ActionKind]bool

	// Merges registers per-entity-kind merge functions, consulted when
	// the strategy is MergeStrategy.
	Merges map[string]MergeFunc
}

// NewEngine assembles the full engine: outbox, cache store, capability
// gate, conflict resolver, connectivity monitor and orchestrator.
func NewEngine(ctx context.Context, cfg domain.Config, deps EngineDeps) (*Orchestrator, error) {
	cfg.Normalise()

	clock := deps.Clock
	if clock == nil {
		clock = driven.SystemClock{}
	}

	queue, err := NewOutbox(ctx, deps.Store, clock, cfg)
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}

	cache := NewCacheStore(deps.Store, deps.Keys, clock, cfg.DefaultTTL)
	gate := NewCapabilityGate(deps.CapabilityOverrides)

	resolver := NewConflictResolver(cfg.Strategy, clock)
	for kind, fn := range deps.Merges {
		resolver.RegisterMerge(kind, fn)
	}

	monitor := NewConnectivityMonitor(deps.Connectivity, clock, cfg.DebounceWindow)

	return NewOrchestrator(cfg, queue, cache, gate, resolver, monitor, deps.Transport, deps.Store, clock), nil
}
