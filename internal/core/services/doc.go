// Package services contains the offline synchronisation engine: the
// durable action queue (outbox), the TTL-bounded encrypted cache store,
// the capability gate, the conflict resolver, the debounced
// connectivity monitor and the sync orchestrator that ties them
// together.
//
// The engine accepts user-triggered state-changing operations while
// offline, serves a read cache of remote entities for display, and
// reconciles both with the remote authority once connectivity resumes,
// guaranteeing ordering, at-least-once delivery, bounded retry and
// deterministic conflict outcomes.
package services
