package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates an action kind is not allowed while
	// the device is offline. Rejected synchronously at enqueue time,
	// never queued.
	ErrPermissionDenied = errors.New("action not permitted offline")

	// ErrTransient indicates a failure that is expected to clear on
	// retry (timeout, connection reset, 5xx from the remote).
	ErrTransient = errors.New("transient network error")

	// ErrPermanent indicates a remote rejection that will never succeed
	// on retry (validation failure, 4xx from the remote).
	ErrPermanent = errors.New("permanent rejection")

	// ErrUnavailable indicates a transport-wide outage (connection
	// refused, DNS failure). Unlike a per-action transient failure it
	// aborts the remaining batch and moves the orchestrator to backoff.
	ErrUnavailable = errors.New("transport unavailable")

	// ErrCorruptedEntry indicates a malformed persisted record, e.g.
	// after a crash mid-write. The single entry is dropped and logged;
	// processing continues.
	ErrCorruptedEntry = errors.New("corrupted entry")

	// ErrClosed indicates the engine has been shut down.
	ErrClosed = errors.New("engine closed")

	// ErrSyncDisabled indicates the orchestrator is paused.
	ErrSyncDisabled = errors.New("sync disabled")

	// ErrUnknownKind indicates an action kind outside the closed set.
	ErrUnknownKind = errors.New("unknown action kind")
)

// IsTransient reports whether err should follow the retry path.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a remote rejection that must not
// be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
