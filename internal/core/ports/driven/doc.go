// Package driven defines the interfaces the sync engine consumes:
// the durable key-value store, the remote transport, the reachability
// source, the encryption key provider and the clock. Adapters under
// internal/adapters/driven implement them.
package driven
