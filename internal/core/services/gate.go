package services

import "github.com/sams-labs/synckit/internal/core/domain"

// CapabilityGate holds the static policy deciding which action kinds may
// be queued while offline. Allowed is a pure function over the closed
// kind set; the gate never changes after construction.
type CapabilityGate struct {
	allowed map[domain.ActionKind]bool
}

// NewCapabilityGate creates a gate from the default policy, with
// overrides applied on top. Unknown kinds in overrides are ignored.
func NewCapabilityGate(overrides map[domain.ActionKind]bool) *CapabilityGate {
	allowed := make(map[domain.ActionKind]bool, len(domain.DefaultOfflineCapabilities))
	for kind, ok := range domain.DefaultOfflineCapabilities {
		allowed[kind] = ok
	}
	for kind, ok := range overrides {
		if kind.Valid() {
			allowed[kind] = ok
		}
	}
	return &CapabilityGate{allowed: allowed}
}

// Allowed reports whether kind may be queued while the device is
// offline.
func (g *CapabilityGate) Allowed(kind domain.ActionKind) bool {
	return g.allowed[kind]
}
