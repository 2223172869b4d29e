// Package notify maps notification kinds to their senders. The scheduler
// resolves each due subscription's kind through the Registry instead of
// switching on kind strings, so new kinds are added by registration at
// startup, not by touching dispatch logic.
package notify

import (
	"context"
	"sort"

	"tickler/internal/types"
)

// Sender delivers one notification of a fixed kind to a user.
type Sender interface {
	Send(ctx context.Context, userRef string) error
}

// Registry maps notification kinds to senders. Registration happens during
// startup wiring; lookups afterwards are read-only, so no locking is needed.
type Registry struct {
	senders map[types.NotificationKind]Sender
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[types.NotificationKind]Sender),
	}
}

// Register binds a sender to a kind, replacing any previous binding.
func (r *Registry) Register(kind types.NotificationKind, sender Sender) {
	r.senders[kind] = sender
}

// Lookup returns the sender for a kind, or false if the kind is unknown.
func (r *Registry) Lookup(kind types.NotificationKind) (Sender, bool) {
	sender, ok := r.senders[kind]
	return sender, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []types.NotificationKind {
	kinds := make([]types.NotificationKind, 0, len(r.senders))
	for kind := range r.senders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
