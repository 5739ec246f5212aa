package escalation

import (
	"context"

	id "attest/pkg/domain"
)

// Store persists escalations. Create returns sentinel.ErrConflict when an
// unresolved escalation for the same (requirement, reason) already exists;
// that constraint keeps concurrent sweeps idempotent.
type Store interface {
	Create(ctx context.Context, esc *Escalation) error
	FindByID(ctx context.Context, escID id.EscalationID) (*Escalation, error)
	ListUnresolved(ctx context.Context) ([]*Escalation, error)
	ListByRequirement(ctx context.Context, reqID id.RequirementID) ([]*Escalation, error)
	ExistsUnresolved(ctx context.Context, reqID id.RequirementID, reason Reason) (bool, error)
	// Execute atomically validates and mutates one escalation under the
	// store's lock. The mutate callback runs only when validate returns nil.
	Execute(ctx context.Context, escID id.EscalationID,
		validate func(*Escalation) error, mutate func(*Escalation)) (*Escalation, error)
}
