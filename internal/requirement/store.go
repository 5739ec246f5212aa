package requirement

import (
	"context"

	id "attest/pkg/domain"
)

// Store persists requirements. Implementations return sentinel errors;
// services translate them into domain errors.
type Store interface {
	Create(ctx context.Context, req *Requirement) error
	FindByID(ctx context.Context, reqID id.RequirementID) (*Requirement, error)
	// ListActive returns requirements that may still receive submissions or
	// escalations (no physical deletion exists, so currently: all).
	ListActive(ctx context.Context) ([]*Requirement, error)
	// Execute atomically validates and mutates one requirement while holding
	// the store's lock (mutex or SELECT ... FOR UPDATE). The mutate callback
	// runs only when validate returns nil.
	Execute(ctx context.Context, reqID id.RequirementID,
		validate func(*Requirement) error, mutate func(*Requirement)) (*Requirement, error)
}

// AuthorityDirectory resolves the authority-role identities for a case, in
// rank order (index 0 reviews level-1 escalations). The escalation engine
// notifies all of them and targets the one matching the new level.
type AuthorityDirectory interface {
	AuthoritiesForCase(ctx context.Context, caseID id.CaseID) ([]id.UserID, error)
}
