package workflow

import (
	"context"

	id "attest/pkg/domain"
)

// SubmissionStore persists submissions and their event log. Implementations
// return sentinel errors; the machine translates them. Updates and event
// appends issued inside one tx.Runner call must commit atomically.
type SubmissionStore interface {
	Create(ctx context.Context, sub *Submission) error
	FindByID(ctx context.Context, subID id.SubmissionID) (*Submission, error)
	Update(ctx context.Context, sub *Submission) error
	ListByStage(ctx context.Context, stage Stage) ([]*Submission, error)
	ListByRequirement(ctx context.Context, reqID id.RequirementID) ([]*Submission, error)

	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, subID id.SubmissionID) ([]*Event, error)
}
