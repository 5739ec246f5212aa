// Package workflow owns the review lifecycle of a submission: its current
// stage, the legal transitions between stages, and the side effects each
// transition carries (workflow event, audit entry, verification block,
// notification).
package workflow

import (
	"time"

	"github.com/google/uuid"

	"attest/internal/audittrail"
	"attest/internal/verification"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Stage is the position of a submission in its review lifecycle.
type Stage string

const (
	StageSubmitted     Stage = "submitted"
	StageAIValidating  Stage = "ai_validating"
	StageAIValidated   Stage = "ai_validated"
	StageUnderReview   Stage = "under_review"
	StageApproved      Stage = "approved"
	StageRejected      Stage = "rejected"
	StageNeedsRevision Stage = "needs_revision"
	StageEscalated     Stage = "escalated"
)

var validStages = map[Stage]bool{
	StageSubmitted:     true,
	StageAIValidating:  true,
	StageAIValidated:   true,
	StageUnderReview:   true,
	StageApproved:      true,
	StageRejected:      true,
	StageNeedsRevision: true,
	StageEscalated:     true,
}

// ParseStage constructs a Stage from external input.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !validStages[st] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid workflow stage")
	}
	return st, nil
}

func (s Stage) String() string { return string(s) }

// Terminal reports whether the stage ends the current revision round.
// needs_revision is terminal for the round but permits a resubmission.
func (s Stage) Terminal() bool {
	return s == StageApproved || s == StageRejected || s == StageNeedsRevision
}

// Escalatable reports whether the escalation engine may force this stage to
// escalated. Decided submissions and already-escalated ones are left alone.
func (s Stage) Escalatable() bool {
	switch s {
	case StageSubmitted, StageAIValidating, StageAIValidated, StageUnderReview:
		return true
	default:
		return false
	}
}

// Submission is one evidentiary artifact offered against a requirement.
// Round starts at 1 and only ever increases (on resubmission). Stage moves
// only along the edges in transitions.go.
type Submission struct {
	ID            id.SubmissionID
	RequirementID id.RequirementID
	DocumentID    id.DocumentID
	SubmittedBy   id.UserID
	Round         int
	Stage         Stage

	Outcome      *verification.Decision
	AIScore      *float64 // 0-10, nil until validated
	AIConfidence *float64 // 0-1, nil until validated
	ReviewerID   *id.UserID
	ReviewNotes  *string

	StageChangedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Event is an immutable record of one stage transition. Append-only.
type Event struct {
	ID           uuid.UUID
	SubmissionID id.SubmissionID
	FromStage    Stage
	ToStage      Stage
	ActorKind    audittrail.ActorKind
	ActorID      *id.UserID
	Reason       string
	Payload      map[string]any
	Timestamp    time.Time
}
