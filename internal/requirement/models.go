// Package requirement manages evidence requirements: what must be submitted
// against a case, by when, and how urgently.
package requirement

import (
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Escalation bounds. Level 0 means never escalated; the engine stops at
// MaxEscalationLevel.
const (
	MaxEscalationLevel = 3
	MaxPriority        = 10
)

// Requirement is a request for a specific category of evidence on a parent
// case. The escalation engine is the only writer of EscalationLevel and
// LastEscalatedAt. Requirements referenced by submissions are never deleted.
type Requirement struct {
	ID              id.RequirementID
	CaseID          id.CaseID
	Category        string
	Mandatory       bool
	Deadline        *time.Time
	AutoEscalate    bool
	Priority        int // 0-10
	EscalationLevel int // 0-3
	ComplianceTag   string
	LastEscalatedAt *time.Time
	CreatedBy       id.UserID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New validates and constructs a Requirement.
func New(reqID id.RequirementID, caseID id.CaseID, category string, mandatory bool,
	deadline *time.Time, autoEscalate bool, priority int, complianceTag string,
	createdBy id.UserID, now time.Time) (*Requirement, error) {

	if reqID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "requirement id is required")
	}
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "case id is required")
	}
	if category == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category is required")
	}
	if priority < 0 || priority > MaxPriority {
		return nil, dErrors.Newf(dErrors.CodeValidation, "priority must be between 0 and %d", MaxPriority)
	}
	if createdBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "creator is required")
	}
	return &Requirement{
		ID:            reqID,
		CaseID:        caseID,
		Category:      category,
		Mandatory:     mandatory,
		Deadline:      deadline,
		AutoEscalate:  autoEscalate,
		Priority:      priority,
		ComplianceTag: complianceTag,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Overdue reports whether the deadline has passed at the given instant.
// Requirements without a deadline are never overdue.
func (r *Requirement) Overdue(now time.Time) bool {
	return r.Deadline != nil && r.Deadline.Before(now)
}

// CanEscalate reports whether the engine may raise the level further.
func (r *Requirement) CanEscalate() bool {
	return r.EscalationLevel < MaxEscalationLevel
}

// ApplyEscalation raises the level by one and stamps the sweep time.
// Returns CodeStateConflict at the cap; the level is monotonic.
func (r *Requirement) ApplyEscalation(now time.Time) error {
	if !r.CanEscalate() {
		return dErrors.Newf(dErrors.CodeStateConflict, "requirement already at escalation level %d", MaxEscalationLevel)
	}
	r.EscalationLevel++
	r.LastEscalatedAt = &now
	r.UpdatedAt = now
	return nil
}

// HighPriority reports whether stuck submissions against this requirement
// qualify for priority escalation.
func (r *Requirement) HighPriority() bool {
	return r.Priority >= 8
}
