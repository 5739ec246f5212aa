// Package escalation raises attention on requirements whose submissions are
// overdue or stuck. The sweep engine is the only writer of requirement
// escalation levels; sweeps are idempotent and capped.
package escalation

import (
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Reason names why an escalation was raised. One unresolved escalation per
// (requirement, reason) exists at a time.
type Reason string

const (
	ReasonOverdue            Reason = "overdue"
	ReasonHighPriority       Reason = "high_priority"
	ReasonComplianceCritical Reason = "compliance_critical"
	ReasonQualityIssue       Reason = "quality_issue"
)

var validReasons = map[Reason]bool{
	ReasonOverdue:            true,
	ReasonHighPriority:       true,
	ReasonComplianceCritical: true,
	ReasonQualityIssue:       true,
}

// ParseReason constructs a Reason from external input.
func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !validReasons[r] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid escalation reason")
	}
	return r, nil
}

func (r Reason) String() string { return string(r) }

// Escalation is one raised flag against a requirement. Level snapshots the
// requirement's escalation level at creation time; TargetAuthority is the
// ranked authority responsible for that level.
type Escalation struct {
	ID              id.EscalationID
	RequirementID   id.RequirementID
	CaseID          id.CaseID
	Reason          Reason
	Level           int
	TargetAuthority *id.UserID
	Resolved        bool
	ResolvedBy      *id.UserID
	ResolutionNote  string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// Resolve marks the escalation handled. Resolving twice is a conflict.
func (e *Escalation) Resolve(by id.UserID, note string, now time.Time) error {
	if e.Resolved {
		return dErrors.New(dErrors.CodeStateConflict, "escalation already resolved")
	}
	if by.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "resolver is required")
	}
	e.Resolved = true
	e.ResolvedBy = &by
	e.ResolutionNote = note
	e.ResolvedAt = &now
	return nil
}
