// Package audittrail records every action taken against a submission as a
// hash-chained entry. The trail is a superset of the verification chain: it
// also carries purely informational actions.
package audittrail

import (
	"time"

	id "attest/pkg/domain"
)

// ActorKind classifies who performed a recorded action.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
	ActorAI     ActorKind = "ai"
)

// Action names one recordable event. The set is closed; new actions are added
// here so compliance reviewers can enumerate what may appear in a trail.
type Action string

const (
	ActionSubmissionCreated   Action = "submission_created"
	ActionStageTransition     Action = "stage_transition"
	ActionAIValidationRequest Action = "ai_validation_requested"
	ActionAIValidationVerdict Action = "ai_validation_verdict"
	ActionAIValidationFailure Action = "ai_validation_failed"
	ActionDecisionRecorded    Action = "decision_recorded"
	ActionResubmission        Action = "resubmission"
	ActionEscalationCreated   Action = "escalation_created"
	ActionEscalationResolved  Action = "escalation_resolved"
	ActionComplianceExport    Action = "compliance_export"
)

// Entry is the semantic envelope recorded for one action. ActorID is nil for
// system- and AI-initiated actions without a human principal.
type Entry struct {
	SubjectID id.SubmissionID
	Action    Action
	ActorID   *id.UserID
	ActorKind ActorKind
	Details   map[string]any
	Timestamp time.Time
}

// payload renders the entry for canonical hashing. Timestamps are normalized
// to RFC 3339 nanoseconds in UTC so re-verification is reproducible.
func (e Entry) payload() map[string]any {
	var actor any
	if e.ActorID != nil {
		actor = e.ActorID.String()
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"subject_id": e.SubjectID.String(),
		"action":     string(e.Action),
		"actor_id":   actor,
		"actor_kind": string(e.ActorKind),
		"details":    details,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
