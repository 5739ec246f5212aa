package http

import (
	"time"

	"attest/internal/escalation"
	"attest/internal/requirement"
	"attest/internal/workflow"
)

type requirementResponse struct {
	ID              string     `json:"id"`
	CaseID          string     `json:"case_id"`
	Category        string     `json:"category"`
	Mandatory       bool       `json:"mandatory"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	AutoEscalate    bool       `json:"auto_escalate"`
	Priority        int        `json:"priority"`
	EscalationLevel int        `json:"escalation_level"`
	ComplianceTag   string     `json:"compliance_tag,omitempty"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toRequirementResponse(req *requirement.Requirement) requirementResponse {
	return requirementResponse{
		ID:              req.ID.String(),
		CaseID:          req.CaseID.String(),
		Category:        req.Category,
		Mandatory:       req.Mandatory,
		Deadline:        req.Deadline,
		AutoEscalate:    req.AutoEscalate,
		Priority:        req.Priority,
		EscalationLevel: req.EscalationLevel,
		ComplianceTag:   req.ComplianceTag,
		LastEscalatedAt: req.LastEscalatedAt,
		CreatedBy:       req.CreatedBy.String(),
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}

type submissionResponse struct {
	ID             string    `json:"id"`
	RequirementID  string    `json:"requirement_id"`
	DocumentID     string    `json:"document_id"`
	SubmittedBy    string    `json:"submitted_by"`
	Round          int       `json:"revision_round"`
	Stage          string    `json:"stage"`
	Outcome        *string   `json:"outcome,omitempty"`
	AIScore        *float64  `json:"ai_score,omitempty"`
	AIConfidence   *float64  `json:"ai_confidence,omitempty"`
	ReviewerID     *string   `json:"reviewer_id,omitempty"`
	ReviewNotes    *string   `json:"review_notes,omitempty"`
	StageChangedAt time.Time `json:"stage_changed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toSubmissionResponse(sub *workflow.Submission) submissionResponse {
	resp := submissionResponse{
		ID:             sub.ID.String(),
		RequirementID:  sub.RequirementID.String(),
		DocumentID:     sub.DocumentID.String(),
		SubmittedBy:    sub.SubmittedBy.String(),
		Round:          sub.Round,
		Stage:          sub.Stage.String(),
		AIScore:        sub.AIScore,
		AIConfidence:   sub.AIConfidence,
		ReviewNotes:    sub.ReviewNotes,
		StageChangedAt: sub.StageChangedAt,
		CreatedAt:      sub.CreatedAt,
		UpdatedAt:      sub.UpdatedAt,
	}
	if sub.Outcome != nil {
		outcome := sub.Outcome.String()
		resp.Outcome = &outcome
	}
	if sub.ReviewerID != nil {
		reviewer := sub.ReviewerID.String()
		resp.ReviewerID = &reviewer
	}
	return resp
}

type eventResponse struct {
	ID        string         `json:"id"`
	FromStage string         `json:"from_stage"`
	ToStage   string         `json:"to_stage"`
	ActorKind string         `json:"actor_kind"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Reason    string         `json:"reason"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func toEventResponses(events []*workflow.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		resp := eventResponse{
			ID:        event.ID.String(),
			FromStage: event.FromStage.String(),
			ToStage:   event.ToStage.String(),
			ActorKind: string(event.ActorKind),
			Reason:    event.Reason,
			Payload:   event.Payload,
			Timestamp: event.Timestamp,
		}
		if event.ActorID != nil {
			actor := event.ActorID.String()
			resp.ActorID = &actor
		}
		out = append(out, resp)
	}
	return out
}

type escalationResponse struct {
	ID              string     `json:"id"`
	RequirementID   string     `json:"requirement_id"`
	CaseID          string     `json:"case_id"`
	Reason          string     `json:"reason"`
	Level           int        `json:"level"`
	TargetAuthority *string    `json:"target_authority,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNote  string     `json:"resolution_note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func toEscalationResponse(esc *escalation.Escalation) escalationResponse {
	resp := escalationResponse{
		ID:             esc.ID.String(),
		RequirementID:  esc.RequirementID.String(),
		CaseID:         esc.CaseID.String(),
		Reason:         esc.Reason.String(),
		Level:          esc.Level,
		Resolved:       esc.Resolved,
		ResolutionNote: esc.ResolutionNote,
		CreatedAt:      esc.CreatedAt,
		ResolvedAt:     esc.ResolvedAt,
	}
	if esc.TargetAuthority != nil {
		target := esc.TargetAuthority.String()
		resp.TargetAuthority = &target
	}
	if esc.ResolvedBy != nil {
		resolver := esc.ResolvedBy.String()
		resp.ResolvedBy = &resolver
	}
	return resp
}
