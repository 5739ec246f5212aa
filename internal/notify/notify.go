// Package notify delivers workflow notifications to reviewers, submitters,
// and case authorities. Delivery is best effort; callers never fail a
// transition because a notification could not be sent.
package notify

import (
	"context"
	"time"

	id "attest/pkg/domain"
)

// Kind names the event a notification announces.
type Kind string

const (
	KindDecision         Kind = "decision"
	KindEscalation       Kind = "escalation"
	KindEscalationClosed Kind = "escalation_resolved"
	KindReviewRequested  Kind = "review_requested"
)

// Notification is one message to one recipient.
type Notification struct {
	Kind          Kind             `json:"kind"`
	Recipient     id.UserID        `json:"recipient"`
	SubmissionID  id.SubmissionID  `json:"submission_id,omitempty"`
	RequirementID id.RequirementID `json:"requirement_id,omitempty"`
	Subject       string           `json:"subject"`
	Detail        map[string]any   `json:"detail,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// Sink publishes notifications to a delivery channel.
type Sink interface {
	Publish(ctx context.Context, n Notification) error
}
