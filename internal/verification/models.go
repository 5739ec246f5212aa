// Package verification maintains the hash chain of final human reviewer
// decisions for each submission. Unlike the audit trail it records nothing
// else, so auditors can export the decision history alone.
package verification

import (
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Decision is a terminal human verdict on a submission revision.
type Decision string

const (
	DecisionApproved      Decision = "approved"
	DecisionRejected      Decision = "rejected"
	DecisionNeedsRevision Decision = "needs_revision"
)

var validDecisions = map[Decision]bool{
	DecisionApproved:      true,
	DecisionRejected:      true,
	DecisionNeedsRevision: true,
}

// ParseDecision constructs a Decision from external input.
func ParseDecision(s string) (Decision, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "decision cannot be empty")
	}
	d := Decision(s)
	if !validDecisions[d] {
		return "", dErrors.New(dErrors.CodeValidation, "invalid decision")
	}
	return d, nil
}

// IsValid checks the decision against the closed set.
func (d Decision) IsValid() bool { return validDecisions[d] }

func (d Decision) String() string { return string(d) }

// Record captures one reviewer decision for chaining. Scores are carried in
// integer tenths (0-100 for a 0-10 scale) so canonical payload bytes never
// depend on float formatting.
type Record struct {
	SubmissionID  id.SubmissionID
	ReviewerID    id.UserID
	Decision      Decision
	Notes         string
	QualityScore  *int // tenths, nullable
	AIScoreAtTime *int // tenths, nullable until validated
	Round         int
	DecidedAt     time.Time
}

// payload renders the record for canonical hashing.
func (r Record) payload() map[string]any {
	var quality, aiScore any
	if r.QualityScore != nil {
		quality = *r.QualityScore
	}
	if r.AIScoreAtTime != nil {
		aiScore = *r.AIScoreAtTime
	}
	return map[string]any{
		"submission_id":        r.SubmissionID.String(),
		"reviewer_id":          r.ReviewerID.String(),
		"decision":             string(r.Decision),
		"notes":                r.Notes,
		"quality_score":        quality,
		"ai_score_at_decision": aiScore,
		"revision_round":       r.Round,
		"decided_at":           r.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
}
