// Package aivalidation defines the external AI validation collaborator
// contract and the asynchronous dispatcher that applies its verdicts.
//
// The adapter is untrusted: it may be slow, unavailable, or return garbage.
// Every failure mode maps to the fail-open edge (human review); no submission
// ever waits on it indefinitely.
package aivalidation

import (
	"context"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Status is the adapter's overall verdict.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
)

// PassThreshold is the minimum validation score for the auto-validated edge;
// below it (or on any non-pass status) the submission goes to human review.
const PassThreshold = 7.0

// RequirementContext tells the validator what the document is evidence for.
type RequirementContext struct {
	Category      string `json:"category"`
	Mandatory     bool   `json:"mandatory"`
	ComplianceTag string `json:"compliance_tag"`
	Round         int    `json:"revision_round"`
}

// Request is the document+context payload sent to the validator.
type Request struct {
	DocumentRef        string             `json:"document_ref"`
	RequirementContext RequirementContext `json:"requirement_context"`
}

// Result is the structured verdict consumed by the workflow.
type Result struct {
	ValidationScore float64  `json:"validation_score"` // 0-10
	ConfidenceScore float64  `json:"confidence_score"` // 0-1
	IssuesFound     []string `json:"issues_found"`
	Recommendations []string `json:"recommendations"`
	OverallStatus   Status   `json:"overall_status"`
}

// Validate rejects out-of-range or unknown-status responses so a malformed
// adapter reply is handled as a service failure, not applied as a verdict.
func (r *Result) Validate() error {
	if r.ValidationScore < 0 || r.ValidationScore > 10 {
		return dErrors.New(dErrors.CodeExternalService, "validation score out of range")
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return dErrors.New(dErrors.CodeExternalService, "confidence score out of range")
	}
	switch r.OverallStatus {
	case StatusPass, StatusFail, StatusWarning:
		return nil
	default:
		return dErrors.New(dErrors.CodeExternalService, "unknown overall status")
	}
}

// Passed reports whether the verdict clears the auto-validation guard.
func (r *Result) Passed() bool {
	return r.OverallStatus == StatusPass && r.ValidationScore >= PassThreshold
}

// Adapter is the external collaborator boundary. Implementations must honor
// context cancellation; the dispatcher bounds every call with a timeout.
type Adapter interface {
	Validate(ctx context.Context, req Request) (*Result, error)
}

// Unconfigured stands in when no validator endpoint is configured. Every call
// fails, so submissions take the fail-open edge straight to human review.
type Unconfigured struct{}

func (Unconfigured) Validate(context.Context, Request) (*Result, error) {
	return nil, dErrors.New(dErrors.CodeExternalService, "ai validator not configured")
}

// VerdictApplier receives adapter outcomes. The workflow state machine
// implements it; a nil result with a non-nil callErr takes the fail-open
// edge. The (submissionID, round) pair is the idempotency key: a verdict for
// a stale round is discarded.
type VerdictApplier interface {
	ApplyAIVerdict(ctx context.Context, submissionID id.SubmissionID, round int, res *Result, callErr error) error
}
