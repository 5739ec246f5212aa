// Package export assembles the compliance bundle for a submission: the
// decision chain, the audit trail, and a freshly computed integrity verdict.
package export

import (
	"context"
	"log/slog"
	"time"

	"attest/internal/audittrail"
	"attest/internal/chain"
	"attest/internal/verification"
	"attest/internal/workflow"
	id "attest/pkg/domain"
	"attest/pkg/requestcontext"
)

// SubmissionGetter is the slice of the workflow machine the exporter needs.
type SubmissionGetter interface {
	Get(ctx context.Context, subID id.SubmissionID) (*workflow.Submission, error)
}

// Bundle is the exported artifact. ChainsValid is computed at export time by
// replaying both chains; a false value means the bundle must not be trusted.
type Bundle struct {
	SubmissionID      id.SubmissionID  `json:"submission_id"`
	RequirementID     id.RequirementID `json:"requirement_id"`
	Stage             workflow.Stage   `json:"stage"`
	Round             int              `json:"revision_round"`
	VerificationChain []chain.Block    `json:"verification_chain"`
	AuditTrail        []chain.Block    `json:"audit_trail"`
	ChainsValid       bool             `json:"chains_valid"`
	ExportedAt        time.Time        `json:"exported_at"`
}

// Service builds compliance bundles and records each export in the trail.
type Service struct {
	submissions SubmissionGetter
	decisions   *verification.Chain
	audit       *audittrail.Recorder
	logger      *slog.Logger
}

func NewService(submissions SubmissionGetter, decisions *verification.Chain, audit *audittrail.Recorder, logger *slog.Logger) *Service {
	return &Service{submissions: submissions, decisions: decisions, audit: audit, logger: logger}
}

// Build assembles the bundle for one submission. The export itself becomes an
// audit entry, appended after the trail snapshot is taken.
func (s *Service) Build(ctx context.Context, subID id.SubmissionID, requestedBy id.UserID) (*Bundle, error) {
	sub, err := s.submissions.Get(ctx, subID)
	if err != nil {
		return nil, err
	}

	decisionBlocks, err := s.decisions.GetChain(ctx, subID)
	if err != nil {
		return nil, err
	}
	decisionsOK, err := s.decisions.Verify(ctx, subID)
	if err != nil {
		return nil, err
	}

	trail, err := s.audit.Trail(ctx, subID)
	if err != nil {
		return nil, err
	}
	trailOK, err := s.audit.Verify(ctx, subID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	bundle := &Bundle{
		SubmissionID:      sub.ID,
		RequirementID:     sub.RequirementID,
		Stage:             sub.Stage,
		Round:             sub.Round,
		VerificationChain: decisionBlocks,
		AuditTrail:        trail,
		ChainsValid:       decisionsOK && trailOK,
		ExportedAt:        now,
	}

	if _, err := s.audit.Record(ctx, audittrail.Entry{
		SubjectID: subID,
		Action:    audittrail.ActionComplianceExport,
		ActorID:   &requestedBy,
		ActorKind: audittrail.ActorUser,
		Details: map[string]any{
			"chains_valid":    bundle.ChainsValid,
			"decision_blocks": len(decisionBlocks),
			"audit_blocks":    len(trail),
		},
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("recording export failed",
			"submission_id", subID.String(),
			"error", err,
		)
	}

	if !bundle.ChainsValid {
		s.logger.Error("export produced with invalid chains",
			"submission_id", subID.String(),
			"decisions_valid", decisionsOK,
			"trail_valid", trailOK,
		)
	}
	return bundle, nil
}
