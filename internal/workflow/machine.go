package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"attest/internal/aivalidation"
	"attest/internal/audittrail"
	"attest/internal/notify"
	"attest/internal/requirement"
	"attest/internal/verification"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/platform/tx"
	"attest/pkg/requestcontext"
)

const notifyTimeout = 5 * time.Second

// Machine executes workflow operations. Every stage change goes through
// apply, which holds the per-submission lock, checks the transition table,
// and commits the stage update, event, and audit block in one transaction.
type Machine struct {
	store        SubmissionStore
	requirements requirement.Store
	decisions    *verification.Chain
	audit        *audittrail.Recorder
	runner       tx.Runner
	locks        *keyedMutex
	sink         notify.Sink
	metrics      *Metrics
	logger       *slog.Logger
}

func NewMachine(
	store SubmissionStore,
	requirements requirement.Store,
	decisions *verification.Chain,
	audit *audittrail.Recorder,
	runner tx.Runner,
	sink notify.Sink,
	metrics *Metrics,
	logger *slog.Logger,
) *Machine {
	return &Machine{
		store:        store,
		requirements: requirements,
		decisions:    decisions,
		audit:        audit,
		runner:       runner,
		locks:        newKeyedMutex(),
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
	}
}

// IntakeInput identifies the document offered and the requirement it answers.
type IntakeInput struct {
	RequirementID id.RequirementID
	DocumentID    id.DocumentID
	SubmittedBy   id.UserID
}

// Intake creates a submission at round 1 and hands it to AI validation. The
// returned submission is in ai_validating; the caller dispatches the actual
// validator call.
func (m *Machine) Intake(ctx context.Context, in IntakeInput) (*Submission, error) {
	if in.RequirementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "requirement id is required")
	}
	if in.DocumentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "document id is required")
	}
	if in.SubmittedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "submitter is required")
	}
	if _, err := m.requirements.FindByID(ctx, in.RequirementID); err != nil {
		return nil, translateStoreErr(err, "requirement")
	}

	now := requestcontext.Now(ctx)
	sub := &Submission{
		ID:             id.NewSubmissionID(),
		RequirementID:  in.RequirementID,
		DocumentID:     in.DocumentID,
		SubmittedBy:    in.SubmittedBy,
		Round:          1,
		Stage:          StageSubmitted,
		StageChangedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	unlock := m.locks.Lock(sub.ID)
	defer unlock()

	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.store.Create(ctx, sub); err != nil {
			return translateStoreErr(err, "submission")
		}
		_, err := m.audit.Record(ctx, audittrail.Entry{
			SubjectID: sub.ID,
			Action:    audittrail.ActionSubmissionCreated,
			ActorID:   &in.SubmittedBy,
			ActorKind: audittrail.ActorUser,
			Details: map[string]any{
				"requirement_id": in.RequirementID.String(),
				"document_id":    in.DocumentID.String(),
				"revision_round": sub.Round,
			},
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := m.beginValidation(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// beginValidation moves a freshly (re)submitted revision into ai_validating.
// The caller holds the submission lock.
func (m *Machine) beginValidation(ctx context.Context, sub *Submission) error {
	return m.apply(ctx, sub, applyRequest{
		to:        StageAIValidating,
		actorKind: audittrail.ActorSystem,
		reason:    "dispatched to validator",
		audit:     audittrail.ActionAIValidationRequest,
		details: map[string]any{
			"document_id":    sub.DocumentID.String(),
			"revision_round": sub.Round,
		},
	})
}

// ApplyAIVerdict consumes the validator outcome for one (submission, round).
// Verdicts for a stale round or a submission no longer in ai_validating are
// discarded without error; the dispatcher may deliver late or twice. A failed
// call or malformed result takes the fail-open edge to human review.
func (m *Machine) ApplyAIVerdict(ctx context.Context, subID id.SubmissionID, round int, res *aivalidation.Result, callErr error) error {
	unlock := m.locks.Lock(subID)
	defer unlock()

	sub, err := m.store.FindByID(ctx, subID)
	if err != nil {
		return translateStoreErr(err, "submission")
	}
	if sub.Round != round || sub.Stage != StageAIValidating {
		m.logger.Debug("discarding stale ai verdict",
			"submission_id", subID.String(),
			"verdict_round", round,
			"current_round", sub.Round,
			"stage", sub.Stage.String(),
		)
		return nil
	}

	if res != nil && callErr == nil {
		if verr := res.Validate(); verr != nil {
			callErr = verr
			res = nil
		}
	}
	if callErr != nil {
		res = nil
	}

	if callErr != nil {
		m.metrics.ObserveAIFailure()
		return m.apply(ctx, sub, applyRequest{
			to:        StageUnderReview,
			actorKind: audittrail.ActorSystem,
			reason:    "validator unavailable, routed to human review",
			guardIn:   guardInput{verdictErr: callErr},
			audit:     audittrail.ActionAIValidationFailure,
			details: map[string]any{
				"error":          callErr.Error(),
				"revision_round": round,
			},
		})
	}

	target := StageUnderReview
	reason := "verdict below auto-validation threshold"
	if res.Passed() {
		target = StageAIValidated
		reason = "verdict passed auto-validation threshold"
	}
	m.metrics.ObserveAIVerdict(string(res.OverallStatus))

	return m.apply(ctx, sub, applyRequest{
		to:        target,
		actorKind: audittrail.ActorAI,
		reason:    reason,
		guardIn:   guardInput{verdict: res},
		audit:     audittrail.ActionAIValidationVerdict,
		details: map[string]any{
			"validation_score": res.ValidationScore,
			"confidence_score": res.ConfidenceScore,
			"overall_status":   string(res.OverallStatus),
			"issues_found":     res.IssuesFound,
			"recommendations":  res.Recommendations,
			"revision_round":   round,
		},
		mutate: func(s *Submission) {
			score, conf := res.ValidationScore, res.ConfidenceScore
			s.AIScore = &score
			s.AIConfidence = &conf
		},
	})
}

// ReviewInput carries one human reviewer decision.
type ReviewInput struct {
	SubmissionID id.SubmissionID
	ReviewerID   id.UserID
	Decision     verification.Decision
	Notes        string
}

var stageForDecision = map[verification.Decision]Stage{
	verification.DecisionApproved:      StageApproved,
	verification.DecisionRejected:      StageRejected,
	verification.DecisionNeedsRevision: StageNeedsRevision,
}

// Review records a reviewer decision: it verifies the existing decision chain,
// appends the new decision block, and moves the submission to the terminal
// stage, all in one transaction. Notification of the submitter is best effort
// after commit.
func (m *Machine) Review(ctx context.Context, in ReviewInput) (*Submission, error) {
	if in.ReviewerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	target, ok := stageForDecision[in.Decision]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid decision")
	}

	unlock := m.locks.Lock(in.SubmissionID)
	defer unlock()

	sub, err := m.store.FindByID(ctx, in.SubmissionID)
	if err != nil {
		return nil, translateStoreErr(err, "submission")
	}

	// Writes halt on a tampered decision history.
	if err := m.decisions.VerifyStrict(ctx, sub.ID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	quality := computeQualityScore(in.Decision, sub.AIScore)
	var aiTenths *int
	if sub.AIScore != nil {
		t := scoreTenths(*sub.AIScore)
		aiTenths = &t
	}

	err = m.apply(ctx, sub, applyRequest{
		to:        target,
		actorKind: audittrail.ActorUser,
		actorID:   &in.ReviewerID,
		reason:    "reviewer decision: " + in.Decision.String(),
		audit:     audittrail.ActionDecisionRecorded,
		details: map[string]any{
			"decision":       in.Decision.String(),
			"reviewer_id":    in.ReviewerID.String(),
			"quality_score":  quality,
			"revision_round": sub.Round,
		},
		mutate: func(s *Submission) {
			d := in.Decision
			s.Outcome = &d
			s.ReviewerID = &in.ReviewerID
			notes := in.Notes
			s.ReviewNotes = &notes
		},
		chained: func(ctx context.Context) error {
			_, err := m.decisions.Record(ctx, verification.Record{
				SubmissionID:  sub.ID,
				ReviewerID:    in.ReviewerID,
				Decision:      in.Decision,
				Notes:         in.Notes,
				QualityScore:  &quality,
				AIScoreAtTime: aiTenths,
				Round:         sub.Round,
				DecidedAt:     now,
			})
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveDecision(in.Decision.String())
	m.notifyAsync(ctx, notify.Notification{
		Kind:          notify.KindDecision,
		Recipient:     sub.SubmittedBy,
		SubmissionID:  sub.ID,
		RequirementID: sub.RequirementID,
		Subject:       "submission " + in.Decision.String(),
		Detail: map[string]any{
			"decision":       in.Decision.String(),
			"revision_round": sub.Round,
		},
		OccurredAt: now,
	})
	return sub, nil
}

// Escalate forces a submission to escalated on behalf of the escalation
// engine. Submissions already decided or escalated are skipped; the engine
// sweep stays idempotent. The boolean reports whether a transition happened.
func (m *Machine) Escalate(ctx context.Context, subID id.SubmissionID, reason string, details map[string]any) (bool, error) {
	unlock := m.locks.Lock(subID)
	defer unlock()

	sub, err := m.store.FindByID(ctx, subID)
	if err != nil {
		return false, translateStoreErr(err, "submission")
	}
	if !sub.Stage.Escalatable() {
		return false, nil
	}
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason

	err = m.apply(ctx, sub, applyRequest{
		to:        StageEscalated,
		actorKind: audittrail.ActorSystem,
		reason:    reason,
		audit:     audittrail.ActionEscalationCreated,
		details:   details,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResubmitInput replaces the document after a needs_revision decision.
type ResubmitInput struct {
	SubmissionID id.SubmissionID
	DocumentID   id.DocumentID
	SubmittedBy  id.UserID
}

// Resubmit starts a new revision round: the round counter increments, the
// prior verdicts and reviewer fields are cleared, and the submission re-enters
// the pipeline at ai_validating. Chains are never rewound; the new round's
// blocks append after the old ones.
func (m *Machine) Resubmit(ctx context.Context, in ResubmitInput) (*Submission, error) {
	if in.DocumentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "document id is required")
	}
	if in.SubmittedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "submitter is required")
	}

	unlock := m.locks.Lock(in.SubmissionID)
	defer unlock()

	sub, err := m.store.FindByID(ctx, in.SubmissionID)
	if err != nil {
		return nil, translateStoreErr(err, "submission")
	}
	if sub.Stage != StageNeedsRevision {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"only submissions in %q may be resubmitted, current stage is %q", StageNeedsRevision, sub.Stage)
	}
	if sub.SubmittedBy != in.SubmittedBy {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the original submitter may resubmit")
	}

	now := requestcontext.Now(ctx)
	from := sub.Stage
	sub.Round++
	sub.DocumentID = in.DocumentID
	sub.Stage = StageSubmitted
	sub.Outcome = nil
	sub.AIScore = nil
	sub.AIConfidence = nil
	sub.ReviewerID = nil
	sub.ReviewNotes = nil
	sub.StageChangedAt = now
	sub.UpdatedAt = now

	err = m.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.store.Update(ctx, sub); err != nil {
			return translateStoreErr(err, "submission")
		}
		event := &Event{
			ID:           uuid.New(),
			SubmissionID: sub.ID,
			FromStage:    from,
			ToStage:      StageSubmitted,
			ActorKind:    audittrail.ActorUser,
			ActorID:      &in.SubmittedBy,
			Reason:       "resubmission",
			Payload: map[string]any{
				"document_id":    in.DocumentID.String(),
				"revision_round": sub.Round,
			},
			Timestamp: now,
		}
		if err := m.store.AppendEvent(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append workflow event")
		}
		_, err := m.audit.Record(ctx, audittrail.Entry{
			SubjectID: sub.ID,
			Action:    audittrail.ActionResubmission,
			ActorID:   &in.SubmittedBy,
			ActorKind: audittrail.ActorUser,
			Details: map[string]any{
				"document_id":    in.DocumentID.String(),
				"revision_round": sub.Round,
			},
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := m.beginValidation(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns the submission.
func (m *Machine) Get(ctx context.Context, subID id.SubmissionID) (*Submission, error) {
	sub, err := m.store.FindByID(ctx, subID)
	if err != nil {
		return nil, translateStoreErr(err, "submission")
	}
	return sub, nil
}

// Events returns the ordered transition history.
func (m *Machine) Events(ctx context.Context, subID id.SubmissionID) ([]*Event, error) {
	events, err := m.store.ListEvents(ctx, subID)
	if err != nil {
		return nil, translateStoreErr(err, "submission")
	}
	return events, nil
}

// applyRequest describes one requested transition and its side effects.
type applyRequest struct {
	to        Stage
	actorKind audittrail.ActorKind
	actorID   *id.UserID
	reason    string
	guardIn   guardInput
	audit     audittrail.Action
	details   map[string]any

	// mutate applies field updates beyond the stage change.
	mutate func(*Submission)
	// chained runs inside the same transaction before the stage update,
	// e.g. the verification chain append for a decision.
	chained func(ctx context.Context) error
}

// apply checks the transition table and commits the stage change with its
// event and audit block. A rejected edge leaves no event and no block. The
// caller holds the submission lock.
func (m *Machine) apply(ctx context.Context, sub *Submission, req applyRequest) error {
	t, ok := findTransition(sub.Stage, req.to)
	if !ok {
		m.metrics.ObserveRejectedTransition()
		return illegalTransition(sub.Stage, req.to)
	}
	if !t.actors[req.actorKind] {
		m.metrics.ObserveRejectedTransition()
		return dErrors.Newf(dErrors.CodeStateConflict,
			"actor kind %q may not move a submission from %q to %q", req.actorKind, sub.Stage, req.to)
	}
	if t.guard != nil {
		req.guardIn.submission = sub
		if err := t.guard(req.guardIn); err != nil {
			m.metrics.ObserveRejectedTransition()
			return err
		}
	}

	now := requestcontext.Now(ctx)
	from := sub.Stage
	sub.Stage = req.to
	sub.StageChangedAt = now
	sub.UpdatedAt = now
	if req.mutate != nil {
		req.mutate(sub)
	}

	auditDetails := map[string]any{
		"from_stage": from.String(),
		"to_stage":   req.to.String(),
	}
	for k, v := range req.details {
		auditDetails[k] = v
	}

	err := m.runner.RunInTx(ctx, func(ctx context.Context) error {
		if req.chained != nil {
			if err := req.chained(ctx); err != nil {
				return err
			}
		}
		if err := m.store.Update(ctx, sub); err != nil {
			return translateStoreErr(err, "submission")
		}
		event := &Event{
			ID:           uuid.New(),
			SubmissionID: sub.ID,
			FromStage:    from,
			ToStage:      req.to,
			ActorKind:    req.actorKind,
			ActorID:      req.actorID,
			Reason:       req.reason,
			Payload:      req.details,
			Timestamp:    now,
		}
		if err := m.store.AppendEvent(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append workflow event")
		}
		_, err := m.audit.Record(ctx, audittrail.Entry{
			SubjectID: sub.ID,
			Action:    req.audit,
			ActorID:   req.actorID,
			ActorKind: req.actorKind,
			Details:   auditDetails,
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		sub.Stage = from
		return err
	}

	m.metrics.ObserveTransition(from, req.to)
	m.logger.Info("stage transition",
		"submission_id", sub.ID.String(),
		"from", from.String(),
		"to", req.to.String(),
		"actor_kind", string(req.actorKind),
	)
	return nil
}

// notifyAsync publishes after commit without blocking or failing the caller.
func (m *Machine) notifyAsync(ctx context.Context, n notify.Notification) {
	if m.sink == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := m.sink.Publish(nctx, n); err != nil {
			m.metrics.ObserveNotifyFailure()
			m.logger.Warn("notification publish failed",
				"submission_id", n.SubmissionID.String(),
				"kind", string(n.Kind),
				"error", err,
			)
		}
	}()
}

// scoreTenths converts a 0-10 float score to integer tenths.
func scoreTenths(score float64) int {
	return int(math.Round(score * 10))
}

// computeQualityScore derives the recorded quality score (in tenths) from the
// decision and, when present, the AI score at decision time.
func computeQualityScore(decision verification.Decision, aiScore *float64) int {
	var base int
	switch decision {
	case verification.DecisionApproved:
		base = 80
	case verification.DecisionNeedsRevision:
		base = 50
	case verification.DecisionRejected:
		base = 20
	}
	if aiScore == nil {
		return base
	}
	return (base + scoreTenths(*aiScore)) / 2
}

func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, what+" store failure")
	}
}
