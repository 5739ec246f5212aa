package escalation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"attest/internal/audittrail"
	"attest/internal/notify"
	"attest/internal/requirement"
	"attest/internal/workflow"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// sweepConcurrency bounds parallel requirement evaluation in one sweep.
const sweepConcurrency = 8

// qualityIssueRound is the revision round at which repeated rework itself
// becomes an escalation reason.
const qualityIssueRound = 3

// SubmissionEscalator is the slice of the workflow machine the engine needs.
type SubmissionEscalator interface {
	Escalate(ctx context.Context, subID id.SubmissionID, reason string, details map[string]any) (bool, error)
}

// Engine evaluates requirements and raises escalations. Sweeps are idempotent:
// a reason already raised and unresolved is never raised again, and the
// requirement level never moves past the cap.
type Engine struct {
	requirements requirement.Store
	authorities  requirement.AuthorityDirectory
	store        Store
	submissions  workflow.SubmissionStore
	escalator    SubmissionEscalator
	audit        *audittrail.Recorder
	sink         notify.Sink
	staleness    time.Duration
	metrics      *Metrics
	logger       *slog.Logger
}

func NewEngine(
	requirements requirement.Store,
	authorities requirement.AuthorityDirectory,
	store Store,
	submissions workflow.SubmissionStore,
	escalator SubmissionEscalator,
	audit *audittrail.Recorder,
	sink notify.Sink,
	staleness time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		requirements: requirements,
		authorities:  authorities,
		store:        store,
		submissions:  submissions,
		escalator:    escalator,
		audit:        audit,
		sink:         sink,
		staleness:    staleness,
		metrics:      metrics,
		logger:       logger,
	}
}

// Sweep evaluates every active requirement once. All requirements share one
// sweep timestamp so a single run is internally consistent.
func (e *Engine) Sweep(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(ctx, now)

	reqs, err := e.requirements.ListActive(ctx)
	if err != nil {
		e.metrics.ObserveSweepError()
		return dErrors.Wrap(err, dErrors.CodeInternal, "list requirements for sweep")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, req := range reqs {
		g.Go(func() error {
			return e.evaluate(gctx, req, now)
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.ObserveSweepError()
		return err
	}
	e.metrics.ObserveSweep()
	return nil
}

// evaluate checks one requirement against every escalation reason.
func (e *Engine) evaluate(ctx context.Context, req *requirement.Requirement, now time.Time) error {
	subs, err := e.submissions.ListByRequirement(ctx, req.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list submissions for sweep")
	}

	var (
		open     []*workflow.Submission
		anyStale bool
		maxRound int
	)
	for _, sub := range subs {
		if !sub.Stage.Escalatable() {
			continue
		}
		open = append(open, sub)
		if sub.StageChangedAt.Before(now.Add(-e.staleness)) {
			anyStale = true
		}
		if sub.Round > maxRound {
			maxRound = sub.Round
		}
	}

	var reasons []Reason
	if req.AutoEscalate && req.Overdue(now) {
		reasons = append(reasons, ReasonOverdue)
	}
	if req.ComplianceTag != "" && req.Mandatory && req.Overdue(now) {
		reasons = append(reasons, ReasonComplianceCritical)
	}
	if req.HighPriority() && anyStale {
		reasons = append(reasons, ReasonHighPriority)
	}
	if maxRound >= qualityIssueRound {
		reasons = append(reasons, ReasonQualityIssue)
	}

	for _, reason := range reasons {
		if err := e.raise(ctx, req, reason, open, now); err != nil {
			return err
		}
	}
	return nil
}

// raise creates one escalation for (requirement, reason) unless one is
// already open, bumps the requirement level, escalates the open submissions,
// and notifies the case authorities.
func (e *Engine) raise(ctx context.Context, req *requirement.Requirement, reason Reason, open []*workflow.Submission, now time.Time) error {
	exists, err := e.store.ExistsUnresolved(ctx, req.ID, reason)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check open escalation")
	}
	if exists {
		return nil
	}

	updated, err := e.requirements.Execute(ctx, req.ID,
		func(r *requirement.Requirement) error {
			if !r.CanEscalate() {
				return dErrors.Newf(dErrors.CodeStateConflict,
					"requirement already at escalation level %d", requirement.MaxEscalationLevel)
			}
			return nil
		},
		func(r *requirement.Requirement) {
			_ = r.ApplyEscalation(now)
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStateConflict) {
			e.logger.Debug("escalation level cap reached",
				"requirement_id", req.ID.String(),
				"reason", reason.String(),
			)
			return nil
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "raise requirement escalation level")
	}

	authorities, err := e.authorities.AuthoritiesForCase(ctx, req.CaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve case authorities")
	}
	var target *id.UserID
	if len(authorities) > 0 {
		idx := updated.EscalationLevel - 1
		if idx >= len(authorities) {
			idx = len(authorities) - 1
		}
		target = &authorities[idx]
	}

	esc := &Escalation{
		ID:              id.NewEscalationID(),
		RequirementID:   req.ID,
		CaseID:          req.CaseID,
		Reason:          reason,
		Level:           updated.EscalationLevel,
		TargetAuthority: target,
		CreatedAt:       now,
	}
	if err := e.store.Create(ctx, esc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A concurrent sweep raised it first.
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "create escalation")
	}

	details := map[string]any{
		"escalation_id":    esc.ID.String(),
		"requirement_id":   req.ID.String(),
		"escalation_level": esc.Level,
	}
	for _, sub := range open {
		if _, err := e.escalator.Escalate(ctx, sub.ID, reason.String(), details); err != nil {
			e.logger.Error("escalating submission failed",
				"submission_id", sub.ID.String(),
				"escalation_id", esc.ID.String(),
				"error", err,
			)
		}
	}

	for _, authority := range authorities {
		e.publish(ctx, notify.Notification{
			Kind:          notify.KindEscalation,
			Recipient:     authority,
			RequirementID: req.ID,
			Subject:       "requirement escalated: " + reason.String(),
			Detail:        details,
			OccurredAt:    now,
		})
	}

	e.metrics.ObserveRaised(reason)
	e.logger.Info("escalation raised",
		"escalation_id", esc.ID.String(),
		"requirement_id", req.ID.String(),
		"reason", reason.String(),
		"level", esc.Level,
	)
	return nil
}

// Resolve closes an escalation and leaves an audit entry on every submission
// still escalated under the requirement. Submissions keep their escalated
// stage; only a reviewer decision moves them on.
func (e *Engine) Resolve(ctx context.Context, escID id.EscalationID, by id.UserID, note string) (*Escalation, error) {
	if by.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "resolver is required")
	}
	now := requestcontext.Now(ctx)

	esc, err := e.store.Execute(ctx, escID,
		func(candidate *Escalation) error {
			if candidate.Resolved {
				return dErrors.New(dErrors.CodeStateConflict, "escalation already resolved")
			}
			return nil
		},
		func(candidate *Escalation) {
			_ = candidate.Resolve(by, note, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escalation not found")
		}
		return nil, err
	}

	subs, err := e.submissions.ListByRequirement(ctx, esc.RequirementID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list submissions for resolution")
	}
	for _, sub := range subs {
		if sub.Stage != workflow.StageEscalated {
			continue
		}
		_, err := e.audit.Record(ctx, audittrail.Entry{
			SubjectID: sub.ID,
			Action:    audittrail.ActionEscalationResolved,
			ActorID:   &by,
			ActorKind: audittrail.ActorUser,
			Details: map[string]any{
				"escalation_id": esc.ID.String(),
				"reason":        esc.Reason.String(),
				"note":          note,
			},
			Timestamp: now,
		})
		if err != nil {
			e.logger.Error("recording escalation resolution failed",
				"submission_id", sub.ID.String(),
				"escalation_id", esc.ID.String(),
				"error", err,
			)
		}
	}

	if esc.TargetAuthority != nil {
		e.publish(ctx, notify.Notification{
			Kind:          notify.KindEscalationClosed,
			Recipient:     *esc.TargetAuthority,
			RequirementID: esc.RequirementID,
			Subject:       "escalation resolved",
			Detail: map[string]any{
				"escalation_id": esc.ID.String(),
				"resolved_by":   by.String(),
			},
			OccurredAt: now,
		})
	}

	e.metrics.ObserveResolved()
	return esc, nil
}

// Get returns one escalation.
func (e *Engine) Get(ctx context.Context, escID id.EscalationID) (*Escalation, error) {
	esc, err := e.store.FindByID(ctx, escID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escalation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "escalation store failure")
	}
	return esc, nil
}

// ListOpen returns every unresolved escalation.
func (e *Engine) ListOpen(ctx context.Context) ([]*Escalation, error) {
	escs, err := e.store.ListUnresolved(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "escalation store failure")
	}
	return escs, nil
}

func (e *Engine) publish(ctx context.Context, n notify.Notification) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, n); err != nil {
		e.logger.Warn("escalation notification failed",
			"recipient", n.Recipient.String(),
			"error", err,
		)
	}
}
