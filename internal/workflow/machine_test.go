package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/aivalidation"
	"attest/internal/audittrail"
	"attest/internal/chain"
	"attest/internal/requirement"
	"attest/internal/verification"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/tx"
	"attest/pkg/requestcontext"
)

type MachineSuite struct {
	suite.Suite
	ctx        context.Context
	chainStore *chain.InMemoryStore
	subs       *InMemoryStore
	reqs       *requirement.InMemoryStore
	audit      *audittrail.Recorder
	decisions  *verification.Chain
	machine    *Machine

	reqID     id.RequirementID
	submitter id.UserID
	reviewer  id.UserID
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	s.chainStore = chain.NewInMemoryStore()
	s.subs = NewInMemoryStore()
	s.reqs = requirement.NewInMemoryStore()
	s.audit = audittrail.NewRecorder(s.chainStore)
	s.decisions = verification.NewChain(s.chainStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.machine = NewMachine(s.subs, s.reqs, s.decisions, s.audit, tx.NoopRunner{}, nil, nil, logger)

	s.submitter = id.NewUserID()
	s.reviewer = id.NewUserID()

	req, err := requirement.New(id.NewRequirementID(), id.NewCaseID(), "financial_statement",
		true, nil, true, 5, "", id.NewUserID(), requestcontext.Now(s.ctx))
	s.Require().NoError(err)
	s.Require().NoError(s.reqs.Create(s.ctx, req))
	s.reqID = req.ID
}

func (s *MachineSuite) intake() *Submission {
	sub, err := s.machine.Intake(s.ctx, IntakeInput{
		RequirementID: s.reqID,
		DocumentID:    id.NewDocumentID(),
		SubmittedBy:   s.submitter,
	})
	s.Require().NoError(err)
	return sub
}

func passingResult() *aivalidation.Result {
	return &aivalidation.Result{
		ValidationScore: 9.0,
		ConfidenceScore: 0.9,
		OverallStatus:   aivalidation.StatusPass,
	}
}

func (s *MachineSuite) TestIntake() {
	sub := s.intake()

	s.Equal(StageAIValidating, sub.Stage)
	s.Equal(1, sub.Round)

	events, err := s.machine.Events(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(StageSubmitted, events[0].FromStage)
	s.Equal(StageAIValidating, events[0].ToStage)

	trail, err := s.audit.Trail(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(trail, 2) // submission_created + ai_validation_requested
}

func (s *MachineSuite) TestIntakeUnknownRequirement() {
	_, err := s.machine.Intake(s.ctx, IntakeInput{
		RequirementID: id.NewRequirementID(),
		DocumentID:    id.NewDocumentID(),
		SubmittedBy:   s.submitter,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MachineSuite) TestPassingVerdictAutoValidates() {
	sub := s.intake()

	err := s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil)
	s.Require().NoError(err)

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageAIValidated, got.Stage)
	s.Require().NotNil(got.AIScore)
	s.InDelta(9.0, *got.AIScore, 0.001)
}

func (s *MachineSuite) TestLowScoreRoutesToHumanReview() {
	sub := s.intake()

	res := passingResult()
	res.ValidationScore = 5.5
	err := s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, res, nil)
	s.Require().NoError(err)

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageUnderReview, got.Stage)
}

func (s *MachineSuite) TestWarningStatusRoutesToHumanReview() {
	sub := s.intake()

	res := passingResult()
	res.OverallStatus = aivalidation.StatusWarning
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, res, nil))

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageUnderReview, got.Stage)
}

func (s *MachineSuite) TestValidatorFailureFailsOpen() {
	sub := s.intake()

	callErr := errors.New("connection refused")
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, nil, callErr))

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageUnderReview, got.Stage)
	s.Nil(got.AIScore)

	trail, err := s.audit.Trail(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(trail, 3) // created, requested, failed
}

func (s *MachineSuite) TestMalformedResultFailsOpen() {
	sub := s.intake()

	res := passingResult()
	res.ValidationScore = 42 // out of range
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, res, nil))

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageUnderReview, got.Stage)
	s.Nil(got.AIScore)
}

func (s *MachineSuite) TestStaleVerdictIsDiscarded() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))

	// Redelivery of the same round after the stage moved on.
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))

	// Verdict for a round that does not exist yet.
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round+1, passingResult(), nil))

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageAIValidated, got.Stage)

	events, err := s.machine.Events(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(events, 2) // intake transition + one verdict, duplicates left no trace
}

func (s *MachineSuite) TestReviewApproval() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))

	got, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionApproved,
		Notes:        "evidence complete",
	})
	s.Require().NoError(err)

	s.Equal(StageApproved, got.Stage)
	s.Require().NotNil(got.Outcome)
	s.Equal(verification.DecisionApproved, *got.Outcome)
	s.Require().NotNil(got.ReviewerID)
	s.Equal(s.reviewer, *got.ReviewerID)

	blocks, err := s.decisions.GetChain(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Require().Len(blocks, 1)

	ok, err := s.decisions.Verify(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.audit.Verify(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *MachineSuite) TestReviewOfTerminalSubmissionIsRejected() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))
	_, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionApproved,
	})
	s.Require().NoError(err)

	eventsBefore, err := s.machine.Events(s.ctx, sub.ID)
	s.Require().NoError(err)
	blocksBefore, err := s.decisions.GetChain(s.ctx, sub.ID)
	s.Require().NoError(err)

	_, err = s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionRejected,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))

	// A rejected transition leaves no event and no block.
	eventsAfter, err := s.machine.Events(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(eventsAfter, len(eventsBefore))
	blocksAfter, err := s.decisions.GetChain(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(blocksAfter, len(blocksBefore))
}

func (s *MachineSuite) TestReviewHaltsOnTamperedDecisionChain() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))
	_, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionNeedsRevision,
	})
	s.Require().NoError(err)

	s.Require().True(s.chainStore.Tamper(verification.Namespace+":"+sub.ID.String(), 1, []byte(`{"forged":true}`)))

	resub, err := s.machine.Resubmit(s.ctx, ResubmitInput{
		SubmissionID: sub.ID,
		DocumentID:   id.NewDocumentID(),
		SubmittedBy:  s.submitter,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, resub.ID, resub.Round, passingResult(), nil))

	_, err = s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionApproved,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeChainIntegrity))
}

func (s *MachineSuite) TestQualityScore() {
	s.Run("without ai score", func() {
		s.Equal(80, computeQualityScore(verification.DecisionApproved, nil))
		s.Equal(50, computeQualityScore(verification.DecisionNeedsRevision, nil))
		s.Equal(20, computeQualityScore(verification.DecisionRejected, nil))
	})

	s.Run("averaged with ai score", func() {
		aiScore := 9.0
		s.Equal(85, computeQualityScore(verification.DecisionApproved, &aiScore))
		low := 2.0
		s.Equal(20, computeQualityScore(verification.DecisionRejected, &low))
	})
}

func (s *MachineSuite) TestResubmit() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))
	_, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionNeedsRevision,
		Notes:        "missing signature page",
	})
	s.Require().NoError(err)

	newDoc := id.NewDocumentID()
	resub, err := s.machine.Resubmit(s.ctx, ResubmitInput{
		SubmissionID: sub.ID,
		DocumentID:   newDoc,
		SubmittedBy:  s.submitter,
	})
	s.Require().NoError(err)

	s.Equal(2, resub.Round)
	s.Equal(StageAIValidating, resub.Stage)
	s.Equal(newDoc, resub.DocumentID)
	s.Nil(resub.Outcome)
	s.Nil(resub.AIScore)
	s.Nil(resub.ReviewerID)

	// The first round's decision block is still there, untouched.
	blocks, err := s.decisions.GetChain(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(blocks, 1)
}

func (s *MachineSuite) TestResubmitGuards() {
	sub := s.intake()

	s.Run("only needs_revision may resubmit", func() {
		_, err := s.machine.Resubmit(s.ctx, ResubmitInput{
			SubmissionID: sub.ID,
			DocumentID:   id.NewDocumentID(),
			SubmittedBy:  s.submitter,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStateConflict))
	})

	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))
	_, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionNeedsRevision,
	})
	s.Require().NoError(err)

	s.Run("only the original submitter", func() {
		_, err := s.machine.Resubmit(s.ctx, ResubmitInput{
			SubmissionID: sub.ID,
			DocumentID:   id.NewDocumentID(),
			SubmittedBy:  id.NewUserID(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *MachineSuite) TestEscalate() {
	sub := s.intake()

	escalated, err := s.machine.Escalate(s.ctx, sub.ID, "overdue", nil)
	s.Require().NoError(err)
	s.True(escalated)

	got, err := s.machine.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(StageEscalated, got.Stage)

	s.Run("escalating again is a no-op", func() {
		escalated, err := s.machine.Escalate(s.ctx, sub.ID, "overdue", nil)
		s.Require().NoError(err)
		s.False(escalated)
	})

	s.Run("escalated still takes a human decision", func() {
		got, err := s.machine.Review(s.ctx, ReviewInput{
			SubmissionID: sub.ID,
			ReviewerID:   s.reviewer,
			Decision:     verification.DecisionRejected,
		})
		s.Require().NoError(err)
		s.Equal(StageRejected, got.Stage)
	})
}

func (s *MachineSuite) TestEscalateDecidedSubmissionIsNoop() {
	sub := s.intake()
	s.Require().NoError(s.machine.ApplyAIVerdict(s.ctx, sub.ID, sub.Round, passingResult(), nil))
	_, err := s.machine.Review(s.ctx, ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   s.reviewer,
		Decision:     verification.DecisionApproved,
	})
	s.Require().NoError(err)

	escalated, err := s.machine.Escalate(s.ctx, sub.ID, "overdue", nil)
	s.Require().NoError(err)
	s.False(escalated)
}
