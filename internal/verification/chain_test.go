package verification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/chain"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

type ChainSuite struct {
	suite.Suite
	ctx      context.Context
	store    *chain.InMemoryStore
	verChain *Chain
	subID    id.SubmissionID
	reviewer id.UserID
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.store = chain.NewInMemoryStore()
	s.verChain = NewChain(s.store)
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.subID = id.NewSubmissionID()
	s.reviewer = id.NewUserID()
}

func (s *ChainSuite) record(decision Decision, round int) chain.Block {
	quality := 80
	block, err := s.verChain.Record(s.ctx, Record{
		SubmissionID: s.subID,
		ReviewerID:   s.reviewer,
		Decision:     decision,
		Notes:        "checked",
		QualityScore: &quality,
		Round:        round,
	})
	s.Require().NoError(err)
	return block
}

func (s *ChainSuite) TestDecisionsChainAcrossRounds() {
	first := s.record(DecisionNeedsRevision, 1)
	second := s.record(DecisionApproved, 2)

	s.Equal(chain.GenesisHash, first.PreviousHash)
	s.Equal(first.Hash, second.PreviousHash)

	blocks, err := s.verChain.GetChain(s.ctx, s.subID)
	s.Require().NoError(err)
	s.Require().Len(blocks, 2)

	ok, err := s.verChain.Verify(s.ctx, s.subID)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ChainSuite) TestRecordValidation() {
	s.Run("missing submission", func() {
		_, err := s.verChain.Record(s.ctx, Record{ReviewerID: s.reviewer, Decision: DecisionApproved})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("missing reviewer", func() {
		_, err := s.verChain.Record(s.ctx, Record{SubmissionID: s.subID, Decision: DecisionApproved})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("invalid decision", func() {
		_, err := s.verChain.Record(s.ctx, Record{SubmissionID: s.subID, ReviewerID: s.reviewer, Decision: "maybe"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ChainSuite) TestPayloadCarriesScoresInTenths() {
	quality := 85
	aiScore := 90
	block, err := s.verChain.Record(s.ctx, Record{
		SubmissionID:  s.subID,
		ReviewerID:    s.reviewer,
		Decision:      DecisionApproved,
		QualityScore:  &quality,
		AIScoreAtTime: &aiScore,
		Round:         1,
	})
	s.Require().NoError(err)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(block.Payload, &payload))
	s.Equal(float64(85), payload["quality_score"])
	s.Equal(float64(90), payload["ai_score_at_decision"])
	s.Equal("approved", payload["decision"])
}

func (s *ChainSuite) TestVerifyStrictOnTamperedChain() {
	s.record(DecisionApproved, 1)
	s.Require().True(s.store.Tamper(Namespace+":"+s.subID.String(), 1, []byte(`{"decision":"rejected"}`)))

	err := s.verChain.VerifyStrict(s.ctx, s.subID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeChainIntegrity))
}

func TestParseDecision(t *testing.T) {
	for _, valid := range []string{"approved", "rejected", "needs_revision"} {
		if _, err := ParseDecision(valid); err != nil {
			t.Fatalf("ParseDecision(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "maybe", "APPROVED"} {
		if _, err := ParseDecision(invalid); err == nil {
			t.Fatalf("ParseDecision(%q) should fail", invalid)
		}
	}
}
