package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/aivalidation"
	"attest/internal/audittrail"
	dErrors "attest/pkg/domain-errors"
)

func TestParseStage(t *testing.T) {
	got, err := ParseStage("under_review")
	require.NoError(t, err)
	assert.Equal(t, StageUnderReview, got)

	_, err = ParseStage("reviewing")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestStagePredicates(t *testing.T) {
	assert.True(t, StageApproved.Terminal())
	assert.True(t, StageRejected.Terminal())
	assert.True(t, StageNeedsRevision.Terminal())
	assert.False(t, StageEscalated.Terminal())
	assert.False(t, StageUnderReview.Terminal())

	assert.True(t, StageSubmitted.Escalatable())
	assert.True(t, StageUnderReview.Escalatable())
	assert.False(t, StageEscalated.Escalatable())
	assert.False(t, StageApproved.Escalatable())
}

func TestFindTransition(t *testing.T) {
	cases := []struct {
		from, to Stage
		ok       bool
	}{
		{StageSubmitted, StageAIValidating, true},
		{StageAIValidating, StageAIValidated, true},
		{StageAIValidating, StageUnderReview, true},
		{StageUnderReview, StageApproved, true},
		{StageEscalated, StageNeedsRevision, true},
		{StageUnderReview, StageEscalated, true},

		{StageSubmitted, StageApproved, false},
		{StageApproved, StageRejected, false},
		{StageAIValidated, StageAIValidating, false},
		{StageNeedsRevision, StageUnderReview, false},
		{StageEscalated, StageEscalated, false},
	}
	for _, tc := range cases {
		_, ok := findTransition(tc.from, tc.to)
		assert.Equalf(t, tc.ok, ok, "%s -> %s", tc.from, tc.to)
	}
}

func TestOnlyUsersTakeDecisionEdges(t *testing.T) {
	for _, to := range []Stage{StageApproved, StageRejected, StageNeedsRevision} {
		for _, from := range []Stage{StageAIValidated, StageUnderReview, StageEscalated} {
			tr, ok := findTransition(from, to)
			require.Truef(t, ok, "%s -> %s", from, to)
			assert.True(t, tr.actors[audittrail.ActorUser])
			assert.False(t, tr.actors[audittrail.ActorSystem])
			assert.False(t, tr.actors[audittrail.ActorAI])
		}
	}
}

func TestGuardAIPassed(t *testing.T) {
	pass := &aivalidation.Result{ValidationScore: 8, ConfidenceScore: 0.8, OverallStatus: aivalidation.StatusPass}

	assert.NoError(t, guardAIPassed(guardInput{verdict: pass}))
	assert.Error(t, guardAIPassed(guardInput{verdict: nil}))
	assert.Error(t, guardAIPassed(guardInput{verdict: pass, verdictErr: errors.New("timeout")}))

	low := &aivalidation.Result{ValidationScore: 6.9, ConfidenceScore: 0.8, OverallStatus: aivalidation.StatusPass}
	assert.Error(t, guardAIPassed(guardInput{verdict: low}))
}

func TestGuardAIReview(t *testing.T) {
	pass := &aivalidation.Result{ValidationScore: 8, ConfidenceScore: 0.8, OverallStatus: aivalidation.StatusPass}

	assert.NoError(t, guardAIReview(guardInput{verdict: nil}))
	assert.NoError(t, guardAIReview(guardInput{verdict: pass, verdictErr: errors.New("timeout")}))
	assert.Error(t, guardAIReview(guardInput{verdict: pass}))
}

func TestIllegalTransitionMessages(t *testing.T) {
	err := illegalTransition(StageApproved, StageRejected)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "terminal")

	err = illegalTransition(StageSubmitted, StageApproved)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "invalid transition")
}
