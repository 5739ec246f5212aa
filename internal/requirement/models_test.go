package requirement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

func validArgs() (id.RequirementID, id.CaseID, id.UserID) {
	return id.NewRequirementID(), id.NewCaseID(), id.NewUserID()
}

func TestNewRequirement(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		reqID, caseID, creator := validArgs()
		deadline := now.Add(72 * time.Hour)
		req, err := New(reqID, caseID, "bank_statement", true, &deadline, true, 7, "aml", creator, now)
		require.NoError(t, err)
		assert.Equal(t, 0, req.EscalationLevel)
		assert.Nil(t, req.LastEscalatedAt)
		assert.Equal(t, now, req.CreatedAt)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		reqID, caseID, creator := validArgs()

		_, err := New(id.RequirementID{}, caseID, "x", true, nil, false, 1, "", creator, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = New(reqID, id.CaseID{}, "x", true, nil, false, 1, "", creator, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = New(reqID, caseID, "", true, nil, false, 1, "", creator, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = New(reqID, caseID, "x", true, nil, false, 11, "", creator, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = New(reqID, caseID, "x", true, nil, false, -1, "", creator, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = New(reqID, caseID, "x", true, nil, false, 1, "", id.UserID{}, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestOverdue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Requirement{}).Overdue(now))
	assert.True(t, (&Requirement{Deadline: &past}).Overdue(now))
	assert.False(t, (&Requirement{Deadline: &future}).Overdue(now))
	assert.False(t, (&Requirement{Deadline: &now}).Overdue(now))
}

func TestApplyEscalation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req := &Requirement{}

	for level := 1; level <= MaxEscalationLevel; level++ {
		require.True(t, req.CanEscalate())
		require.NoError(t, req.ApplyEscalation(now))
		assert.Equal(t, level, req.EscalationLevel)
		require.NotNil(t, req.LastEscalatedAt)
	}

	assert.False(t, req.CanEscalate())
	err := req.ApplyEscalation(now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
	assert.Equal(t, MaxEscalationLevel, req.EscalationLevel)
}

func TestHighPriority(t *testing.T) {
	assert.False(t, (&Requirement{Priority: 7}).HighPriority())
	assert.True(t, (&Requirement{Priority: 8}).HighPriority())
	assert.True(t, (&Requirement{Priority: 10}).HighPriority())
}
