package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
)

func newEscalation(reqID id.RequirementID, reason Reason) *Escalation {
	return &Escalation{
		ID:            id.NewEscalationID(),
		RequirementID: reqID,
		CaseID:        id.NewCaseID(),
		Reason:        reason,
		Level:         1,
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryStoreUniqueOpenReason(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reqID := id.NewRequirementID()

	first := newEscalation(reqID, ReasonOverdue)
	require.NoError(t, store.Create(ctx, first))

	t.Run("duplicate open reason conflicts", func(t *testing.T) {
		err := store.Create(ctx, newEscalation(reqID, ReasonOverdue))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("different reason is fine", func(t *testing.T) {
		assert.NoError(t, store.Create(ctx, newEscalation(reqID, ReasonHighPriority)))
	})

	t.Run("different requirement is fine", func(t *testing.T) {
		assert.NoError(t, store.Create(ctx, newEscalation(id.NewRequirementID(), ReasonOverdue)))
	})

	t.Run("resolved frees the slot", func(t *testing.T) {
		_, err := store.Execute(ctx, first.ID,
			func(*Escalation) error { return nil },
			func(esc *Escalation) { esc.Resolved = true })
		require.NoError(t, err)
		assert.NoError(t, store.Create(ctx, newEscalation(reqID, ReasonOverdue)))
	})
}

func TestInMemoryStoreQueries(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	reqID := id.NewRequirementID()

	esc := newEscalation(reqID, ReasonComplianceCritical)
	require.NoError(t, store.Create(ctx, esc))
	require.NoError(t, store.Create(ctx, newEscalation(id.NewRequirementID(), ReasonOverdue)))

	found, err := store.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, esc.Reason, found.Reason)

	_, err = store.FindByID(ctx, id.NewEscalationID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	open, err := store.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	byReq, err := store.ListByRequirement(ctx, reqID)
	require.NoError(t, err)
	assert.Len(t, byReq, 1)

	exists, err := store.ExistsUnresolved(ctx, reqID, ReasonComplianceCritical)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsUnresolved(ctx, reqID, ReasonQualityIssue)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExecuteValidateBlocksMutation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	esc := newEscalation(id.NewRequirementID(), ReasonOverdue)
	require.NoError(t, store.Create(ctx, esc))

	_, err := store.Execute(ctx, esc.ID,
		func(e *Escalation) error { return e.Resolve(id.UserID{}, "", time.Now()) },
		func(e *Escalation) { e.Resolved = true })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	found, err := store.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	assert.False(t, found.Resolved)
}

func TestResolveTwiceConflicts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	esc := newEscalation(id.NewRequirementID(), ReasonOverdue)
	resolver := id.NewUserID()

	require.NoError(t, esc.Resolve(resolver, "handled offline", now))
	assert.True(t, esc.Resolved)
	require.NotNil(t, esc.ResolvedBy)
	assert.Equal(t, resolver, *esc.ResolvedBy)

	err := esc.Resolve(resolver, "again", now)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict))
}

func TestParseReason(t *testing.T) {
	for _, valid := range []string{"overdue", "high_priority", "compliance_critical", "quality_issue"} {
		if _, err := ParseReason(valid); err != nil {
			t.Fatalf("ParseReason(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "panic", "OVERDUE"} {
		if _, err := ParseReason(invalid); err == nil {
			t.Fatalf("ParseReason(%q) should fail", invalid)
		}
	}
}
