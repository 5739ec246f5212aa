//go:build integration

package escalation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/testutil/containers"
)

func setupPostgres(t *testing.T) (context.Context, *PostgresStore) {
	t.Helper()
	ctx := context.Background()
	dsn := containers.StartPostgres(ctx, t)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(ctx))
	return ctx, store
}

func TestPostgresPartialUniqueIndex(t *testing.T) {
	ctx, store := setupPostgres(t)
	reqID := id.NewRequirementID()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := &Escalation{
		ID:            id.NewEscalationID(),
		RequirementID: reqID,
		CaseID:        id.NewCaseID(),
		Reason:        ReasonOverdue,
		Level:         1,
		CreatedAt:     now,
	}
	require.NoError(t, store.Create(ctx, first))

	t.Run("open duplicate conflicts", func(t *testing.T) {
		dup := *first
		dup.ID = id.NewEscalationID()
		assert.ErrorIs(t, store.Create(ctx, &dup), sentinel.ErrConflict)
	})

	t.Run("resolved frees the slot", func(t *testing.T) {
		resolver := id.NewUserID()
		resolved, err := store.Execute(ctx, first.ID,
			func(esc *Escalation) error { return esc.Resolve(resolver, "handled", now.Add(time.Hour)) },
			func(*Escalation) {})
		require.NoError(t, err)
		assert.True(t, resolved.Resolved)

		reopened := *first
		reopened.ID = id.NewEscalationID()
		reopened.Level = 2
		assert.NoError(t, store.Create(ctx, &reopened))
	})
}

func TestPostgresExecuteAndQueries(t *testing.T) {
	ctx, store := setupPostgres(t)
	reqID := id.NewRequirementID()
	target := id.NewUserID()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	esc := &Escalation{
		ID:              id.NewEscalationID(),
		RequirementID:   reqID,
		CaseID:          id.NewCaseID(),
		Reason:          ReasonComplianceCritical,
		Level:           2,
		TargetAuthority: &target,
		CreatedAt:       now,
	}
	require.NoError(t, store.Create(ctx, esc))

	found, err := store.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonComplianceCritical, found.Reason)
	require.NotNil(t, found.TargetAuthority)
	assert.Equal(t, target, *found.TargetAuthority)

	exists, err := store.ExistsUnresolved(ctx, reqID, ReasonComplianceCritical)
	require.NoError(t, err)
	assert.True(t, exists)

	open, err := store.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	t.Run("validate failure rolls back", func(t *testing.T) {
		_, err := store.Execute(ctx, esc.ID,
			func(*Escalation) error {
				return dErrors.New(dErrors.CodeStateConflict, "nope")
			},
			func(e *Escalation) { e.Resolved = true })
		require.Error(t, err)

		found, err := store.FindByID(ctx, esc.ID)
		require.NoError(t, err)
		assert.False(t, found.Resolved)
	})

	t.Run("missing escalation", func(t *testing.T) {
		_, err := store.Execute(ctx, id.NewEscalationID(),
			func(*Escalation) error { return nil },
			func(*Escalation) {})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
