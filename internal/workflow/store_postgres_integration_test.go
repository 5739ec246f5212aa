//go:build integration

package workflow

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/audittrail"
	"attest/internal/verification"
	id "attest/pkg/domain"
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

func newSubmission(now time.Time) *Submission {
	return &Submission{
		ID:             id.NewSubmissionID(),
		RequirementID:  id.NewRequirementID(),
		DocumentID:     id.NewDocumentID(),
		SubmittedBy:    id.NewUserID(),
		Round:          1,
		Stage:          StageSubmitted,
		StageChangedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPostgresSubmissionRoundTrip(t *testing.T) {
	ctx, store := setupPostgres(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sub := newSubmission(now)
	require.NoError(t, store.Create(ctx, sub))
	assert.ErrorIs(t, store.Create(ctx, sub), sentinel.ErrConflict)

	found, err := store.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StageSubmitted, found.Stage)
	assert.Nil(t, found.Outcome)
	assert.Nil(t, found.AIScore)
	assert.Nil(t, found.ReviewerID)

	t.Run("update persists nullable fields", func(t *testing.T) {
		score, confidence := 8.5, 0.92
		reviewer := id.NewUserID()
		outcome := verification.DecisionApproved
		notes := "verified against the register"

		sub.Stage = StageApproved
		sub.Outcome = &outcome
		sub.AIScore = &score
		sub.AIConfidence = &confidence
		sub.ReviewerID = &reviewer
		sub.ReviewNotes = &notes
		sub.UpdatedAt = now.Add(time.Hour)
		require.NoError(t, store.Update(ctx, sub))

		found, err := store.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, StageApproved, found.Stage)
		require.NotNil(t, found.Outcome)
		assert.Equal(t, verification.DecisionApproved, *found.Outcome)
		require.NotNil(t, found.AIScore)
		assert.InDelta(t, 8.5, *found.AIScore, 0.001)
		require.NotNil(t, found.ReviewerID)
		assert.Equal(t, reviewer, *found.ReviewerID)
		require.NotNil(t, found.ReviewNotes)
		assert.Equal(t, notes, *found.ReviewNotes)
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := store.FindByID(ctx, id.NewSubmissionID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		ghost := newSubmission(now)
		assert.ErrorIs(t, store.Update(ctx, ghost), sentinel.ErrNotFound)
	})
}

func TestPostgresListsAndEvents(t *testing.T) {
	ctx, store := setupPostgres(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := newSubmission(now)
	second := newSubmission(now.Add(time.Minute))
	second.RequirementID = first.RequirementID
	second.Stage = StageUnderReview
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	byStage, err := store.ListByStage(ctx, StageSubmitted)
	require.NoError(t, err)
	require.Len(t, byStage, 1)
	assert.Equal(t, first.ID, byStage[0].ID)

	byReq, err := store.ListByRequirement(ctx, first.RequirementID)
	require.NoError(t, err)
	assert.Len(t, byReq, 2)

	t.Run("events round trip in order", func(t *testing.T) {
		actor := id.NewUserID()
		events := []*Event{
			{
				ID:           uuid.New(),
				SubmissionID: first.ID,
				FromStage:    StageSubmitted,
				ToStage:      StageAIValidating,
				ActorKind:    audittrail.ActorSystem,
				Reason:       "validation requested",
				Payload:      map[string]any{"round": float64(1)},
				Timestamp:    now,
			},
			{
				ID:           uuid.New(),
				SubmissionID: first.ID,
				FromStage:    StageAIValidating,
				ToStage:      StageUnderReview,
				ActorKind:    audittrail.ActorUser,
				ActorID:      &actor,
				Reason:       "validator unreachable",
				Timestamp:    now.Add(time.Minute),
			},
		}
		for _, event := range events {
			require.NoError(t, store.AppendEvent(ctx, event))
		}

		listed, err := store.ListEvents(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, StageAIValidating, listed[0].ToStage)
		assert.Equal(t, map[string]any{"round": float64(1)}, listed[0].Payload)
		require.NotNil(t, listed[1].ActorID)
		assert.Equal(t, actor, *listed[1].ActorID)
	})
}
