package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attest/internal/audittrail"
	"attest/internal/verification"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists submissions and workflow events. Writes join a
// surrounding transaction when one is in the context so a stage update and
// its event/audit appends commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const workflowSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	id               UUID PRIMARY KEY,
	requirement_id   UUID NOT NULL,
	document_id      UUID NOT NULL,
	submitted_by     UUID NOT NULL,
	revision_round   INT NOT NULL,
	stage            TEXT NOT NULL,
	outcome          TEXT,
	ai_score         DOUBLE PRECISION,
	ai_confidence    DOUBLE PRECISION,
	reviewer_id      UUID,
	review_notes     TEXT,
	stage_changed_at TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_events (
	id            UUID PRIMARY KEY,
	submission_id UUID NOT NULL,
	from_stage    TEXT NOT NULL,
	to_stage      TEXT NOT NULL,
	actor_kind    TEXT NOT NULL,
	actor_id      UUID,
	reason        TEXT NOT NULL,
	payload       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the workflow tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, workflowSchema); err != nil {
		return fmt.Errorf("ensure workflow schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const submissionColumns = `id, requirement_id, document_id, submitted_by, revision_round,
	stage, outcome, ai_score, ai_confidence, reviewer_id, review_notes,
	stage_changed_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, submissionArgs(sub)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subID id.SubmissionID) (*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	sub, err := scanSubmission(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(subID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return sub, err
}

func (s *PostgresStore) Update(ctx context.Context, sub *Submission) error {
	query := `
		UPDATE submissions
		SET document_id = $3, revision_round = $5, stage = $6, outcome = $7,
		    ai_score = $8, ai_confidence = $9, reviewer_id = $10, review_notes = $11,
		    stage_changed_at = $12, updated_at = $14
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, submissionArgs(sub)...)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStage(ctx context.Context, stage Stage) ([]*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE stage = $1 ORDER BY created_at`
	return s.querySubmissions(ctx, query, string(stage))
}

func (s *PostgresStore) ListByRequirement(ctx context.Context, reqID id.RequirementID) ([]*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE requirement_id = $1 ORDER BY created_at`
	return s.querySubmissions(ctx, query, uuid.UUID(reqID))
}

func (s *PostgresStore) querySubmissions(ctx context.Context, query string, arg any) ([]*Submission, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var actorID any
	if event.ActorID != nil {
		actorID = uuid.UUID(*event.ActorID)
	}
	query := `
		INSERT INTO workflow_events (id, submission_id, from_stage, to_stage, actor_kind, actor_id, reason, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		uuid.UUID(event.SubmissionID),
		string(event.FromStage),
		string(event.ToStage),
		string(event.ActorKind),
		actorID,
		event.Reason,
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, subID id.SubmissionID) ([]*Event, error) {
	query := `
		SELECT id, submission_id, from_stage, to_stage, actor_kind, actor_id, reason, payload, created_at
		FROM workflow_events
		WHERE submission_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(subID))
	if err != nil {
		return nil, fmt.Errorf("query workflow events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			event    Event
			subUUID  uuid.UUID
			actorID  *uuid.UUID
			payload  []byte
			from, to string
			kind     string
		)
		if err := rows.Scan(&event.ID, &subUUID, &from, &to, &kind, &actorID, &event.Reason, &payload, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		event.SubmissionID = id.SubmissionID(subUUID)
		event.FromStage = Stage(from)
		event.ToStage = Stage(to)
		event.ActorKind = audittrail.ActorKind(kind)
		if actorID != nil {
			uid := id.UserID(*actorID)
			event.ActorID = &uid
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow events: %w", err)
	}
	return out, nil
}

func submissionArgs(sub *Submission) []any {
	var (
		outcome    any
		reviewerID any
		notes      any
	)
	if sub.Outcome != nil {
		outcome = string(*sub.Outcome)
	}
	if sub.ReviewerID != nil {
		reviewerID = uuid.UUID(*sub.ReviewerID)
	}
	if sub.ReviewNotes != nil {
		notes = *sub.ReviewNotes
	}
	return []any{
		uuid.UUID(sub.ID),
		uuid.UUID(sub.RequirementID),
		uuid.UUID(sub.DocumentID),
		uuid.UUID(sub.SubmittedBy),
		sub.Round,
		string(sub.Stage),
		outcome,
		sub.AIScore,
		sub.AIConfidence,
		reviewerID,
		notes,
		sub.StageChangedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		sub                 Submission
		subID, reqID, docID uuid.UUID
		submitter           uuid.UUID
		outcome, notes      sql.NullString
		aiScore, aiConf     sql.NullFloat64
		reviewerID          *uuid.UUID
		stage               string
	)
	err := row.Scan(
		&subID,
		&reqID,
		&docID,
		&submitter,
		&sub.Round,
		&stage,
		&outcome,
		&aiScore,
		&aiConf,
		&reviewerID,
		&notes,
		&sub.StageChangedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	sub.ID = id.SubmissionID(subID)
	sub.RequirementID = id.RequirementID(reqID)
	sub.DocumentID = id.DocumentID(docID)
	sub.SubmittedBy = id.UserID(submitter)
	sub.Stage = Stage(stage)
	if outcome.Valid {
		d := verification.Decision(outcome.String)
		sub.Outcome = &d
	}
	if aiScore.Valid {
		v := aiScore.Float64
		sub.AIScore = &v
	}
	if aiConf.Valid {
		v := aiConf.Float64
		sub.AIConfidence = &v
	}
	if reviewerID != nil {
		uid := id.UserID(*reviewerID)
		sub.ReviewerID = &uid
	}
	if notes.Valid {
		n := notes.String
		sub.ReviewNotes = &n
	}
	return &sub, nil
}
