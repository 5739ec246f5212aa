package escalation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists escalations. The partial unique index on unresolved
// (requirement, reason) pairs is what makes concurrent sweeps safe.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const escalationSchema = `
CREATE TABLE IF NOT EXISTS escalations (
	id               UUID PRIMARY KEY,
	requirement_id   UUID NOT NULL,
	case_id          UUID NOT NULL,
	reason           TEXT NOT NULL,
	level            INT NOT NULL,
	target_authority UUID,
	resolved         BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_by      UUID,
	resolution_note  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	resolved_at      TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS escalations_open_per_reason
	ON escalations (requirement_id, reason) WHERE NOT resolved`

// EnsureSchema creates the escalation table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, escalationSchema); err != nil {
		return fmt.Errorf("ensure escalation schema: %w", err)
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

const escalationColumns = `id, requirement_id, case_id, reason, level, target_authority,
	resolved, resolved_by, resolution_note, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, esc *Escalation) error {
	var target, resolvedBy any
	if esc.TargetAuthority != nil {
		target = uuid.UUID(*esc.TargetAuthority)
	}
	if esc.ResolvedBy != nil {
		resolvedBy = uuid.UUID(*esc.ResolvedBy)
	}
	query := `
		INSERT INTO escalations (` + escalationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(esc.ID),
		uuid.UUID(esc.RequirementID),
		uuid.UUID(esc.CaseID),
		string(esc.Reason),
		esc.Level,
		target,
		esc.Resolved,
		resolvedBy,
		esc.ResolutionNote,
		esc.CreatedAt,
		esc.ResolvedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, escID id.EscalationID) (*Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE id = $1`
	esc, err := scanEscalation(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(escID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return esc, err
}

func (s *PostgresStore) ListUnresolved(ctx context.Context) ([]*Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE NOT resolved ORDER BY created_at`
	return s.queryEscalations(ctx, query)
}

func (s *PostgresStore) ListByRequirement(ctx context.Context, reqID id.RequirementID) ([]*Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE requirement_id = $1 ORDER BY created_at`
	return s.queryEscalations(ctx, query, uuid.UUID(reqID))
}

func (s *PostgresStore) ExistsUnresolved(ctx context.Context, reqID id.RequirementID, reason Reason) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM escalations WHERE requirement_id = $1 AND reason = $2 AND NOT resolved
	)`
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(reqID), string(reason)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unresolved escalation: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Execute(ctx context.Context, escID id.EscalationID,
	validate func(*Escalation) error, mutate func(*Escalation)) (*Escalation, error) {

	var out *Escalation
	run := func(ctx context.Context) error {
		query := `SELECT ` + escalationColumns + ` FROM escalations WHERE id = $1 FOR UPDATE`
		esc, err := scanEscalation(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(escID)))
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := validate(esc); err != nil {
			return err
		}
		mutate(esc)

		var target, resolvedBy any
		if esc.TargetAuthority != nil {
			target = uuid.UUID(*esc.TargetAuthority)
		}
		if esc.ResolvedBy != nil {
			resolvedBy = uuid.UUID(*esc.ResolvedBy)
		}
		update := `
			UPDATE escalations
			SET level = $2, target_authority = $3, resolved = $4, resolved_by = $5,
			    resolution_note = $6, resolved_at = $7
			WHERE id = $1
		`
		if _, err := s.execer(ctx).ExecContext(ctx, update,
			uuid.UUID(esc.ID), esc.Level, target, esc.Resolved, resolvedBy,
			esc.ResolutionNote, esc.ResolvedAt,
		); err != nil {
			return fmt.Errorf("update escalation: %w", err)
		}
		out = esc
		return nil
	}

	if _, inTx := txcontext.From(ctx); inTx {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin escalation tx: %w", err)
	}
	if err := run(txcontext.WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit escalation tx: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) queryEscalations(ctx context.Context, query string, args ...any) ([]*Escalation, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	var (
		esc                  Escalation
		escID, reqID, caseID uuid.UUID
		target, resolvedBy   *uuid.UUID
		reason               string
		resolvedAt           sql.NullTime
	)
	err := row.Scan(
		&escID,
		&reqID,
		&caseID,
		&reason,
		&esc.Level,
		&target,
		&esc.Resolved,
		&resolvedBy,
		&esc.ResolutionNote,
		&esc.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan escalation: %w", err)
	}
	esc.ID = id.EscalationID(escID)
	esc.RequirementID = id.RequirementID(reqID)
	esc.CaseID = id.CaseID(caseID)
	esc.Reason = Reason(reason)
	if target != nil {
		uid := id.UserID(*target)
		esc.TargetAuthority = &uid
	}
	if resolvedBy != nil {
		uid := id.UserID(*resolvedBy)
		esc.ResolvedBy = &uid
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		esc.ResolvedAt = &t
	}
	return &esc, nil
}
