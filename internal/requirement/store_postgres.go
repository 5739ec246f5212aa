package requirement

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

// PostgresStore persists requirements. Execute serializes through
// SELECT ... FOR UPDATE so escalation-level bumps are atomic with their
// validation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requirementSchema = `
CREATE TABLE IF NOT EXISTS requirements (
	id                UUID PRIMARY KEY,
	case_id           UUID NOT NULL,
	category          TEXT NOT NULL,
	mandatory         BOOLEAN NOT NULL,
	deadline          TIMESTAMPTZ,
	auto_escalate     BOOLEAN NOT NULL,
	priority          INT NOT NULL,
	escalation_level  INT NOT NULL DEFAULT 0,
	compliance_tag    TEXT NOT NULL DEFAULT '',
	last_escalated_at TIMESTAMPTZ,
	created_by        UUID NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS case_authorities (
	case_id UUID NOT NULL,
	user_id UUID NOT NULL,
	rank    INT NOT NULL,
	PRIMARY KEY (case_id, user_id)
)`

// EnsureSchema creates the requirement tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, requirementSchema); err != nil {
		return fmt.Errorf("ensure requirement schema: %w", err)
	}
	return nil
}

const requirementColumns = `id, case_id, category, mandatory, deadline, auto_escalate,
	priority, escalation_level, compliance_tag, last_escalated_at,
	created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, req *Requirement) error {
	query := `
		INSERT INTO requirements (` + requirementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(req.ID),
		uuid.UUID(req.CaseID),
		req.Category,
		req.Mandatory,
		req.Deadline,
		req.AutoEscalate,
		req.Priority,
		req.EscalationLevel,
		req.ComplianceTag,
		req.LastEscalatedAt,
		uuid.UUID(req.CreatedBy),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, reqID id.RequirementID) (*Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE id = $1`
	req, err := scanRequirement(s.db.QueryRowContext(ctx, query, uuid.UUID(reqID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return req, err
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query requirements: %w", err)
	}
	defer rows.Close()

	var out []*Requirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requirements: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Execute(ctx context.Context, reqID id.RequirementID,
	validate func(*Requirement) error, mutate func(*Requirement)) (*Requirement, error) {

	run := func(txCtx context.Context, sqlTx *sql.Tx) (*Requirement, error) {
		query := `SELECT ` + requirementColumns + ` FROM requirements WHERE id = $1 FOR UPDATE`
		req, err := scanRequirement(sqlTx.QueryRowContext(txCtx, query, uuid.UUID(reqID)))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if err := validate(req); err != nil {
			return nil, err
		}
		mutate(req)

		update := `
			UPDATE requirements
			SET escalation_level = $2, last_escalated_at = $3, updated_at = $4
			WHERE id = $1
		`
		if _, err := sqlTx.ExecContext(txCtx, update,
			uuid.UUID(req.ID), req.EscalationLevel, req.LastEscalatedAt, req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update requirement: %w", err)
		}
		return req, nil
	}

	// Join a surrounding transaction when one is in flight.
	if sqlTx, ok := txcontext.From(ctx); ok {
		return run(ctx, sqlTx)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin requirement tx: %w", err)
	}
	req, err := run(ctx, sqlTx)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit requirement tx: %w", err)
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequirement(row rowScanner) (*Requirement, error) {
	var (
		req                    Requirement
		reqID, caseID, creator uuid.UUID
		deadline, lastEsc      sql.NullTime
	)
	err := row.Scan(
		&reqID,
		&caseID,
		&req.Category,
		&req.Mandatory,
		&deadline,
		&req.AutoEscalate,
		&req.Priority,
		&req.EscalationLevel,
		&req.ComplianceTag,
		&lastEsc,
		&creator,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan requirement: %w", err)
	}
	req.ID = id.RequirementID(reqID)
	req.CaseID = id.CaseID(caseID)
	req.CreatedBy = id.UserID(creator)
	if deadline.Valid {
		t := deadline.Time
		req.Deadline = &t
	}
	if lastEsc.Valid {
		t := lastEsc.Time
		req.LastEscalatedAt = &t
	}
	return &req, nil
}

// PostgresAuthorities resolves case authorities from the case_authorities
// table in rank order.
type PostgresAuthorities struct {
	db *sql.DB
}

func NewPostgresAuthorities(db *sql.DB) *PostgresAuthorities {
	return &PostgresAuthorities{db: db}
}

func (d *PostgresAuthorities) AuthoritiesForCase(ctx context.Context, caseID id.CaseID) ([]id.UserID, error) {
	query := `SELECT user_id FROM case_authorities WHERE case_id = $1 ORDER BY rank`
	rows, err := d.db.QueryContext(ctx, query, uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("query case authorities: %w", err)
	}
	defer rows.Close()

	var out []id.UserID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan case authority: %w", err)
		}
		out = append(out, id.UserID(userID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case authorities: %w", err)
	}
	return out, nil
}
