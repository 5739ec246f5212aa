package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresStore persists chain blocks in the chain_blocks table. Appends
// participate in a surrounding transaction when one is present in the
// context, so a block and its triggering state change commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const chainSchema = `
CREATE TABLE IF NOT EXISTS chain_blocks (
	id            UUID PRIMARY KEY,
	subject       TEXT NOT NULL,
	block_number  BIGINT NOT NULL,
	previous_hash TEXT NOT NULL,
	hash          TEXT NOT NULL,
	payload       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	immutable     BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (subject, block_number)
)`

// EnsureSchema creates the chain_blocks table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, chainSchema); err != nil {
		return fmt.Errorf("ensure chain schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, block Block) error {
	query := `
		INSERT INTO chain_blocks (id, subject, block_number, previous_hash, hash, payload, created_at, immutable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(block.ID),
		block.SubjectID,
		block.Number,
		block.PreviousHash,
		block.Hash,
		block.Payload,
		block.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the (subject, block_number) slot was taken by a concurrent
		// append; the unique index is what makes numbering race-proof.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert chain block: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, subject string) (Block, error) {
	query := `
		SELECT id, subject, block_number, previous_hash, hash, payload, created_at, immutable
		FROM chain_blocks
		WHERE subject = $1
		ORDER BY block_number DESC
		LIMIT 1
	`
	block, err := scanBlock(s.execer(ctx).QueryRowContext(ctx, query, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return Block{}, sentinel.ErrNotFound
	}
	return block, err
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Block, error) {
	query := `
		SELECT id, subject, block_number, previous_hash, hash, payload, created_at, immutable
		FROM chain_blocks
		WHERE subject = $1
		ORDER BY block_number ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query chain blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain blocks: %w", err)
	}
	return blocks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (Block, error) {
	var (
		block   Block
		blockID uuid.UUID
		created time.Time
	)
	err := row.Scan(
		&blockID,
		&block.SubjectID,
		&block.Number,
		&block.PreviousHash,
		&block.Hash,
		&block.Payload,
		&created,
		&block.Immutable,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Block{}, err
		}
		return Block{}, fmt.Errorf("scan chain block: %w", err)
	}
	block.ID = id.BlockID(blockID)
	block.Timestamp = created
	return block, nil
}
