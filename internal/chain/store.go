package chain

import "context"

// Store persists chain blocks. Implementations must enforce uniqueness of
// (subject, block number) and return sentinel.ErrConflict when an append
// loses an optimistic race, so the ledger's monotonic numbering survives
// concurrent writers.
type Store interface {
	// Append persists a block. Returns sentinel.ErrConflict if a block with
	// the same subject and number already exists.
	Append(ctx context.Context, block Block) error
	// Head returns the highest-numbered block for the subject, or
	// sentinel.ErrNotFound when the subject has no blocks yet.
	Head(ctx context.Context, subject string) (Block, error)
	// ListBySubject returns all blocks for the subject in block-number order.
	ListBySubject(ctx context.Context, subject string) ([]Block, error)
}
