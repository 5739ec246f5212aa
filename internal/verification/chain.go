package verification

import (
	"context"

	"attest/internal/chain"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// Namespace separates verification blocks from audit blocks in the shared
// chain store.
const Namespace = "verify"

// Chain appends and reads the decision chain for submissions.
type Chain struct {
	ledger *chain.Ledger
}

func NewChain(store chain.Store) *Chain {
	return &Chain{ledger: chain.NewLedger(store, Namespace)}
}

// Record validates and appends one reviewer decision block.
func (c *Chain) Record(ctx context.Context, rec Record) (chain.Block, error) {
	if rec.SubmissionID.IsNil() {
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "decision requires a submission")
	}
	if rec.ReviewerID.IsNil() {
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "decision requires a reviewer")
	}
	if !rec.Decision.IsValid() {
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "invalid decision")
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = requestcontext.Now(ctx)
	}
	return c.ledger.Append(ctx, rec.SubmissionID.String(), rec.payload())
}

// GetChain returns the ordered decision blocks for external audit/export use.
func (c *Chain) GetChain(ctx context.Context, submissionID id.SubmissionID) ([]chain.Block, error) {
	return c.ledger.GetChain(ctx, submissionID.String())
}

// Verify replays and re-hashes the decision chain.
func (c *Chain) Verify(ctx context.Context, submissionID id.SubmissionID) (bool, error) {
	return c.ledger.Verify(ctx, submissionID.String())
}

// VerifyStrict returns a CodeChainIntegrity error when the chain fails
// verification. The state machine calls this before accepting a new human
// decision so writes halt on tampered history.
func (c *Chain) VerifyStrict(ctx context.Context, submissionID id.SubmissionID) error {
	return c.ledger.VerifyStrict(ctx, submissionID.String())
}
