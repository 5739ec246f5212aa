package chain

import (
	"context"
	"errors"
	"fmt"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Ledger is the append/verify surface over one namespace of chain subjects.
// The audit trail and the verification chain each own a Ledger with a
// distinct namespace over the same store, so their block sequences never
// interleave.
type Ledger struct {
	store     Store
	namespace string
}

// NewLedger creates a ledger whose subjects are prefixed with namespace.
func NewLedger(store Store, namespace string) *Ledger {
	return &Ledger{store: store, namespace: namespace}
}

func (l *Ledger) subjectKey(subjectID string) string {
	return l.namespace + ":" + subjectID
}

// Append canonicalizes payload, links it to the subject's current head (or
// the genesis sentinel), and persists the new block.
//
// Errors: CodeValidation for un-canonicalizable payloads, CodeStateConflict
// when a concurrent append advanced the head first (caller must retry),
// CodeInternal for store failures.
func (l *Ledger) Append(ctx context.Context, subjectID string, payload any) (Block, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return Block{}, dErrors.Wrap(err, dErrors.CodeValidation, "payload cannot be canonicalized")
	}

	key := l.subjectKey(subjectID)
	previousHash := GenesisHash
	var number int64 = 1
	head, err := l.store.Head(ctx, key)
	switch {
	case err == nil:
		previousHash = head.Hash
		number = head.Number + 1
	case errors.Is(err, sentinel.ErrNotFound):
		// First block for this subject.
	default:
		return Block{}, dErrors.Wrap(err, dErrors.CodeInternal, "read chain head")
	}

	block := Block{
		ID:           id.NewBlockID(),
		SubjectID:    key,
		Number:       number,
		PreviousHash: previousHash,
		Hash:         HashPayload(previousHash, canonical),
		Payload:      canonical,
		Timestamp:    requestcontext.Now(ctx).UTC(),
		Immutable:    true,
	}

	if err := l.store.Append(ctx, block); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Block{}, dErrors.Wrap(err, dErrors.CodeStateConflict, "chain head advanced concurrently, retry")
		}
		return Block{}, dErrors.Wrap(err, dErrors.CodeInternal, "append chain block")
	}
	return block, nil
}

// GetChain returns the subject's blocks in block-number order. An unknown
// subject yields an empty chain, not an error; callers that require
// existence check the owning entity first.
func (l *Ledger) GetChain(ctx context.Context, subjectID string) ([]Block, error) {
	blocks, err := l.store.ListBySubject(ctx, l.subjectKey(subjectID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list chain blocks")
	}
	return blocks, nil
}

// Verify replays the subject's chain, recomputing every link. It returns
// false on the first hash mismatch, broken previous-hash link, or numbering
// gap. An empty chain verifies true.
func (l *Ledger) Verify(ctx context.Context, subjectID string) (bool, error) {
	blocks, err := l.GetChain(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return replay(blocks) == nil, nil
}

// VerifyStrict is Verify for write paths: any defect is returned as a
// CodeChainIntegrity error naming the offending block, which callers surface
// as a compliance incident and never repair silently.
func (l *Ledger) VerifyStrict(ctx context.Context, subjectID string) error {
	blocks, err := l.GetChain(ctx, subjectID)
	if err != nil {
		return err
	}
	if defect := replay(blocks); defect != nil {
		return dErrors.Wrap(defect, dErrors.CodeChainIntegrity,
			fmt.Sprintf("chain for %s failed verification", subjectID))
	}
	return nil
}

func replay(blocks []Block) error {
	previousHash := GenesisHash
	for i, b := range blocks {
		if b.Number != int64(i)+1 {
			return fmt.Errorf("block numbering gap: expected %d, got %d", i+1, b.Number)
		}
		if b.PreviousHash != previousHash {
			return fmt.Errorf("block %d previous-hash link broken", b.Number)
		}
		if recomputed := HashPayload(b.PreviousHash, b.Payload); recomputed != b.Hash {
			return fmt.Errorf("block %d hash mismatch", b.Number)
		}
		previousHash = b.Hash
	}
	return nil
}
