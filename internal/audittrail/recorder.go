package audittrail

import (
	"context"

	"attest/internal/chain"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// Namespace separates audit blocks from verification blocks in the shared
// chain store.
const Namespace = "audit"

// Recorder appends audit entries to a submission's trail. It is append-only;
// there is no update or delete surface.
type Recorder struct {
	ledger *chain.Ledger
}

func NewRecorder(store chain.Store) *Recorder {
	return &Recorder{ledger: chain.NewLedger(store, Namespace)}
}

// Record validates the entry and appends it as a chain block.
func (r *Recorder) Record(ctx context.Context, entry Entry) (chain.Block, error) {
	if entry.SubjectID.IsNil() {
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "audit entry requires a subject")
	}
	if entry.Action == "" {
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "audit entry requires an action")
	}
	switch entry.ActorKind {
	case ActorUser, ActorSystem, ActorAI:
	default:
		return chain.Block{}, dErrors.New(dErrors.CodeValidation, "invalid actor kind")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	return r.ledger.Append(ctx, entry.SubjectID.String(), entry.payload())
}

// Trail returns the full ordered audit trail for a submission.
func (r *Recorder) Trail(ctx context.Context, submissionID id.SubmissionID) ([]chain.Block, error) {
	return r.ledger.GetChain(ctx, submissionID.String())
}

// Verify replays and re-hashes the trail.
func (r *Recorder) Verify(ctx context.Context, submissionID id.SubmissionID) (bool, error) {
	return r.ledger.Verify(ctx, submissionID.String())
}

// VerifyStrict returns a CodeChainIntegrity error if the trail fails
// verification. Write paths call this to halt on tampered history.
func (r *Recorder) VerifyStrict(ctx context.Context, submissionID id.SubmissionID) error {
	return r.ledger.VerifyStrict(ctx, submissionID.String())
}
