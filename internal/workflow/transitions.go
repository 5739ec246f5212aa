package workflow

import (
	"fmt"

	"attest/internal/aivalidation"
	"attest/internal/audittrail"
	dErrors "attest/pkg/domain-errors"
)

// guardInput carries everything a guard predicate may consult.
type guardInput struct {
	submission *Submission
	verdict    *aivalidation.Result
	verdictErr error
}

// transition is one legal edge of the state machine. The table below is the
// closed set: an edge absent here cannot be taken, whoever asks.
type transition struct {
	from   Stage
	to     Stage
	actors map[audittrail.ActorKind]bool
	guard  func(in guardInput) error
}

func actors(kinds ...audittrail.ActorKind) map[audittrail.ActorKind]bool {
	m := make(map[audittrail.ActorKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// guardAIPassed admits the auto-validated edge only for a clean pass with a
// sufficient score.
func guardAIPassed(in guardInput) error {
	if in.verdictErr != nil {
		return dErrors.New(dErrors.CodeStateConflict, "validator failed; submission must go to human review")
	}
	if in.verdict == nil || !in.verdict.Passed() {
		return dErrors.New(dErrors.CodeStateConflict, "verdict below auto-validation threshold")
	}
	return nil
}

// guardAIReview is the complement of guardAIPassed plus the fail-open cases:
// adapter failure or timeout always routes to human review.
func guardAIReview(in guardInput) error {
	if in.verdictErr != nil || in.verdict == nil || !in.verdict.Passed() {
		return nil
	}
	return dErrors.New(dErrors.CodeStateConflict, "passing verdict should auto-validate")
}

var transitions = []transition{
	{from: StageSubmitted, to: StageAIValidating, actors: actors(audittrail.ActorSystem)},

	{from: StageAIValidating, to: StageAIValidated, actors: actors(audittrail.ActorAI), guard: guardAIPassed},
	{from: StageAIValidating, to: StageUnderReview, actors: actors(audittrail.ActorAI, audittrail.ActorSystem), guard: guardAIReview},

	{from: StageAIValidated, to: StageApproved, actors: actors(audittrail.ActorUser)},
	{from: StageAIValidated, to: StageRejected, actors: actors(audittrail.ActorUser)},
	{from: StageAIValidated, to: StageNeedsRevision, actors: actors(audittrail.ActorUser)},

	{from: StageUnderReview, to: StageApproved, actors: actors(audittrail.ActorUser)},
	{from: StageUnderReview, to: StageRejected, actors: actors(audittrail.ActorUser)},
	{from: StageUnderReview, to: StageNeedsRevision, actors: actors(audittrail.ActorUser)},

	// Escalated submissions still need a human disposition.
	{from: StageEscalated, to: StageApproved, actors: actors(audittrail.ActorUser)},
	{from: StageEscalated, to: StageRejected, actors: actors(audittrail.ActorUser)},
	{from: StageEscalated, to: StageNeedsRevision, actors: actors(audittrail.ActorUser)},

	{from: StageSubmitted, to: StageEscalated, actors: actors(audittrail.ActorSystem)},
	{from: StageAIValidating, to: StageEscalated, actors: actors(audittrail.ActorSystem)},
	{from: StageAIValidated, to: StageEscalated, actors: actors(audittrail.ActorSystem)},
	{from: StageUnderReview, to: StageEscalated, actors: actors(audittrail.ActorSystem)},
}

// findTransition looks up the edge (from → to). The second return is false
// when the edge is not in the table.
func findTransition(from, to Stage) (transition, bool) {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return t, true
		}
	}
	return transition{}, false
}

// illegalTransition builds the StateConflictError for a rejected edge, with
// a distinct message for attempts to move a decided submission.
func illegalTransition(from, to Stage) error {
	if from.Terminal() {
		return dErrors.Newf(dErrors.CodeStateConflict,
			"submission already in terminal state %q for this revision", from)
	}
	return dErrors.New(dErrors.CodeStateConflict,
		fmt.Sprintf("invalid transition from %q to %q", from, to))
}
