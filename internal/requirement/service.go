package requirement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Service exposes requirement operations to transports.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateInput carries a new requirement request.
type CreateInput struct {
	CaseID        id.CaseID
	Category      string
	Mandatory     bool
	Deadline      *time.Time
	AutoEscalate  bool
	Priority      int
	ComplianceTag string
	CreatedBy     id.UserID
}

// Create validates and persists a new requirement.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Requirement, error) {
	now := requestcontext.Now(ctx)
	req, err := New(id.NewRequirementID(), in.CaseID, in.Category, in.Mandatory,
		in.Deadline, in.AutoEscalate, in.Priority, in.ComplianceTag, in.CreatedBy, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "requirement already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "requirement store failure")
	}
	s.logger.Info("requirement created",
		"requirement_id", req.ID.String(),
		"case_id", req.CaseID.String(),
		"category", req.Category,
	)
	return req, nil
}

// Get returns one requirement.
func (s *Service) Get(ctx context.Context, reqID id.RequirementID) (*Requirement, error) {
	req, err := s.store.FindByID(ctx, reqID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "requirement store failure")
	}
	return req, nil
}
