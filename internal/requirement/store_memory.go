package requirement

import (
	"context"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// InMemoryStore keeps requirements in process memory.
type InMemoryStore struct {
	mu           sync.RWMutex
	requirements map[id.RequirementID]*Requirement
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requirements: make(map[id.RequirementID]*Requirement)}
}

func (s *InMemoryStore) Create(_ context.Context, req *Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requirements[req.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *req
	s.requirements[req.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, reqID id.RequirementID) (*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requirements[reqID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Requirement, 0, len(s.requirements))
	for _, req := range s.requirements {
		copied := *req
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, reqID id.RequirementID,
	validate func(*Requirement) error, mutate func(*Requirement)) (*Requirement, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requirements[reqID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)
	copied := *req
	return &copied, nil
}

// InMemoryAuthorities is a static case→authorities mapping for tests and
// brokerless deployments.
type InMemoryAuthorities struct {
	mu          sync.RWMutex
	authorities map[id.CaseID][]id.UserID
}

func NewInMemoryAuthorities() *InMemoryAuthorities {
	return &InMemoryAuthorities{authorities: make(map[id.CaseID][]id.UserID)}
}

// Set replaces the ranked authority list for a case.
func (d *InMemoryAuthorities) Set(caseID id.CaseID, users ...id.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorities[caseID] = append([]id.UserID{}, users...)
}

func (d *InMemoryAuthorities) AuthoritiesForCase(_ context.Context, caseID id.CaseID) ([]id.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]id.UserID{}, d.authorities[caseID]...), nil
}
