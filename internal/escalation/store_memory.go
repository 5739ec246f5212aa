package escalation

import (
	"context"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// InMemoryStore keeps escalations in process memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	escalations map[id.EscalationID]*Escalation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{escalations: make(map[id.EscalationID]*Escalation)}
}

func (s *InMemoryStore) Create(_ context.Context, esc *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.escalations[esc.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, e := range s.escalations {
		if !e.Resolved && e.RequirementID == esc.RequirementID && e.Reason == esc.Reason {
			return sentinel.ErrConflict
		}
	}
	copied := *esc
	s.escalations[esc.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, escID id.EscalationID) (*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	esc, ok := s.escalations[escID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *esc
	return &copied, nil
}

func (s *InMemoryStore) ListUnresolved(_ context.Context) ([]*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Escalation
	for _, esc := range s.escalations {
		if !esc.Resolved {
			copied := *esc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByRequirement(_ context.Context, reqID id.RequirementID) ([]*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Escalation
	for _, esc := range s.escalations {
		if esc.RequirementID == reqID {
			copied := *esc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ExistsUnresolved(_ context.Context, reqID id.RequirementID, reason Reason) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, esc := range s.escalations {
		if !esc.Resolved && esc.RequirementID == reqID && esc.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) Execute(_ context.Context, escID id.EscalationID,
	validate func(*Escalation) error, mutate func(*Escalation)) (*Escalation, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	esc, ok := s.escalations[escID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(esc); err != nil {
		return nil, err
	}
	mutate(esc)
	copied := *esc
	return &copied, nil
}
