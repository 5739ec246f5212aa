package workflow

import (
	"context"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// InMemoryStore keeps submissions and events in process memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	submissions map[id.SubmissionID]*Submission
	events      map[id.SubmissionID][]*Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		submissions: make(map[id.SubmissionID]*Submission),
		events:      make(map[id.SubmissionID][]*Event),
	}
}

func (s *InMemoryStore) Create(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[sub.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *sub
	s.submissions[sub.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, subID id.SubmissionID) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[subID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; !ok {
		return sentinel.ErrNotFound
	}
	copied := *sub
	s.submissions[sub.ID] = &copied
	return nil
}

func (s *InMemoryStore) ListByStage(_ context.Context, stage Stage) ([]*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Submission
	for _, sub := range s.submissions {
		if sub.Stage == stage {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByRequirement(_ context.Context, reqID id.RequirementID) ([]*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Submission
	for _, sub := range s.submissions {
		if sub.RequirementID == reqID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events[event.SubmissionID] = append(s.events[event.SubmissionID], &copied)
	return nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, subID id.SubmissionID) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[subID]
	out := make([]*Event, 0, len(events))
	for _, e := range events {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}
