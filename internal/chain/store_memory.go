package chain

import (
	"context"
	"sync"

	"attest/pkg/platform/sentinel"
)

// InMemoryStore keeps chains in process memory. Used by tests and by
// deployments without a configured database.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]Block
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chains: make(map[string][]Block)}
}

func (s *InMemoryStore) Append(_ context.Context, block Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := s.chains[block.SubjectID]
	if block.Number != int64(len(blocks))+1 {
		return sentinel.ErrConflict
	}
	s.chains[block.SubjectID] = append(blocks, block)
	return nil
}

func (s *InMemoryStore) Head(_ context.Context, subject string) (Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blocks := s.chains[subject]
	if len(blocks) == 0 {
		return Block{}, sentinel.ErrNotFound
	}
	return blocks[len(blocks)-1], nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Block{}, s.chains[subject]...), nil
}

// Tamper overwrites a stored block's payload in place. Only for tests that
// need to prove Verify detects altered history.
func (s *InMemoryStore) Tamper(subject string, number int64, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := s.chains[subject]
	for i := range blocks {
		if blocks[i].Number == number {
			blocks[i].Payload = payload
			return true
		}
	}
	return false
}

// Drop removes a stored block, creating a numbering gap. Only for tests.
func (s *InMemoryStore) Drop(subject string, number int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := s.chains[subject]
	for i := range blocks {
		if blocks[i].Number == number {
			s.chains[subject] = append(blocks[:i:i], blocks[i+1:]...)
			return true
		}
	}
	return false
}
