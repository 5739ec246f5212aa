package workflow

import (
	"sync"

	id "attest/pkg/domain"
)

// keyedMutex serializes transitions per submission. Paired with the chain
// store's unique (subject, block_number) constraint it gives single-writer
// semantics in process and optimistic detection across processes.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[id.SubmissionID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[id.SubmissionID]*lockEntry)}
}

// Lock acquires the per-submission mutex and returns its release func.
func (k *keyedMutex) Lock(subID id.SubmissionID) func() {
	k.mu.Lock()
	entry, ok := k.locks[subID]
	if !ok {
		entry = &lockEntry{}
		k.locks[subID] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, subID)
		}
		k.mu.Unlock()
	}
}
