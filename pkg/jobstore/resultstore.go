package jobstore

import (
	"sync"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// ResultStore holds the latest ExecutionResult for a UserCode id,
// the backing store for the GetResult request-surface operation. A
// UserCode only ever has one "current" result at a time:
// re-execution of a single-use code is rejected by the output policy
// before a new result would replace it.
type ResultStore interface {
	Put(result *contracts.ExecutionResult) error
	Get(userCodeID string) (*contracts.ExecutionResult, bool)
}

// InMemoryResultStore is the reference ResultStore implementation.
type InMemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*contracts.ExecutionResult
}

func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{results: map[string]*contracts.ExecutionResult{}}
}

func (s *InMemoryResultStore) Put(result *contracts.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	s.results[result.UserCodeID] = &copied
	return nil
}

func (s *InMemoryResultStore) Get(userCodeID string) (*contracts.ExecutionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[userCodeID]
	if !ok {
		return nil, false
	}
	copied := *r
	return &copied, true
}
