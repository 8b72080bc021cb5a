package dispatch

import (
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/google/uuid"
)

// ActionStore holds ActionObjects by id — the minimal slice of the
// external action/object system the Nested Job Dispatcher needs to
// wrap a launch_job call's kwargs.
type ActionStore interface {
	Set(lineageID string, payload interface{}) (*contracts.ActionObject, error)
	Get(id string) (*contracts.ActionObject, error)
}

// InMemoryActionStore is the reference ActionStore: every kwarg value
// passed to launch_job becomes its own addressable ActionObject.
type InMemoryActionStore struct {
	mu      sync.RWMutex
	objects map[string]*contracts.ActionObject
}

func NewInMemoryActionStore() *InMemoryActionStore {
	return &InMemoryActionStore{objects: map[string]*contracts.ActionObject{}}
}

func (s *InMemoryActionStore) Set(lineageID string, payload interface{}) (*contracts.ActionObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := &contracts.ActionObject{
		ID:        uuid.NewString(),
		LineageID: lineageID,
		Payload:   payload,
	}
	s.objects[obj.ID] = obj
	return obj, nil
}

func (s *InMemoryActionStore) Get(id string) (*contracts.ActionObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("action object %s not found", id)
	}
	return obj, nil
}
