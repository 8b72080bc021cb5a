// Package jobstore implements the Result & Log Surface: Job records,
// their per-job totally-ordered append-only logs, and the latest
// ExecutionResult per UserCode.
package jobstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/google/uuid"
)

// JobStore creates and mutates Job records.
type JobStore interface {
	Create(parentJobID, userCodeID, workerPoolID string) (*contracts.Job, error)
	Get(id string) (*contracts.Job, error)
	SetStatus(id string, status contracts.JobStatus) error
	InitProgress(id string, nIters int) error
	SetProgress(id string, to int) error
	IncrementProgress(id string, n int) error
	ListChildren(parentJobID string) []*contracts.Job
}

// InMemoryJobStore is the reference JobStore implementation: every
// node process keeps its own job table, written by the request surface
// and the Nested Job Dispatcher (which create jobs) and by the Runtime
// and the worker pool (which update them).
type InMemoryJobStore struct {
	mu       sync.RWMutex
	jobs     map[string]*contracts.Job
	children map[string][]string // parent job id -> child job ids, insertion order
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{
		jobs:     map[string]*contracts.Job{},
		children: map[string][]string{},
	}
}

// Create allocates a new Job in JobCreated state with a freshly
// allocated log id, linked to parentJobID (empty for a top-level job).
func (s *InMemoryJobStore) Create(parentJobID, userCodeID, workerPoolID string) (*contracts.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &contracts.Job{
		ID:           uuid.NewString(),
		ParentJobID:  parentJobID,
		LogID:        uuid.NewString(),
		Status:       contracts.JobCreated,
		UserCodeID:   userCodeID,
		WorkerPoolID: workerPoolID,
		CreatedAt:    time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	if parentJobID != "" {
		s.children[parentJobID] = append(s.children[parentJobID], job.ID)
	}
	return job, nil
}

func (s *InMemoryJobStore) Get(id string) (*contracts.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (s *InMemoryJobStore) SetStatus(id string, status contracts.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	return nil
}

func (s *InMemoryJobStore) InitProgress(id string, nIters int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.NIters = nIters
	return nil
}

func (s *InMemoryJobStore) SetProgress(id string, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.CurrentIter = to
	return nil
}

func (s *InMemoryJobStore) IncrementProgress(id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.CurrentIter += n
	return nil
}

func (s *InMemoryJobStore) ListChildren(parentJobID string) []*contracts.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.children[parentJobID]
	out := make([]*contracts.Job, 0, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out
}
