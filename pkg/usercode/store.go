package usercode

import (
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// Store persists UserCode records, keyed primarily by id but looked up
// for duplicate detection by (submitter_verify_key, code_hash).
type Store interface {
	Create(record *contracts.UserCode) error
	Get(id string) (*contracts.UserCode, error)
	Update(record *contracts.UserCode) error
	FindByKey(submitter contracts.VerifyKey, codeHash string) (*contracts.UserCode, bool)
	List() ([]*contracts.UserCode, error)
}

type dupKey struct {
	submitter contracts.VerifyKey
	codeHash  string
}

// InMemoryStore is the reference Store implementation: a single
// process's table of UserCode records plus the secondary
// (verify_key, code_hash) index the duplicate check runs against.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*contracts.UserCode
	byKey   map[dupKey]string // -> record id
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: map[string]*contracts.UserCode{},
		byKey:   map[dupKey]string{},
	}
}

func (s *InMemoryStore) Create(record *contracts.UserCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dupKey{submitter: record.SubmitterVerifyKey, codeHash: record.CodeHash}
	if existingID, ok := s.byKey[key]; ok {
		return &contracts.Duplicate{ExistingID: existingID}
	}
	copied := *record
	s.records[record.ID] = &copied
	s.byKey[key] = record.ID
	return nil
}

func (s *InMemoryStore) Get(id string) (*contracts.UserCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("user code %s not found", id)
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Update(record *contracts.UserCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return fmt.Errorf("user code %s not found", record.ID)
	}
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByKey(submitter contracts.VerifyKey, codeHash string) (*contracts.UserCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[dupKey{submitter: submitter, codeHash: codeHash}]
	if !ok {
		return nil, false
	}
	copied := *s.records[id]
	return &copied, true
}

func (s *InMemoryStore) List() ([]*contracts.UserCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.UserCode, 0, len(s.records))
	for _, r := range s.records {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}
