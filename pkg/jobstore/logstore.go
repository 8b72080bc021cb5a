package jobstore

import (
	"sync"
	"time"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// LogStore is the append-only, per-log-id ordered log the print shim
// and traceback framer write to. Append is atomic per call; entries
// for a given logID are always returned in program order.
type LogStore interface {
	Append(logID string, entry contracts.LogEntry) error
	Entries(logID string) []contracts.LogEntry
}

// InMemoryLogStore keeps one ordered slice of entries per log id;
// the ordering guarantee is scoped to one execution's log, not a
// single node-wide chain.
type InMemoryLogStore struct {
	mu      sync.RWMutex
	entries map[string][]contracts.LogEntry
}

func NewInMemoryLogStore() *InMemoryLogStore {
	return &InMemoryLogStore{entries: map[string][]contracts.LogEntry{}}
}

func (s *InMemoryLogStore) Append(logID string, entry contracts.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.entries[logID] = append(s.entries[logID], entry)
	return nil
}

func (s *InMemoryLogStore) Entries(logID string) []contracts.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[logID]
	out := make([]contracts.LogEntry, len(src))
	copy(out, src)
	return out
}
