package usercode

import "sync"

// RecordLocks hands out one *sync.Mutex per UserCode id, so policy
// state writeback serializes concurrent executions of the *same*
// code without blocking unrelated codes on each other. A node
// process holds a single registry shared by every execution path
// (the request surface and the worker pool), so the
// read-bind-execute-writeback sequence is exclusive no matter which
// path drove it.
type RecordLocks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

func NewRecordLocks() *RecordLocks {
	return &RecordLocks{perID: map[string]*sync.Mutex{}}
}

func (l *RecordLocks) ForID(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.perID[id]
	if !ok {
		m = &sync.Mutex{}
		l.perID[id] = m
	}
	return m
}
