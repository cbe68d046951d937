package triage

import (
	"context"
	"sync"
)

// DischargeSink durably stores discharge records. Persist is called once
// per discharged patient; the service never reads records back through it.
type DischargeSink interface {
	Persist(ctx context.Context, rec *DischargeRecord) error
}

// DischargeLister is implemented by sinks that can page through what they
// have stored, newest first.
type DischargeLister interface {
	List(ctx context.Context, limit, offset int) ([]*DischargeRecord, int, error)
}

// MemorySink keeps records in process memory.
type MemorySink struct {
	mu      sync.RWMutex
	records []*DischargeRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Persist(_ context.Context, rec *DischargeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

func (s *MemorySink) List(_ context.Context, limit, offset int) ([]*DischargeRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.records)
	offset = max(offset, 0)
	var items []*DischargeRecord
	for i := total - 1 - offset; i >= 0 && len(items) < limit; i-- {
		items = append(items, s.records[i])
	}
	return items, total, nil
}

// Len reports how many records have been stored.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
