package store

import (
	"context"
	"sync"
	"time"

	operations "github.com/goliatone/go-operations"
)

// InMemoryStore is a thread-safe in-memory snapshot store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[operations.OperationKey]Record
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[operations.OperationKey]Record),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Put(_ context.Context, msg operations.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Cleared() {
		delete(s.records, msg.Key)
		return nil
	}
	s.records[msg.Key] = newRecord(msg, s.now())
	return nil
}

// Get returns a cloned record for the key.
func (s *InMemoryStore) Get(_ context.Context, key operations.OperationKey) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, notFound(key)
	}
	rec.Payload = rec.Message().JSON
	return rec, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key operations.OperationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter operations.Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for key, rec := range s.records {
		if filter.Matches(key) {
			rec.Payload = rec.Message().JSON
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}
