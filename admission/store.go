// Package admission implements per-identity rate limiting for the generation
// pipeline. Counts are kept per fixed window in a pluggable CounterStore so a
// single instance can use in-process memory while multi-instance deployments
// share counts through Redis.
package admission

import (
	"context"
	"sync"
	"time"

	"imageforge/core"
)

// CounterStore tracks per-identity request counts within fixed windows.
//
// Incr registers one request for the key and returns the count within the
// current window (including this request) and the time remaining until the
// window resets.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryStore is an in-process CounterStore backed by a map of window records.
//
// Expired records are replaced lazily on the next Incr and reaped by Cleanup,
// which the janitor runs periodically.
//
// Thread Safety: MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]core.WindowRecord
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]core.WindowRecord),
	}
}

// Incr registers one request for the key within the current window.
func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[key]
	if !exists || record.Expired() {
		record = core.NewWindowRecord(window)
	} else {
		record = record.Increment(window)
	}
	s.records[key] = record

	return record.Count, record.TimeUntilReset(), nil
}

// Cleanup removes expired window records and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.records {
		if record.Expired() {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked identities, expired or not.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Ensure MemoryStore implements CounterStore at compile time.
var _ CounterStore = (*MemoryStore)(nil)
