package data

import (
	"context"
	"sync"
	"time"

	"OracleGate/internal/model"
)

// memoryCircuitStore keeps breaker records in process. State is lost on
// restart and not shared between instances.
type memoryCircuitStore struct {
	mu      sync.RWMutex
	records map[string]*model.CircuitRecord
}

func newMemoryCircuitStore() *memoryCircuitStore {
	return &memoryCircuitStore{records: make(map[string]*model.CircuitRecord)}
}

func (s *memoryCircuitStore) get(_ context.Context, name string) (*model.CircuitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[name].Clone(), nil
}

func (s *memoryCircuitStore) save(_ context.Context, name string, rec *model.CircuitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = rec.Clone()
	return nil
}

func (s *memoryCircuitStore) list(_ context.Context) (map[string]*model.CircuitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.CircuitRecord, len(s.records))
	for name, rec := range s.records {
		out[name] = rec.Clone()
	}
	return out, nil
}

// memoryRateStore keeps the last accepted request time per key. The mutex
// makes check-then-set atomic within the process.
type memoryRateStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newMemoryRateStore() *memoryRateStore {
	return &memoryRateStore{last: make(map[string]time.Time)}
}

func (s *memoryRateStore) tryAcquire(_ context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[key]; ok && now.Sub(last) < window {
		return false, last, nil
	}
	s.last[key] = now
	return true, now, nil
}

func (s *memoryRateStore) getLast(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.last[key]
	return last, ok, nil
}

func (s *memoryRateStore) pruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, last := range s.last {
		if !last.After(cutoff) {
			delete(s.last, key)
			n++
		}
	}
	return n, nil
}
