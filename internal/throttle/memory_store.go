package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryCounterStore is an in-process CounterStore. It mirrors the Redis
// semantics exactly and is intended for tests and single-node development,
// where a shared window is not required.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	slots    map[string]time.Time
	now      func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

type MemoryOption func(*MemoryCounterStore)

// WithClock overrides the time source, letting tests move across window
// boundaries without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		counters: make(map[string]*memoryCounter),
		slots:    make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) Consume(ctx context.Context, key string, cost, limit int64, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := s.liveCounter(key, now)
	if entry == nil {
		entry = &memoryCounter{expiresAt: now.Add(window)}
		s.counters[key] = entry
	}

	if entry.count+cost > limit {
		return s.result(entry, false, limit, now), nil
	}

	entry.count += cost
	return s.result(entry, true, limit, now), nil
}

func (s *MemoryCounterStore) Peek(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := s.liveCounter(key, now)
	if entry == nil {
		return Result{
			Remaining: limit,
			Allowed:   true,
			ResetAt:   now.Add(window),
		}, nil
	}

	return s.result(entry, entry.count < limit, limit, now), nil
}

func (s *MemoryCounterStore) AcquireSlot(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.slots[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}

	s.slots[key] = now.Add(ttl)
	return true, 0, nil
}

func (s *MemoryCounterStore) liveCounter(key string, now time.Time) *memoryCounter {
	entry, ok := s.counters[key]
	if !ok {
		return nil
	}
	if !now.Before(entry.expiresAt) {
		delete(s.counters, key)
		return nil
	}
	return entry
}

func (s *MemoryCounterStore) result(entry *memoryCounter, allowed bool, limit int64, now time.Time) Result {
	remaining := limit - entry.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Consumed:  entry.count,
		Remaining: remaining,
		Allowed:   allowed,
		ResetAt:   entry.expiresAt,
	}
}
