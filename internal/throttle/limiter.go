package throttle

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of a counter operation.
type Result struct {
	Consumed  int64
	Remaining int64
	Allowed   bool
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the bucket accepts the
// rejected cost again. Zero when the operation was allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// CounterStore is the distributed backend behind quota and cooldown
// limiters. Implementations must make Consume atomic: the increment, the
// expiry of a freshly created counter, and the over-limit rollback happen as
// one operation.
type CounterStore interface {
	// Consume adds cost to the counter under key. If the running total would
	// exceed limit the whole operation is rejected and nothing is consumed.
	Consume(ctx context.Context, key string, cost, limit int64, window time.Duration) (Result, error)

	// Peek reports the counter state without mutating it.
	Peek(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)

	// AcquireSlot takes a single-use slot under key for ttl. When the slot is
	// already held it reports false together with the remaining hold time.
	AcquireSlot(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
}

// QuotaLimiter is a fixed-window counter for one (policy, scope) pair.
// Callers address individual buckets by their bucket key; the counter resets
// implicitly when the store evicts the key at the window boundary.
type QuotaLimiter struct {
	store  CounterStore
	prefix string
	limit  int64
	window time.Duration
}

func NewQuotaLimiter(store CounterStore, scope string, limit int64, window time.Duration) *QuotaLimiter {
	return &QuotaLimiter{
		store:  store,
		prefix: fmt.Sprintf("quota:%s:", scope),
		limit:  limit,
		window: window,
	}
}

func (l *QuotaLimiter) Consume(ctx context.Context, bucketKey string, cost int64) (Result, error) {
	return l.store.Consume(ctx, l.prefix+bucketKey, cost, l.limit, l.window)
}

func (l *QuotaLimiter) Peek(ctx context.Context, bucketKey string) (Result, error) {
	return l.store.Peek(ctx, l.prefix+bucketKey, l.limit, l.window)
}

func (l *QuotaLimiter) Limit() int64 {
	return l.limit
}

func (l *QuotaLimiter) Window() time.Duration {
	return l.window
}
