package throttle

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
)

// consumeScript increments the counter, arms the expiry when the key was
// just created, and rolls the increment back when the total would exceed the
// limit. Running it as a single script keeps create+expire and the
// over-limit rollback atomic across instances.
//
// KEYS[1] = counter key
// ARGV[1] = cost, ARGV[2] = window ms, ARGV[3] = limit
// Returns {consumed, allowed, pttl_ms}.
var consumeScript = redis.NewScript(`
local current = redis.call('INCRBY', KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[3]) then
  redis.call('DECRBY', KEYS[1], ARGV[1])
  return {current - tonumber(ARGV[1]), 0, redis.call('PTTL', KEYS[1])}
end
return {current, 1, redis.call('PTTL', KEYS[1])}
`)

// RedisCounterStore backs limiters with Redis so the window is shared by
// every instance of the service.
type RedisCounterStore struct {
	redis *storage.RedisClient
}

func NewRedisCounterStore(redis *storage.RedisClient) *RedisCounterStore {
	return &RedisCounterStore{redis: redis}
}

func (s *RedisCounterStore) Consume(ctx context.Context, key string, cost, limit int64, window time.Duration) (Result, error) {
	raw, err := consumeScript.Run(ctx, s.redis.Client(), []string{key},
		cost, window.Milliseconds(), limit).Result()
	if err != nil {
		return Result{}, &StoreUnavailableError{Op: "consume", Err: err}
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, &StoreUnavailableError{Op: "consume", Err: errUnexpectedReply}
	}

	consumed := toInt64(values[0])
	allowed := toInt64(values[1]) == 1
	ttlMs := toInt64(values[2])

	return s.result(consumed, allowed, ttlMs, limit, window), nil
}

func (s *RedisCounterStore) Peek(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	pipe := s.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Result{}, &StoreUnavailableError{Op: "peek", Err: err}
	}

	var consumed int64
	if val, err := getCmd.Result(); err == nil {
		consumed, _ = strconv.ParseInt(val, 10, 64)
	} else if err != redis.Nil {
		return Result{}, &StoreUnavailableError{Op: "peek", Err: err}
	}

	return s.result(consumed, consumed < limit, ttlCmd.Val().Milliseconds(), limit, window), nil
}

func (s *RedisCounterStore) AcquireSlot(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	acquired, err := s.redis.SetNX(ctx, key, 1, ttl)
	if err != nil {
		return false, 0, &StoreUnavailableError{Op: "acquire-slot", Err: err}
	}
	if acquired {
		return true, 0, nil
	}

	held, err := s.redis.PTTL(ctx, key)
	if err != nil {
		return false, 0, &StoreUnavailableError{Op: "acquire-slot", Err: err}
	}
	if held < 0 {
		held = 0
	}
	return false, held, nil
}

func (s *RedisCounterStore) result(consumed int64, allowed bool, ttlMs, limit int64, window time.Duration) Result {
	// A missing or non-expiring key reports the full window
	reset := window
	if ttlMs >= 0 {
		reset = time.Duration(ttlMs) * time.Millisecond
	}

	remaining := limit - consumed
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Consumed:  consumed,
		Remaining: remaining,
		Allowed:   allowed,
		ResetAt:   time.Now().Add(reset),
	}
}

var errUnexpectedReply = redisReplyError("unexpected script reply")

type redisReplyError string

func (e redisReplyError) Error() string { return string(e) }

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
