package throttle

import (
	"context"
	"fmt"
	"time"
)

// CooldownLimiter enforces a minimum spacing between successive uses of an
// abuse-prone operation. The required spacing escalates with prior
// consumption in the current window, independent of quota remaining.
type CooldownLimiter struct {
	store CounterStore
	scope string
	delay Delay
}

func NewCooldownLimiter(store CounterStore, scope string, delay Delay) *CooldownLimiter {
	return &CooldownLimiter{
		store: store,
		scope: scope,
		delay: delay,
	}
}

// DelayFor computes the spacing required after consumed prior uses.
func (c *CooldownLimiter) DelayFor(consumed int64) time.Duration {
	return c.delay.Base + time.Duration(consumed)*c.delay.Interval
}

// Gate tries to occupy the single-use slot for bucketKey. There is no
// waiting: an occupied slot is an immediate rejection with the remaining
// hold time.
func (c *CooldownLimiter) Gate(ctx context.Context, bucketKey string, consumed int64) (bool, time.Duration, error) {
	hold := c.DelayFor(consumed)
	key := fmt.Sprintf("cooldown:%s:%s", c.scope, bucketKey)

	acquired, held, err := c.store.AcquireSlot(ctx, key, hold)
	if err != nil {
		return false, 0, err
	}
	if !acquired {
		return false, held, nil
	}
	return true, 0, nil
}
