package throttle

import (
	"errors"
	"fmt"
	"time"
)

// ErrScopeNotRegistered means a route declared a scope that the catalog does
// not know. This is a developer configuration error, never recovered at
// runtime.
var ErrScopeNotRegistered = errors.New("throttle scope not registered")

// QuotaExceededError is the expected control-flow outcome when a bucket is
// exhausted or a cooldown slot is still occupied.
type QuotaExceededError struct {
	Scope      string
	Policy     string
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: retry after %d seconds", e.Scope, e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, never
// reporting zero for a still-blocked bucket.
func (e *QuotaExceededError) RetryAfterSeconds() int64 {
	if e.RetryAfter <= 0 {
		return 1
	}
	secs := int64((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// StoreUnavailableError wraps a failure of the distributed counter store.
// Store failures are hard errors: the engine never treats them as an
// implicit allow or deny.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("throttle store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}
