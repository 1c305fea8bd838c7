package throttle

import (
	"fmt"
	"sync"
)

// Registry memoizes limiter instances per (plan, scope) pair so repeated
// requests reuse one limiter instead of allocating per request. Get-or-create
// runs under one lock, so concurrent first access for the same pair yields a
// single instance.
type Registry struct {
	mu        sync.Mutex
	store     CounterStore
	limiters  map[string]*QuotaLimiter
	cooldowns map[string]*CooldownLimiter
}

func NewRegistry(store CounterStore) *Registry {
	return &Registry{
		store:     store,
		limiters:  make(map[string]*QuotaLimiter),
		cooldowns: make(map[string]*CooldownLimiter),
	}
}

// Limiter returns the quota limiter for the policy, creating it on first
// use. Instances are keyed by plan and scope, not by bucket key, and capture
// limit and window from the first policy seen: routes sharing a plan and
// scope must not carry diverging limit or interval overrides, or they would
// silently share the first route's limiter.
func (r *Registry) Limiter(p Policy) *QuotaLimiter {
	key := fmt.Sprintf("%s:%s", p.Plan, p.Scope)

	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[key]; ok {
		return lim
	}

	lim := NewQuotaLimiter(r.store, limiterScope(p), p.Limit, p.Window)
	r.limiters[key] = lim
	return lim
}

// Cooldown returns the cooldown limiter for the policy, or nil when the
// policy has no delay configured.
func (r *Registry) Cooldown(p Policy) *CooldownLimiter {
	if p.Delay == nil {
		return nil
	}

	key := fmt.Sprintf("%s:%s", p.Plan, p.Scope)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cd, ok := r.cooldowns[key]; ok {
		return cd
	}

	cd := NewCooldownLimiter(r.store, limiterScope(p), *p.Delay)
	r.cooldowns[key] = cd
	return cd
}

// limiterScope namespaces counter keys by plan as well as scope, so callers
// moving between plans never share a window with their old tier. The bucket
// key already isolates individual callers.
func limiterScope(p Policy) string {
	return fmt.Sprintf("%s:%s", p.Plan, p.Scope)
}
