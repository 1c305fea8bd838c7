package throttle

import (
	"fmt"
	"time"

	"github.com/tamamhuda/envlink-api-sub000/internal/config"
)

// fixedPlanName labels policies that come from the static catalog rather
// than a subscription plan.
const fixedPlanName = "fixed"

// DefaultScopeName is the fallback policy for routes registered without
// explicit scope metadata.
const DefaultScopeName = "default"

// Catalog is the closed, static registry of per-scope policies for
// unauthenticated and fixed endpoints. It is built once at startup; an
// unregistered scope at request time is a configuration error.
type Catalog struct {
	policies map[string]Policy
}

// NewCatalog builds the catalog from configuration. Invalid intervals fail
// construction: scope policies are developer-owned and must be correct at
// deploy time.
func NewCatalog(scopes []config.ScopeConfig) (*Catalog, error) {
	policies := make(map[string]Policy, len(scopes))

	for _, sc := range scopes {
		window, err := ParseInterval(sc.ResetInterval)
		if err != nil {
			return nil, fmt.Errorf("scope %q: %w", sc.Scope, err)
		}

		cost := sc.Cost
		if cost <= 0 {
			cost = 1
		}

		chargeOnSuccess := true
		if sc.ChargeOnSuccess != nil {
			chargeOnSuccess = *sc.ChargeOnSuccess
		}

		var blockDuration time.Duration
		if sc.BlockDuration != "" {
			blockDuration, err = ParseInterval(sc.BlockDuration)
			if err != nil {
				return nil, fmt.Errorf("scope %q block duration: %w", sc.Scope, err)
			}
		}

		var delay *Delay
		if sc.Delay != nil {
			delay = &Delay{
				Base:     time.Duration(sc.Delay.BaseSeconds) * time.Second,
				Interval: time.Duration(sc.Delay.IntervalSeconds) * time.Second,
			}
		}

		policies[sc.Scope] = Policy{
			Plan:            fixedPlanName,
			Scope:           sc.Scope,
			Limit:           sc.Limit,
			Window:          window,
			ResetInterval:   sc.ResetInterval,
			Cost:            cost,
			ChargeOnSuccess: chargeOnSuccess,
			BlockDuration:   blockDuration,
			Delay:           delay,
		}
	}

	if _, ok := policies[DefaultScopeName]; !ok {
		return nil, fmt.Errorf("scope %q must be configured", DefaultScopeName)
	}

	return &Catalog{policies: policies}, nil
}

// Resolve returns the fixed policy for a scope. Unknown scopes surface
// ErrScopeNotRegistered so misconfigured routes fail fast instead of running
// unthrottled.
func (c *Catalog) Resolve(scope string) (Policy, error) {
	if scope == "" {
		return c.Default(), nil
	}

	policy, ok := c.policies[scope]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrScopeNotRegistered, scope)
	}
	return policy, nil
}

// Default returns the fallback policy for routes without scope metadata.
func (c *Catalog) Default() Policy {
	return c.policies[DefaultScopeName]
}
