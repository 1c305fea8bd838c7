// Package throttle implements the quota and cooldown engine: policy
// resolution, distributed fixed-window counters, escalating cooldown gates,
// and the per-request evaluation context shared between the guard and
// interceptor phases of the middleware.
package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Delay configures the escalating cooldown gate. The required spacing
// between uses grows by Interval for every point already consumed in the
// current window.
type Delay struct {
	Base     time.Duration
	Interval time.Duration
}

// Policy is the effective throttle policy computed for one request. It is
// never persisted.
type Policy struct {
	Plan            string
	Scope           string
	Limit           int64
	Window          time.Duration
	ResetInterval   string // human-readable window, used in the policy header
	Cost            int64
	ChargeOnSuccess bool
	BlockDuration   time.Duration
	Delay           *Delay
}

// Label renders the policy for the X-RateLimit-Policy header,
// e.g. "free 50/1d".
func (p Policy) Label() string {
	return fmt.Sprintf("%s %d/%s", p.Plan, p.Limit, p.ResetInterval)
}

// State tracks how far a request progressed through throttle evaluation.
type State int

const (
	StateNotEvaluated State = iota
	StatePolicyResolved
	StatePreCharged
	StateDeferred
	StateHeadersApplied
	StateChargedOnSuccess
	StateUsageRecorded
)

func (s State) String() string {
	switch s {
	case StateNotEvaluated:
		return "not-evaluated"
	case StatePolicyResolved:
		return "policy-resolved"
	case StatePreCharged:
		return "pre-charged"
	case StateDeferred:
		return "deferred"
	case StateHeadersApplied:
		return "headers-applied"
	case StateChargedOnSuccess:
		return "charged-on-success"
	case StateUsageRecorded:
		return "usage-recorded"
	default:
		return "unknown"
	}
}

// Context is the request-scoped evaluation state. The guard phase creates at
// most one per request; the interceptor phase reads it after the handler ran.
type Context struct {
	Policy    Policy
	BucketKey string
	Cost      int64
	State     State
}

// RouteMetadata is attached to a route at registration time and consumed by
// the resolver chain. Override fields are nil/empty when the route does not
// override the plan or scope defaults.
type RouteMetadata struct {
	Scope                   string
	PlanLimited             bool
	SkipThrottle            bool
	CostOverride            *int64
	ChargeOnSuccessOverride *bool
	LimitOverride           *int64
	ResetIntervalOverride   string
}

// RouteBuilder assembles RouteMetadata fluently at route registration.
type RouteBuilder struct {
	meta RouteMetadata
}

func NewRoute(scope string) *RouteBuilder {
	return &RouteBuilder{meta: RouteMetadata{Scope: scope}}
}

// PlanLimited marks the route as governed by the caller's subscription plan
// rather than a fixed scope policy.
func (b *RouteBuilder) PlanLimited() *RouteBuilder {
	b.meta.PlanLimited = true
	return b
}

// Skip disables throttling for the route entirely.
func (b *RouteBuilder) Skip() *RouteBuilder {
	b.meta.SkipThrottle = true
	return b
}

func (b *RouteBuilder) Cost(n int64) *RouteBuilder {
	b.meta.CostOverride = &n
	return b
}

func (b *RouteBuilder) ChargeOnSuccess(v bool) *RouteBuilder {
	b.meta.ChargeOnSuccessOverride = &v
	return b
}

func (b *RouteBuilder) Limit(n int64) *RouteBuilder {
	b.meta.LimitOverride = &n
	return b
}

func (b *RouteBuilder) ResetInterval(s string) *RouteBuilder {
	b.meta.ResetIntervalOverride = s
	return b
}

func (b *RouteBuilder) Build() RouteMetadata {
	return b.meta
}

// ParseInterval parses a reset interval such as "30s", "15m", "2h" or "1d".
// Day units are handled here because time.ParseDuration stops at hours.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseInt(strings.TrimSuffix(s, "d"), 10, 64)
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}
