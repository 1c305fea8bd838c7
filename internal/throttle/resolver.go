package throttle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tamamhuda/envlink-api-sub000/internal/config"
)

// BaselinePlanName is the plan applied to authenticated callers without an
// active subscription.
const BaselinePlanName = "free"

const fallbackWindow = 24 * time.Hour

// SubscriptionLookup resolves a caller's active subscription plan. It is the
// boundary to the subscription collaborator; the resolver only consumes the
// plan name.
type SubscriptionLookup interface {
	ActivePlan(ctx context.Context, userID string) (string, bool, error)
}

// PlanSet indexes the configured subscription plans.
type PlanSet struct {
	plans map[string]config.PlanConfig
}

func NewPlanSet(plans []config.PlanConfig) (*PlanSet, error) {
	indexed := make(map[string]config.PlanConfig, len(plans))
	for _, p := range plans {
		indexed[p.Name] = p
	}

	if _, ok := indexed[BaselinePlanName]; !ok {
		return nil, fmt.Errorf("plan %q must be configured", BaselinePlanName)
	}

	return &PlanSet{plans: indexed}, nil
}

func (s *PlanSet) Plan(name string) (config.PlanConfig, bool) {
	p, ok := s.plans[name]
	return p, ok
}

func (s *PlanSet) Baseline() config.PlanConfig {
	return s.plans[BaselinePlanName]
}

// PlanResolver computes the effective policy for plan-limited routes by
// merging the caller's subscription plan with per-route overrides.
type PlanResolver struct {
	plans *PlanSet
	subs  SubscriptionLookup
}

func NewPlanResolver(plans *PlanSet, subs SubscriptionLookup) *PlanResolver {
	return &PlanResolver{plans: plans, subs: subs}
}

// Resolve merges route overrides over the caller's plan. Override precedence
// is route field first, then plan field; charge-on-success defaults to true
// when neither specifies it.
func (r *PlanResolver) Resolve(ctx context.Context, meta RouteMetadata, userID string) (Policy, error) {
	plan := r.plans.Baseline()

	if userID != "" {
		name, ok, err := r.subs.ActivePlan(ctx, userID)
		if err != nil {
			return Policy{}, fmt.Errorf("resolve subscription plan: %w", err)
		}
		if ok {
			if p, known := r.plans.Plan(name); known {
				plan = p
			} else {
				log.Printf("WARN: subscription references unknown plan %q, using %q", name, plan.Name)
			}
		}
	}

	limit := plan.Limit
	if meta.LimitOverride != nil {
		limit = *meta.LimitOverride
	}

	resetInterval := plan.ResetInterval
	if meta.ResetIntervalOverride != "" {
		resetInterval = meta.ResetIntervalOverride
	}

	cost := plan.Cost
	if meta.CostOverride != nil {
		cost = *meta.CostOverride
	}
	if cost <= 0 {
		cost = 1
	}

	chargeOnSuccess := true
	if plan.ChargeOnSuccess != nil {
		chargeOnSuccess = *plan.ChargeOnSuccess
	}
	if meta.ChargeOnSuccessOverride != nil {
		chargeOnSuccess = *meta.ChargeOnSuccessOverride
	}

	window, err := ParseInterval(resetInterval)
	if err != nil {
		// Bad interval is non-fatal here: plans are operator data, not code
		log.Printf("WARN: unparsable reset interval %q for plan %q, falling back to 1d", resetInterval, plan.Name)
		window = fallbackWindow
		resetInterval = "1d"
	}

	return Policy{
		Plan:            plan.Name,
		Scope:           meta.Scope,
		Limit:           limit,
		Window:          window,
		ResetInterval:   resetInterval,
		Cost:            cost,
		ChargeOnSuccess: chargeOnSuccess,
	}, nil
}
