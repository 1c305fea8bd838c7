package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/identity"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

const throttleContextKey = "throttle_context"

// UsageRecorder appends a charge event to the usage ledger. Recording runs
// after the response is committed; failures are logged, never surfaced.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, userID uuid.UUID, cost int64, action string, policy throttle.Policy) error
}

// Throttle coordinates quota evaluation around handler execution: the guard
// phase runs before the handler (pre-charge or peek), the interceptor phase
// performs the deferred charge after the handler succeeded.
type Throttle struct {
	registry *throttle.Registry
	catalog  *throttle.Catalog
	resolver *throttle.PlanResolver
	ledger   UsageRecorder
}

func NewThrottle(registry *throttle.Registry, catalog *throttle.Catalog, resolver *throttle.PlanResolver, ledger UsageRecorder) *Throttle {
	return &Throttle{
		registry: registry,
		catalog:  catalog,
		resolver: resolver,
		ledger:   ledger,
	}
}

// Handle builds the middleware for one route from its metadata.
func (t *Throttle) Handle(meta throttle.RouteMetadata) gin.HandlerFunc {
	return func(c *gin.Context) {
		if meta.SkipThrottle {
			c.Next()
			return
		}

		ident := CurrentIdentity(c)

		tcx, err := t.guard(c, meta, ident)
		if err != nil {
			t.abort(c, err)
			return
		}
		if tcx != nil {
			c.Set(throttleContextKey, tcx)
		}

		c.Next()

		// Identity is re-read: a login handler authenticates the caller
		// mid-request, and the deferred charge needs the final state
		t.intercept(c, tcx, CurrentIdentity(c))
	}
}

// currentThrottleContext returns the evaluation state left by the guard
// phase, or nil when the route was skipped or rejected before evaluation.
func currentThrottleContext(c *gin.Context) *throttle.Context {
	value, exists := c.Get(throttleContextKey)
	if !exists {
		return nil
	}

	tcx, ok := value.(*throttle.Context)
	if !ok {
		return nil
	}
	return tcx
}

// guardStrategy evaluates one policy source. handled=false passes evaluation
// to the next strategy in the chain.
type guardStrategy func(c *gin.Context, meta throttle.RouteMetadata, ident *Identity) (bool, *throttle.Context, error)

func (t *Throttle) guard(c *gin.Context, meta throttle.RouteMetadata, ident *Identity) (*throttle.Context, error) {
	strategies := []guardStrategy{t.planGuard, t.scopeGuard}

	for _, strategy := range strategies {
		handled, tcx, err := strategy(c, meta, ident)
		if err != nil {
			return nil, err
		}
		if handled {
			return tcx, nil
		}
	}

	return nil, nil
}

// planGuard applies when the route is plan-limited and the caller is
// authenticated. Unauthenticated callers fall through to the scope guard.
func (t *Throttle) planGuard(c *gin.Context, meta throttle.RouteMetadata, ident *Identity) (bool, *throttle.Context, error) {
	if !meta.PlanLimited || ident == nil {
		return false, nil, nil
	}

	policy, err := t.resolver.Resolve(c.Request.Context(), meta, ident.ID.String())
	if err != nil {
		return true, nil, err
	}

	tcx, err := t.evaluate(c, policy, ident)
	return true, tcx, err
}

// scopeGuard is the fallback: a static policy resolved by scope name.
func (t *Throttle) scopeGuard(c *gin.Context, meta throttle.RouteMetadata, ident *Identity) (bool, *throttle.Context, error) {
	policy, err := t.catalog.Resolve(meta.Scope)
	if err != nil {
		return true, nil, err
	}

	tcx, err := t.evaluate(c, policy, ident)
	return true, tcx, err
}

// evaluate runs the common guard logic for a resolved policy: cooldown gate,
// then pre-charge or peek depending on charge-on-success.
func (t *Throttle) evaluate(c *gin.Context, policy throttle.Policy, ident *Identity) (*throttle.Context, error) {
	var userID string
	if ident != nil {
		userID = ident.ID.String()
	}

	info := identity.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	bucketKey := identity.BucketKey(identity.Subject(userID, policy.Scope), info)

	tcx := &throttle.Context{
		Policy:    policy,
		BucketKey: bucketKey,
		Cost:      policy.Cost,
		State:     throttle.StatePolicyResolved,
	}

	ctx := c.Request.Context()
	limiter := t.registry.Limiter(policy)

	if cooldown := t.registry.Cooldown(policy); cooldown != nil {
		peeked, err := limiter.Peek(ctx, bucketKey)
		if err != nil {
			return nil, err
		}

		ok, held, err := cooldown.Gate(ctx, bucketKey, peeked.Consumed)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.applyHeaders(c, policy, peeked)
			return nil, &throttle.QuotaExceededError{
				Scope:      policy.Scope,
				Policy:     policy.Label(),
				Limit:      policy.Limit,
				Remaining:  peeked.Remaining,
				RetryAfter: held,
			}
		}
	}

	if !policy.ChargeOnSuccess {
		result, err := limiter.Consume(ctx, bucketKey, tcx.Cost)
		if err != nil {
			return nil, err
		}

		t.applyHeaders(c, policy, result)
		if !result.Allowed {
			return nil, t.exceeded(policy, result)
		}

		tcx.State = throttle.StatePreCharged
		return tcx, nil
	}

	result, err := limiter.Peek(ctx, bucketKey)
	if err != nil {
		return nil, err
	}

	t.applyHeaders(c, policy, result)
	if result.Remaining <= 0 {
		return nil, t.exceeded(policy, result)
	}

	tcx.State = throttle.StateDeferred
	return tcx, nil
}

// intercept performs the deferred charge after a successful handler run.
// Failed requests never consume quota on the charge-on-success path.
func (t *Throttle) intercept(c *gin.Context, tcx *throttle.Context, ident *Identity) {
	if tcx == nil || tcx.State != throttle.StateDeferred || ident == nil {
		return
	}
	if c.Writer.Status() >= http.StatusBadRequest || len(c.Errors) > 0 {
		return
	}

	limiter := t.registry.Limiter(tcx.Policy)
	result, err := limiter.Consume(c.Request.Context(), tcx.BucketKey, tcx.Cost)
	if err != nil {
		// The response is already granted; losing the charge is the
		// documented overshoot, not a request failure
		log.Printf("ERROR: deferred charge failed for scope %s: %v", tcx.Policy.Scope, err)
		return
	}

	// Refresh headers with the post-charge counts. Best effort: once the
	// handler wrote the body the header map is already flushed.
	t.applyHeaders(c, tcx.Policy, result)

	if !result.Allowed {
		// A racing request filled the bucket between the peek and here. The
		// counter refused the charge, so the ledger must not record one.
		log.Printf("WARN: deferred charge rejected for scope %s, bucket exhausted", tcx.Policy.Scope)
		return
	}
	tcx.State = throttle.StateChargedOnSuccess

	// The ledger write is asynchronous, so the context state deliberately
	// stops at charged-on-success; readers of the state would otherwise race
	// the goroutine.
	userID := ident.ID
	policy := tcx.Policy
	cost := tcx.Cost
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := t.ledger.RecordUsage(ctx, userID, cost, "charge-on-success", policy); err != nil {
			log.Printf("ERROR: usage ledger write failed for user %s scope %s: %v", userID, policy.Scope, err)
		}
	}()
}

func (t *Throttle) exceeded(policy throttle.Policy, result throttle.Result) error {
	retry := result.RetryAfter()
	if policy.BlockDuration > retry {
		retry = policy.BlockDuration
	}
	if cooldown := t.registry.Cooldown(policy); cooldown != nil {
		// Retry-After must cover the escalating spacing as well
		if d := cooldown.DelayFor(result.Consumed); d > retry {
			retry = d
		}
	}

	return &throttle.QuotaExceededError{
		Scope:      policy.Scope,
		Policy:     policy.Label(),
		Limit:      policy.Limit,
		Remaining:  result.Remaining,
		RetryAfter: retry,
	}
}

func (t *Throttle) applyHeaders(c *gin.Context, policy throttle.Policy, result throttle.Result) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(policy.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	c.Header("X-RateLimit-Policy", policy.Label())
}

func (t *Throttle) abort(c *gin.Context, err error) {
	var quotaErr *throttle.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.Header("Retry-After", strconv.FormatInt(quotaErr.RetryAfterSeconds(), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               quotaErr.Error(),
			"retry_after_seconds": quotaErr.RetryAfterSeconds(),
			"limit":               quotaErr.Limit,
			"remaining":           quotaErr.Remaining,
			"policy":              quotaErr.Policy,
		})
		c.Abort()
		return
	}

	// Configuration and store failures are never an implicit allow
	log.Printf("ERROR: throttle evaluation failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal Server Error",
	})
	c.Abort()
}
