package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamamhuda/envlink-api-sub000/internal/config"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

type stubLookup struct {
	plan string
	ok   bool
	err  error
}

func (s stubLookup) ActivePlan(ctx context.Context, userID string) (string, bool, error) {
	return s.plan, s.ok, s.err
}

func TestPlanResolver_Resolve(t *testing.T) {
	t.Parallel()

	plans, err := throttle.NewPlanSet(config.DefaultPlans())
	require.NoError(t, err)

	meta := throttle.NewRoute("shorten").PlanLimited().Build()

	t.Run("no subscription falls back to free", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{ok: false})

		policy, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "free", policy.Plan)
		assert.Equal(t, int64(50), policy.Limit)
		assert.Equal(t, 24*time.Hour, policy.Window)
	})

	t.Run("active subscription picks plan quota", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{plan: "pro", ok: true})

		policy, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "pro", policy.Plan)
		assert.Equal(t, int64(1000), policy.Limit)
	})

	t.Run("unknown subscribed plan falls back to free", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{plan: "enterprise", ok: true})

		policy, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "free", policy.Plan)
	})

	t.Run("route overrides take precedence over plan", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{plan: "pro", ok: true})
		overridden := throttle.NewRoute("shorten").
			PlanLimited().
			Limit(5).
			Cost(2).
			ResetInterval("1h").
			ChargeOnSuccess(false).
			Build()

		policy, err := resolver.Resolve(context.Background(), overridden, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "pro", policy.Plan)
		assert.Equal(t, int64(5), policy.Limit)
		assert.Equal(t, int64(2), policy.Cost)
		assert.Equal(t, time.Hour, policy.Window)
		assert.False(t, policy.ChargeOnSuccess)
	})

	t.Run("charge on success defaults to true", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{ok: false})

		policy, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.NoError(t, err)
		assert.True(t, policy.ChargeOnSuccess)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		resolver := throttle.NewPlanResolver(plans, stubLookup{err: assert.AnError})

		_, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.ErrorIs(t, err, assert.AnError)
	})

	t.Run("unparsable plan interval falls back to one day", func(t *testing.T) {
		broken, err := throttle.NewPlanSet([]config.PlanConfig{
			{Name: "free", Limit: 50, ResetInterval: "whenever", Cost: 1},
		})
		require.NoError(t, err)
		resolver := throttle.NewPlanResolver(broken, stubLookup{ok: false})

		policy, err := resolver.Resolve(context.Background(), meta, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, policy.Window)
		assert.Equal(t, "1d", policy.ResetInterval)
	})
}

func TestNewPlanSet_RequiresBaseline(t *testing.T) {
	t.Parallel()

	_, err := throttle.NewPlanSet([]config.PlanConfig{
		{Name: "pro", Limit: 1000, ResetInterval: "1d"},
	})
	require.Error(t, err)
}
