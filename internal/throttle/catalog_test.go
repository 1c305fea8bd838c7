package throttle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamamhuda/envlink-api-sub000/internal/config"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

func TestCatalog_Resolve(t *testing.T) {
	t.Parallel()

	catalog, err := throttle.NewCatalog(config.DefaultScopes())
	require.NoError(t, err)

	t.Run("known scope", func(t *testing.T) {
		policy, err := catalog.Resolve("login")
		require.NoError(t, err)
		assert.Equal(t, "login", policy.Scope)
		assert.Equal(t, int64(10), policy.Limit)
		assert.Equal(t, 30*time.Minute, policy.Window)
		assert.True(t, policy.ChargeOnSuccess)
	})

	t.Run("scope with escalating delay", func(t *testing.T) {
		policy, err := catalog.Resolve("resend-email")
		require.NoError(t, err)
		require.NotNil(t, policy.Delay)
		assert.Equal(t, 90*time.Second, policy.Delay.Base)
		assert.Equal(t, 60*time.Second, policy.Delay.Interval)
	})

	t.Run("unregistered scope is a configuration error", func(t *testing.T) {
		_, err := catalog.Resolve("no-such-scope")
		require.ErrorIs(t, err, throttle.ErrScopeNotRegistered)
	})

	t.Run("empty scope falls back to default", func(t *testing.T) {
		policy, err := catalog.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, throttle.DefaultScopeName, policy.Scope)
	})
}

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	t.Run("invalid interval fails construction", func(t *testing.T) {
		_, err := throttle.NewCatalog([]config.ScopeConfig{
			{Scope: "default", Limit: 10, ResetInterval: "soon"},
		})
		require.Error(t, err)
	})

	t.Run("missing default scope fails construction", func(t *testing.T) {
		_, err := throttle.NewCatalog([]config.ScopeConfig{
			{Scope: "login", Limit: 10, ResetInterval: "30m"},
		})
		require.Error(t, err)
	})

	t.Run("zero cost defaults to one", func(t *testing.T) {
		catalog, err := throttle.NewCatalog([]config.ScopeConfig{
			{Scope: "default", Limit: 10, ResetInterval: "1m"},
		})
		require.NoError(t, err)

		policy := catalog.Default()
		assert.Equal(t, int64(1), policy.Cost)
	})
}
