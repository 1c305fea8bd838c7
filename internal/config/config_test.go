package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamamhuda/envlink-api-sub000/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	path := writeConfig(t, `{
		"server": {"port": "9090", "environment": "production"},
		"redis": {"host": "redis.internal"},
		"postgres": {"dsn": "host=db user=envlink dbname=envlink"},
		"throttle": {
			"plans": [{"name": "free", "limit": 25, "reset_interval": "1d", "cost": 1}],
			"scopes": [{"scope": "default", "limit": 60, "reset_interval": "1m", "cost": 1}]
		}
	}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 24, cfg.JWT.ExpiryHours)

	require.Len(t, cfg.Throttle.Plans, 1)
	assert.Equal(t, int64(25), cfg.Throttle.Plans[0].Limit)
	require.Len(t, cfg.Throttle.Scopes, 1)
	assert.Equal(t, int64(60), cfg.Throttle.Scopes[0].Limit)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, config.DefaultPlans(), cfg.Throttle.Plans)
	assert.Equal(t, config.DefaultScopes(), cfg.Throttle.Scopes)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load(writeConfig(t, `{}`))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("POSTGRES_DSN", "host=other dbname=envlink")

	cfg, err := config.Load(writeConfig(t, `{
		"redis": {"password": "from-file"},
		"postgres": {"dsn": "from-file"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "host=other dbname=envlink", cfg.Postgres.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
