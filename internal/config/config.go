package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
	JWT      JWTConfig      `json:"jwt"`
	Throttle ThrottleConfig `json:"throttle"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
	BaseURL     string `json:"base_url"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type JWTConfig struct {
	Secret      string `json:"-"`
	ExpiryHours int    `json:"expiry_hours"`
}

// ThrottleConfig carries the subscription plans and the static per-scope
// policies consumed by the throttle engine.
type ThrottleConfig struct {
	Plans  []PlanConfig  `json:"plans"`
	Scopes []ScopeConfig `json:"scopes"`
}

// PlanConfig defines the baseline quota parameters of a subscription tier.
type PlanConfig struct {
	Name            string `json:"name"`
	Limit           int64  `json:"limit"`
	ResetInterval   string `json:"reset_interval"` // e.g. "15m", "1d"
	Cost            int64  `json:"cost"`
	ChargeOnSuccess *bool  `json:"charge_on_success,omitempty"`
}

// ScopeConfig defines a fixed policy for one operation scope, used for
// unauthenticated or fixed endpoints that are not plan-limited.
type ScopeConfig struct {
	Scope           string       `json:"scope"`
	Limit           int64        `json:"limit"`
	ResetInterval   string       `json:"reset_interval"`
	Cost            int64        `json:"cost"`
	ChargeOnSuccess *bool        `json:"charge_on_success,omitempty"`
	BlockDuration   string       `json:"block_duration,omitempty"`
	Delay           *DelayConfig `json:"delay,omitempty"`
}

// DelayConfig enables the escalating cooldown gate, in seconds.
type DelayConfig struct {
	BaseSeconds     int64 `json:"base_seconds"`
	IntervalSeconds int64 `json:"interval_seconds"`
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	// Secrets come from the environment, never from the config file
	config.JWT.Secret = os.Getenv("JWT_SECRET")
	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		config.Redis.Password = pw
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		config.Postgres.DSN = dsn
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == "" {
		cfg.Redis.Port = "6379"
	}
	if cfg.JWT.ExpiryHours == 0 {
		cfg.JWT.ExpiryHours = 24
	}
	if len(cfg.Throttle.Plans) == 0 {
		cfg.Throttle.Plans = DefaultPlans()
	}
	if len(cfg.Throttle.Scopes) == 0 {
		cfg.Throttle.Scopes = DefaultScopes()
	}
}

// DefaultPlans is the built-in plan set used when the config file does not
// define any. The "free" plan is the baseline for callers without an active
// subscription.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{Name: "free", Limit: 50, ResetInterval: "1d", Cost: 1},
		{Name: "pro", Limit: 1000, ResetInterval: "1d", Cost: 1},
		{Name: "business", Limit: 10000, ResetInterval: "1d", Cost: 1},
	}
}

// DefaultScopes covers the fixed endpoints shipped with the service.
func DefaultScopes() []ScopeConfig {
	preCharge := false
	return []ScopeConfig{
		{Scope: "default", Limit: 120, ResetInterval: "1m", Cost: 1, ChargeOnSuccess: &preCharge},
		{Scope: "login", Limit: 10, ResetInterval: "30m", Cost: 1},
		{Scope: "register", Limit: 5, ResetInterval: "1h", Cost: 1, ChargeOnSuccess: &preCharge},
		{Scope: "resend-email", Limit: 3, ResetInterval: "5m", Cost: 1,
			Delay: &DelayConfig{BaseSeconds: 90, IntervalSeconds: 60}},
		{Scope: "verify", Limit: 10, ResetInterval: "15m", Cost: 1, ChargeOnSuccess: &preCharge},
		{Scope: "shorten", Limit: 10, ResetInterval: "1d", Cost: 1, ChargeOnSuccess: &preCharge},
	}
}
