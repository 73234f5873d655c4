package ratelimit

import (
	"os"
	"strconv"
	"time"
)

// Tier groups routes that share a request budget.
type Tier string

const (
	// TierAssessment covers the JSON and streaming assessment routes. Each
	// request runs five model calls, so both routes draw on one budget.
	TierAssessment Tier = "assessment"
	// TierSessionCreate covers starting a new interview.
	TierSessionCreate Tier = "session_create"
	// TierSessionWrite covers answers, resets and deletes, budgeted per session.
	TierSessionWrite Tier = "session_write"
	// TierSearch covers knowledge search, which embeds the query on every call.
	TierSearch Tier = "search"
	// TierDefault covers every other route.
	TierDefault Tier = "default"
	// TierUnlimited is never limited.
	TierUnlimited Tier = "unlimited"
)

// Budget is a token bucket shape: Limit requests per Window with at most
// Burst in a row. A non-positive Limit disables limiting for the tier.
type Budget struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// MaxKeys bounds the number of live buckets; the least recently used is evicted.
	MaxKeys int
	Budgets map[Tier]Budget
}

// DefaultMaxKeys is the bucket cache size when Config.MaxKeys is unset.
const DefaultMaxKeys = 10000

// DefaultBudgets returns the per-tier budgets used when nothing overrides them.
func DefaultBudgets() map[Tier]Budget {
	return map[Tier]Budget{
		TierAssessment:    {Limit: 10, Window: time.Hour, Burst: 2},
		TierSessionCreate: {Limit: 30, Window: time.Minute, Burst: 5},
		TierSessionWrite:  {Limit: 120, Window: time.Minute, Burst: 30},
		TierSearch:        {Limit: 120, Window: time.Minute, Burst: 20},
		TierDefault:       {Limit: 1000, Window: time.Minute, Burst: 1000},
	}
}

// LoadConfig reads rate limiting configuration from the environment.
//
//	RATE_LIMIT_ENABLED                 default true
//	RATE_LIMIT_ASSESSMENTS_PER_HOUR    assessment tier limit
//	RATE_LIMIT_ANSWERS_PER_MINUTE      per-session write limit
//	RATE_LIMIT_DEFAULT_LIMIT           requests per minute for other routes
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	budgets := DefaultBudgets()
	override := func(tier Tier, env string) {
		b := budgets[tier]
		b.Limit = getEnvInt(env, b.Limit)
		if b.Burst > b.Limit {
			b.Burst = b.Limit
		}
		budgets[tier] = b
	}
	override(TierAssessment, "RATE_LIMIT_ASSESSMENTS_PER_HOUR")
	override(TierSessionWrite, "RATE_LIMIT_ANSWERS_PER_MINUTE")
	override(TierDefault, "RATE_LIMIT_DEFAULT_LIMIT")

	return &Config{Enabled: true, MaxKeys: DefaultMaxKeys, Budgets: budgets}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
