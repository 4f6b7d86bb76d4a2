package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pointsledger/internal/ledger"
	"pointsledger/internal/pkg/logger"
)

type Config struct {
	Ledger        ledger.Config
	Logger        logger.Config
	APIMode       string
	APIOrigins    []string
	AdminIDs      []string
	SweepSchedule string
}

// Load reads the optional settings from the environment. Required keys are
// checked by each binary with env.EnvsRequired.
func Load() (*Config, error) {
	defaults := ledger.DefaultConfig()

	policy := ledger.ReferralPolicy(getEnv("REFERRAL_POLICY", string(defaults.ReferralPolicy)))
	if policy != ledger.REFERRAL_POLICY_IMMEDIATE && policy != ledger.REFERRAL_POLICY_ON_FIRST_PURCHASE {
		return nil, fmt.Errorf("config: unknown REFERRAL_POLICY %q", policy)
	}

	cfg := &Config{
		Ledger: ledger.Config{
			Tiers:            defaults.Tiers,
			PointsExpiryDays: getEnvAsInt("POINTS_EXPIRY_DAYS", defaults.PointsExpiryDays),
			TierBonusEnabled: getEnvAsBool("TIER_BONUS_ENABLED", defaults.TierBonusEnabled),
			SignupBonus:      getEnvAsInt("SIGNUP_BONUS", defaults.SignupBonus),
			ReferrerReward:   getEnvAsInt("REFERRER_REWARD", defaults.ReferrerReward),
			RefereeReward:    getEnvAsInt("REFEREE_REWARD", defaults.RefereeReward),
			ReferralPolicy:   policy,
			ShareBaseURL:     getEnv("REFERRAL_SHARE_BASE_URL", ""),
			LockTries:        getEnvAsInt("LOCK_TRIES", defaults.LockTries),
			LockExpiry:       getEnvAsDuration("LOCK_EXPIRY", defaults.LockExpiry),
			CodeAttempts:     getEnvAsInt("CODE_ATTEMPTS", defaults.CodeAttempts),
			CatalogCacheTTL:  getEnvAsDuration("CATALOG_CACHE_TTL", defaults.CatalogCacheTTL),
		},
		Logger: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		APIMode:       getEnv("API_MODE", "production"),
		APIOrigins:    getEnvAsSlice("API_ORIGINS", []string{"*"}),
		AdminIDs:      getEnvAsSlice("API_ADMIN_IDS", nil),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 1h"),
	}

	if cfg.Ledger.PointsExpiryDays <= 0 {
		return nil, fmt.Errorf("config: POINTS_EXPIRY_DAYS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
