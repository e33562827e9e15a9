package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the externally supplied configuration for the API.
// Everything here comes from the environment; nothing is hard-coded.
type Config struct {
	Port string
	Env  string

	// Authentication
	JWTSecret     string
	CredentialTTL time.Duration
	ChallengeTTL  time.Duration

	// Platform identities
	PlatformAdminWallet string

	// Ledger network
	LedgerAPIURL   string
	LedgerAPIKey   string
	CustodyAccount string

	// Notifications
	ResendAPIKey string
	NotifyFrom   string

	// Rate limiting
	RedisURL string
}

// Load reads configuration from the environment and validates
// the values the service cannot run without.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("GIN_MODE", "development"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		PlatformAdminWallet: os.Getenv("PLATFORM_ADMIN_WALLET"),
		LedgerAPIURL:        os.Getenv("LEDGER_API_URL"),
		LedgerAPIKey:        os.Getenv("LEDGER_API_KEY"),
		CustodyAccount:      os.Getenv("CUSTODY_ACCOUNT"),
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		NotifyFrom:          getEnv("NOTIFY_FROM_EMAIL", "Ubuntu Health <notifications@ubuntuhealth.io>"),
		RedisURL:            os.Getenv("REDIS_URL"),
	}

	var err error
	cfg.CredentialTTL, err = getDuration("JWT_EXPIRES_IN", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.ChallengeTTL, err = getDuration("AUTH_CHALLENGE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.LedgerAPIURL == "" {
		return nil, fmt.Errorf("LEDGER_API_URL environment variable is required")
	}
	if cfg.CustodyAccount == "" {
		return nil, fmt.Errorf("CUSTODY_ACCOUNT environment variable is required")
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable or a default
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration parses a duration environment variable, falling back
// to the default when unset
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
