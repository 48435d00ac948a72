package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration, read from the environment
// (optionally via a .env file) as described in spec §6.
type Config struct {
	// Server
	Host    string
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// CORS
	CORSOrigins []string

	// Webhook auth
	WebhookSecret string

	// Poller class disable flags
	DisableFundingPollers bool
	DisableSpotPollers    bool
	DisableAccountPollers bool

	// On-chain account poller target
	LighterAccountIndex string

	// Notifier (§4.K) — a single Pushover target, configured directly
	// rather than via a hardcoded default token.
	PushoverUserKey  string
	PushoverAPIToken string
	PushoverMinLevel string

	// Downsampler (§4.J)
	DownsamplerBackupsToKeep int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, loading a
// sibling .env file first if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:                  getEnv("HOST", "0.0.0.0"),
		Port:                  getEnvAsInt("PORT", 8001),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		DatabasePath:          getEnv("DATABASE_PATH", "./data/ratewatch.db"),
		CORSOrigins:           getEnvAsList("CORS_ORIGINS", []string{"*"}),
		WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		DisableFundingPollers: getEnvAsBool("DISABLE_FUNDING_POLLERS", false),
		DisableSpotPollers:    getEnvAsBool("DISABLE_SPOT_POLLERS", false),
		DisableAccountPollers: getEnvAsBool("DISABLE_ACCOUNT_POLLERS", false),
		LighterAccountIndex:      getEnv("LIGHTER_ACCOUNT_INDEX", ""),
		PushoverUserKey:          getEnv("PUSHOVER_USER_KEY", ""),
		PushoverAPIToken:         getEnv("PUSHOVER_API_TOKEN", ""),
		PushoverMinLevel:         getEnv("PUSHOVER_MIN_LEVEL", "low"),
		DownsamplerBackupsToKeep: getEnvAsInt("DOWNSAMPLE_BACKUPS_KEEP", 3),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
