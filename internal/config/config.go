package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds infrastructure-level configuration. Parental-control policy
// lives in the database, not here.
type Config struct {
	// Database
	PostgresDSN string

	// Seed vault backend
	VaultProvider       string // local, aws-kms, or vault
	LocalMasterKeyHex   string
	AWSKMSKeyID         string
	AWSKMSRegion        string
	VaultAddress        string
	VaultToken          string
	VaultTransitKeyName string

	// Chain endpoints
	EthRPCURL    string
	SolanaRPCURL string

	// Guardian auth (policy update endpoint)
	GuardianJWTSecret string

	// Activity bus
	HeartbeatInterval time.Duration

	// Confirmation watcher
	WatcherInterval time.Duration

	// Rate limiting
	RateLimitRPS     int
	RateLimitBurst   int
	RateLimitEnabled bool

	// Server
	Port int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		PostgresDSN:         getEnv("POSTGRES_DSN", ""),
		VaultProvider:       getEnv("SEED_VAULT_PROVIDER", "local"),
		LocalMasterKeyHex:   getEnv("SEED_VAULT_MASTER_KEY", ""),
		AWSKMSKeyID:         getEnv("AWS_KMS_KEY_ID", ""),
		AWSKMSRegion:        getEnv("AWS_KMS_REGION", ""),
		VaultAddress:        getEnv("VAULT_ADDR", ""),
		VaultToken:          getEnv("VAULT_TOKEN", ""),
		VaultTransitKeyName: getEnv("VAULT_TRANSIT_KEY", "ward-wallet-seed"),
		EthRPCURL:           getEnv("ETH_RPC_URL", ""),
		SolanaRPCURL:        getEnv("SOLANA_RPC_URL", ""),
		GuardianJWTSecret:   getEnv("GUARDIAN_JWT_SECRET", ""),
		HeartbeatInterval:   getEnvDuration("BUS_HEARTBEAT_INTERVAL", 30*time.Second),
		WatcherInterval:     getEnvDuration("WATCHER_INTERVAL", 15*time.Second),
		RateLimitRPS:        getEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 40),
		RateLimitEnabled:    getEnvBool("RATE_LIMIT_ENABLED", true),
		Port:                getEnvInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	switch c.VaultProvider {
	case "local":
		if c.LocalMasterKeyHex == "" {
			return fmt.Errorf("SEED_VAULT_MASTER_KEY is required when SEED_VAULT_PROVIDER is 'local'")
		}
	case "aws-kms":
		if c.AWSKMSKeyID == "" || c.AWSKMSRegion == "" {
			return fmt.Errorf("AWS_KMS_KEY_ID and AWS_KMS_REGION are required when SEED_VAULT_PROVIDER is 'aws-kms'")
		}
	case "vault":
		if c.VaultAddress == "" || c.VaultToken == "" {
			return fmt.Errorf("VAULT_ADDR and VAULT_TOKEN are required when SEED_VAULT_PROVIDER is 'vault'")
		}
	default:
		return fmt.Errorf("SEED_VAULT_PROVIDER must be 'local', 'aws-kms', or 'vault', got: %s", c.VaultProvider)
	}

	if c.GuardianJWTSecret == "" {
		return fmt.Errorf("GUARDIAN_JWT_SECRET is required")
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("BUS_HEARTBEAT_INTERVAL must be positive")
	}

	if c.WatcherInterval <= 0 {
		return fmt.Errorf("WATCHER_INTERVAL must be positive")
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
