// Package config handles engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Custody accounts
	VaultAddress    string // account holding escrowed funds and posted stakes
	TreasuryAddress string // receives forfeited stakes

	// Dispute settings
	DefaultArbitrator       string // arbitrator assigned when a request names none
	ConfidentialStake       string // flat stake for confidential-mode disputes
	ConfidentialBridgeURL   string // presence of this endpoint is the confidential-compute capability
	MultisigThreshold       string // transfers above this require multisig co-approval
	MultisigApproverURL     string // external approver endpoint (optional)
	ExpirySweepSeconds      int    // background expiry sweep interval
	OTLPEndpoint            string // OTLP gRPC endpoint for tracing (optional)
}

// Defaults.
const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultVaultAddress      = "0x00000000000000000000000000000000000c1c40"
	DefaultTreasuryAddress   = "0x00000000000000000000000000000000000f33e5"
	DefaultConfidentialStake = "1.000000"
	DefaultMultisigThreshold = "10000"
	DefaultExpirySweep       = 30
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		VaultAddress:          getEnv("VAULT_ADDRESS", DefaultVaultAddress),
		TreasuryAddress:       getEnv("TREASURY_ADDRESS", DefaultTreasuryAddress),
		DefaultArbitrator:     os.Getenv("DEFAULT_ARBITRATOR"),
		ConfidentialStake:     getEnv("CONFIDENTIAL_STAKE", DefaultConfidentialStake),
		ConfidentialBridgeURL: os.Getenv("CONFIDENTIAL_BRIDGE_ENDPOINT"),
		MultisigThreshold:     getEnv("MULTISIG_THRESHOLD", DefaultMultisigThreshold),
		MultisigApproverURL:   os.Getenv("MULTISIG_APPROVER_URL"),
		ExpirySweepSeconds:    int(getEnvInt64("EXPIRY_SWEEP_SECONDS", DefaultExpirySweep)),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.VaultAddress == "" {
		return fmt.Errorf("VAULT_ADDRESS is required")
	}
	if c.TreasuryAddress == "" {
		return fmt.Errorf("TREASURY_ADDRESS is required")
	}
	if c.VaultAddress == c.TreasuryAddress {
		return fmt.Errorf("VAULT_ADDRESS and TREASURY_ADDRESS must differ")
	}
	if c.ExpirySweepSeconds <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_SECONDS must be positive")
	}
	return nil
}

// PrivacyAvailable reports whether the deployment exposes the
// confidential-compute capability. This is environment-detected, never
// user-settable.
func (c *Config) PrivacyAvailable() bool {
	return c.ConfidentialBridgeURL != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
