package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig is the process configuration, read once at startup.
type AppConfig struct {
	OKX     OKXConfig
	Service ServiceConfig
	Storage StorageConfig
}

// OKXConfig holds the DEX credentials and mode. Credentials are only needed
// when Simulate is false.
type OKXConfig struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	ProjectID  string
	Simulate   bool
	BaseURL    string
	Timeout    time.Duration
	// Wallet is the platform wallet used when a caller omits the employer.
	Wallet string
	// MilestoneStatus is what the simulated DEX reports for every milestone.
	MilestoneStatus string
}

type ServiceConfig struct {
	HTTPPort          int
	HMACSecret        string
	HMACClockSkew     time.Duration
	IdempotencyWindow time.Duration
	ChainsFile        string
}

type StorageConfig struct {
	ContractDSN    string
	IdempotencyDSN string
}

// Load reads configuration from the environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		OKX: OKXConfig{
			APIKey:          envOr("OKX_API_KEY", ""),
			SecretKey:       envOr("OKX_SECRET_KEY", ""),
			Passphrase:      envOr("OKX_PASSPHRASE", ""),
			ProjectID:       envOr("OKX_PROJECT_ID", "agreex-contracts"),
			Simulate:        envOrBool("OKX_SIMULATE_MODE", true),
			BaseURL:         strings.TrimRight(envOr("OKX_BASE_URL", "https://www.okx.com"), "/"),
			Timeout:         time.Duration(envOrInt("DEX_TIMEOUT_MS", 10000)) * time.Millisecond,
			Wallet:          envOr("USER_WALLET_ADDRESS", ""),
			MilestoneStatus: envOr("SIMULATED_MILESTONE_STATUS", "pending"),
		},
		Service: ServiceConfig{
			HTTPPort:          envOrInt("API_HTTP_PORT", 3000),
			HMACSecret:        envOr("API_HMAC_SECRET", ""),
			HMACClockSkew:     time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
			IdempotencyWindow: time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 86400)) * time.Second,
			ChainsFile:        envOr("CHAINS_FILE", ""),
		},
		Storage: StorageConfig{
			ContractDSN:    envOr("CONTRACT_STORE_DSN", ""),
			IdempotencyDSN: envOr("IDEMPOTENCY_DSN", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if !c.OKX.Simulate {
		var missing []string
		if c.OKX.APIKey == "" {
			missing = append(missing, "OKX_API_KEY")
		}
		if c.OKX.SecretKey == "" {
			missing = append(missing, "OKX_SECRET_KEY")
		}
		if c.OKX.Passphrase == "" {
			missing = append(missing, "OKX_PASSPHRASE")
		}
		if len(missing) > 0 {
			return fmt.Errorf("live mode requires %s", strings.Join(missing, ", "))
		}
	}
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("invalid API_HTTP_PORT %d", c.Service.HTTPPort)
	}
	if c.OKX.Timeout <= 0 {
		return fmt.Errorf("invalid DEX_TIMEOUT_MS %s", c.OKX.Timeout)
	}
	return nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
