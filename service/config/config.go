package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	LogLevel    string
	MetricsAddr string

	// Database configuration
	DatabaseURL string

	// Solana configuration. SOLANA_RPC_URL may hold several comma-separated
	// endpoints; each process picks one at startup.
	SolanaRPCURLs  []string
	RPCMaxAttempts int
	RPCRateLimit   float64 // requests per second, 0 = unlimited

	// Record cache. An empty RedisURL keeps records in process memory.
	RedisURL string
	CacheTTL time.Duration

	// Batch fetching
	FetchConcurrency int
	FetchQueueSize   int
	FetchTimeout     time.Duration
	SignatureLimit   int

	// Receipts
	ReceiptsEnabled bool
	ReceiptsURL     string
	ReceiptTimeout  time.Duration

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Sync scheduling
	DefaultSyncInterval time.Duration
	MinSyncInterval     time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.SolanaRPCURLs = splitList(os.Getenv("SOLANA_RPC_URL"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	var err error
	if cfg.RPCMaxAttempts, err = parseInt("RPC_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCRateLimit, err = parseFloat("RPC_RATE_LIMIT", 0); err != nil {
		errs = append(errs, err)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.CacheTTL, err = parseDuration("CACHE_TTL", "0s"); err != nil {
		errs = append(errs, err)
	}

	if cfg.FetchConcurrency, err = parseInt("FETCH_CONCURRENCY", 8); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchQueueSize, err = parseInt("FETCH_QUEUE_SIZE", 256); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignatureLimit, err = parseInt("SIGNATURE_LIMIT", 100); err != nil {
		errs = append(errs, err)
	}

	if cfg.ReceiptsEnabled, err = parseBool("RECEIPTS_ENABLED", false); err != nil {
		errs = append(errs, err)
	}
	cfg.ReceiptsURL = os.Getenv("RECEIPTS_URL")
	if cfg.ReceiptsEnabled && cfg.ReceiptsURL == "" {
		errs = append(errs, fmt.Errorf("RECEIPTS_URL is required when RECEIPTS_ENABLED is set"))
	}
	if cfg.ReceiptTimeout, err = parseDuration("RECEIPT_TIMEOUT", "5s"); err != nil {
		errs = append(errs, err)
	}

	// Empty disables publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "ledgerlens-wallet-sync")

	if cfg.DefaultSyncInterval, err = parseDuration("DEFAULT_SYNC_INTERVAL", "5m"); err != nil {
		errs = append(errs, err)
	}
	if cfg.MinSyncInterval, err = parseDuration("MIN_SYNC_INTERVAL", "1m"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints. It is also useful for testing
// configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}
	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}
	if c.RPCMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RPCMaxAttempts must be at least 1"))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit cannot be negative"))
	}
	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FetchConcurrency must be at least 1"))
	}
	if c.FetchQueueSize < 0 {
		errs = append(errs, fmt.Errorf("FetchQueueSize cannot be negative"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FetchTimeout must be positive"))
	}
	if c.SignatureLimit < 1 || c.SignatureLimit > 1000 {
		errs = append(errs, fmt.Errorf("SignatureLimit must be between 1 and 1000"))
	}
	if c.ReceiptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ReceiptTimeout must be positive"))
	}
	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}
	if c.MinSyncInterval > c.DefaultSyncInterval {
		errs = append(errs, fmt.Errorf("MinSyncInterval (%v) cannot be greater than DefaultSyncInterval (%v)",
			c.MinSyncInterval, c.DefaultSyncInterval))
	}
	if c.DefaultSyncInterval < time.Second {
		errs = append(errs, fmt.Errorf("DefaultSyncInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
