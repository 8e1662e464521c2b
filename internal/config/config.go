// Package config provides configuration management for the creator rewards
// listener. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Indexer  IndexerConfig
	Asset    AssetConfig
	Listener ListenerConfig
	Worker   WorkerConfig
	Retry    RetryConfig
	Logging  LoggingConfig
}

// ServerConfig holds the status endpoint server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the tip-event archive
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration for the creator registry cache
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// IndexerConfig holds ledger indexer API configuration
type IndexerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxTxnsPerPoll int     // pagination cap per poll cycle
	RequestsPerSec float64 // indexer query pacing
}

// AssetConfig holds asset service (mint/transfer) configuration
type AssetConfig struct {
	BaseURL          string
	Token            string
	MintTimeout      time.Duration
	DeliveryMode     string // "custodial" | "claim"
	DemoAccountsFile string // custodial mode only
}

// ListenerConfig holds poll loop supervisor configuration
type ListenerConfig struct {
	PollInterval     time.Duration
	ErrorBackoffMax  time.Duration
	ErrorBackoffTrip int // consecutive failed ticks before stretching the sleep
}

// WorkerConfig holds mint/issue worker pool configuration
type WorkerConfig struct {
	PoolSize         int
	QueueSize        int
	LoyaltyMinMicro  uint64        // minimum tip amount that counts toward loyalty
	BadgeInterval    int           // every Nth qualifying tip earns a badge
	ReclaimAfter     time.Duration // in_progress older than this is reclaimable
	DispatchInterval time.Duration // retry scheduler scan interval
}

// RetryConfig holds the retry scheduler backoff configuration
type RetryConfig struct {
	Backoff     []time.Duration
	MaxAttempts int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "creator_rewards"),
				User:           getEnv("POSTGRES_USER", "rewards"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "creator_rewards"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				CacheTTL: getEnvAsDuration("REGISTRY_CACHE_TTL", 30*time.Second),
			},
		},
		Indexer: IndexerConfig{
			BaseURL:        getEnv("INDEXER_URL", "https://testnet-idx.algonode.cloud"),
			RequestTimeout: getEnvAsDuration("INDEXER_TIMEOUT", 15*time.Second),
			MaxTxnsPerPoll: getEnvAsInt("INDEXER_MAX_TXNS_PER_POLL", 1000),
			RequestsPerSec: getEnvAsFloat("INDEXER_REQUESTS_PER_SEC", 5),
		},
		Asset: AssetConfig{
			BaseURL:          getEnv("ASSET_SERVICE_URL", "https://testnet-api.algonode.cloud"),
			Token:            getEnv("ASSET_SERVICE_TOKEN", ""),
			MintTimeout:      getEnvAsDuration("MINT_TIMEOUT", 20*time.Second),
			DeliveryMode:     getEnv("DELIVERY_MODE", "claim"),
			DemoAccountsFile: getEnv("DEMO_ACCOUNTS_FILE", "demo_accounts.json"),
		},
		Listener: ListenerConfig{
			PollInterval:     getEnvAsDuration("LISTENER_POLL_INTERVAL", 10*time.Second),
			ErrorBackoffMax:  getEnvAsDuration("LISTENER_ERROR_BACKOFF_MAX", 60*time.Second),
			ErrorBackoffTrip: getEnvAsInt("LISTENER_ERROR_BACKOFF_TRIP", 5),
		},
		Worker: WorkerConfig{
			PoolSize:         getEnvAsInt("WORKER_POOL_SIZE", 4),
			QueueSize:        getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			LoyaltyMinMicro:  uint64(getEnvAsInt("LOYALTY_MIN_MICRO", 500_000)),
			BadgeInterval:    getEnvAsInt("LOYALTY_BADGE_INTERVAL", 5),
			ReclaimAfter:     getEnvAsDuration("ACTION_RECLAIM_AFTER", 5*time.Minute),
			DispatchInterval: getEnvAsDuration("RETRY_DISPATCH_INTERVAL", 15*time.Second),
		},
		Retry: RetryConfig{
			Backoff: []time.Duration{
				getEnvAsDuration("RETRY_BACKOFF_1", 60*time.Second),
				getEnvAsDuration("RETRY_BACKOFF_2", 120*time.Second),
				getEnvAsDuration("RETRY_BACKOFF_3", 240*time.Second),
			},
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Listener.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %v", c.Listener.PollInterval)
	}
	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive, got %d", c.Worker.PoolSize)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if mode := c.Asset.DeliveryMode; mode != "custodial" && mode != "claim" {
		return fmt.Errorf("delivery mode must be 'custodial' or 'claim', got %q", mode)
	}
	return nil
}

// PostgresURL builds a database URL for golang-migrate
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
