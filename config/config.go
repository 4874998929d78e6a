package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPort     string
	RedisPassword string
	JWTSecret     string
	ServerPort    string

	// Upstream provider
	BackendAPIURL          string
	BackendAPIKey          string
	UpstreamTimeoutSeconds int
	UpstreamMaxRetries     int

	// Pricing
	PricingMarkup   float64
	QuoteTTLSeconds int

	// Billing
	BillingIntervalMinutes int
	MinLeaseMinutes        int
	InvoiceCron            string

	// Lifecycle tracking
	PollIntervalSeconds      int
	ReconcileIntervalMinutes int
	ReconcileGraceMinutes    int

	// Catalog
	CatalogRefreshSeconds int
	CatalogMaxFailures    int

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Log configuration
	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLSeconds) * time.Second
}

func (c *Config) BillingInterval() time.Duration {
	return time.Duration(c.BillingIntervalMinutes) * time.Minute
}

func (c *Config) MinLease() time.Duration {
	return time.Duration(c.MinLeaseMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMinutes) * time.Minute
}

func (c *Config) ReconcileGrace() time.Duration {
	return time.Duration(c.ReconcileGraceMinutes) * time.Minute
}

func (c *Config) CatalogRefreshInterval() time.Duration {
	return time.Duration(c.CatalogRefreshSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return &Config{
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        os.Getenv("DB_PORT"),
		RedisAddr:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),

		BackendAPIURL:          getEnv("BACKEND_API_URL", "https://api.gpu-backend.example.com/v1"),
		BackendAPIKey:          os.Getenv("BACKEND_API_KEY"),
		UpstreamTimeoutSeconds: getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 30),
		UpstreamMaxRetries:     getEnvAsInt("UPSTREAM_MAX_RETRIES", 3),

		PricingMarkup:   getEnvAsFloat("PRICING_MARKUP", 2.0),
		QuoteTTLSeconds: getEnvAsInt("QUOTE_TTL_SECONDS", 60),

		BillingIntervalMinutes: getEnvAsInt("BILLING_INTERVAL_MINUTES", 60),
		MinLeaseMinutes:        getEnvAsInt("MIN_LEASE_MINUTES", 60),
		InvoiceCron:            getEnv("INVOICE_CRON", "0 2 1 * *"),

		PollIntervalSeconds:      getEnvAsInt("POLL_INTERVAL_SECONDS", 30),
		ReconcileIntervalMinutes: getEnvAsInt("RECONCILE_INTERVAL_MINUTES", 5),
		ReconcileGraceMinutes:    getEnvAsInt("RECONCILE_GRACE_MINUTES", 10),

		CatalogRefreshSeconds: getEnvAsInt("CATALOG_REFRESH_SECONDS", 60),
		CatalogMaxFailures:    getEnvAsInt("CATALOG_MAX_FAILURES", 3),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
