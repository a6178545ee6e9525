package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// BalancePolicy decides what happens to the unpaid remainder of a booking
// when it is completed. The core never collects it.
type BalancePolicy string

const (
	// BalanceOnSite reports the outstanding balance to the owner on completion.
	BalanceOnSite BalancePolicy = "on_site"
	// BalanceIgnore completes bookings without reporting a balance.
	BalanceIgnore BalancePolicy = "ignore"
)

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction  bool
	ProdOrigins   string
	HTTPAddr      string
	LogLevel      string
	DBDSN         string
	DBAutoMigrate bool

	JWTSecret string

	// Payment gateway
	GatewayBaseURL       string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration
	Currency             string

	// Booking policy
	CancellationWindow time.Duration
	BusinessLocation   *time.Location
	BalancePolicy      BalancePolicy

	// Notifications
	RabbitMQURL    string
	NotifyExchange string
	NotifyTimeout  time.Duration

	// Redis backs the rate limiter and the background job queue.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int

	CompletionSweepCron string
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	// Production origin (default: empty)
	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	// Application environment (default: dev)
	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	// HTTP listen address (default: :8080)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	cfg.DBAutoMigrate = getEnv("DB_AUTO_MIGRATE", "false") == "true"

	// JWT secret is required for validating tokens issued by the auth service
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.GatewayBaseURL = getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com/v1")
	cfg.GatewayKeyID = getEnv("GATEWAY_KEY_ID", "")
	cfg.GatewayKeySecret = os.Getenv("GATEWAY_KEY_SECRET")
	if cfg.GatewayKeySecret == "" {
		return nil, fmt.Errorf("GATEWAY_KEY_SECRET is required")
	}
	// Webhooks fall back to the key secret when no dedicated secret is set.
	cfg.GatewayWebhookSecret = getEnv("GATEWAY_WEBHOOK_SECRET", cfg.GatewayKeySecret)
	cfg.Currency = getEnv("CURRENCY", "INR")

	if cfg.GatewayTimeout, err = getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CancellationWindow, err = getEnvAsDuration("CANCELLATION_WINDOW", 48*time.Hour); err != nil {
		return nil, err
	}

	tz := getEnv("BUSINESS_TIMEZONE", "Asia/Kolkata")
	cfg.BusinessLocation, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
	}

	switch p := BalancePolicy(getEnv("BALANCE_POLICY", string(BalanceOnSite))); p {
	case BalanceOnSite, BalanceIgnore:
		cfg.BalancePolicy = p
	default:
		return nil, fmt.Errorf("invalid BALANCE_POLICY %q", p)
	}

	// Empty RABBITMQ_URL disables publishing; notifications are only logged.
	cfg.RabbitMQURL = getEnv("RABBITMQ_URL", "")
	cfg.NotifyExchange = getEnv("NOTIFY_EXCHANGE", "hall-booking.events")
	if cfg.NotifyTimeout, err = getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// Empty REDIS_ADDR disables the background worker and the shared rate limiter.
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimitRPS = rps
	if cfg.RateLimitBurst, err = getEnvAsInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg.CompletionSweepCron = getEnv("COMPLETION_SWEEP_CRON", "@every 1h")

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		// Return 0 and a wrapped error to provide context
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

// getEnvAsDuration parses a time.Duration such as "15m" or "48h".
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
