package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all runtime settings, loaded from environment variables.
type Config struct {
	AppEnv    string
	LogLevel  string
	LogFormat string

	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// Storage. DATABASE_URL selects Postgres; otherwise SQLITE_PATH selects
	// SQLite; "memory" keeps everything in-process (local development only).
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// Payment provider selection and credentials.
	PaymentProvider string
	ProviderTimeout time.Duration
	WebhookSecret   string

	OmiseSecretKey string
	OmisePublicKey string

	StripeSecretKey string

	SCBBaseURL   string
	SCBAPIKey    string
	SCBAPISecret string
	SCBBillerID  string
}

// Load reads configuration from the environment and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "duangpay"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "duangpay.sqlite"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PaymentProvider: strings.ToLower(getEnv("PAYMENT_PROVIDER", "omise")),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),

		OmiseSecretKey: os.Getenv("OMISE_SECRET_KEY"),
		OmisePublicKey: os.Getenv("OMISE_PUBLIC_KEY"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),

		SCBBaseURL:   getEnv("SCB_BASE_URL", "https://api-sandbox.partners.scb"),
		SCBAPIKey:    os.Getenv("SCB_API_KEY"),
		SCBAPISecret: os.Getenv("SCB_API_SECRET"),
		SCBBillerID:  os.Getenv("SCB_BILLER_ID"),
	}

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", ""))
	if cfg.StoreDriver == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = "postgres"
		} else {
			cfg.StoreDriver = "sqlite"
		}
	}
	switch cfg.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.RedisDB = db
	cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false)
	if err != nil {
		return nil, err
	}

	timeout, err := getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ProviderTimeout = timeout

	switch cfg.PaymentProvider {
	case "omise", "stripe", "scb":
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
