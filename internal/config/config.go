package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every runtime setting, read once at startup.
type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	LogJSON  bool

	DatabaseURL string
	JWTSecret   string
	CORSOrigins []string

	RedisAddress      string
	KafkaBrokers      []string
	NotificationTopic string
	JaegerEndpoint    string
	ServiceName       string

	PaymentAPIURL     string
	PaymentAPIKey     string
	FulfillmentAPIURL string
	FulfillmentAPIKey string
	RecommenderAPIURL string
	RecommenderAPIKey string
	GatewayTimeout    time.Duration

	CaptureLeadDays      int
	NotificationLeadDays int
	ApprovalTokenTTL     time.Duration
	AuthorizationTTL     time.Duration
	ClaimTTL             time.Duration
	LowBalanceThreshold  decimal.Decimal
	MaxRuleBudget        decimal.Decimal
	ApprovalBaseURL      string

	JobInterval  time.Duration
	JobLockTTL   time.Duration
	JobBatchSize int
	RunJobsInAPI bool
}

// Load reads configs/.env (if present) and the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnv("LOG_FORMAT", "json") == "json",

		DatabaseURL: databaseURL(),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		RedisAddress:      os.Getenv("REDIS_ADDRESS"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "giftflow.notifications"),
		JaegerEndpoint:    os.Getenv("JAEGER_ENDPOINT"),
		ServiceName:       getEnv("SERVICE_NAME", "giftflow"),

		PaymentAPIURL:     os.Getenv("PAYMENT_API_URL"),
		PaymentAPIKey:     os.Getenv("PAYMENT_API_KEY"),
		FulfillmentAPIURL: os.Getenv("FULFILLMENT_API_URL"),
		FulfillmentAPIKey: os.Getenv("FULFILLMENT_API_KEY"),
		RecommenderAPIURL: os.Getenv("RECOMMENDER_API_URL"),
		RecommenderAPIKey: os.Getenv("RECOMMENDER_API_KEY"),
		GatewayTimeout:    time.Duration(intFromEnv("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,

		CaptureLeadDays:      intFromEnv("CAPTURE_LEAD_DAYS", 4),
		NotificationLeadDays: intFromEnv("NOTIFICATION_LEAD_DAYS", 7),
		ApprovalTokenTTL:     time.Duration(intFromEnv("APPROVAL_TOKEN_TTL_HOURS", 72)) * time.Hour,
		AuthorizationTTL:     time.Duration(intFromEnv("AUTHORIZATION_TTL_HOURS", 168)) * time.Hour,
		ClaimTTL:             time.Duration(intFromEnv("CLAIM_TTL_SECONDS", 300)) * time.Second,
		LowBalanceThreshold:  decimalFromEnv("LOW_BALANCE_THRESHOLD", decimal.NewFromInt(100)),
		MaxRuleBudget:        decimalFromEnv("MAX_RULE_BUDGET", decimal.NewFromInt(1000)),
		ApprovalBaseURL:      getEnv("APPROVAL_BASE_URL", "http://localhost:5173/approve"),

		JobInterval:  time.Duration(intFromEnv("JOB_INTERVAL_SECONDS", 300)) * time.Second,
		JobLockTTL:   time.Duration(intFromEnv("JOB_LOCK_TTL_SECONDS", 600)) * time.Second,
		JobBatchSize: intFromEnv("JOB_BATCH_SIZE", 100),
		RunJobsInAPI: boolFromEnv("RUN_JOBS_IN_API", false),
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in release mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}
	return cfg, nil
}

func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return "postgres://" + getEnv("DB_USER", "postgres") + ":" + getEnv("DB_PASSWORD", "postgres") +
		"@" + getEnv("DB_HOST", "localhost") + ":" + getEnv("DB_PORT", "5432") +
		"/" + getEnv("DB_NAME", "postgres") + "?sslmode=" + getEnv("DB_SSLMODE", "disable")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func boolFromEnv(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func decimalFromEnv(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
