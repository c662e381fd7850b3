package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Dialogue engine tuning
	SessionTimeout       time.Duration
	FocusSwitchThreshold float64
	ContextWindowTurns   int

	// Availability engine tuning
	RepositoryTimeout      time.Duration
	CommitRetryMaxAttempts int
	CommitRetryBaseDelay   time.Duration
	DayStartHour           int
	DayEndHour             int
	SlotDuration           time.Duration

	// Business directory. BusinessTimezones is a comma-separated list of
	// businessID=IANA-zone pairs; DefaultTimezone backs businesses with no
	// explicit entry.
	BusinessTimezones string
	DefaultTimezone   string

	// NLU provider selection and budgets
	NLUProvider             string
	NLUTimeout              time.Duration
	NLUMaxRequestsPerMinute int
	NLUMaxTokensPerMinute   int
	NLUQueueDepth           int

	// AWS / Bedrock (only used when NLUProvider is "bedrock")
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionTimeout:       getEnvAsDuration("SESSION_TIMEOUT", time.Hour),
		FocusSwitchThreshold: getEnvAsFloat("FOCUS_SWITCH_THRESHOLD", 0.7),
		ContextWindowTurns:   getEnvAsInt("CONTEXT_WINDOW_TURNS", 20),

		RepositoryTimeout:      getEnvAsDuration("REPOSITORY_TIMEOUT", 5*time.Second),
		CommitRetryMaxAttempts: getEnvAsInt("COMMIT_RETRY_MAX_ATTEMPTS", 3),
		CommitRetryBaseDelay:   getEnvAsDuration("COMMIT_RETRY_BASE_DELAY", 200*time.Millisecond),
		DayStartHour:           getEnvAsInt("DAY_START_HOUR", 0),
		DayEndHour:             getEnvAsInt("DAY_END_HOUR", 24),
		SlotDuration:           getEnvAsDuration("SLOT_DURATION", time.Hour),

		BusinessTimezones: getEnv("BUSINESS_TIMEZONES", ""),
		DefaultTimezone:   getEnv("DEFAULT_TIMEZONE", "UTC"),

		NLUProvider:            strings.ToLower(strings.TrimSpace(getEnv("NLU_PROVIDER", "rules"))),
		NLUTimeout:              getEnvAsDuration("NLU_TIMEOUT", 10*time.Second),
		NLUMaxRequestsPerMinute: getEnvAsInt("NLU_MAX_REQUESTS_PER_MINUTE", 20),
		NLUMaxTokensPerMinute:   getEnvAsInt("NLU_MAX_TOKENS_PER_MINUTE", 16000),
		NLUQueueDepth:           getEnvAsInt("NLU_QUEUE_DEPTH", 64),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
