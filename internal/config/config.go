package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreBackend            string
	DatabaseURL             string
	DynamoAppointmentsTable string
	DynamoPendingTable      string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	ClinicID           string
	ClinicTimezone     string
	ClinicServicesJSON string
	HoldTTL            time.Duration

	AuthJWTSecret       string
	AdminJWTSecret      string
	CORSAllowedOrigins  []string
	HoldRateLimitPerMin int
	HoldRateLimitBurst  int
	CountdownInterval   time.Duration
	ShutdownGracePeriod time.Duration

	// Email Configuration
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string
	NotifyQueueURL   string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:            strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", BackendMemory))),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DynamoAppointmentsTable: getEnv("DYNAMO_APPOINTMENTS_TABLE", "appointments"),
		DynamoPendingTable:      getEnv("DYNAMO_PENDING_TABLE", "pendingBookings"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicID:           getEnv("CLINIC_ID", "default"),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "UTC"),
		ClinicServicesJSON: getEnv("CLINIC_SERVICES_JSON", ""),
		HoldTTL:            getEnvAsDuration("HOLD_TTL", 10*time.Minute),

		AuthJWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		HoldRateLimitPerMin: getEnvAsInt("HOLD_RATE_LIMIT_PER_MIN", 30),
		HoldRateLimitBurst:  getEnvAsInt("HOLD_RATE_LIMIT_BURST", 5),
		CountdownInterval:   getEnvAsDuration("COUNTDOWN_INTERVAL", time.Second),
		ShutdownGracePeriod: getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Clinic Bookings"),
		NotifyQueueURL:   getEnv("NOTIFY_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
