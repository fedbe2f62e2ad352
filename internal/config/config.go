package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Stripe payment gateway configuration
	Stripe StripeConfig

	// Redis configuration (optional - finalize locks fall back to in-process)
	Redis RedisConfig

	// Kafka configuration (optional - notifications fall back to logging)
	Kafka KafkaConfig

	// Booking workflow configuration
	Booking BookingConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	EnableRequestLog bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// StripeConfig holds Stripe configuration
type StripeConfig struct {
	SecretKey        string        // sk_... (SECRET - never expose to client)
	WebhookSecret    string        // whsec_... (SECRET - never log)
	WebhookTolerance time.Duration // accepted clock skew for webhook timestamps
	Currency         string        // ISO currency, lower case
	APIURL           string        // override for tests and stripe-mock
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers            []string
	BookingEventsTopic string
	GroupID            string
	PublishRetries     int
}

// BookingConfig holds booking workflow configuration
type BookingConfig struct {
	PendingTTL          time.Duration // PENDING bookings older than this are expired
	ReconcileInterval   time.Duration
	FinalizeMaxAttempts int
	FinalizeBackoff     time.Duration
	MetadataValueLimit  int // max characters per gateway metadata value
	MaxMetadataChunks   int
	InsurancePlansFile  string // optional yaml overriding the built-in plans
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := FromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv reads configuration without validating it. Processes that only need
// part of it (the notifier) check their own requirements.
func FromEnv() *Config {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),

			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		Stripe: StripeConfig{
			SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvAsDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			Currency:         strings.ToLower(getEnv("STRIPE_CURRENCY", "eur")),
			APIURL:           getEnv("STRIPE_API_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvAsSlice("KAFKA_BROKERS", nil),
			BookingEventsTopic: getEnv("KAFKA_BOOKING_EVENTS_TOPIC", "booking.confirmed"),
			GroupID:            getEnv("KAFKA_GROUP_ID", "booking-notifier"),
			PublishRetries:     getEnvAsInt("KAFKA_PUBLISH_RETRIES", 3),
		},
		Booking: BookingConfig{
			PendingTTL:          getEnvAsDuration("BOOKING_PENDING_TTL", 24*time.Hour),
			ReconcileInterval:   getEnvAsDuration("BOOKING_RECONCILE_INTERVAL", 5*time.Minute),
			FinalizeMaxAttempts: getEnvAsInt("BOOKING_FINALIZE_MAX_ATTEMPTS", 5),
			FinalizeBackoff:     getEnvAsDuration("BOOKING_FINALIZE_BACKOFF", 200*time.Millisecond),
			MetadataValueLimit:  getEnvAsInt("BOOKING_METADATA_VALUE_LIMIT", 500),
			MaxMetadataChunks:   getEnvAsInt("BOOKING_MAX_METADATA_CHUNKS", 40),
			InsurancePlansFile:  getEnv("INSURANCE_PLANS_FILE", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
	}

	return config
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	if c.Stripe.WebhookTolerance <= 0 {
		return fmt.Errorf("STRIPE_WEBHOOK_TOLERANCE must be positive")
	}

	if c.Booking.FinalizeMaxAttempts < 1 {
		return fmt.Errorf("BOOKING_FINALIZE_MAX_ATTEMPTS must be at least 1")
	}

	// Stripe rejects metadata values above 500 characters
	if c.Booking.MetadataValueLimit < 1 || c.Booking.MetadataValueLimit > 500 {
		return fmt.Errorf("BOOKING_METADATA_VALUE_LIMIT must be between 1 and 500")
	}

	// Stripe allows 50 metadata keys; a few are reserved for references
	if c.Booking.MaxMetadataChunks < 1 || c.Booking.MaxMetadataChunks > 45 {
		return fmt.Errorf("BOOKING_MAX_METADATA_CHUNKS must be between 1 and 45")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "5m") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
