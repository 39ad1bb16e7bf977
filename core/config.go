package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the image generation service.
type Config struct {
	// HTTP server
	Host string
	Port int

	// Validation bounds
	MaxPromptLength int
	MinGuidance     int
	MaxGuidance     int
	DefaultGuidance int

	// Admission control
	RateLimitMaxRequests int           // Requests allowed per identity per window
	RateLimitWindow      time.Duration // Window duration
	AdminKeyHash         string        // bcrypt hash of the admin bypass key (empty disables bypass)
	RedisAddr            string        // Optional shared counter store; empty uses in-memory

	// Queue
	QueueCapacity int

	// Provider dispatch
	ProviderTimeout      time.Duration
	ProvidersConfigPath  string // Path to providers.yaml
	OpenAIAPIKey         string
	OpenAIImageModel     string
	OpenAIBaseURL        string
	DezgoAPIKey          string
	DezgoBaseURL         string
	AllowSelfSignedCerts bool

	// Storage
	ImagesDir     string // Directory for stored image blobs
	PublicBaseURL string // URL prefix under which stored images are served

	// Metadata database
	DatabasePath   string
	MigrationsPath string

	// Tagging
	TaggingModel   string
	TaggingTimeout time.Duration

	// Maintenance
	JanitorSchedule   string        // Cron expression for maintenance jobs
	OrphanGracePeriod time.Duration // Minimum blob age before orphan sweep may delete it

	// Shutdown
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables.
// Call godotenv.Load() before this to pick up a .env file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Host: getEnvOrDefault("HOST", "0.0.0.0"),
		Port: parseIntEnv("PORT", 8080),

		MaxPromptLength: parseIntEnv("MAX_PROMPT_LENGTH", 2000),
		MinGuidance:     parseIntEnv("MIN_GUIDANCE", 1),
		MaxGuidance:     parseIntEnv("MAX_GUIDANCE", 20),
		DefaultGuidance: parseIntEnv("DEFAULT_GUIDANCE", 7),

		RateLimitMaxRequests: parseIntEnv("RATE_LIMIT_MAX_REQUESTS", 10),
		RateLimitWindow:      parseDurationEnv("RATE_LIMIT_WINDOW", 60*time.Second),
		AdminKeyHash:         os.Getenv("ADMIN_KEY_HASH"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),

		QueueCapacity: parseIntEnv("QUEUE_CAPACITY", 100),

		ProviderTimeout:      parseDurationEnv("PROVIDER_TIMEOUT", 90*time.Second),
		ProvidersConfigPath:  getEnvOrDefault("PROVIDERS_CONFIG", "providers.yaml"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIImageModel:     getEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIBaseURL:        getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DezgoAPIKey:          os.Getenv("DEZGO_API_KEY"),
		DezgoBaseURL:         getEnvOrDefault("DEZGO_BASE_URL", "https://api.dezgo.com"),
		AllowSelfSignedCerts: parseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),

		ImagesDir:     getEnvOrDefault("IMAGES_DIR", "public/images"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "/images"),

		DatabasePath:   getEnvOrDefault("DATABASE_PATH", "data/imageforge.db"),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "file://db/migrations"),

		TaggingModel:   getEnvOrDefault("TAGGING_MODEL", "gpt-4o-mini"),
		TaggingTimeout: parseDurationEnv("TAGGING_TIMEOUT", 30*time.Second),

		JanitorSchedule:   getEnvOrDefault("JANITOR_SCHEDULE", "@every 5m"),
		OrphanGracePeriod: parseDurationEnv("ORPHAN_GRACE_PERIOD", time.Hour),

		ShutdownTimeout: parseDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep in the pipeline.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d: must be in 1-65535", c.Port)
	}
	if c.MaxPromptLength <= 0 {
		return fmt.Errorf("invalid MAX_PROMPT_LENGTH %d: must be positive", c.MaxPromptLength)
	}
	if c.MinGuidance > c.MaxGuidance {
		return fmt.Errorf("invalid guidance bounds: MIN_GUIDANCE %d > MAX_GUIDANCE %d", c.MinGuidance, c.MaxGuidance)
	}
	if c.DefaultGuidance < c.MinGuidance || c.DefaultGuidance > c.MaxGuidance {
		return fmt.Errorf("DEFAULT_GUIDANCE %d outside [%d, %d]", c.DefaultGuidance, c.MinGuidance, c.MaxGuidance)
	}
	if c.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_MAX_REQUESTS %d: must be positive", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("invalid QUEUE_CAPACITY %d: must be positive", c.QueueCapacity)
	}
	return nil
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to parse boolean environment variable with default value
func parseBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// Helper function to parse duration environment variable with default value.
// Accepts Go duration strings ("30s", "5m") or bare integers treated as seconds.
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on
// AllowSelfSignedCerts and the given timeout.
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if cfg != nil && cfg.AllowSelfSignedCerts {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// GetDefaultHTTPClient returns an HTTP client with default timeout (30s) configured with TLS settings
func GetDefaultHTTPClient(cfg *Config) *http.Client {
	return GetHTTPClient(cfg, 30*time.Second)
}
