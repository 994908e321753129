package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all environment-derived settings for the gateway and the
// conversation engine. Phase quotas have a single authoritative source here;
// callers never hard-code them.
type Config struct {
	Port        string
	Environment string // "dev" relaxes origin checks and widens CORS

	// Gateway
	AllowedOrigins     string // comma-separated, supports *.domain wildcards
	GeminiAPIKeys      string // comma-separated credential pool, one picked at random per request
	ChatAPIEndpoint    string
	CrestAPIEndpoint   string
	DatabaseURL        string // optional; enables the Postgres rate-limit store
	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	// Conversation quotas
	AIQuestionQuota  int
	MaxFollowUpDepth int

	// LenientAnchor keeps the historical behavior of silently degrading to
	// empty anchor context when a follow-up parent answer cannot be found.
	// Off by default: unresolved anchors fail loudly.
	LenientAnchor bool
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "dev"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
		GeminiAPIKeys:  getEnv("GEMINI_API_KEY", ""),
		ChatAPIEndpoint: getEnv("API_ENDPOINT",
			"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"),
		CrestAPIEndpoint: getEnv("CREST_API_ENDPOINT",
			"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-preview-image-generation:generateContent"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", DefaultRateLimitPerWindow),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),

		AIQuestionQuota:  getIntEnv("AI_QUESTION_QUOTA", DefaultAIQuestionQuota),
		MaxFollowUpDepth: getIntEnv("MAX_FOLLOW_UP_DEPTH", DefaultMaxFollowUpDepth),

		LenientAnchor: getEnv("LENIENT_ANCHOR", "false") == "true",
	}
}

// Validate rejects configurations the engine cannot run with. Called once at
// startup so quota mistakes fail fast instead of mid-conversation.
func (c *Config) Validate() error {
	if c.RateLimitPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_WINDOW must be positive, got %d", c.RateLimitPerWindow)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.AIQuestionQuota <= 0 {
		return fmt.Errorf("AI_QUESTION_QUOTA must be positive, got %d", c.AIQuestionQuota)
	}
	if c.MaxFollowUpDepth <= 0 {
		return fmt.Errorf("MAX_FOLLOW_UP_DEPTH must be positive, got %d", c.MaxFollowUpDepth)
	}
	return nil
}

// IsDev reports whether the server runs with relaxed origin checks.
func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
