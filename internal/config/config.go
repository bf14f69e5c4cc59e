package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"shijian-backend/internal/assistant"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Gemini AI (optional, analysis falls back to the built-in assistant)
	GeminiAPIKey         string
	GeminiConcurrentReqs int
	GeminiRequestsPerMin int

	// Assistant simulation
	AssistantCatalogFile    string
	AssistantHandshakeDelay time.Duration
	AssistantThinkMin       time.Duration
	AssistantThinkMax       time.Duration
	AssistantCharMin        time.Duration
	AssistantCharMax        time.Duration
	AssistantFailureRate    float64
	AssistantFailurePenalty time.Duration

	// Chat sessions
	ChatSessionTTL time.Duration

	// Caching
	CacheTTLHours       int
	SearchCacheTTLHours int

	// Workers
	WorkerCount int

	// Poem data files for cmd/seed
	DataDir string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	defaults := assistant.DefaultStreamConfig()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:   getEnvOrDefault("LOG_FILE", ""),

		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GeminiRequestsPerMin: getEnvAsIntOrDefault("GEMINI_REQUESTS_PER_MINUTE", 15),

		AssistantCatalogFile:    getEnvOrDefault("ASSISTANT_CATALOG_FILE", ""),
		AssistantHandshakeDelay: getEnvAsDurationOrDefault("ASSISTANT_HANDSHAKE_DELAY", defaults.HandshakeDelay),
		AssistantThinkMin:       getEnvAsDurationOrDefault("ASSISTANT_THINK_MIN", defaults.ThinkMin),
		AssistantThinkMax:       getEnvAsDurationOrDefault("ASSISTANT_THINK_MAX", defaults.ThinkMax),
		AssistantCharMin:        getEnvAsDurationOrDefault("ASSISTANT_CHAR_MIN", defaults.CharMin),
		AssistantCharMax:        getEnvAsDurationOrDefault("ASSISTANT_CHAR_MAX", defaults.CharMax),
		AssistantFailureRate:    getEnvAsFloatOrDefault("ASSISTANT_FAILURE_RATE", defaults.FailureRate),
		AssistantFailurePenalty: getEnvAsDurationOrDefault("ASSISTANT_FAILURE_PENALTY", defaults.FailurePenalty),

		ChatSessionTTL: getEnvAsDurationOrDefault("CHAT_SESSION_TTL", 30*time.Minute),

		CacheTTLHours:       getEnvAsIntOrDefault("CACHE_TTL_HOURS", 24),
		SearchCacheTTLHours: getEnvAsIntOrDefault("SEARCH_CACHE_TTL_HOURS", 12),

		WorkerCount: getEnvAsIntOrDefault("WORKER_COUNT", 2),

		DataDir:     getEnvOrDefault("DATA_DIR", "./data"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// LoadTools reads the settings used by the maintenance commands, which only
// talk to PostgreSQL.
func LoadTools() *Config {
	godotenv.Load()

	return &Config{
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "text"),
		LogFile:     getEnvOrDefault("LOG_FILE", ""),
		DataDir:     getEnvOrDefault("DATA_DIR", "./data"),
	}
}

// StreamConfig returns the assistant latency profile.
func (c *Config) StreamConfig() assistant.StreamConfig {
	return assistant.StreamConfig{
		HandshakeDelay: c.AssistantHandshakeDelay,
		ThinkMin:       c.AssistantThinkMin,
		ThinkMax:       c.AssistantThinkMax,
		CharMin:        c.AssistantCharMin,
		CharMax:        c.AssistantCharMax,
		FailureRate:    c.AssistantFailureRate,
		FailurePenalty: c.AssistantFailurePenalty,
	}
}

// Validate lists configuration problems that do not stop the server but
// should be visible on the health endpoint.
func (c *Config) Validate() []string {
	var problems []string

	if c.AssistantFailureRate < 0 || c.AssistantFailureRate > 1 {
		problems = append(problems, fmt.Sprintf("ASSISTANT_FAILURE_RATE must be within [0, 1], got %g", c.AssistantFailureRate))
	}
	if c.AssistantThinkMax < c.AssistantThinkMin {
		problems = append(problems, "ASSISTANT_THINK_MAX is shorter than ASSISTANT_THINK_MIN")
	}
	if c.AssistantCharMax < c.AssistantCharMin {
		problems = append(problems, "ASSISTANT_CHAR_MAX is shorter than ASSISTANT_CHAR_MIN")
	}
	if c.CacheTTLHours <= 0 {
		problems = append(problems, "CACHE_TTL_HOURS must be positive")
	}
	if c.SearchCacheTTLHours <= 0 {
		problems = append(problems, "SEARCH_CACHE_TTL_HOURS must be positive")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "WORKER_COUNT must be positive")
	}
	if c.GeminiAPIKey == "" {
		problems = append(problems, "GEMINI_API_KEY is not set, poem analysis uses the built-in assistant")
	}

	return problems
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c *Config) SearchCacheTTL() time.Duration {
	return time.Duration(c.SearchCacheTTLHours) * time.Hour
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvAsDurationOrDefault accepts Go durations ("150ms") or a bare number
// of milliseconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
