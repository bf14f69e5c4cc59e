package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsFloatOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal float64
		expected   float64
	}{
		{"parses float", "TEST_FLOAT_1", "0.25", 0.1, 0.25},
		{"uses default for empty", "TEST_FLOAT_2", "", 0.1, 0.1},
		{"uses default for garbage", "TEST_FLOAT_3", "often", 0.1, 0.1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsFloatOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %g, got %g", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"parses go duration", "TEST_DUR_1", "1.5s", time.Second, 1500 * time.Millisecond},
		{"parses bare milliseconds", "TEST_DUR_2", "80", time.Second, 80 * time.Millisecond},
		{"uses default for empty", "TEST_DUR_3", "", time.Second, time.Second},
		{"uses default for garbage", "TEST_DUR_4", "soon", time.Second, time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsDurationOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestLoad_AssistantDefaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/shijian")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("JWT_SECRET", "secret")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg := Load()
	stream := cfg.StreamConfig()

	if stream.ThinkMin != 500*time.Millisecond || stream.ThinkMax != 2*time.Second {
		t.Errorf("Unexpected thinking delay range %v..%v", stream.ThinkMin, stream.ThinkMax)
	}
	if stream.CharMin != 30*time.Millisecond || stream.CharMax != 80*time.Millisecond {
		t.Errorf("Unexpected per-character delay range %v..%v", stream.CharMin, stream.CharMax)
	}
	if stream.FailureRate != 0.1 {
		t.Errorf("Expected failure rate 0.1, got %g", stream.FailureRate)
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Errorf("Expected analysis cache TTL 24h, got %v", cfg.CacheTTL())
	}
	if cfg.SearchCacheTTL() != 12*time.Hour {
		t.Errorf("Expected search cache TTL 12h, got %v", cfg.SearchCacheTTL())
	}
	if cfg.GeminiRequestsPerMin != 15 {
		t.Errorf("Expected 15 Gemini requests per minute, got %d", cfg.GeminiRequestsPerMin)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		GeminiAPIKey:         "key",
		AssistantFailureRate: 0.1,
		AssistantThinkMin:    time.Second,
		AssistantThinkMax:    2 * time.Second,
		CacheTTLHours:        24,
		SearchCacheTTLHours:  12,
		WorkerCount:          2,
	}
	if problems := cfg.Validate(); len(problems) != 0 {
		t.Fatalf("Expected no problems, got %v", problems)
	}

	cfg.AssistantFailureRate = 1.5
	cfg.AssistantThinkMax = 0
	cfg.GeminiAPIKey = ""
	if problems := cfg.Validate(); len(problems) != 3 {
		t.Errorf("Expected 3 problems, got %d: %v", len(problems), problems)
	}
}

func TestLoadTools_OnlyNeedsDatabase(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/shijian")
	os.Setenv("DATA_DIR", "/srv/poems")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("DATA_DIR")
	}()

	cfg := LoadTools()
	if cfg.DatabaseURL != "postgres://localhost/shijian" {
		t.Errorf("Unexpected database URL %q", cfg.DatabaseURL)
	}
	if cfg.DataDir != "/srv/poems" {
		t.Errorf("Expected data dir '/srv/poems', got %q", cfg.DataDir)
	}
}
