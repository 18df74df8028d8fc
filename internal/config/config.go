package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime tunable. It is built once in main and passed
// into constructors explicitly so tests can run multiple configurations in
// the same process.
type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string

	ChatModel      string
	EmbeddingModel string

	// LLM client resilience tunables.
	LLMRequestTimeout    time.Duration
	LLMMaxAttempts       int
	LLMBackoffBase       time.Duration
	LLMRateLimitCooldown time.Duration
	LLMMaxOutputTokens   int
	LLMInputCharCap      int
	LLMRequestsPerMinute float64

	// Ingestion pipeline tunables.
	ChunkWindow    int
	ChunkOverlap   int
	MinTextChars   int
	MaxUploadBytes int64

	// Query-time tunables.
	TopK              int
	MinSimilarity     float64
	ContextCharBudget int
}

// Load reads .env (if present) and the environment, applies defaults, and
// validates required settings.
func Load() (*Config, error) {
	// Load .env file if it exists; environment variables win otherwise.
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "legaldoc.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),

		ChatModel:      getEnv("LLM_CHAT_MODEL", "gemini-1.5-flash-latest"),
		EmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", "text-embedding-004"),

		LLMRequestTimeout:    getEnvAsDuration("LLM_REQUEST_TIMEOUT", 30*time.Second),
		LLMMaxAttempts:       getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		LLMBackoffBase:       getEnvAsDuration("LLM_BACKOFF_BASE", 2*time.Second),
		LLMRateLimitCooldown: getEnvAsDuration("LLM_RATE_LIMIT_COOLDOWN", 20*time.Second),
		LLMMaxOutputTokens:   getEnvAsInt("LLM_MAX_OUTPUT_TOKENS", 2000),
		LLMInputCharCap:      getEnvAsInt("LLM_INPUT_CHAR_CAP", 24000),
		LLMRequestsPerMinute: getEnvAsFloat("LLM_REQUESTS_PER_MINUTE", 60),

		ChunkWindow:    getEnvAsInt("CHUNK_WINDOW", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
		MinTextChars:   getEnvAsInt("MIN_TEXT_CHARS", 32),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 50*1024*1024)),

		TopK:              getEnvAsInt("RETRIEVAL_TOP_K", 5),
		MinSimilarity:     getEnvAsFloat("RETRIEVAL_MIN_SIMILARITY", 0.35),
		ContextCharBudget: getEnvAsInt("CONTEXT_CHAR_BUDGET", 8000),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.LLMMaxAttempts < 1 {
		return nil, fmt.Errorf("LLM_MAX_ATTEMPTS must be at least 1, got %d", cfg.LLMMaxAttempts)
	}
	if cfg.ChunkOverlap >= cfg.ChunkWindow {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_WINDOW (%d)", cfg.ChunkOverlap, cfg.ChunkWindow)
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
