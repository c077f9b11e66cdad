package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	RequestTimeout   time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	EmbeddingProvider string
	EmbeddingURL      string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingDim      int

	RetrievalK            int
	ContextPerMemoryChars int
	// DegradeOnRetrievalOutage keeps a turn alive with empty context when the
	// vector search is down, instead of failing the whole invocation.
	DegradeOnRetrievalOutage bool

	GenerationMode     string
	GenerationHTTPURL  string
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int

	DefaultPersonaID string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "kindred"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		EmbeddingProvider: envOrDefault("EMBEDDING_PROVIDER", "auto"),
		EmbeddingURL:      envOrDefault("EMBEDDING_URL", "https://api.openai.com/v1/embeddings"),
		EmbeddingAPIKey:   stringsTrimSpace("EMBEDDING_API_KEY"),
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      1536,

		RetrievalK:               3,
		ContextPerMemoryChars:    500,
		DegradeOnRetrievalOutage: true,

		GenerationMode:     envOrDefault("GENERATION_MODE", "auto"),
		GenerationHTTPURL:  stringsTrimSpace("GENERATION_HTTP_URL"),
		AnthropicAPIKey:    stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:     envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicMaxTokens: 1024,

		DefaultPersonaID: envOrDefault("APP_DEFAULT_PERSONA", "warm"),

		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  60 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("APP_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalK, err = intFromEnv("RETRIEVAL_K", cfg.RetrievalK)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextPerMemoryChars, err = intFromEnv("CONTEXT_PER_MEMORY_CHARS", cfg.ContextPerMemoryChars)
	if err != nil {
		return Config{}, err
	}
	cfg.DegradeOnRetrievalOutage, err = boolFromEnv("RETRIEVAL_DEGRADE_TO_EMPTY", cfg.DegradeOnRetrievalOutage)
	if err != nil {
		return Config{}, err
	}
	cfg.AnthropicMaxTokens, err = intFromEnv("ANTHROPIC_MAX_TOKENS", cfg.AnthropicMaxTokens)
	if err != nil {
		return Config{}, err
	}

	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.RetrievalK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_K must be positive")
	}
	if cfg.ContextPerMemoryChars <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_PER_MEMORY_CHARS must be positive")
	}
	if cfg.AnthropicMaxTokens <= 0 {
		return Config{}, fmt.Errorf("ANTHROPIC_MAX_TOKENS must be positive")
	}
	if cfg.RequestTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_REQUEST_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
