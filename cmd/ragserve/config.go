package main

import (
	"os"
	"strconv"
	"time"
)

// config collects everything tunable from the environment. Every field has a
// default suited to local development against a memory-only deployment.
type config struct {
	Addr string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	EmbeddingModel string

	// SearchBackend selects the unstructured store: "memory" or "redisearch".
	SearchBackend string
	RedisAddr     string

	// GraphURL selects the graph store: empty for in-memory, or a
	// falkordb://host:port/graph connection string.
	GraphURL string

	// SessionBackend selects history persistence: "memory", "redis",
	// "postgres" or "sqlite".
	SessionBackend string
	PostgresDSN    string
	SQLitePath     string
	SessionTTL     time.Duration

	TopK       int
	GraphDepth int
	LogLevel   string
}

func loadConfig() config {
	return config{
		Addr: getEnv("RAGSERVE_ADDR", ":8000"),

		LLMBaseURL:     getEnv("RAGSERVE_LLM_BASE_URL", "http://localhost:8080/v1"),
		LLMAPIKey:      getEnv("RAGSERVE_LLM_API_KEY", ""),
		LLMModel:       getEnv("RAGSERVE_LLM_MODEL", ""),
		EmbeddingModel: getEnv("RAGSERVE_EMBEDDING_MODEL", ""),

		SearchBackend: getEnv("RAGSERVE_SEARCH_BACKEND", "memory"),
		RedisAddr:     getEnv("RAGSERVE_REDIS_ADDR", "localhost:6379"),

		GraphURL: getEnv("RAGSERVE_GRAPH_URL", ""),

		SessionBackend: getEnv("RAGSERVE_SESSION_BACKEND", "memory"),
		PostgresDSN:    getEnv("RAGSERVE_POSTGRES_DSN", ""),
		SQLitePath:     getEnv("RAGSERVE_SQLITE_PATH", "ragserve.db"),
		SessionTTL:     getEnvDuration("RAGSERVE_SESSION_TTL", 0),

		TopK:       getEnvInt("RAGSERVE_TOP_K", 0),
		GraphDepth: getEnvInt("RAGSERVE_GRAPH_DEPTH", 0),
		LogLevel:   getEnv("RAGSERVE_LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
