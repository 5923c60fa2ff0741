// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	MongoURI string
	DBName   string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWTExpiresIn string
	// MasterKey encrypts tenant provider credentials at rest.
	MasterKey string

	CORSOrigins []string

	// Vector index service.
	IndexURL       string
	IndexAPIKey    string
	IndexBatchSize int
	IndexRPS       float64

	// Chunking parameters.
	ChunkSize    int
	ChunkOverlap int

	// Retrieval parameters.
	TopK            int
	MaxTokens       int
	MaxContextChars int

	// Server-level provider fallbacks.
	DefaultProvider  string
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	FynorraAPIKey    string
	GeminiAPIKey     string
	CompletionRPS    float64

	// Upload handling.
	MaxFileSize    int64
	AllowedTypes   []string
	FileStorageDir string

	// Worker tuning.
	WorkerConcurrency int
	JobMaxAge         int // minutes a job may sit in processing before reaping

	RateLimitReqs   int
	RateLimitWindow int

	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/rag_knowledge"),
		DBName:   getEnv("DB_NAME", "rag_knowledge"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		MasterKey:    getEnv("MASTER_KEY", ""),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		IndexURL:       getEnv("INDEX_URL", ""),
		IndexAPIKey:    getEnv("INDEX_API_KEY", ""),
		IndexBatchSize: getEnvInt("INDEX_BATCH_SIZE", 64),
		IndexRPS:       getEnvFloat("INDEX_RPS", 10),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		TopK:            getEnvInt("TOP_K", 5),
		MaxTokens:       getEnvInt("MAX_TOKENS", 500),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 8000),

		DefaultProvider:  getEnv("DEFAULT_PROVIDER", "openrouter"),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		FynorraAPIKey:    getEnv("FYNORRA_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		CompletionRPS:    getEnvFloat("COMPLETION_RPS", 5),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 10485760), // 10MB
		AllowedTypes:   strings.Split(getEnv("ALLOWED_FILE_TYPES", "pdf,html,txt,md,xlsx"), ","),
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./data/uploads"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		JobMaxAge:         getEnvInt("JOB_MAX_AGE_MINUTES", 30),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("MASTER_KEY is required")
	}
	if cfg.IndexURL == "" {
		return nil, fmt.Errorf("INDEX_URL is required")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
