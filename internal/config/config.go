package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	GitHubToken             string
	GitHubAPIURL            string
	GitHubRequestsPerSecond float64
	GitHubPageSize          int

	DataDir string

	QdrantURL              string
	QdrantVectorSize       int
	QdrantCollectionPrefix string

	EmbeddingBaseURL   string
	EmbeddingModelName string
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string

	ChunkSize         int
	ChunkOverlap      int
	IssueContextChars int

	WatermarkBuffer time.Duration

	LogLevel  slog.Level
	LogFormat string
	LogFile   string

	APIPort string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		GitHubToken:            os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL:           getEnv("GITHUB_API_URL", ""),
		DataDir:                getEnv("DATA_DIR", "./data"),
		QdrantURL:              getEnv("QDRANT_URL", "http://localhost:6334"),
		QdrantCollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", ""),
		EmbeddingBaseURL:       getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName:     getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		LLMBaseURL:             getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:           getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:              getEnv("LLM_API_KEY", ""),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:                getEnv("LOG_FILE", ""),
		APIPort:                getEnv("API_PORT", "9000"),
	}

	var err error
	if cfg.GitHubRequestsPerSecond, err = getFloat("GITHUB_REQUESTS_PER_SECOND", 0); err != nil {
		return nil, err
	}
	if cfg.GitHubPageSize, err = getInt("GITHUB_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getInt("CHUNK_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getInt("CHUNK_OVERLAP", 100); err != nil {
		return nil, err
	}
	if cfg.IssueContextChars, err = getInt("ISSUE_CONTEXT_CHARS", 100); err != nil {
		return nil, err
	}
	if cfg.WatermarkBuffer, err = ParseBuffer(getEnv("WATERMARK_BUFFER", "0")); err != nil {
		return nil, fmt.Errorf("WATERMARK_BUFFER: %w", err)
	}
	if cfg.LogLevel, err = ParseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	// QDRANT_VECTOR_SIZE must match the output size of the embeddings model.
	// Changing it requires recreating the collections.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks the values flags may have overridden after Load.
func (c *Config) Validate() error {
	if c.GitHubPageSize < 1 || c.GitHubPageSize > 100 {
		return fmt.Errorf("GITHUB_PAGE_SIZE must be between 1 and 100, got %d", c.GitHubPageSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be at least 0 and smaller than CHUNK_SIZE")
	}
	if c.IssueContextChars < 0 {
		return fmt.Errorf("ISSUE_CONTEXT_CHARS must not be negative")
	}
	if c.WatermarkBuffer < 0 {
		return fmt.Errorf("WATERMARK_BUFFER must not be negative")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseBuffer accepts a Go duration ("90s", "5m") or a bare number of seconds.
func ParseBuffer(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}

// loadDotEnv loads the first .env found walking up from the working directory.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}
