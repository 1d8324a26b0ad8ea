package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the engine settings shared by every binary.
type Config struct {
	DatabaseURL string
	DBSchemas   []string // postgres only; empty means current_schema()
	LogLevel    slog.Level

	PoolSize           int
	PoolAcquireTimeout time.Duration
	PoolIdleTimeout    time.Duration
	PoolAcquireRetries int

	QueryTimeout   time.Duration
	SearchTimeout  time.Duration
	RequestTimeout time.Duration
	DefaultLimit   int
	SampleRows     int

	CacheTTL        time.Duration
	CacheMaxEntries int

	EmbeddingURL        string
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBatchSize  int
	EmbeddingDimensions int

	ChromaURL        string
	ChromaCollection string
	RedisURL         string

	HistoryDBPath        string
	HistoryFlushInterval time.Duration

	MaxFileSize      int64
	AllowedFileTypes []string
	IngestWorkers    int
	SearchTopK       int
	MinSimilarity    float64
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}

// Load reads the engine configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		LogLevel:             slog.LevelInfo,
		PoolSize:             10,
		PoolAcquireTimeout:   2 * time.Second,
		PoolIdleTimeout:      10 * time.Minute,
		PoolAcquireRetries:   3,
		QueryTimeout:         2 * time.Second,
		SearchTimeout:        2 * time.Second,
		RequestTimeout:       5 * time.Second,
		DefaultLimit:         100,
		SampleRows:           5,
		CacheTTL:             5 * time.Minute,
		CacheMaxEntries:      1000,
		EmbeddingURL:         os.Getenv("EMBEDDING_URL"),
		EmbeddingModel:       "all-MiniLM-L6-v2",
		EmbeddingAPIKey:      os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingBatchSize:   32,
		EmbeddingDimensions:  384,
		ChromaURL:            os.Getenv("CHROMA_URL"),
		ChromaCollection:     "hr_documents",
		RedisURL:             os.Getenv("REDIS_URL"),
		HistoryDBPath:        "hrquery.db",
		HistoryFlushInterval: time.Second,
		MaxFileSize:          10 << 20,
		AllowedFileTypes:     []string{".pdf", ".docx", ".txt", ".csv"},
		IngestWorkers:        4,
		SearchTopK:           15,
		MinSimilarity:        0.2,
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("DB_SCHEMAS"); v != "" {
		cfg.DBSchemas = splitList(v)
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("CHROMA_COLLECTION"); v != "" {
		cfg.ChromaCollection = v
	}
	if v := os.Getenv("HISTORY_DB_PATH"); v != "" {
		cfg.HistoryDBPath = v
	}
	if v := os.Getenv("ALLOWED_FILE_TYPES"); v != "" {
		cfg.AllowedFileTypes = nil
		for _, ext := range splitList(v) {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			cfg.AllowedFileTypes = append(cfg.AllowedFileTypes, ext)
		}
		if len(cfg.AllowedFileTypes) == 0 {
			return nil, fmt.Errorf("ALLOWED_FILE_TYPES must list at least one extension")
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"POOL_SIZE", &cfg.PoolSize},
		{"DEFAULT_LIMIT", &cfg.DefaultLimit},
		{"CACHE_MAX_ENTRIES", &cfg.CacheMaxEntries},
		{"EMBEDDING_BATCH_SIZE", &cfg.EmbeddingBatchSize},
		{"EMBEDDING_DIMENSIONS", &cfg.EmbeddingDimensions},
		{"INGEST_WORKERS", &cfg.IngestWorkers},
		{"SEARCH_TOP_K", &cfg.SearchTopK},
	}
	for _, f := range ints {
		if err := positiveInt(f.name, f.dst); err != nil {
			return nil, err
		}
	}
	// Zero retries and zero sample rows are legitimate.
	counts := []struct {
		name string
		dst  *int
	}{
		{"POOL_ACQUIRE_RETRIES", &cfg.PoolAcquireRetries},
		{"SAMPLE_ROWS", &cfg.SampleRows},
	}
	for _, f := range counts {
		if err := nonNegativeInt(f.name, f.dst); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"POOL_ACQUIRE_TIMEOUT", &cfg.PoolAcquireTimeout},
		{"POOL_IDLE_TIMEOUT", &cfg.PoolIdleTimeout},
		{"QUERY_TIMEOUT", &cfg.QueryTimeout},
		{"SEARCH_TIMEOUT", &cfg.SearchTimeout},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"CACHE_TTL", &cfg.CacheTTL},
		{"HISTORY_FLUSH_INTERVAL", &cfg.HistoryFlushInterval},
	}
	for _, f := range durations {
		if err := duration(f.name, f.dst); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_FILE_SIZE value %q: must be a positive integer", v)
		}
		cfg.MaxFileSize = n
	}
	if v := os.Getenv("MIN_SIMILARITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("invalid MIN_SIMILARITY value %q: must be between 0 and 1", v)
		}
		cfg.MinSimilarity = f
	}

	return cfg, nil
}

func positiveInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s value %q: must be a positive integer", name, v)
	}
	*dst = n
	return nil
}

func nonNegativeInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s value %q: must be a non-negative integer", name, v)
	}
	*dst = n
	return nil
}

func duration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s value %q: must be positive", name, v)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
