// Package config loads docindex configuration from YAML and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Config holds the complete docindex configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Queue     QueueConfig     `koanf:"queue"`
	Vector    VectorConfig    `koanf:"vector"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Processor ProcessorConfig `koanf:"processor"`
	Worker    WorkerConfig    `koanf:"worker"`
	Usage     UsageConfig     `koanf:"usage"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// DatabaseConfig holds the Postgres connection used by the document registry.
type DatabaseConfig struct {
	URL             Secret   `koanf:"url"`
	MaxOpenConns    int      `koanf:"max_open_conns"`
	MaxIdleConns    int      `koanf:"max_idle_conns"`
	ConnMaxLifetime Duration `koanf:"conn_max_lifetime"`
	Migrate         bool     `koanf:"migrate"`
}

// RedisConfig holds the Redis connection.
type RedisConfig struct {
	URL    Secret `koanf:"url"` // redis://[:password@]host:port/db
	Prefix string `koanf:"prefix"`
}

// QueueConfig selects the task queue and distributed lock backend.
type QueueConfig struct {
	Backend      string   `koanf:"backend"` // redis, postgres
	TaskTTL      Duration `koanf:"task_ttl"`
	ClaimTimeout Duration `koanf:"claim_timeout"`
}

// VectorConfig selects the single vector store backend.
type VectorConfig struct {
	Backend    string `koanf:"backend"` // pgvector, qdrant, chromem
	Dimensions int    `koanf:"dimensions"`

	QdrantHost       string `koanf:"qdrant_host"`
	QdrantPort       int    `koanf:"qdrant_port"`
	QdrantTLS        bool   `koanf:"qdrant_tls"`
	QdrantAPIKey     Secret `koanf:"qdrant_api_key"`
	QdrantCollection string `koanf:"qdrant_collection"`

	ChromemPath     string `koanf:"chromem_path"` // empty keeps vectors in memory
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// EmbeddingConfig holds the embedding provider and its call policy.
type EmbeddingConfig struct {
	Provider string `koanf:"provider"` // openai, ollama
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`

	BatchSize       int      `koanf:"batch_size"`
	InterBatchDelay Duration `koanf:"inter_batch_delay"`
	RequestTimeout  Duration `koanf:"request_timeout"`

	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	MaxAttempts    int      `koanf:"max_attempts"`
	RetryBaseDelay Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  Duration `koanf:"retry_max_delay"`

	BreakerThreshold int      `koanf:"breaker_threshold"`
	BreakerRecovery  Duration `koanf:"breaker_recovery"`
}

// ChunkingConfig configures the post-processing pipeline.
type ChunkingConfig struct {
	Strategy            string `koanf:"strategy"` // paragraph, fixed, sliding
	MaxChunkSize        int    `koanf:"max_chunk_size"`
	Overlap             int    `koanf:"overlap"`
	RespectBoundaries   bool   `koanf:"respect_boundaries"`
	NormalizeWhitespace bool   `koanf:"normalize_whitespace"`
	Deduplicate         bool   `koanf:"deduplicate"`
}

// ProcessorConfig tunes the document processor.
type ProcessorConfig struct {
	BatchConcurrency int      `koanf:"batch_concurrency"`
	StaleAfter       Duration `koanf:"stale_after"`
	LockTTL          Duration `koanf:"lock_ttl"`
	StoreTimeout     Duration `koanf:"store_timeout"`
}

// WorkerConfig tunes the task worker and its scheduler.
type WorkerConfig struct {
	Concurrency      int      `koanf:"concurrency"`
	DequeueTimeout   int      `koanf:"dequeue_timeout"` // seconds
	SchedulerEnabled bool     `koanf:"scheduler_enabled"`
	RecoverInterval  Duration `koanf:"recover_interval"`
	PurgeInterval    Duration `koanf:"purge_interval"`
	PurgeAfter       Duration `koanf:"purge_after"`
}

// UsageConfig selects where usage events go.
type UsageConfig struct {
	Sink   string `koanf:"sink"` // log, redis
	Stream string `koanf:"stream"`
	MaxLen int64  `koanf:"max_len"`
}

// MetricsConfig holds the Prometheus endpoint address.
type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// defaultYAML seeds values whose zero value is meaningful (booleans).
const defaultYAML = `
database:
  migrate: true
chunking:
  respect_boundaries: true
  normalize_whitespace: true
vector:
  chromem_compress: true
worker:
  scheduler_enabled: true
`

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = Duration(5 * time.Minute)
	}

	// Queue defaults
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "docindex"
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "postgres"
	}

	// Vector defaults (chromem needs no external service)
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "chromem"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 1536 // text-embedding-3-small
	}
	if cfg.Vector.QdrantHost == "" {
		cfg.Vector.QdrantHost = "localhost"
	}
	if cfg.Vector.QdrantPort == 0 {
		cfg.Vector.QdrantPort = 6334
	}
	if cfg.Vector.QdrantCollection == "" {
		cfg.Vector.QdrantCollection = "docindex_chunks"
	}

	// Embedding defaults
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.RequestTimeout == 0 {
		cfg.Embedding.RequestTimeout = Duration(60 * time.Second)
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 10
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 3
	}
	if cfg.Embedding.RetryBaseDelay == 0 {
		cfg.Embedding.RetryBaseDelay = Duration(time.Second)
	}
	if cfg.Embedding.RetryMaxDelay == 0 {
		cfg.Embedding.RetryMaxDelay = Duration(30 * time.Second)
	}
	if cfg.Embedding.BreakerThreshold == 0 {
		cfg.Embedding.BreakerThreshold = 5
	}
	if cfg.Embedding.BreakerRecovery == 0 {
		cfg.Embedding.BreakerRecovery = Duration(30 * time.Second)
	}

	// Chunking defaults
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "paragraph"
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 1000
	}

	// Processor defaults
	if cfg.Processor.BatchConcurrency == 0 {
		cfg.Processor.BatchConcurrency = 3
	}
	if cfg.Processor.StaleAfter == 0 {
		cfg.Processor.StaleAfter = Duration(30 * time.Minute)
	}
	if cfg.Processor.LockTTL == 0 {
		cfg.Processor.LockTTL = Duration(10 * time.Minute)
	}
	if cfg.Processor.StoreTimeout == 0 {
		cfg.Processor.StoreTimeout = Duration(30 * time.Second)
	}

	// Worker defaults
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 2
	}
	if cfg.Worker.DequeueTimeout == 0 {
		cfg.Worker.DequeueTimeout = 5
	}
	if cfg.Worker.RecoverInterval == 0 {
		cfg.Worker.RecoverInterval = Duration(5 * time.Minute)
	}
	if cfg.Worker.PurgeInterval == 0 {
		cfg.Worker.PurgeInterval = Duration(time.Hour)
	}
	if cfg.Worker.PurgeAfter == 0 {
		cfg.Worker.PurgeAfter = Duration(7 * 24 * time.Hour)
	}

	// Usage defaults
	if cfg.Usage.Sink == "" {
		cfg.Usage.Sink = "log"
	}
	if cfg.Usage.Stream == "" {
		cfg.Usage.Stream = "docindex:usage"
	}
	if cfg.Usage.MaxLen == 0 {
		cfg.Usage.MaxLen = 100000
	}

	// Log defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	if !c.Database.URL.IsSet() {
		errs = append(errs, errors.New("database.url is required"))
	}

	switch c.Queue.Backend {
	case "postgres":
	case "redis":
		if !c.Redis.URL.IsSet() {
			errs = append(errs, errors.New("redis.url is required for the redis queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid queue.backend %q (must be redis or postgres)", c.Queue.Backend))
	}

	switch c.Vector.Backend {
	case "pgvector", "chromem":
	case "qdrant":
		if c.Vector.QdrantPort < 1 || c.Vector.QdrantPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid vector.qdrant_port: %d", c.Vector.QdrantPort))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid vector.backend %q (must be pgvector, qdrant or chromem)", c.Vector.Backend))
	}
	if c.Vector.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimensions must be positive, got %d", c.Vector.Dimensions))
	}

	switch c.Embedding.Provider {
	case "openai":
		if !c.Embedding.APIKey.IsSet() {
			errs = append(errs, errors.New("embedding.api_key is required for openai"))
		}
	case "ollama":
		if c.Embedding.Model == "" {
			errs = append(errs, errors.New("embedding.model is required for ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid embedding.provider %q (must be openai or ollama)", c.Embedding.Provider))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedding.requests_per_second cannot be negative"))
	}

	switch c.Chunking.Strategy {
	case "paragraph", "fixed", "sliding":
	default:
		errs = append(errs, fmt.Errorf("invalid chunking.strategy %q", c.Chunking.Strategy))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap))
	}

	switch c.Usage.Sink {
	case "log":
	case "redis":
		if !c.Redis.URL.IsSet() {
			errs = append(errs, errors.New("redis.url is required for the redis usage sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid usage.sink %q (must be log or redis)", c.Usage.Sink))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("invalid log.format %q (must be json or text)", c.Log.Format))
	}

	return errors.Join(errs...)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log.level %q", level)
}

// NewLogger builds the slog logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
