// Package runtime assembles docindex services from configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docindex/internal/adapters/driven/ai"
	"github.com/custodia-labs/docindex/internal/adapters/driven/chromem"
	"github.com/custodia-labs/docindex/internal/adapters/driven/postgres"
	"github.com/custodia-labs/docindex/internal/adapters/driven/qdrant"
	pgqueue "github.com/custodia-labs/docindex/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/docindex/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/docindex/internal/adapters/driven/redis"
	"github.com/custodia-labs/docindex/internal/config"
	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
	"github.com/custodia-labs/docindex/internal/core/services"
	"github.com/custodia-labs/docindex/internal/embedding"
	"github.com/custodia-labs/docindex/internal/metrics"
	"github.com/custodia-labs/docindex/internal/normalisers"
	"github.com/custodia-labs/docindex/internal/postprocessors"
	"github.com/custodia-labs/docindex/internal/retry"
	"github.com/custodia-labs/docindex/internal/worker"
)

// Services holds every component built from one configuration.
// Exactly one vector backend is active.
type Services struct {
	Config *config.Config
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	Documents driven.DocumentStore
	Vectors   driven.VectorStore
	Queue     driven.TaskQueue
	Lock      driven.DistributedLock
	Usage     driven.UsageSink
	Schedules driven.SchedulerStore

	Provider  driven.EmbeddingProvider
	Embedder  *embedding.Generator
	Processor *services.DocumentProcessor
	Jobs      driving.JobService
	Scheduler *services.Scheduler

	closers []func() error
}

// Adapters are the connections Build opens; Assemble takes them from the caller
type Adapters struct {
	DB    *postgres.DB
	Redis *goredis.Client // nil unless the queue or usage sink is redis

	Documents driven.DocumentStore
	Schedules driven.SchedulerStore
	Provider  driven.EmbeddingProvider // nil builds one from config
}

// Build connects to the configured backends and assembles the services.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbCfg := postgres.DefaultConfig(cfg.Database.URL.Value())
	dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime.Duration()
	dbCfg.Migrate = cfg.Database.Migrate

	db, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	adapters := Adapters{
		DB:        db,
		Documents: postgres.NewDocumentStore(db),
		Schedules: postgres.NewSchedulerStore(db),
	}

	if cfg.Queue.Backend == "redis" || cfg.Usage.Sink == "redis" {
		opts, err := goredis.ParseURL(cfg.Redis.URL.Value())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		adapters.Redis = client
	}

	svc, err := Assemble(ctx, cfg, adapters, logger)
	if err != nil {
		if adapters.Redis != nil {
			adapters.Redis.Close()
		}
		db.Close()
		return nil, err
	}
	if adapters.Redis != nil {
		svc.closers = append(svc.closers, adapters.Redis.Close)
	}
	svc.closers = append(svc.closers, db.Close)
	return svc, nil
}

// Assemble wires services on top of already opened adapters.
// It owns everything it creates; the adapters stay with the caller.
func Assemble(ctx context.Context, cfg *config.Config, adapters Adapters, logger *slog.Logger) (_ *Services, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if adapters.Documents == nil {
		return nil, fmt.Errorf("%w: document store is required", domain.ErrInvalidInput)
	}

	svc := &Services{
		Config:    cfg,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
		Documents: adapters.Documents,
		Schedules: adapters.Schedules,
	}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	svc.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.Metrics = metrics.NewRecorder(svc.Registry)

	svc.Provider = adapters.Provider
	if svc.Provider == nil {
		svc.Provider, err = NewEmbeddingProvider(cfg.Embedding, cfg.Vector.Dimensions)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, svc.Provider.Close)
	}
	if got := svc.Provider.Dimensions(); got != cfg.Vector.Dimensions {
		return nil, fmt.Errorf("%w: embedding model %s produces %d dimensions, vector.dimensions is %d",
			domain.ErrInvalidInput, svc.Provider.Model(), got, cfg.Vector.Dimensions)
	}

	svc.Vectors, err = NewVectorStore(ctx, cfg.Vector, adapters.DB, logger)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, svc.Vectors.Close)

	if err := svc.buildQueue(ctx, cfg, adapters); err != nil {
		return nil, err
	}

	switch cfg.Usage.Sink {
	case "redis":
		if adapters.Redis == nil {
			return nil, fmt.Errorf("%w: redis usage sink needs a redis client", domain.ErrInvalidInput)
		}
		svc.Usage = redisadapter.NewUsageSink(adapters.Redis, cfg.Usage.Stream, cfg.Usage.MaxLen)
	default:
		svc.Usage = services.NewLogUsageSink(logger)
	}

	svc.Embedder, err = embedding.NewGenerator(embedding.GeneratorConfig{
		Provider: svc.Provider,
		Limiter: embedding.NewRateLimiter(embedding.RateLimitConfig{
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			BurstSize:         cfg.Embedding.Burst,
		}),
		Breaker: retry.NewCircuitBreaker(retry.BreakerConfig{
			Name:             "embedding",
			FailureThreshold: cfg.Embedding.BreakerThreshold,
			RecoveryTimeout:  cfg.Embedding.BreakerRecovery.Duration(),
			SuccessThreshold: 1,
			OnStateChange: func(name string, _, to retry.State) {
				svc.Metrics.SetCircuitState(name, int(to))
			},
		}),
		Metrics:         svc.Metrics,
		Logger:          logger,
		BatchSize:       cfg.Embedding.BatchSize,
		InterBatchDelay: cfg.Embedding.InterBatchDelay.Duration(),
		RequestTimeout:  cfg.Embedding.RequestTimeout.Duration(),
		Retry: retry.Config{
			MaxAttempts: cfg.Embedding.MaxAttempts,
			BaseDelay:   cfg.Embedding.RetryBaseDelay.Duration(),
			MaxDelay:    cfg.Embedding.RetryMaxDelay.Duration(),
			Logger:      logger,
		},
	})
	if err != nil {
		return nil, err
	}

	svc.Processor, err = services.NewDocumentProcessor(services.ProcessorConfig{
		Documents:        svc.Documents,
		Vectors:          svc.Vectors,
		Embedder:         svc.Embedder,
		Pipeline:         NewPipeline(cfg.Chunking),
		Content:          contentSource(svc.Documents),
		Normalisers:      normalisers.DefaultRegistry(),
		Lock:             svc.Lock,
		Usage:            svc.Usage,
		Metrics:          svc.Metrics,
		Logger:           logger,
		BatchConcurrency: cfg.Processor.BatchConcurrency,
		StaleAfter:       cfg.Processor.StaleAfter.Duration(),
		LockTTL:          cfg.Processor.LockTTL.Duration(),
		StoreTimeout:     cfg.Processor.StoreTimeout.Duration(),
	})
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, func() error {
		svc.Processor.Close()
		return nil
	})

	svc.Jobs = services.NewJobService(svc.Queue, logger)

	if svc.Schedules != nil {
		svc.Scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:      svc.Schedules,
			TaskQueue:  svc.Queue,
			Lock:       svc.Lock,
			Logger:     logger,
			PurgeAfter: cfg.Worker.PurgeAfter.Duration(),
		})
	}

	logger.Info("services assembled",
		"vector_backend", svc.Vectors.Backend(),
		"queue_backend", cfg.Queue.Backend,
		"embedding_model", svc.Provider.Model(),
		"dimensions", cfg.Vector.Dimensions,
	)
	return svc, nil
}

func (s *Services) buildQueue(ctx context.Context, cfg *config.Config, adapters Adapters) error {
	switch cfg.Queue.Backend {
	case "redis":
		if adapters.Redis == nil {
			return fmt.Errorf("%w: redis queue needs a redis client", domain.ErrInvalidInput)
		}
		hostname, _ := os.Hostname()
		queue, err := redisqueue.NewQueue(ctx, adapters.Redis, redisqueue.Options{
			Prefix:       cfg.Redis.Prefix,
			ConsumerName: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
			TaskTTL:      cfg.Queue.TaskTTL.Duration(),
			ClaimTimeout: cfg.Queue.ClaimTimeout.Duration(),
			Logger:       s.Logger,
		})
		if err != nil {
			return fmt.Errorf("create redis queue: %w", err)
		}
		s.Queue = queue
		s.Lock = redisadapter.NewLock(adapters.Redis, cfg.Redis.Prefix+":lock:")
	case "postgres":
		if adapters.DB == nil {
			return fmt.Errorf("%w: postgres queue needs a database", domain.ErrInvalidInput)
		}
		s.Queue = pgqueue.NewQueue(adapters.DB.DB)
		s.Lock = postgres.NewAdvisoryLock(adapters.DB)
	default:
		return fmt.Errorf("%w: unknown queue backend %q", domain.ErrInvalidInput, cfg.Queue.Backend)
	}
	s.closers = append(s.closers, s.Queue.Close)
	return nil
}

// NewVectorStore opens the one backend named by cfg.Backend.
func NewVectorStore(ctx context.Context, cfg config.VectorConfig, db *postgres.DB, logger *slog.Logger) (driven.VectorStore, error) {
	switch domain.VectorBackend(cfg.Backend) {
	case domain.VectorBackendPgvector:
		if db == nil {
			return nil, fmt.Errorf("%w: pgvector backend needs a database", domain.ErrInvalidInput)
		}
		return postgres.NewVectorStore(db, cfg.Dimensions), nil
	case domain.VectorBackendQdrant:
		store, err := qdrant.NewStore(ctx, qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			UseTLS:     cfg.QdrantTLS,
			APIKey:     cfg.QdrantAPIKey.Value(),
			Collection: cfg.QdrantCollection,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open qdrant: %w", err)
		}
		return store, nil
	case domain.VectorBackendChromem:
		store, err := chromem.NewStore(chromem.Config{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			Dimensions: cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open chromem: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", domain.ErrInvalidInput, cfg.Backend)
	}
}

// NewEmbeddingProvider builds the configured embedding provider.
func NewEmbeddingProvider(cfg config.EmbeddingConfig, dimensions int) (driven.EmbeddingProvider, error) {
	return ai.NewFactory().CreateEmbeddingProvider(&domain.EmbeddingSettings{
		Provider:   domain.AIProvider(cfg.Provider),
		Model:      cfg.Model,
		APIKey:     cfg.APIKey.Value(),
		BaseURL:    cfg.BaseURL,
		Dimensions: dimensions,
	})
}

// NewPipeline builds the chunking pipeline described by cfg.
func NewPipeline(cfg config.ChunkingConfig) *postprocessors.Pipeline {
	chunking := postprocessors.DefaultChunkConfig()
	chunking.Strategy = postprocessors.Strategy(cfg.Strategy)
	chunking.MaxChunkSize = cfg.MaxChunkSize
	chunking.Overlap = cfg.Overlap
	chunking.RespectBoundaries = cfg.RespectBoundaries

	return postprocessors.NewPipelineFromConfig(postprocessors.PipelineConfig{
		Chunking:            chunking,
		NormalizeWhitespace: cfg.NormalizeWhitespace,
		Deduplicate:         cfg.Deduplicate,
	})
}

// NewWorker builds a task worker over the assembled services.
// The scheduler is attached only when enabled in config.
func (s *Services) NewWorker() *worker.Worker {
	var scheduler *services.Scheduler
	if s.Config.Worker.SchedulerEnabled {
		scheduler = s.Scheduler
	}
	return worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      s.Queue,
		Processor:      s.Processor,
		Scheduler:      scheduler,
		Metrics:        s.Metrics,
		Logger:         s.Logger,
		Concurrency:    s.Config.Worker.Concurrency,
		DequeueTimeout: s.Config.Worker.DequeueTimeout,
	})
}

// EnsureSchedules registers the recover and purge schedules.
func (s *Services) EnsureSchedules(ctx context.Context) error {
	if s.Scheduler == nil {
		return nil
	}
	return s.Scheduler.EnsureScheduledTasks(ctx, domain.DefaultSchedulerConfig(
		s.Config.Worker.RecoverInterval.Duration(),
		s.Config.Worker.PurgeInterval.Duration(),
	))
}

// Close releases everything in reverse creation order.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// contentSource lets reprocessing read back stored content when the
// registry keeps it.
func contentSource(documents driven.DocumentStore) driven.ContentSource {
	if cs, ok := documents.(driven.ContentSource); ok {
		return cs
	}
	return nil
}
