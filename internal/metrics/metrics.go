package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Ensure Recorder implements Metrics
var _ driven.Metrics = (*Recorder)(nil)

const namespace = "docindex"

// Recorder publishes pipeline measurements as Prometheus collectors.
//
// Metrics:
//   - docindex_documents_processed_total{status}
//   - docindex_document_chunks - histogram of chunks per document
//   - docindex_processing_duration_seconds{status}
//   - docindex_embedding_batches_total{model}
//   - docindex_embedding_tokens_total{model}
//   - docindex_embedding_cost_usd_total{model}
//   - docindex_embedding_errors_total{model}
//   - docindex_embedding_duration_seconds{model}
//   - docindex_retries_total{operation}
//   - docindex_circuit_state{name}
//   - docindex_searches_total{result}
//   - docindex_search_results - histogram of results per search
//   - docindex_search_duration_seconds
//   - docindex_tasks_total{type,outcome}
//   - docindex_task_duration_seconds{type}
type Recorder struct {
	DocumentsProcessed *prometheus.CounterVec
	DocumentChunks     prometheus.Histogram
	ProcessingDuration *prometheus.HistogramVec

	EmbeddingBatches  *prometheus.CounterVec
	EmbeddingTokens   *prometheus.CounterVec
	EmbeddingCost     *prometheus.CounterVec
	EmbeddingErrors   *prometheus.CounterVec
	EmbeddingDuration *prometheus.HistogramVec

	Retries      *prometheus.CounterVec
	CircuitState *prometheus.GaugeVec

	Searches       *prometheus.CounterVec
	SearchResults  prometheus.Histogram
	SearchDuration prometheus.Histogram

	Tasks        *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
}

// NewRecorder registers the collectors with reg.
// A nil reg uses the default Prometheus registerer; calling it twice with
// the same registerer panics on duplicate registration.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		DocumentsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Documents processed, by outcome",
			},
			[]string{"status"}, // completed, skipped, failed
		),
		DocumentChunks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_chunks",
				Help:      "Chunks stored per processed document",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Wall time of a document run",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"status"},
		),
		EmbeddingBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_batches_total",
				Help:      "Embedding provider calls",
			},
			[]string{"model"},
		),
		EmbeddingTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_tokens_total",
				Help:      "Tokens sent to the embedding provider",
			},
			[]string{"model"},
		),
		EmbeddingCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cost_usd_total",
				Help:      "Estimated embedding spend in USD",
			},
			[]string{"model"},
		),
		EmbeddingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_errors_total",
				Help:      "Failed EmbedBatch calls",
			},
			[]string{"model"},
		),
		EmbeddingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_duration_seconds",
				Help:      "Duration of an EmbedBatch call",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"model"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried calls, by operation",
			},
			[]string{"operation"},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		Searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Search calls, by result",
			},
			[]string{"result"}, // ok, failed
		),
		SearchResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Results returned per search",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Duration of a search call",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
		),
		Tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Queue tasks handled by workers, by type and outcome",
			},
			[]string{"type", "outcome"}, // completed, failed
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall time of a task handler",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"type"},
		),
	}
}

// ObserveProcessing records a finished document run.
func (r *Recorder) ObserveProcessing(status string, chunks int, duration time.Duration) {
	r.DocumentsProcessed.WithLabelValues(status).Inc()
	r.ProcessingDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "completed" {
		r.DocumentChunks.Observe(float64(chunks))
	}
}

// ObserveEmbedding records one EmbedBatch call.
func (r *Recorder) ObserveEmbedding(model string, batches, tokens int, cost float64, duration time.Duration, err error) {
	r.EmbeddingDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		r.EmbeddingErrors.WithLabelValues(model).Inc()
		return
	}
	r.EmbeddingBatches.WithLabelValues(model).Add(float64(batches))
	r.EmbeddingTokens.WithLabelValues(model).Add(float64(tokens))
	r.EmbeddingCost.WithLabelValues(model).Add(cost)
}

// ObserveRetry records a retried call.
func (r *Recorder) ObserveRetry(operation string) {
	r.Retries.WithLabelValues(operation).Inc()
}

// SetCircuitState publishes breaker state.
func (r *Recorder) SetCircuitState(name string, state int) {
	r.CircuitState.WithLabelValues(name).Set(float64(state))
}

// ObserveSearch records a search call.
func (r *Recorder) ObserveSearch(results int, duration time.Duration, failed bool) {
	r.SearchDuration.Observe(duration.Seconds())
	if failed {
		r.Searches.WithLabelValues("failed").Inc()
		return
	}
	r.Searches.WithLabelValues("ok").Inc()
	r.SearchResults.Observe(float64(results))
}

// ObserveTask records a task handled by a worker.
func (r *Recorder) ObserveTask(taskType, outcome string, duration time.Duration) {
	r.Tasks.WithLabelValues(taskType, outcome).Inc()
	r.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}
