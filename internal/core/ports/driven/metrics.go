package driven

import "time"

// Metrics receives pipeline measurements
type Metrics interface {
	// ObserveProcessing records a finished document run
	ObserveProcessing(status string, chunks int, duration time.Duration)

	// ObserveEmbedding records one EmbedBatch call
	ObserveEmbedding(model string, batches, tokens int, cost float64, duration time.Duration, err error)

	// ObserveRetry records a retried call
	ObserveRetry(operation string)

	// SetCircuitState publishes breaker state (0 closed, 1 half-open, 2 open)
	SetCircuitState(name string, state int)

	// ObserveSearch records a search call
	ObserveSearch(results int, duration time.Duration, failed bool)

	// ObserveTask records a task handled by a worker
	ObserveTask(taskType, outcome string, duration time.Duration)
}

// NopMetrics discards all measurements
type NopMetrics struct{}

func (NopMetrics) ObserveProcessing(string, int, time.Duration)                     {}
func (NopMetrics) ObserveEmbedding(string, int, int, float64, time.Duration, error) {}
func (NopMetrics) ObserveRetry(string)                                              {}
func (NopMetrics) SetCircuitState(string, int)                                      {}
func (NopMetrics) ObserveSearch(int, time.Duration, bool)                           {}
func (NopMetrics) ObserveTask(string, string, time.Duration)                        {}
