package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

var _ driven.UsageSink = (*UsageSink)(nil)

const (
	defaultUsageStream = "docindex:usage"
	defaultUsageMaxLen = 100000
)

// UsageSink appends usage events to a capped Redis stream for billing consumers.
type UsageSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewUsageSink creates a stream-backed sink.
// Empty stream and non-positive maxLen use the defaults.
func NewUsageSink(client *redis.Client, stream string, maxLen int64) *UsageSink {
	if stream == "" {
		stream = defaultUsageStream
	}
	if maxLen <= 0 {
		maxLen = defaultUsageMaxLen
	}
	return &UsageSink{client: client, stream: stream, maxLen: maxLen}
}

// Record appends one event. The stream is trimmed approximately to maxLen.
func (s *UsageSink) Record(ctx context.Context, event domain.UsageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal usage event: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"owner_id":  event.OwnerID,
			"operation": string(event.Operation),
			"event":     data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}
