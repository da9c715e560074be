package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Ensure LogUsageSink implements driven.UsageSink
var _ driven.UsageSink = (*LogUsageSink)(nil)

// LogUsageSink writes usage events to the structured log
type LogUsageSink struct {
	logger *slog.Logger
}

// NewLogUsageSink creates a LogUsageSink
func NewLogUsageSink(logger *slog.Logger) *LogUsageSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogUsageSink{logger: logger.With("component", "usage")}
}

func (s *LogUsageSink) Record(ctx context.Context, event domain.UsageEvent) error {
	attrs := []any{
		"owner_id", event.OwnerID,
		"operation", event.Operation,
		"success", event.Success,
		"tokens", event.Tokens,
		"cost", event.Cost,
	}
	if event.FileID != "" {
		attrs = append(attrs, "file_id", event.FileID)
	}
	if event.Model != "" {
		attrs = append(attrs, "model", event.Model)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	s.logger.InfoContext(ctx, "usage", attrs...)
	return nil
}
