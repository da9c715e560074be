package driven

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// UsageSink records usage events for billing and analytics.
// Callers treat it as fire-and-forget and only log returned errors.
type UsageSink interface {
	Record(ctx context.Context, event domain.UsageEvent) error
}
