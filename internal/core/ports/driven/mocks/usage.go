package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// MockUsageSink records usage events for assertions
type MockUsageSink struct {
	mu     sync.Mutex
	events []domain.UsageEvent

	RecordFn func(event domain.UsageEvent) error
}

// NewMockUsageSink creates a new MockUsageSink
func NewMockUsageSink() *MockUsageSink {
	return &MockUsageSink{}
}

func (m *MockUsageSink) Record(ctx context.Context, event domain.UsageEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.RecordFn != nil {
		return m.RecordFn(event)
	}
	return nil
}

// Events returns a copy of the recorded events
func (m *MockUsageSink) Events() []domain.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UsageEvent(nil), m.events...)
}
