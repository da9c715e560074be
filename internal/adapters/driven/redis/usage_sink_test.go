package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

func TestUsageSink_Record(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	sink := NewUsageSink(client, "", 0)
	event := domain.UsageEvent{
		OwnerID:   "owner-1",
		Operation: domain.UsageOperationProcess,
		FileID:    "file-1",
		Tokens:    42,
		Cost:      0.0001,
		Model:     "text-embedding-3-small",
		Success:   true,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	if err := sink.Record(ctx, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, err := client.XRange(ctx, "docindex:usage", "-", "+").Result()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Values["owner_id"] != "owner-1" {
		t.Errorf("owner_id = %v", msgs[0].Values["owner_id"])
	}
	if msgs[0].Values["operation"] != string(domain.UsageOperationProcess) {
		t.Errorf("operation = %v", msgs[0].Values["operation"])
	}

	var got domain.UsageEvent
	if err := json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Tokens != 42 || got.FileID != "file-1" || !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("decoded event mismatch: %+v", got)
	}
}

func TestUsageSink_CustomStream(t *testing.T) {
	client, mr := setupTestRedis(t)

	sink := NewUsageSink(client, "billing:events", 10)
	if err := sink.Record(context.Background(), domain.UsageEvent{OwnerID: "o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists("billing:events") {
		t.Errorf("expected custom stream, got keys %v", mr.Keys())
	}
}

func TestUsageSink_ClosedClient(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	err := NewUsageSink(client, "", 0).Record(context.Background(), domain.UsageEvent{OwnerID: "o"})
	if err == nil {
		t.Error("expected error when redis is down")
	}
}
