package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewDocument(t *testing.T) {
	doc := NewDocument("user-1", "file-1", "notes.md", "text/markdown", DocumentMetadata{Title: "Notes"})

	if doc.Status != DocumentStatusPending {
		t.Errorf("expected status %s, got %s", DocumentStatusPending, doc.Status)
	}
	if doc.Metadata.Title != "Notes" {
		t.Errorf("expected title Notes, got %s", doc.Metadata.Title)
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestDocument_Lifecycle(t *testing.T) {
	doc := NewDocument("user-1", "file-1", "a.txt", "text/plain", DocumentMetadata{})

	doc.MarkProcessing()
	if doc.Status != DocumentStatusProcessing {
		t.Fatalf("expected processing, got %s", doc.Status)
	}
	if doc.ProcessingStartedAt == nil {
		t.Fatal("expected ProcessingStartedAt to be set")
	}

	doc.MarkFailed("embedding failed")
	if doc.Status != DocumentStatusFailed || doc.Error != "embedding failed" {
		t.Fatalf("unexpected failed state: %s %q", doc.Status, doc.Error)
	}

	doc.MarkProcessing()
	if doc.Error != "" {
		t.Error("expected error to be cleared when processing restarts")
	}

	doc.MarkCompleted(CompletionInfo{
		ChunkCount:     3,
		EmbeddingModel: "text-embedding-3-small",
		TokensUsed:     120,
		Cost:           0.0000024,
		ContentHash:    "abc",
		Generation:     "gen-1",
	})
	if doc.Status != DocumentStatusCompleted {
		t.Fatalf("expected completed, got %s", doc.Status)
	}
	if doc.ChunkCount != 3 || doc.Generation != "gen-1" || doc.ContentHash != "abc" {
		t.Errorf("completion info not recorded: %+v", doc)
	}
	if doc.ProcessedAt == nil {
		t.Error("expected ProcessedAt to be set")
	}
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"valid", Document{OwnerID: "user-1", FileID: "file-1"}, false},
		{"valid with status", Document{OwnerID: "user-1", FileID: "file-1", Status: DocumentStatusFailed}, false},
		{"missing owner", Document{FileID: "file-1"}, true},
		{"missing file", Document{OwnerID: "user-1"}, true},
		{"malformed owner", Document{OwnerID: "user 1", FileID: "file-1"}, true},
		{"malformed file", Document{OwnerID: "user-1", FileID: "../etc"}, true},
		{"unknown status", Document{OwnerID: "user-1", FileID: "file-1", Status: "weird"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDocument_IsStale(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Hour)

	doc := &Document{Status: DocumentStatusProcessing, ProcessingStartedAt: &started}
	if !doc.IsStale(now, 30*time.Minute) {
		t.Error("expected document processing for an hour to be stale")
	}
	if doc.IsStale(now, 2*time.Hour) {
		t.Error("expected document not to be stale within max age")
	}

	doc.Status = DocumentStatusCompleted
	if doc.IsStale(now, time.Minute) {
		t.Error("completed documents are never stale")
	}
}

func TestDocument_Unchanged(t *testing.T) {
	hash := ContentHash("hello")
	doc := &Document{Status: DocumentStatusCompleted, ContentHash: hash, EmbeddingModel: "m1"}

	if !doc.Unchanged(hash, "m1") {
		t.Error("expected same content and model to be unchanged")
	}
	if doc.Unchanged(ContentHash("hello!"), "m1") {
		t.Error("expected different content to be changed")
	}
	if doc.Unchanged(hash, "m2") {
		t.Error("expected different model to be changed")
	}

	doc.Status = DocumentStatusFailed
	if doc.Unchanged(hash, "m1") {
		t.Error("failed documents must always be reprocessed")
	}
}

func TestContentHash(t *testing.T) {
	h := ContentHash("abc")
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
	if h != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected sha256: %s", h)
	}
}

func TestValidateOwnerID(t *testing.T) {
	if err := ValidateOwnerID("auth0|abc"); err == nil {
		t.Error("expected pipe character to be rejected")
	}
	if err := ValidateOwnerID("user@example.com"); err != nil {
		t.Errorf("expected email-style owner to be accepted: %v", err)
	}
	if err := ValidateOwnerID(strings.Repeat("a", 300)); err == nil {
		t.Error("expected overlong owner id to be rejected")
	}
}

func TestDocumentStatus_IsValid(t *testing.T) {
	for _, s := range []DocumentStatus{DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if DocumentStatus("archived").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}
