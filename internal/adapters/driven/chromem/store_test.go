package chromem

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Dimensions: 3}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func makeChunks(owner, file string, vecs ...[]float32) []*domain.Chunk {
	chunks := make([]*domain.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = &domain.Chunk{
			ID:            uuid.NewString(),
			OwnerID:       owner,
			FileID:        file,
			Content:       fmt.Sprintf("%s/%s chunk %d", owner, file, i),
			ChunkIndex:    i,
			StartPosition: i * 10,
			EndPosition:   i*10 + 10,
			TokenCount:    3,
			Embedding:     v,
			Metadata:      domain.ChunkMetadata{FileName: file + ".md", Tags: []string{"a", "b"}},
		}
	}
	return chunks
}

func TestNewStore_RequiresDimensions(t *testing.T) {
	if _, err := NewStore(Config{}, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestStore_AddDocuments_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		owner  string
		chunks []*domain.Chunk
		want   error
	}{
		{"empty", "alice", nil, domain.ErrInvalidInput},
		{"foreign owner", "alice", makeChunks("bob", "f1", []float32{1, 0, 0}), domain.ErrAccessDenied},
		{"malformed owner", "", makeChunks("", "f1", []float32{1, 0, 0}), domain.ErrAccessDenied},
		{"wrong dimensions", "alice", makeChunks("alice", "f1", []float32{1, 0}), domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddDocuments(ctx, tt.owner, tt.chunks); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStore_TenantIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddDocuments(ctx, "alice", makeChunks("alice", "shared", []float32{1, 0, 0}, []float32{0, 1, 0})); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if err := s.AddDocuments(ctx, "bob", makeChunks("bob", "secret", []float32{1, 0, 0})); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	results, err := s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected alice's 2 chunks, got %d", len(results))
	}
	for _, r := range results {
		if r.OwnerID != "alice" {
			t.Errorf("leaked result from %s", r.OwnerID)
		}
	}

	// searching another tenant's file id still only sees own data
	results, err = s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{FileIDs: []string{"secret"}})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for bob's file, got %d", len(results))
	}

	if err := s.ValidateUserAccess(ctx, "alice", "secret"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("cross-tenant access: got %v, want ErrAccessDenied", err)
	}
	if err := s.ValidateUserAccess(ctx, "alice", "shared"); err != nil {
		t.Errorf("own file: %v", err)
	}
	if err := s.ValidateUserAccess(ctx, "alice", "unknown"); err != nil {
		t.Errorf("unknown file should be allowed: %v", err)
	}
	if err := s.ValidateUserAccess(ctx, "alice", "bad id!"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("malformed file id: got %v, want ErrAccessDenied", err)
	}
}

func TestStore_SearchRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "f1", []float32{1, 0, 0}, []float32{0.6, 0.8, 0}))
	_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "f2", []float32{0, 0, 1}))

	results, err := s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{Limit: 10, Threshold: 0.5})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", results[0].Rank, results[1].Rank)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by similarity")
	}
	if d := results[1].Distance - (1 - results[1].Similarity); d > 1e-9 || d < -1e-9 {
		t.Errorf("distance %v does not match similarity %v", results[1].Distance, results[1].Similarity)
	}
	if results[0].Metadata.FileName != "f1.md" || len(results[0].Metadata.Tags) != 2 {
		t.Errorf("metadata lost: %+v", results[0].Metadata)
	}

	limited, err := s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d results", len(limited))
	}

	multi, err := s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{FileIDs: []string{"f1", "f2"}, Limit: 10})
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(multi) != 3 {
		t.Errorf("expected 3 results over both files, got %d", len(multi))
	}

	if _, err := s.SearchSimilar(ctx, "alice", []float32{1, 0}, domain.SearchOptions{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("wrong query size: got %v, want ErrInvalidInput", err)
	}
	empty, err := s.SearchSimilar(ctx, "nobody", []float32{1, 0, 0}, domain.SearchOptions{})
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown owner: got %v, %v", empty, err)
	}
}

func TestStore_DeletionPrecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "f1", []float32{1, 0, 0}, []float32{0, 1, 0}))
	_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "f2", []float32{0, 0, 1}))
	_ = s.AddDocuments(ctx, "bob", makeChunks("bob", "f1", []float32{1, 0, 0}))

	if err := s.DeleteUserDocuments(ctx, "alice", "f1"); err != nil {
		t.Fatalf("DeleteUserDocuments: %v", err)
	}

	if chunks, _ := s.ListFileChunks(ctx, "alice", "f1"); len(chunks) != 0 {
		t.Errorf("alice/f1 should be gone, %d chunks left", len(chunks))
	}
	if chunks, _ := s.ListFileChunks(ctx, "alice", "f2"); len(chunks) != 1 {
		t.Errorf("alice/f2 should remain, got %d chunks", len(chunks))
	}
	if chunks, _ := s.ListFileChunks(ctx, "bob", "f1"); len(chunks) != 1 {
		t.Errorf("bob/f1 should remain, got %d chunks", len(chunks))
	}

	if err := s.DeleteUserDocuments(ctx, "alice", ""); err != nil {
		t.Fatalf("delete owner: %v", err)
	}
	stats, err := s.GetCollectionStats(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCollectionStats: %v", err)
	}
	if stats.DocumentCount != 0 {
		t.Errorf("alice should have no chunks, got %d", stats.DocumentCount)
	}
	bob, _ := s.GetCollectionStats(ctx, "bob")
	if bob.DocumentCount != 1 {
		t.Errorf("bob should keep 1 chunk, got %d", bob.DocumentCount)
	}

	if err := s.DeleteUserDocuments(ctx, "ghost", "f1"); err != nil {
		t.Errorf("deleting from an unknown owner should be a no-op: %v", err)
	}
}

func TestStore_ReplaceFileDocuments_NoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := makeChunks("alice", "f1", []float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1})
	if err := s.ReplaceFileDocuments(ctx, "alice", "f1", first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	for run := 0; run < 3; run++ {
		next := makeChunks("alice", "f1", []float32{1, 1, 0}, []float32{0, 1, 1})
		if err := s.ReplaceFileDocuments(ctx, "alice", "f1", next); err != nil {
			t.Fatalf("replace %d: %v", run, err)
		}
	}

	chunks, err := s.ListFileChunks(ctx, "alice", "f1")
	if err != nil {
		t.Fatalf("ListFileChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks after reprocessing, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.StartPosition != i*10 || c.TokenCount != 3 {
			t.Errorf("chunk %d fields lost: %+v", i, c)
		}
	}

	stats, _ := s.GetCollectionStats(ctx, "alice")
	if stats.DocumentCount != 2 {
		t.Errorf("old generations left behind: %d stored chunks", stats.DocumentCount)
	}

	if err := s.ReplaceFileDocuments(ctx, "alice", "f1", nil); err != nil {
		t.Fatalf("empty replace: %v", err)
	}
	if chunks, _ := s.ListFileChunks(ctx, "alice", "f1"); len(chunks) != 0 {
		t.Errorf("empty replace should clear the file, got %d chunks", len(chunks))
	}
}

func TestStore_ReplaceFileDocuments_RejectsForeignChunks(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFileDocuments(context.Background(), "alice", "f1", makeChunks("alice", "f2", []float32{1, 0, 0}))
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("chunk of another file: got %v, want ErrAccessDenied", err)
	}
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewStore(Config{Path: dir, Dimensions: 3}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.ReplaceFileDocuments(ctx, "alice", "f1", makeChunks("alice", "f1", []float32{1, 0, 0})); err != nil {
		t.Fatalf("replace: %v", err)
	}

	reopened, err := NewStore(Config{Path: dir, Dimensions: 3}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	chunks, err := reopened.ListFileChunks(ctx, "alice", "f1")
	if err != nil {
		t.Fatalf("ListFileChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Metadata.Generation == "" {
		t.Errorf("expected persisted chunk with generation, got %+v", chunks)
	}
}

func TestStore_ConnectionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if !s.IsConnected(ctx) {
		t.Error("embedded store should always be connected")
	}
	st := s.GetConnectionStatus(ctx)
	if !st.Connected || st.Backend != domain.VectorBackendChromem || s.Backend() != domain.VectorBackendChromem {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestQueryCollection_ClampsToCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "f1", []float32{1, 0, 0}, []float32{0, 1, 0}))
	col := s.collection("alice")

	all, err := queryCollection(ctx, col, []float32{1, 0, 0}, 0, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("limit 0 should return the whole collection, got %d (%v)", len(all), err)
	}
	capped, err := queryCollection(ctx, col, []float32{1, 0, 0}, 50, nil)
	if err != nil || len(capped) != 2 {
		t.Fatalf("a limit above the count should be clamped, got %d (%v)", len(capped), err)
	}

	_ = s.DeleteUserDocuments(ctx, "alice", "f1")
	empty, err := queryCollection(ctx, col, []float32{1, 0, 0}, 10, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("an emptied collection should yield nothing, got %d (%v)", len(empty), err)
	}
}

func TestStore_SearchDuringConcurrentDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AddDocuments(ctx, "alice", makeChunks("alice", "keep", []float32{1, 0, 0})); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = s.AddDocuments(ctx, "alice", makeChunks("alice", "churn", []float32{0, 1, 0}, []float32{0, 0, 1}, []float32{1, 1, 0}))
			_ = s.DeleteUserDocuments(ctx, "alice", "churn")
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		if _, err := s.SearchSimilar(ctx, "alice", []float32{1, 0, 0}, domain.SearchOptions{Limit: 10}); err != nil {
			t.Fatalf("search during deletes: %v", err)
		}
		chunks, err := s.ListFileChunks(ctx, "alice", "keep")
		if err != nil {
			t.Fatalf("list during deletes: %v", err)
		}
		if len(chunks) != 1 {
			t.Fatalf("expected the stable file to keep 1 chunk, got %d", len(chunks))
		}
	}
}
