package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
database:
  url: postgres://localhost/docindex
embedding:
  api_key: sk-test
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Vector.Backend != "chromem" {
		t.Errorf("expected chromem backend, got %q", cfg.Vector.Backend)
	}
	if cfg.Vector.Dimensions != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", cfg.Vector.Dimensions)
	}
	if cfg.Queue.Backend != "postgres" {
		t.Errorf("expected postgres queue, got %q", cfg.Queue.Backend)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("unexpected default model %q", cfg.Embedding.Model)
	}
	if cfg.Processor.StaleAfter.Duration() != 30*time.Minute {
		t.Errorf("expected stale_after 30m, got %v", cfg.Processor.StaleAfter.Duration())
	}
	if !cfg.Database.Migrate || !cfg.Chunking.RespectBoundaries || !cfg.Worker.SchedulerEnabled {
		t.Error("expected boolean defaults to be true")
	}
	if cfg.Chunking.Deduplicate {
		t.Error("deduplicate should default to false")
	}
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := load([]byte(`
database:
  url: postgres://db/docindex
  migrate: false
vector:
  backend: qdrant
  dimensions: 768
  qdrant_host: qdrant.internal
  qdrant_port: 6335
embedding:
  provider: ollama
  model: nomic-embed-text
  base_url: http://ollama:11434
  inter_batch_delay: 250ms
chunking:
  strategy: sliding
  max_chunk_size: 500
  overlap: 50
  respect_boundaries: false
worker:
  recover_interval: 2m
log:
  level: debug
  format: json
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Database.Migrate {
		t.Error("expected migrate to be disabled by the file")
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.QdrantHost != "qdrant.internal" || cfg.Vector.QdrantPort != 6335 {
		t.Errorf("unexpected vector config %+v", cfg.Vector)
	}
	if cfg.Embedding.InterBatchDelay.Duration() != 250*time.Millisecond {
		t.Errorf("expected 250ms delay, got %v", cfg.Embedding.InterBatchDelay.Duration())
	}
	if cfg.Chunking.Strategy != "sliding" || cfg.Chunking.Overlap != 50 || cfg.Chunking.RespectBoundaries {
		t.Errorf("unexpected chunking config %+v", cfg.Chunking)
	}
	if cfg.Worker.RecoverInterval.Duration() != 2*time.Minute {
		t.Errorf("expected 2m recover interval, got %v", cfg.Worker.RecoverInterval.Duration())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "pgvector")
	t.Setenv("VECTOR_DIMENSIONS", "384")
	t.Setenv("EMBEDDING_API_KEY", "sk-env")
	t.Setenv("PROCESSOR_STALE_AFTER", "45m")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("HOME_DIRECTORY", "/ignored")

	cfg, err := load([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Vector.Backend != "pgvector" {
		t.Errorf("expected env backend, got %q", cfg.Vector.Backend)
	}
	if cfg.Vector.Dimensions != 384 {
		t.Errorf("expected 384 dimensions, got %d", cfg.Vector.Dimensions)
	}
	if cfg.Embedding.APIKey.Value() != "sk-env" {
		t.Error("expected env api key to win over the file")
	}
	if cfg.Processor.StaleAfter.Duration() != 45*time.Minute {
		t.Errorf("expected 45m, got %v", cfg.Processor.StaleAfter.Duration())
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Worker.Concurrency)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DATABASE_URL", "database.url"},
		{"EMBEDDING_API_KEY", "embedding.api_key"},
		{"VECTOR_QDRANT_API_KEY", "vector.qdrant_api_key"},
		{"PATH", ""},
		{"HOME_DIR", ""},
		{"LOG_", ""},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing database",
			yaml:    "embedding:\n  api_key: k\n",
			wantErr: "database.url",
		},
		{
			name:    "bad backend",
			yaml:    minimalYAML + "vector:\n  backend: faiss\n",
			wantErr: "vector.backend",
		},
		{
			name:    "openai without key",
			yaml:    "database:\n  url: postgres://x\n",
			wantErr: "embedding.api_key",
		},
		{
			name:    "redis queue without url",
			yaml:    minimalYAML + "queue:\n  backend: redis\n",
			wantErr: "redis.url",
		},
		{
			name:    "overlap too large",
			yaml:    minimalYAML + "chunking:\n  max_chunk_size: 100\n  overlap: 100\n",
			wantErr: "chunking.overlap",
		},
		{
			name:    "bad strategy",
			yaml:    minimalYAML + "chunking:\n  strategy: semantic\n",
			wantErr: "chunking.strategy",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "log:\n  level: loud\n",
			wantErr: "log.level",
		},
		{
			name:    "bad usage sink",
			yaml:    minimalYAML + "usage:\n  sink: kafka\n",
			wantErr: "usage.sink",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindex.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL.Value() != "postgres://localhost/docindex" {
		t.Errorf("unexpected database url")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	if err := os.WriteFile(path, bytes.Repeat([]byte("#"), maxConfigFileSize+1), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("sk-live-123")

	if got := fmt.Sprintf("%s %v %#v", s, s, s); strings.Contains(got, "sk-live") {
		t.Errorf("secret leaked through formatting: %s", got)
	}
	data, _ := json.Marshal(struct{ Key Secret }{s})
	if strings.Contains(string(data), "sk-live") {
		t.Errorf("secret leaked through json: %s", data)
	}
	if s.Value() != "sk-live-123" {
		t.Error("Value must return the raw secret")
	}
	if Secret("").String() != "" {
		t.Error("empty secret should print empty")
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("expected 90s, got %v", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("expected error for negative duration")
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected json output, got %s", out)
	}
}
