package postprocessors

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order, starting with a Chunker.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
// Input is the raw document content.
// Output is the processed chunks ready for embedding/indexing, with
// contiguous positions starting at 0. Blank content yields no chunks.
func (p *Pipeline) Process(content string) []driven.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	p.mu.Lock()
	if !p.sorted {
		sort.Slice(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	p.mu.Unlock()

	p.mu.RLock()
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.RUnlock()

	// Start with a single chunk containing all content
	chunks := []driven.Chunk{
		{
			Content:     content,
			Position:    0,
			StartOffset: 0,
			EndOffset:   len(content),
		},
	}

	// Apply each processor in order
	for _, proc := range processors {
		chunks = proc.Process(chunks)
	}

	// Later processors may drop chunks
	for i := range chunks {
		chunks[i].Position = i
	}
	return chunks
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline creates a pipeline with the default processors.
func DefaultPipeline() *Pipeline {
	return NewPipelineFromConfig(PipelineConfig{
		Chunking:            DefaultChunkConfig(),
		NormalizeWhitespace: true,
	})
}

// PipelineConfig selects the processors of a pipeline.
type PipelineConfig struct {
	Chunking            ChunkConfig
	NormalizeWhitespace bool
	Deduplicate         bool
}

// NewPipelineFromConfig builds a chunker pipeline with optional cleanup stages.
func NewPipelineFromConfig(cfg PipelineConfig) *Pipeline {
	p := NewPipeline()
	p.Add(NewChunker(cfg.Chunking))
	if cfg.NormalizeWhitespace {
		p.Add(NewWhitespaceNormalizer())
	}
	if cfg.Deduplicate {
		p.Add(NewDeduplicator(DefaultDeduplicatorConfig()))
	}
	return p
}
