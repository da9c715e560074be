package postprocessors

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Strategy selects how text is cut into chunks.
type Strategy string

const (
	// StrategyParagraph packs whole paragraphs into chunks, splitting
	// only paragraphs that exceed the maximum size.
	StrategyParagraph Strategy = "paragraph"
	// StrategyFixed cuts consecutive, non-overlapping windows.
	StrategyFixed Strategy = "fixed"
	// StrategySliding cuts windows that overlap by ChunkConfig.Overlap.
	StrategySliding Strategy = "sliding"
)

// IsValid returns true if the strategy is known
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyParagraph, StrategyFixed, StrategySliding:
		return true
	}
	return false
}

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// Strategy selects paragraph, fixed or sliding chunking
	Strategy Strategy

	// MaxChunkSize is the maximum characters per chunk
	MaxChunkSize int

	// Overlap is the character overlap between chunks.
	// Used by the sliding strategy and for oversized paragraphs.
	Overlap int

	// RespectBoundaries never ends or starts a chunk inside a word.
	// A single word longer than MaxChunkSize becomes its own chunk.
	RespectBoundaries bool

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool

	// PreserveParagraphs tries to break at paragraph boundaries
	PreserveParagraphs bool
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Strategy:           StrategySliding,
		MaxChunkSize:       1000,
		Overlap:            200,
		RespectBoundaries:  true,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

func (c ChunkConfig) normalize() ChunkConfig {
	if !c.Strategy.IsValid() {
		c.Strategy = StrategySliding
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap > c.MaxChunkSize/2 {
		c.Overlap = c.MaxChunkSize / 2
	}
	if c.Strategy == StrategyFixed {
		c.Overlap = 0
	}
	return c
}

// span is a half-open byte range of the source text
type span struct {
	start, end int
}

var paragraphSep = regexp.MustCompile(`\n[ \t\r]*\n\s*`)

var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// ChunkText splits text into ordered chunks.
// Empty or whitespace-only text yields no chunks.
func ChunkText(text string, cfg ChunkConfig) []driven.Chunk {
	return chunkRange(text, 0, len(text), cfg.normalize(), 0)
}

func chunkRange(text string, from, to int, cfg ChunkConfig, position int) []driven.Chunk {
	if strings.TrimSpace(text[from:to]) == "" {
		return nil
	}

	var spans []span
	if cfg.Strategy == StrategyParagraph {
		spans = paragraphSpans(text, from, to, cfg)
	} else {
		spans = windowSpans(text, from, to, cfg)
	}

	chunks := make([]driven.Chunk, 0, len(spans))
	for _, s := range spans {
		start, end := trimSpan(text, s.start, s.end)
		if start >= end {
			continue
		}
		chunks = append(chunks, driven.Chunk{
			Content:     text[start:end],
			Position:    position,
			StartOffset: start,
			EndOffset:   end,
		})
		position++
	}
	return chunks
}

// paragraphSpans packs consecutive paragraphs up to MaxChunkSize.
func paragraphSpans(text string, from, to int, cfg ChunkConfig) []span {
	var paras []span
	cursor := from
	for _, sep := range paragraphSep.FindAllStringIndex(text[from:to], -1) {
		paras = append(paras, span{cursor, from + sep[0]})
		cursor = from + sep[1]
	}
	paras = append(paras, span{cursor, to})

	var spans []span
	var cur *span
	flush := func() {
		if cur != nil {
			spans = append(spans, *cur)
			cur = nil
		}
	}

	for _, p := range paras {
		if strings.TrimSpace(text[p.start:p.end]) == "" {
			continue
		}
		switch {
		case p.end-p.start > cfg.MaxChunkSize:
			flush()
			spans = append(spans, windowSpans(text, p.start, p.end, cfg)...)
		case cur == nil:
			cur = &span{p.start, p.end}
		case p.end-cur.start <= cfg.MaxChunkSize:
			cur.end = p.end
		default:
			flush()
			cur = &span{p.start, p.end}
		}
	}
	flush()
	return spans
}

// windowSpans cuts [from, to) into windows of at most MaxChunkSize,
// stepping back by Overlap between windows.
func windowSpans(text string, from, to int, cfg ChunkConfig) []span {
	var spans []span
	start := from

	for start < to {
		for start < to && isSpace(text[start]) {
			start++
		}
		if start >= to {
			break
		}

		end := start + cfg.MaxChunkSize
		if end >= to {
			end = to
		} else {
			end = breakPoint(text, start, end, to, cfg)
		}
		spans = append(spans, span{start, end})

		if end >= to {
			break
		}

		next := end - cfg.Overlap
		if cfg.RespectBoundaries {
			for next < end && next > start && !isSpace(text[next-1]) {
				next++
			}
		}
		next = alignRune(text, next)
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// breakPoint picks where a window starting at start should end,
// given a preferred end of maxEnd.
func breakPoint(text string, start, maxEnd, limit int, cfg ChunkConfig) int {
	window := text[start:maxEnd]
	minBreak := len(window) / 2

	if cfg.PreserveParagraphs {
		if idx := strings.LastIndex(window, "\n\n"); idx >= minBreak {
			return start + idx + 2
		}
	}

	if cfg.PreserveSentences {
		best := -1
		for _, ender := range sentenceEnders {
			if idx := strings.LastIndex(window, ender); idx != -1 && idx+len(ender) > best {
				best = idx + len(ender)
			}
		}
		if best >= minBreak {
			return start + best
		}
	}

	if cfg.RespectBoundaries {
		if isSpace(text[maxEnd]) || isSpace(text[maxEnd-1]) {
			return maxEnd
		}
		if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
			return start + idx
		}
		// A single word longer than the window: extend to its end
		end := maxEnd
		for end < limit && !isSpace(text[end]) {
			end++
		}
		return end
	}

	end := alignRune(text, maxEnd)
	if end <= start {
		return maxEnd
	}
	return end
}

// alignRune moves i back to the start of the UTF-8 sequence containing it.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	return b < utf8.RuneSelf && unicode.IsSpace(rune(b))
}

// Chunker splits content into chunks.
// This is the first processor in the pipeline (Order = 0).
type Chunker struct {
	config ChunkConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Chunker)(nil)

// NewChunker creates a new chunker with the given config.
func NewChunker(config ChunkConfig) *Chunker {
	return &Chunker{config: config.normalize()}
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.config
}

// Process splits each input chunk, keeping offsets relative to the document.
func (c *Chunker) Process(chunks []driven.Chunk) []driven.Chunk {
	var result []driven.Chunk
	for _, chunk := range chunks {
		for _, sub := range chunkRange(chunk.Content, 0, len(chunk.Content), c.config, len(result)) {
			sub.StartOffset += chunk.StartOffset
			sub.EndOffset += chunk.StartOffset
			result = append(result, sub)
		}
	}
	return result
}

// Name returns the processor name.
func (c *Chunker) Name() string {
	return "chunker"
}

// Order returns 0 - chunker should be first.
func (c *Chunker) Order() int {
	return 0
}
