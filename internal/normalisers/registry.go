// Package normalisers converts uploaded content to plain text before chunking.
package normalisers

import (
	"mime"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry picks the highest priority normaliser that accepts a MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry registers the plain text, Markdown and HTML normalisers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PlaintextNormaliser{})
	r.Register(MarkdownNormaliser{})
	r.Register(HTMLNormaliser{})
	return r
}

func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

func (r *Registry) Get(mimeType string) driven.Normaliser {
	mediaType := baseType(mimeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.normalisers {
		if accepts(n.SupportedTypes(), mediaType) {
			return n
		}
	}
	return nil
}

// Types returns every registered MIME type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, n := range r.normalisers {
		for _, t := range n.SupportedTypes() {
			seen[t] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// baseType strips parameters such as charset; unparsable input is lowercased as is.
func baseType(mimeType string) string {
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func accepts(supported []string, mediaType string) bool {
	for _, s := range supported {
		s = strings.ToLower(s)
		switch {
		case s == "*/*", s == mediaType:
			return true
		case strings.HasSuffix(s, "/*") && mediaType != "" && strings.HasPrefix(mediaType, strings.TrimSuffix(s, "*")):
			return true
		}
	}
	return false
}
