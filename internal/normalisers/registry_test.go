package normalisers

import (
	"strings"
	"testing"
)

type fakeNormaliser struct {
	name     string
	types    []string
	priority int
}

func (f fakeNormaliser) Normalise(content, _ string) (string, error) {
	return content + "-" + f.name, nil
}

func (f fakeNormaliser) SupportedTypes() []string { return f.types }

func (f fakeNormaliser) Priority() int { return f.priority }

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeNormaliser{name: "any", types: []string{"*/*"}, priority: 1})
	r.Register(fakeNormaliser{name: "text", types: []string{"text/*"}, priority: 10})
	r.Register(fakeNormaliser{name: "md", types: []string{"text/markdown"}, priority: 50})

	tests := []struct {
		mimeType string
		want     string
	}{
		{"text/markdown", "md"},
		{"text/markdown; charset=utf-8", "md"},
		{"TEXT/Markdown", "md"},
		{"text/csv", "text"},
		{"application/json", "any"},
		{"", "any"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			n := r.Get(tt.mimeType)
			if n == nil {
				t.Fatal("expected a normaliser")
			}
			if got := n.(fakeNormaliser).name; got != tt.want {
				t.Errorf("Get(%q) = %s, want %s", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestRegistry_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeNormaliser{name: "md", types: []string{"text/markdown"}, priority: 50})

	if n := r.Get("application/pdf"); n != nil {
		t.Errorf("expected nil, got %v", n)
	}
}

func TestRegistry_Types(t *testing.T) {
	got := DefaultRegistry().Types()
	want := []string{"*/*", "application/xhtml+xml", "text/html", "text/markdown", "text/plain", "text/x-markdown"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Types() = %v, want %v", got, want)
	}
}

func TestDefaultRegistry_Selection(t *testing.T) {
	r := DefaultRegistry()

	if _, ok := r.Get("text/html; charset=utf-8").(HTMLNormaliser); !ok {
		t.Error("expected html normaliser")
	}
	if _, ok := r.Get("text/markdown").(MarkdownNormaliser); !ok {
		t.Error("expected markdown normaliser")
	}
	if _, ok := r.Get("application/octet-stream").(PlaintextNormaliser); !ok {
		t.Error("expected plaintext fallback")
	}
}
