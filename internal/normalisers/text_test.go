package normalisers

import "testing"

func TestPlaintextNormaliser(t *testing.T) {
	got, err := PlaintextNormaliser{}.Normalise("  line one  \r\nline two\r\n\r\n\r\n\r\nnext  ", "text/plain")
	if err != nil {
		t.Fatalf("normalise: %v", err)
	}
	want := "line one\nline two\n\nnext"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkdownNormaliser(t *testing.T) {
	in := "# Title\n\nSome **bold** text with a [link](https://example.com).\n\n" +
		"![diagram](img.png)\n\n<!-- hidden -->\n```go\nfmt.Println()\n```\n\n\n\n## Next"

	got, err := MarkdownNormaliser{}.Normalise(in, "text/markdown")
	if err != nil {
		t.Fatalf("normalise: %v", err)
	}
	want := "Title\n\nSome bold text with a link.\n\ndiagram\n\nfmt.Println()\n\nNext"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
