package normalisers

import (
	"regexp"
	"strings"
)

var (
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	mdFence      = regexp.MustCompile("(?m)^```.*$")
	mdHTMLRemark = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// PlaintextNormaliser is the fallback for any text content.
type PlaintextNormaliser struct{}

func (PlaintextNormaliser) Normalise(content, _ string) (string, error) {
	return tidy(content), nil
}

func (PlaintextNormaliser) SupportedTypes() []string { return []string{"text/plain", "*/*"} }

func (PlaintextNormaliser) Priority() int { return 1 }

// MarkdownNormaliser drops markup while keeping the words of headings, links and images.
type MarkdownNormaliser struct{}

func (MarkdownNormaliser) Normalise(content, _ string) (string, error) {
	content = mdHTMLRemark.ReplaceAllString(content, "")
	content = mdFence.ReplaceAllString(content, "")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdEmphasis.ReplaceAllString(content, "$2")
	return tidy(content), nil
}

func (MarkdownNormaliser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (MarkdownNormaliser) Priority() int { return 50 }

// tidy unifies line endings, trims trailing spaces and caps blank runs at one empty line.
func tidy(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")

	return strings.TrimSpace(blankRuns.ReplaceAllString(content, "\n\n"))
}
