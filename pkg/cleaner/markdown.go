package cleaner

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// MarkdownCleaner converts HTML to Markdown.
type MarkdownCleaner struct{}

// NewMarkdown creates a Markdown cleaner.
func NewMarkdown() *MarkdownCleaner { return &MarkdownCleaner{} }

// Clean converts HTML to Markdown and squeezes blank lines.
func (c *MarkdownCleaner) Clean(html string) (string, error) {
	out, err := md.ConvertString(html)
	if err != nil {
		return "", err
	}
	return squeezeBlankLines(out), nil
}

// Name returns the cleaner type.
func (c *MarkdownCleaner) Name() string { return "markdown" }

// squeezeBlankLines keeps at most one blank line between blocks.
func squeezeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
