package cleaner

import (
	"errors"
	"strings"
	"testing"
)

const page = `<html><body>
<header><a href="/">Home</a></header>
<nav><ul><li>Menu item</li></ul></nav>
<main><h1>Report</h1><p>The <em>main</em> findings.</p><img src="chart.png"></main>
<footer>Copyright</footer>
</body></html>`

// --- NoiseCleaner Tests ---

func TestNoiseCleaner_KeepsMainContent(t *testing.T) {
	got, err := NewNoise().Clean(page)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !strings.HasPrefix(got, "<main>") {
		t.Errorf("expected <main> fragment, got %q", got)
	}
	for _, noise := range []string{"Menu item", "Copyright", "chart.png", "Home"} {
		if strings.Contains(got, noise) {
			t.Errorf("expected %q removed, got %q", noise, got)
		}
	}
}

// --- MarkdownCleaner Tests ---

func TestMarkdownCleaner_Clean(t *testing.T) {
	got, err := NewMarkdown().Clean(`<h1>Title</h1><p>A paragraph.</p><p></p><p></p><ul><li>one</li></ul>`)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !strings.Contains(got, "# Title") {
		t.Errorf("expected markdown heading, got %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("expected blank lines squeezed, got %q", got)
	}
}

// --- ChainCleaner Tests ---

type failing struct{}

func (failing) Clean(string) (string, error) { return "", errors.New("boom") }
func (failing) Name() string                 { return "failing" }

func TestChainCleaner(t *testing.T) {
	chain := NewChain(NewNoise(), NewMarkdown())
	if chain.Name() != "chain(noise->markdown)" {
		t.Errorf("unexpected name %q", chain.Name())
	}

	got, err := chain.Clean(page)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !strings.Contains(got, "# Report") || !strings.Contains(got, "*main*") {
		t.Errorf("expected markdown of main content, got %q", got)
	}
	if strings.Contains(got, "Copyright") {
		t.Errorf("expected footer removed, got %q", got)
	}

	if _, err := NewChain(NewNoise(), failing{}).Clean(page); err == nil {
		t.Error("expected chain to surface cleaner error")
	}
}
