package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/catalog"
)

func TestClassify_Trivial(t *testing.T) {
	c := NewDefault()
	for _, text := range []string{"hi", "hello there", "thanks!", "ok", "good morning"} {
		got := c.Classify(text, false)
		if got.Complexity != ComplexityTrivial || got.Category != CategoryGreeting {
			t.Errorf("Classify(%q) = (%s, %s), want (trivial, greeting)", text, got.Complexity, got.Category)
		}
		if got.EstimatedOutputTokens != 50 {
			t.Errorf("Classify(%q) tokens = %d, want 50", text, got.EstimatedOutputTokens)
		}
		if got.Confidence != 0.95 {
			t.Errorf("Classify(%q) confidence = %v, want 0.95", text, got.Confidence)
		}
		if got.RequiresTools {
			t.Errorf("Classify(%q) requires tools", text)
		}
	}
}

func TestClassify_Categories(t *testing.T) {
	c := NewDefault()
	tests := []struct {
		text string
		want Category
	}{
		{"write a python function that returns fibonacci(n)", CategoryCode},
		{"calculate 15% of 2400 and explain please", CategoryMath},
		{"what is 3 + 4 times two exactly", CategoryMath},
		{"fetch the contents of that directory listing please", CategoryToolUse},
		{"write a poem about the sea at dawn", CategoryCreative},
		{"compare these two database designs for me", CategoryAnalysis},
		{"why does the sky appear blue at noon", CategoryReasoning},
		{"what is the capital city of France", CategoryQuestion},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.text, false); got.Category != tt.want {
			t.Errorf("Classify(%q) category = %s, want %s", tt.text, got.Category, tt.want)
		}
	}
}

func TestClassify_CodeRequest(t *testing.T) {
	c := NewDefault()
	got := c.Classify("write a python function that returns fibonacci(n)", false)
	if got.Complexity != ComplexityComplex {
		t.Errorf("complexity = %s, want complex", got.Complexity)
	}
	if got.EstimatedOutputTokens < 400 {
		t.Errorf("estimated tokens = %d, want >= 400", got.EstimatedOutputTokens)
	}
	if want := []catalog.Capability{catalog.CapCode, catalog.CapGeneral}; len(got.RequiredCapabilities) != 2 ||
		got.RequiredCapabilities[0] != want[0] || got.RequiredCapabilities[1] != want[1] {
		t.Errorf("capabilities = %v, want %v", got.RequiredCapabilities, want)
	}
	if got.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", got.Confidence)
	}
	if got.RequiresTools {
		t.Error("code request should not require tools")
	}
}

func TestClassify_Complexity(t *testing.T) {
	c := NewDefault()

	short := c.Classify("explain gravity to me please now", false)
	if short.Complexity != ComplexitySimple && short.Complexity != ComplexityModerate {
		t.Errorf("six-word request complexity = %s", short.Complexity)
	}

	fenced := c.Classify("explain this snippet please\n```\nfmt.Println(1)\n```\nwhat does it do", false)
	if fenced.Complexity != ComplexityVeryComplex {
		t.Errorf("fenced block complexity = %s, want very_complex", fenced.Complexity)
	}

	multiStep := c.Classify("summarize the report first and then draft a reply to the author about it", false)
	if multiStep.Complexity != ComplexityComplex {
		t.Errorf("multi-step complexity = %s, want complex", multiStep.Complexity)
	}

	long := c.Classify(strings.Repeat("word ", 120), false)
	if long.Complexity != ComplexityVeryComplex {
		t.Errorf("120-word complexity = %s, want very_complex", long.Complexity)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewDefault()
	text := "analyze the trade-offs between the two approaches and then recommend one"
	first := c.Classify(text, false)
	for i := 0; i < 5; i++ {
		got := c.Classify(text, false)
		if got.Complexity != first.Complexity || got.Category != first.Category ||
			got.EstimatedOutputTokens != first.EstimatedOutputTokens ||
			got.RequiresTools != first.RequiresTools || got.Confidence != first.Confidence {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassify_ToolHint(t *testing.T) {
	c := NewDefault()
	got := c.Classify("please summarize my unread messages for me", true)
	if !got.RequiresTools {
		t.Error("tool hint should force requires_tools")
	}

	// The trivial path discards the hint.
	trivial := c.Classify("hi", true)
	if trivial.Complexity != ComplexityTrivial {
		t.Fatalf("complexity = %s, want trivial", trivial.Complexity)
	}
	if trivial.RequiresTools {
		t.Error("trivial requests must not require tools even with the hint")
	}
}

func TestClassify_TokenBounds(t *testing.T) {
	c := NewDefault()
	huge := c.Classify(strings.Repeat("analyze and compare all options carefully ", 200), false)
	if huge.EstimatedOutputTokens > 2000 {
		t.Errorf("tokens = %d, want <= 2000", huge.EstimatedOutputTokens)
	}
	tiny := c.Classify("explain gravity to me please now", false)
	if tiny.EstimatedOutputTokens < 50 {
		t.Errorf("tokens = %d, want >= 50", tiny.EstimatedOutputTokens)
	}
}

func TestClassify_Budget(t *testing.T) {
	c := NewDefault()
	input := strings.Repeat("analyze compare evaluate the design then refactor it ", 80) // ~4KB
	start := time.Now()
	c.Classify(input, false)
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("classification took %v, budget is 10ms", elapsed)
	}
}

func TestLoadPatterns_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	if err := os.WriteFile(path, []byte("code:\n  - '(?i)\\bkotlin\\b'\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadPatterns(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Code) != 1 {
		t.Errorf("code patterns = %d, want 1 (override)", len(table.Code))
	}
	if len(table.Trivial) == 0 {
		t.Error("trivial patterns should fall back to defaults")
	}
	c, err := New(table)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Classify("write me some kotlin for an android activity", false); got.Category != CategoryCode {
		t.Errorf("category = %s, want code via overridden table", got.Category)
	}
}

func TestDefaultPatterns_Compile(t *testing.T) {
	if _, err := DefaultPatterns().compile(); err != nil {
		t.Fatalf("built-in pattern table must compile: %v", err)
	}
}
