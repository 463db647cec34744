// Package classify maps request text to a task classification using
// deterministic pattern tables. Classification never suspends and runs in
// well under the 10ms budget for inputs up to 4KB.
package classify

import (
	"strings"
	"sync"

	"github.com/haasonsaas/relay/internal/catalog"
)

// Complexity buckets a request by how much work a model should expect.
type Complexity string

const (
	ComplexityTrivial     Complexity = "trivial"
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// Category names the dominant kind of work in the request.
type Category string

const (
	CategoryGreeting  Category = "greeting"
	CategoryQuestion  Category = "question"
	CategoryCode      Category = "code"
	CategoryMath      Category = "math"
	CategoryReasoning Category = "reasoning"
	CategoryToolUse   Category = "tool_use"
	CategoryCreative  Category = "creative"
	CategoryAnalysis  Category = "analysis"
)

// Token estimate bounds.
const (
	minEstimatedTokens = 50
	maxEstimatedTokens = 2000
)

// Classification is the value object the router consumes.
type Classification struct {
	Complexity            Complexity           `json:"complexity"`
	Category              Category             `json:"category"`
	RequiredCapabilities  []catalog.Capability `json:"required_capabilities"`
	EstimatedOutputTokens int                  `json:"estimated_output_tokens"`
	RequiresTools         bool                 `json:"requires_tools"`
	Confidence            float64              `json:"confidence"`
}

// Primary returns the first (primary) required capability.
func (c Classification) Primary() catalog.Capability {
	if len(c.RequiredCapabilities) == 0 {
		return catalog.CapGeneral
	}
	return c.RequiredCapabilities[0]
}

// Classifier is a deterministic, side-effect-free text classifier. The
// pattern table can be swapped at runtime (see Reloader); swaps are
// atomic with respect to in-flight Classify calls.
type Classifier struct {
	mu       sync.RWMutex
	patterns *compiledPatterns
}

// New creates a classifier from a pattern table.
func New(table PatternTable) (*Classifier, error) {
	compiled, err := table.compile()
	if err != nil {
		return nil, err
	}
	return &Classifier{patterns: compiled}, nil
}

// NewDefault creates a classifier with the built-in pattern table.
func NewDefault() *Classifier {
	c, err := New(DefaultPatterns())
	if err != nil {
		// The built-in table is compile-checked by tests.
		panic(err)
	}
	return c
}

// SetPatterns replaces the pattern table.
func (c *Classifier) SetPatterns(table PatternTable) error {
	compiled, err := table.compile()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.patterns = compiled
	c.mu.Unlock()
	return nil
}

// Classify maps text to a classification. toolHint marks requests the
// caller already knows carry tool intent (e.g. a /tool command prefix).
func (c *Classifier) Classify(text string, toolHint bool) Classification {
	c.mu.RLock()
	p := c.patterns
	c.mu.RUnlock()

	words := strings.Fields(text)

	if len(words) <= 2 || anyMatch(p.trivial, text) {
		// Trivial requests never route through tools, hint or not.
		return Classification{
			Complexity:            ComplexityTrivial,
			Category:              CategoryGreeting,
			RequiredCapabilities:  []catalog.Capability{catalog.CapGeneral},
			EstimatedOutputTokens: minEstimatedTokens,
			RequiresTools:         false,
			Confidence:            0.95,
		}
	}

	toolMatched := toolHint || anyMatch(p.tool, text)

	// First match wins.
	var category Category
	switch {
	case anyMatch(p.code, text):
		category = CategoryCode
	case anyMatch(p.math, text):
		category = CategoryMath
	case toolMatched:
		category = CategoryToolUse
	case anyMatch(p.creative, text):
		category = CategoryCreative
	case anyMatch(p.analysis, text):
		category = CategoryAnalysis
	case anyMatch(p.reasoning, text):
		category = CategoryReasoning
	default:
		category = CategoryQuestion
	}

	complexity := complexityFor(text, words, category)

	return Classification{
		Complexity:            complexity,
		Category:              category,
		RequiredCapabilities:  capabilitiesFor(category),
		EstimatedOutputTokens: estimateTokens(text, complexity),
		RequiresTools:         toolMatched,
		Confidence:            0.7,
	}
}

func complexityFor(text string, words []string, category Category) Complexity {
	questionMarks := strings.Count(text, "?")
	fenced := strings.Contains(text, "```")

	var complexity Complexity
	switch {
	case len(words) <= 5:
		complexity = ComplexitySimple
	case fenced || len(words) > 100:
		complexity = ComplexityVeryComplex
	case hasMultiStepConnective(words) || questionMarks > 2 || len(words) > 50:
		complexity = ComplexityComplex
	case len(words) > 20 || questionMarks > 1:
		complexity = ComplexityModerate
	default:
		complexity = ComplexitySimple
	}

	// Non-trivial code work is never cheaper than ComplexityComplex: even a short
	// "write a function" prompt needs a full implementation back.
	if category == CategoryCode && len(words) > 5 && complexity.rank() < ComplexityComplex.rank() {
		complexity = ComplexityComplex
	}
	return complexity
}

func (c Complexity) rank() int {
	switch c {
	case ComplexityTrivial:
		return 0
	case ComplexitySimple:
		return 1
	case ComplexityModerate:
		return 2
	case ComplexityComplex:
		return 3
	case ComplexityVeryComplex:
		return 4
	default:
		return 0
	}
}

var multiStepConnectives = map[string]struct{}{
	"then": {}, "next": {}, "after": {}, "also": {},
}

func hasMultiStepConnective(words []string) bool {
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,;:!?"))
		if _, ok := multiStepConnectives[w]; ok {
			return true
		}
	}
	return false
}

func capabilitiesFor(category Category) []catalog.Capability {
	switch category {
	case CategoryCode:
		return []catalog.Capability{catalog.CapCode, catalog.CapGeneral}
	case CategoryMath:
		return []catalog.Capability{catalog.CapMath, catalog.CapGeneral}
	case CategoryReasoning, CategoryAnalysis:
		return []catalog.Capability{catalog.CapReasoning, catalog.CapGeneral}
	case CategoryToolUse:
		return []catalog.Capability{catalog.CapFunctionCalling, catalog.CapGeneral}
	default:
		return []catalog.Capability{catalog.CapGeneral}
	}
}

func estimateTokens(text string, complexity Complexity) int {
	base := 2 * len([]rune(text))
	multiplier := 1
	switch complexity {
	case ComplexitySimple:
		multiplier = 2
	case ComplexityModerate:
		multiplier = 4
	case ComplexityComplex:
		multiplier = 8
	case ComplexityVeryComplex:
		multiplier = 12
	}
	estimate := base * multiplier
	if estimate < minEstimatedTokens {
		return minEstimatedTokens
	}
	if estimate > maxEstimatedTokens {
		return maxEstimatedTokens
	}
	return estimate
}
