package classify

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternTable holds the regular expressions driving classification. The
// table is data, not code: it can be loaded from yaml so pattern evolution
// does not require recompiling the classifier.
type PatternTable struct {
	Trivial   []string `yaml:"trivial"`
	Code      []string `yaml:"code"`
	Math      []string `yaml:"math"`
	Tool      []string `yaml:"tool"`
	Creative  []string `yaml:"creative"`
	Analysis  []string `yaml:"analysis"`
	Reasoning []string `yaml:"reasoning"`
}

// DefaultPatterns returns the built-in pattern table.
func DefaultPatterns() PatternTable {
	return PatternTable{
		Trivial: []string{
			`(?i)^\s*(hi|hey|hello|howdy|yo|sup)[.!?\s]*$`,
			`(?i)^\s*(good\s+(morning|afternoon|evening|night))[.!?\s]*$`,
			`(?i)^\s*(thanks|thank\s+you|thx|ty|cheers)[.!?\s]*$`,
			`(?i)^\s*(ok|okay|yes|yep|yeah|no|nope|sure|fine|cool|great)[.!?\s]*$`,
			`(?i)^\s*(bye|goodbye|see\s+you|later)[.!?\s]*$`,
		},
		Code: []string{
			"```",
			`(?i)\b(python|javascript|typescript|golang|rust|java|c\+\+|sql|bash|html|css)\b`,
			`(?i)\b(function|class|struct|method|variable|array|loop|recursion|algorithm)\b`,
			`(?i)\b(code|script|program|compile|debug|refactor|stack\s*trace|traceback|exception)\b`,
			`(?i)\b(def|func|import|println|console\.log)\b`,
		},
		Math: []string{
			`(?i)\b(calculate|compute|solve|sum|multiply|divide|subtract|equation|integral|derivative)\b`,
			`(?i)\b(percent|percentage|average|median|probability)\b`,
			`\d\s*[+\-*/^%]\s*\d`,
		},
		Tool: []string{
			`(?i)\b(run|execute|launch|invoke|shell|command|terminal)\b`,
			`(?i)\b(fetch|download|browse|scrape|crawl)\b`,
			`(?i)\b(file|directory|folder|path)\b`,
			`(?i)https?://\S+`,
		},
		Creative: []string{
			`(?i)\b(write|compose|draft|generate|create)\s+(a|an|some|the)?\s*(story|poem|song|essay|article|letter|email|post)\b`,
			`(?i)\b(brainstorm|imagine|invent)\b`,
		},
		Analysis: []string{
			`(?i)\b(analyze|analyse|compare|evaluate|assess|review|critique|summarize|summarise)\b`,
			`(?i)\b(pros\s+and\s+cons|trade-?offs?)\b`,
		},
		Reasoning: []string{
			`(?i)\b(why|because|reason|logic|logical|think|deduce|infer|explain)\b`,
			`(?i)\b(step\s+by\s+step|prove|derive)\b`,
		},
	}
}

// LoadPatterns reads a pattern table from a yaml file. Empty sections fall
// back to the defaults so a partial file only overrides what it names.
func LoadPatterns(path string) (PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternTable{}, err
	}
	table := PatternTable{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return PatternTable{}, fmt.Errorf("parse pattern table %s: %w", path, err)
	}
	defaults := DefaultPatterns()
	if len(table.Trivial) == 0 {
		table.Trivial = defaults.Trivial
	}
	if len(table.Code) == 0 {
		table.Code = defaults.Code
	}
	if len(table.Math) == 0 {
		table.Math = defaults.Math
	}
	if len(table.Tool) == 0 {
		table.Tool = defaults.Tool
	}
	if len(table.Creative) == 0 {
		table.Creative = defaults.Creative
	}
	if len(table.Analysis) == 0 {
		table.Analysis = defaults.Analysis
	}
	if len(table.Reasoning) == 0 {
		table.Reasoning = defaults.Reasoning
	}
	return table, nil
}

type compiledPatterns struct {
	trivial   []*regexp.Regexp
	code      []*regexp.Regexp
	math      []*regexp.Regexp
	tool      []*regexp.Regexp
	creative  []*regexp.Regexp
	analysis  []*regexp.Regexp
	reasoning []*regexp.Regexp
}

func (t PatternTable) compile() (*compiledPatterns, error) {
	c := &compiledPatterns{}
	for _, group := range []struct {
		name string
		src  []string
		dst  *[]*regexp.Regexp
	}{
		{"trivial", t.Trivial, &c.trivial},
		{"code", t.Code, &c.code},
		{"math", t.Math, &c.math},
		{"tool", t.Tool, &c.tool},
		{"creative", t.Creative, &c.creative},
		{"analysis", t.Analysis, &c.analysis},
		{"reasoning", t.Reasoning, &c.reasoning},
	} {
		for _, src := range group.src {
			re, err := regexp.Compile(src)
			if err != nil {
				return nil, fmt.Errorf("pattern table %s: %q: %w", group.name, src, err)
			}
			*group.dst = append(*group.dst, re)
		}
	}
	return c, nil
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
