package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// CalcTool evaluates arithmetic expressions: + - * / % ^, parentheses,
// and unary minus over float64.
type CalcTool struct{}

// NewCalcTool builds the calculator tool.
func NewCalcTool() *CalcTool { return &CalcTool{} }

func (t *CalcTool) Manifest() tools.Manifest {
	return tools.Manifest{
		Name:        "calc",
		Description: "Evaluate an arithmetic expression (+ - * / % ^ and parentheses).",
		Category:    tools.CategoryUtility,
		Trust:       tools.TrustCore,
		Scopes:      []tools.SecurityScope{tools.ScopeReadOnly},
		Profile:     tools.ProfileCPULight,
		Parameters: []tools.ParameterSpec{
			{
				Name:        "expression",
				Type:        tools.TypeString,
				Required:    true,
				Description: "Expression to evaluate, e.g. (2 + 3) * 4.5",
			},
		},
	}
}

func (t *CalcTool) Execute(_ context.Context, params map[string]any) *models.ToolResult {
	expr, _ := params["expression"].(string)
	value, err := evalExpression(expr)
	if err != nil {
		return models.ToolFailure(models.KindToolExecution, err.Error())
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return models.ToolFailure(models.KindToolExecution, "expression has no finite value")
	}
	return models.ToolSuccess(map[string]any{
		"expression": strings.TrimSpace(expr),
		"value":      value,
	})
}

// exprParser is a recursive-descent parser over a token-free byte walk.
// Grammar, lowest precedence first:
//
//	sum    = product { ("+" | "-") product }
//	product= power { ("*" | "/" | "%") power }
//	power  = unary [ "^" power ]          (right associative)
//	unary  = [ "-" ] atom
//	atom   = number | "(" sum ")"
type exprParser struct {
	input string
	pos   int
}

func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	v, err := p.sum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

func (p *exprParser) sum() (float64, error) {
	left, err := p.product()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.product()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.product()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) product() (float64, error) {
	left, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) power() (float64, error) {
	base, err := p.unary()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		exp, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) unary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.atom()
}

func (p *exprParser) atom() (float64, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case c == '.' || unicode.IsDigit(rune(c)):
		start := p.pos
		for p.pos < len(p.input) {
			c := p.input[p.pos]
			if c != '.' && !unicode.IsDigit(rune(c)) {
				break
			}
			p.pos++
		}
		v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
		}
		return v, nil
	case c == 0:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}
}

// peek returns the next non-space byte without consuming it, or 0 at end.
func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}
