package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bbmesh/bbmesh/internal/plugin"
)

// Calculator evaluates basic arithmetic expressions in an interactive
// loop. The parser is a small recursive descent over + - * / % and
// parentheses; nothing else is accepted, so untrusted radio traffic can
// never reach anything unsafe.
type Calculator struct{}

func (Calculator) Name() string { return "calculator" }

func (p Calculator) Start(_ context.Context, _ plugin.Context) (plugin.Response, error) {
	return plugin.Response{
		Text:     "Calculator ready. Send an expression like 2+2 or (3*4)/2.\nSend EXIT to leave.",
		Continue: true,
	}, nil
}

func (p Calculator) Resume(_ context.Context, pc plugin.Context) (plugin.Response, error) {
	text := strings.TrimSpace(pc.Message.Text)
	if exitWords[strings.ToLower(text)] {
		return plugin.Response{Text: "Leaving the calculator."}, nil
	}
	for _, prefix := range []string{"calc ", "calculate ", "math ", "="} {
		if strings.HasPrefix(strings.ToLower(text), prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}

	maxLen := settingInt(pc.Settings, "max_expression_length", 50)
	if len(text) > maxLen {
		return plugin.Response{
			Text:     fmt.Sprintf("Expression too long (max %d characters)", maxLen),
			Continue: true,
		}, nil
	}
	if text == "" {
		return plugin.Response{
			Text:     "Send an expression like: 2+2 or (3*4)/2",
			Continue: true,
		}, nil
	}

	result, err := evalExpression(text)
	if err != nil {
		return plugin.Response{
			Text:     "Invalid expression: " + err.Error(),
			Continue: true,
		}, nil
	}

	return plugin.Response{
		Text:     fmt.Sprintf("%s = %s", text, formatNumber(result)),
		Continue: true,
	}, nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

var errDivideByZero = errors.New("division by zero")

type exprParser struct {
	input string
	pos   int
}

func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q", p.input[p.pos])
	}
	return v, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseSum() (float64, error) {
	v, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, errDivideByZero
			}
			v /= rhs
		case '%':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, errDivideByZero
			}
			v = math.Mod(v, rhs)
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		if p.pos >= len(p.input) {
			return 0, errors.New("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q", p.input[p.pos])
	}

	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", p.input[start:p.pos])
	}
	return v, nil
}
