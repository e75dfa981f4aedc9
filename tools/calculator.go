package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/itish2003/ragagent/models"
)

// constants is the only symbol table identifiers are resolved against.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Evaluate computes a single arithmetic expression. Only numeric literals,
// + - * / % ^ (** is accepted for ^), unary signs, parentheses and the
// constants pi and e are allowed; anything else is rejected while parsing.
func Evaluate(expression string) (string, error) {
	p := &exprParser{src: expression}
	if err := p.lex(); err != nil {
		return "", &models.EvaluationError{Expression: expression, Reason: err.Error()}
	}
	if len(p.toks) == 0 {
		return "", &models.EvaluationError{Expression: expression, Reason: "empty expression"}
	}
	v, err := p.parseExpr(0)
	if err == nil && p.pos < len(p.toks) {
		err = fmt.Errorf("unexpected %q", p.toks[p.pos].text)
	}
	if err != nil {
		return "", &models.EvaluationError{Expression: expression, Reason: err.Error()}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", &models.EvaluationError{Expression: expression, Reason: "result is not a finite number"}
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type tok struct {
	kind tokKind
	text string
	num  float64
}

type exprParser struct {
	src  string
	toks []tok
	pos  int
}

func (p *exprParser) lex() error {
	rs := []rune(p.src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == '_') {
				j++
			}
			// exponent part, e.g. 1e6 or 2.5E-3
			if j < len(rs) && (rs[j] == 'e' || rs[j] == 'E') {
				k := j + 1
				if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
					k++
				}
				if k < len(rs) && unicode.IsDigit(rs[k]) {
					for k < len(rs) && unicode.IsDigit(rs[k]) {
						k++
					}
					j = k
				}
			}
			text := string(rs[i:j])
			v, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", text)
			}
			p.toks = append(p.toks, tok{kind: tokNum, text: text, num: v})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			p.toks = append(p.toks, tok{kind: tokIdent, text: string(rs[i:j])})
			i = j
		case r == 'π':
			p.toks = append(p.toks, tok{kind: tokIdent, text: "pi"})
			i++
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			p.toks = append(p.toks, tok{kind: tokOp, text: "^"})
			i += 2
		case strings.ContainsRune("+-*/%^", r):
			p.toks = append(p.toks, tok{kind: tokOp, text: string(r)})
			i++
		case r == '×':
			p.toks = append(p.toks, tok{kind: tokOp, text: "*"})
			i++
		case r == '÷':
			p.toks = append(p.toks, tok{kind: tokOp, text: "/"})
			i++
		case r == '(':
			p.toks = append(p.toks, tok{kind: tokLParen, text: "("})
			i++
		case r == ')':
			p.toks = append(p.toks, tok{kind: tokRParen, text: ")"})
			i++
		default:
			return fmt.Errorf("character %q is not allowed", r)
		}
	}
	return nil
}

// binding powers: + - < * / % < unary < ^ (right associative)
var infixPower = map[string]int{
	"+": 1, "-": 1,
	"*": 2, "/": 2, "%": 2,
	"^": 4,
}

const unaryPower = 3

func (p *exprParser) parseExpr(minPower int) (float64, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return 0, err
	}
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		if t.kind != tokOp {
			break
		}
		power := infixPower[t.text]
		if power < minPower || power == 0 {
			break
		}
		p.pos++
		next := power + 1
		if t.text == "^" {
			next = power
		}
		right, err := p.parseExpr(next)
		if err != nil {
			return 0, err
		}
		left, err = apply(t.text, left, right)
		if err != nil {
			return 0, err
		}
	}
	return left, nil
}

func (p *exprParser) parsePrefix() (float64, error) {
	if p.pos >= len(p.toks) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	p.pos++
	switch t.kind {
	case tokNum:
		return t.num, nil
	case tokIdent:
		v, ok := constants[strings.ToLower(t.text)]
		if !ok {
			return 0, fmt.Errorf("unknown name %q", t.text)
		}
		return v, nil
	case tokLParen:
		v, err := p.parseExpr(0)
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case tokOp:
		if t.text == "-" || t.text == "+" {
			v, err := p.parseExpr(unaryPower)
			if err != nil {
				return 0, err
			}
			if t.text == "-" {
				return -v, nil
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("unexpected %q", t.text)
}

func apply(op string, x, y float64) (float64, error) {
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return math.Mod(x, y), nil
	case "^":
		return math.Pow(x, y), nil
	}
	return 0, fmt.Errorf("operator %q is not allowed", op)
}
