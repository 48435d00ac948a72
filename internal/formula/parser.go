package formula

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/ratewatch/internal/apperror"
)

// refPattern matches `${kind:id}` references anywhere in a formula.
var refPattern = regexp.MustCompile(`\$\{([^:}]+):([^}]+)\}`)

var allowedFuncs = map[string]bool{"abs": true, "max": true, "min": true}

// Parse parses a formula string into an Expr. References are lifted
// out first via refPattern so the tokenizer never sees `$`, `{`, `:`
// or `}` — it only ever sees arithmetic and function-call syntax.
func Parse(formula string) (*Expr, error) {
	var refs []Ref
	substituted := refPattern.ReplaceAllStringFunc(formula, func(match string) string {
		groups := refPattern.FindStringSubmatch(match)
		refs = append(refs, Ref{Kind: strings.TrimSpace(groups[1]), ID: strings.TrimSpace(groups[2])})
		return " @" + strconv.Itoa(len(refs)-1) + " "
	})

	toks, err := tokenize(substituted)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidationFailed, "tokenize formula", err)
	}

	p := &parser{toks: toks}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidationFailed, "parse formula", err)
	}
	if !p.atEnd() {
		return nil, apperror.New(apperror.KindValidationFailed, "unexpected trailing input in formula")
	}

	return &Expr{Root: root, Refs: refs}, nil
}

// --- tokenizer ---

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokVarRef
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	idx  int // for tokVarRef
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	n := len(s)

	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		case c == '@':
			j := i + 1
			for j < n && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			idx, err := strconv.Atoi(s[i+1 : j])
			if err != nil {
				return nil, apperror.New(apperror.KindValidationFailed, "malformed reference placeholder")
			}
			toks = append(toks, token{kind: tokVarRef, idx: idx})
			i = j
		case (c >= '0' && c <= '9') || c == '.':
			j := i
			for j < n && ((s[j] >= '0' && s[j] <= '9') || s[j] == '.') {
				j++
			}
			f, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, apperror.New(apperror.KindValidationFailed, "malformed numeric literal")
			}
			toks = append(toks, token{kind: tokNumber, num: f})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: s[i:j]})
			i = j
		default:
			return nil, apperror.New(apperror.KindValidationFailed, "unexpected character in formula: "+string(c))
		}
	}
	return toks, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// --- recursive-descent / precedence-climbing parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() (token, bool) {
	if p.atEnd() {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

// binding powers: * / % bind tighter than + -.
func precedence(op string) int {
	switch op {
	case "+", "-":
		return 1
	case "*", "/", "%":
		return 2
	}
	return -1
}

func (p *parser) parseExpr(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp {
			break
		}
		prec := precedence(t.text)
		if prec < minPrec || prec < 0 {
			break
		}
		p.advance()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = Binary{Op: t.text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if t, ok := p.peek(); ok && t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "+" {
			return operand, nil
		}
		return Unary{Op: '-', Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, apperror.New(apperror.KindValidationFailed, "unexpected end of formula")
	}

	switch t.kind {
	case tokNumber:
		p.advance()
		return Literal{Value: t.num}, nil

	case tokVarRef:
		p.advance()
		return Var{Index: t.idx}, nil

	case tokLParen:
		p.advance()
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return nil, apperror.New(apperror.KindValidationFailed, "missing closing parenthesis")
		}
		p.advance()
		return inner, nil

	case tokIdent:
		name := t.text
		if !allowedFuncs[name] {
			return nil, apperror.New(apperror.KindValidationFailed, "unknown function: "+name)
		}
		p.advance()
		if t, ok := p.peek(); !ok || t.kind != tokLParen {
			return nil, apperror.New(apperror.KindValidationFailed, "expected '(' after function name")
		}
		p.advance()

		var args []Node
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			for {
				arg, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				nt, ok := p.peek()
				if !ok {
					return nil, apperror.New(apperror.KindValidationFailed, "unterminated function call")
				}
				if nt.kind == tokComma {
					p.advance()
					continue
				}
				break
			}
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return nil, apperror.New(apperror.KindValidationFailed, "missing closing parenthesis in function call")
		}
		p.advance()
		return Call{Name: name, Args: args}, nil

	default:
		return nil, apperror.New(apperror.KindValidationFailed, "unexpected token in formula")
	}
}
