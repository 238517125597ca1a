package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"abi/internal/expr"
)

// ParseExpr parses one size, count or tag expression from its textual
// form: C-style operators over unsigned integers, dotted field paths
// with "../" scope climbs, and the sizeof/alignof/popcount builtins.
func ParseExpr(src string) (*expr.Expr, error) {
	p := &exprParser{src: src}
	p.next()
	e, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return e, nil
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokClimb // "../"
	tokLParen
	tokRParen
	tokDot
	tokOp
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type exprParser struct {
	src string
	off int
	tok token
}

func (p *exprParser) errorf(format string, args ...any) error {
	return fmt.Errorf("expression %q at offset %d: %s", p.src, p.tok.pos, fmt.Sprintf(format, args...))
}

// multi-character operators first so "<<" never scans as two "<".
var operators = []string{
	"**", "<<", ">>", "==", "!=", "<=", ">=", "&&", "||", "^^",
	"+", "-", "*", "/", "%", "&", "|", "^", "<", ">", "~", "!",
}

func (p *exprParser) next() {
	for p.off < len(p.src) && (p.src[p.off] == ' ' || p.src[p.off] == '\t') {
		p.off++
	}
	start := p.off
	if p.off >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}
	c := p.src[p.off]
	switch {
	case c == '(':
		p.off++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.off++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case strings.HasPrefix(p.src[p.off:], "../"):
		p.off += 3
		p.tok = token{kind: tokClimb, text: "../", pos: start}
	case c == '.':
		p.off++
		p.tok = token{kind: tokDot, text: ".", pos: start}
	case c >= '0' && c <= '9':
		for p.off < len(p.src) && isNumChar(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.off], pos: start}
	case isIdentChar(c):
		for p.off < len(p.src) && isIdentChar(p.src[p.off]) {
			p.off++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.off], pos: start}
	default:
		for _, op := range operators {
			if strings.HasPrefix(p.src[p.off:], op) {
				p.off += len(op)
				p.tok = token{kind: tokOp, text: op, pos: start}
				return
			}
		}
		p.tok = token{kind: tokEOF, text: string(c), pos: start}
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isNumChar(c byte) bool {
	return isIdentChar(c) // covers hex digits and the 0x/0b/0o prefixes
}

// binaryOps maps operator text to (op, precedence, right-assoc).
var binaryOps = map[string]struct {
	op    expr.Op
	prec  int
	right bool
}{
	"||": {expr.OpOr, 1, false},
	"^^": {expr.OpXor, 1, false},
	"&&": {expr.OpAnd, 2, false},
	"==": {expr.OpEq, 3, false},
	"!=": {expr.OpNe, 3, false},
	"<":  {expr.OpLt, 4, false},
	">":  {expr.OpGt, 4, false},
	"<=": {expr.OpLe, 4, false},
	">=": {expr.OpGe, 4, false},
	"|":  {expr.OpBitOr, 5, false},
	"^":  {expr.OpBitXor, 6, false},
	"&":  {expr.OpBitAnd, 7, false},
	"<<": {expr.OpShl, 8, false},
	">>": {expr.OpShr, 8, false},
	"+":  {expr.OpAdd, 9, false},
	"-":  {expr.OpSub, 9, false},
	"*":  {expr.OpMul, 10, false},
	"/":  {expr.OpDiv, 10, false},
	"%":  {expr.OpMod, 10, false},
	"**": {expr.OpPow, 11, true},
}

func (p *exprParser) parseBinary(minPrec int) (*expr.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		info, ok := binaryOps[p.tok.text]
		if !ok || info.prec < minPrec {
			break
		}
		p.next()
		nextMin := info.prec + 1
		if info.right {
			nextMin = info.prec
		}
		right, err := p.parseBinary(nextMin)
		if err != nil {
			return nil, err
		}
		left = expr.Bin(info.op, left, right)
	}
	return left, nil
}

func (p *exprParser) parseUnary() (*expr.Expr, error) {
	if p.tok.kind == tokOp {
		var op expr.Op
		switch p.tok.text {
		case "~":
			op = expr.OpBitNot
		case "-":
			op = expr.OpNeg
		case "!":
			op = expr.OpNot
		}
		if op != 0 {
			p.next()
			x, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return expr.Unary(op, x), nil
		}
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (*expr.Expr, error) {
	switch p.tok.kind {
	case tokNumber:
		v, err := strconv.ParseUint(p.tok.text, 0, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", p.tok.text)
		}
		p.next()
		return expr.Lit(v), nil
	case tokLParen:
		p.next()
		e, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected closing parenthesis")
		}
		p.next()
		return e, nil
	case tokClimb:
		var segs []string
		for p.tok.kind == tokClimb {
			segs = append(segs, "..")
			p.next()
		}
		rest, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return expr.Ref(append(segs, rest...)...), nil
	case tokIdent:
		name := p.tok.text
		p.next()
		switch name {
		case "sizeof", "alignof", "popcount":
			return p.parseBuiltin(name)
		}
		segs := []string{name}
		for p.tok.kind == tokDot {
			p.next()
			if p.tok.kind != tokIdent {
				return nil, p.errorf("expected field name after '.'")
			}
			segs = append(segs, p.tok.text)
			p.next()
		}
		return expr.Ref(segs...), nil
	}
	return nil, p.errorf("expected expression, found %q", p.tok.text)
}

func (p *exprParser) parsePath() ([]string, error) {
	if p.tok.kind != tokIdent {
		return nil, p.errorf("expected field name")
	}
	segs := []string{p.tok.text}
	p.next()
	for p.tok.kind == tokDot {
		p.next()
		if p.tok.kind != tokIdent {
			return nil, p.errorf("expected field name after '.'")
		}
		segs = append(segs, p.tok.text)
		p.next()
	}
	return segs, nil
}

func (p *exprParser) parseBuiltin(name string) (*expr.Expr, error) {
	if p.tok.kind != tokLParen {
		return nil, p.errorf("expected '(' after %s", name)
	}
	p.next()
	if name == "popcount" {
		arg, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected closing parenthesis")
		}
		p.next()
		return expr.Popcount(arg), nil
	}
	if p.tok.kind != tokIdent {
		return nil, p.errorf("expected type name in %s", name)
	}
	typeName := p.tok.text
	p.next()
	if p.tok.kind != tokRParen {
		return nil, p.errorf("expected closing parenthesis")
	}
	p.next()
	if name == "sizeof" {
		return expr.Sizeof(typeName), nil
	}
	return expr.Alignof(typeName), nil
}
