package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/nestc/internal/ir"
)

// Expression syntax of pipeline files:
//
//	expr    := or
//	or      := and ("||" and)*
//	and     := cmp ("&&" cmp)*
//	cmp     := add (("<" | "<=" | ">" | ">=" | "==" | "!=") add)*
//	add     := mul (("+" | "-") mul)*
//	mul     := unary (("*" | "/" | "%") unary)*
//	unary   := "-" unary | primary
//	primary := number | "true" | "false" | ident | ident "(" args ")" | "(" expr ")"
//
// A call names an image, a function, min/max or a scalar type (a cast).
// Integer literals are int32, literals with a point or exponent are float32;
// a cast applied directly to a literal yields a literal of that type.

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokPunct
)

type lexToken struct {
	kind tokenKind
	val  string
	pos  int
}

// ParseError is a syntax or resolution error inside one expression string.
// Pos is the byte offset into the expression.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Pos, e.Message)
}

func lex(src string) ([]lexToken, error) {
	var toks []lexToken
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case unicode.IsDigit(rune(ch)) || (ch == '.' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			start := i
			for i < len(src) && (unicode.IsDigit(rune(src[i])) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				i++
				if i < len(src) && (src[i] == '+' || src[i] == '-') {
					i++
				}
				for i < len(src) && unicode.IsDigit(rune(src[i])) {
					i++
				}
			}
			toks = append(toks, lexToken{kind: tokNumber, val: src[start:i], pos: start})
		case unicode.IsLetter(rune(ch)) || ch == '_':
			start := i
			for i < len(src) && (unicode.IsLetter(rune(src[i])) || unicode.IsDigit(rune(src[i])) || src[i] == '_') {
				i++
			}
			toks = append(toks, lexToken{kind: tokIdent, val: src[start:i], pos: start})
		case strings.ContainsRune("(),", rune(ch)):
			toks = append(toks, lexToken{kind: tokPunct, val: string(ch), pos: i})
			i++
		default:
			if i+1 < len(src) {
				two := src[i : i+2]
				switch two {
				case "<=", ">=", "==", "!=", "&&", "||":
					toks = append(toks, lexToken{kind: tokOp, val: two, pos: i})
					i += 2
					continue
				}
			}
			if strings.ContainsRune("+-*/%<>", rune(ch)) {
				toks = append(toks, lexToken{kind: tokOp, val: string(ch), pos: i})
				i++
				continue
			}
			return nil, &ParseError{Pos: i, Message: fmt.Sprintf("unexpected character %q", ch)}
		}
	}
	return append(toks, lexToken{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	toks []lexToken
	at   int
	g    *ir.Graph
}

// ParseExpr parses a function body. Identifiers resolve against g: declared
// parameters become parameter references and every other bare identifier is
// an index variable, checked against the domain when the body is defined.
func ParseExpr(src string, g *ir.Graph) (e ir.Expr, err error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, g: g}
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			e, err = nil, pe
		}
	}()
	e = p.parseOr()
	if tok := p.peek(); tok.kind != tokEOF {
		p.fail(tok, "unexpected %q after expression", tok.val)
	}
	return e, nil
}

func (p *parser) peek() lexToken { return p.toks[p.at] }

func (p *parser) next() lexToken {
	tok := p.toks[p.at]
	if tok.kind != tokEOF {
		p.at++
	}
	return tok
}

func (p *parser) fail(tok lexToken, format string, args ...any) {
	panic(&ParseError{Pos: tok.pos, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) expect(kind tokenKind, val string) lexToken {
	tok := p.next()
	if tok.kind != kind || tok.val != val {
		if tok.kind == tokEOF {
			p.fail(tok, "expected %q, got end of expression", val)
		}
		p.fail(tok, "expected %q, got %q", val, tok.val)
	}
	return tok
}

func (p *parser) isOp(vals ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, v := range vals {
		if tok.val == v {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() ir.Expr {
	e := p.parseAnd()
	for p.isOp("||") {
		p.next()
		e = ir.Bin(ir.OpOr, e, p.parseAnd())
	}
	return e
}

func (p *parser) parseAnd() ir.Expr {
	e := p.parseCmp()
	for p.isOp("&&") {
		p.next()
		e = ir.Bin(ir.OpAnd, e, p.parseCmp())
	}
	return e
}

func (p *parser) parseCmp() ir.Expr {
	e := p.parseAdd()
	for p.isOp("<", "<=", ">", ">=", "==", "!=") {
		op := p.next().val
		r := p.parseAdd()
		switch op {
		case "<":
			e = ir.Bin(ir.OpLT, e, r)
		case "<=":
			e = ir.Bin(ir.OpLE, e, r)
		case ">":
			e = ir.Bin(ir.OpLT, r, e)
		case ">=":
			e = ir.Bin(ir.OpLE, r, e)
		case "==":
			e = ir.Bin(ir.OpEQ, e, r)
		case "!=":
			e = ir.Bin(ir.OpNE, e, r)
		}
	}
	return e
}

func (p *parser) parseAdd() ir.Expr {
	e := p.parseMul()
	for p.isOp("+", "-") {
		if p.next().val == "+" {
			e = ir.Add(e, p.parseMul())
		} else {
			e = ir.Sub(e, p.parseMul())
		}
	}
	return e
}

func (p *parser) parseMul() ir.Expr {
	e := p.parseUnary()
	for p.isOp("*", "/", "%") {
		switch p.next().val {
		case "*":
			e = ir.Mul(e, p.parseUnary())
		case "/":
			e = ir.Div(e, p.parseUnary())
		case "%":
			e = ir.Bin(ir.OpMod, e, p.parseUnary())
		}
	}
	return e
}

func (p *parser) parseUnary() ir.Expr {
	if p.isOp("-") {
		p.next()
		operand := p.parseUnary()
		if c, ok := operand.(ir.Const); ok && c.Type.IsNumeric() {
			c.I = ir.NormInt(c.Type, -c.I)
			c.F = -c.F
			return c
		}
		return ir.Sub(ir.Int(0), operand)
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() ir.Expr {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return p.literal(tok, ir.Invalid)
	case tokPunct:
		if tok.val == "(" {
			e := p.parseOr()
			p.expect(tokPunct, ")")
			return e
		}
	case tokIdent:
		if p.peek().kind == tokPunct && p.peek().val == "(" {
			return p.parseCall(tok)
		}
		switch tok.val {
		case "true":
			return ir.BoolConst(true)
		case "false":
			return ir.BoolConst(false)
		}
		if param, ok := p.g.Param(tok.val); ok {
			return ir.ParamRef{Name: param.Name, Type: param.Type}
		}
		return ir.V(tok.val)
	case tokEOF:
		p.fail(tok, "unexpected end of expression")
	}
	p.fail(tok, "unexpected %q", tok.val)
	return nil
}

// literal converts a number token. With want == Invalid the type follows the
// spelling: int32 for integers, float32 otherwise.
func (p *parser) literal(tok lexToken, want ir.ScalarType) ir.Const {
	isFloat := strings.ContainsAny(tok.val, ".eE")
	if want == ir.Invalid {
		want = ir.Int32
		if isFloat {
			want = ir.Float32
		}
	}
	if want.IsFloat() || isFloat {
		f, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			p.fail(tok, "bad number %q", tok.val)
		}
		if want.IsFloat() {
			return ir.Const{Type: want, F: ir.NormFloat(want, f)}
		}
		return ir.Const{Type: want, I: ir.FloatToInt(want, f)}
	}
	i, err := strconv.ParseInt(tok.val, 10, 64)
	if err != nil {
		p.fail(tok, "bad integer %q", tok.val)
	}
	if want == ir.Int32 && (i > math.MaxInt32 || i < math.MinInt32) {
		p.fail(tok, "integer %s overflows int32; write int64(%s)", tok.val, tok.val)
	}
	return ir.Const{Type: want, I: ir.NormInt(want, i)}
}

func (p *parser) parseCall(name lexToken) ir.Expr {
	p.expect(tokPunct, "(")

	if typ, err := ir.ParseScalarType(name.val); err == nil {
		// cast of a bare literal: build the literal at the target precision
		if num := p.peek(); num.kind == tokNumber && p.toks[p.at+1].kind == tokPunct && p.toks[p.at+1].val == ")" {
			p.next()
			p.next()
			return p.literal(num, typ)
		}
		arg := p.parseOr()
		p.expect(tokPunct, ")")
		return ir.Convert(typ, arg)
	}

	var args []ir.Expr
	if !(p.peek().kind == tokPunct && p.peek().val == ")") {
		args = append(args, p.parseOr())
		for p.peek().kind == tokPunct && p.peek().val == "," {
			p.next()
			args = append(args, p.parseOr())
		}
	}
	p.expect(tokPunct, ")")

	switch name.val {
	case "min", "max":
		if len(args) != 2 {
			p.fail(name, "%s takes 2 arguments, got %d", name.val, len(args))
		}
		if name.val == "min" {
			return ir.Min(args[0], args[1])
		}
		return ir.Max(args[0], args[1])
	}
	if img, ok := p.g.Image(name.val); ok {
		return img.Read(args...)
	}
	if id, ok := p.g.FuncByName(name.val); ok {
		return p.g.Call(id, args...)
	}
	p.fail(name, "%q is not an image, a function or a builtin", name.val)
	return nil
}
