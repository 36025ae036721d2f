package projectm

import (
	"fmt"
	"strconv"
)

// Hand-written recursive descent parser for the equation language.
//
// Grammar (precedence low to high):
//
//	program := stmt (';' stmt)* ';'?
//	stmt    := [ident '='] expr
//	expr    := term (('+'|'-') term)*
//	term    := unary (('*'|'/'|'%') unary)*
//	unary   := ('-'|'!') unary | primary
//	primary := number | ident | ident '(' args ')' | '(' expr ')'
//
// Identifiers are resolved to env slots at parse time, so a parsed program
// holds no strings and evaluation does no lookups.

type tokenKind uint8

const (
	tkEOF tokenKind = iota
	tkNum
	tkIdent
	tkPlus
	tkMinus
	tkStar
	tkSlash
	tkPercent
	tkBang
	tkAssign
	tkLParen
	tkRParen
	tkComma
	tkSemi
)

type token struct {
	kind tokenKind
	pos  int
	num  float64
	text string
}

type lexer struct {
	src string
	pos int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.pos++
			continue
		}
		break
	}
	if l.pos >= len(l.src) {
		return token{kind: tkEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		return l.lexNumber()
	case isIdentStart(c):
		l.pos++
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tkIdent, pos: start, text: l.src[start:l.pos]}, nil
	}

	l.pos++
	switch c {
	case '+':
		return token{kind: tkPlus, pos: start}, nil
	case '-':
		return token{kind: tkMinus, pos: start}, nil
	case '*':
		return token{kind: tkStar, pos: start}, nil
	case '/':
		return token{kind: tkSlash, pos: start}, nil
	case '%':
		return token{kind: tkPercent, pos: start}, nil
	case '!':
		return token{kind: tkBang, pos: start}, nil
	case '=':
		return token{kind: tkAssign, pos: start}, nil
	case '(':
		return token{kind: tkLParen, pos: start}, nil
	case ')':
		return token{kind: tkRParen, pos: start}, nil
	case ',':
		return token{kind: tkComma, pos: start}, nil
	case ';':
		return token{kind: tkSemi, pos: start}, nil
	}
	return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			// Not an exponent after all; back off so "2e" lexes as 2 then ident.
			l.pos = mark
		}
	}
	v, err := strconv.ParseFloat(l.src[start:l.pos], 64)
	if err != nil {
		return token{}, &ParseError{Pos: start, Msg: "malformed number"}
	}
	return token{kind: tkNum, pos: start, num: v}, nil
}

type parser struct {
	lex lexer
	tok token
	env *env
}

// parseProgram compiles one equation block against e. Identifiers bind to
// slots in e; unknown names become new writable slots. Returns a ParseError
// on the first malformed statement.
func parseProgram(src string, e *env) (*program, error) {
	p := &parser{lex: lexer{src: src}, env: e}
	if err := p.advance(); err != nil {
		return nil, err
	}
	prog := &program{}
	for p.tok.kind != tkEOF {
		// Tolerate empty statements between separators.
		if p.tok.kind == tkSemi {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.stmts = append(prog.stmts, s)
		switch p.tok.kind {
		case tkSemi:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case tkEOF:
		default:
			return nil, &ParseError{Pos: p.tok.pos, Msg: "expected ';' between statements"}
		}
	}
	return prog, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) parseStmt() (node, error) {
	// Lookahead for "ident =" without consuming on the expression path.
	if p.tok.kind == tkIdent {
		save := p.lex
		ident := p.tok
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tkAssign {
			if _, isFn := fnTable[lowerASCII(ident.text)]; isFn {
				return nil, &ParseError{Pos: ident.pos, Msg: fmt.Sprintf("cannot assign to function %q", ident.text)}
			}
			slot := p.env.bind(ident.text)
			if p.env.isReadOnly(slot) {
				return nil, &ParseError{Pos: ident.pos, Msg: fmt.Sprintf("cannot assign to read-only built-in %q", ident.text)}
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &assignNode{dst: slot, rhs: rhs}, nil
		}
		// Not an assignment; rewind and parse as expression.
		p.lex = save
		p.tok = ident
	}
	return p.parseExpr()
}

func (p *parser) parseExpr() (node, error) {
	l, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkPlus || p.tok.kind == tkMinus {
		op := opAdd
		if p.tok.kind == tkMinus {
			op = opSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		l = &binNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseTerm() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkStar || p.tok.kind == tkSlash || p.tok.kind == tkPercent {
		var op binOp
		switch p.tok.kind {
		case tkStar:
			op = opMul
		case tkSlash:
			op = opDiv
		default:
			op = opMod
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &binNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	switch p.tok.kind {
	case tkMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold negated literals so "-1" is a literal, not a tree.
		if lit, ok := arg.(litNode); ok {
			return litNode(-float64(lit)), nil
		}
		return &negNode{arg: arg}, nil
	case tkBang:
		if err := p.advance(); err != nil {
			return nil, err
		}
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{arg: arg}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tkNum:
		v := p.tok.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return litNode(v), nil
	case tkLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tkRParen {
			return nil, &ParseError{Pos: p.tok.pos, Msg: "expected ')'"}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tkIdent:
		name := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tkLParen {
			return p.parseCall(name, pos)
		}
		return varNode(p.env.bind(name)), nil
	}
	return nil, &ParseError{Pos: p.tok.pos, Msg: "expected expression"}
}

func (p *parser) parseCall(name string, pos int) (node, error) {
	def, ok := fnTable[lowerASCII(name)]
	if !ok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unknown function %q", name)}
	}
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []node
	if p.tok.kind != tkRParen {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.tok.kind != tkComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.kind != tkRParen {
		return nil, &ParseError{Pos: p.tok.pos, Msg: "expected ')' after arguments"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if len(args) != def.arity {
		return nil, &ParseError{
			Pos: pos,
			Msg: fmt.Sprintf("%s expects %d argument(s), got %d", lowerASCII(name), def.arity, len(args)),
		}
	}
	if def.op == fnIf {
		return &ifNode{cond: args[0], then: args[1], els: args[2]}, nil
	}
	return &callNode{op: def.op, args: args}, nil
}

// lowerASCII lowercases without allocation for the common already-lower case.
func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
