// Package parser is a hand-rolled recursive-descent parser producing the
// absyn tree for a Tiger compilation unit. Out of the original spec's scope
// (spec §1 Non-goals), but needed to drive cmd/tigerc end to end; grounded
// on the teacher's pkg/parser idiom (a Parser struct holding current/peek
// tokens, one parseXxx method per production) scaled down to Tiger's much
// smaller grammar.
package parser

import (
	"strconv"

	"github.com/tigerlang/tigerc/pkg/absyn"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/lexer"
	"github.com/tigerlang/tigerc/pkg/symbol"
)

// Parser consumes a token stream from a lexer.Lexer and builds an absyn.Exp.
type Parser struct {
	lex *lexer.Lexer
	rep *errormsg.Reporter

	cur  lexer.Token
	peek lexer.Token
}

// New returns a Parser over src, reporting errors through rep.
func New(src string, rep *errormsg.Reporter) *Parser {
	p := &Parser{lex: lexer.New(src, rep), rep: rep}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorf(format string, args ...any) {
	p.rep.Errorf(p.cur.Pos, format, args...)
}

// expect reports an error and does not advance if cur is not k; otherwise
// it consumes the token and returns its literal.
func (p *Parser) expect(k lexer.Kind, what string) string {
	if p.cur.Kind != k {
		p.errorf("expected %s, found %q", what, p.cur.Literal)
		return ""
	}
	lit := p.cur.Literal
	p.next()
	return lit
}

// Parse parses an entire compilation unit: one Tiger expression.
func Parse(src string, rep *errormsg.Reporter) absyn.Exp {
	p := New(src, rep)
	e := p.parseExp()
	if p.cur.Kind != lexer.EOF {
		p.errorf("unexpected trailing input %q", p.cur.Literal)
	}
	return e
}

// parseExp is the entry point for any expression; it threads through the
// precedence-climbing chain down to parsePrimary, with := and ; and the
// keyword-led expressions (if/while/for/let/break) handled above it.
func (p *Parser) parseExp() absyn.Exp {
	switch p.cur.Kind {
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.LET:
		return p.parseLet()
	case lexer.BREAK:
		pos := p.cur.Pos
		p.next()
		return &absyn.BreakExp{Pos_: pos}
	default:
		return p.parseAssign()
	}
}

func (p *Parser) parseIf() absyn.Exp {
	pos := p.cur.Pos
	p.next() // if
	test := p.parseExp()
	p.expect(lexer.THEN, "'then'")
	then := p.parseExp()
	var els absyn.Exp
	if p.cur.Kind == lexer.ELSE {
		p.next()
		els = p.parseExp()
	}
	return &absyn.IfExp{Test: test, Then: then, Else: els, Pos_: pos}
}

func (p *Parser) parseWhile() absyn.Exp {
	pos := p.cur.Pos
	p.next() // while
	test := p.parseExp()
	p.expect(lexer.DO, "'do'")
	body := p.parseExp()
	return &absyn.WhileExp{Test: test, Body: body, Pos_: pos}
}

func (p *Parser) parseFor() absyn.Exp {
	pos := p.cur.Pos
	p.next() // for
	name := symbol.New(p.expect(lexer.ID, "identifier"))
	p.expect(lexer.ASSIGN, "':='")
	lo := p.parseExp()
	p.expect(lexer.TO, "'to'")
	hi := p.parseExp()
	p.expect(lexer.DO, "'do'")
	body := p.parseExp()
	return &absyn.ForExp{Var: name, Escape: absyn.NewEscape(), Lo: lo, Hi: hi, Body: body, Pos_: pos}
}

func (p *Parser) parseLet() absyn.Exp {
	pos := p.cur.Pos
	p.next() // let
	var decs []absyn.Dec
	for p.cur.Kind == lexer.TYPE || p.cur.Kind == lexer.VAR || p.cur.Kind == lexer.FUNCTION {
		decs = append(decs, p.parseDecGroup())
	}
	p.expect(lexer.IN, "'in'")
	body := p.parseExpSeq(lexer.END)
	p.expect(lexer.END, "'end'")
	return &absyn.LetExp{Decs: decs, Body: body, Pos_: pos}
}

// parseDecGroup parses one maximal run of consecutive same-kind
// declarations into a single TypeDecs/FunDecs group (spec §3: mutually
// recursive groups are consecutive declarations of the same kind).
func (p *Parser) parseDecGroup() absyn.Dec {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case lexer.TYPE:
		var decs []absyn.TypeDec
		for p.cur.Kind == lexer.TYPE {
			decs = append(decs, p.parseTypeDec())
		}
		return &absyn.TypeDecs{Decs: decs, Pos_: pos}
	case lexer.FUNCTION:
		var decs []absyn.FunDec
		for p.cur.Kind == lexer.FUNCTION {
			decs = append(decs, p.parseFunDec())
		}
		return &absyn.FunDecs{Decs: decs, Pos_: pos}
	default:
		return p.parseVarDec()
	}
}

func (p *Parser) parseTypeDec() absyn.TypeDec {
	pos := p.cur.Pos
	p.next() // type
	name := symbol.New(p.expect(lexer.ID, "identifier"))
	p.expect(lexer.EQ, "'='")
	ty := p.parseTy()
	return absyn.TypeDec{Sym: name, Ty: ty, Pos_: pos}
}

func (p *Parser) parseTy() absyn.Ty {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case lexer.ARRAY:
		p.next()
		p.expect(lexer.OF, "'of'")
		elem := symbol.New(p.expect(lexer.ID, "identifier"))
		return &absyn.ArrayTy{Sym: elem, Pos_: pos}
	case lexer.LBRACE:
		p.next()
		var fields []absyn.Field
		for p.cur.Kind != lexer.RBRACE {
			fields = append(fields, p.parseField())
			if p.cur.Kind == lexer.COMMA {
				p.next()
			}
		}
		p.next() // }
		return &absyn.RecordTy{Fields: fields, Pos_: pos}
	default:
		name := symbol.New(p.expect(lexer.ID, "identifier"))
		return &absyn.NameTy{Sym: name, Pos_: pos}
	}
}

func (p *Parser) parseField() absyn.Field {
	pos := p.cur.Pos
	name := symbol.New(p.expect(lexer.ID, "identifier"))
	p.expect(lexer.COLON, "':'")
	ty := symbol.New(p.expect(lexer.ID, "identifier"))
	return absyn.Field{Sym: name, Type: ty, Escape: absyn.NewEscape(), Pos_: pos}
}

func (p *Parser) parseVarDec() absyn.Dec {
	pos := p.cur.Pos
	p.next() // var
	name := symbol.New(p.expect(lexer.ID, "identifier"))
	var typ *symbol.Symbol
	if p.cur.Kind == lexer.COLON {
		p.next()
		typ = symbol.New(p.expect(lexer.ID, "identifier"))
	}
	p.expect(lexer.ASSIGN, "':='")
	init := p.parseExp()
	return &absyn.VarDec{Sym: name, Type: typ, Init: init, Escape: absyn.NewEscape(), Pos_: pos}
}

func (p *Parser) parseFunDec() absyn.FunDec {
	pos := p.cur.Pos
	p.next() // function
	name := symbol.New(p.expect(lexer.ID, "identifier"))
	p.expect(lexer.LPAREN, "'('")
	var params []absyn.Field
	for p.cur.Kind != lexer.RPAREN {
		params = append(params, p.parseField())
		if p.cur.Kind == lexer.COMMA {
			p.next()
		}
	}
	p.next() // )
	var result *symbol.Symbol
	if p.cur.Kind == lexer.COLON {
		p.next()
		result = symbol.New(p.expect(lexer.ID, "identifier"))
	}
	p.expect(lexer.EQ, "'='")
	body := p.parseExp()
	return absyn.FunDec{Sym: name, Params: params, Result: result, Body: body, Pos_: pos}
}

// parseExpSeq parses zero or more semicolon-separated expressions until
// end, folding them into a single SeqExp (the empty sequence has no value;
// a single expression is returned unwrapped).
func (p *Parser) parseExpSeq(end lexer.Kind) absyn.Exp {
	pos := p.cur.Pos
	if p.cur.Kind == end {
		return &absyn.SeqExp{Pos_: pos}
	}
	exps := []absyn.Exp{p.parseExp()}
	for p.cur.Kind == lexer.SEMI {
		p.next()
		exps = append(exps, p.parseExp())
	}
	if len(exps) == 1 {
		return exps[0]
	}
	return &absyn.SeqExp{Exps: exps, Pos_: pos}
}

// parseAssign handles `lvalue := exp` above the operator-precedence chain,
// since := is not itself an operator that nests (Tiger's assignment is not
// an expression that can appear as an operand).
func (p *Parser) parseAssign() absyn.Exp {
	pos := p.cur.Pos
	e := p.parseOr()
	if p.cur.Kind == lexer.ASSIGN {
		v, ok := expAsVar(e)
		if !ok {
			p.errorf("left-hand side of ':=' must be an assignable location")
			p.next()
			p.parseExp()
			return e
		}
		p.next()
		rhs := p.parseExp()
		return &absyn.AssignExp{Var: v, Exp: rhs, Pos_: pos}
	}
	return e
}

// expAsVar recovers the l-value a bare VarExp denotes, since the grammar
// parses `id`, `id.f`, and `id[e]` chains as ordinary primary expressions
// and only needs to reinterpret them as assignable locations on seeing :=.
func expAsVar(e absyn.Exp) (absyn.Var, bool) {
	if ve, ok := e.(*absyn.VarExp); ok {
		return ve.Var, true
	}
	return nil, false
}

// parseOr desugars `a | b` into `if a then 1 else b` (absyn.Op has no
// OrOp variant; spec §3's Op enum is arithmetic/relational only).
func (p *Parser) parseOr() absyn.Exp {
	left := p.parseAnd()
	for p.cur.Kind == lexer.OR {
		pos := p.cur.Pos
		p.next()
		right := p.parseAnd()
		left = &absyn.IfExp{
			Test: left,
			Then: &absyn.IntExp{Value: 1, Pos_: pos},
			Else: right,
			Pos_: pos,
		}
	}
	return left
}

// parseAnd desugars `a & b` into `if a then b else 0`.
func (p *Parser) parseAnd() absyn.Exp {
	left := p.parseCompare()
	for p.cur.Kind == lexer.AND {
		pos := p.cur.Pos
		p.next()
		right := p.parseCompare()
		left = &absyn.IfExp{
			Test: left,
			Then: right,
			Else: &absyn.IntExp{Value: 0, Pos_: pos},
			Pos_: pos,
		}
	}
	return left
}

var compareOps = map[lexer.Kind]absyn.Op{
	lexer.EQ:  absyn.EqOp,
	lexer.NEQ: absyn.NeqOp,
	lexer.LT:  absyn.LtOp,
	lexer.LE:  absyn.LeOp,
	lexer.GT:  absyn.GtOp,
	lexer.GE:  absyn.GeOp,
}

// parseCompare handles the non-associative relational operators: Tiger
// forbids chaining (`a = b = c` is not legal), so at most one is consumed.
func (p *Parser) parseCompare() absyn.Exp {
	left := p.parseAdditive()
	if op, ok := compareOps[p.cur.Kind]; ok {
		pos := p.cur.Pos
		p.next()
		right := p.parseAdditive()
		return &absyn.OpExp{Op: op, Left: left, Right: right, Pos_: pos}
	}
	return left
}

func (p *Parser) parseAdditive() absyn.Exp {
	left := p.parseMultiplicative()
	for p.cur.Kind == lexer.PLUS || p.cur.Kind == lexer.MINUS {
		pos := p.cur.Pos
		op := absyn.PlusOp
		if p.cur.Kind == lexer.MINUS {
			op = absyn.MinusOp
		}
		p.next()
		right := p.parseMultiplicative()
		left = &absyn.OpExp{Op: op, Left: left, Right: right, Pos_: pos}
	}
	return left
}

func (p *Parser) parseMultiplicative() absyn.Exp {
	left := p.parseUnary()
	for p.cur.Kind == lexer.TIMES || p.cur.Kind == lexer.DIVIDE {
		pos := p.cur.Pos
		op := absyn.TimesOp
		if p.cur.Kind == lexer.DIVIDE {
			op = absyn.DivideOp
		}
		p.next()
		right := p.parseUnary()
		left = &absyn.OpExp{Op: op, Left: left, Right: right, Pos_: pos}
	}
	return left
}

// parseUnary handles Tiger's unary minus, desugared to `0 - e` (there is
// no UnaryMinus node in absyn, matching the original's grammar action).
func (p *Parser) parseUnary() absyn.Exp {
	if p.cur.Kind == lexer.MINUS {
		pos := p.cur.Pos
		p.next()
		e := p.parseUnary()
		return &absyn.OpExp{Op: absyn.MinusOp, Left: &absyn.IntExp{Value: 0, Pos_: pos}, Right: e, Pos_: pos}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() absyn.Exp {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case lexer.NIL:
		p.next()
		return &absyn.NilExp{Pos_: pos}
	case lexer.INT:
		lit := p.cur.Literal
		p.next()
		v, _ := strconv.Atoi(lit)
		return &absyn.IntExp{Value: v, Pos_: pos}
	case lexer.STRING:
		lit := p.cur.Literal
		p.next()
		return &absyn.StringExp{Value: lit, Pos_: pos}
	case lexer.LPAREN:
		p.next()
		e := p.parseExpSeq(lexer.RPAREN)
		p.expect(lexer.RPAREN, "')'")
		return e
	case lexer.ID:
		return p.parseIDLed(pos)
	default:
		p.errorf("unexpected token %q", p.cur.Literal)
		p.next()
		return &absyn.NilExp{Pos_: pos}
	}
}

// parseIDLed handles every expression that starts with an identifier:
// a bare variable, a function call, a record literal, an array creation,
// or an l-value chain of field/subscript accesses. `id [ exp ]` is
// ambiguous between a SubscriptVar prefix and an ArrayExp until the
// following token is checked for `of` (the classic Tiger disambiguation).
func (p *Parser) parseIDLed(pos errormsg.Pos) absyn.Exp {
	name := symbol.New(p.cur.Literal)
	p.next()

	switch p.cur.Kind {
	case lexer.LPAREN:
		p.next()
		var args []absyn.Exp
		for p.cur.Kind != lexer.RPAREN {
			args = append(args, p.parseExp())
			if p.cur.Kind == lexer.COMMA {
				p.next()
			}
		}
		p.next() // )
		return &absyn.CallExp{Fn: name, Args: args, Pos_: pos}

	case lexer.LBRACE:
		p.next()
		var fields []absyn.FieldInit
		for p.cur.Kind != lexer.RBRACE {
			fpos := p.cur.Pos
			fname := symbol.New(p.expect(lexer.ID, "identifier"))
			p.expect(lexer.EQ, "'='")
			fexp := p.parseExp()
			fields = append(fields, absyn.FieldInit{Sym: fname, Exp: fexp, Pos_: fpos})
			if p.cur.Kind == lexer.COMMA {
				p.next()
			}
		}
		p.next() // }
		return &absyn.RecordExp{Type: name, Fields: fields, Pos_: pos}

	case lexer.LBRACK:
		// Could be `id[e]` (subscript, possibly followed by `of` => ArrayExp)
		// or the start of an l-value chain continuing with `.`/`[`. Peek
		// past the matching ']' is not needed: Tiger only allows `of`
		// immediately after the closing bracket for an array creation.
		p.next()
		size := p.parseExp()
		p.expect(lexer.RBRACK, "']'")
		if p.cur.Kind == lexer.OF {
			p.next()
			init := p.parseExp()
			return &absyn.ArrayExp{Type: name, Size: size, Init: init, Pos_: pos}
		}
		v := absyn.Var(&absyn.SubscriptVar{Var: &absyn.SimpleVar{Sym: name, Pos_: pos}, Exp: size, Pos_: pos})
		return p.parseVarTail(v, pos)

	default:
		v := absyn.Var(&absyn.SimpleVar{Sym: name, Pos_: pos})
		return p.parseVarTail(v, pos)
	}
}

// parseVarTail extends an l-value with further `.field` and `[exp]`
// accesses, then wraps the result as a VarExp (the caller in parseAssign
// reinterprets it as an assignable location if followed by :=).
func (p *Parser) parseVarTail(v absyn.Var, pos errormsg.Pos) absyn.Exp {
	for {
		switch p.cur.Kind {
		case lexer.DOT:
			p.next()
			fpos := p.cur.Pos
			fname := symbol.New(p.expect(lexer.ID, "identifier"))
			v = &absyn.FieldVar{Var: v, Sym: fname, Pos_: fpos}
		case lexer.LBRACK:
			p.next()
			idx := p.parseExp()
			p.expect(lexer.RBRACK, "']'")
			v = &absyn.SubscriptVar{Var: v, Exp: idx, Pos_: pos}
		default:
			return &absyn.VarExp{Var: v, Pos_: pos}
		}
	}
}
