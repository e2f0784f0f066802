// Package semant is the type checker (spec C8): a recursive walk over the
// AST that threads a variable environment, a type environment, and the
// current loop's break target, driving Translate to build IR as it goes.
// Grounded on original_source/src/semant.c and src/env.c.
package semant

import (
	"github.com/tigerlang/tigerc/pkg/absyn"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/symbol"
	"github.com/tigerlang/tigerc/pkg/temp"
	"github.com/tigerlang/tigerc/pkg/translate"
	"github.com/tigerlang/tigerc/pkg/types"
)

// EnvEntry is the sum of variable-environment bindings (spec §4.8).
type EnvEntry interface{ implEnvEntry() }

// VarEntry binds a variable symbol to its storage and declared type.
type VarEntry struct {
	Access translate.Access
	Type   types.Type
}

// FunEntry binds a function symbol to the level its body runs at, its
// code label, and its signature.
type FunEntry struct {
	Level   *translate.Level
	Label   temp.Label
	Formals []types.Type
	Result  types.Type
}

func (*VarEntry) implEnvEntry() {}
func (*FunEntry) implEnvEntry() {}

// expty pairs a translated expression with its checked type, exactly as
// trans_exp's return value does in the original.
type expty struct {
	Exp translate.Exp
	Ty  types.Type
}

var errTy = expty{Exp: translate.IntExp(0), Ty: &types.Int{}}

// Checker threads the venv/tenv/loop-context state of a single compilation
// unit; it is not safe for concurrent use (spec §5).
type Checker struct {
	tr        *translate.Translator
	reporter  *errormsg.Reporter
	venv      *symbol.Table[EnvEntry]
	tenv      *symbol.Table[types.Type]
	doneStack []temp.Label // top is the innermost loop's break target
	baseFuncs map[*symbol.Symbol]bool
}

// New creates a Checker with the Tiger standard library already bound into
// its base environments (spec §4.8, grounded on env.c's base_venv/base_tenv).
func New(reporter *errormsg.Reporter, tr *translate.Translator) *Checker {
	c := &Checker{
		tr:        tr,
		reporter:  reporter,
		venv:      symbol.NewTable[EnvEntry](),
		tenv:      symbol.NewTable[types.Type](),
		baseFuncs: make(map[*symbol.Symbol]bool),
	}
	c.bindBaseEnv()
	return c
}

func (c *Checker) bindBaseEnv() {
	c.tenv.Bind(symbol.New("int"), &types.Int{})
	c.tenv.Bind(symbol.New("string"), &types.String{})

	outer := c.tr.OutermostLevel()
	bind := func(name string, formals []types.Type, result types.Type) {
		sym := symbol.New(name)
		c.venv.Bind(sym, &FunEntry{Level: outer, Label: temp.NamedLabel(name), Formals: formals, Result: result})
		c.baseFuncs[sym] = true
	}
	// signatures per env.c's env_base_venv, exactly.
	bind("print", []types.Type{&types.String{}}, &types.Void{})
	bind("printi", []types.Type{&types.Int{}}, &types.Void{})
	bind("flush", nil, &types.Void{})
	bind("getchar", nil, &types.String{})
	bind("ord", []types.Type{&types.String{}}, &types.Int{})
	bind("chr", []types.Type{&types.Int{}}, &types.String{})
	bind("size", []types.Type{&types.String{}}, &types.Int{})
	bind("substring", []types.Type{&types.String{}, &types.Int{}, &types.Int{}}, &types.String{})
	bind("concat", []types.Type{&types.String{}, &types.String{}}, &types.String{})
	bind("not", []types.Type{&types.Int{}}, &types.Int{})
	bind("exit", []types.Type{&types.Int{}}, &types.Void{})
}

// TransProg type-checks and translates a whole program, wrapping the
// result as the outermost level's ProcFrag (spec §4.8's sem_trans_prog).
// Callers read the finished output via tr.Frags().
func (c *Checker) TransProg(exp absyn.Exp) {
	outer := c.tr.OutermostLevel()
	prog := c.transExp(outer, exp)
	c.tr.AddFuncFrag(prog.Exp, outer)
}

func isInt(t types.Type) bool  { _, ok := types.Actual(t).(*types.Int); return ok }
func isVoid(t types.Type) bool { _, ok := types.Actual(t).(*types.Void); return ok }

func (c *Checker) pushLoop(done temp.Label) { c.doneStack = append(c.doneStack, done) }
func (c *Checker) popLoop()                 { c.doneStack = c.doneStack[:len(c.doneStack)-1] }

func (c *Checker) transVar(level *translate.Level, v absyn.Var) expty {
	switch vr := v.(type) {
	case *absyn.SimpleVar:
		entry, ok := c.venv.Lookup(vr.Sym)
		if !ok {
			c.reporter.Errorf(vr.Pos_, "undefined variable %s", vr.Sym.Name())
			return errTy
		}
		ve, ok := entry.(*VarEntry)
		if !ok {
			c.reporter.Errorf(vr.Pos_, "%s is not a variable", vr.Sym.Name())
			return errTy
		}
		return expty{Exp: c.tr.SimpleVar(ve.Access, level), Ty: types.Actual(ve.Type)}

	case *absyn.FieldVar:
		base := c.transVar(level, vr.Var)
		rec, ok := types.Actual(base.Ty).(*types.Record)
		if !ok {
			c.reporter.Errorf(vr.Pos_, "expected record type")
			return errTy
		}
		// Fields are laid out starting at record+0 (spec §4.4's record
		// allocation moves field i into slot i*word-size, i from 0); see
		// DESIGN.md for the off-by-one this corrects against the original.
		for i, f := range rec.Fields {
			if f.Name == vr.Sym {
				return expty{Exp: translate.FieldVar(base.Exp, i), Ty: types.Actual(f.Type)}
			}
		}
		c.reporter.Errorf(vr.Pos_, "field %s not declared", vr.Sym.Name())
		return errTy

	case *absyn.SubscriptVar:
		arr := c.transVar(level, vr.Var)
		idx := c.transExp(level, vr.Exp)
		at, ok := types.Actual(arr.Ty).(*types.Array)
		if !ok {
			c.reporter.Errorf(vr.Pos_, "not an array type")
			return errTy
		}
		if !isInt(idx.Ty) {
			c.reporter.Errorf(vr.Pos_, "array index must be integer")
			return expty{Exp: translate.IntExp(0), Ty: &types.Int{}}
		}
		return expty{Exp: translate.SubscriptVar(arr.Exp, idx.Exp), Ty: types.Actual(at.Elem)}
	}
	errormsg.Impossible("semant: unhandled variable kind %T", v)
	panic("unreachable")
}

func (c *Checker) transExp(level *translate.Level, exp absyn.Exp) expty {
	if exp == nil {
		return expty{Exp: translate.IntExp(0), Ty: &types.Int{}}
	}

	switch e := exp.(type) {
	case *absyn.VarExp:
		return c.transVar(level, e.Var)

	case *absyn.NilExp:
		return expty{Exp: translate.NilExp(), Ty: &types.Nil{}}

	case *absyn.IntExp:
		return expty{Exp: translate.IntExp(e.Value), Ty: &types.Int{}}

	case *absyn.StringExp:
		return expty{Exp: c.tr.StringExp(e.Value), Ty: &types.String{}}

	case *absyn.CallExp:
		return c.transCall(level, e)

	case *absyn.OpExp:
		return c.transOp(level, e)

	case *absyn.RecordExp:
		return c.transRecord(level, e)

	case *absyn.SeqExp:
		return c.transSeq(level, e)

	case *absyn.AssignExp:
		container := c.transVar(level, e.Var)
		rhs := c.transExp(level, e.Exp)
		if !types.Compatible(container.Ty, rhs.Ty) {
			c.reporter.Errorf(e.Pos_, "types do not match in assignment")
			return errTy
		}
		return expty{Exp: translate.AssignExp(container.Exp, rhs.Exp), Ty: &types.Void{}}

	case *absyn.IfExp:
		return c.transIf(level, e)

	case *absyn.WhileExp:
		return c.transWhile(level, e)

	case *absyn.ForExp:
		return c.transFor(level, e)

	case *absyn.BreakExp:
		if len(c.doneStack) == 0 {
			c.reporter.Errorf(e.Pos_, "break statement must be inside a while or for loop")
			return expty{Exp: translate.IntExp(0), Ty: &types.Void{}}
		}
		done := c.doneStack[len(c.doneStack)-1]
		return expty{Exp: translate.BreakExp(done), Ty: &types.Void{}}

	case *absyn.ArrayExp:
		return c.transArray(level, e)

	case *absyn.LetExp:
		return c.transLet(level, e)
	}
	errormsg.Impossible("semant: unhandled expression kind %T", exp)
	panic("unreachable")
}

func (c *Checker) transOp(level *translate.Level, e *absyn.OpExp) expty {
	left := c.transExp(level, e.Left)
	right := c.transExp(level, e.Right)

	switch e.Op {
	case absyn.PlusOp, absyn.MinusOp, absyn.TimesOp, absyn.DivideOp:
		if !isInt(left.Ty) {
			c.reporter.Errorf(e.Left.Pos(), "integer required")
			return errTy
		}
		if !isInt(right.Ty) {
			c.reporter.Errorf(e.Right.Pos(), "integer required")
			return errTy
		}
		return expty{Exp: translate.Arithmetic(binOpOf(e.Op), left.Exp, right.Exp), Ty: &types.Int{}}

	case absyn.LtOp, absyn.LeOp, absyn.GtOp, absyn.GeOp:
		// Only integers are ordered (original_source/src/semant.c's
		// check_op_exp rejects strings here too -- Tiger string ordering is
		// not implemented by this compiler).
		if !isInt(left.Ty) {
			c.reporter.Errorf(e.Left.Pos(), "integer required")
			return errTy
		}
		if !isInt(right.Ty) {
			c.reporter.Errorf(e.Right.Pos(), "integer required")
			return errTy
		}
		return expty{Exp: translate.Relational(relOpOf(e.Op), left.Exp, right.Exp), Ty: &types.Int{}}

	case absyn.EqOp, absyn.NeqOp:
		if !types.Compatible(left.Ty, right.Ty) {
			c.reporter.Errorf(e.Left.Pos(), "operands must be of the same type")
			return errTy
		}
		return expty{Exp: translate.Relational(relOpOf(e.Op), left.Exp, right.Exp), Ty: &types.Int{}}
	}
	errormsg.Impossible("semant: unhandled operator %v", e.Op)
	panic("unreachable")
}

func binOpOf(op absyn.Op) ir.BinOp {
	switch op {
	case absyn.PlusOp:
		return ir.Plus
	case absyn.MinusOp:
		return ir.Minus
	case absyn.TimesOp:
		return ir.Times
	case absyn.DivideOp:
		return ir.Divide
	}
	errormsg.Impossible("semant: %v is not an arithmetic operator", op)
	panic("unreachable")
}

func relOpOf(op absyn.Op) ir.RelOp {
	switch op {
	case absyn.EqOp:
		return ir.EQ
	case absyn.NeqOp:
		return ir.NE
	case absyn.LtOp:
		return ir.LT
	case absyn.LeOp:
		return ir.LE
	case absyn.GtOp:
		return ir.GT
	case absyn.GeOp:
		return ir.GE
	}
	errormsg.Impossible("semant: %v is not a relational operator", op)
	panic("unreachable")
}

func (c *Checker) transCall(level *translate.Level, e *absyn.CallExp) expty {
	entry, ok := c.venv.Lookup(e.Fn)
	if !ok {
		c.reporter.Errorf(e.Pos_, "function %s not declared", e.Fn.Name())
		return errTy
	}
	fe, ok := entry.(*FunEntry)
	if !ok {
		c.reporter.Errorf(e.Pos_, "%s is not a function", e.Fn.Name())
		return errTy
	}

	if len(e.Args) != len(fe.Formals) {
		if len(e.Args) < len(fe.Formals) {
			c.reporter.Errorf(e.Pos_, "too few arguments in call to %s", e.Fn.Name())
		} else {
			c.reporter.Errorf(e.Pos_, "too many arguments in call to %s", e.Fn.Name())
		}
		return errTy
	}

	args := make([]translate.Exp, len(e.Args))
	for i, a := range e.Args {
		arg := c.transExp(level, a)
		if !types.Compatible(arg.Ty, fe.Formals[i]) {
			c.reporter.Errorf(a.Pos(), "argument %d to %s has the wrong type", i+1, e.Fn.Name())
		}
		args[i] = arg.Exp
	}

	var call translate.Exp
	if c.baseFuncs[e.Fn] {
		call = translate.ExternalCallExp(e.Fn.Name(), args)
	} else {
		call = c.tr.CallExp(fe.Label, args, fe.Level, level)
	}
	return expty{Exp: call, Ty: types.Actual(fe.Result)}
}

func (c *Checker) transRecord(level *translate.Level, e *absyn.RecordExp) expty {
	ty, ok := c.tenv.Lookup(e.Type)
	if !ok {
		c.reporter.Errorf(e.Pos_, "undefined type %s", e.Type.Name())
		return errTy
	}
	rec, ok := types.Actual(ty).(*types.Record)
	if !ok {
		c.reporter.Errorf(e.Pos_, "%s is not a record type", e.Type.Name())
		return errTy
	}
	if len(e.Fields) != len(rec.Fields) {
		c.reporter.Errorf(e.Pos_, "wrong number of fields in record %s", e.Type.Name())
		return errTy
	}

	exps := make([]translate.Exp, len(e.Fields))
	for i, init := range e.Fields {
		field := rec.Fields[i]
		if init.Sym != field.Name {
			c.reporter.Errorf(e.Pos_, "wrong field name in record %s", e.Type.Name())
			return errTy
		}
		v := c.transExp(level, init.Exp)
		if !types.Compatible(v.Ty, field.Type) {
			c.reporter.Errorf(init.Exp.Pos(), "wrong type for field %s in record %s", field.Name.Name(), e.Type.Name())
			return errTy
		}
		exps[i] = v.Exp
	}
	return expty{Exp: translate.RecordExp(exps), Ty: rec}
}

func (c *Checker) transSeq(level *translate.Level, e *absyn.SeqExp) expty {
	if len(e.Exps) == 0 {
		return expty{Exp: translate.IntExp(0), Ty: &types.Void{}}
	}
	exps := make([]translate.Exp, len(e.Exps))
	var last types.Type
	for i, sub := range e.Exps {
		v := c.transExp(level, sub)
		exps[i] = v.Exp
		last = v.Ty
	}
	return expty{Exp: translate.SeqExp(exps), Ty: last}
}

func (c *Checker) transIf(level *translate.Level, e *absyn.IfExp) expty {
	test := c.transExp(level, e.Test)
	if !isInt(test.Ty) {
		c.reporter.Errorf(e.Test.Pos(), "if condition must be integer")
	}
	then := c.transExp(level, e.Then)

	if e.Else == nil {
		if !isVoid(then.Ty) {
			c.reporter.Errorf(e.Pos_, "if-then expression must return no value")
			return errTy
		}
		return expty{Exp: translate.IfExp(test.Exp, then.Exp, nil), Ty: &types.Void{}}
	}

	els := c.transExp(level, e.Else)
	if !types.Compatible(then.Ty, els.Ty) {
		c.reporter.Errorf(e.Else.Pos(), "then and else branches must have the same type")
		return errTy
	}
	return expty{Exp: translate.IfExp(test.Exp, then.Exp, els.Exp), Ty: then.Ty}
}

func (c *Checker) transWhile(level *translate.Level, e *absyn.WhileExp) expty {
	test := c.transExp(level, e.Test)
	if !isInt(test.Ty) {
		c.reporter.Errorf(e.Test.Pos(), "while condition must be integer")
	}

	done := temp.NewLabel()
	c.pushLoop(done)
	body := c.transExp(level, e.Body)
	c.popLoop()

	if !isVoid(body.Ty) {
		c.reporter.Errorf(e.Body.Pos(), "while-loop body must return no value")
		return errTy
	}
	return expty{Exp: translate.WhileExp(test.Exp, body.Exp, done), Ty: &types.Void{}}
}

func (c *Checker) transFor(level *translate.Level, e *absyn.ForExp) expty {
	lo := c.transExp(level, e.Lo)
	hi := c.transExp(level, e.Hi)
	if !isInt(lo.Ty) || !isInt(hi.Ty) {
		c.reporter.Errorf(e.Lo.Pos(), "for-loop bounds must be integer")
	}

	c.venv.BeginScope()
	access := c.tr.AllocLocal(level, *e.Escape)
	c.venv.Bind(e.Var, &VarEntry{Access: access, Type: &types.Int{}})

	done := temp.NewLabel()
	c.pushLoop(done)
	body := c.transExp(level, e.Body)
	c.popLoop()
	c.venv.EndScope()

	if !isVoid(body.Ty) {
		c.reporter.Errorf(e.Body.Pos(), "for-loop body must return no value")
		return errTy
	}
	return expty{Exp: translate.ForExp(access, level, lo.Exp, hi.Exp, body.Exp, done), Ty: &types.Void{}}
}

func (c *Checker) transArray(level *translate.Level, e *absyn.ArrayExp) expty {
	ty, ok := c.tenv.Lookup(e.Type)
	if !ok {
		c.reporter.Errorf(e.Pos_, "undefined type %s", e.Type.Name())
		return errTy
	}
	at, ok := types.Actual(ty).(*types.Array)
	if !ok {
		c.reporter.Errorf(e.Pos_, "%s is not an array type", e.Type.Name())
		return errTy
	}

	size := c.transExp(level, e.Size)
	if !isInt(size.Ty) {
		c.reporter.Errorf(e.Size.Pos(), "array size must be integer")
		return errTy
	}
	init := c.transExp(level, e.Init)
	if !types.Compatible(init.Ty, at.Elem) {
		c.reporter.Errorf(e.Init.Pos(), "array initial value has the wrong type")
		return errTy
	}
	return expty{Exp: translate.ArrayExp(size.Exp, init.Exp), Ty: at}
}

func (c *Checker) transLet(level *translate.Level, e *absyn.LetExp) expty {
	c.venv.BeginScope()
	c.tenv.BeginScope()

	decs := make([]translate.Exp, 0, len(e.Decs))
	for _, d := range e.Decs {
		decs = append(decs, c.transDec(level, d)...)
	}

	body := c.transExp(level, e.Body)

	c.tenv.EndScope()
	c.venv.EndScope()

	return expty{Exp: translate.LetExp(decs, body.Exp), Ty: body.Ty}
}

// transDec dispatches one declaration group, returning the translated
// effect expression(s) to thread into the enclosing Let (spec §4.8).
func (c *Checker) transDec(level *translate.Level, dec absyn.Dec) []translate.Exp {
	switch d := dec.(type) {
	case *absyn.VarDec:
		return []translate.Exp{c.transVarDec(level, d)}
	case *absyn.TypeDecs:
		c.transTypeDecs(d)
		return []translate.Exp{translate.TypeDec()}
	case *absyn.FunDecs:
		c.transFunDecs(level, d)
		return nil
	}
	errormsg.Impossible("semant: unhandled declaration kind %T", dec)
	panic("unreachable")
}

func (c *Checker) transVarDec(level *translate.Level, d *absyn.VarDec) translate.Exp {
	init := c.transExp(level, d.Init)

	declaredTy := init.Ty
	if d.Type != nil {
		t, ok := c.tenv.Lookup(d.Type)
		if !ok {
			c.reporter.Errorf(d.Pos_, "undefined type %s", d.Type.Name())
		} else if !types.Compatible(t, init.Ty) {
			c.reporter.Errorf(d.Init.Pos(), "types do not match")
		} else {
			declaredTy = t
		}
	} else if _, isNil := init.Ty.(*types.Nil); isNil {
		c.reporter.Errorf(d.Init.Pos(), "cannot declare a nil-initialised variable without an explicit type")
	}

	access := c.tr.AllocLocal(level, *d.Escape)
	c.venv.Bind(d.Sym, &VarEntry{Access: access, Type: declaredTy})

	return translate.VarDec(access, init.Exp)
}

// transTypeDecs processes one mutually-recursive group of type
// declarations in two passes: headers (bind every name to an unresolved
// Name type) then bodies (resolve each right-hand side), followed by a
// cycle check (spec §4.8).
func (c *Checker) transTypeDecs(d *absyn.TypeDecs) {
	headers := make([]*types.Name, len(d.Decs))
	for i, td := range d.Decs {
		for j := 0; j < i; j++ {
			if d.Decs[j].Sym == td.Sym {
				c.reporter.Errorf(td.Pos_, "illegal redeclaration of type %s", td.Sym.Name())
			}
		}
		n := &types.Name{Sym: td.Sym}
		headers[i] = n
		c.tenv.Bind(td.Sym, n)
	}

	for i, td := range d.Decs {
		headers[i].Resolved = c.transTy(td.Ty)
	}

	for _, td := range d.Decs {
		if t, ok := c.tenv.Lookup(td.Sym); ok && types.IsCyclicName(t) {
			c.reporter.Errorf(td.Pos_, "infinite recursive type %s", td.Sym.Name())
		}
	}
}

func (c *Checker) transTy(ty absyn.Ty) types.Type {
	if ty == nil {
		return &types.Int{}
	}
	switch t := ty.(type) {
	case *absyn.NameTy:
		resolved, ok := c.tenv.Lookup(t.Sym)
		if !ok {
			c.reporter.Errorf(t.Pos_, "undefined type %s", t.Sym.Name())
			return &types.Int{}
		}
		return resolved

	case *absyn.RecordTy:
		fields := make([]types.Field, len(t.Fields))
		for i, f := range t.Fields {
			ft, ok := c.tenv.Lookup(f.Type)
			if !ok {
				c.reporter.Errorf(f.Pos_, "undefined type %s", f.Type.Name())
				ft = &types.Int{}
			}
			fields[i] = types.Field{Name: f.Sym, Type: ft}
		}
		return &types.Record{Fields: fields}

	case *absyn.ArrayTy:
		elem, ok := c.tenv.Lookup(t.Sym)
		if !ok {
			c.reporter.Errorf(t.Pos_, "undefined type %s", t.Sym.Name())
			elem = &types.Int{}
		}
		return &types.Array{Elem: elem}
	}
	errormsg.Impossible("semant: unhandled type kind %T", ty)
	panic("unreachable")
}

// transFunDecs processes one mutually-recursive group of function
// declarations in two passes: headers (bind a FunEntry with a fresh level
// and label per function) then bodies (check each function against its
// own level) (spec §4.8).
func (c *Checker) transFunDecs(level *translate.Level, d *absyn.FunDecs) {
	type header struct {
		fundec  absyn.FunDec
		level   *translate.Level
		formals []types.Type
	}
	headers := make([]header, len(d.Decs))

	for i, fd := range d.Decs {
		for j := 0; j < i; j++ {
			if d.Decs[j].Sym == fd.Sym {
				c.reporter.Errorf(fd.Pos_, "illegal redeclaration of function %s", fd.Sym.Name())
			}
		}

		resultTy := types.Type(&types.Void{})
		if fd.Result != nil {
			t, ok := c.tenv.Lookup(fd.Result)
			if !ok {
				c.reporter.Errorf(fd.Pos_, "undefined type %s", fd.Result.Name())
				t = &types.Void{}
			}
			resultTy = t
		}

		escapes := make([]bool, len(fd.Params))
		formals := make([]types.Type, len(fd.Params))
		for i, p := range fd.Params {
			escapes[i] = *p.Escape
			ft, ok := c.tenv.Lookup(p.Type)
			if !ok {
				c.reporter.Errorf(p.Pos_, "undefined type %s", p.Type.Name())
				ft = &types.Int{}
			}
			formals[i] = ft
		}

		fnLevel := translate.NewLevel(level, temp.NamedLabel(fd.Sym.Name()), escapes)
		c.venv.Bind(fd.Sym, &FunEntry{Level: fnLevel, Label: temp.NamedLabel(fd.Sym.Name()), Formals: formals, Result: resultTy})
		headers[i] = header{fundec: fd, level: fnLevel, formals: formals}
	}

	for _, h := range headers {
		entry, _ := c.venv.Lookup(h.fundec.Sym)
		fe := entry.(*FunEntry)

		c.venv.BeginScope()
		paramAccesses := h.level.Formals()[1:] // [0] is the static link
		for i, p := range h.fundec.Params {
			c.venv.Bind(p.Sym, &VarEntry{Access: paramAccesses[i], Type: h.formals[i]})
		}

		body := c.transExp(h.level, h.fundec.Body)
		if !types.Compatible(body.Ty, fe.Result) {
			c.reporter.Errorf(h.fundec.Pos_, "return type of function %s does not match its declaration", h.fundec.Sym.Name())
		}
		c.venv.EndScope()

		c.tr.AddFuncFrag(body.Exp, h.level)
	}
}
