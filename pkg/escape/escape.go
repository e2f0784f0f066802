// Package escape implements escape analysis (spec C6): a single scoped
// traversal of the AST that marks every variable, for-loop index, and
// function parameter captured by a nested function with Escape=true.
// Grounded on original_source/src/escape.c, translated onto pkg/absyn and
// pkg/symbol.Table.
package escape

import (
	"github.com/tigerlang/tigerc/pkg/absyn"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/symbol"
)

// entry records the lexical depth a variable was bound at, and the escape
// flag to set if a deeper reference is found.
type entry struct {
	depth  int
	escape *bool
}

// FindEscapingVars runs escape analysis over exp, mutating every Escape
// pointer reachable from it in place. It must run before translate (C7)
// since the frame layout decision (register vs. frame slot) depends on
// these flags.
func FindEscapingVars(exp absyn.Exp) {
	env := symbol.NewTable[*entry]()
	traverseExp(env, 0, exp)
}

func newEntry(depth int, escapePtr *bool) *entry {
	*escapePtr = false
	return &entry{depth: depth, escape: escapePtr}
}

func traverseExp(env *symbol.Table[*entry], depth int, exp absyn.Exp) {
	if exp == nil {
		return
	}

	switch e := exp.(type) {
	case *absyn.VarExp:
		traverseVar(env, depth, e.Var)

	case *absyn.CallExp:
		for _, a := range e.Args {
			traverseExp(env, depth, a)
		}

	case *absyn.RecordExp:
		for _, f := range e.Fields {
			traverseExp(env, depth, f.Exp)
		}

	case *absyn.SeqExp:
		for _, s := range e.Exps {
			traverseExp(env, depth, s)
		}

	case *absyn.IfExp:
		traverseExp(env, depth, e.Test)
		traverseExp(env, depth, e.Then)
		if e.Else != nil {
			traverseExp(env, depth, e.Else)
		}

	case *absyn.WhileExp:
		traverseExp(env, depth, e.Test)
		traverseExp(env, depth, e.Body)

	case *absyn.ForExp:
		traverseExp(env, depth, e.Lo)
		traverseExp(env, depth, e.Hi)

		env.BeginScope()
		env.Bind(e.Var, newEntry(depth, e.Escape))
		traverseExp(env, depth, e.Body)
		env.EndScope()

	case *absyn.ArrayExp:
		traverseExp(env, depth, e.Size)
		traverseExp(env, depth, e.Init)

	case *absyn.LetExp:
		env.BeginScope()
		for _, d := range e.Decs {
			traverseDec(env, depth, d)
		}
		traverseExp(env, depth, e.Body)
		env.EndScope()

	case *absyn.OpExp:
		traverseExp(env, depth, e.Left)
		traverseExp(env, depth, e.Right)

	case *absyn.AssignExp:
		traverseVar(env, depth, e.Var)
		traverseExp(env, depth, e.Exp)

	case *absyn.NilExp, *absyn.IntExp, *absyn.StringExp, *absyn.BreakExp:
		return

	default:
		errormsg.Impossible("escape: unhandled expression kind %T", exp)
	}
}

func traverseDec(env *symbol.Table[*entry], depth int, dec absyn.Dec) {
	if dec == nil {
		return
	}

	switch d := dec.(type) {
	case *absyn.FunDecs:
		traverseFormals(env, depth, d.Decs)

	case *absyn.TypeDecs:
		return

	case *absyn.VarDec:
		env.Bind(d.Sym, newEntry(depth, d.Escape))
		traverseExp(env, depth, d.Init)

	default:
		errormsg.Impossible("escape: unhandled declaration kind %T", dec)
	}
}

func traverseVar(env *symbol.Table[*entry], depth int, v absyn.Var) {
	if v == nil {
		return
	}

	switch vr := v.(type) {
	case *absyn.SimpleVar:
		if declared, ok := env.Lookup(vr.Sym); ok && declared.depth < depth {
			*declared.escape = true
		}

	case *absyn.FieldVar:
		traverseVar(env, depth, vr.Var)

	case *absyn.SubscriptVar:
		traverseVar(env, depth, vr.Var)
		traverseExp(env, depth, vr.Exp)

	default:
		errormsg.Impossible("escape: unhandled variable kind %T", v)
	}
}

// traverseFormals walks each function in a mutually-recursive FunDecs
// group: each function's body is one level deeper than its enclosing
// scope, and its parameters are bound fresh in their own scope before the
// body is traversed (spec §4.6).
func traverseFormals(env *symbol.Table[*entry], depth int, decs []absyn.FunDec) {
	for _, fundec := range decs {
		depth++
		env.BeginScope()

		for i := range fundec.Params {
			p := &fundec.Params[i]
			env.Bind(p.Sym, newEntry(depth, p.Escape))
		}

		traverseExp(env, depth, fundec.Body)
		depth--
		env.EndScope()
	}
}
