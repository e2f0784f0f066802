package main

import (
	"fmt"
	"strings"

	"github.com/tigerlang/tigerc/pkg/absyn"
	"github.com/tigerlang/tigerc/pkg/ir"
)

// dumpAbsyn renders an absyn.Exp as a parenthesised s-expression, used by
// -dabsyn and -descape (escape marks show up inline as @ on escaping
// For/VarDec bindings; function parameters are not printed).
func dumpAbsyn(e absyn.Exp) string {
	var b strings.Builder
	writeExp(&b, e)
	return b.String()
}

func writeExp(b *strings.Builder, e absyn.Exp) {
	switch e := e.(type) {
	case nil:
		b.WriteString("()")
	case *absyn.VarExp:
		writeVar(b, e.Var)
	case *absyn.NilExp:
		b.WriteString("nil")
	case *absyn.IntExp:
		fmt.Fprintf(b, "%d", e.Value)
	case *absyn.StringExp:
		fmt.Fprintf(b, "%q", e.Value)
	case *absyn.CallExp:
		fmt.Fprintf(b, "(call %s", e.Fn.Name())
		for _, a := range e.Args {
			b.WriteString(" ")
			writeExp(b, a)
		}
		b.WriteString(")")
	case *absyn.OpExp:
		fmt.Fprintf(b, "(%s ", opName(e.Op))
		writeExp(b, e.Left)
		b.WriteString(" ")
		writeExp(b, e.Right)
		b.WriteString(")")
	case *absyn.RecordExp:
		fmt.Fprintf(b, "(record %s", e.Type.Name())
		for _, f := range e.Fields {
			fmt.Fprintf(b, " (%s=", f.Sym.Name())
			writeExp(b, f.Exp)
			b.WriteString(")")
		}
		b.WriteString(")")
	case *absyn.SeqExp:
		b.WriteString("(seq")
		for _, s := range e.Exps {
			b.WriteString(" ")
			writeExp(b, s)
		}
		b.WriteString(")")
	case *absyn.AssignExp:
		b.WriteString("(:= ")
		writeVar(b, e.Var)
		b.WriteString(" ")
		writeExp(b, e.Exp)
		b.WriteString(")")
	case *absyn.IfExp:
		b.WriteString("(if ")
		writeExp(b, e.Test)
		b.WriteString(" ")
		writeExp(b, e.Then)
		if e.Else != nil {
			b.WriteString(" ")
			writeExp(b, e.Else)
		}
		b.WriteString(")")
	case *absyn.WhileExp:
		b.WriteString("(while ")
		writeExp(b, e.Test)
		b.WriteString(" ")
		writeExp(b, e.Body)
		b.WriteString(")")
	case *absyn.ForExp:
		esc := ""
		if e.Escape != nil && *e.Escape {
			esc = "@"
		}
		fmt.Fprintf(b, "(for %s%s ", e.Var.Name(), esc)
		writeExp(b, e.Lo)
		b.WriteString(" ")
		writeExp(b, e.Hi)
		b.WriteString(" ")
		writeExp(b, e.Body)
		b.WriteString(")")
	case *absyn.BreakExp:
		b.WriteString("break")
	case *absyn.LetExp:
		b.WriteString("(let (")
		for i, d := range e.Decs {
			if i > 0 {
				b.WriteString(" ")
			}
			writeDec(b, d)
		}
		b.WriteString(") ")
		writeExp(b, e.Body)
		b.WriteString(")")
	case *absyn.ArrayExp:
		fmt.Fprintf(b, "(array %s ", e.Type.Name())
		writeExp(b, e.Size)
		b.WriteString(" ")
		writeExp(b, e.Init)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<?%T>", e)
	}
}

func writeVar(b *strings.Builder, v absyn.Var) {
	switch v := v.(type) {
	case *absyn.SimpleVar:
		b.WriteString(v.Sym.Name())
	case *absyn.FieldVar:
		writeVar(b, v.Var)
		fmt.Fprintf(b, ".%s", v.Sym.Name())
	case *absyn.SubscriptVar:
		writeVar(b, v.Var)
		b.WriteString("[")
		writeExp(b, v.Exp)
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "<?%T>", v)
	}
}

func writeDec(b *strings.Builder, d absyn.Dec) {
	switch d := d.(type) {
	case *absyn.TypeDecs:
		b.WriteString("(type")
		for _, td := range d.Decs {
			fmt.Fprintf(b, " %s", td.Sym.Name())
		}
		b.WriteString(")")
	case *absyn.VarDec:
		esc := ""
		if d.Escape != nil && *d.Escape {
			esc = "@"
		}
		fmt.Fprintf(b, "(var %s%s ", d.Sym.Name(), esc)
		writeExp(b, d.Init)
		b.WriteString(")")
	case *absyn.FunDecs:
		b.WriteString("(function")
		for _, fd := range d.Decs {
			fmt.Fprintf(b, " %s", fd.Sym.Name())
		}
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<?%T>", d)
	}
}

func opName(op absyn.Op) string {
	switch op {
	case absyn.PlusOp:
		return "+"
	case absyn.MinusOp:
		return "-"
	case absyn.TimesOp:
		return "*"
	case absyn.DivideOp:
		return "/"
	case absyn.EqOp:
		return "="
	case absyn.NeqOp:
		return "<>"
	case absyn.LtOp:
		return "<"
	case absyn.GtOp:
		return ">"
	case absyn.GeOp:
		return ">="
	case absyn.LeOp:
		return "<="
	default:
		return "?"
	}
}

// dumpStm renders an ir.Stm tree as an s-expression, used by -dir and
// -dcanon (the latter over the linearized/traced statement list).
func dumpStm(s ir.Stm) string {
	var b strings.Builder
	writeStm(&b, s)
	return b.String()
}

func writeStm(b *strings.Builder, s ir.Stm) {
	switch s := s.(type) {
	case nil:
		b.WriteString("()")
	case *ir.Seq:
		b.WriteString("(seq ")
		writeStm(b, s.Left)
		b.WriteString(" ")
		writeStm(b, s.Right)
		b.WriteString(")")
	case *ir.Label:
		fmt.Fprintf(b, "(label %s)", s.Label.Name())
	case *ir.Jump:
		b.WriteString("(jump ")
		writeIRExp(b, s.Exp)
		b.WriteString(")")
	case *ir.CJump:
		fmt.Fprintf(b, "(cjump %s ", relOpName(s.Op))
		writeIRExp(b, s.Left)
		b.WriteString(" ")
		writeIRExp(b, s.Right)
		fmt.Fprintf(b, " %s %s)", s.True.Name(), s.False.Name())
	case *ir.Move:
		b.WriteString("(move ")
		writeIRExp(b, s.Dst)
		b.WriteString(" ")
		writeIRExp(b, s.Src)
		b.WriteString(")")
	case *ir.ExpStm:
		b.WriteString("(expstm ")
		writeIRExp(b, s.Exp)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<?%T>", s)
	}
}

func writeIRExp(b *strings.Builder, e ir.Exp) {
	switch e := e.(type) {
	case nil:
		b.WriteString("()")
	case *ir.BinOpExp:
		fmt.Fprintf(b, "(%s ", binOpName(e.Op))
		writeIRExp(b, e.Left)
		b.WriteString(" ")
		writeIRExp(b, e.Right)
		b.WriteString(")")
	case *ir.Mem:
		b.WriteString("(mem ")
		writeIRExp(b, e.Addr)
		b.WriteString(")")
	case *ir.TempExp:
		b.WriteString(e.Temp.String())
	case *ir.ESeq:
		b.WriteString("(eseq ")
		writeStm(b, e.Stm)
		b.WriteString(" ")
		writeIRExp(b, e.Exp)
		b.WriteString(")")
	case *ir.Name:
		fmt.Fprintf(b, "(name %s)", e.Label.Name())
	case *ir.Const:
		fmt.Fprintf(b, "%d", e.Value)
	case *ir.Call:
		b.WriteString("(call ")
		writeIRExp(b, e.Fn)
		for _, a := range e.Args {
			b.WriteString(" ")
			writeIRExp(b, a)
		}
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<?%T>", e)
	}
}

func binOpName(op ir.BinOp) string {
	names := [...]string{"+", "-", "*", "/", "&", "|", "<<", ">>", ">>>", "^"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

func relOpName(op ir.RelOp) string {
	names := [...]string{"=", "<>", "<", ">", "<=", ">=", "u<", "u<=", "u>", "u>="}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}
