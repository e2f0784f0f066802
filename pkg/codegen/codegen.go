// Package codegen is the maximal-munch instruction selector (spec C10): it
// walks canonicalized IR and emits x86-model pseudo-assembly (spec §4.10),
// matching each tree shape to the cheapest instruction template that covers
// it before recursing into the leftover subtrees. Grounded on
// original_source/src/x86codegen.c and src/include/codegen.h.
package codegen

import (
	"fmt"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/temp"
)

// Selector accumulates the instruction stream for one procedure's
// canonicalized body. Not safe for concurrent use; create one per
// procedure (spec §5, matching this module's other instantiable-over-global
// components).
type Selector struct {
	instrs []assem.Instr
}

// New creates an empty Selector.
func New() *Selector { return &Selector{} }

func (s *Selector) emit(i assem.Instr) { s.instrs = append(s.instrs, i) }

// Select munches every statement in stmts in order and returns the
// resulting instruction list, appending a "nop" if the stream would
// otherwise end on a Label (so the label is not the final instruction).
func (s *Selector) Select(stmts []ir.Stm) []assem.Instr {
	for _, st := range stmts {
		s.munchStm(st)
	}
	if len(s.instrs) > 0 {
		if _, ok := s.instrs[len(s.instrs)-1].(*assem.Label); ok {
			s.emit(&assem.Oper{Asm: "nop\n"})
		}
	}
	return s.instrs
}

func relOpcode(op ir.RelOp) string {
	switch op {
	case ir.EQ:
		return "je"
	case ir.NE:
		return "jne"
	case ir.LT:
		return "jl"
	case ir.GT:
		return "jg"
	case ir.LE:
		return "jle"
	case ir.GE:
		return "jge"
	case ir.ULT:
		return "jb"
	case ir.ULE:
		return "jbe"
	case ir.UGT:
		return "ja"
	case ir.UGE:
		return "jae"
	}
	errormsg.Impossible("codegen: unknown relop %v", op)
	panic("unreachable")
}

// asBinopConst recognizes BINOP(PLUS/MINUS, e, CONST(i)) and its commuted
// PLUS form, returning the non-constant operand and the folded immediate.
func asBinopConst(e *ir.BinOpExp) (other ir.Exp, imm int, ok bool) {
	if c, isConst := e.Right.(*ir.Const); isConst && (e.Op == ir.Plus || e.Op == ir.Minus) {
		sign := 1
		if e.Op == ir.Minus {
			sign = -1
		}
		return e.Left, sign * c.Value, true
	}
	if c, isConst := e.Left.(*ir.Const); isConst && e.Op == ir.Plus {
		return e.Right, c.Value, true
	}
	return nil, 0, false
}

// munchMem selects the cheapest addressing mode for a Mem read.
func (s *Selector) munchMem(m *ir.Mem) temp.Temp {
	if bin, ok := m.Addr.(*ir.BinOpExp); ok {
		if base, imm, ok := asBinopConst(bin); ok {
			r := temp.NewTemp()
			s.emit(&assem.Oper{Asm: fmt.Sprintf("movl %d(`s0), `d0\n", imm), Dst: []temp.Temp{r}, Src: []temp.Temp{s.munchExp(base)}})
			return r
		}
	}
	r := temp.NewTemp()
	s.emit(&assem.Oper{Asm: "movl (`s0), `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{s.munchExp(m.Addr)}})
	return r
}

func (s *Selector) munchBinOp(e *ir.BinOpExp) temp.Temp {
	if base, imm, ok := asBinopConst(e); ok && e.Op != ir.Times && e.Op != ir.Divide {
		r := temp.NewTemp()
		baseT := s.munchExp(base)
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{baseT}})
		op := "addl"
		v := imm
		if v < 0 {
			op, v = "subl", -v
		}
		s.emit(&assem.Oper{Asm: fmt.Sprintf("%s $%d, `d0\n", op, v), Dst: []temp.Temp{r}, Src: []temp.Temp{r}})
		return r
	}

	r1 := s.munchExp(e.Left)
	r2 := s.munchExp(e.Right)

	switch e.Op {
	case ir.Plus, ir.Minus:
		r := temp.NewTemp()
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{r1}})
		opcode := "addl"
		if e.Op == ir.Minus {
			opcode = "subl"
		}
		s.emit(&assem.Oper{Asm: opcode + " `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{r2, r}})
		return r

	case ir.Times:
		r := temp.NewTemp()
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{r1}})
		s.emit(&assem.Oper{Asm: "imul `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{r2, r}})
		return r

	case ir.Divide:
		r := temp.NewTemp()
		edx := frame.DivRemainder()
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{frame.RV()}, Src: []temp.Temp{r1}})
		s.emit(&assem.Oper{Asm: "movl $0, `d0\n", Dst: []temp.Temp{edx}})
		s.emit(&assem.Oper{Asm: "divl `s0\n", Dst: []temp.Temp{frame.RV(), edx}, Src: []temp.Temp{r2, edx, frame.RV()}})
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{frame.RV()}})
		return r
	}
	errormsg.Impossible("codegen: unknown binop %v", e.Op)
	panic("unreachable")
}

func (s *Selector) munchExp(e ir.Exp) temp.Temp {
	switch v := e.(type) {
	case *ir.Mem:
		return s.munchMem(v)
	case *ir.BinOpExp:
		return s.munchBinOp(v)
	case *ir.Const:
		r := temp.NewTemp()
		s.emit(&assem.Oper{Asm: fmt.Sprintf("movl $%d, `d0\n", v.Value), Dst: []temp.Temp{r}})
		return r
	case *ir.TempExp:
		return v.Temp
	case *ir.Name:
		r := temp.NewTemp()
		s.emit(&assem.Oper{Asm: fmt.Sprintf("movl $%s, `d0\n", v.Label.Name()), Dst: []temp.Temp{r}})
		return r
	case *ir.Call:
		return s.munchCall(v)
	}
	errormsg.Impossible("codegen: unknown expression kind %T", e)
	panic("unreachable")
}

func (s *Selector) munchCall(c *ir.Call) temp.Temp {
	name, ok := c.Fn.(*ir.Name)
	if !ok {
		errormsg.Impossible("codegen: call target must be a direct Name after canonicalisation, got %T", c.Fn)
	}
	s.munchCallerSave()
	args := s.munchArgs(c.Args)
	callDefs := append([]temp.Temp{frame.RV()}, frame.CallerSaves()...)
	s.emit(&assem.Oper{Asm: fmt.Sprintf("call %s\n", name.Label.Name()), Dst: callDefs, Src: args})
	s.munchCallerRestore(len(args))

	t := temp.NewTemp()
	s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{t}, Src: []temp.Temp{frame.RV()}})
	return t
}

// munchArgs pushes args right-to-left (cdecl), munching the rightmost
// argument first so it ends up deepest on the stack (spec §4.4 calling
// convention).
func (s *Selector) munchArgs(args []ir.Exp) []temp.Temp {
	if len(args) == 0 {
		return nil
	}
	rest := s.munchArgs(args[1:])
	r := s.munchExp(args[0])
	s.emit(&assem.Oper{Asm: "pushl `s0\n", Dst: []temp.Temp{frame.SP()}, Src: []temp.Temp{r}})
	return append([]temp.Temp{r}, rest...)
}

func (s *Selector) munchCallerSave() {
	for _, r := range frame.CallerSaves() {
		s.emit(&assem.Oper{Asm: "pushl `s0\n", Dst: []temp.Temp{frame.SP()}, Src: []temp.Temp{r}})
	}
}

func (s *Selector) munchCallerRestore(argCount int) {
	s.emit(&assem.Oper{
		Asm: fmt.Sprintf("addl $%d, `s0\n", argCount*frame.WordSize),
		Dst: []temp.Temp{frame.SP()}, Src: []temp.Temp{frame.SP()},
	})
	saves := frame.CallerSaves()
	for i := len(saves) - 1; i >= 0; i-- {
		s.emit(&assem.Oper{Asm: "popl `d0\n", Dst: []temp.Temp{saves[i]}, Src: []temp.Temp{frame.SP()}})
	}
}

func (s *Selector) munchMove(m *ir.Move) {
	if mem, ok := m.Dst.(*ir.Mem); ok {
		s.munchMoveToMem(mem, m.Src)
		return
	}
	t, ok := m.Dst.(*ir.TempExp)
	if !ok {
		errormsg.Impossible("codegen: move destination must be a Temp or Mem after canonicalisation, got %T", m.Dst)
	}
	if call, ok := m.Src.(*ir.Call); ok {
		result := s.munchCall(call)
		s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{t.Temp}, Src: []temp.Temp{result}})
		return
	}
	s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{t.Temp}, Src: []temp.Temp{s.munchExp(m.Src)}})
}

func (s *Selector) munchMoveToMem(dst *ir.Mem, src ir.Exp) {
	if bin, ok := dst.Addr.(*ir.BinOpExp); ok {
		if base, imm, ok := asBinopConst(bin); ok {
			if c, isConst := src.(*ir.Const); isConst {
				s.emit(&assem.Oper{
					Asm: fmt.Sprintf("movl $%d, %d(`s0)\n", c.Value, imm),
					Src: []temp.Temp{s.munchExp(base)},
				})
				return
			}
			baseT := s.munchExp(base)
			srcT := s.munchExp(src)
			s.emit(&assem.Oper{Asm: fmt.Sprintf("movl `s1, %d(`s0)\n", imm), Src: []temp.Temp{baseT, srcT}})
			return
		}
	}
	if mem, ok := src.(*ir.Mem); ok {
		r := temp.NewTemp()
		s.emit(&assem.Oper{Asm: "movl (`s0), `d0\n", Dst: []temp.Temp{r}, Src: []temp.Temp{s.munchExp(mem.Addr)}})
		addrT := s.munchExp(dst.Addr)
		s.emit(&assem.Oper{Asm: "movl `s0, (`s1)\n", Src: []temp.Temp{r, addrT}})
		return
	}
	addrT := s.munchExp(dst.Addr)
	srcT := s.munchExp(src)
	s.emit(&assem.Oper{Asm: "movl `s1, (`s0)\n", Src: []temp.Temp{addrT, srcT}})
}

func (s *Selector) munchStm(stm ir.Stm) {
	switch v := stm.(type) {
	case *ir.Move:
		s.munchMove(v)

	case *ir.Label:
		s.emit(&assem.Label{Asm: fmt.Sprintf("%s:\n", v.Label.Name()), Label: v.Label})

	case *ir.ExpStm:
		if call, ok := v.Exp.(*ir.Call); ok {
			s.munchExpCall(call)
			return
		}
		s.munchExp(v.Exp)

	case *ir.Jump:
		if name, ok := v.Exp.(*ir.Name); ok {
			s.emit(&assem.Oper{Asm: "jmp `j0\n", Jump: []temp.Label{name.Label}})
			return
		}
		r := s.munchExp(v.Exp)
		s.emit(&assem.Oper{Asm: "jmp *`s0\n", Src: []temp.Temp{r}, Jump: v.Targets})

	case *ir.CJump:
		s.munchCJump(v)

	default:
		errormsg.Impossible("codegen: unknown statement kind %T", stm)
	}
}

// munchExpCall selects EXP(CALL(...)) -- a call made only for effect, whose
// result is discarded (no trailing mov into a fresh temp).
func (s *Selector) munchExpCall(c *ir.Call) {
	name, ok := c.Fn.(*ir.Name)
	if !ok {
		errormsg.Impossible("codegen: call target must be a direct Name after canonicalisation, got %T", c.Fn)
	}
	s.munchCallerSave()
	args := s.munchArgs(c.Args)
	s.emit(&assem.Oper{Asm: fmt.Sprintf("call %s\n", name.Label.Name()), Dst: frame.CallerSaves(), Src: args})
	s.munchCallerRestore(len(args))
}

func (s *Selector) munchCJump(c *ir.CJump) {
	r1 := s.munchExp(c.Left)
	r2 := s.munchExp(c.Right)
	cmpL, cmpR := temp.NewTemp(), temp.NewTemp()
	s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{cmpL}, Src: []temp.Temp{r1}})
	s.emit(&assem.Move{Asm: "movl `s0, `d0\n", Dst: []temp.Temp{cmpR}, Src: []temp.Temp{r2}})
	s.emit(&assem.Oper{Asm: "cmp `s1, `s0\n", Src: []temp.Temp{cmpL, cmpR}})
	s.emit(&assem.Oper{Asm: relOpcode(c.Op) + " `j0\n", Jump: []temp.Label{c.True}})
	s.emit(&assem.Oper{Asm: "jmp `j0\n", Jump: []temp.Label{c.False}})
}
