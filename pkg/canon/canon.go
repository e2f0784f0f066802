// Package canon canonicalizes the tree IR (spec C9): it removes every ESeq
// and ensures a Call's parent is always an ExpStm or a Move into a Temp,
// groups the result into basic blocks, then greedily schedules those blocks
// into traces so that every CJump is immediately followed by its false
// label. Grounded on original_source/src/canon.c and src/include/canon.h,
// rewritten from the original's pointer-mutating C lists into ordinary Go
// slices and value-returning recursion.
package canon

import (
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/temp"
)

func isNop(s ir.Stm) bool {
	e, ok := s.(*ir.ExpStm)
	if !ok {
		return false
	}
	_, ok = e.Exp.(*ir.Const)
	return ok
}

func seq(x, y ir.Stm) ir.Stm {
	if isNop(x) {
		return y
	}
	if isNop(y) {
		return x
	}
	return &ir.Seq{Left: x, Right: y}
}

// commute reports whether statement x can be freely reordered ahead of the
// evaluation of expression y without changing behavior: x has no observable
// effect, or y is a constant/name that cannot itself have any effect.
func commute(x ir.Stm, y ir.Exp) bool {
	if isNop(x) {
		return true
	}
	switch y.(type) {
	case *ir.Name, *ir.Const:
		return true
	}
	return false
}

// reorder extracts the side effects of exps, left to right, into a single
// statement, and returns the (possibly rewritten) expressions with every
// Call hoisted into a fresh temp first (spec §3's "parent of every Call"
// invariant).
func reorder(exps []ir.Exp) (ir.Stm, []ir.Exp) {
	if len(exps) == 0 {
		return &ir.ExpStm{Exp: &ir.Const{Value: 0}}, nil
	}

	if call, ok := exps[0].(*ir.Call); ok {
		t := temp.NewTemp()
		hoisted := &ir.ESeq{
			Stm: &ir.Move{Dst: &ir.TempExp{Temp: t}, Src: call},
			Exp: &ir.TempExp{Temp: t},
		}
		rewritten := append([]ir.Exp{hoisted}, exps[1:]...)
		return reorder(rewritten)
	}

	headStm, headExp := doExp(exps[0])
	restStm, restExps := reorder(exps[1:])

	if commute(restStm, headExp) {
		return seq(headStm, restStm), append([]ir.Exp{headExp}, restExps...)
	}

	t := temp.NewTemp()
	combined := seq(headStm, seq(&ir.Move{Dst: &ir.TempExp{Temp: t}, Src: headExp}, restStm))
	return combined, append([]ir.Exp{&ir.TempExp{Temp: t}}, restExps...)
}

// doExp rewrites exp so it contains no ESeq, returning the statement that
// must run first and the cleaned expression.
func doExp(exp ir.Exp) (ir.Stm, ir.Exp) {
	switch e := exp.(type) {
	case *ir.BinOpExp:
		s, exps := reorder([]ir.Exp{e.Left, e.Right})
		return s, &ir.BinOpExp{Op: e.Op, Left: exps[0], Right: exps[1]}

	case *ir.Mem:
		s, exps := reorder([]ir.Exp{e.Addr})
		return s, &ir.Mem{Addr: exps[0]}

	case *ir.ESeq:
		first := doStm(e.Stm)
		rest, cleanExp := doExp(e.Exp)
		return seq(first, rest), cleanExp

	case *ir.Call:
		s, exps := reorder(append([]ir.Exp{e.Fn}, e.Args...))
		return s, &ir.Call{Fn: exps[0], Args: exps[1:]}

	default:
		s, _ := reorder(nil)
		return s, exp
	}
}

// doStm rewrites stm so it contains no ESeq and every Call's parent is an
// ExpStm or a Move into a Temp.
func doStm(stm ir.Stm) ir.Stm {
	switch s := stm.(type) {
	case *ir.Seq:
		return seq(doStm(s.Left), doStm(s.Right))

	case *ir.Jump:
		st, exps := reorder([]ir.Exp{s.Exp})
		return seq(st, &ir.Jump{Exp: exps[0], Targets: s.Targets})

	case *ir.CJump:
		st, exps := reorder([]ir.Exp{s.Left, s.Right})
		return seq(st, &ir.CJump{Op: s.Op, Left: exps[0], Right: exps[1], True: s.True, False: s.False})

	case *ir.Move:
		return doMove(s)

	case *ir.ExpStm:
		if call, ok := s.Exp.(*ir.Call); ok {
			st, exps := reorder(append([]ir.Exp{call.Fn}, call.Args...))
			return seq(st, &ir.ExpStm{Exp: &ir.Call{Fn: exps[0], Args: exps[1:]}})
		}
		st, exps := reorder([]ir.Exp{s.Exp})
		return seq(st, &ir.ExpStm{Exp: exps[0]})

	default:
		return stm
	}
}

func doMove(s *ir.Move) ir.Stm {
	switch dst := s.Dst.(type) {
	case *ir.TempExp:
		if call, ok := s.Src.(*ir.Call); ok {
			st, exps := reorder(append([]ir.Exp{call.Fn}, call.Args...))
			return seq(st, &ir.Move{Dst: dst, Src: &ir.Call{Fn: exps[0], Args: exps[1:]}})
		}
		st, exps := reorder([]ir.Exp{s.Src})
		return seq(st, &ir.Move{Dst: dst, Src: exps[0]})

	case *ir.Mem:
		st, exps := reorder([]ir.Exp{dst.Addr, s.Src})
		return seq(st, &ir.Move{Dst: &ir.Mem{Addr: exps[0]}, Src: exps[1]})

	case *ir.ESeq:
		return doStm(&ir.Seq{Left: dst.Stm, Right: &ir.Move{Dst: dst.Exp, Src: s.Src}})
	}
	errormsg.Impossible("canon: move destination must be a Temp or Mem, got %T", s.Dst)
	panic("unreachable")
}

// linear flattens the Seq spine of stm onto the front of right.
func linear(stm ir.Stm, right []ir.Stm) []ir.Stm {
	if s, ok := stm.(*ir.Seq); ok {
		return linear(s.Left, linear(s.Right, right))
	}
	return append([]ir.Stm{stm}, right...)
}

// Linearize produces a flat statement list with no Seq/ESeq, and every
// Call's parent an ExpStm or a Move into a Temp (spec §3, §8 property 3).
func Linearize(stm ir.Stm) []ir.Stm {
	return linear(doStm(stm), nil)
}

// Block is one basic block: begins with a Label, ends with a Jump or
// CJump, and contains neither in between (spec §3 properties 3-6).
type Block []ir.Stm

// mkBlocks splits a label-prefixed, jump-terminated statement list into
// basic blocks, synthesizing a label at the front of the first block that
// doesn't already start with one, and a trailing jump to done at the end
// of a block that doesn't already end with a transfer.
func mkBlocks(stmts []ir.Stm, done temp.Label) []Block {
	var blocks []Block
	i := 0
	for i < len(stmts) {
		var lbl temp.Label
		if l, ok := stmts[i].(*ir.Label); ok {
			lbl = l.Label
			i++
		} else {
			lbl = temp.NewLabel()
		}

		block := []ir.Stm{&ir.Label{Label: lbl}}
		for i < len(stmts) {
			switch s := stmts[i].(type) {
			case *ir.Label:
				// A label reached without passing through a terminator ends
				// the current block with a synthetic jump to it; the label
				// itself is left for the next iteration to pick up.
				block = append(block, &ir.Jump{Exp: &ir.Name{Label: s.Label}, Targets: []temp.Label{s.Label}})
				goto endBlock
			case *ir.Jump:
				block = append(block, s)
				i++
				goto endBlock
			case *ir.CJump:
				block = append(block, s)
				i++
				goto endBlock
			default:
				block = append(block, s)
				i++
			}
		}
		block = append(block, &ir.Jump{Exp: &ir.Name{Label: done}, Targets: []temp.Label{done}})
	endBlock:
		blocks = append(blocks, Block(block))
	}
	return blocks
}

// BasicBlocks groups a linearized statement list into basic blocks and
// returns the fresh "done" label control falls to when it runs off the end
// (spec §3, §8 property in canon_basic_blocks).
func BasicBlocks(stmts []ir.Stm) (blocks []Block, done temp.Label) {
	done = temp.NewLabel()
	return mkBlocks(stmts, done), done
}

func blockLabel(b Block) temp.Label {
	return b[0].(*ir.Label).Label
}

func blockExit(b Block) ir.Stm {
	return b[len(b)-1]
}

// TraceSchedule orders blocks into traces so that every CJump is
// immediately followed by its false label, falling through (eliminating
// the Jump) wherever possible, then flattens the result (spec §3, §8
// property 7). done is the exit label produced by BasicBlocks.
func TraceSchedule(blocks []Block, done temp.Label) []ir.Stm {
	index := make(map[temp.Label]int, len(blocks))
	for i, b := range blocks {
		index[blockLabel(b)] = i
	}
	traced := make([]bool, len(blocks))

	var out []ir.Stm
	nextUntraced := func(from int) int {
		for i := from; i < len(blocks); i++ {
			if !traced[i] {
				return i
			}
		}
		return -1
	}

	cursor := 0
	for {
		i := nextUntraced(cursor)
		if i < 0 {
			break
		}
		cursor = i
		out = append(out, traceFrom(blocks, index, traced, i)...)
	}
	out = append(out, &ir.Label{Label: done})
	return out
}

// traceFrom emits block i and greedily continues into whichever successor
// is still untraced, rewriting the block's terminator to fall through
// instead of jumping wherever that successor immediately follows.
func traceFrom(blocks []Block, index map[temp.Label]int, traced []bool, i int) []ir.Stm {
	var out []ir.Stm
	for i >= 0 && !traced[i] {
		traced[i] = true
		b := blocks[i]
		exit := blockExit(b)
		body := b[:len(b)-1]
		out = append(out, body...)

		switch s := exit.(type) {
		case *ir.Jump:
			if len(s.Targets) == 1 {
				if t, ok := index[s.Targets[0]]; ok && !traced[t] {
					i = t
					continue
				}
			}
			out = append(out, s)
			i = -1

		case *ir.CJump:
			trueIdx, trueOk := index[s.True]
			falseIdx, falseOk := index[s.False]
			switch {
			case falseOk && !traced[falseIdx]:
				out = append(out, s)
				i = falseIdx
			case trueOk && !traced[trueIdx]:
				out = append(out, &ir.CJump{Op: s.Op.Not(), Left: s.Left, Right: s.Right, True: s.False, False: s.True})
				i = trueIdx
			default:
				freshFalse := temp.NewLabel()
				out = append(out, &ir.CJump{Op: s.Op, Left: s.Left, Right: s.Right, True: s.True, False: freshFalse})
				out = append(out, &ir.Label{Label: freshFalse})
				out = append(out, &ir.Jump{Exp: &ir.Name{Label: s.False}, Targets: []temp.Label{s.False}})
				i = -1
			}

		default:
			errormsg.Impossible("canon: block must end with a Jump or CJump, got %T", exit)
		}
	}
	return out
}
