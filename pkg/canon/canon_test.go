package canon

import (
	"testing"

	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/temp"
)

func TestLinearizeRemovesESeq(t *testing.T) {
	inner := temp.NewTemp()
	eseq := &ir.ESeq{
		Stm: &ir.Move{Dst: &ir.TempExp{Temp: inner}, Src: &ir.Const{Value: 1}},
		Exp: &ir.TempExp{Temp: inner},
	}
	stm := &ir.ExpStm{Exp: &ir.BinOpExp{Op: ir.Plus, Left: eseq, Right: &ir.Const{Value: 2}}}

	stmts := Linearize(stm)

	for _, s := range stmts {
		if containsESeq(s) {
			t.Fatalf("expected no ESeq to survive linearization, found one in %#v", s)
		}
	}
}

func TestLinearizeHoistsCallArgument(t *testing.T) {
	call := &ir.Call{Fn: &ir.Name{Label: temp.NamedLabel("f")}, Args: nil}
	outer := &ir.ExpStm{Exp: &ir.BinOpExp{Op: ir.Plus, Left: call, Right: &ir.Const{Value: 1}}}

	stmts := Linearize(outer)

	foundMoveFromCall := false
	for _, s := range stmts {
		if mv, ok := s.(*ir.Move); ok {
			if _, ok := mv.Src.(*ir.Call); ok {
				foundMoveFromCall = true
			}
		}
		if e, ok := s.(*ir.ExpStm); ok {
			if bin, ok := e.Exp.(*ir.BinOpExp); ok {
				if _, ok := bin.Left.(*ir.Call); ok {
					t.Fatalf("expected the call to be hoisted out of the BinOp, found it inline")
				}
			}
		}
	}
	if !foundMoveFromCall {
		t.Fatalf("expected a hoisted Move(Temp, Call) statement")
	}
}

func TestLinearizeFlattensSeq(t *testing.T) {
	a := &ir.Label{Label: temp.NewLabel()}
	b := &ir.Label{Label: temp.NewLabel()}
	c := &ir.Label{Label: temp.NewLabel()}
	stm := &ir.Seq{Left: a, Right: &ir.Seq{Left: b, Right: c}}

	stmts := Linearize(stm)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 flattened statements, got %d", len(stmts))
	}
}

func TestBasicBlocksEveryBlockStartsWithLabelEndsWithTransfer(t *testing.T) {
	l1 := temp.NewLabel()
	l2 := temp.NewLabel()
	stmts := []ir.Stm{
		&ir.Label{Label: l1},
		&ir.ExpStm{Exp: &ir.Const{Value: 0}},
		&ir.Jump{Exp: &ir.Name{Label: l2}, Targets: []temp.Label{l2}},
		&ir.Label{Label: l2},
		&ir.ExpStm{Exp: &ir.Const{Value: 1}},
	}

	blocks, done := BasicBlocks(stmts)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	for _, b := range blocks {
		if _, ok := b[0].(*ir.Label); !ok {
			t.Fatalf("expected every block to start with a Label, got %T", b[0])
		}
		switch b[len(b)-1].(type) {
		case *ir.Jump, *ir.CJump:
		default:
			t.Fatalf("expected every block to end with a Jump or CJump, got %T", b[len(b)-1])
		}
	}
	last := blocks[len(blocks)-1]
	jmp, ok := last[len(last)-1].(*ir.Jump)
	if !ok || jmp.Targets[0] != done {
		t.Fatalf("expected the trailing block to synthesize a jump to the done label")
	}
}

func TestBasicBlocksSplitsOnUnterminatedLabel(t *testing.T) {
	l1 := temp.NewLabel()
	l2 := temp.NewLabel()
	stmts := []ir.Stm{
		&ir.Label{Label: l1},
		&ir.ExpStm{Exp: &ir.Const{Value: 0}},
		&ir.Label{Label: l2}, // no jump/cjump in between -- mkBlocks must split here
		&ir.ExpStm{Exp: &ir.Const{Value: 1}},
	}

	blocks, _ := BasicBlocks(stmts)
	if len(blocks) != 2 {
		t.Fatalf("expected the unterminated label to force a block split, got %d blocks", len(blocks))
	}
	first := blocks[0]
	jmp, ok := first[len(first)-1].(*ir.Jump)
	if !ok || jmp.Targets[0] != l2 {
		t.Fatalf("expected a synthetic jump to %v ending the first block", l2)
	}
}

func TestTraceScheduleCJumpIsImmediatelyFollowedByFalseLabel(t *testing.T) {
	entry := temp.NewLabel()
	trueLbl := temp.NewLabel()
	falseLbl := temp.NewLabel()

	stmts := []ir.Stm{
		&ir.Label{Label: entry},
		&ir.CJump{Op: ir.LT, Left: &ir.Const{Value: 1}, Right: &ir.Const{Value: 2}, True: trueLbl, False: falseLbl},
		&ir.Label{Label: falseLbl},
		&ir.ExpStm{Exp: &ir.Const{Value: 0}},
		&ir.Label{Label: trueLbl},
		&ir.ExpStm{Exp: &ir.Const{Value: 1}},
	}

	blocks, done := BasicBlocks(stmts)
	sched := TraceSchedule(blocks, done)

	for i, s := range sched {
		if cj, ok := s.(*ir.CJump); ok {
			if i+1 >= len(sched) {
				t.Fatalf("expected a label to follow the CJump")
			}
			lbl, ok := sched[i+1].(*ir.Label)
			if !ok || lbl.Label != cj.False {
				t.Fatalf("expected CJump's false label %v to immediately follow, got %#v", cj.False, sched[i+1])
			}
		}
	}
}

func containsESeq(s ir.Stm) bool {
	switch v := s.(type) {
	case *ir.Seq:
		return containsESeq(v.Left) || containsESeq(v.Right)
	case *ir.Move:
		return expContainsESeq(v.Dst) || expContainsESeq(v.Src)
	case *ir.ExpStm:
		return expContainsESeq(v.Exp)
	case *ir.Jump:
		return expContainsESeq(v.Exp)
	case *ir.CJump:
		return expContainsESeq(v.Left) || expContainsESeq(v.Right)
	}
	return false
}

func expContainsESeq(e ir.Exp) bool {
	switch v := e.(type) {
	case *ir.ESeq:
		return true
	case *ir.BinOpExp:
		return expContainsESeq(v.Left) || expContainsESeq(v.Right)
	case *ir.Mem:
		return expContainsESeq(v.Addr)
	case *ir.Call:
		if expContainsESeq(v.Fn) {
			return true
		}
		for _, a := range v.Args {
			if expContainsESeq(a) {
				return true
			}
		}
	}
	return false
}
