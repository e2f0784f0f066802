package codegen

import (
	"testing"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/temp"
)

func TestMoveConstIntoTempEmitsOneMove(t *testing.T) {
	sel := New()
	dst := temp.NewTemp()
	instrs := sel.Select([]ir.Stm{&ir.Move{Dst: &ir.TempExp{Temp: dst}, Src: &ir.Const{Value: 5}}})

	var moves int
	for _, i := range instrs {
		if _, ok := i.(*assem.Move); ok {
			moves++
		}
	}
	if moves != 1 {
		t.Fatalf("expected exactly one Move instruction, got %#v", instrs)
	}
}

func TestBinOpWithConstOperandFoldsIntoImmediate(t *testing.T) {
	sel := New()
	base := temp.NewTemp()
	dst := temp.NewTemp()
	exp := &ir.BinOpExp{Op: ir.Plus, Left: &ir.TempExp{Temp: base}, Right: &ir.Const{Value: 4}}
	instrs := sel.Select([]ir.Stm{&ir.Move{Dst: &ir.TempExp{Temp: dst}, Src: exp}})

	foundImmediateAdd := false
	for _, i := range instrs {
		if o, ok := i.(*assem.Oper); ok && len(o.Asm) > 0 && o.Asm[0:4] == "addl" {
			foundImmediateAdd = true
		}
	}
	if !foundImmediateAdd {
		t.Fatalf("expected an immediate addl instruction, got %#v", instrs)
	}
}

func TestCallEmitsCallerSaveAndRestore(t *testing.T) {
	sel := New()
	call := &ir.Call{Fn: &ir.Name{Label: temp.NamedLabel("f")}, Args: []ir.Exp{&ir.Const{Value: 1}, &ir.Const{Value: 2}}}
	instrs := sel.Select([]ir.Stm{&ir.ExpStm{Exp: call}})

	var pushes, pops, calls int
	for _, i := range instrs {
		if o, ok := i.(*assem.Oper); ok {
			switch {
			case len(o.Asm) >= 5 && o.Asm[:5] == "pushl":
				pushes++
			case len(o.Asm) >= 4 && o.Asm[:4] == "popl":
				pops++
			case len(o.Asm) >= 4 && o.Asm[:4] == "call":
				calls++
			}
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call instruction, got %d", calls)
	}
	if pushes == 0 {
		t.Fatalf("expected caller-save pushes and argument pushes, got none")
	}
	if pops != len(frame.CallerSaves()) {
		t.Fatalf("expected %d caller-save pops, got %d", len(frame.CallerSaves()), pops)
	}
}

func TestCJumpEmitsBothBranchTargets(t *testing.T) {
	sel := New()
	trueLbl, falseLbl := temp.NewLabel(), temp.NewLabel()
	cj := &ir.CJump{Op: ir.LT, Left: &ir.Const{Value: 1}, Right: &ir.Const{Value: 2}, True: trueLbl, False: falseLbl}
	instrs := sel.Select([]ir.Stm{cj})

	var sawTrue, sawFalse bool
	for _, i := range instrs {
		for _, l := range i.Jumps() {
			if l == trueLbl {
				sawTrue = true
			}
			if l == falseLbl {
				sawFalse = true
			}
		}
	}
	if !sawTrue || !sawFalse {
		t.Fatalf("expected both the true and false targets to appear as jump targets")
	}
}

func TestLabelFollowedByNothingGetsTrailingNop(t *testing.T) {
	sel := New()
	lbl := temp.NewLabel()
	instrs := sel.Select([]ir.Stm{&ir.Label{Label: lbl}})

	if len(instrs) < 2 {
		t.Fatalf("expected a synthesized nop after a trailing label, got %#v", instrs)
	}
	if _, ok := instrs[len(instrs)-1].(*assem.Label); ok {
		t.Fatalf("expected the instruction stream not to end on a bare label")
	}
}

func TestDivisionPinsResultThroughReturnValueRegister(t *testing.T) {
	sel := New()
	dst := temp.NewTemp()
	exp := &ir.BinOpExp{Op: ir.Divide, Left: &ir.Const{Value: 10}, Right: &ir.Const{Value: 2}}
	instrs := sel.Select([]ir.Stm{&ir.Move{Dst: &ir.TempExp{Temp: dst}, Src: exp}})

	foundDivl := false
	for _, i := range instrs {
		if o, ok := i.(*assem.Oper); ok && len(o.Asm) >= 4 && o.Asm[:4] == "divl" {
			foundDivl = true
			defsContainRV := false
			for _, d := range o.Defs() {
				if d == frame.RV() {
					defsContainRV = true
				}
			}
			if !defsContainRV {
				t.Fatalf("expected divl to define the return-value register")
			}
		}
	}
	if !foundDivl {
		t.Fatalf("expected a divl instruction")
	}
}
