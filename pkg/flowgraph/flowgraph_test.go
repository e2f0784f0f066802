package flowgraph

import (
	"testing"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/graph"
	"github.com/tigerlang/tigerc/pkg/temp"
)

func TestUnconditionalJumpHasNoFallthroughEdge(t *testing.T) {
	target := temp.NewLabel()
	il := []assem.Instr{
		&assem.Oper{Asm: "jmp `j0\n", Jump: []temp.Label{target}},
		&assem.Label{Label: target},
		&assem.Oper{Asm: "nop\n"},
	}
	_, nodes := Build(il)

	if len(graph.Succ(nodes[0])) != 1 {
		t.Fatalf("expected the jmp to have exactly one successor (its target), got %d", len(graph.Succ(nodes[0])))
	}
	if graph.Succ(nodes[0])[0] != nodes[1] {
		t.Fatalf("expected the jmp's successor to be its label target")
	}
}

func TestConditionalJumpFallsThroughAndJumps(t *testing.T) {
	target := temp.NewLabel()
	il := []assem.Instr{
		&assem.Oper{Asm: "je `j0\n", Jump: []temp.Label{target}},
		&assem.Oper{Asm: "nop\n"},
		&assem.Label{Label: target},
		&assem.Oper{Asm: "nop\n"},
	}
	_, nodes := Build(il)

	succs := graph.Succ(nodes[0])
	if len(succs) != 2 {
		t.Fatalf("expected a conditional jump to have a fallthrough edge and a jump edge, got %d successors", len(succs))
	}
}

func TestSequentialNonJumpInstructionsChain(t *testing.T) {
	il := []assem.Instr{
		&assem.Oper{Asm: "movl $1, `d0\n", Dst: []temp.Temp{temp.NewTemp()}},
		&assem.Oper{Asm: "movl $2, `d0\n", Dst: []temp.Temp{temp.NewTemp()}},
	}
	_, nodes := Build(il)

	if !graph.GoesTo(nodes[0], nodes[1]) {
		t.Fatalf("expected sequential instructions to chain by fallthrough")
	}
}

func TestLivenessBuildsInterferenceEdgeBetweenSimultaneouslyLiveTemps(t *testing.T) {
	a, b, dst := temp.NewTemp(), temp.NewTemp(), temp.NewTemp()
	// addl a, dst ; then use dst and b (b stays live across the def of dst)
	il := []assem.Instr{
		&assem.Oper{Asm: "addl `s0, `d0\n", Src: []temp.Temp{a}, Dst: []temp.Temp{dst}},
		&assem.Oper{Asm: "movl `s0, `s1\n", Src: []temp.Temp{dst, b}},
	}
	lg := Liveness(il)

	var da, db *graph.Node[temp.Temp]
	for _, n := range lg.Graph.Nodes() {
		switch n.Info() {
		case dst:
			da = n
		case b:
			db = n
		}
	}
	if da == nil || db == nil {
		t.Fatalf("expected both dst and b to be represented in the interference graph")
	}
	if !graph.GoesTo(da, db) && !graph.GoesTo(db, da) {
		t.Fatalf("expected dst and b to interfere since both are live out of the first instruction")
	}
}

func TestMoveIsRecordedInWorklistAndMoveLists(t *testing.T) {
	src, dst := temp.NewTemp(), temp.NewTemp()
	il := []assem.Instr{
		&assem.Move{Asm: "movl `s0, `d0\n", Src: []temp.Temp{src}, Dst: []temp.Temp{dst}},
		&assem.Oper{Asm: "nop `s0\n", Src: []temp.Temp{dst}},
	}
	lg := Liveness(il)

	if len(lg.WorklistMoves) != 1 {
		t.Fatalf("expected the move to be recorded on the worklist, got %d", len(lg.WorklistMoves))
	}
	if len(lg.MoveList[src]) == 0 || len(lg.MoveList[dst]) == 0 {
		t.Fatalf("expected both move endpoints to have a move-list entry")
	}
}

func TestSpillCostCountsEveryOccurrence(t *testing.T) {
	t1 := temp.NewTemp()
	il := []assem.Instr{
		&assem.Oper{Asm: "movl $1, `d0\n", Dst: []temp.Temp{t1}},
		&assem.Oper{Asm: "addl $1, `d0\n", Src: []temp.Temp{t1}, Dst: []temp.Temp{t1}},
	}
	lg := Liveness(il)

	if lg.SpillCost[t1] != 3 {
		t.Fatalf("expected spill cost 3 (one def, one use+def), got %d", lg.SpillCost[t1])
	}
}
