package regalloc

import (
	"testing"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/flowgraph"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/graph"
	"github.com/tigerlang/tigerc/pkg/temp"
)

func twoRegs() (r0, r1 temp.Temp, regs []temp.Temp, precolored map[temp.Temp]bool) {
	r0, r1 = temp.NewTemp(), temp.NewTemp()
	regs = []temp.Temp{r0, r1}
	precolored = map[temp.Temp]bool{r0: true, r1: true}
	return
}

func TestColorAssignsDistinctRegistersToInterferingTemps(t *testing.T) {
	r0, r1, regs, precolored := twoRegs()
	a, b := temp.NewTemp(), temp.NewTemp()

	ig := graph.New[temp.Temp]()
	na, nb := ig.NewNode(a), ig.NewNode(b)
	nr0, nr1 := ig.NewNode(r0), ig.NewNode(r1)
	_ = nr0
	_ = nr1
	graph.AddEdge(na, nb)
	graph.AddEdge(nb, na)

	lg := flowgraph.LiveGraph{Graph: ig, MoveList: map[temp.Temp][]assem.Instr{}, SpillCost: map[temp.Temp]int{a: 1, b: 1}}

	result := Color(lg, precolored, regs)

	if len(result.Spills) != 0 {
		t.Fatalf("expected no spills with 2 interfering temps and 2 registers, got %v", result.Spills)
	}
	if result.Coloring[a] == result.Coloring[b] {
		t.Fatalf("expected interfering temps to receive distinct colours")
	}
}

func TestColorSpillsWhenMoreTempsThanRegisters(t *testing.T) {
	r0, r1, regs, precolored := twoRegs()
	a, b, c := temp.NewTemp(), temp.NewTemp(), temp.NewTemp()

	ig := graph.New[temp.Temp]()
	na, nb, nc := ig.NewNode(a), ig.NewNode(b), ig.NewNode(c)
	ig.NewNode(r0)
	ig.NewNode(r1)
	graph.AddEdge(na, nb)
	graph.AddEdge(nb, na)
	graph.AddEdge(nb, nc)
	graph.AddEdge(nc, nb)
	graph.AddEdge(na, nc)
	graph.AddEdge(nc, na)

	lg := flowgraph.LiveGraph{
		Graph:     ig,
		MoveList:  map[temp.Temp][]assem.Instr{},
		SpillCost: map[temp.Temp]int{a: 1, b: 1, c: 1},
	}

	result := Color(lg, precolored, regs)

	if len(result.Spills) == 0 {
		t.Fatalf("expected a spill: 3 mutually-interfering temps cannot fit in 2 registers")
	}
}

func TestCoalesceMergesNonInterferingMoveRelatedTemps(t *testing.T) {
	r0, r1, regs, precolored := twoRegs()
	a, b := temp.NewTemp(), temp.NewTemp()

	ig := graph.New[temp.Temp]()
	ig.NewNode(a)
	ig.NewNode(b)
	ig.NewNode(r0)
	ig.NewNode(r1)

	mv := &assem.Move{Asm: "movl `s0, `d0\n", Src: []temp.Temp{a}, Dst: []temp.Temp{b}}
	lg := flowgraph.LiveGraph{
		Graph:         ig,
		MoveList:      map[temp.Temp][]assem.Instr{a: {mv}, b: {mv}},
		WorklistMoves: []assem.Instr{mv},
		SpillCost:     map[temp.Temp]int{a: 1, b: 1},
	}

	result := Color(lg, precolored, regs)

	if result.Coloring[a] != result.Coloring[b] {
		t.Fatalf("expected a and b to coalesce onto the same colour, got %v and %v", result.Coloring[a], result.Coloring[b])
	}
}

func TestAllocateRewritesSpilledInstructionsThroughFrame(t *testing.T) {
	f := frame.NewFrame(temp.NamedLabel("f"), nil)

	regs := frame.CallerSaves()
	precolored := make(map[temp.Temp]bool, len(regs))
	for _, r := range regs {
		precolored[r] = true
	}

	a, b, c, d := temp.NewTemp(), temp.NewTemp(), temp.NewTemp(), temp.NewTemp()
	il := []assem.Instr{
		&assem.Oper{Asm: "movl $1, `d0\n", Dst: []temp.Temp{a}},
		&assem.Oper{Asm: "movl $2, `d0\n", Dst: []temp.Temp{b}},
		&assem.Oper{Asm: "movl $3, `d0\n", Dst: []temp.Temp{c}},
		&assem.Oper{Asm: "movl $4, `d0\n", Dst: []temp.Temp{d}},
		&assem.Oper{Asm: "nop `s0 `s1 `s2 `s3\n", Src: []temp.Temp{a, b, c, d}},
	}

	coloring, out := Allocate(f, il, precolored, regs)

	if len(out) <= len(il) {
		t.Fatalf("expected spill rewriting to lengthen the instruction stream, got %d vs original %d", len(out), len(il))
	}
	if len(coloring) == 0 {
		t.Fatalf("expected a non-empty final colouring")
	}
}
