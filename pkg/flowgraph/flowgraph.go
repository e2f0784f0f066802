// Package flowgraph builds the control-flow graph over a selected
// instruction list and solves liveness on it (spec C11): per-node live-in
// / live-out sets by iterative fixed point, then the interference graph,
// move worklist, per-temp move-list, and spill-cost map the allocator
// consumes. Grounded on original_source/src/flowgraph.c and
// src/liveness.c, rewritten from the original's pointer-mutating cons
// lists into Go slices/maps and the generic graph.Graph from pkg/graph.
package flowgraph

import (
	"strings"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/graph"
	"github.com/tigerlang/tigerc/pkg/temp"
)

// Node is one flow-graph vertex: a single non-label instruction.
type Node = graph.Node[assem.Instr]

// Def is the temps an instruction's node defines.
func Def(n *Node) []temp.Temp { return n.Info().Defs() }

// Use is the temps an instruction's node uses.
func Use(n *Node) []temp.Temp { return n.Info().Uses() }

// IsMove reports whether a node's instruction is a Move (spec §4.11's
// "do not add an edge for src itself" exception is keyed on this).
func IsMove(n *Node) bool {
	_, ok := n.Info().(*assem.Move)
	return ok
}

// Build constructs the CFG over il: one node per non-label instruction, a
// fall-through edge to the sequential successor unless the predecessor is
// an unconditional jmp, and an edge to each OPER's jump targets. Returns
// the graph together with the ordered node list (one entry per instruction
// in il, skipping labels) so a caller can still walk them in emission
// order.
func Build(il []assem.Instr) (g *graph.Graph[assem.Instr], nodes []*Node) {
	g = graph.New[assem.Instr]()

	var labelNodes []*Node
	var labels []temp.Label
	var jumpNodes []*Node

	var lastNode *Node
	var lastInstr assem.Instr
	var sawNonLabel bool
	var pendingLabels []temp.Label

	for _, inst := range il {
		if lbl, ok := inst.(*assem.Label); ok {
			pendingLabels = append(pendingLabels, lbl.Label)
			lastInstr = lbl
			continue
		}

		n := g.NewNode(inst)
		nodes = append(nodes, n)

		if lastInstr != nil {
			switch last := lastInstr.(type) {
			case *assem.Label:
				for _, l := range pendingLabels {
					labelNodes = append(labelNodes, n)
					labels = append(labels, l)
				}
				if sawNonLabel {
					if o, ok := lastNode.Info().(*assem.Oper); !ok || len(o.Jump) == 0 || !strings.HasPrefix(o.Asm, "jmp") {
						graph.AddEdge(lastNode, n)
					}
				}
			case *assem.Oper:
				if len(last.Jump) > 0 {
					if !strings.HasPrefix(last.Asm, "jmp") {
						graph.AddEdge(lastNode, n)
					}
				} else {
					graph.AddEdge(lastNode, n)
				}
			default:
				graph.AddEdge(lastNode, n)
			}
		}

		if oper, ok := inst.(*assem.Oper); ok && len(oper.Jump) > 0 {
			jumpNodes = append(jumpNodes, n)
		}
		lastNode = n
		lastInstr = inst
		sawNonLabel = true
		pendingLabels = nil
	}

	labelToNode := make(map[temp.Label]*Node, len(labelNodes))
	for i, lbl := range labels {
		labelToNode[lbl] = labelNodes[i]
	}

	for _, n := range jumpNodes {
		oper := n.Info().(*assem.Oper)
		for _, lbl := range oper.Jump {
			if target, ok := labelToNode[lbl]; ok {
				graph.AddEdge(n, target)
			}
		}
	}

	return g, nodes
}

// liveSets is the per-node live-in/live-out state the fixed-point loop
// iterates on.
type liveSets struct {
	in, out map[*Node][]temp.Temp
}

// solve computes live-in/live-out per node by iterating
// in[n] = use[n] ∪ (out[n] − def[n]), out[n] = ∪ in[s] for s ∈ succ(n)
// to a fixed point (spec §4.11).
func solve(nodes []*Node) liveSets {
	ls := liveSets{in: make(map[*Node][]temp.Temp), out: make(map[*Node][]temp.Temp)}

	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			newIn := graph.Union(Use(n), graph.Minus(ls.out[n], Def(n)))
			var newOut []temp.Temp
			for _, s := range graph.Succ(n) {
				newOut = graph.Union(newOut, ls.in[s])
			}
			if !graph.Equal(newIn, ls.in[n]) || !graph.Equal(newOut, ls.out[n]) {
				changed = true
			}
			ls.in[n] = newIn
			ls.out[n] = newOut
		}
	}
	return ls
}

// LiveGraph is the result of liveness analysis: the interference graph
// over temps plus the bookkeeping the register allocator needs to drive
// coalescing.
type LiveGraph struct {
	Graph         *graph.Graph[temp.Temp]
	MoveList      map[temp.Temp][]assem.Instr
	WorklistMoves []assem.Instr
	SpillCost     map[temp.Temp]int
}

// Liveness solves liveness on the flow graph built from il and builds the
// interference graph (spec §4.11).
func Liveness(il []assem.Instr) LiveGraph {
	_, nodes := Build(il)
	ls := solve(nodes)

	ig := graph.New[temp.Temp]()
	tempNodes := make(map[temp.Temp]*graph.Node[temp.Temp])
	findOrCreate := func(t temp.Temp) *graph.Node[temp.Temp] {
		if n, ok := tempNodes[t]; ok {
			return n
		}
		n := ig.NewNode(t)
		tempNodes[t] = n
		return n
	}

	moveList := make(map[temp.Temp][]assem.Instr)
	spillCost := make(map[temp.Temp]int)
	var worklistMoves []assem.Instr

	for _, n := range nodes {
		inst := n.Info()
		def := Def(n)
		use := Use(n)
		out := ls.out[n]

		for _, t := range use {
			spillCost[t]++
		}
		for _, t := range def {
			spillCost[t]++
		}

		var moveSrc *graph.Node[temp.Temp]
		if IsMove(n) {
			for _, t := range graph.Union(use, def) {
				findOrCreate(t)
				moveList[t] = append(moveList[t], inst)
			}
			worklistMoves = append(worklistMoves, inst)
			if len(use) > 0 {
				moveSrc = findOrCreate(use[0])
			}
		}

		for _, d := range def {
			ndef := findOrCreate(d)
			for _, o := range out {
				nedge := findOrCreate(o)
				if ndef == nedge || graph.GoesTo(ndef, nedge) || graph.GoesTo(nedge, ndef) {
					continue
				}
				if IsMove(n) && nedge == moveSrc {
					continue
				}
				graph.AddEdge(ndef, nedge)
			}
		}
	}

	return LiveGraph{Graph: ig, MoveList: moveList, WorklistMoves: worklistMoves, SpillCost: spillCost}
}
