// Package regalloc implements iterated register coalescing (Appel/George,
// spec C12): simplify/coalesce/freeze/select-spill worklists driven to a
// colouring, plus the outer spill-rewrite loop that restarts flow-graph
// construction, liveness, and colouring on a rewritten instruction list
// until every temp gets a register or the safety bound is hit. Grounded
// on original_source/src/color.c and src/regalloc.c, rewritten from the
// original's string-keyed colour table into a direct temp-to-register-temp
// map (Go's comparable temp.Temp makes the string indirection the
// original needed for its untyped lookup table unnecessary) and from its
// pointer-mutating cons lists into Go slices/maps over pkg/graph.
package regalloc

import (
	"fmt"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/flowgraph"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/graph"
	"github.com/tigerlang/tigerc/pkg/temp"
)

type node = graph.Node[temp.Temp]

// colorer holds one run of the iterated-coalescing worklist algorithm over
// an interference graph (spec §4.12).
type colorer struct {
	k          int
	ig         *graph.Graph[temp.Temp]
	tempToNode map[temp.Temp]*node
	precolored map[temp.Temp]bool
	degree     map[*node]int
	alias      map[*node]*node

	moveList      map[temp.Temp][]assem.Instr
	worklistMoves []assem.Instr
	activeMoves   []assem.Instr

	coalescedMoves   []assem.Instr
	constrainedMoves []assem.Instr
	frozenMoves      []assem.Instr

	initial          []temp.Temp
	simplifyWorkList []temp.Temp
	freezeWorkList   []temp.Temp
	spillWorkList    []temp.Temp
	spilledNodes     []temp.Temp
	coalescedNodes   []temp.Temp
	selectStack      []temp.Temp

	spillCost map[temp.Temp]int
}

func (c *colorer) nodeOf(t temp.Temp) *node { return c.tempToNode[t] }

func (c *colorer) nodeMoves(t temp.Temp) []assem.Instr {
	return graph.Intersect(c.moveList[t], graph.Union(c.activeMoves, c.worklistMoves))
}

func (c *colorer) moveRelated(t temp.Temp) bool { return len(c.nodeMoves(t)) > 0 }

func (c *colorer) makeWorkList() {
	for _, t := range c.initial {
		n := c.nodeOf(t)
		switch {
		case c.degree[n] >= c.k:
			c.spillWorkList = append(c.spillWorkList, t)
		case c.moveRelated(t):
			c.freezeWorkList = append(c.freezeWorkList, t)
		default:
			c.simplifyWorkList = append(c.simplifyWorkList, t)
		}
	}
	c.initial = nil
}

func (c *colorer) enableMoves(ts []temp.Temp) {
	for _, t := range ts {
		for _, m := range c.nodeMoves(t) {
			if graph.Contains(c.activeMoves, m) {
				c.activeMoves = graph.Minus(c.activeMoves, []assem.Instr{m})
				c.worklistMoves = append(c.worklistMoves, m)
			}
		}
	}
}

func (c *colorer) decrementDegree(n *node) {
	t := n.Info()
	d := c.degree[n] - 1
	c.degree[n] = d
	if d != c.k {
		return
	}
	c.enableMoves(append([]temp.Temp{t}, adjacent(c, t)...))
	c.spillWorkList = graph.Minus(c.spillWorkList, []temp.Temp{t})
	if c.moveRelated(t) {
		c.freezeWorkList = append(c.freezeWorkList, t)
	} else {
		c.simplifyWorkList = append(c.simplifyWorkList, t)
	}
}

// adjacent returns t's interference neighbours, excluding anything already
// picked off onto the select stack or coalesced away.
func adjacent(c *colorer, t temp.Temp) []temp.Temp {
	var out []temp.Temp
	for _, m := range graph.Adj(c.nodeOf(t)) {
		mt := m.Info()
		if graph.Contains(c.selectStack, mt) || graph.Contains(c.coalescedNodes, mt) {
			continue
		}
		out = append(out, mt)
	}
	return out
}

func (c *colorer) addWorkList(t temp.Temp) {
	if c.precolored[t] || c.moveRelated(t) || c.degree[c.nodeOf(t)] >= c.k {
		return
	}
	c.freezeWorkList = graph.Minus(c.freezeWorkList, []temp.Temp{t})
	c.simplifyWorkList = append(c.simplifyWorkList, t)
}

// ok is the coalescing precondition for a precoloured target (spec §4.12
// step 2a): t is safe to merge into r if t already has low degree, is
// itself precoloured, or already interferes with r.
func (c *colorer) ok(t, r temp.Temp) bool {
	nt, nr := c.nodeOf(t), c.nodeOf(r)
	if c.degree[nt] < c.k {
		return true
	}
	if c.precolored[t] {
		return true
	}
	return graph.GoesTo(nt, nr) || graph.GoesTo(nr, nt)
}

// conservative is the Briggs test (spec §4.12 step 2b): the combined
// neighbourhood has fewer than k nodes of high degree.
func (c *colorer) conservative(ts []temp.Temp) bool {
	k := 0
	for _, t := range ts {
		if c.degree[c.nodeOf(t)] >= c.k {
			k++
		}
	}
	return k < c.k
}

func (c *colorer) getAlias(t temp.Temp) temp.Temp {
	if graph.Contains(c.coalescedNodes, t) {
		return c.getAlias(c.alias[c.nodeOf(t)].Info())
	}
	return t
}

func (c *colorer) simplify() {
	t := c.simplifyWorkList[0]
	c.simplifyWorkList = c.simplifyWorkList[1:]
	c.selectStack = append(c.selectStack, t)
	for _, m := range graph.Adj(c.nodeOf(t)) {
		c.decrementDegree(m)
	}
}

func (c *colorer) combine(u, v temp.Temp) {
	if graph.Contains(c.freezeWorkList, v) {
		c.freezeWorkList = graph.Minus(c.freezeWorkList, []temp.Temp{v})
	} else {
		c.spillWorkList = graph.Minus(c.spillWorkList, []temp.Temp{v})
	}
	c.coalescedNodes = append(c.coalescedNodes, v)
	c.alias[c.nodeOf(v)] = c.nodeOf(u)
	c.moveList[u] = graph.Union(c.moveList[u], c.moveList[v])
	c.enableMoves([]temp.Temp{v})

	for _, nt := range graph.Adj(c.nodeOf(v)) {
		t := c.getAlias(nt.Info())
		nu, ntNode := c.nodeOf(u), c.nodeOf(t)
		if nu != ntNode && !graph.GoesTo(nu, ntNode) && !graph.GoesTo(ntNode, nu) {
			graph.AddEdge(ntNode, nu)
		}
		c.decrementDegree(ntNode)
	}

	if c.degree[c.nodeOf(u)] >= c.k && graph.Contains(c.freezeWorkList, u) {
		c.freezeWorkList = graph.Minus(c.freezeWorkList, []temp.Temp{u})
		c.spillWorkList = append(c.spillWorkList, u)
	}
}

func (c *colorer) coalesce() {
	m := c.worklistMoves[0]
	c.worklistMoves = c.worklistMoves[1:]

	x := c.getAlias(firstOf(m.Uses()))
	y := c.getAlias(firstOf(m.Defs()))

	var u, v temp.Temp
	if c.precolored[x] {
		u, v = y, x
	} else {
		u, v = x, y
	}
	nu, nv := c.nodeOf(u), c.nodeOf(v)

	switch {
	case u == v:
		c.coalescedMoves = append(c.coalescedMoves, m)
		c.addWorkList(u)

	case c.precolored[v] || graph.GoesTo(nu, nv) || graph.GoesTo(nv, nu):
		c.constrainedMoves = append(c.constrainedMoves, m)
		c.addWorkList(u)
		c.addWorkList(v)

	default:
		var flag bool
		if c.precolored[u] {
			flag = true
			for _, adj := range adjacent(c, v) {
				if !c.ok(adj, u) {
					flag = false
					break
				}
			}
		} else {
			flag = c.conservative(graph.Union(adjacent(c, u), adjacent(c, v)))
		}

		if flag {
			c.coalescedMoves = append(c.coalescedMoves, m)
			c.combine(u, v)
			c.addWorkList(u)
		} else {
			c.activeMoves = append(c.activeMoves, m)
		}
	}
}

func (c *colorer) freezeMoves(u temp.Temp) {
	for _, m := range c.nodeMoves(u) {
		x := firstOf(m.Uses())
		y := firstOf(m.Defs())
		var v temp.Temp
		if c.getAlias(x) == c.getAlias(y) {
			v = c.getAlias(x)
		} else {
			v = c.getAlias(y)
		}

		c.activeMoves = graph.Minus(c.activeMoves, []assem.Instr{m})
		c.frozenMoves = append(c.frozenMoves, m)

		if len(c.nodeMoves(v)) == 0 && c.degree[c.nodeOf(v)] < c.k {
			c.freezeWorkList = graph.Minus(c.freezeWorkList, []temp.Temp{v})
			c.simplifyWorkList = append(c.simplifyWorkList, v)
		}
	}
}

func (c *colorer) freeze() {
	u := c.freezeWorkList[0]
	c.freezeWorkList = c.freezeWorkList[1:]
	c.simplifyWorkList = append(c.simplifyWorkList, u)
	c.freezeMoves(u)
}

func (c *colorer) selectSpill() {
	minPriority := float64(1 << 30)
	var chosen temp.Temp
	for _, t := range c.spillWorkList {
		degree := c.degree[c.nodeOf(t)]
		if degree < 1 {
			degree = 1
		}
		priority := float64(c.spillCost[t]) / float64(degree)
		if priority < minPriority {
			minPriority = priority
			chosen = t
		}
	}
	c.spillWorkList = graph.Minus(c.spillWorkList, []temp.Temp{chosen})
	c.simplifyWorkList = append(c.simplifyWorkList, chosen)
	c.freezeMoves(chosen)
}

func (c *colorer) mainLoop() {
	for len(c.simplifyWorkList) > 0 || len(c.worklistMoves) > 0 || len(c.freezeWorkList) > 0 || len(c.spillWorkList) > 0 {
		switch {
		case len(c.simplifyWorkList) > 0:
			c.simplify()
		case len(c.worklistMoves) > 0:
			c.coalesce()
		case len(c.freezeWorkList) > 0:
			c.freeze()
		default:
			c.selectSpill()
		}
	}
}

func firstOf(ts []temp.Temp) temp.Temp {
	if len(ts) == 0 {
		return 0
	}
	return ts[0]
}

// Result is the outcome of one colouring attempt (spec §4.12).
type Result struct {
	Coloring       map[temp.Temp]temp.Temp // temp -> the register temp it was assigned
	Spills         []temp.Temp
	CoalescedMoves []assem.Instr
	Alias          map[temp.Temp]temp.Temp
}

// Color runs iterated register coalescing over lg's interference graph.
// precolored is the set of machine-register temps (each coloured to itself
// in the result); regs is the full
// set of usable machine registers (k = len(regs)).
func Color(lg flowgraph.LiveGraph, precolored map[temp.Temp]bool, regs []temp.Temp) Result {
	c := &colorer{
		k:          len(regs),
		ig:         lg.Graph,
		tempToNode: make(map[temp.Temp]*node),
		precolored: precolored,
		degree:     make(map[*node]int),
		alias:      make(map[*node]*node),
		moveList:   lg.MoveList,
		worklistMoves: append([]assem.Instr{}, lg.WorklistMoves...),
		spillCost:  lg.SpillCost,
	}
	for _, n := range lg.Graph.Nodes() {
		c.tempToNode[n.Info()] = n
	}
	var temps []temp.Temp
	for t := range c.tempToNode {
		temps = append(temps, t)
	}
	for _, t := range graph.SortOrdered(temps) {
		n := c.tempToNode[t]
		if precolored[t] {
			c.degree[n] = 1 << 20
			continue
		}
		c.degree[n] = graph.Degree(n)
		c.initial = append(c.initial, t)
	}

	c.makeWorkList()
	c.mainLoop()

	colors := make(map[temp.Temp]temp.Temp, len(c.tempToNode))
	for t := range precolored {
		colors[t] = t
	}

	for i := len(c.selectStack) - 1; i >= 0; i-- {
		t := c.selectStack[i]
		okColors := append([]temp.Temp{}, regs...)
		for _, adj := range graph.Adj(c.nodeOf(t)) {
			w := c.getAlias(adj.Info())
			if color, ok := colors[w]; ok {
				okColors = graph.Minus(okColors, []temp.Temp{color})
			}
		}
		if len(okColors) == 0 {
			c.spilledNodes = append(c.spilledNodes, t)
		} else {
			colors[t] = okColors[0]
		}
	}

	for _, t := range c.coalescedNodes {
		colors[t] = colors[c.getAlias(t)]
	}

	return Result{
		Coloring:       colors,
		Spills:         c.spilledNodes,
		CoalescedMoves: c.coalescedMoves,
		Alias:          aliasAsTempMap(c),
	}
}

func aliasAsTempMap(c *colorer) map[temp.Temp]temp.Temp {
	out := make(map[temp.Temp]temp.Temp, len(c.alias))
	for n, target := range c.alias {
		out[n.Info()] = target.Info()
	}
	return out
}

// maxSpillAttempts bounds the flow -> liveness -> colour -> rewrite loop
// against pathological spill-rewrite cycles (spec §4.12).
const maxSpillAttempts = 7

// Allocate runs the full register-allocation pipeline over il: build the
// flow graph, solve liveness, colour, and if any temp spills, rewrite the
// instruction list with explicit loads/stores through f and restart, up to
// maxSpillAttempts times. Coalesced moves are left in the output with their
// assembly commented out rather than physically deleted. Returns the final
// colouring (temp -> machine-register name) and the rewritten instruction
// list.
func Allocate(f *frame.Frame, il []assem.Instr, precolored map[temp.Temp]bool, regs []temp.Temp) (map[temp.Temp]string, []assem.Instr) {
	var result Result

	for attempt := 0; attempt < maxSpillAttempts; attempt++ {
		lg := flowgraph.Liveness(il)
		result = Color(lg, precolored, regs)

		if len(result.Spills) == 0 {
			break
		}
		il = rewriteSpills(f, il, result.Spills)
	}

	il = commentOutCoalesced(il, result.CoalescedMoves)

	names := frame.NamedRegisters()
	coloring := make(map[temp.Temp]string, len(result.Coloring))
	for t, reg := range result.Coloring {
		if name, ok := names.Lookup(reg); ok {
			coloring[t] = name
		}
	}
	return coloring, il
}

// rewriteSpills allocates a frame slot per spilled temp and, around every
// instruction that uses or defines one, allocates a fresh temp for that
// occurrence: a load before the instruction (for a use) binds the fresh
// temp from the frame slot, a store after the instruction (for a def)
// writes the fresh temp back to the slot, and the instruction itself is
// rewritten to reference the fresh temp in place of the original spilled
// one (Appel's textbook spill-rewrite, spec §4.12). Each fresh temp's live
// range spans only the one load/use or def/store it was created for, so
// every occurrence strictly shrinks that temp's interference compared to
// the spilled temp's original range, which is what makes the spill-rewrite
// loop's degree reduction actually converge; reusing the same spilled temp
// across every occurrence (as a naive rewrite might) would not give that
// guarantee.
func rewriteSpills(f *frame.Frame, il []assem.Instr, spilled []temp.Temp) []assem.Instr {
	slots := make(map[temp.Temp]int, len(spilled))
	for _, t := range spilled {
		access := f.AllocLocal(true)
		slots[t] = access.(frame.InFrame).Offset
	}

	var out []assem.Instr
	for _, inst := range il {
		useSpilled := graph.Intersect(inst.Uses(), spilled)
		defSpilled := graph.Intersect(inst.Defs(), spilled)
		if len(useSpilled) == 0 && len(defSpilled) == 0 {
			out = append(out, inst)
			continue
		}

		working := inst
		for _, t := range useSpilled {
			fresh := temp.NewTemp()
			out = append(out, &assem.Oper{
				Asm: fmt.Sprintf("movl %d(`s0), `d0  # spilled\n", slots[t]),
				Dst: []temp.Temp{fresh},
				Src: []temp.Temp{frame.FP()},
			})
			working = substituteUses(working, t, fresh)
		}

		defFresh := make(map[temp.Temp]temp.Temp, len(defSpilled))
		for _, t := range defSpilled {
			fresh := temp.NewTemp()
			defFresh[t] = fresh
			working = substituteDefs(working, t, fresh)
		}

		out = append(out, working)

		for _, t := range defSpilled {
			out = append(out, &assem.Oper{
				Asm: fmt.Sprintf("movl `s0, %d(`s1)  # spilled\n", slots[t]),
				Src: []temp.Temp{defFresh[t], frame.FP()},
			})
		}
	}
	return out
}

// substituteUses returns a copy of instr with every occurrence of old in
// its use list replaced by new; def list and template are unchanged.
func substituteUses(instr assem.Instr, old, new temp.Temp) assem.Instr {
	switch v := instr.(type) {
	case *assem.Oper:
		return &assem.Oper{Asm: v.Asm, Dst: v.Dst, Src: substituteTemp(v.Src, old, new), Jump: v.Jump}
	case *assem.Move:
		return &assem.Move{Asm: v.Asm, Dst: v.Dst, Src: substituteTemp(v.Src, old, new)}
	default:
		return instr
	}
}

// substituteDefs returns a copy of instr with every occurrence of old in
// its def list replaced by new; use list and template are unchanged.
func substituteDefs(instr assem.Instr, old, new temp.Temp) assem.Instr {
	switch v := instr.(type) {
	case *assem.Oper:
		return &assem.Oper{Asm: v.Asm, Dst: substituteTemp(v.Dst, old, new), Src: v.Src, Jump: v.Jump}
	case *assem.Move:
		return &assem.Move{Asm: v.Asm, Dst: substituteTemp(v.Dst, old, new), Src: v.Src}
	default:
		return instr
	}
}

func substituteTemp(ts []temp.Temp, old, new temp.Temp) []temp.Temp {
	out := make([]temp.Temp, len(ts))
	for i, t := range ts {
		if t == old {
			out[i] = new
		} else {
			out[i] = t
		}
	}
	return out
}

// commentOutCoalesced marks every coalesced move's assembly as a comment
// rather than physically deleting the instruction record, so Defs/Uses/
// Jumps stay intact for any later pass that still walks the list.
func commentOutCoalesced(il []assem.Instr, coalesced []assem.Instr) []assem.Instr {
	out := make([]assem.Instr, len(il))
	for i, inst := range il {
		if graph.Contains(coalesced, inst) {
			if m, ok := inst.(*assem.Move); ok {
				out[i] = &assem.Move{Asm: "# " + m.Asm, Dst: m.Dst, Src: m.Src}
				continue
			}
		}
		out[i] = inst
	}
	return out
}
