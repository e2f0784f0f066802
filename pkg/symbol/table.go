package symbol

import "github.com/dolthub/swiss"

// Table is a scoped binding environment from Symbol to V, implementing the
// "mark-and-pop" scope discipline (spec §4.1): begin-scope pushes a mark,
// end-scope removes exactly the bindings pushed since the most recent mark,
// in reverse order, while Lookup keeps finding outer bindings in O(1).
type Table[V any] struct {
	stacks *swiss.Map[*Symbol, []V]
	log    []*Symbol
	marks  []int
	inTop  []map[*Symbol]bool // per open scope: symbols bound since that scope's mark
}

// NewTable creates an empty scoped table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{stacks: swiss.NewMap[*Symbol, []V](64)}
}

// BeginScope pushes a new scope mark.
func (t *Table[V]) BeginScope() {
	t.marks = append(t.marks, len(t.log))
	t.inTop = append(t.inTop, make(map[*Symbol]bool))
}

// EndScope pops every binding pushed since the matching BeginScope, in
// reverse order, restoring whatever binding (if any) was shadowed.
func (t *Table[V]) EndScope() {
	if len(t.marks) == 0 {
		return
	}
	mark := t.marks[len(t.marks)-1]
	t.marks = t.marks[:len(t.marks)-1]
	t.inTop = t.inTop[:len(t.inTop)-1]

	for len(t.log) > mark {
		s := t.log[len(t.log)-1]
		t.log = t.log[:len(t.log)-1]
		stack, _ := t.stacks.Get(s)
		stack = stack[:len(stack)-1]
		t.stacks.Put(s, stack)
	}
}

// Bind pushes a new binding for s, shadowing any existing one.
func (t *Table[V]) Bind(s *Symbol, v V) {
	stack, _ := t.stacks.Get(s)
	stack = append(stack, v)
	t.stacks.Put(s, stack)
	t.log = append(t.log, s)
	if n := len(t.inTop); n > 0 {
		t.inTop[n-1][s] = true
	}
}

// Lookup returns the innermost binding for s, if any.
func (t *Table[V]) Lookup(s *Symbol) (V, bool) {
	stack, ok := t.stacks.Get(s)
	if !ok || len(stack) == 0 {
		var zero V
		return zero, false
	}
	return stack[len(stack)-1], true
}

// LookupUntilMark returns the innermost binding for s only if it was bound
// since the most recently opened (and still-open) scope's mark, per §4.1.
func (t *Table[V]) LookupUntilMark(s *Symbol) (V, bool) {
	if n := len(t.inTop); n > 0 && t.inTop[n-1][s] {
		return t.Lookup(s)
	}
	var zero V
	return zero, false
}
