// Package graph is a generic directed graph (spec C13): one node per
// payload, successor/predecessor adjacency, and the set-as-list
// primitives liveness and the allocator build on (the lists are not kept
// sorted; Equal ignores order). Grounded on
// original_source/src/graph.c and src/include/graph.h, rewritten from the
// original's pointer-mutating cons lists into Go slices and a type
// parameter for the node payload.
package graph

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// Node is one graph vertex, carrying an opaque payload of type T.
type Node[T any] struct {
	graph *Graph[T]
	key   int
	info  T
	succs []*Node[T]
	preds []*Node[T]
}

// Info returns the payload this node was created with.
func (n *Node[T]) Info() T { return n.info }

// Key returns the node's creation-order index, unique within its graph.
func (n *Node[T]) Key() int { return n.key }

// Graph is a directed graph over nodes carrying a T payload.
type Graph[T any] struct {
	nodes []*Node[T]
}

// New returns an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{}
}

// NewNode adds a fresh node carrying info to g and returns it.
func (g *Graph[T]) NewNode(info T) *Node[T] {
	n := &Node[T]{graph: g, key: len(g.nodes), info: info}
	g.nodes = append(g.nodes, n)
	return n
}

// Nodes returns every node in g, in creation order.
func (g *Graph[T]) Nodes() []*Node[T] {
	return g.nodes
}

// InNodeList reports whether a appears in l.
func InNodeList[T any](a *Node[T], l []*Node[T]) bool {
	for _, n := range l {
		if n == a {
			return true
		}
	}
	return false
}

// GoesTo reports whether there is an edge from -> to.
func GoesTo[T any](from, to *Node[T]) bool {
	return InNodeList(to, from.succs)
}

// AddEdge adds a directed edge from -> to, unless it already exists.
func AddEdge[T any](from, to *Node[T]) {
	if GoesTo(from, to) {
		return
	}
	from.succs = append(from.succs, to)
	to.preds = append(to.preds, from)
}

// RemoveEdge deletes the directed edge from -> to, if present.
func RemoveEdge[T any](from, to *Node[T]) {
	from.succs = removeNode(from.succs, to)
	to.preds = removeNode(to.preds, from)
}

func removeNode[T any](l []*Node[T], a *Node[T]) []*Node[T] {
	out := make([]*Node[T], 0, len(l))
	for _, n := range l {
		if n != a {
			out = append(out, n)
		}
	}
	return out
}

// Succ returns n's successors.
func Succ[T any](n *Node[T]) []*Node[T] { return n.succs }

// Pred returns n's predecessors.
func Pred[T any](n *Node[T]) []*Node[T] { return n.preds }

// Degree is the combined in- and out-degree of n.
func Degree[T any](n *Node[T]) int {
	return len(n.preds) + len(n.succs)
}

// Adj is the adjacency list of n: its successors followed by its
// predecessors.
func Adj[T any](n *Node[T]) []*Node[T] {
	out := make([]*Node[T], 0, len(n.succs)+len(n.preds))
	out = append(out, n.succs...)
	out = append(out, n.preds...)
	return out
}

// ReverseNodes returns l reversed, leaving l untouched.
func ReverseNodes[T any](l []*Node[T]) []*Node[T] {
	out := make([]*Node[T], len(l))
	for i, n := range l {
		out[len(l)-1-i] = n
	}
	return out
}

// Table is a node-keyed mapping, the opaque binding table C13 calls for;
// it is a thin alias over a Go map since *Node[T] is already comparable.
type Table[T, V any] map[*Node[T]]V

// NewTable returns an empty node-keyed table.
func NewTable[T, V any]() Table[T, V] {
	return make(Table[T, V])
}

// Union returns the set union of a and b (duplicates from b that already
// appear in a are dropped).
func Union[E comparable](a, b []E) []E {
	out := append([]E{}, a...)
	for _, e := range b {
		if !contains(a, e) {
			out = append(out, e)
		}
	}
	return out
}

// Minus returns the elements of a not present in b.
func Minus[E comparable](a, b []E) []E {
	var out []E
	for _, e := range a {
		if !contains(b, e) {
			out = append(out, e)
		}
	}
	return out
}

// Intersect returns the elements common to a and b.
func Intersect[E comparable](a, b []E) []E {
	var out []E
	for _, e := range a {
		if contains(b, e) {
			out = append(out, e)
		}
	}
	return out
}

// Equal reports whether a and b contain the same elements, ignoring order
// and duplicates.
func Equal[E comparable](a, b []E) bool {
	return len(Minus(a, b)) == 0 && len(Minus(b, a)) == 0
}

// Contains reports whether e is present in l.
func Contains[E comparable](l []E, e E) bool { return contains(l, e) }

func contains[E comparable](l []E, e E) bool {
	for _, x := range l {
		if x == e {
			return true
		}
	}
	return false
}

// SortOrdered returns a sorted copy of l, ascending. The allocator uses
// this to make worklist seeding order deterministic across runs (temp IDs
// are otherwise only ordered by map-iteration happenstance).
func SortOrdered[E constraints.Ordered](l []E) []E {
	out := append([]E{}, l...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
