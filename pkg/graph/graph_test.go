package graph

import "testing"

func TestAddEdgeIsIdempotentAndUpdatesAdjacency(t *testing.T) {
	g := New[string]()
	a := g.NewNode("a")
	b := g.NewNode("b")

	AddEdge(a, b)
	AddEdge(a, b)

	if !GoesTo(a, b) {
		t.Fatalf("expected an edge a -> b")
	}
	if len(Succ(a)) != 1 {
		t.Fatalf("expected AddEdge to be idempotent, got %d successors", len(Succ(a)))
	}
	if len(Pred(b)) != 1 {
		t.Fatalf("expected exactly one predecessor of b, got %d", len(Pred(b)))
	}
	if Degree(a) != 1 || Degree(b) != 1 {
		t.Fatalf("expected degree 1 on both endpoints, got %d and %d", Degree(a), Degree(b))
	}
}

func TestRemoveEdgeClearsBothSides(t *testing.T) {
	g := New[string]()
	a := g.NewNode("a")
	b := g.NewNode("b")
	AddEdge(a, b)

	RemoveEdge(a, b)

	if GoesTo(a, b) {
		t.Fatalf("expected the edge to be gone")
	}
	if len(Adj(a)) != 0 || len(Adj(b)) != 0 {
		t.Fatalf("expected empty adjacency after removal")
	}
}

func TestSetPrimitives(t *testing.T) {
	a := []int{1, 2, 3}
	b := []int{2, 3, 4}

	if !Equal(Union(a, b), []int{1, 2, 3, 4}) {
		t.Fatalf("unexpected union: %v", Union(a, b))
	}
	if !Equal(Minus(a, b), []int{1}) {
		t.Fatalf("unexpected minus: %v", Minus(a, b))
	}
	if !Equal(Intersect(a, b), []int{2, 3}) {
		t.Fatalf("unexpected intersect: %v", Intersect(a, b))
	}
	if Equal(a, b) {
		t.Fatalf("expected a and b to be unequal sets")
	}
}

func TestReverseNodes(t *testing.T) {
	g := New[int]()
	n1 := g.NewNode(1)
	n2 := g.NewNode(2)
	n3 := g.NewNode(3)

	rev := ReverseNodes([]*Node[int]{n1, n2, n3})
	if rev[0] != n3 || rev[1] != n2 || rev[2] != n1 {
		t.Fatalf("expected nodes reversed, got %v", rev)
	}
}
