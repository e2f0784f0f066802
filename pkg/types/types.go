// Package types represents Tiger types with named/structural equivalence
// (spec C2), grounded on original_source/src/types.c.
package types

import "github.com/tigerlang/tigerc/pkg/symbol"

// Type is the sum of Tiger's type forms: Int, String, Nil, Void, Record,
// Array, and Name (the only mutable form, used to tie mutually recursive
// type declarations together).
type Type interface {
	implType()
	String() string
}

// Int is the built-in integer type.
type Int struct{}

// String is the built-in string type.
type String struct{}

// Nil is the type of the `nil` literal; compatible with any Record type.
type Nil struct{}

// Void is the type of expressions with no value (e.g. a while-loop).
type Void struct{}

// Field is one (name, type) pair of a Record, in declaration order.
type Field struct {
	Name *symbol.Symbol
	Type Type
}

// Record is a named-field aggregate. Two Record values are the same type
// only by identity, never structurally (spec §3).
type Record struct {
	Fields []Field
}

// Array is a homogeneous array of Elem.
type Array struct {
	Elem Type
}

// Name is a possibly-unresolved reference to a declared type. It is the only
// form that may be mutated after construction, to let mutually recursive
// type groups tie the knot; once resolved it should be treated read-only.
type Name struct {
	Sym      *symbol.Symbol
	Resolved Type // nil until the header/body pass resolves it
}

func (*Int) implType()    {}
func (*String) implType() {}
func (*Nil) implType()    {}
func (*Void) implType()   {}
func (*Record) implType() {}
func (*Array) implType()  {}
func (*Name) implType()   {}

func (*Int) String() string    { return "int" }
func (*String) String() string { return "string" }
func (*Nil) String() string    { return "nil" }
func (*Void) String() string   { return "void" }
func (*Array) String() string  { return "array" }
func (r *Record) String() string {
	s := "record {"
	for i, f := range r.Fields {
		if i > 0 {
			s += ", "
		}
		s += f.Name.Name()
	}
	return s + "}"
}
func (n *Name) String() string { return "name " + n.Sym.Name() }

// maxNameChainDepth is the cycle-detection ceiling for Actual: a legal Tiger
// program never nests Name->Name this deep, so reaching it means an
// unresolved (and likely cyclic) chain (spec §4.2).
const maxNameChainDepth = 1000

// Actual follows Name links to the first non-Name type ("actual" type).
// A chain longer than maxNameChainDepth is treated as unresolved and the
// original Name is returned, which the caller reports as a cyclic type.
func Actual(t Type) Type {
	original := t
	for i := 0; i < maxNameChainDepth; i++ {
		n, ok := t.(*Name)
		if !ok {
			return t
		}
		if n.Resolved == nil {
			return n
		}
		t = n.Resolved
	}
	return original
}

// Compatible reports whether a and b may appear on either side of the same
// expression: identical actual types, or one Record and the other Nil.
//
// Int/String/Nil/Void carry no data, so any two instances of the same kind
// are the same type regardless of which call site allocated them -- sameKind
// checks this structurally rather than by pointer identity, which a bare `a
// == b` on the interface value would get wrong for freshly-allocated marker
// types (they'd only compare equal by accident, if the allocator happened to
// reuse an address). Record and Array keep identity-based (named)
// equivalence, per spec §3.
func Compatible(a, b Type) bool {
	a, b = Actual(a), Actual(b)
	if sameKind(a, b) {
		return true
	}
	_, aRec := a.(*Record)
	_, bNil := b.(*Nil)
	if aRec && bNil {
		return true
	}
	_, aNil := a.(*Nil)
	_, bRec := b.(*Record)
	return aNil && bRec
}

func sameKind(a, b Type) bool {
	switch av := a.(type) {
	case *Int:
		_, ok := b.(*Int)
		return ok
	case *String:
		_, ok := b.(*String)
		return ok
	case *Nil:
		_, ok := b.(*Nil)
		return ok
	case *Void:
		_, ok := b.(*Void)
		return ok
	case *Record:
		bv, ok := b.(*Record)
		return ok && av == bv
	case *Array:
		bv, ok := b.(*Array)
		return ok && av == bv
	case *Name:
		bv, ok := b.(*Name)
		return ok && av == bv
	}
	return false
}

// IsCyclicName reports whether t is a Name whose chain never reaches a
// non-Name type within maxNameChainDepth steps -- the "infinite recursive
// type" error (spec §3, §8 S3).
func IsCyclicName(t Type) bool {
	n, ok := t.(*Name)
	if !ok {
		return false
	}
	seen := 0
	cur := Type(n)
	for {
		nm, ok := cur.(*Name)
		if !ok {
			return false
		}
		if nm.Resolved == nil {
			return true
		}
		cur = nm.Resolved
		seen++
		if seen >= maxNameChainDepth {
			return true
		}
	}
}
