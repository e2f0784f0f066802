// Package symbol interns identifiers and provides the scoped binding table
// (spec C1) used by every later pass: escape analysis, translate, and the
// type checker all thread a *Table through a lexical walk of the AST.
// Grounded on original_source/src/symbol.c and src/table.c.
package symbol

import (
	"sync"

	"github.com/dolthub/swiss"
)

// Symbol is an interned identifier. Equality is pointer identity: two
// Symbols compare equal iff they were interned from the same spelling.
type Symbol struct {
	name string
}

func (s *Symbol) String() string { return s.name }

// Name returns the symbol's spelling.
func (s *Symbol) Name() string { return s.name }

var (
	internMu sync.Mutex
	interned = swiss.NewMap[string, *Symbol](256)
)

// New interns name, returning the unique *Symbol for that spelling.
// Repeated calls with the same spelling return the identical pointer.
func New(name string) *Symbol {
	internMu.Lock()
	defer internMu.Unlock()
	if sym, ok := interned.Get(name); ok {
		return sym
	}
	sym := &Symbol{name: name}
	interned.Put(name, sym)
	return sym
}
