// Package temp generates fresh virtual registers (Temp) and code labels
// (Label), and keeps a layered debug-name map from Temp to string (spec C3).
// Grounded on original_source/src/temp.c.
package temp

import (
	"fmt"
	"sync/atomic"

	"github.com/dolthub/swiss"
	"github.com/tigerlang/tigerc/pkg/symbol"
)

// Temp is an abstract virtual register with a fresh, process-wide identity.
type Temp int

// Label is a symbol used as a code address.
type Label = *symbol.Symbol

var (
	nextTemp  int64 = 100
	nextLabel int64
)

// NewTemp returns a fresh Temp; identities increase monotonically.
func NewTemp() Temp {
	return Temp(atomic.AddInt64(&nextTemp, 1))
}

func (t Temp) String() string { return fmt.Sprintf("t%d", int(t)) }

// NewLabel returns a fresh anonymous label named "L<n>".
func NewLabel() Label {
	n := atomic.AddInt64(&nextLabel, 1)
	return NamedLabel(fmt.Sprintf("L%d", n))
}

// NamedLabel returns the (interned) label whose assembly name is name.
func NamedLabel(name string) Label {
	return symbol.New(name)
}

// Map is a layered mapping from Temp to a debug/colouring name: lookup tries
// the overlaying map first, falling through to the one underneath.
type Map struct {
	names *swiss.Map[Temp, string]
	under *Map
}

// NewMap creates an empty single-layer map.
func NewMap() *Map {
	return &Map{names: swiss.NewMap[Temp, string](64)}
}

// Layer overlays over on top of under ("over wins on lookup"); either side
// may be nil.
func Layer(over, under *Map) *Map {
	if over == nil {
		return under
	}
	return &Map{names: over.names, under: Layer(over.under, under)}
}

// Bind records a name for t in this layer.
func (m *Map) Bind(t Temp, name string) {
	m.names.Put(t, name)
}

// Lookup searches this layer, then falls through to the layer underneath.
func (m *Map) Lookup(t Temp) (string, bool) {
	if m == nil {
		return "", false
	}
	if name, ok := m.names.Get(t); ok {
		return name, true
	}
	return m.under.Lookup(t)
}
