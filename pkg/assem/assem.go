// Package assem is the pseudo-assembly output of instruction selection
// (spec C10): a flat list of instruction records annotated with virtual
// temps, ready for liveness analysis and register allocation. Grounded on
// original_source/src/assem.c and src/include/assem.h.
package assem

import (
	"fmt"
	"strings"

	"github.com/tigerlang/tigerc/pkg/temp"
)

// Instr is one assembly-instruction record: an operation, a label, or a
// move. Moves are tagged separately from Oper so the allocator can try to
// coalesce their src/dst (spec §4.10).
type Instr interface {
	implInstr()
	// Defs/Uses/Jumps expose the operand temps/labels liveness and the
	// allocator need, uniformly across the three shapes.
	Defs() []temp.Temp
	Uses() []temp.Temp
	Jumps() []temp.Label
	// Template returns the raw asm-template string (with s<i>/d<i>/j<i>
	// placeholders, spec §4.10) for the out-of-scope emitter.
	Template() string
}

// Oper is a general operation: defs, uses, and (for branches) the labels it
// may jump to.
type Oper struct {
	Asm  string
	Dst  []temp.Temp
	Src  []temp.Temp
	Jump []temp.Label // nil for a non-branch
}

// Label marks a code address inline in the instruction stream.
type Label struct {
	Asm   string
	Label temp.Label
}

// Move is a register-to-register (or register-to-memory-slot) copy; tagged
// so the allocator may coalesce Dst into Src.
type Move struct {
	Asm string
	Dst []temp.Temp
	Src []temp.Temp
}

func (*Oper) implInstr()  {}
func (*Label) implInstr() {}
func (*Move) implInstr()  {}

func (o *Oper) Defs() []temp.Temp  { return o.Dst }
func (o *Oper) Uses() []temp.Temp  { return o.Src }
func (o *Oper) Jumps() []temp.Label { return o.Jump }
func (o *Oper) Template() string   { return o.Asm }

func (*Label) Defs() []temp.Temp   { return nil }
func (*Label) Uses() []temp.Temp   { return nil }
func (*Label) Jumps() []temp.Label { return nil }
func (l *Label) Template() string  { return l.Asm }

func (m *Move) Defs() []temp.Temp   { return m.Dst }
func (m *Move) Uses() []temp.Temp   { return m.Src }
func (*Move) Jumps() []temp.Label   { return nil }
func (m *Move) Template() string    { return m.Asm }

// Format substitutes s<i>/d<i>/j<i> placeholders in an instruction's
// template with names from m, for debug dumps (-dasm, -dfinal).
func Format(instr Instr, m *temp.Map) string {
	tmpl := instr.Template()
	src := instr.Uses()
	dst := instr.Defs()
	jumps := instr.Jumps()

	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '`' || i+1 >= len(tmpl) {
			b.WriteByte(tmpl[i])
			continue
		}
		kind := tmpl[i+1]
		j := i + 2
		start := j
		for j < len(tmpl) && tmpl[j] >= '0' && tmpl[j] <= '9' {
			j++
		}
		var idx int
		fmt.Sscanf(tmpl[start:j], "%d", &idx)
		switch kind {
		case 's':
			b.WriteString(nameOf(src, idx, m))
		case 'd':
			b.WriteString(nameOf(dst, idx, m))
		case 'j':
			if idx < len(jumps) {
				b.WriteString(jumps[idx].Name())
			}
		default:
			b.WriteByte(tmpl[i])
			j = i + 1
		}
		i = j - 1
	}
	return b.String()
}

func nameOf(ts []temp.Temp, idx int, m *temp.Map) string {
	if idx >= len(ts) {
		return "?"
	}
	if name, ok := m.Lookup(ts[idx]); ok {
		return name
	}
	return ts[idx].String()
}

// Splice concatenates two instruction lists.
func Splice(a, b []Instr) []Instr {
	out := make([]Instr, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// Proc wraps a procedure's prologue string, body, and epilogue string,
// matching the emitter's interface contract (spec §6).
type Proc struct {
	Prolog string
	Body   []Instr
	Epilog string
}
