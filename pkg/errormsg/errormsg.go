// Package errormsg formats and tallies compiler diagnostics.
// This mirrors the original Tiger compiler's errormsg.c, but as a Reporter
// value rather than package-level state: every phase of a compilation unit
// shares one Reporter, reset once per unit (spec §5).
package errormsg

import (
	"fmt"
	"io"
	"os"
)

// Pos is a source position, both fields 1-based.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d.%d", p.Line, p.Col)
}

// Reporter accumulates and prints "<filename>:<line>.<col>: <msg>" diagnostics
// and tallies how many were reported, per spec §6/§7.
type Reporter struct {
	Filename string
	out      io.Writer
	count    int
}

// New creates a Reporter for filename, writing to out.
func New(filename string, out io.Writer) *Reporter {
	return &Reporter{Filename: filename, out: out}
}

// Reset clears error state for a new compilation unit, as errm_reset does.
func (r *Reporter) Reset(filename string) {
	r.Filename = filename
	r.count = 0
}

// Errorf reports a semantic or syntactic error at pos.
func (r *Reporter) Errorf(pos Pos, format string, args ...any) {
	r.count++
	fmt.Fprintf(r.out, "%s:%s: %s\n", r.Filename, pos, fmt.Sprintf(format, args...))
}

// AnyErrors reports whether any error has been recorded since the last Reset.
func (r *Reporter) AnyErrors() bool {
	return r.count > 0
}

// Count returns the number of errors recorded since the last Reset.
func (r *Reporter) Count() int {
	return r.count
}

// Impossible reports a structural invariant violation (malformed IR, CFG, ...)
// and aborts the process, matching errm_impossible's fatal behavior (spec §7:
// "Structural invariant violations ... are internal errors that abort
// compilation").
func Impossible(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "tigerc: internal error: %s\n", fmt.Sprintf(format, args...))
	os.Exit(2)
}
