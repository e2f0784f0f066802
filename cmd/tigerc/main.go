// Command tigerc is the Tiger middle-end compiler driver. It strings
// together every pass this module implements -- parse, escape, type-check
// + translate, canonicalize, select, allocate -- into one pipeline, and
// exposes a `-d<stage>` family of debug flags that dump an intermediate
// form instead of continuing, exactly as the teacher's cmd/ralph-cc/main.go
// does for its own pass pipeline.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/canon"
	"github.com/tigerlang/tigerc/pkg/codegen"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/escape"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/parser"
	"github.com/tigerlang/tigerc/pkg/regalloc"
	"github.com/tigerlang/tigerc/pkg/semant"
	"github.com/tigerlang/tigerc/pkg/temp"
	"github.com/tigerlang/tigerc/pkg/translate"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations.
var (
	dAbsyn  bool
	dEscape bool
	dIR     bool
	dCanon  bool
	dAsm    bool
	dFinal  bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tigerc [file]",
		Short:         "tigerc compiles a Tiger source file through its middle-end passes",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return compile(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dAbsyn, "dabsyn", false, "Dump the parsed abstract syntax tree")
	rootCmd.Flags().BoolVar(&dEscape, "descape", false, "Dump the AST after escape analysis, with escaping bindings marked @")
	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump IR tree fragments before canonicalization")
	rootCmd.Flags().BoolVar(&dCanon, "dcanon", false, "Dump the linearized and traced IR")
	rootCmd.Flags().BoolVar(&dAsm, "dasm", false, "Dump pre-allocation pseudo-assembly with virtual temps")
	rootCmd.Flags().BoolVar(&dFinal, "dfinal", false, "Dump the post-allocation instruction listing")

	return rootCmd
}

func compile(filename string, out, errOut io.Writer) error {
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "tigerc: %v\n", err)
		return err
	}

	rep := errormsg.New(filename, errOut)

	exp := parser.Parse(string(src), rep)
	if rep.AnyErrors() {
		return fmt.Errorf("parsing failed with %d errors", rep.Count())
	}
	if dAbsyn {
		fmt.Fprintln(out, dumpAbsyn(exp))
		return nil
	}

	escape.FindEscapingVars(exp)
	if dEscape {
		fmt.Fprintln(out, dumpAbsyn(exp))
		return nil
	}

	tr := translate.New()
	checker := semant.New(rep, tr)
	checker.TransProg(exp)
	if rep.AnyErrors() {
		return fmt.Errorf("type checking failed with %d errors", rep.Count())
	}

	if dIR {
		for _, frag := range tr.Frags() {
			if pf, ok := frag.(*frame.ProcFrag); ok {
				fmt.Fprintf(out, "%s:\n%s\n", pf.Frame.Name.Name(), dumpStm(pf.Body))
			}
		}
		return nil
	}

	var procs []procWithNames
	var strings []string

	for _, frag := range tr.Frags() {
		switch frag := frag.(type) {
		case *frame.StringFrag:
			strings = append(strings, frame.StringFragAsm(frag.Label, frag.Bytes))

		case *frame.ProcFrag:
			body := frame.EntryExit1(frag.Frame, frag.Body)
			stmts := canon.Linearize(body)
			blocks, done := canon.BasicBlocks(stmts)
			traced := canon.TraceSchedule(blocks, done)

			if dCanon {
				fmt.Fprintf(out, "%s:\n", frag.Frame.Name.Name())
				for _, s := range traced {
					fmt.Fprintln(out, dumpStm(s))
				}
				continue
			}

			sel := codegen.New()
			il := sel.Select(traced)
			il = frame.EntryExit2(il)

			if dAsm {
				fmt.Fprintf(out, "%s:\n", frag.Frame.Name.Name())
				for _, i := range il {
					fmt.Fprint(out, assem.Format(i, frame.NamedRegisters()))
				}
				continue
			}

			regs := frame.AllRegisters()
			precolored := make(map[temp.Temp]bool, len(regs)+3)
			for _, r := range regs {
				precolored[r] = true
			}
			precolored[frame.FP()] = true
			precolored[frame.SP()] = true
			precolored[frame.RA()] = true

			coloring, allocated := regalloc.Allocate(frag.Frame, il, precolored, regs)
			names := temp.Layer(temp.NewMap(), frame.NamedRegisters())
			for t, name := range coloring {
				names.Bind(t, name)
			}

			proc := frame.EntryExit3(frag.Frame, allocated)
			procs = append(procs, procWithNames{proc: proc, names: names})
		}
	}

	if dCanon || dAsm {
		return nil
	}

	for _, s := range strings {
		fmt.Fprint(out, s)
	}
	for _, p := range procs {
		emitProc(out, p)
	}

	if dFinal {
		return nil
	}

	fmt.Fprintf(errOut, "tigerc: compiled %s\n", filename)
	return nil
}

// procWithNames pairs an allocated procedure with the temp->register-name
// map its instructions should be formatted against (EntryExit3's output
// carries no name map of its own).
type procWithNames struct {
	proc  *assem.Proc
	names *temp.Map
}

func emitProc(out io.Writer, p procWithNames) {
	fmt.Fprint(out, p.proc.Prolog)
	for _, i := range p.proc.Body {
		fmt.Fprint(out, assem.Format(i, p.names))
	}
	fmt.Fprint(out, p.proc.Epilog)
}
