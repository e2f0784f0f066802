package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/tigerlang/tigerc/pkg/assem"
	"github.com/tigerlang/tigerc/pkg/canon"
	"github.com/tigerlang/tigerc/pkg/codegen"
	"github.com/tigerlang/tigerc/pkg/errormsg"
	"github.com/tigerlang/tigerc/pkg/escape"
	"github.com/tigerlang/tigerc/pkg/flowgraph"
	"github.com/tigerlang/tigerc/pkg/frame"
	"github.com/tigerlang/tigerc/pkg/ir"
	"github.com/tigerlang/tigerc/pkg/parser"
	"github.com/tigerlang/tigerc/pkg/regalloc"
	"github.com/tigerlang/tigerc/pkg/semant"
	"github.com/tigerlang/tigerc/pkg/temp"
	"github.com/tigerlang/tigerc/pkg/translate"
	"gopkg.in/yaml.v3"
)

// frontend parses and escape-analyzes src, returning a fresh reporter that
// every later stage shares.
func frontend(src string) (*errormsg.Reporter, *bytes.Buffer, *translate.Translator) {
	buf := &bytes.Buffer{}
	rep := errormsg.New("scenario.tig", buf)
	exp := parser.Parse(src, rep)
	if rep.AnyErrors() {
		return rep, buf, nil
	}
	escape.FindEscapingVars(exp)
	tr := translate.New()
	semant.New(rep, tr).TransProg(exp)
	return rep, buf, tr
}

// procFrags collects every procedure fragment the translator produced.
func procFrags(tr *translate.Translator) []*frame.ProcFrag {
	var out []*frame.ProcFrag
	for _, f := range tr.Frags() {
		if pf, ok := f.(*frame.ProcFrag); ok {
			out = append(out, pf)
		}
	}
	return out
}

func containsMoveFromConst(stm ir.Stm, value int) bool {
	found := false
	walkStm(stm, func(s ir.Stm) {
		mv, ok := s.(*ir.Move)
		if !ok {
			return
		}
		if c, ok := mv.Src.(*ir.Const); ok && c.Value == value {
			found = true
		}
	})
	return found
}

func containsBinOp(stm ir.Stm, op ir.BinOp) bool {
	found := false
	walkStm(stm, func(s ir.Stm) {
		mv, ok := s.(*ir.Move)
		if !ok {
			return
		}
		if b, ok := mv.Src.(*ir.BinOpExp); ok && b.Op == op {
			found = true
		}
	})
	return found
}

func containsCallTo(stm ir.Stm, name string) bool {
	found := false
	walkStm(stm, func(s ir.Stm) {
		var scan func(e ir.Exp)
		scan = func(e ir.Exp) {
			switch e := e.(type) {
			case *ir.Call:
				if n, ok := e.Fn.(*ir.Name); ok && n.Label.Name() == name {
					found = true
				}
				for _, a := range e.Args {
					scan(a)
				}
			case *ir.BinOpExp:
				scan(e.Left)
				scan(e.Right)
			case *ir.Mem:
				scan(e.Addr)
			case *ir.ESeq:
				scan(e.Exp)
			}
		}
		switch s := s.(type) {
		case *ir.Move:
			scan(s.Src)
			scan(s.Dst)
		case *ir.ExpStm:
			scan(s.Exp)
		}
	})
	return found
}

// walkStm visits every Stm reachable from s, including through Seq nesting
// and through the Stm half of any ESeq nested in an expression.
func walkStm(s ir.Stm, visit func(ir.Stm)) {
	if s == nil {
		return
	}
	visit(s)
	var inExp func(e ir.Exp)
	inExp = func(e ir.Exp) {
		switch e := e.(type) {
		case *ir.ESeq:
			walkStm(e.Stm, visit)
			inExp(e.Exp)
		case *ir.BinOpExp:
			inExp(e.Left)
			inExp(e.Right)
		case *ir.Mem:
			inExp(e.Addr)
		case *ir.Call:
			for _, a := range e.Args {
				inExp(a)
			}
		}
	}
	switch v := s.(type) {
	case *ir.Seq:
		walkStm(v.Left, visit)
		walkStm(v.Right, visit)
	case *ir.Move:
		inExp(v.Dst)
		inExp(v.Src)
	case *ir.ExpStm:
		inExp(v.Exp)
	}
}

// S1: `let var x:=5 var y:=x+2 in y end` type-checks, moves 5 into x, moves
// (x+2) into y, and colors y to a caller-save register.
func TestScenarioLetWithArithmeticColorsToCallerSave(t *testing.T) {
	rep, buf, tr := frontend(`let var x:=5 var y:=x+2 in y end`)
	if rep.AnyErrors() {
		t.Fatalf("expected no type errors, got: %s", buf.String())
	}

	frags := procFrags(tr)
	if len(frags) != 1 {
		t.Fatalf("expected exactly one procedure fragment, got %d", len(frags))
	}
	body := frags[0].Body

	if !containsMoveFromConst(body, 5) {
		t.Fatalf("expected a Move of constant 5 somewhere in the IR")
	}
	if !containsBinOp(body, ir.Plus) {
		t.Fatalf("expected a Move of a Plus expression (x+2) somewhere in the IR")
	}

	il := allocate(t, frags[0])
	if len(il.Spills) != 0 {
		t.Fatalf("expected no spills, got %v", il.Spills)
	}
	foundCallerSave := false
	for _, reg := range il.Coloring {
		for _, cs := range frame.CallerSaves() {
			if reg == cs {
				foundCallerSave = true
			}
		}
	}
	if !foundCallerSave {
		t.Fatalf("expected at least one temp colored to a caller-save register")
	}
}

// S2: `let type list={hd:int,tl:list} var l:list:=nil in l end` type-checks
// (Nil is compatible with a named Record type on a var-dec) and l is
// initialized to the constant 0.
func TestScenarioRecursiveRecordNilInitializesToZero(t *testing.T) {
	rep, buf, tr := frontend(`let type list={hd:int,tl:list} var l:list:=nil in l end`)
	if rep.AnyErrors() {
		t.Fatalf("expected no type errors, got: %s", buf.String())
	}

	frags := procFrags(tr)
	if len(frags) != 1 {
		t.Fatalf("expected exactly one procedure fragment, got %d", len(frags))
	}
	if !containsMoveFromConst(frags[0].Body, 0) {
		t.Fatalf("expected l to be initialized from the constant 0 (nil)")
	}
}

// S3: `let type t=u type u=t in 0 end` reports "infinite recursive type".
func TestScenarioMutuallyRecursiveTypeAliasIsAnError(t *testing.T) {
	rep, buf, _ := frontend(`let type t=u type u=t in 0 end`)
	if !rep.AnyErrors() {
		t.Fatalf("expected an infinite-recursive-type error")
	}
	if !bytes.Contains(buf.Bytes(), []byte("infinite recursive type")) {
		t.Fatalf("expected an 'infinite recursive type' diagnostic, got: %s", buf.String())
	}
}

// S4: `let function f():int=(break; 0) in f() end` reports a break-outside-
// loop error.
func TestScenarioBreakOutsideLoopIsAnError(t *testing.T) {
	rep, buf, _ := frontend(`let function f():int=(break; 0) in f() end`)
	if !rep.AnyErrors() {
		t.Fatalf("expected a break-outside-loop error, got: %s", buf.String())
	}
}

// S5: `fib` type-checks, its CFG contains at least one CJump (the if/else
// test), and it allocates without spilling given all 6 general-purpose
// registers.
func TestScenarioFibTypeChecksAndAllocatesWithoutSpilling(t *testing.T) {
	rep, buf, tr := frontend(`let function fib(n:int):int= if n<2 then n else fib(n-1)+fib(n-2) in fib(10) end`)
	if rep.AnyErrors() {
		t.Fatalf("expected no type errors, got: %s", buf.String())
	}

	var fibFrag *frame.ProcFrag
	for _, f := range procFrags(tr) {
		if f.Frame.Name.Name() == "fib" && containsCallTo(f.Body, "fib") {
			fibFrag = f
		}
	}
	if fibFrag == nil {
		t.Fatalf("expected to find fib's own procedure fragment (it calls itself)")
	}

	il := allocate(t, fibFrag)

	foundCJump := false
	for _, i := range il.instrs {
		if o, ok := i.(*assem.Oper); ok && len(o.Asm) >= 1 && o.Asm[0] == 'j' && !strings.HasPrefix(o.Asm, "jmp") {
			foundCJump = true
		}
	}
	if !foundCJump {
		t.Fatalf("expected at least one conditional jump instruction in fib's selected code")
	}
	if len(il.Spills) != 0 {
		t.Fatalf("expected no spills for fib with all 6 registers available, got %v", il.Spills)
	}
}

// S6: `let type intArray=array of int var a:=intArray[10] of 0 in a[3]:=7;
// a[3] end` translates the
// array creation as a call to initArray(10,0) and the element access as a
// Mem read/write at a + 3*word-size.
func TestScenarioArrayCreateAndSubscript(t *testing.T) {
	rep, buf, tr := frontend(`let type intArray=array of int var a:=intArray[10] of 0 in a[3]:=7; a[3] end`)
	if rep.AnyErrors() {
		t.Fatalf("expected no type errors, got: %s", buf.String())
	}

	frags := procFrags(tr)
	if len(frags) != 1 {
		t.Fatalf("expected exactly one procedure fragment, got %d", len(frags))
	}
	body := frags[0].Body

	if !containsCallTo(body, "initArray") {
		t.Fatalf("expected array creation to translate to a call to initArray")
	}

	foundSubscriptMem := false
	walkStm(body, func(s ir.Stm) {
		var scan func(e ir.Exp)
		scan = func(e ir.Exp) {
			mem, ok := e.(*ir.Mem)
			if ok {
				if b, ok := mem.Addr.(*ir.BinOpExp); ok && b.Op == ir.Plus {
					if rhs, ok := b.Right.(*ir.BinOpExp); ok && rhs.Op == ir.Times {
						if c, ok := rhs.Right.(*ir.Const); ok && c.Value == frame.WordSize {
							if idx, ok := rhs.Left.(*ir.Const); ok && idx.Value == 3 {
								foundSubscriptMem = true
							}
						}
					}
				}
			}
			switch e := e.(type) {
			case *ir.Mem:
				scan(e.Addr)
			case *ir.BinOpExp:
				scan(e.Left)
				scan(e.Right)
			case *ir.ESeq:
				scan(e.Exp)
			}
		}
		switch s := s.(type) {
		case *ir.Move:
			scan(s.Src)
			scan(s.Dst)
		case *ir.ExpStm:
			scan(s.Exp)
		}
	})
	if !foundSubscriptMem {
		t.Fatalf("expected a Mem(a + 3*wordsize) subscript address somewhere in the IR")
	}
}

// ScenarioSpec is one YAML-driven scenario case, run end to end through the
// CLI rather than by calling package APIs directly.
type ScenarioSpec struct {
	Name        string   `yaml:"name"`
	Input       string   `yaml:"input"`
	Flag        string   `yaml:"flag,omitempty"`
	Expect      []string `yaml:"expect,omitempty"`
	ExpectError string   `yaml:"expect_error,omitempty"`
	ExpectNot   []string `yaml:"expect_not,omitempty"`
}

// ScenarioTestFile represents the scenarios.yaml file structure.
type ScenarioTestFile struct {
	Tests []ScenarioSpec `yaml:"tests"`
}

// TestScenariosYAML drives the S1-S6 scenarios through the actual CLI,
// complementing the package-level TestScenario* tests above.
func TestScenariosYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/scenarios.yaml")
	if err != nil {
		t.Fatalf("scenarios.yaml not found: %v", err)
	}
	var testFile ScenarioTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse scenarios.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			path := writeSource(t, tc.Input)
			resetDebugFlags()

			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			args := []string{path}
			if tc.Flag != "" {
				args = []string{"--" + tc.Flag, path}
			}
			cmd.SetArgs(args)
			err := cmd.Execute()

			if tc.ExpectError != "" {
				if err == nil {
					t.Fatalf("expected an error containing %q, got none", tc.ExpectError)
				}
				if !strings.Contains(errOut.String(), tc.ExpectError) {
					t.Fatalf("expected stderr to contain %q\nGot:\n%s", tc.ExpectError, errOut.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v, stderr: %s", err, errOut.String())
			}

			output := out.String()
			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}
			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output to NOT contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}

// allocResult bundles the pieces a scenario test inspects after running a
// fragment fully through canon/codegen/regalloc.
type allocResult struct {
	instrs   []assem.Instr
	Coloring map[temp.Temp]temp.Temp
	Spills   []temp.Temp
}

func allocate(t *testing.T, frag *frame.ProcFrag) allocResult {
	t.Helper()
	body := frame.EntryExit1(frag.Frame, frag.Body)
	stmts := canon.Linearize(body)
	blocks, done := canon.BasicBlocks(stmts)
	traced := canon.TraceSchedule(blocks, done)

	sel := codegen.New()
	il := sel.Select(traced)
	il = frame.EntryExit2(il)

	regs := frame.AllRegisters()
	precolored := make(map[temp.Temp]bool, len(regs)+3)
	for _, r := range regs {
		precolored[r] = true
	}
	precolored[frame.FP()] = true
	precolored[frame.SP()] = true
	precolored[frame.RA()] = true

	lg := flowgraph.Liveness(il)
	result := regalloc.Color(lg, precolored, regs)
	return allocResult{instrs: il, Coloring: result.Coloring, Spills: result.Spills}
}
