package finalize

import (
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"prevc/src/backend/asm"
	"prevc/src/backend/regalloc"
	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/ir/lin"
	"prevc/src/util"
)

// ----------------------
// ----- Functions ------
// ----------------------

// helperAlloc allocates registers for a program labelled label with the given body.
func helperAlloc(t *testing.T, gen *frames.Gen, rf regfile.RegisterFile, label frames.Label, body ...asm.Instr) *regalloc.Allocation {
	t.Helper()
	rv := gen.NewTemp()
	entry, exit := gen.NewLabel(), gen.NewLabel()
	instrs := []asm.Instr{&asm.Label{Label: entry}}
	instrs = append(instrs, body...)
	instrs = append(instrs,
		&asm.Oper{Op: "SETL", Args: "`d0,0", Dst: []frames.Temp{rv}},
		&asm.Oper{Op: "JMP", Args: string(exit), Jumps: []frames.Label{exit}, Jump: true},
		&asm.Label{Label: exit},
	)
	prog := &asm.Program{
		Frame:  &frames.Frame{Label: label, Depth: 1, ArgsSize: 16},
		Instrs: instrs,
		RV:     rv,
		Entry:  entry,
		Exit:   exit,
	}
	a, err := regalloc.Allocate(prog, gen, rf, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	return a
}

func call(l frames.Label) *asm.Oper {
	return &asm.Oper{Op: "PUSHJ", Args: "$8," + string(l), Call: l}
}

// helperEmit emits the program and returns its text and linkage warnings.
func helperEmit(t *testing.T, data []*lin.DataFragment, code ...*regalloc.Allocation) (string, error) {
	t.Helper()
	rf, err := regfile.New(8)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	w := util.Writer{}
	warnings, err := Emit(&w, data, code, rf, util.DefaultOptions(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("emit: %s", err)
	}
	return w.String(), warnings
}

// TestEmitLayout verifies the order of the program sections and the frame handling.
func TestEmitLayout(t *testing.T) {
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	f := helperAlloc(t, gen, rf, "_f")
	main := helperAlloc(t, gen, rf, frames.MainLabel, call("_f"))
	out, warnings := helperEmit(t, []*lin.DataFragment{{Label: "_x", Size: 24}}, f, main)
	if warnings != nil {
		t.Fatalf("unexpected warnings: %s", warnings)
	}

	exp := []string{
		"SP\tIS\t$250\n",
		"\tLOC\tData_Segment\n",
		"\tGREG\t@\n",
		"_x\tOCTA\t0,0,0\n",
		"\tLOC\t#100\n",
		"Main\tPUT\trG,250\n",
		"\tPUSHJ\t$8,_\n",
		"\tTRAP\t0,Halt,0\n",
		"_f\tSETL\t$0,8\n",
		"\tGET\t$0,rJ\n",
		"\tSUB\tSP,SP,32\n",
		"\tPUT\trJ,$0\n",
		"\tPOP\t0,0\n",
		"_\tSETL\t$0,8\n",
	}
	pos := 0
	for _, e1 := range exp {
		i := strings.Index(out[pos:], e1)
		if i < 0 {
			t.Fatalf("expected %q after offset %d in\n%s", e1, pos, out)
		}
		pos += i + len(e1)
	}
	if strings.Contains(out, "Buf") || strings.Contains(out, "_printint") {
		t.Fatalf("unreferenced runtime emitted:\n%s", out)
	}
}

// TestJumpRemoval verifies that jumps to the next instruction are removed and labels slide onto instructions.
func TestJumpRemoval(t *testing.T) {
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	main := helperAlloc(t, gen, rf, frames.MainLabel,
		&asm.Oper{Op: "JMP", Args: "L100", Jumps: []frames.Label{"L100"}, Jump: true},
		&asm.Label{Label: "L100"},
		&asm.Label{Label: "L101"},
	)
	out, _ := helperEmit(t, nil, main)
	if strings.Contains(out, "JMP") {
		t.Fatalf("jump to the next instruction was kept:\n%s", out)
	}
	// The entry label moves off the removed jump; the other labels become aliases of the same instruction.
	exp := "L100\tIS\t@\nL101\tIS\t@\n" + string(main.Program.Entry) + "\tSETL\t"
	if !strings.Contains(out, exp) {
		t.Fatalf("expected %q in\n%s", exp, out)
	}
	// The exit label sits on the epilogue.
	if !strings.Contains(out, string(main.Program.Exit)+"\tSTO\t") {
		t.Fatalf("exit label not on the epilogue:\n%s", out)
	}
}

// TestRuntime verifies that only referenced runtime routines and their data are emitted.
func TestRuntime(t *testing.T) {
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	main := helperAlloc(t, gen, rf, frames.MainLabel, call("_printint"), call("_malloc"))
	out, warnings := helperEmit(t, nil, main)
	if warnings != nil {
		t.Fatalf("runtime calls reported as unresolved: %s", warnings)
	}
	for _, e1 := range []string{"Buf\tOCTA\t0,0,0,0\n", "_printint\tLDO\t$0,SP,8\n", "_malloc\tLDO\t$0,SP,8\n"} {
		if !strings.Contains(out, e1) {
			t.Fatalf("expected %q in\n%s", e1, out)
		}
	}
	for _, e1 := range []string{"NewLn", "_println\t", "_free\t", "_exit\t", "_printchar\t"} {
		if strings.Contains(out, e1) {
			t.Fatalf("unexpected %q in\n%s", e1, out)
		}
	}
}

// TestRuntimeLabels verifies that the branch targets inside runtime routines cannot clash with the label of a
// source function or an anonymous label.
func TestRuntimeLabels(t *testing.T) {
	for _, e1 := range runtime {
		for _, e2 := range e1.code {
			for _, e3 := range e2.labels {
				if e3 == string(e1.label) {
					continue
				}
				if strings.HasPrefix(e3, "_") || strings.HasPrefix(e3, "L") {
					t.Fatalf("%s: label %s may clash with a compiled label", e1.label, e3)
				}
			}
		}
	}

	// A source function named printint1 next to the printint routine.
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	main := helperAlloc(t, gen, rf, frames.MainLabel, call(frames.NamedLabel("printint1")), call("_printint"))
	f := helperAlloc(t, gen, rf, frames.NamedLabel("printint1"))
	out, warnings := helperEmit(t, nil, main, f)
	if warnings != nil {
		t.Fatalf("unexpected warnings: %s", warnings)
	}
	for _, e1 := range []string{"\n_printint1\t", "\n_printint\t"} {
		if n := strings.Count(out, e1); n != 1 {
			t.Fatalf("expected %q once, found %d times in\n%s", e1, n, out)
		}
	}
}

// TestLinkageWarning verifies that calls to unknown functions are reported without stopping emission.
func TestLinkageWarning(t *testing.T) {
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	main := helperAlloc(t, gen, rf, frames.MainLabel, call("_ext"), call("_other"), call("_ext"))
	out, warnings := helperEmit(t, nil, main)
	if !util.IsClass(warnings, util.Linkage) {
		t.Fatalf("expected linkage warnings, got %v", warnings)
	}
	if !strings.Contains(warnings.Error(), "_ext") || !strings.Contains(warnings.Error(), "_other") {
		t.Fatalf("warnings do not name the callees: %s", warnings)
	}
	if !strings.Contains(out, "PUSHJ\t$8,_ext") {
		t.Fatalf("call was not emitted:\n%s", out)
	}
}

// TestNoMain verifies that a program without top-level code is rejected.
func TestNoMain(t *testing.T) {
	gen := frames.NewGen()
	rf, _ := regfile.New(8)
	f := helperAlloc(t, gen, rf, "_f")
	w := util.Writer{}
	_, err := Emit(&w, nil, []*regalloc.Allocation{f}, rf, util.DefaultOptions(), zaptest.NewLogger(t))
	if !util.IsClass(err, util.Internal) {
		t.Fatalf("expected an internal error, got %v", err)
	}
}
