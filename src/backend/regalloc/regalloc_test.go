package regalloc

import (
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"prevc/src/backend/asm"
	"prevc/src/backend/liveness"
	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/util"
)

// ----------------------
// ----- Functions ------
// ----------------------

func set(d frames.Temp, v int) *asm.Oper {
	return &asm.Oper{Op: "SETL", Args: fmt.Sprintf("`d0,%d", v), Dst: []frames.Temp{d}}
}

func add(d, a, b frames.Temp) *asm.Oper {
	return &asm.Oper{Op: "ADD", Args: "`d0,`s0,`s1", Dst: []frames.Temp{d}, Src: []frames.Temp{a, b}}
}

// helperProgram wraps instrs between an entry and an exit label. Temporaries below 100 are used by the tests, so
// the generator starts above them.
func helperProgram(rv frames.Temp, instrs ...asm.Instr) (*asm.Program, *frames.Gen) {
	gen := frames.NewGen()
	for gen.Temps() < 100 {
		gen.NewTemp()
	}
	all := append([]asm.Instr{&asm.Label{Label: "L0"}}, instrs...)
	all = append(all, &asm.Label{Label: "L1"})
	return &asm.Program{
		Frame:  &frames.Frame{Label: "_f", Depth: 1},
		Instrs: all,
		RV:     rv,
		Entry:  "L0",
		Exit:   "L1",
	}, gen
}

// helperValid verifies that every temporary of the allocated program has a register and that interfering
// temporaries have different registers.
func helperValid(t *testing.T, a *Allocation, k int) {
	t.Helper()
	res, err := liveness.Analyze(a.Program.Instrs, []frames.Temp{a.Program.RV})
	if err != nil {
		t.Fatalf("analyze: %s", err)
	}
	if err := res.Verify(); err != nil {
		t.Fatalf("verify: %s", err)
	}
	g := liveness.Build(res)
	for _, e1 := range g.Nodes {
		r, ok := a.Regs[e1.Temp]
		if !ok {
			t.Fatalf("%s has no register", e1.Temp)
		}
		if r.Id() >= k {
			t.Fatalf("%s got register %s outside the palette", e1.Temp, r)
		}
		for _, e2 := range e1.Adj {
			if a.Regs[e2.Temp] == r {
				t.Fatalf("interfering %s and %s share register %s", e1.Temp, e2.Temp, r)
			}
		}
	}
}

// TestNoSpill verifies that a colourable graph is coloured in one round.
func TestNoSpill(t *testing.T) {
	prog, gen := helperProgram(3, set(1, 1), set(2, 2), add(3, 1, 2))
	rf, err := regfile.New(2)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	a, err := Allocate(prog, gen, rf, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	if a.Rounds != 1 || len(a.Spills) != 0 {
		t.Fatalf("expected 1 round without spills, got %d rounds and spills %v", a.Rounds, a.Spills)
	}
	if prog.Frame.LocsSize != 0 {
		t.Fatalf("frame grew without spills")
	}
	helperValid(t, a, 2)

	// The destination and a source of ADD may share a register.
	out := prog.Instrs[3].(*asm.Oper).Format(a.Regs)
	if out != "ADD\t$0,$0,$1" && out != "ADD\t$0,$1,$0" && out != "ADD\t$1,$0,$1" && out != "ADD\t$1,$1,$0" {
		t.Fatalf("unexpected rendering %q", out)
	}
}

// TestSpill verifies that three temporaries live at once are spilled with two registers, that the frame grows
// one word per spill, and that allocation terminates within one round per original temporary.
func TestSpill(t *testing.T) {
	prog, gen := helperProgram(4,
		set(1, 1),
		set(2, 2),
		set(3, 3),
		add(4, 1, 2),
		add(4, 4, 3),
	)
	originals := len(prog.Temps())
	rf, err := regfile.New(2)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	a, err := Allocate(prog, gen, rf, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	if len(a.Spills) == 0 {
		t.Fatalf("expected at least one spill")
	}
	if a.Rounds != len(a.Spills)+1 {
		t.Fatalf("expected one round per spill plus one, got %d rounds for %d spills", a.Rounds, len(a.Spills))
	}
	if a.Rounds > originals+1 {
		t.Fatalf("%d rounds for %d temporaries", a.Rounds, originals)
	}
	if prog.Frame.LocsSize != int64(8*len(a.Spills)) {
		t.Fatalf("expected locals of %d bytes, got %d", 8*len(a.Spills), prog.Frame.LocsSize)
	}
	for _, e1 := range a.Spills {
		for _, e2 := range a.Program.Temps() {
			if e1 == e2 {
				t.Fatalf("spilled %s still in the program", e1)
			}
		}
	}
	helperValid(t, a, 2)

	// Spill code addresses the slots below FP.
	stores := 0
	for _, e1 := range a.Program.Instrs {
		if o, ok := e1.(*asm.Oper); ok && o.Op == "STO" {
			stores++
		}
	}
	if stores == 0 {
		t.Fatalf("no spill stores in\n%s", a.Program.Format(a.Regs))
	}
}

// TestSpillReturnValue verifies that a spilled return value is reloaded after the exit label.
func TestSpillReturnValue(t *testing.T) {
	prog, gen := helperProgram(1,
		set(1, 1),
		set(2, 2),
		set(3, 3),
		add(2, 2, 3),
		add(2, 2, 3),
	)
	rf, err := regfile.New(2)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	a, err := Allocate(prog, gen, rf, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	if a.Program.RV == 1 {
		t.Fatalf("return value %s was not spilled: spills %v", a.Program.RV, a.Spills)
	}
	exit := -1
	for i1, e1 := range a.Program.Instrs {
		if l, ok := e1.(*asm.Label); ok && l.Label == a.Program.Exit {
			exit = i1
		}
	}
	last := a.Program.Instrs[len(a.Program.Instrs)-1].(*asm.Oper)
	if exit < 0 || exit == len(a.Program.Instrs)-1 || last.Op != "LDO" || last.Dst[0] != a.Program.RV {
		t.Fatalf("return value not reloaded after the exit label:\n%s", a.Program.Format(a.Regs))
	}
	helperValid(t, a, 2)
}

// TestUncolourable verifies that an instruction reading more temporaries than there are registers is an internal
// error once no original temporary is left to spill.
func TestUncolourable(t *testing.T) {
	prog, gen := helperProgram(5,
		set(1, 1),
		set(2, 2),
		set(3, 3),
		&asm.Oper{Op: "STO", Args: "`s0,`s1,`s2", Src: []frames.Temp{1, 2, 3}},
		set(5, 0),
	)
	rf, err := regfile.New(2)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	_, err = Allocate(prog, gen, rf, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !util.IsClass(err, util.Internal) {
		t.Fatalf("expected an internal error, got %s", err)
	}
}

// TestAllocateAll verifies parallel allocation of independent programs.
func TestAllocateAll(t *testing.T) {
	gen := frames.NewGen()
	var progs []*asm.Program
	for i1 := 0; i1 < 6; i1++ {
		a, b, c := gen.NewTemp(), gen.NewTemp(), gen.NewTemp()
		progs = append(progs, &asm.Program{
			Frame: &frames.Frame{Label: frames.Label(fmt.Sprintf("_f%d", i1)), Depth: 1},
			Instrs: []asm.Instr{
				&asm.Label{Label: "L0"},
				set(a, 1), set(b, 2), set(c, 3), add(a, a, b), add(a, a, c),
				&asm.Label{Label: "L1"},
			},
			RV:    a,
			Entry: "L0",
			Exit:  "L1",
		})
	}
	rf, err := regfile.New(2)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	res, err := AllocateAll(progs, gen, rf, 4, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("allocate: %s", err)
	}
	for i1, e1 := range res {
		if e1 == nil || e1.Program != progs[i1] {
			t.Fatalf("allocation %d missing", i1)
		}
		helperValid(t, e1, 2)
	}
}
