package asm

import (
	"strings"
	"testing"

	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/ir/lin"
)

// TestConstOps verifies constant synthesis for every range of values.
func TestConstOps(t *testing.T) {
	tests := []struct {
		v   int64
		exp []string
	}{
		{0, []string{"SETL $0,0"}},
		{42, []string{"SETL $0,42"}},
		{-5, []string{"NEG $0,0,5"}},
		{-255, []string{"NEG $0,0,255"}},
		{-300, []string{"SETL $0,300", "NEG $0,0,$0"}},
		{65536, []string{"SETML $0,1"}},
		{65537, []string{"SETL $0,1", "INCML $0,1"}},
		{1 << 48, []string{"SETH $0,1"}},
		{-65536, []string{"SETML $0,65535", "INCMH $0,65535", "INCH $0,65535"}},
		{-65537, []string{"SETL $0,65535", "INCML $0,65534", "INCMH $0,65535", "INCH $0,65535"}},
	}

	for _, e1 := range tests {
		ops := ConstOps(e1.v)
		if len(ops) != len(e1.exp) {
			t.Fatalf("%d: expected %d instructions, got %d", e1.v, len(e1.exp), len(ops))
		}
		for i2, e2 := range ops {
			got := e2.Op + " " + e2.Render("$0")
			if got != e1.exp[i2] {
				t.Fatalf("%d: expected %q, got %q", e1.v, e1.exp[i2], got)
			}
		}
	}
}

// helperSelect selects a fragment with the given statements.
func helperSelect(t *testing.T, gen *frames.Gen, fp frames.Temp, stmts ...imc.Stmt) *Program {
	t.Helper()
	rf, err := regfile.New(8)
	if err != nil {
		t.Fatalf("register file: %s", err)
	}
	frag := &lin.CodeFragment{
		Frame: &frames.Frame{Label: "_f", Depth: 1},
		Stmts: append([]imc.Stmt{imc.Lbl("L0")}, stmts...),
		RV:    gen.NewTemp(),
		Entry: "L0",
		Exit:  "L1",
	}
	p, err := Select(frag, gen, fp, rf)
	if err != nil {
		t.Fatalf("select: %s", err)
	}
	if l, ok := p.Instrs[len(p.Instrs)-1].(*Label); !ok || l.Label != "L1" {
		t.Fatalf("program does not end with the exit label")
	}
	return p
}

// helperLines renders the operations of p.
func helperLines(p *Program) []string {
	var res []string
	for _, e1 := range p.Instrs {
		if o, ok := e1.(*Oper); ok {
			res = append(res, strings.Replace(o.Format(nil), "\t", " ", 1))
		}
	}
	return res
}

func helperExpect(t *testing.T, got, exp []string) {
	t.Helper()
	if len(got) != len(exp) {
		t.Fatalf("expected %d instructions %v, got %d %v", len(exp), exp, len(got), got)
	}
	for i1 := range exp {
		if got[i1] != exp[i1] {
			t.Fatalf("instruction %d: expected %q, got %q", i1, exp[i1], got[i1])
		}
	}
}

// TestSelectCompare verifies comparisons and immediate operands.
func TestSelectCompare(t *testing.T) {
	gen := frames.NewGen()
	fp, a, d := gen.NewTemp(), gen.NewTemp(), gen.NewTemp()
	p := helperSelect(t, gen, fp,
		imc.Mov(imc.Temp(d), &imc.BinOp{Op: imc.LEQ, Fst: imc.Temp(a), Snd: &imc.Const{Value: 3}}),
		imc.Mov(imc.Temp(d), &imc.BinOp{Op: imc.MOD, Fst: imc.Temp(a), Snd: imc.Temp(d)}),
		imc.Mov(imc.Temp(d), &imc.UnOp{Op: imc.NOT, Sub: imc.Temp(a)}),
	)
	helperExpect(t, helperLines(p), []string{
		"CMP T2,T1,3",
		"ZSNP T2,T2,1",
		"DIV T2,T1,T2",
		"GET T2,rR",
		"ZSZ T2,T1,1",
	})
}

// TestSelectFrame verifies that the frame pointer is never a temporary and that negative offsets are subtracted.
func TestSelectFrame(t *testing.T) {
	gen := frames.NewGen()
	fp, d := gen.NewTemp(), gen.NewTemp()
	local := &imc.Mem{Addr: &imc.BinOp{Op: imc.ADD, Fst: imc.Temp(fp), Snd: &imc.Const{Value: -16}}}
	p := helperSelect(t, gen, fp,
		imc.Mov(imc.Temp(d), local),
		imc.Mov(local, &imc.Const{Value: 7}),
		imc.Mov(imc.Temp(d), &imc.Mem{Addr: &imc.Mem{Addr: imc.Temp(fp)}}),
	)
	for _, e1 := range p.Temps() {
		if e1 == fp {
			t.Fatalf("frame pointer %s used as a temporary", fp)
		}
	}
	lines := helperLines(p)
	exp := []string{"SUB", "LDO", "SUB", "STCO", "LDO", "LDO"}
	if len(lines) != len(exp) {
		t.Fatalf("expected %d instructions, got %v", len(exp), lines)
	}
	for i1 := range exp {
		if !strings.HasPrefix(lines[i1], exp[i1]+" ") {
			t.Fatalf("instruction %d: expected %s, got %q", i1, exp[i1], lines[i1])
		}
	}
	if !strings.Contains(lines[0], ",FP,16") || !strings.HasSuffix(lines[3], ",0") {
		t.Fatalf("unexpected frame access %v", lines)
	}
	if !strings.HasSuffix(lines[4], ",FP,0") {
		t.Fatalf("static link not loaded from FP: %q", lines[4])
	}
}

// TestSelectCall verifies argument passing and result retrieval.
func TestSelectCall(t *testing.T) {
	gen := frames.NewGen()
	fp, a, d := gen.NewTemp(), gen.NewTemp(), gen.NewTemp()
	p := helperSelect(t, gen, fp,
		imc.Mov(imc.Temp(d), &imc.Call{Label: "_g", Args: []imc.Expr{&imc.Const{}, imc.Temp(a), &imc.Const{Value: 1000}}}),
	)
	lines := helperLines(p)
	helperExpect(t, lines[:2], []string{"STCO 0,SP,0", "STO T1,SP,8"})
	helperExpect(t, lines[len(lines)-2:], []string{"PUSHJ $8,_g", "LDO T2,SP,0"})
	calls := p.Calls()
	if len(calls) != 1 || calls[0] != "_g" {
		t.Fatalf("unexpected callees %v", calls)
	}
}

// TestSelectJumps verifies branch shapes and move flags.
func TestSelectJumps(t *testing.T) {
	gen := frames.NewGen()
	fp, c, d := gen.NewTemp(), gen.NewTemp(), gen.NewTemp()
	p := helperSelect(t, gen, fp,
		&imc.CJump{Cond: imc.Temp(c), Pos: "L2", Neg: "L3"},
		imc.Lbl("L2"),
		imc.Mov(imc.Temp(d), imc.Temp(c)),
		imc.Lbl("L3"),
	)
	var ops []*Oper
	for _, e1 := range p.Instrs {
		if o, ok := e1.(*Oper); ok {
			ops = append(ops, o)
		}
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(ops))
	}
	if ops[0].Op != "BNZ" || ops[0].Jump || ops[0].Jumps[0] != "L2" {
		t.Fatalf("unexpected conditional branch %s", ops[0])
	}
	if ops[1].Op != "JMP" || !ops[1].Jump || ops[1].Jumps[0] != "L3" {
		t.Fatalf("unexpected jump %s", ops[1])
	}
	if !ops[2].Move || ops[2].Format(nil) != "SET\tT2,T1" {
		t.Fatalf("unexpected move %s", ops[2])
	}
}
