package lin

import (
	"testing"

	"prevc/src/ir"
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/util"
)

// ----------------------
// ----- Functions ------
// ----------------------

func intAtom(v string) *ir.AtomExpr {
	return &ir.AtomExpr{Attr: ir.Attr{Typ: ir.IntType{}}, Kind: ir.AtomInt, Value: v}
}

func name(d ir.Decl, typ ir.Type) *ir.NameExpr {
	return &ir.NameExpr{Attr: ir.Attr{Typ: typ, LValue: true}, Decl: d}
}

// helperLinearize runs every phase up to linearization on prog.
func helperLinearize(t *testing.T, prog *ir.BlockExpr, opt util.Options) []Fragment {
	t.Helper()
	gen := frames.NewGen()
	layout, err := frames.Evaluate(prog, gen)
	if err != nil {
		t.Fatalf("layout: %s", err)
	}
	code, err := imc.Generate(prog, layout, gen)
	if err != nil {
		t.Fatalf("intermediate code: %s", err)
	}
	frags, err := Linearize(layout, code, gen, opt)
	if err != nil {
		t.Fatalf("linearize: %s", err)
	}
	return frags
}

// helperMain returns the top-level code fragment.
func helperMain(t *testing.T, frags []Fragment) *CodeFragment {
	t.Helper()
	for _, e1 := range frags {
		if c, ok := e1.(*CodeFragment); ok && c.Frame.Label == frames.MainLabel {
			return c
		}
	}
	t.Fatalf("no top-level fragment among %d fragments", len(frags))
	return nil
}

// helperResolve verifies that every jump in frag targets a label of the fragment or its exit.
func helperResolve(t *testing.T, frag *CodeFragment) {
	t.Helper()
	labels := map[frames.Label]bool{frag.Exit: true}
	for _, e1 := range frag.Stmts {
		if l, ok := e1.(*imc.LabelStmt); ok {
			if labels[l.Label] {
				t.Fatalf("label %s defined twice in %s", l.Label, frag.Frame.Label)
			}
			labels[l.Label] = true
		}
	}
	for _, e1 := range frag.Stmts {
		switch s := e1.(type) {
		case *imc.Jump:
			if !labels[s.Label] {
				t.Fatalf("jump to unknown label %s", s.Label)
			}
		case *imc.CJump:
			if !labels[s.Pos] || !labels[s.Neg] {
				t.Fatalf("conditional jump to unknown label in %s", s)
			}
		}
	}
}

// helperCanonical verifies the shape of canonical statements.
func helperCanonical(t *testing.T, stmts []imc.Stmt) {
	t.Helper()
	var expr func(e imc.Expr)
	expr = func(e imc.Expr) {
		switch e := e.(type) {
		case *imc.SExpr:
			t.Fatalf("statement expression left in %s", e)
		case *imc.Call:
			t.Fatalf("nested call %s", e)
		case *imc.Mem:
			expr(e.Addr)
		case *imc.BinOp:
			expr(e.Fst)
			expr(e.Snd)
		case *imc.UnOp:
			expr(e.Sub)
		}
	}
	call := func(c *imc.Call) {
		for _, e1 := range c.Args {
			if !atomic(e1) {
				t.Fatalf("call argument %s is not atomic", e1)
			}
		}
	}
	for _, e1 := range stmts {
		switch s := e1.(type) {
		case *imc.Seq:
			t.Fatalf("sequence left in canonical code")
		case *imc.Move:
			if c, ok := s.Src.(*imc.Call); ok {
				if _, ok := s.Dst.(*imc.TempExpr); !ok {
					t.Fatalf("call result moved to %s", s.Dst)
				}
				call(c)
				continue
			}
			expr(s.Dst)
			expr(s.Src)
		case *imc.ExprStmt:
			c, ok := s.Expr.(*imc.Call)
			if !ok {
				t.Fatalf("expression statement without a call: %s", s)
			}
			call(c)
		case *imc.CJump:
			if _, ok := s.Cond.(*imc.TempExpr); !ok {
				t.Fatalf("condition %s is not a temporary", s.Cond)
			}
		}
	}
}

// TestStraightLine verifies that a body without control flow is one block and needs no jumps.
func TestStraightLine(t *testing.T) {
	x := &ir.VarDecl{Name: "x", Typ: ir.IntType{}}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{x},
		Stmts: []ir.Stmt{
			&ir.AssignStmt{Dst: name(x, ir.IntType{}), Src: &ir.BinExpr{
				Attr: ir.Attr{Typ: ir.IntType{}}, Op: ir.BinAdd, Fst: intAtom("1"), Snd: intAtom("2"),
			}},
		},
		Expr: name(x, ir.IntType{}),
	}

	frags := helperLinearize(t, prog, util.DefaultOptions())
	if len(frags) != 2 {
		t.Fatalf("expected one data and one code fragment, got %d", len(frags))
	}
	if d, ok := frags[0].(*DataFragment); !ok || d.Label != "_x" || d.Size != 8 {
		t.Fatalf("unexpected data fragment %v", frags[0])
	}

	main := helperMain(t, frags)
	if main.Blocks != 1 {
		t.Fatalf("expected 1 basic block, got %d", main.Blocks)
	}
	for _, e1 := range main.Stmts {
		switch e1.(type) {
		case *imc.Jump, *imc.CJump:
			t.Fatalf("unexpected jump %s in straight-line code", e1)
		}
	}
	if l, ok := main.Stmts[0].(*imc.LabelStmt); !ok || l.Label != main.Entry {
		t.Fatalf("fragment does not start with its entry label: %s", main.Stmts[0])
	}
	last, ok := main.Stmts[len(main.Stmts)-1].(*imc.Move)
	if !ok {
		t.Fatalf("expected the fragment to end with a move, got %s", main.Stmts[len(main.Stmts)-1])
	}
	if dst, ok := last.Dst.(*imc.TempExpr); !ok || dst.Temp != main.RV {
		t.Fatalf("expected the last move to set %s, got %s", main.RV, last)
	}
	helperCanonical(t, main.Stmts)
}

// TestEmptyElse verifies the shape of a conditional without an else branch.
func TestEmptyElse(t *testing.T) {
	x := &ir.VarDecl{Name: "x", Typ: ir.IntType{}}
	cond := &ir.BinExpr{Attr: ir.Attr{Typ: ir.BoolType{}}, Op: ir.BinLth, Fst: name(x, ir.IntType{}), Snd: intAtom("3")}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{x},
		Stmts: []ir.Stmt{
			&ir.IfStmt{Cond: cond, Then: []ir.Stmt{
				&ir.AssignStmt{Dst: name(x, ir.IntType{}), Src: intAtom("1")},
			}},
		},
		Expr: name(x, ir.IntType{}),
	}

	for _, e1 := range []bool{true, false} {
		opt := util.DefaultOptions()
		opt.Traces = e1
		main := helperMain(t, helperLinearize(t, prog, opt))
		helperResolve(t, main)
		helperCanonical(t, main.Stmts)

		var cj *imc.CJump
		for _, e2 := range main.Stmts {
			if c, ok := e2.(*imc.CJump); ok {
				if cj != nil {
					t.Fatalf("expected a single conditional jump")
				}
				cj = c
			}
		}
		if cj == nil {
			t.Fatalf("no conditional jump (traces=%t)", e1)
		}
		if main.Blocks != 3 {
			t.Fatalf("expected 3 basic blocks, got %d (traces=%t)", main.Blocks, e1)
		}
	}
}

// TestTracesPreferFalse verifies that the false successor of a conditional jump is placed right after it.
func TestTracesPreferFalse(t *testing.T) {
	gen := frames.NewGen()
	exit, a, b := gen.NewLabel(), gen.NewLabel(), gen.NewLabel()
	c := imc.Temp(gen.NewTemp())
	stmts := []imc.Stmt{
		imc.Mov(c, &imc.Const{Value: 1}),
		&imc.CJump{Cond: c, Pos: a, Neg: b},
		imc.Lbl(a),
		imc.Mov(c, &imc.Const{Value: 2}),
		imc.Lbl(b),
		imc.Mov(c, &imc.Const{Value: 3}),
	}
	blocks := BasicBlocks(stmts, exit, gen)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if _, ok := blocks[0].Stmts[0].(*imc.LabelStmt); !ok {
		t.Fatalf("first block has no label")
	}
	if j, ok := blocks[1].Stmts[len(blocks[1].Stmts)-1].(*imc.Jump); !ok || j.Label != b {
		t.Fatalf("fall-through block does not jump to its successor")
	}

	res := Cleanup(Traces(blocks), exit)
	var order []frames.Label
	for _, e1 := range res {
		if l, ok := e1.(*imc.LabelStmt); ok {
			order = append(order, l.Label)
		}
	}
	exp := []frames.Label{blocks[0].Label, b, a}
	if len(order) != len(exp) {
		t.Fatalf("expected labels %v, got %v", exp, order)
	}
	for i1 := range exp {
		if order[i1] != exp[i1] {
			t.Fatalf("expected labels %v, got %v", exp, order)
		}
	}
	// The block at a still jumps back to b; the block at b jumps to exit before a.
	if j, ok := res[len(res)-1].(*imc.Jump); !ok || j.Label != b {
		t.Fatalf("expected trailing jump to %s, got %s", b, res[len(res)-1])
	}
}

// TestCanonicalCalls verifies that nested calls are hoisted in evaluation order.
func TestCanonicalCalls(t *testing.T) {
	p := &ir.ParDecl{Name: "p", Typ: ir.IntType{}}
	f := &ir.FunDecl{Name: "f", Pars: []*ir.ParDecl{p}, Typ: ir.IntType{}, Body: name(p, ir.IntType{})}
	call := func(arg ir.Expr) ir.Expr {
		return &ir.CallExpr{Attr: ir.Attr{Typ: ir.IntType{}}, Fun: f, Args: []ir.Expr{arg}}
	}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{f},
		Expr: &ir.BinExpr{
			Attr: ir.Attr{Typ: ir.IntType{}}, Op: ir.BinAdd,
			Fst: call(intAtom("1")), Snd: call(call(intAtom("2"))),
		},
	}

	for _, e1 := range []bool{true, false} {
		opt := util.DefaultOptions()
		opt.BinopTemps = e1
		frags := helperLinearize(t, prog, opt)
		if len(frags) != 2 {
			t.Fatalf("expected two code fragments, got %d", len(frags))
		}
		main := helperMain(t, frags)
		helperCanonical(t, main.Stmts)

		calls := 0
		for _, e2 := range main.Stmts {
			if m, ok := e2.(*imc.Move); ok {
				if c, ok := m.Src.(*imc.Call); ok {
					calls++
					if c.Label != "_f" {
						t.Fatalf("unexpected call target %s", c.Label)
					}
				}
			}
		}
		if calls != 3 {
			t.Fatalf("expected 3 hoisted calls, got %d (binop temps=%t)", calls, e1)
		}
	}
}

// TestCleanup verifies removal of jumps to the next label and of the final jump to exit.
func TestCleanup(t *testing.T) {
	stmts := []imc.Stmt{
		imc.Lbl("L1"),
		&imc.Jump{Label: "L2"},
		imc.Lbl("L2"),
		&imc.Jump{Label: "L1"},
		imc.Lbl("L3"),
		&imc.Jump{Label: "L0"},
	}
	res := Cleanup(stmts, "L0")
	if len(res) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(res))
	}
	if j, ok := res[2].(*imc.Jump); !ok || j.Label != "L1" {
		t.Fatalf("backward jump was removed")
	}
}
