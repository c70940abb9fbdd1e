package imc

import (
	"strings"
	"testing"

	"prevc/src/ir"
	"prevc/src/ir/frames"
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

// helperGenerate lays out prog and lowers it.
func helperGenerate(t *testing.T, prog *ir.BlockExpr) (*frames.Layout, *Code) {
	t.Helper()
	gen := frames.NewGen()
	layout, err := frames.Evaluate(prog, gen)
	if err != nil {
		t.Fatalf("layout: %s", err)
	}
	code, err := Generate(prog, layout, gen)
	if err != nil {
		t.Fatalf("generate: %s", err)
	}
	return layout, code
}

// TestStaticLinks verifies that a variable two levels out is reached by following the static link twice.
func TestStaticLinks(t *testing.T) {
	v := &ir.VarDecl{Name: "v", Typ: ir.IntType{}}
	use := name(v, ir.IntType{})
	h := &ir.FunDecl{Name: "h", Typ: ir.IntType{}, Body: use}
	g := &ir.FunDecl{Name: "g", Typ: ir.IntType{}, Body: &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{h},
		Expr:  &ir.CallExpr{Attr: ir.Attr{Typ: ir.IntType{}}, Fun: h},
	}}
	callG := &ir.CallExpr{Attr: ir.Attr{Typ: ir.IntType{}}, Fun: g}
	f := &ir.FunDecl{Name: "f", Typ: ir.IntType{}, Body: &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{v, g},
		Expr:  callG,
	}}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{f},
		Expr:  &ir.CallExpr{Attr: ir.Attr{Typ: ir.IntType{}}, Fun: f},
	}
	layout, code := helperGenerate(t, prog)

	fp := Temp(code.FP)
	exp := &Mem{Addr: &BinOp{Op: ADD, Fst: &Mem{Addr: &Mem{Addr: fp}}, Snd: &Const{Value: -8}}}
	if code.Exprs[use].String() != exp.String() {
		t.Fatalf("expected %s, got %s", exp, code.Exprs[use])
	}

	// g is called from depth 1 with f's frame as static link; f is called with a null link.
	c, ok := code.Exprs[callG].(*Call)
	if !ok || c.Args[0].String() != fp.String() {
		t.Fatalf("unexpected call of g: %s", code.Exprs[callG])
	}
	if c.Label == "_g" || c.Label != layout.Labels[g] {
		t.Fatalf("nested function labelled %s", c.Label)
	}
	main, ok := code.Main.(*Call)
	if !ok || main.Args[0].String() != "CONST(0)" || main.Label != "_f" {
		t.Fatalf("unexpected top-level call: %s", code.Main)
	}
	if len(code.Funs) != 3 || len(code.RVs) != 4 {
		t.Fatalf("expected 3 functions with 4 return values, got %d and %d", len(code.Funs), len(code.RVs))
	}
}

// TestIfShapes verifies the jumps of conditionals with and without an else branch, and of loops.
func TestIfShapes(t *testing.T) {
	x := &ir.VarDecl{Name: "x", Typ: ir.IntType{}}
	cond := &ir.BinExpr{Attr: ir.Attr{Typ: ir.BoolType{}}, Op: ir.BinLth, Fst: name(x, ir.IntType{}), Snd: intAtom("1")}
	set := func(v string) ir.Stmt { return &ir.AssignStmt{Dst: name(x, ir.IntType{}), Src: intAtom(v)} }
	noElse := &ir.IfStmt{Cond: cond, Then: []ir.Stmt{set("2")}}
	withElse := &ir.IfStmt{Cond: cond, Then: []ir.Stmt{set("2")}, Else: []ir.Stmt{set("3")}}
	loop := &ir.WhileStmt{Cond: cond, Body: []ir.Stmt{set("4")}}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{x},
		Stmts: []ir.Stmt{noElse, withElse, loop},
		Expr:  name(x, ir.IntType{}),
	}
	_, code := helperGenerate(t, prog)

	tests := []struct {
		stmt  ir.Stmt
		shape []string
	}{
		{stmt: noElse, shape: []string{"CJUMP", "LABEL", "MOVE", "LABEL"}},
		{stmt: withElse, shape: []string{"CJUMP", "LABEL", "MOVE", "JUMP", "LABEL", "MOVE", "LABEL"}},
		{stmt: loop, shape: []string{"LABEL", "CJUMP", "LABEL", "MOVE", "JUMP", "LABEL"}},
	}
	for i1, e1 := range tests {
		seq, ok := code.Stmts[e1.stmt].(*Seq)
		if !ok {
			t.Fatalf("%d: expected a sequence, got %s", i1, code.Stmts[e1.stmt])
		}
		var shape []string
		for _, e2 := range seq.Stmts {
			shape = append(shape, strings.SplitN(e2.String(), "(", 2)[0])
		}
		if strings.Join(shape, " ") != strings.Join(e1.shape, " ") {
			t.Fatalf("%d: expected %v, got %v", i1, e1.shape, shape)
		}
	}

	// Without an else branch the false label ends the statement.
	seq := code.Stmts[noElse].(*Seq)
	cj := seq.Stmts[0].(*CJump)
	if seq.Stmts[1].(*LabelStmt).Label != cj.Pos || seq.Stmts[3].(*LabelStmt).Label != cj.Neg {
		t.Fatalf("unexpected labels in %s", seq)
	}
}

// TestAggregateAssign verifies that records are copied word by word.
func TestAggregateAssign(t *testing.T) {
	rec := &ir.RecType{Comps: []*ir.CompDecl{{Name: "a", Typ: ir.IntType{}}, {Name: "b", Typ: ir.IntType{}}, {Name: "c", Typ: ir.IntType{}}}}
	p := &ir.VarDecl{Name: "p", Typ: rec}
	q := &ir.VarDecl{Name: "q", Typ: rec}
	assign := &ir.AssignStmt{Dst: name(p, rec), Src: name(q, rec)}
	prog := &ir.BlockExpr{
		Attr:  ir.Attr{Typ: ir.IntType{}},
		Decls: []ir.Decl{p, q},
		Stmts: []ir.Stmt{assign},
		Expr:  intAtom("0"),
	}
	_, code := helperGenerate(t, prog)
	seq, ok := code.Stmts[assign].(*Seq)
	if !ok || len(seq.Stmts) != 5 {
		t.Fatalf("expected two address moves and three word copies, got %s", code.Stmts[assign])
	}
	last := seq.Stmts[4].(*Move)
	if !strings.Contains(last.Dst.String(), "CONST(16)") || !strings.Contains(last.Src.String(), "CONST(16)") {
		t.Fatalf("unexpected last copy %s", last)
	}
}

// TestLiterals verifies literal values.
func TestLiterals(t *testing.T) {
	tests := []struct {
		atom *ir.AtomExpr
		exp  int64
	}{
		{atom: intAtom("-42"), exp: -42},
		{atom: &ir.AtomExpr{Kind: ir.AtomChar, Value: "'A'"}, exp: 65},
		{atom: &ir.AtomExpr{Kind: ir.AtomChar, Value: "10"}, exp: 10},
		{atom: &ir.AtomExpr{Kind: ir.AtomBool, Value: "true"}, exp: 1},
		{atom: &ir.AtomExpr{Kind: ir.AtomBool, Value: "false"}, exp: 0},
		{atom: &ir.AtomExpr{Kind: ir.AtomPtr, Value: "nil"}, exp: 0},
	}
	for _, e1 := range tests {
		v, err := atom(e1.atom)
		if err != nil {
			t.Fatalf("%q: %s", e1.atom.Value, err)
		}
		if v != e1.exp {
			t.Fatalf("%q: expected %d, got %d", e1.atom.Value, e1.exp, v)
		}
	}
	if _, err := atom(intAtom("12x")); err == nil {
		t.Fatalf("expected an error for a malformed literal")
	}
}
