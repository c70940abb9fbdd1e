package frames

import (
	"prevc/src/ir"
	"prevc/src/util"
)

// scope accumulates the layout of the function currently being evaluated.
type scope struct {
	frame     *Frame
	parOffset int64 // Next parameter offset, growing upwards from the static link.
	locOffset int64 // Last local offset, growing downwards from FP.
}

type evaluator struct {
	gen     *Gen
	layout  *Layout
	scopes  util.Stack[*scope]
	records map[*ir.RecType]bool
}

// Evaluate lays out prog. Module-level variables receive absolute accesses; everything else is laid out relative
// to the frame of its function. Top-level functions and the top-level statements have depth 1, and a function
// declared in a function body is one level deeper than that function.
func Evaluate(prog *ir.BlockExpr, gen *Gen) (*Layout, error) {
	ev := evaluator{
		gen: gen,
		layout: &Layout{
			Accesses: make(map[ir.Decl]Access),
			Frames:   make(map[*ir.FunDecl]*Frame),
			Labels:   make(map[*ir.FunDecl]Label),
			Main:     &Frame{Label: MainLabel, Depth: 1},
		},
		records: make(map[*ir.RecType]bool),
	}

	// Labels first, so that calls may precede the callee's declaration.
	for _, e1 := range prog.Decls {
		if f, ok := e1.(*ir.FunDecl); ok {
			ev.layout.Labels[f] = NamedLabel(f.Name)
		}
	}
	for _, e1 := range prog.Decls {
		if err := ev.global(e1); err != nil {
			return nil, err
		}
	}

	ev.scopes.Push(&scope{frame: ev.layout.Main, parOffset: ir.WordSize})
	if err := ev.stmts(prog.Stmts); err != nil {
		return nil, err
	}
	if err := ev.expr(prog.Expr); err != nil {
		return nil, err
	}
	ev.scopes.Pop()
	return ev.layout, nil
}

// global lays out a module-level declaration.
func (ev *evaluator) global(d ir.Decl) error {
	switch d := d.(type) {
	case *ir.VarDecl:
		ev.layout.Accesses[d] = &AbsAccess{Sz: d.Typ.Size(), Label: NamedLabel(d.Name)}
		ev.layout.Order = append(ev.layout.Order, d)
		ev.typ(d.Typ)
		return nil
	case *ir.FunDecl:
		return ev.function(d, 1)
	case *ir.TypeDecl:
		ev.typ(d.Typ)
		return nil
	default:
		return util.Internalf("", "unexpected global declaration %T", d)
	}
}

// local lays out a declaration inside a function body.
func (ev *evaluator) local(d ir.Decl) error {
	sc, ok := ev.scopes.Peek()
	if !ok {
		return util.Internalf("", "local declaration %s outside of any function", d.DeclName())
	}
	switch d := d.(type) {
	case *ir.VarDecl:
		size := d.Typ.Size()
		sc.locOffset -= size
		sc.frame.LocsSize += size
		ev.layout.Accesses[d] = &RelAccess{Sz: size, Offset: sc.locOffset, Depth: sc.frame.Depth}
		ev.layout.Order = append(ev.layout.Order, d)
		ev.typ(d.Typ)
		return nil
	case *ir.FunDecl:
		if !d.Defined() {
			ev.layout.Labels[d] = NamedLabel(d.Name)
			return nil
		}
		if _, ok := ev.layout.Labels[d]; !ok {
			ev.layout.Labels[d] = ev.gen.NewLabel()
		}
		return ev.function(d, sc.frame.Depth+1)
	case *ir.TypeDecl:
		ev.typ(d.Typ)
		return nil
	default:
		return util.Internalf(string(sc.frame.Label), "unexpected local declaration %T", d)
	}
}

// function lays out the parameters and body of f at the given depth.
func (ev *evaluator) function(f *ir.FunDecl, depth int) error {
	if _, ok := ev.layout.Labels[f]; !ok {
		ev.layout.Labels[f] = NamedLabel(f.Name)
	}
	for _, e1 := range f.Pars {
		ev.typ(e1.Typ)
	}
	ev.typ(f.Typ)
	if !f.Defined() {
		return nil
	}

	fr := &Frame{Label: ev.layout.Labels[f], Depth: depth}
	ev.layout.Frames[f] = fr
	ev.layout.Funs = append(ev.layout.Funs, f)
	sc := &scope{frame: fr, parOffset: ir.WordSize}
	for _, e1 := range f.Pars {
		size := e1.Typ.Size()
		ev.layout.Accesses[e1] = &RelAccess{Sz: size, Offset: sc.parOffset, Depth: depth}
		ev.layout.Order = append(ev.layout.Order, e1)
		sc.parOffset += size
	}

	ev.scopes.Push(sc)
	defer ev.scopes.Pop()
	return ev.expr(f.Body)
}

// call accounts for an outgoing call with the given argument sizes and return size in the current frame.
func (ev *evaluator) call(args []int64, ret int64) {
	sc, ok := ev.scopes.Peek()
	if !ok {
		return
	}
	size := ir.WordSize // Static link.
	for _, e1 := range args {
		size += e1
	}
	if ret > size {
		size = ret
	}
	if size > sc.frame.ArgsSize {
		sc.frame.ArgsSize = size
	}
}

// typ lays out the components of every record type reachable from t. Recursion through named types stops at
// records already laid out.
func (ev *evaluator) typ(t ir.Type) {
	switch t := t.(type) {
	case *ir.PtrType:
		ev.typ(t.Base)
	case *ir.ArrType:
		ev.typ(t.Elem)
	case *ir.RecType:
		if ev.records[t] {
			return
		}
		ev.records[t] = true
		var offset int64
		for _, e1 := range t.Comps {
			size := e1.Typ.Size()
			if _, ok := ev.layout.Accesses[e1]; !ok {
				ev.layout.Accesses[e1] = &RelAccess{Sz: size, Offset: offset, Depth: 0}
				ev.layout.Order = append(ev.layout.Order, e1)
			}
			offset += size
			ev.typ(e1.Typ)
		}
	case *ir.NameType:
		if t.Actual != nil {
			ev.typ(t.Actual)
		}
	}
}

func (ev *evaluator) exprs(es []ir.Expr) error {
	for _, e1 := range es {
		if err := ev.expr(e1); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluator) expr(e ir.Expr) error {
	if e == nil {
		return util.Internalf("", "<nil> expression")
	}
	ev.typ(e.Attrs().Typ)
	switch e := e.(type) {
	case *ir.AtomExpr, *ir.NameExpr:
		return nil
	case *ir.CallExpr:
		args := make([]int64, len(e.Fun.Pars))
		for i1, e1 := range e.Fun.Pars {
			args[i1] = e1.Typ.Size()
		}
		ev.call(args, e.Fun.Typ.Size())
		return ev.exprs(e.Args)
	case *ir.ArrExpr:
		return ev.exprs([]ir.Expr{e.Array, e.Index})
	case *ir.RecExpr:
		return ev.expr(e.Record)
	case *ir.UnExpr:
		return ev.expr(e.Sub)
	case *ir.BinExpr:
		return ev.exprs([]ir.Expr{e.Fst, e.Snd})
	case *ir.CastExpr:
		return ev.expr(e.Expr)
	case *ir.NewExpr:
		ev.typ(e.Alloc)
		ev.call([]int64{ir.WordSize}, ir.WordSize)
		return nil
	case *ir.DelExpr:
		ev.call([]int64{ir.WordSize}, ir.WordSize)
		return ev.expr(e.Expr)
	case *ir.BlockExpr:
		for _, e1 := range e.Decls {
			if f, ok := e1.(*ir.FunDecl); ok && f.Defined() {
				ev.layout.Labels[f] = ev.gen.NewLabel()
			}
		}
		for _, e1 := range e.Decls {
			if err := ev.local(e1); err != nil {
				return err
			}
		}
		if err := ev.stmts(e.Stmts); err != nil {
			return err
		}
		return ev.expr(e.Expr)
	default:
		return util.Internalf("", "unexpected expression %T", e)
	}
}

func (ev *evaluator) stmts(ss []ir.Stmt) error {
	for _, e1 := range ss {
		if err := ev.stmt(e1); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluator) stmt(s ir.Stmt) error {
	switch s := s.(type) {
	case *ir.AssignStmt:
		if err := ev.expr(s.Dst); err != nil {
			return err
		}
		return ev.expr(s.Src)
	case *ir.ExprStmt:
		return ev.expr(s.Expr)
	case *ir.IfStmt:
		if err := ev.expr(s.Cond); err != nil {
			return err
		}
		if err := ev.stmts(s.Then); err != nil {
			return err
		}
		return ev.stmts(s.Else)
	case *ir.WhileStmt:
		if err := ev.expr(s.Cond); err != nil {
			return err
		}
		return ev.stmts(s.Body)
	default:
		return util.Internalf("", "unexpected statement %T", s)
	}
}
