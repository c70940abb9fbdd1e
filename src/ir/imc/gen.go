package imc

import (
	"strconv"

	"prevc/src/ir"
	"prevc/src/ir/frames"
	"prevc/src/util"
)

// Code is the intermediate code of a whole program.
type Code struct {
	Exprs  map[ir.Expr]Expr             // Value of every expression that was lowered.
	Stmts  map[ir.Stmt]Stmt             // Every statement that was lowered.
	Bodies map[*ir.FunDecl]Expr         // Body of every function with a body.
	Funs   []*ir.FunDecl                // Functions in lowering order.
	Main   Expr                         // Top-level statements and result.
	FP     frames.Temp                  // The frame pointer. Never allocated to a register.
	RVs    map[frames.Label]frames.Temp // Return value temporary of every code fragment, by frame label.
}

// Runtime support routines called by lowered code.
const (
	MallocLabel frames.Label = "_malloc"
	FreeLabel   frames.Label = "_free"
)

type builder struct {
	layout *frames.Layout
	gen    *frames.Gen
	code   *Code
	depth  int          // Static depth of the function being lowered.
	frag   frames.Label // Function being lowered, for error context.
}

// Generate lowers prog into intermediate code using the frame layout.
func Generate(prog *ir.BlockExpr, layout *frames.Layout, gen *frames.Gen) (*Code, error) {
	b := builder{
		layout: layout,
		gen:    gen,
		code: &Code{
			Exprs:  make(map[ir.Expr]Expr),
			Stmts:  make(map[ir.Stmt]Stmt),
			Bodies: make(map[*ir.FunDecl]Expr),
			FP:     gen.NewTemp(),
			RVs:    make(map[frames.Label]frames.Temp),
		},
		depth: 1,
		frag:  frames.MainLabel,
	}
	main, err := b.block(prog)
	if err != nil {
		return nil, err
	}
	b.code.Main = main
	b.code.RVs[frames.MainLabel] = gen.NewTemp()
	return b.code, nil
}

// function lowers the body of f.
func (b *builder) function(f *ir.FunDecl) error {
	fr, err := b.layout.Frame(f)
	if err != nil {
		return err
	}
	depth, frag := b.depth, b.frag
	b.depth, b.frag = fr.Depth, fr.Label
	defer func() { b.depth, b.frag = depth, frag }()

	body, err := b.value(f.Body)
	if err != nil {
		return err
	}
	b.code.Bodies[f] = body
	b.code.Funs = append(b.code.Funs, f)
	b.code.RVs[fr.Label] = b.gen.NewTemp()
	return nil
}

// frame returns the frame pointer of the function at static depth d, seen from the current depth: the static link
// is followed once per level.
func (b *builder) frame(d int) (Expr, error) {
	if d > b.depth {
		return nil, util.Internalf(string(b.frag), "access at depth %d from shallower depth %d", d, b.depth)
	}
	var fp Expr = Temp(b.code.FP)
	for i1 := 0; i1 < b.depth-d; i1++ {
		fp = &Mem{Addr: fp}
	}
	return fp, nil
}

// value lowers e as an rvalue. Aggregates yield their address.
func (b *builder) value(e ir.Expr) (Expr, error) {
	res, err := b.valueOf(e)
	if err != nil {
		return nil, err
	}
	b.code.Exprs[e] = res
	return res, nil
}

func (b *builder) valueOf(e ir.Expr) (Expr, error) {
	switch e := e.(type) {
	case *ir.AtomExpr:
		v, err := atom(e)
		if err != nil {
			return nil, err
		}
		return &Const{Value: v}, nil
	case *ir.NameExpr, *ir.ArrExpr, *ir.RecExpr:
		addr, err := b.addr(e)
		if err != nil {
			return nil, err
		}
		if ir.IsAggregate(e.Attrs().Typ) {
			return addr, nil
		}
		return &Mem{Addr: addr}, nil
	case *ir.CallExpr:
		return b.call(e)
	case *ir.UnExpr:
		switch e.Op {
		case ir.UnAddr:
			return b.addr(e.Sub)
		case ir.UnDeref:
			p, err := b.value(e.Sub)
			if err != nil {
				return nil, err
			}
			if ir.IsAggregate(e.Typ) {
				return p, nil
			}
			return &Mem{Addr: p}, nil
		}
		sub, err := b.value(e.Sub)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case ir.UnAdd:
			return sub, nil
		case ir.UnSub:
			return &UnOp{Op: NEG, Sub: sub}, nil
		case ir.UnNot:
			return &UnOp{Op: NOT, Sub: sub}, nil
		}
		return nil, util.Internalf(string(b.frag), "unexpected unary operator %s", e.Op)
	case *ir.BinExpr:
		op, ok := binOps[e.Op]
		if !ok {
			return nil, util.Internalf(string(b.frag), "unexpected binary operator %s", e.Op)
		}
		fst, err := b.value(e.Fst)
		if err != nil {
			return nil, err
		}
		snd, err := b.value(e.Snd)
		if err != nil {
			return nil, err
		}
		return &BinOp{Op: op, Fst: fst, Snd: snd}, nil
	case *ir.CastExpr:
		return b.value(e.Expr)
	case *ir.NewExpr:
		return &Call{Label: MallocLabel, Args: []Expr{&Const{}, &Const{Value: e.Alloc.Size()}}}, nil
	case *ir.DelExpr:
		p, err := b.value(e.Expr)
		if err != nil {
			return nil, err
		}
		return &Call{Label: FreeLabel, Args: []Expr{&Const{}, p}}, nil
	case *ir.BlockExpr:
		return b.block(e)
	default:
		return nil, util.Internalf(string(b.frag), "unexpected expression %T", e)
	}
}

// addr lowers e as an lvalue and returns the address of its storage.
func (b *builder) addr(e ir.Expr) (Expr, error) {
	switch e := e.(type) {
	case *ir.NameExpr:
		acc, err := b.layout.Access(e.Decl)
		if err != nil {
			return nil, err
		}
		switch acc := acc.(type) {
		case *frames.AbsAccess:
			return &Name{Label: acc.Label}, nil
		case *frames.RelAccess:
			fp, err := b.frame(acc.Depth)
			if err != nil {
				return nil, err
			}
			return &BinOp{Op: ADD, Fst: fp, Snd: &Const{Value: acc.Offset}}, nil
		}
		return nil, util.Internalf(string(b.frag), "unexpected access %T", acc)
	case *ir.ArrExpr:
		base, err := b.addr(e.Array)
		if err != nil {
			return nil, err
		}
		idx, err := b.value(e.Index)
		if err != nil {
			return nil, err
		}
		off := &BinOp{Op: MUL, Fst: idx, Snd: &Const{Value: e.Typ.Size()}}
		return &BinOp{Op: ADD, Fst: base, Snd: off}, nil
	case *ir.RecExpr:
		base, err := b.addr(e.Record)
		if err != nil {
			return nil, err
		}
		acc, err := b.layout.Access(e.Comp)
		if err != nil {
			return nil, err
		}
		rel, ok := acc.(*frames.RelAccess)
		if !ok {
			return nil, util.Internalf(string(b.frag), "record component %s has access %T", e.Comp.Name, acc)
		}
		return &BinOp{Op: ADD, Fst: base, Snd: &Const{Value: rel.Offset}}, nil
	case *ir.UnExpr:
		if e.Op == ir.UnDeref {
			return b.value(e.Sub)
		}
	case *ir.CastExpr:
		return b.addr(e.Expr)
	case *ir.BlockExpr, *ir.CallExpr:
		// Aggregate results are addresses already.
		if ir.IsAggregate(e.Attrs().Typ) {
			return b.value(e)
		}
	}
	return nil, util.Internalf(string(b.frag), "expression %T is not addressable", e)
}

// call lowers a function call. The static link is resolved for callees nested in this compilation unit; callees at
// depth 1 and external callees get a null link.
func (b *builder) call(e *ir.CallExpr) (Expr, error) {
	label, err := b.layout.Label(e.Fun)
	if err != nil {
		return nil, err
	}
	var sl Expr = &Const{}
	if e.Fun.Defined() {
		fr, err := b.layout.Frame(e.Fun)
		if err != nil {
			return nil, err
		}
		if fr.Depth > 1 {
			// The callee's static link is the frame one level above it.
			if sl, err = b.frame(fr.Depth - 1); err != nil {
				return nil, err
			}
		}
	}
	args := make([]Expr, 1, len(e.Args)+1)
	args[0] = sl
	for _, e1 := range e.Args {
		a, err := b.value(e1)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return &Call{Label: label, Args: args}, nil
}

// block lowers a block expression, including the bodies of functions it declares.
func (b *builder) block(e *ir.BlockExpr) (Expr, error) {
	for _, e1 := range e.Decls {
		if f, ok := e1.(*ir.FunDecl); ok && f.Defined() {
			if err := b.function(f); err != nil {
				return nil, err
			}
		}
	}
	stmts, err := b.stmts(e.Stmts)
	if err != nil {
		return nil, err
	}
	v, err := b.value(e.Expr)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return v, nil
	}
	return &SExpr{Stmt: &Seq{Stmts: stmts}, Expr: v}, nil
}

func (b *builder) stmts(ss []ir.Stmt) ([]Stmt, error) {
	res := make([]Stmt, 0, len(ss))
	for _, e1 := range ss {
		s, err := b.stmt(e1)
		if err != nil {
			return nil, err
		}
		b.code.Stmts[e1] = s
		res = append(res, s)
	}
	return res, nil
}

func (b *builder) stmt(s ir.Stmt) (Stmt, error) {
	switch s := s.(type) {
	case *ir.AssignStmt:
		return b.assign(s)
	case *ir.ExprStmt:
		v, err := b.value(s.Expr)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: v}, nil
	case *ir.IfStmt:
		cond, err := b.value(s.Cond)
		if err != nil {
			return nil, err
		}
		then, err := b.stmts(s.Then)
		if err != nil {
			return nil, err
		}
		els, err := b.stmts(s.Else)
		if err != nil {
			return nil, err
		}
		pos, neg := b.gen.NewLabel(), b.gen.NewLabel()
		res := []Stmt{&CJump{Cond: cond, Pos: pos, Neg: neg}, Lbl(pos)}
		res = append(res, then...)
		if len(els) == 0 {
			// The false label doubles as the end label.
			res = append(res, Lbl(neg))
			return &Seq{Stmts: res}, nil
		}
		end := b.gen.NewLabel()
		res = append(res, &Jump{Label: end}, Lbl(neg))
		res = append(res, els...)
		res = append(res, Lbl(end))
		return &Seq{Stmts: res}, nil
	case *ir.WhileStmt:
		cond, err := b.value(s.Cond)
		if err != nil {
			return nil, err
		}
		body, err := b.stmts(s.Body)
		if err != nil {
			return nil, err
		}
		start, pos, neg := b.gen.NewLabel(), b.gen.NewLabel(), b.gen.NewLabel()
		res := []Stmt{Lbl(start), &CJump{Cond: cond, Pos: pos, Neg: neg}, Lbl(pos)}
		res = append(res, body...)
		res = append(res, &Jump{Label: start}, Lbl(neg))
		return &Seq{Stmts: res}, nil
	default:
		return nil, util.Internalf(string(b.frag), "unexpected statement %T", s)
	}
}

// assign lowers an assignment. Values wider than a word are copied word by word.
func (b *builder) assign(s *ir.AssignStmt) (Stmt, error) {
	dst, err := b.addr(s.Dst)
	if err != nil {
		return nil, err
	}
	b.code.Exprs[s.Dst] = &Mem{Addr: dst}
	size := s.Dst.Attrs().Typ.Size()
	if !ir.IsAggregate(s.Dst.Attrs().Typ) || size <= ir.WordSize {
		src, err := b.value(s.Src)
		if err != nil {
			return nil, err
		}
		if ir.IsAggregate(s.Src.Attrs().Typ) {
			src = &Mem{Addr: src}
		}
		return Mov(&Mem{Addr: dst}, src), nil
	}

	src, err := b.value(s.Src) // Address of the source aggregate.
	if err != nil {
		return nil, err
	}
	td, ts := b.gen.NewTemp(), b.gen.NewTemp()
	res := []Stmt{Mov(Temp(td), dst), Mov(Temp(ts), src)}
	for off := int64(0); off < size; off += ir.WordSize {
		res = append(res, Mov(
			&Mem{Addr: &BinOp{Op: ADD, Fst: Temp(td), Snd: &Const{Value: off}}},
			&Mem{Addr: &BinOp{Op: ADD, Fst: Temp(ts), Snd: &Const{Value: off}}},
		))
	}
	return &Seq{Stmts: res}, nil
}

// binOps maps source operators to intermediate code operators.
var binOps = map[ir.BinOp]Op{
	ir.BinIor: IOR,
	ir.BinXor: XOR,
	ir.BinAnd: AND,
	ir.BinEqu: EQU,
	ir.BinNeq: NEQ,
	ir.BinLth: LTH,
	ir.BinGth: GTH,
	ir.BinLeq: LEQ,
	ir.BinGeq: GEQ,
	ir.BinAdd: ADD,
	ir.BinSub: SUB,
	ir.BinMul: MUL,
	ir.BinDiv: DIV,
	ir.BinMod: MOD,
}

// atom returns the value of a literal.
func atom(e *ir.AtomExpr) (int64, error) {
	switch e.Kind {
	case ir.AtomInt:
		v, err := strconv.ParseInt(e.Value, 10, 64)
		if err != nil {
			return 0, util.FrontEndWrap(err, "invalid integer literal "+e.Value)
		}
		return v, nil
	case ir.AtomChar:
		s := e.Value
		if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
			s = s[1 : len(s)-1]
		}
		if len(s) == 1 {
			return int64(s[0]), nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, util.FrontEndWrap(err, "invalid character literal "+e.Value)
		}
		return v, nil
	case ir.AtomBool:
		if e.Value == "true" {
			return 1, nil
		}
		return 0, nil
	case ir.AtomPtr, ir.AtomVoid:
		return 0, nil
	}
	return 0, util.FrontEndf("unexpected literal kind %d", e.Kind)
}
