// Package frontend decodes the annotated syntax tree produced by the PREV front end. The tree arrives as JSON in
// which every declaration carries a numeric id and every name refers to its declaration by that id.
package frontend

import (
	"github.com/segmentio/encoding/json"

	"prevc/src/ir"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// jsonProgram is the top-level object: named types and the top-level block.
type jsonProgram struct {
	Types map[string]*jsonType `json:"types"`
	Decls []*jsonNode          `json:"decls"`
	Stmts []*jsonNode          `json:"stmts"`
	Expr  *jsonNode            `json:"expr"`
}

// jsonType is any type.
type jsonType struct {
	Kind  string      `json:"kind"`
	Base  *jsonType   `json:"base"`
	Len   int64       `json:"len"`
	Elem  *jsonType   `json:"elem"`
	Comps []*jsonNode `json:"comps"`
	Name  string      `json:"name"`
}

// jsonNode is a declaration, an expression or a statement; Kind tells them apart in context. Body is a function
// body expression in declarations and a statement list in loops.
type jsonNode struct {
	ID     int             `json:"id"`
	Kind   string          `json:"kind"`
	Name   string          `json:"name"`
	Type   *jsonType       `json:"type"`
	LValue bool            `json:"lvalue"`
	Pars   []*jsonNode     `json:"pars"`
	Body   json.RawMessage `json:"body"`

	Atom   string      `json:"atom"`
	Value  string      `json:"value"`
	Decl   *int        `json:"decl"`
	Args   []*jsonNode `json:"args"`
	Array  *jsonNode   `json:"array"`
	Index  *jsonNode   `json:"index"`
	Record *jsonNode   `json:"record"`
	Comp   *int        `json:"comp"`
	Op     string      `json:"op"`
	Sub    *jsonNode   `json:"sub"`
	Fst    *jsonNode   `json:"fst"`
	Snd    *jsonNode   `json:"snd"`
	Expr   *jsonNode   `json:"expr"`
	Alloc  *jsonType   `json:"alloc"`
	Decls  []*jsonNode `json:"decls"`
	Stmts  []*jsonNode `json:"stmts"`

	Dst  *jsonNode   `json:"dst"`
	Src  *jsonNode   `json:"src"`
	Cond *jsonNode   `json:"cond"`
	Then []*jsonNode `json:"then"`
	Else []*jsonNode `json:"else"`
}

// decoder binds ids to declarations while the tree is rebuilt.
type decoder struct {
	decls map[int]ir.Decl
	comps map[int]*ir.CompDecl
	recs  map[int]*ir.RecType // Record types by the id of their first component.
	named map[string]*ir.NameType
}

// ---------------------
// ----- Constants -----
// ---------------------

var atomKinds = map[string]ir.AtomKind{
	"int":  ir.AtomInt,
	"char": ir.AtomChar,
	"bool": ir.AtomBool,
	"ptr":  ir.AtomPtr,
	"void": ir.AtomVoid,
}

// ---------------------
// ----- Functions -----
// ---------------------

// Decode rebuilds the annotated syntax tree from its JSON encoding. The program is returned as its top-level block
// expression. Malformed input and references to unknown declarations are front-end errors.
func Decode(src []byte) (*ir.BlockExpr, error) {
	var p jsonProgram
	if err := json.Unmarshal(src, &p); err != nil {
		return nil, util.FrontEndWrap(err, "could not decode syntax tree")
	}
	d := decoder{
		decls: make(map[int]ir.Decl),
		comps: make(map[int]*ir.CompDecl),
		recs:  make(map[int]*ir.RecType),
		named: make(map[string]*ir.NameType, len(p.Types)),
	}

	// Named types may refer to each other, so all of them exist before any is resolved.
	for k := range p.Types {
		d.named[k] = &ir.NameType{Name: k}
	}
	for k, v := range p.Types {
		t, err := d.typ(v)
		if err != nil {
			return nil, err
		}
		if t == d.named[k] {
			return nil, util.FrontEndf("type %s is defined as itself", k)
		}
		d.named[k].Actual = t
	}

	return d.block(&jsonNode{Kind: "block", Decls: p.Decls, Stmts: p.Stmts, Expr: p.Expr})
}

// typ decodes a type.
func (d *decoder) typ(t *jsonType) (ir.Type, error) {
	if t == nil {
		return nil, util.FrontEndf("missing type")
	}
	switch t.Kind {
	case "int":
		return ir.IntType{}, nil
	case "char":
		return ir.CharType{}, nil
	case "bool":
		return ir.BoolType{}, nil
	case "void":
		return ir.VoidType{}, nil
	case "ptr":
		base, err := d.typ(t.Base)
		if err != nil {
			return nil, err
		}
		return &ir.PtrType{Base: base}, nil
	case "arr":
		elem, err := d.typ(t.Elem)
		if err != nil {
			return nil, err
		}
		return &ir.ArrType{Elem: elem, Len: t.Len}, nil
	case "rec":
		return d.rec(t)
	case "name":
		n, ok := d.named[t.Name]
		if !ok {
			return nil, util.FrontEndf("unknown type name %s", t.Name)
		}
		return n, nil
	}
	return nil, util.FrontEndf("unexpected type kind %q", t.Kind)
}

// rec decodes a record type. A record is identified by its components, so every occurrence of the same record
// yields the same type.
func (d *decoder) rec(t *jsonType) (ir.Type, error) {
	if len(t.Comps) > 0 {
		if r, ok := d.recs[t.Comps[0].ID]; ok {
			return r, nil
		}
	}
	r := &ir.RecType{Comps: make([]*ir.CompDecl, len(t.Comps))}
	if len(t.Comps) > 0 {
		d.recs[t.Comps[0].ID] = r
	}
	for i1, e1 := range t.Comps {
		if _, ok := d.comps[e1.ID]; ok {
			return nil, util.FrontEndf("component %s: duplicate id %d", e1.Name, e1.ID)
		}
		c := &ir.CompDecl{Name: e1.Name}
		d.comps[e1.ID] = c
		r.Comps[i1] = c
		typ, err := d.typ(e1.Type)
		if err != nil {
			return nil, err
		}
		c.Typ = typ
	}
	return r, nil
}

// declare creates the declarations of a block so that they can be referenced before they are complete.
func (d *decoder) declare(ns []*jsonNode) ([]ir.Decl, error) {
	res := make([]ir.Decl, len(ns))
	for i1, e1 := range ns {
		if e1 == nil {
			return nil, util.FrontEndf("<nil> declaration")
		}
		if _, ok := d.decls[e1.ID]; ok {
			return nil, util.FrontEndf("declaration %s: duplicate id %d", e1.Name, e1.ID)
		}
		var decl ir.Decl
		switch e1.Kind {
		case "var":
			decl = &ir.VarDecl{Name: e1.Name}
		case "fun":
			f := &ir.FunDecl{Name: e1.Name, Pars: make([]*ir.ParDecl, len(e1.Pars))}
			for i2, e2 := range e1.Pars {
				if _, ok := d.decls[e2.ID]; ok {
					return nil, util.FrontEndf("parameter %s of %s: duplicate id %d", e2.Name, e1.Name, e2.ID)
				}
				f.Pars[i2] = &ir.ParDecl{Name: e2.Name}
				d.decls[e2.ID] = f.Pars[i2]
			}
			decl = f
		case "type":
			decl = &ir.TypeDecl{Name: e1.Name}
		default:
			return nil, util.FrontEndf("declaration %s: unexpected kind %q", e1.Name, e1.Kind)
		}
		d.decls[e1.ID] = decl
		res[i1] = decl
	}
	return res, nil
}

// define completes the declarations created by declare.
func (d *decoder) define(ns []*jsonNode, decls []ir.Decl) error {
	for i1, e1 := range ns {
		typ, err := d.typ(e1.Type)
		if err != nil {
			return util.FrontEndWrap(err, "declaration "+e1.Name)
		}
		switch decl := decls[i1].(type) {
		case *ir.VarDecl:
			decl.Typ = typ
		case *ir.TypeDecl:
			decl.Typ = typ
		case *ir.FunDecl:
			decl.Typ = typ
			for i2, e2 := range e1.Pars {
				pt, err := d.typ(e2.Type)
				if err != nil {
					return util.FrontEndWrap(err, "parameter "+e2.Name)
				}
				decl.Pars[i2].Typ = pt
			}
			if len(e1.Body) == 0 || string(e1.Body) == "null" {
				continue
			}
			var body jsonNode
			if err := json.Unmarshal(e1.Body, &body); err != nil {
				return util.FrontEndWrap(err, "body of "+e1.Name)
			}
			if decl.Body, err = d.expr(&body); err != nil {
				return err
			}
		}
	}
	return nil
}

// ref returns the declaration with the given id.
func (d *decoder) ref(id *int, kind string) (ir.Decl, error) {
	if id == nil {
		return nil, util.FrontEndf("%s without a declaration", kind)
	}
	decl, ok := d.decls[*id]
	if !ok {
		return nil, util.FrontEndf("%s refers to unknown declaration %d", kind, *id)
	}
	return decl, nil
}

// block decodes a block expression: its declarations first, so that the statements may refer to them.
func (d *decoder) block(n *jsonNode) (*ir.BlockExpr, error) {
	decls, err := d.declare(n.Decls)
	if err != nil {
		return nil, err
	}
	if err := d.define(n.Decls, decls); err != nil {
		return nil, err
	}
	stmts, err := d.stmts(n.Stmts)
	if err != nil {
		return nil, err
	}
	expr, err := d.expr(n.Expr)
	if err != nil {
		return nil, err
	}
	b := &ir.BlockExpr{Decls: decls, Stmts: stmts, Expr: expr}
	b.Typ = expr.Attrs().Typ
	if n.Type != nil {
		if b.Typ, err = d.typ(n.Type); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (d *decoder) exprs(ns []*jsonNode) ([]ir.Expr, error) {
	res := make([]ir.Expr, len(ns))
	for i1, e1 := range ns {
		e, err := d.expr(e1)
		if err != nil {
			return nil, err
		}
		res[i1] = e
	}
	return res, nil
}

// expr decodes an expression and its attributes.
func (d *decoder) expr(n *jsonNode) (ir.Expr, error) {
	if n == nil {
		return nil, util.FrontEndf("missing expression")
	}
	if n.Kind == "block" {
		return d.block(n)
	}
	res, err := d.exprOf(n)
	if err != nil {
		return nil, err
	}
	typ, err := d.typ(n.Type)
	if err != nil {
		return nil, util.FrontEndWrap(err, n.Kind+" expression")
	}
	a := res.Attrs()
	a.Typ = typ
	a.LValue = n.LValue
	return res, nil
}

func (d *decoder) exprOf(n *jsonNode) (ir.Expr, error) {
	switch n.Kind {
	case "atom":
		k, ok := atomKinds[n.Atom]
		if !ok {
			return nil, util.FrontEndf("unexpected atom kind %q", n.Atom)
		}
		return &ir.AtomExpr{Kind: k, Value: n.Value}, nil
	case "var":
		decl, err := d.ref(n.Decl, "name")
		if err != nil {
			return nil, err
		}
		switch decl.(type) {
		case *ir.VarDecl, *ir.ParDecl:
			return &ir.NameExpr{Decl: decl}, nil
		}
		return nil, util.FrontEndf("name %s does not denote a variable or parameter", decl.DeclName())
	case "call":
		decl, err := d.ref(n.Decl, "call")
		if err != nil {
			return nil, err
		}
		f, ok := decl.(*ir.FunDecl)
		if !ok {
			return nil, util.FrontEndf("call to %s, which is not a function", decl.DeclName())
		}
		args, err := d.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &ir.CallExpr{Fun: f, Args: args}, nil
	case "arr":
		es, err := d.exprs([]*jsonNode{n.Array, n.Index})
		if err != nil {
			return nil, err
		}
		return &ir.ArrExpr{Array: es[0], Index: es[1]}, nil
	case "rec":
		rec, err := d.expr(n.Record)
		if err != nil {
			return nil, err
		}
		if n.Comp == nil {
			return nil, util.FrontEndf("component access without a component")
		}
		c, ok := d.comps[*n.Comp]
		if !ok {
			return nil, util.FrontEndf("component access refers to unknown component %d", *n.Comp)
		}
		return &ir.RecExpr{Record: rec, Comp: c}, nil
	case "un":
		op, ok := ir.UnOps[n.Op]
		if !ok {
			return nil, util.FrontEndf("unexpected unary operator %q", n.Op)
		}
		sub, err := d.expr(n.Sub)
		if err != nil {
			return nil, err
		}
		return &ir.UnExpr{Op: op, Sub: sub}, nil
	case "bin":
		op, ok := ir.BinOps[n.Op]
		if !ok {
			return nil, util.FrontEndf("unexpected binary operator %q", n.Op)
		}
		es, err := d.exprs([]*jsonNode{n.Fst, n.Snd})
		if err != nil {
			return nil, err
		}
		return &ir.BinExpr{Op: op, Fst: es[0], Snd: es[1]}, nil
	case "cast":
		e, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &ir.CastExpr{Expr: e}, nil
	case "new":
		t, err := d.typ(n.Alloc)
		if err != nil {
			return nil, util.FrontEndWrap(err, "new expression")
		}
		return &ir.NewExpr{Alloc: t}, nil
	case "del":
		e, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &ir.DelExpr{Expr: e}, nil
	}
	return nil, util.FrontEndf("unexpected expression kind %q", n.Kind)
}

func (d *decoder) stmts(ns []*jsonNode) ([]ir.Stmt, error) {
	res := make([]ir.Stmt, len(ns))
	for i1, e1 := range ns {
		s, err := d.stmt(e1)
		if err != nil {
			return nil, err
		}
		res[i1] = s
	}
	return res, nil
}

// stmt decodes a statement.
func (d *decoder) stmt(n *jsonNode) (ir.Stmt, error) {
	if n == nil {
		return nil, util.FrontEndf("<nil> statement")
	}
	switch n.Kind {
	case "assign":
		es, err := d.exprs([]*jsonNode{n.Dst, n.Src})
		if err != nil {
			return nil, err
		}
		return &ir.AssignStmt{Dst: es[0], Src: es[1]}, nil
	case "expr":
		e, err := d.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &ir.ExprStmt{Expr: e}, nil
	case "if":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.stmts(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.stmts(n.Else)
		if err != nil {
			return nil, err
		}
		return &ir.IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := d.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		var ns []*jsonNode
		if len(n.Body) > 0 {
			if err := json.Unmarshal(n.Body, &ns); err != nil {
				return nil, util.FrontEndWrap(err, "loop body")
			}
		}
		body, err := d.stmts(ns)
		if err != nil {
			return nil, err
		}
		return &ir.WhileStmt{Cond: cond, Body: body}, nil
	}
	return nil, util.FrontEndf("unexpected statement kind %q", n.Kind)
}
