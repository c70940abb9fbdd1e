package ir

import (
	"prevc/src/util"
)

// Validate checks that prog honours the front-end contract: every name is bound, every expression is typed,
// every call matches its callee's arity, every array has a positive length and assignments target lvalues.
// Parameters and results are scalars or pointers, and no type contains itself except through a pointer.
// Violations are front-end errors.
func Validate(prog *BlockExpr) error {
	if prog == nil {
		return util.FrontEndf("program is <nil>")
	}
	v := validator{done: make(map[Type]bool), path: make(map[Type]bool)}
	return v.expr(prog)
}

// validator carries the types already checked and the types on the path being walked. Pointer bases are not
// walked in place; they are queued and walked on a fresh path, so a type found on the path contains itself by
// value.
type validator struct {
	done  map[Type]bool
	path  map[Type]bool
	bases []pending
}

// pending is a pointer base still to be checked.
type pending struct {
	typ   Type
	owner string
}

func (v *validator) decls(ds []Decl) error {
	for _, e1 := range ds {
		if err := v.decl(e1); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) decl(d Decl) error {
	switch d := d.(type) {
	case *VarDecl:
		return v.typ(d.Typ, d.Name)
	case *ParDecl:
		return v.scalar(d.Typ, d.Name)
	case *CompDecl:
		return v.typ(d.Typ, d.Name)
	case *TypeDecl:
		return v.typ(d.Typ, d.Name)
	case *FunDecl:
		for _, e1 := range d.Pars {
			if e1 == nil {
				return util.FrontEndf("function %s has a <nil> parameter", d.Name)
			}
			if err := v.scalar(e1.Typ, d.Name+"."+e1.Name); err != nil {
				return err
			}
		}
		if err := v.scalar(d.Typ, d.Name); err != nil {
			return err
		}
		if d.Body != nil {
			return v.expr(d.Body)
		}
		return nil
	case nil:
		return util.FrontEndf("<nil> declaration")
	default:
		return util.FrontEndf("unexpected declaration %T", d)
	}
}

// scalar checks t and rejects arrays and records, which cannot be passed or returned in one word.
func (v *validator) scalar(t Type, owner string) error {
	if err := v.typ(t, owner); err != nil {
		return err
	}
	if IsAggregate(t) {
		return util.FrontEndf("%s: parameters and results must be scalars or pointers, got %s", owner, t)
	}
	return nil
}

// typ checks t and every type reachable from it.
func (v *validator) typ(t Type, owner string) error {
	if err := v.walk(t, owner); err != nil {
		return err
	}
	for len(v.bases) > 0 {
		p := v.bases[len(v.bases)-1]
		v.bases = v.bases[:len(v.bases)-1]
		if err := v.walk(p.typ, p.owner); err != nil {
			return err
		}
	}
	return nil
}

// walk checks the types t contains by value.
func (v *validator) walk(t Type, owner string) error {
	if t == nil {
		return util.FrontEndf("%s has no type", owner)
	}
	if v.done[t] {
		return nil
	}
	if v.path[t] {
		return cyclic(t, owner)
	}
	v.path[t] = true
	defer delete(v.path, t)

	switch t := t.(type) {
	case IntType, CharType, BoolType, VoidType:
	case *PtrType:
		v.bases = append(v.bases, pending{typ: t.Base, owner: owner})
	case *ArrType:
		if t.Len <= 0 {
			return util.FrontEndf("%s: array length must be positive, got %d", owner, t.Len)
		}
		if err := v.walk(t.Elem, owner); err != nil {
			return err
		}
	case *RecType:
		for _, e1 := range t.Comps {
			if e1 == nil {
				return util.FrontEndf("%s: record has a <nil> component", owner)
			}
			if err := v.walk(e1.Typ, owner+"."+e1.Name); err != nil {
				return err
			}
		}
	case *NameType:
		if t.Actual == nil {
			return util.FrontEndf("%s: type name %s is unbound", owner, t.Name)
		}
		if err := v.walk(t.Actual, owner); err != nil {
			return err
		}
	default:
		return util.FrontEndf("%s: unexpected type %T", owner, t)
	}
	v.done[t] = true
	return nil
}

// cyclic reports t as containing itself. The type is named rather than printed, as printing would not end.
func cyclic(t Type, owner string) error {
	if n, ok := t.(*NameType); ok {
		return util.FrontEndf("%s: type %s is cyclic", owner, n.Name)
	}
	return util.FrontEndf("%s: type is cyclic", owner)
}

func (v *validator) expr(e Expr) error {
	if e == nil {
		return util.FrontEndf("<nil> expression")
	}
	if e.Attrs().Typ == nil {
		return util.FrontEndf("expression %T has no type", e)
	}
	if err := v.typ(e.Attrs().Typ, "expression"); err != nil {
		return err
	}
	switch e := e.(type) {
	case *AtomExpr:
		return nil
	case *NameExpr:
		switch e.Decl.(type) {
		case *VarDecl, *ParDecl:
			return nil
		case nil:
			return util.FrontEndf("unbound name")
		default:
			return util.FrontEndf("name bound to %T, expected variable or parameter", e.Decl)
		}
	case *CallExpr:
		if e.Fun == nil {
			return util.FrontEndf("call to unbound function")
		}
		if len(e.Args) != len(e.Fun.Pars) {
			return util.FrontEndf("call to %s with %d arguments, expected %d", e.Fun.Name, len(e.Args), len(e.Fun.Pars))
		}
		return v.exprs(e.Args...)
	case *ArrExpr:
		return v.exprs(e.Array, e.Index)
	case *RecExpr:
		if e.Comp == nil {
			return util.FrontEndf("record access to unbound component")
		}
		return v.expr(e.Record)
	case *UnExpr:
		if e.Op == UnAddr && !e.Sub.Attrs().LValue {
			return util.FrontEndf("address of a non-lvalue")
		}
		return v.expr(e.Sub)
	case *BinExpr:
		return v.exprs(e.Fst, e.Snd)
	case *CastExpr:
		return v.expr(e.Expr)
	case *NewExpr:
		return v.typ(e.Alloc, "new")
	case *DelExpr:
		return v.expr(e.Expr)
	case *BlockExpr:
		if err := v.decls(e.Decls); err != nil {
			return err
		}
		if err := v.stmts(e.Stmts); err != nil {
			return err
		}
		return v.expr(e.Expr)
	default:
		return util.FrontEndf("unexpected expression %T", e)
	}
}

func (v *validator) exprs(es ...Expr) error {
	for _, e1 := range es {
		if err := v.expr(e1); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) stmts(ss []Stmt) error {
	for _, e1 := range ss {
		if err := v.stmt(e1); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) stmt(s Stmt) error {
	switch s := s.(type) {
	case *AssignStmt:
		if err := v.exprs(s.Dst, s.Src); err != nil {
			return err
		}
		if !s.Dst.Attrs().LValue {
			return util.FrontEndf("assignment to a non-lvalue")
		}
		return nil
	case *ExprStmt:
		return v.expr(s.Expr)
	case *IfStmt:
		if err := v.expr(s.Cond); err != nil {
			return err
		}
		if err := v.stmts(s.Then); err != nil {
			return err
		}
		return v.stmts(s.Else)
	case *WhileStmt:
		if err := v.expr(s.Cond); err != nil {
			return err
		}
		return v.stmts(s.Body)
	case nil:
		return util.FrontEndf("<nil> statement")
	default:
		return util.FrontEndf("unexpected statement %T", s)
	}
}
