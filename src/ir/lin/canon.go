package lin

import (
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/util"
)

// canon hoists side effects out of expressions. Statements are emitted to out in evaluation order.
type canon struct {
	gen        *frames.Gen
	binopTemps bool
	out        []imc.Stmt
}

// Canonicalize flattens s into a list of statements in which:
//   - there are no sequences or statement expressions,
//   - every call is the source of a move into a temporary or an expression statement, with arguments that are
//     temporaries, names or constants,
//   - every conditional jump tests a temporary,
//   - memory addresses are temporaries, names, or a temporary or name plus a constant.
//
// With binopTemps set, every binary operand that is not already a temporary, name or constant is evaluated into a
// fresh temporary first. Otherwise operands are only hoisted when a later operand has side effects.
func Canonicalize(s imc.Stmt, gen *frames.Gen, binopTemps bool) ([]imc.Stmt, error) {
	c := canon{gen: gen, binopTemps: binopTemps}
	if err := c.stmt(s); err != nil {
		return nil, err
	}
	return c.out, nil
}

func (c *canon) emit(s imc.Stmt) {
	c.out = append(c.out, s)
}

// atomic reports whether e can be evaluated without side effects in a single operand.
func atomic(e imc.Expr) bool {
	switch e.(type) {
	case *imc.Const, *imc.Name, *imc.TempExpr:
		return true
	}
	return false
}

// temp evaluates e into a fresh temporary unless it is already atomic.
func (c *canon) temp(e imc.Expr) imc.Expr {
	if atomic(e) {
		return e
	}
	t := imc.Temp(c.gen.NewTemp())
	c.emit(imc.Mov(t, e))
	return t
}

// register evaluates e into a temporary; constants and names are also moved.
func (c *canon) register(e imc.Expr) imc.Expr {
	if _, ok := e.(*imc.TempExpr); ok {
		return e
	}
	t := imc.Temp(c.gen.NewTemp())
	c.emit(imc.Mov(t, e))
	return t
}

func (c *canon) stmt(s imc.Stmt) error {
	switch s := s.(type) {
	case *imc.Move:
		return c.move(s)
	case *imc.ExprStmt:
		if call, ok := s.Expr.(*imc.Call); ok {
			args, err := c.args(call.Args)
			if err != nil {
				return err
			}
			c.emit(&imc.ExprStmt{Expr: &imc.Call{Label: call.Label, Args: args}})
			return nil
		}
		// Only the side effects of a discarded value matter.
		_, err := c.expr(s.Expr)
		return err
	case *imc.Seq:
		for _, e1 := range s.Stmts {
			if err := c.stmt(e1); err != nil {
				return err
			}
		}
		return nil
	case *imc.LabelStmt, *imc.Jump:
		c.emit(s)
		return nil
	case *imc.CJump:
		cond, err := c.expr(s.Cond)
		if err != nil {
			return err
		}
		c.emit(&imc.CJump{Cond: c.register(cond), Pos: s.Pos, Neg: s.Neg})
		return nil
	default:
		return util.Internalf("", "unexpected statement %T", s)
	}
}

func (c *canon) move(s *imc.Move) error {
	switch dst := s.Dst.(type) {
	case *imc.TempExpr:
		if call, ok := s.Src.(*imc.Call); ok {
			args, err := c.args(call.Args)
			if err != nil {
				return err
			}
			c.emit(imc.Mov(dst, &imc.Call{Label: call.Label, Args: args}))
			return nil
		}
		src, err := c.expr(s.Src)
		if err != nil {
			return err
		}
		c.emit(imc.Mov(dst, src))
		return nil
	case *imc.Mem:
		// The address is fixed before the source is evaluated.
		addr, err := c.addr(dst.Addr)
		if err != nil {
			return err
		}
		src, err := c.expr(s.Src)
		if err != nil {
			return err
		}
		c.emit(imc.Mov(&imc.Mem{Addr: addr}, src))
		return nil
	default:
		return util.Internalf("", "move to %T", s.Dst)
	}
}

// args evaluates call arguments left to right into atomic operands.
func (c *canon) args(args []imc.Expr) ([]imc.Expr, error) {
	res := make([]imc.Expr, len(args))
	for i1, e1 := range args {
		a, err := c.expr(e1)
		if err != nil {
			return nil, err
		}
		res[i1] = c.temp(a)
	}
	return res, nil
}

// addr canonicalizes a memory address, keeping a trailing constant offset for the instruction selector to fold.
func (c *canon) addr(e imc.Expr) (imc.Expr, error) {
	if b, ok := e.(*imc.BinOp); ok && b.Op == imc.ADD {
		if k, ok := b.Snd.(*imc.Const); ok {
			base, err := c.expr(b.Fst)
			if err != nil {
				return nil, err
			}
			return &imc.BinOp{Op: imc.ADD, Fst: c.temp(base), Snd: k}, nil
		}
	}
	a, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	return c.temp(a), nil
}

// expr returns the canonical form of e after emitting the statements its side effects need.
func (c *canon) expr(e imc.Expr) (imc.Expr, error) {
	switch e := e.(type) {
	case *imc.Const, *imc.Name, *imc.TempExpr:
		return e, nil
	case *imc.Mem:
		addr, err := c.addr(e.Addr)
		if err != nil {
			return nil, err
		}
		return &imc.Mem{Addr: addr}, nil
	case *imc.BinOp:
		fst, err := c.expr(e.Fst)
		if err != nil {
			return nil, err
		}
		if c.binopTemps {
			fst = c.temp(fst)
		}
		mark := len(c.out)
		snd, err := c.expr(e.Snd)
		if err != nil {
			return nil, err
		}
		if c.binopTemps {
			snd = c.temp(snd)
		} else if len(c.out) > mark && !atomic(fst) {
			// The second operand has side effects that could change the first.
			fst = c.hoist(mark, fst)
		}
		return &imc.BinOp{Op: e.Op, Fst: fst, Snd: snd}, nil
	case *imc.UnOp:
		sub, err := c.expr(e.Sub)
		if err != nil {
			return nil, err
		}
		if c.binopTemps {
			sub = c.temp(sub)
		}
		return &imc.UnOp{Op: e.Op, Sub: sub}, nil
	case *imc.Call:
		args, err := c.args(e.Args)
		if err != nil {
			return nil, err
		}
		t := imc.Temp(c.gen.NewTemp())
		c.emit(imc.Mov(t, &imc.Call{Label: e.Label, Args: args}))
		return t, nil
	case *imc.SExpr:
		if err := c.stmt(e.Stmt); err != nil {
			return nil, err
		}
		return c.expr(e.Expr)
	default:
		return nil, util.Internalf("", "unexpected expression %T", e)
	}
}

// hoist evaluates e into a fresh temporary at position mark of the output, before statements emitted later.
func (c *canon) hoist(mark int, e imc.Expr) imc.Expr {
	t := imc.Temp(c.gen.NewTemp())
	c.out = append(c.out, nil)
	copy(c.out[mark+1:], c.out[mark:])
	c.out[mark] = imc.Mov(t, e)
	return t
}
