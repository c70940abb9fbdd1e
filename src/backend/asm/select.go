package asm

import (
	"fmt"

	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/ir/lin"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// operand is a register operand: a temporary, or a fixed register written by name.
type operand struct {
	temp  frames.Temp
	fixed string
}

// builder assembles one operation and its template.
type builder struct {
	op   *Oper
	args []string
}

type selector struct {
	gen  *frames.Gen
	fp   frames.Temp
	rf   regfile.RegisterFile
	frag frames.Label
	out  []Instr
}

// ---------------------
// ----- Constants -----
// ---------------------

// immMax is the largest unsigned immediate of an MMIX instruction.
const immMax = 255

var binOps = map[imc.Op]string{
	imc.ADD: "ADD",
	imc.SUB: "SUB",
	imc.MUL: "MUL",
	imc.DIV: "DIV",
	imc.AND: "AND",
	imc.IOR: "OR",
	imc.XOR: "XOR",
}

// cmpOps sets a register to 1 when the comparison result has the given sign, else to 0.
var cmpOps = map[imc.Op]string{
	imc.EQU: "ZSZ",
	imc.NEQ: "ZSNZ",
	imc.LTH: "ZSN",
	imc.GTH: "ZSP",
	imc.LEQ: "ZSNP",
	imc.GEQ: "ZSNN",
}

// ---------------------
// ----- Functions -----
// ---------------------

// Select translates a linear code fragment into MMIX instructions over temporaries. The frame pointer temporary fp
// is rendered as the FP register and never appears among the temporaries of the program.
func Select(frag *lin.CodeFragment, gen *frames.Gen, fp frames.Temp, rf regfile.RegisterFile) (*Program, error) {
	s := selector{
		gen:  gen,
		fp:   fp,
		rf:   rf,
		frag: frag.Frame.Label,
		out:  make([]Instr, 0, len(frag.Stmts)*2),
	}
	for _, e1 := range frag.Stmts {
		if err := s.stmt(e1); err != nil {
			return nil, err
		}
	}
	s.out = append(s.out, &Label{Label: frag.Exit})
	return &Program{
		Frame:  frag.Frame,
		Instrs: s.out,
		RV:     frag.RV,
		Entry:  frag.Entry,
		Exit:   frag.Exit,
	}, nil
}

func (s *selector) errorf(format string, args ...interface{}) error {
	return util.Internalf(string(s.frag), format, args...)
}

// oper starts an operation.
func (s *selector) oper(op string) *builder {
	return &builder{op: &Oper{Op: op}}
}

// def appends a written register operand.
func (b *builder) def(o operand) *builder {
	if len(o.fixed) > 0 {
		b.args = append(b.args, o.fixed)
		return b
	}
	b.args = append(b.args, fmt.Sprintf("`d%d", len(b.op.Dst)))
	b.op.Dst = append(b.op.Dst, o.temp)
	return b
}

// use appends a read register operand.
func (b *builder) use(o operand) *builder {
	if len(o.fixed) > 0 {
		b.args = append(b.args, o.fixed)
		return b
	}
	b.args = append(b.args, fmt.Sprintf("`s%d", len(b.op.Src)))
	b.op.Src = append(b.op.Src, o.temp)
	return b
}

// lit appends a literal operand.
func (b *builder) lit(format string, args ...interface{}) *builder {
	b.args = append(b.args, fmt.Sprintf(format, args...))
	return b
}

func (s *selector) emit(b *builder) *Oper {
	for i1, e1 := range b.args {
		if i1 > 0 {
			b.op.Args += ","
		}
		b.op.Args += e1
	}
	s.out = append(s.out, b.op)
	return b.op
}

func (s *selector) newTemp() operand {
	return operand{temp: s.gen.NewTemp()}
}

func (s *selector) sp() operand {
	return operand{fixed: s.rf.SP().String()}
}

// reg returns the operand of a temporary.
func (s *selector) reg(t frames.Temp) operand {
	if t == s.fp {
		return operand{fixed: s.rf.FP().String()}
	}
	return operand{temp: t}
}

// ----- Statements -----

func (s *selector) stmt(st imc.Stmt) error {
	switch st := st.(type) {
	case *imc.LabelStmt:
		s.out = append(s.out, &Label{Label: st.Label})
		return nil
	case *imc.Jump:
		o := s.emit(s.oper("JMP").lit("%s", st.Label))
		o.Jumps, o.Jump = []frames.Label{st.Label}, true
		return nil
	case *imc.CJump:
		c, err := s.expr(st.Cond)
		if err != nil {
			return err
		}
		o := s.emit(s.oper("BNZ").use(c).lit("%s", st.Pos))
		o.Jumps = []frames.Label{st.Pos}
		o = s.emit(s.oper("JMP").lit("%s", st.Neg))
		o.Jumps, o.Jump = []frames.Label{st.Neg}, true
		return nil
	case *imc.Move:
		return s.move(st)
	case *imc.ExprStmt:
		if call, ok := st.Expr.(*imc.Call); ok {
			return s.call(call)
		}
		_, err := s.expr(st.Expr)
		return err
	default:
		return s.errorf("unexpected statement %T after linearization", st)
	}
}

func (s *selector) move(m *imc.Move) error {
	switch dst := m.Dst.(type) {
	case *imc.TempExpr:
		if dst.Temp == s.fp {
			return s.errorf("move to the frame pointer")
		}
		return s.exprTo(m.Src, s.reg(dst.Temp))
	case *imc.Mem:
		return s.store(dst.Addr, m.Src)
	default:
		return s.errorf("move to %T", m.Dst)
	}
}

// call stores the arguments to the outgoing area and branches to the callee.
func (s *selector) call(c *imc.Call) error {
	for i1, e1 := range c.Args {
		off := int64(i1) * 8
		if k, ok := e1.(*imc.Const); ok && k.Value >= 0 && k.Value <= immMax {
			if err := s.storeAt("STCO", operand{fixed: fmt.Sprintf("%d", k.Value)}, s.sp(), off); err != nil {
				return err
			}
			continue
		}
		v, err := s.expr(e1)
		if err != nil {
			return err
		}
		if err := s.storeAt("STO", v, s.sp(), off); err != nil {
			return err
		}
	}
	o := s.emit(s.oper("PUSHJ").lit("%s", s.rf.Call()).lit("%s", c.Label))
	o.Call = c.Label
	return nil
}

// store writes src to the memory at addr. Small constants are stored without a register.
func (s *selector) store(addr, src imc.Expr) error {
	base, off, name, err := s.addr(addr)
	if err != nil {
		return err
	}
	if k, ok := src.(*imc.Const); ok && k.Value >= 0 && k.Value <= immMax {
		v := operand{fixed: fmt.Sprintf("%d", k.Value)}
		if len(name) > 0 {
			s.emit(s.oper("STCO").use(v).lit("%s", name))
			return nil
		}
		return s.storeAt("STCO", v, base, off)
	}
	v, err := s.expr(src)
	if err != nil {
		return err
	}
	if len(name) > 0 {
		s.emit(s.oper("STO").use(v).lit("%s", name))
		return nil
	}
	return s.storeAt("STO", v, base, off)
}

// storeAt emits op v,base,off. v is a register or, for STCO, a literal byte.
func (s *selector) storeAt(op string, v, base operand, off int64) error {
	switch {
	case off >= 0 && off <= immMax:
		s.emit(s.oper(op).use(v).use(base).lit("%d", off))
	case off < 0 && off >= -immMax:
		a := s.newTemp()
		s.emit(s.oper("SUB").def(a).use(base).lit("%d", -off))
		s.emit(s.oper(op).use(v).use(a).lit("0"))
	default:
		// Two registers at most are read, so that any palette can colour the store.
		a := s.newTemp()
		s.constant(off, a)
		s.emit(s.oper("ADD").def(a).use(base).use(a))
		s.emit(s.oper(op).use(v).use(a).lit("0"))
	}
	return nil
}

// ----- Expressions -----

// addr splits a memory address into a base register and an offset, or a label.
func (s *selector) addr(e imc.Expr) (base operand, off int64, name frames.Label, err error) {
	switch e := e.(type) {
	case *imc.Name:
		return operand{}, 0, e.Label, nil
	case *imc.BinOp:
		if k, ok := e.Snd.(*imc.Const); ok && e.Op == imc.ADD {
			base, err = s.expr(e.Fst)
			return base, k.Value, "", err
		}
	}
	base, err = s.expr(e)
	return base, 0, "", err
}

// load reads the word at addr into d.
func (s *selector) load(addr imc.Expr, d operand) error {
	base, off, name, err := s.addr(addr)
	if err != nil {
		return err
	}
	switch {
	case len(name) > 0:
		s.emit(s.oper("LDO").def(d).lit("%s", name))
	case off >= 0 && off <= immMax:
		s.emit(s.oper("LDO").def(d).use(base).lit("%d", off))
	case off < 0 && off >= -immMax:
		a := s.newTemp()
		s.emit(s.oper("SUB").def(a).use(base).lit("%d", -off))
		s.emit(s.oper("LDO").def(d).use(a).lit("0"))
	default:
		a := s.newTemp()
		s.constant(off, a)
		s.emit(s.oper("LDO").def(d).use(base).use(a))
	}
	return nil
}

// constant loads v into d.
func (s *selector) constant(v int64, d operand) {
	for _, e1 := range ConstOps(v) {
		b := s.oper(e1.Op)
		b.op.Dst = []frames.Temp{d.temp}
		if e1.Reads() {
			b.op.Src = []frames.Temp{d.temp}
		}
		b.args = []string{e1.Template()}
		s.emit(b)
	}
}

// expr evaluates e into a register. Temporaries are used in place.
func (s *selector) expr(e imc.Expr) (operand, error) {
	if t, ok := e.(*imc.TempExpr); ok {
		return s.reg(t.Temp), nil
	}
	d := s.newTemp()
	return d, s.exprTo(e, d)
}

// right evaluates the right operand of an arithmetic operation, as an immediate when it fits.
func (s *selector) right(e imc.Expr) (operand, error) {
	if k, ok := e.(*imc.Const); ok && k.Value >= 0 && k.Value <= immMax {
		return operand{fixed: fmt.Sprintf("%d", k.Value)}, nil
	}
	return s.expr(e)
}

// exprTo evaluates e into d.
func (s *selector) exprTo(e imc.Expr, d operand) error {
	switch e := e.(type) {
	case *imc.Const:
		s.constant(e.Value, d)
		return nil
	case *imc.Name:
		s.emit(s.oper("LDA").def(d).lit("%s", e.Label))
		return nil
	case *imc.TempExpr:
		o := s.emit(s.oper("SET").def(d).use(s.reg(e.Temp)))
		o.Move = len(o.Src) == 1 && len(o.Dst) == 1
		return nil
	case *imc.Mem:
		return s.load(e.Addr, d)
	case *imc.BinOp:
		return s.binop(e, d)
	case *imc.UnOp:
		sub, err := s.expr(e.Sub)
		if err != nil {
			return err
		}
		switch e.Op {
		case imc.NEG:
			s.emit(s.oper("NEG").def(d).lit("0").use(sub))
		case imc.NOT:
			s.emit(s.oper("ZSZ").def(d).use(sub).lit("1"))
		default:
			return s.errorf("unexpected unary operator %s", e.Op)
		}
		return nil
	case *imc.Call:
		if err := s.call(e); err != nil {
			return err
		}
		s.emit(s.oper("LDO").def(d).use(s.sp()).lit("0"))
		return nil
	default:
		return s.errorf("unexpected expression %T after linearization", e)
	}
}

func (s *selector) binop(e *imc.BinOp, d operand) error {
	fst, err := s.expr(e.Fst)
	if err != nil {
		return err
	}
	snd, err := s.right(e.Snd)
	if err != nil {
		return err
	}
	if zs, ok := cmpOps[e.Op]; ok {
		s.emit(s.oper("CMP").def(d).use(fst).use(snd))
		s.emit(s.oper(zs).def(d).use(d).lit("1"))
		return nil
	}
	if e.Op == imc.MOD {
		s.emit(s.oper("DIV").def(d).use(fst).use(snd))
		s.emit(s.oper("GET").def(d).lit("rR"))
		return nil
	}
	op, ok := binOps[e.Op]
	if !ok {
		return s.errorf("unexpected binary operator %s", e.Op)
	}
	s.emit(s.oper(op).def(d).use(fst).use(snd))
	return nil
}
