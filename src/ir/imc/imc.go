// Package imc defines the tree-shaped intermediate code and lowers the annotated syntax tree into it.
package imc

import (
	"fmt"
	"strings"

	"prevc/src/ir/frames"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Expr is an intermediate code expression: *Const, *Name, *TempExpr, *Mem, *BinOp, *UnOp, *Call or *SExpr.
type Expr interface {
	expr()
	String() string
}

// Stmt is an intermediate code statement: *Move, *ExprStmt, *Seq, *LabelStmt, *Jump or *CJump.
type Stmt interface {
	stmt()
	String() string
}

// Op is a unary or binary operator.
type Op int

type (
	Const struct {
		Value int64
	}
	// Name is the address of a label.
	Name struct {
		Label frames.Label
	}
	TempExpr struct {
		Temp frames.Temp
	}
	Mem struct {
		Addr Expr
	}
	BinOp struct {
		Op  Op
		Fst Expr
		Snd Expr
	}
	UnOp struct {
		Op  Op
		Sub Expr
	}
	// Call calls Label. Args[0] is the static link.
	Call struct {
		Label frames.Label
		Args  []Expr
	}
	// SExpr executes Stmt and then yields Expr.
	SExpr struct {
		Stmt Stmt
		Expr Expr
	}
)

type (
	Move struct {
		Dst Expr // *TempExpr or *Mem.
		Src Expr
	}
	ExprStmt struct {
		Expr Expr
	}
	Seq struct {
		Stmts []Stmt
	}
	LabelStmt struct {
		Label frames.Label
	}
	Jump struct {
		Label frames.Label
	}
	// CJump jumps to Pos if Cond is non-zero and to Neg otherwise.
	CJump struct {
		Cond Expr
		Pos  frames.Label
		Neg  frames.Label
	}
)

// ---------------------
// ----- Constants -----
// ---------------------

const (
	ADD Op = iota
	SUB
	MUL
	DIV
	MOD
	AND
	IOR
	XOR
	EQU
	NEQ
	LTH
	GTH
	LEQ
	GEQ
	NEG
	NOT
)

var opNames = [...]string{
	ADD: "ADD",
	SUB: "SUB",
	MUL: "MUL",
	DIV: "DIV",
	MOD: "MOD",
	AND: "AND",
	IOR: "IOR",
	XOR: "XOR",
	EQU: "EQU",
	NEQ: "NEQ",
	LTH: "LTH",
	GTH: "GTH",
	LEQ: "LEQ",
	GEQ: "GEQ",
	NEG: "NEG",
	NOT: "NOT",
}

// ---------------------
// ----- Functions -----
// ---------------------

func (*Const) expr()    {}
func (*Name) expr()     {}
func (*TempExpr) expr() {}
func (*Mem) expr()      {}
func (*BinOp) expr()    {}
func (*UnOp) expr()     {}
func (*Call) expr()     {}
func (*SExpr) expr()    {}

func (*Move) stmt()      {}
func (*ExprStmt) stmt()  {}
func (*Seq) stmt()       {}
func (*LabelStmt) stmt() {}
func (*Jump) stmt()      {}
func (*CJump) stmt()     {}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("OP(%d)", int(op))
}

// IsCompare reports whether op is a relational operator.
func (op Op) IsCompare() bool {
	return op >= EQU && op <= GEQ
}

func (e *Const) String() string    { return fmt.Sprintf("CONST(%d)", e.Value) }
func (e *Name) String() string     { return fmt.Sprintf("NAME(%s)", e.Label) }
func (e *TempExpr) String() string { return fmt.Sprintf("TEMP(%s)", e.Temp) }
func (e *Mem) String() string      { return fmt.Sprintf("MEM(%s)", e.Addr) }
func (e *BinOp) String() string    { return fmt.Sprintf("BINOP(%s, %s, %s)", e.Op, e.Fst, e.Snd) }
func (e *UnOp) String() string     { return fmt.Sprintf("UNOP(%s, %s)", e.Op, e.Sub) }
func (e *SExpr) String() string    { return fmt.Sprintf("SEXPR(%s, %s)", e.Stmt, e.Expr) }

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i1, e1 := range e.Args {
		args[i1] = e1.String()
	}
	return fmt.Sprintf("CALL(%s, %s)", e.Label, strings.Join(args, ", "))
}

func (s *Move) String() string      { return fmt.Sprintf("MOVE(%s, %s)", s.Dst, s.Src) }
func (s *ExprStmt) String() string  { return fmt.Sprintf("ESTMT(%s)", s.Expr) }
func (s *LabelStmt) String() string { return fmt.Sprintf("LABEL(%s)", s.Label) }
func (s *Jump) String() string      { return fmt.Sprintf("JUMP(%s)", s.Label) }
func (s *CJump) String() string     { return fmt.Sprintf("CJUMP(%s, %s, %s)", s.Cond, s.Pos, s.Neg) }

func (s *Seq) String() string {
	stmts := make([]string, len(s.Stmts))
	for i1, e1 := range s.Stmts {
		stmts[i1] = e1.String()
	}
	return fmt.Sprintf("STMTS(%s)", strings.Join(stmts, ", "))
}

// Print writes s to sb, one statement per line, with nested sequences indented.
func Print(sb *strings.Builder, s Stmt, indent int) {
	if seq, ok := s.(*Seq); ok {
		for _, e1 := range seq.Stmts {
			Print(sb, e1, indent)
		}
		return
	}
	sb.WriteString(strings.Repeat("  ", indent))
	sb.WriteString(s.String())
	sb.WriteString("\n")
}

// Temp, Mov and Lbl are shorthands used while building code.
func Temp(t frames.Temp) *TempExpr { return &TempExpr{Temp: t} }
func Mov(dst, src Expr) *Move      { return &Move{Dst: dst, Src: src} }
func Lbl(l frames.Label) *LabelStmt { return &LabelStmt{Label: l} }
