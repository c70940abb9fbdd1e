// Package ir defines the annotated syntax tree handed to the back end. Every name is bound to its declaration and
// every expression carries its semantic type and lvalue flag.
package ir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Node is any node of the annotated syntax tree.
type Node interface {
	node()
}

// Decl is a declaration: *VarDecl, *ParDecl, *CompDecl, *TypeDecl or *FunDecl.
type Decl interface {
	Node
	DeclName() string
}

// Expr is an expression: *AtomExpr, *NameExpr, *CallExpr, *ArrExpr, *RecExpr, *UnExpr, *BinExpr, *CastExpr,
// *NewExpr, *DelExpr or *BlockExpr.
type Expr interface {
	Node
	Attrs() *Attr
}

// Stmt is a statement: *AssignStmt, *ExprStmt, *IfStmt or *WhileStmt.
type Stmt interface {
	Node
	stmt()
}

// Attr holds the semantic annotations the front end attaches to every expression.
type Attr struct {
	Typ    Type // Semantic type.
	LValue bool // Set true if the expression denotes a storage location.
}

// AtomKind differentiates literal constants.
type AtomKind int

// UnOp is a unary operator.
type UnOp int

// BinOp is a binary operator.
type BinOp int

// Declarations.
type (
	VarDecl struct {
		Name string
		Typ  Type
	}
	ParDecl struct {
		Name string
		Typ  Type
	}
	CompDecl struct {
		Name string
		Typ  Type
	}
	TypeDecl struct {
		Name string
		Typ  Type
	}
	// FunDecl declares a function. Functions without a body are linked externally.
	FunDecl struct {
		Name string
		Pars []*ParDecl
		Typ  Type // Return type.
		Body Expr
	}
)

// Expressions.
type (
	AtomExpr struct {
		Attr
		Kind  AtomKind
		Value string
	}
	NameExpr struct {
		Attr
		Decl Decl // *VarDecl or *ParDecl.
	}
	CallExpr struct {
		Attr
		Fun  *FunDecl
		Args []Expr
	}
	ArrExpr struct {
		Attr
		Array Expr
		Index Expr
	}
	RecExpr struct {
		Attr
		Record Expr
		Comp   *CompDecl
	}
	UnExpr struct {
		Attr
		Op  UnOp
		Sub Expr
	}
	BinExpr struct {
		Attr
		Op  BinOp
		Fst Expr
		Snd Expr
	}
	CastExpr struct {
		Attr
		Expr Expr
	}
	NewExpr struct {
		Attr
		Alloc Type
	}
	DelExpr struct {
		Attr
		Expr Expr
	}
	// BlockExpr evaluates its statements and yields Expr. The program itself is a BlockExpr.
	BlockExpr struct {
		Attr
		Decls []Decl
		Stmts []Stmt
		Expr  Expr
	}
)

// Statements.
type (
	AssignStmt struct {
		Dst Expr
		Src Expr
	}
	ExprStmt struct {
		Expr Expr
	}
	IfStmt struct {
		Cond Expr
		Then []Stmt
		Else []Stmt
	}
	WhileStmt struct {
		Cond Expr
		Body []Stmt
	}
)

// ---------------------
// ----- Constants -----
// ---------------------

const (
	AtomInt AtomKind = iota
	AtomChar
	AtomBool
	AtomPtr
	AtomVoid
)

const (
	UnAdd   UnOp = iota // +e
	UnSub               // -e
	UnNot               // !e
	UnAddr              // $e
	UnDeref             // @e
)

const (
	BinIor BinOp = iota
	BinXor
	BinAnd
	BinEqu
	BinNeq
	BinLth
	BinGth
	BinLeq
	BinGeq
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
)

// UnOps maps source operators to unary operators.
var UnOps = map[string]UnOp{
	"+": UnAdd,
	"-": UnSub,
	"!": UnNot,
	"$": UnAddr,
	"@": UnDeref,
}

// BinOps maps source operators to binary operators.
var BinOps = map[string]BinOp{
	"|":  BinIor,
	"^":  BinXor,
	"&":  BinAnd,
	"==": BinEqu,
	"!=": BinNeq,
	"<":  BinLth,
	">":  BinGth,
	"<=": BinLeq,
	">=": BinGeq,
	"+":  BinAdd,
	"-":  BinSub,
	"*":  BinMul,
	"/":  BinDiv,
	"%":  BinMod,
}

// ---------------------
// ----- Functions -----
// ---------------------

func (a *Attr) Attrs() *Attr { return a }

func (*VarDecl) node()  {}
func (*ParDecl) node()  {}
func (*CompDecl) node() {}
func (*TypeDecl) node() {}
func (*FunDecl) node()  {}

func (d *VarDecl) DeclName() string  { return d.Name }
func (d *ParDecl) DeclName() string  { return d.Name }
func (d *CompDecl) DeclName() string { return d.Name }
func (d *TypeDecl) DeclName() string { return d.Name }
func (d *FunDecl) DeclName() string  { return d.Name }

func (*AtomExpr) node()  {}
func (*NameExpr) node()  {}
func (*CallExpr) node()  {}
func (*ArrExpr) node()   {}
func (*RecExpr) node()   {}
func (*UnExpr) node()    {}
func (*BinExpr) node()   {}
func (*CastExpr) node()  {}
func (*NewExpr) node()   {}
func (*DelExpr) node()   {}
func (*BlockExpr) node() {}

func (*AssignStmt) node() {}
func (*ExprStmt) node()   {}
func (*IfStmt) node()     {}
func (*WhileStmt) node()  {}

func (*AssignStmt) stmt() {}
func (*ExprStmt) stmt()   {}
func (*IfStmt) stmt()     {}
func (*WhileStmt) stmt()  {}

// Defined reports whether the function has a body in this compilation unit.
func (d *FunDecl) Defined() bool {
	return d.Body != nil
}

func (op UnOp) String() string {
	for k, v := range UnOps {
		if v == op {
			return k
		}
	}
	return "?"
}

func (op BinOp) String() string {
	for k, v := range BinOps {
		if v == op {
			return k
		}
	}
	return "?"
}
