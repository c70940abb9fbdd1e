package ir

import (
	"fmt"
	"strings"
)

// WordSize is the size in bytes of every scalar value and pointer.
const WordSize int64 = 8

// Type is a semantic type with a known byte size.
type Type interface {
	Size() int64
	String() string
}

type (
	IntType  struct{}
	CharType struct{}
	BoolType struct{}
	VoidType struct{}
	PtrType  struct {
		Base Type
	}
	ArrType struct {
		Elem Type
		Len  int64
	}
	RecType struct {
		Comps []*CompDecl
	}
	// NameType refers to a declared type; Actual is bound by the front end and may be recursive through pointers.
	NameType struct {
		Name   string
		Actual Type
	}
)

func (IntType) Size() int64  { return WordSize }
func (CharType) Size() int64 { return WordSize }
func (BoolType) Size() int64 { return WordSize }
func (VoidType) Size() int64 { return WordSize }
func (*PtrType) Size() int64 { return WordSize }

func (t *ArrType) Size() int64 {
	return t.Len * t.Elem.Size()
}

func (t *RecType) Size() int64 {
	var s int64
	for _, e1 := range t.Comps {
		s += e1.Typ.Size()
	}
	return s
}

func (t *NameType) Size() int64 {
	if t.Actual == nil {
		return 0
	}
	return t.Actual.Size()
}

func (IntType) String() string  { return "int" }
func (CharType) String() string { return "char" }
func (BoolType) String() string { return "bool" }
func (VoidType) String() string { return "void" }
func (t *PtrType) String() string {
	return "^" + t.Base.String()
}
func (t *ArrType) String() string {
	return fmt.Sprintf("[%d]%s", t.Len, t.Elem.String())
}
func (t *RecType) String() string {
	sb := strings.Builder{}
	sb.WriteString("rec(")
	for i1, e1 := range t.Comps {
		if i1 > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e1.Name)
		sb.WriteString(":")
		sb.WriteString(e1.Typ.String())
	}
	sb.WriteString(")")
	return sb.String()
}
func (t *NameType) String() string { return t.Name }

// Actual strips type names until a structural type is reached.
func Actual(t Type) Type {
	for i1 := 0; i1 < 64; i1++ {
		n, ok := t.(*NameType)
		if !ok || n.Actual == nil {
			return t
		}
		t = n.Actual
	}
	return t
}

// IsAggregate reports whether values of type t are addressed rather than loaded: arrays and records.
func IsAggregate(t Type) bool {
	switch Actual(t).(type) {
	case *ArrType, *RecType:
		return true
	}
	return false
}
