package util

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Class partitions compiler errors by who is to blame.
type Class int

const (
	FrontEnd Class = iota // Malformed input syntax tree.
	Internal              // Broken pipeline invariant.
	Linkage               // Unresolved call target; never fatal.
)

var classNames = [...]string{
	FrontEnd: "front-end error",
	Internal: "internal error",
	Linkage:  "linkage warning",
}

// Error is a classified compiler error. Fragment names the code fragment being processed, if any.
type Error struct {
	Class    Class
	Fragment string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	s := classNames[e.Class]
	if len(e.Fragment) > 0 {
		s += " in " + e.Fragment
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Internalf returns an internal invariant violation for fragment frag.
func Internalf(frag string, format string, args ...interface{}) error {
	return &Error{Class: Internal, Fragment: frag, Msg: fmt.Sprintf(format, args...)}
}

// FrontEndf returns an error blaming the input syntax tree.
func FrontEndf(format string, args ...interface{}) error {
	return &Error{Class: FrontEnd, Msg: fmt.Sprintf(format, args...)}
}

// FrontEndWrap classifies err as a front-end error.
func FrontEndWrap(err error, msg string) error {
	return &Error{Class: FrontEnd, Msg: msg, Err: err}
}

// Linkagef returns a linkage warning for fragment frag.
func Linkagef(frag string, format string, args ...interface{}) error {
	return &Error{Class: Linkage, Fragment: frag, Msg: fmt.Sprintf(format, args...)}
}

// IsClass reports whether err, or any error combined into it, is a compiler error of class c.
func IsClass(err error, c Class) bool {
	for _, e1 := range multierr.Errors(err) {
		var ce *Error
		if errors.As(e1, &ce) && ce.Class == c {
			return true
		}
	}
	return false
}
