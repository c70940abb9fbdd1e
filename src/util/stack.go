// stack.go provides a stack that holds elements of one type.
// The bottom element is the first entry into the stack, while the top is
// the last entry to be added to the stack.

package util

import "sync"

// Stack is a slice backed stack.
type Stack[T any] struct {
	elems []T        // Bottom first.
	mx    sync.Mutex // For synchronising multiple worker threads to one stack.
}

// Push adds a new element to the top of the stack.
func (s *Stack[T]) Push(e T) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.elems = append(s.elems, e)
}

// Pop removes and returns the last inserted element on the stack.
// The boolean is false if the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	var e T
	if len(s.elems) == 0 {
		return e, false
	}
	e = s.elems[len(s.elems)-1]
	s.elems = s.elems[:len(s.elems)-1]
	return e, true
}

// Peek works just like Pop, but it does not remove the element from the stack.
func (s *Stack[T]) Peek() (T, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	var e T
	if len(s.elems) == 0 {
		return e, false
	}
	return s.elems[len(s.elems)-1], true
}
