// label.go provides a thread safe way of generating unique ids for labels and temporaries.

package util

import "go.uber.org/atomic"

// Seq hands out monotonically increasing ids. It is safe for concurrent use, which allows per-fragment register
// allocation to mint spill temporaries in parallel.
type Seq struct {
	n *atomic.Int64
}

// NewSeq returns a sequence whose first id is 0.
func NewSeq() *Seq {
	return &Seq{n: atomic.NewInt64(0)}
}

// Next returns the next id.
func (s *Seq) Next() int64 {
	return s.n.Inc() - 1
}

// Peek returns the id that the next call to Next will return.
func (s *Seq) Peek() int64 {
	return s.n.Load()
}
