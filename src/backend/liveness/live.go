// Package liveness computes the live temporaries at every instruction of a program and builds the register
// interference graph from them.
package liveness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/segmentio/encoding/json"

	"prevc/src/backend/asm"
	"prevc/src/ir/frames"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Set is a set of temporaries.
type Set map[frames.Temp]struct{}

// Result holds the live sets of every instruction of a program.
type Result struct {
	Instrs  []asm.Instr
	Succ    [][]int // Indices of the control flow successors of every instruction.
	In      []Set   // Temporaries live on entry to every instruction.
	Out     []Set   // Temporaries live on exit from every instruction.
	LiveOut []frames.Temp
	Passes  int // Number of passes until the sets were stable, including the final pass that changed nothing.
}

// instrDump is the JSON form of one analysed instruction.
type instrDump struct {
	Instr string        `json:"instr"`
	Succ  []int         `json:"succ,omitempty"`
	In    []frames.Temp `json:"in"`
	Out   []frames.Temp `json:"out"`
}

// ---------------------
// ----- Functions -----
// ---------------------

// Sorted returns the members of s in increasing order.
func (s Set) Sorted() []frames.Temp {
	res := make([]frames.Temp, 0, len(s))
	for e1 := range s {
		res = append(res, e1)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Has reports whether t is in s.
func (s Set) Has(t frames.Temp) bool {
	_, ok := s[t]
	return ok
}

func (s Set) String() string {
	ts := s.Sorted()
	parts := make([]string, len(ts))
	for i1, e1 := range ts {
		parts[i1] = e1.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Successors computes the control flow successors of every instruction. An operation falls through to the next
// instruction unless it is an unconditional jump, and it also reaches every label it may jump to.
func Successors(instrs []asm.Instr) ([][]int, error) {
	labels := make(map[frames.Label]int)
	for i1, e1 := range instrs {
		if l, ok := e1.(*asm.Label); ok {
			labels[l.Label] = i1
		}
	}

	succ := make([][]int, len(instrs))
	for i1, e1 := range instrs {
		fallThrough := true
		if o, ok := e1.(*asm.Oper); ok {
			for _, e2 := range o.Jumps {
				j, ok := labels[e2]
				if !ok {
					return nil, util.Internalf("", "jump to unresolved label %s in %q", e2, o)
				}
				succ[i1] = append(succ[i1], j)
			}
			fallThrough = !o.Jump
		}
		if fallThrough && i1+1 < len(instrs) {
			succ[i1] = append(succ[i1], i1+1)
		}
	}
	return succ, nil
}

// Analyze computes the live sets of instrs by iterating in[n] = use[n] ∪ (out[n] − def[n]) and
// out[n] = ∪ in[s] over the successors s of n, until a pass changes nothing. The temporaries in liveOut are live
// on exit from the last instruction.
func Analyze(instrs []asm.Instr, liveOut []frames.Temp) (*Result, error) {
	succ, err := Successors(instrs)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Instrs:  instrs,
		Succ:    succ,
		In:      make([]Set, len(instrs)),
		Out:     make([]Set, len(instrs)),
		LiveOut: liveOut,
	}
	for i1 := range instrs {
		res.In[i1] = make(Set)
		res.Out[i1] = make(Set)
	}
	if len(instrs) == 0 {
		return res, nil
	}
	for _, e1 := range liveOut {
		res.Out[len(instrs)-1][e1] = struct{}{}
	}

	for changed := true; changed; {
		changed = false
		res.Passes++
		// Backwards, so that most successors are up to date.
		for i1 := len(instrs) - 1; i1 >= 0; i1-- {
			out := res.Out[i1]
			for _, e2 := range succ[i1] {
				for e3 := range res.In[e2] {
					if !out.Has(e3) {
						out[e3] = struct{}{}
						changed = true
					}
				}
			}
			in := res.In[i1]
			for _, e2 := range instrs[i1].Uses() {
				if !in.Has(e2) {
					in[e2] = struct{}{}
					changed = true
				}
			}
			defs := instrs[i1].Defs()
			for e2 := range out {
				if !in.Has(e2) && !contains(defs, e2) {
					in[e2] = struct{}{}
					changed = true
				}
			}
		}
	}
	return res, nil
}

// Verify checks that the live sets satisfy the dataflow equations exactly.
func (r *Result) Verify() error {
	for i1, e1 := range r.Instrs {
		out := make(Set)
		for _, e2 := range r.Succ[i1] {
			for e3 := range r.In[e2] {
				out[e3] = struct{}{}
			}
		}
		if i1 == len(r.Instrs)-1 {
			for _, e2 := range r.LiveOut {
				out[e2] = struct{}{}
			}
		}
		in := make(Set)
		for _, e2 := range e1.Uses() {
			in[e2] = struct{}{}
		}
		for e2 := range out {
			if !contains(e1.Defs(), e2) {
				in[e2] = struct{}{}
			}
		}
		if !equal(out, r.Out[i1]) {
			return util.Internalf("", "instruction %d %q: out is %s, expected %s", i1, e1, r.Out[i1], out)
		}
		if !equal(in, r.In[i1]) {
			return util.Internalf("", "instruction %d %q: in is %s, expected %s", i1, e1, r.In[i1], in)
		}
	}
	return nil
}

// String logs every instruction with its live sets.
func (r *Result) String() string {
	sb := strings.Builder{}
	for i1, e1 := range r.Instrs {
		var text string
		if _, ok := e1.(*asm.Label); ok {
			text = e1.String()
		} else {
			text = "\t" + e1.String()
		}
		sb.WriteString(fmt.Sprintf("%-32s in: %s out: %s\n", text, r.In[i1], r.Out[i1]))
	}
	return sb.String()
}

// JSON encodes the instructions and their live sets.
func (r *Result) JSON() ([]byte, error) {
	dump := make([]instrDump, len(r.Instrs))
	for i1, e1 := range r.Instrs {
		dump[i1] = instrDump{
			Instr: e1.String(),
			Succ:  r.Succ[i1],
			In:    r.In[i1].Sorted(),
			Out:   r.Out[i1].Sorted(),
		}
	}
	return json.Marshal(dump)
}

func contains(ts []frames.Temp, t frames.Temp) bool {
	for _, e1 := range ts {
		if e1 == t {
			return true
		}
	}
	return false
}

func equal(a, b Set) bool {
	if len(a) != len(b) {
		return false
	}
	for e1 := range a {
		if !b.Has(e1) {
			return false
		}
	}
	return true
}
