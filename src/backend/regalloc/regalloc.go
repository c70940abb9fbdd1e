// Package regalloc assigns MMIX registers to the temporaries of selected programs by iterated graph colouring,
// spilling temporaries to the frame until the interference graph is colourable.
package regalloc

import (
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prevc/src/backend/asm"
	"prevc/src/backend/liveness"
	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// state is a step of the allocation loop.
type state int

// Allocation is the result of allocating registers for one program.
type Allocation struct {
	Program *asm.Program                     // The program after spill rewriting.
	Regs    map[frames.Temp]regfile.Register // Register of every temporary of Program.
	Rounds  int                              // Number of colouring attempts.
	Spills  []frames.Temp                    // Spilled temporaries, in spill order.
	Live    *liveness.Result                 // Live sets of the final program.
	Graph   *liveness.Graph                  // Interference graph of the final program.
}

type allocator struct {
	prog  *asm.Program
	gen   *frames.Gen
	rf    regfile.RegisterFile
	log   *zap.Logger
	k     int
	state state

	live  *liveness.Result
	graph *liveness.Graph

	degree    map[frames.Temp]int
	removed   map[frames.Temp]bool
	simplify  []frames.Temp
	candidate map[frames.Temp]bool
	stack     util.Stack[frames.Temp]
	colours   map[frames.Temp]int
	actual    []frames.Temp

	touched map[frames.Temp]bool // Temporaries created by spill rewriting.
	spills  []frames.Temp
	rounds  int
}

// ---------------------
// ----- Constants -----
// ---------------------

const (
	stateBuild state = iota
	stateSimplify
	stateSelect
	stateRebuild
	stateDone
)

// ---------------------
// ----- Functions -----
// ---------------------

// AllocateAll allocates registers for every program. With threads > 1 the programs are allocated in parallel; each
// program owns its frame and instructions, and only the temporary generator is shared.
func AllocateAll(progs []*asm.Program, gen *frames.Gen, rf regfile.RegisterFile, threads int, log *zap.Logger) ([]*Allocation, error) {
	res := make([]*Allocation, len(progs))
	if threads <= 1 {
		for i1, e1 := range progs {
			a, err := Allocate(e1, gen, rf, log)
			if err != nil {
				return nil, err
			}
			res[i1] = a
		}
		return res, nil
	}

	perr := util.NewPerror()
	g := errgroup.Group{}
	g.SetLimit(threads)
	for i1, e1 := range progs {
		i1, e1 := i1, e1
		g.Go(func() error {
			a, err := Allocate(e1, gen, rf, log)
			if err != nil {
				perr.Append(err)
				return err
			}
			res[i1] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, perr.Err()
	}
	return res, nil
}

// Allocate colours the temporaries of prog with the K registers of rf. Temporaries that cannot be coloured are
// spilled to new slots of prog.Frame and the program is rewritten, until every temporary has a register. prog is
// modified in place.
func Allocate(prog *asm.Program, gen *frames.Gen, rf regfile.RegisterFile, log *zap.Logger) (*Allocation, error) {
	a := &allocator{
		prog:    prog,
		gen:     gen,
		rf:      rf,
		log:     log,
		k:       rf.K(),
		state:   stateBuild,
		touched: make(map[frames.Temp]bool),
	}

	for a.state != stateDone {
		var err error
		switch a.state {
		case stateBuild:
			err = a.build()
		case stateSimplify:
			a.simplifyGraph()
		case stateSelect:
			a.selectColours()
		case stateRebuild:
			err = a.rebuild()
		}
		if err != nil {
			return nil, err
		}
	}

	regs := make(map[frames.Temp]regfile.Register, len(a.colours))
	for t, c := range a.colours {
		regs[t] = rf.Get(c)
	}
	return &Allocation{
		Program: prog,
		Regs:    regs,
		Rounds:  a.rounds,
		Spills:  a.spills,
		Live:    a.live,
		Graph:   a.graph,
	}, nil
}

// build analyses liveness and builds the interference graph of the current program.
func (a *allocator) build() error {
	a.rounds++
	live, err := liveness.Analyze(a.prog.Instrs, []frames.Temp{a.prog.RV})
	if err != nil {
		if ce, ok := err.(*util.Error); ok && len(ce.Fragment) == 0 {
			ce.Fragment = string(a.prog.Frame.Label)
		}
		return err
	}
	a.live = live
	a.graph = liveness.Build(live)

	a.degree = make(map[frames.Temp]int, len(a.graph.Nodes))
	a.removed = make(map[frames.Temp]bool, len(a.graph.Nodes))
	a.candidate = make(map[frames.Temp]bool)
	a.simplify = a.simplify[:0]
	for _, e1 := range a.graph.Nodes {
		a.degree[e1.Temp] = e1.Degree()
		if e1.Degree() < a.k {
			a.simplify = append(a.simplify, e1.Temp)
		} else {
			a.candidate[e1.Temp] = true
		}
	}
	a.state = stateSimplify
	return nil
}

// simplifyGraph removes every node from the graph onto the select stack. Nodes of low degree go first; when none
// is left, the spill candidate of highest degree is pushed optimistically.
func (a *allocator) simplifyGraph() {
	for len(a.simplify) > 0 || len(a.candidate) > 0 {
		var t frames.Temp
		if len(a.simplify) > 0 {
			t = a.simplify[0]
			a.simplify = a.simplify[1:]
		} else {
			t = a.highest(a.candidate)
			delete(a.candidate, t)
		}
		a.remove(t)
	}
	a.state = stateSelect
}

// remove takes t out of the graph and decrements the degree of its neighbours.
func (a *allocator) remove(t frames.Temp) {
	a.removed[t] = true
	a.stack.Push(t)
	for _, e1 := range a.graph.Node(t).Adj {
		if a.removed[e1.Temp] {
			continue
		}
		a.degree[e1.Temp]--
		if a.degree[e1.Temp] == a.k-1 && a.candidate[e1.Temp] {
			delete(a.candidate, e1.Temp)
			a.simplify = append(a.simplify, e1.Temp)
		}
	}
}

// highest returns the member of ts with the highest degree in the graph, the lowest temporary on ties.
func (a *allocator) highest(ts map[frames.Temp]bool) frames.Temp {
	keys := make([]frames.Temp, 0, len(ts))
	for e1 := range ts {
		keys = append(keys, e1)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := a.graph.Node(keys[i]).Degree(), a.graph.Node(keys[j]).Degree()
		if di != dj {
			return di > dj
		}
		return keys[i] < keys[j]
	})
	return keys[0]
}

// selectColours pops the stack and gives every node the lowest colour not used by a coloured neighbour.
func (a *allocator) selectColours() {
	a.colours = make(map[frames.Temp]int, len(a.graph.Nodes))
	a.actual = a.actual[:0]
	used := make([]bool, a.k)
	for t, ok := a.stack.Pop(); ok; t, ok = a.stack.Pop() {
		for i1 := range used {
			used[i1] = false
		}
		for _, e1 := range a.graph.Node(t).Adj {
			if c, ok := a.colours[e1.Temp]; ok {
				used[c] = true
			}
		}
		c := -1
		for i1, e1 := range used {
			if !e1 {
				c = i1
				break
			}
		}
		if c < 0 {
			a.actual = append(a.actual, t)
			continue
		}
		a.colours[t] = c
	}

	if len(a.actual) == 0 {
		a.state = stateDone
	} else {
		a.state = stateRebuild
	}
}

// rebuild spills one temporary and rewrites the program. The spilled temporary is an actual spill not created by
// an earlier rewrite, or failing that any such temporary of the graph.
func (a *allocator) rebuild() error {
	untouched := make(map[frames.Temp]bool)
	for _, e1 := range a.actual {
		if !a.touched[e1] {
			untouched[e1] = true
		}
	}
	if len(untouched) == 0 {
		for _, e1 := range a.graph.Nodes {
			if !a.touched[e1.Temp] {
				untouched[e1.Temp] = true
			}
		}
	}
	if len(untouched) == 0 {
		return util.Internalf(string(a.prog.Frame.Label),
			"cannot colour with %d registers: every temporary is already a spill temporary", a.k)
	}

	t := a.highest(untouched)
	off := a.prog.Frame.Grow(8)
	a.spills = append(a.spills, t)
	a.log.Debug("spill",
		zap.String("fragment", string(a.prog.Frame.Label)),
		zap.Stringer("temp", t),
		zap.Int("round", a.rounds),
		zap.Int64("offset", off),
	)
	rewrite(a.prog, t, -off, a.gen, a.rf, a.touched)
	a.state = stateBuild
	return nil
}
