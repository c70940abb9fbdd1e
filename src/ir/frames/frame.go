// Package frames lays out stack frames for functions and assigns every variable, parameter and record component
// an access descriptor.
package frames

import (
	"fmt"
	"sort"
	"strings"

	"prevc/src/ir"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Label is a unique symbolic program address.
type Label string

// Temp is a virtual register.
type Temp int64

// Gen mints labels and temporaries. One Gen is shared by every phase of a compilation; it is safe for concurrent
// use.
type Gen struct {
	labels *util.Seq
	temps  *util.Seq
}

// Frame is the stack layout of one function. Only the register allocator changes a frame after layout, when it
// grows the locals block by one word per spill slot.
//
//	FP+8...      parameters
//	FP+0         static link (return value on exit)
//	FP-LocsSize  locals
//	FP-LocsSize-8  saved FP
//	FP-LocsSize-16 saved return address
//	SP+0...      outgoing arguments
type Frame struct {
	Label    Label
	Depth    int
	LocsSize int64
	ArgsSize int64
}

// Access describes where a variable lives: *AbsAccess or *RelAccess.
type Access interface {
	Size() int64
	access()
}

// AbsAccess is a module-level variable addressed by label.
type AbsAccess struct {
	Sz    int64
	Label Label
}

// RelAccess is a frame-relative variable, or a record component relative to its record (Depth 0).
type RelAccess struct {
	Sz     int64
	Offset int64
	Depth  int
}

// ---------------------
// ----- Constants -----
// ---------------------

// MainLabel labels the fragment holding the program's top-level statements.
const MainLabel Label = "_"

// ---------------------
// ----- Functions -----
// ---------------------

// NewGen returns a generator whose first label is L0 and first temporary is T0.
func NewGen() *Gen {
	return &Gen{labels: util.NewSeq(), temps: util.NewSeq()}
}

// NewLabel returns a fresh anonymous label.
func (g *Gen) NewLabel() Label {
	return Label(fmt.Sprintf("L%d", g.labels.Next()))
}

// NewTemp returns a fresh temporary.
func (g *Gen) NewTemp() Temp {
	return Temp(g.temps.Next())
}

// Temps returns the number of temporaries minted so far.
func (g *Gen) Temps() int64 {
	return g.temps.Peek()
}

// NamedLabel returns the label of a function with the given name.
func NamedLabel(name string) Label {
	return Label("_" + name)
}

func (l Label) String() string { return string(l) }

func (t Temp) String() string { return fmt.Sprintf("T%d", int64(t)) }

func (a *AbsAccess) Size() int64 { return a.Sz }
func (a *RelAccess) Size() int64 { return a.Sz }
func (*AbsAccess) access()       {}
func (*RelAccess) access()       {}

func (a *AbsAccess) String() string {
	return fmt.Sprintf("ABS(size=%d, label=%s)", a.Sz, a.Label)
}

func (a *RelAccess) String() string {
	return fmt.Sprintf("REL(size=%d, offset=%d, depth=%d)", a.Sz, a.Offset, a.Depth)
}

// Size returns the total frame size: locals, outgoing arguments, saved FP and return address.
func (f *Frame) Size() int64 {
	return f.LocsSize + f.ArgsSize + 2*ir.WordSize
}

// Grow extends the locals block by n bytes and returns the FP-relative offset of the new slot.
func (f *Frame) Grow(n int64) int64 {
	f.LocsSize += n
	return -f.LocsSize
}

func (f *Frame) String() string {
	return fmt.Sprintf("FRAME(%s, depth=%d, locs=%d, args=%d, size=%d)", f.Label, f.Depth, f.LocsSize, f.ArgsSize, f.Size())
}

// Layout is the result of frame evaluation for a whole program.
type Layout struct {
	Accesses map[ir.Decl]Access     // Variables, parameters and record components.
	Frames   map[*ir.FunDecl]*Frame // Functions with a body.
	Labels   map[*ir.FunDecl]Label  // Every function, including external ones.
	Main     *Frame                 // Frame of the top-level statements.
	Order    []ir.Decl              // Declarations in evaluation order.
	Funs     []*ir.FunDecl          // Functions with a body in evaluation order.
}

// Access returns the access of declaration d, or an internal error if d was never laid out.
func (l *Layout) Access(d ir.Decl) (Access, error) {
	if a, ok := l.Accesses[d]; ok {
		return a, nil
	}
	return nil, util.Internalf("", "no access for declaration %s", d.DeclName())
}

// Frame returns the frame of function f, or an internal error if f has no frame.
func (l *Layout) Frame(f *ir.FunDecl) (*Frame, error) {
	if fr, ok := l.Frames[f]; ok {
		return fr, nil
	}
	return nil, util.Internalf("", "no frame for function %s", f.Name)
}

// Label returns the entry label of function f.
func (l *Layout) Label(f *ir.FunDecl) (Label, error) {
	if lb, ok := l.Labels[f]; ok {
		return lb, nil
	}
	return "", util.Internalf("", "no label for function %s", f.Name)
}

// String lists frames and accesses in evaluation order.
func (l *Layout) String() string {
	sb := strings.Builder{}
	frames := make([]*Frame, 0, len(l.Frames)+1)
	frames = append(frames, l.Main)
	for _, e1 := range l.Funs {
		frames = append(frames, l.Frames[e1])
	}
	for _, e1 := range frames {
		sb.WriteString(e1.String())
		sb.WriteString("\n")
	}
	for _, e1 := range l.Order {
		a, ok := l.Accesses[e1]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s\t%v\n", e1.DeclName(), a))
	}
	return sb.String()
}

// SortedFrames returns the frames of all functions with a body and the main frame, sorted by label.
func (l *Layout) SortedFrames() []*Frame {
	res := make([]*Frame, 0, len(l.Frames)+1)
	res = append(res, l.Main)
	for _, e1 := range l.Frames {
		res = append(res, e1)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Label < res[j].Label })
	return res
}
