// Package lin linearizes intermediate code: every function body becomes one flat list of canonical statements,
// split into basic blocks and chained into traces.
package lin

import (
	"fmt"
	"strings"

	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Fragment is a unit of output: *DataFragment or *CodeFragment.
type Fragment interface {
	fragment()
	FragLabel() frames.Label
}

// DataFragment reserves Size bytes of module-level storage at Label.
type DataFragment struct {
	Label frames.Label
	Size  int64
}

// CodeFragment is the linear code of one function.
type CodeFragment struct {
	Frame  *frames.Frame
	Stmts  []imc.Stmt   // Canonical statements, starting with the entry label.
	RV     frames.Temp  // Holds the return value when control reaches Exit.
	Entry  frames.Label // First label of the body.
	Exit   frames.Label // Label of the epilogue; not part of Stmts.
	Blocks int          // Number of basic blocks before trace scheduling.
}

// ---------------------
// ----- Functions -----
// ---------------------

func (*DataFragment) fragment() {}
func (*CodeFragment) fragment() {}

func (f *DataFragment) FragLabel() frames.Label { return f.Label }
func (f *CodeFragment) FragLabel() frames.Label { return f.Frame.Label }

func (f *DataFragment) String() string {
	return fmt.Sprintf("DATA(%s, size=%d)", f.Label, f.Size)
}

func (f *CodeFragment) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("CODE(%s, entry=%s, exit=%s, rv=%s)\n", f.Frame, f.Entry, f.Exit, f.RV))
	for _, e1 := range f.Stmts {
		if _, ok := e1.(*imc.LabelStmt); !ok {
			sb.WriteString("  ")
		}
		sb.WriteString(e1.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Linearize turns the layout and intermediate code of a program into fragments: one data fragment per
// module-level variable, then one code fragment per function, then the top-level code fragment.
func Linearize(layout *frames.Layout, code *imc.Code, gen *frames.Gen, opt util.Options) ([]Fragment, error) {
	frags := make([]Fragment, 0, len(layout.Order)+len(code.Funs)+1)
	for _, e1 := range layout.Order {
		if acc, ok := layout.Accesses[e1].(*frames.AbsAccess); ok {
			frags = append(frags, &DataFragment{Label: acc.Label, Size: acc.Sz})
		}
	}

	for _, e1 := range code.Funs {
		fr, err := layout.Frame(e1)
		if err != nil {
			return nil, err
		}
		frag, err := linearize(fr, code.Bodies[e1], code.RVs[fr.Label], gen, opt)
		if err != nil {
			return nil, err
		}
		frags = append(frags, frag)
	}

	frag, err := linearize(layout.Main, code.Main, code.RVs[layout.Main.Label], gen, opt)
	if err != nil {
		return nil, err
	}
	return append(frags, frag), nil
}

// linearize builds the code fragment of a single function body.
func linearize(fr *frames.Frame, body imc.Expr, rv frames.Temp, gen *frames.Gen, opt util.Options) (*CodeFragment, error) {
	if body == nil {
		return nil, util.Internalf(string(fr.Label), "function has no intermediate code")
	}
	frag := &CodeFragment{
		Frame: fr,
		RV:    rv,
		Entry: gen.NewLabel(),
		Exit:  gen.NewLabel(),
	}

	stmts, err := Canonicalize(imc.Mov(imc.Temp(rv), body), gen, opt.BinopTemps)
	if err != nil {
		return nil, withFragment(err, fr.Label)
	}
	stmts = append([]imc.Stmt{imc.Lbl(frag.Entry)}, stmts...)

	blocks := BasicBlocks(stmts, frag.Exit, gen)
	frag.Blocks = len(blocks)
	if opt.Traces {
		frag.Stmts = Traces(blocks)
	} else {
		frag.Stmts = Flatten(blocks)
	}
	frag.Stmts = Cleanup(frag.Stmts, frag.Exit)
	return frag, nil
}

// withFragment names the fragment in an internal error that lacks one.
func withFragment(err error, l frames.Label) error {
	if ce, ok := err.(*util.Error); ok && len(ce.Fragment) == 0 {
		ce.Fragment = string(l)
	}
	return err
}
