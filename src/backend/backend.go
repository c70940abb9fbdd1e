// Package backend runs the compiler pipeline on an annotated syntax tree: frame layout, intermediate code,
// linearization, instruction selection, liveness analysis, register allocation and final emission.
package backend

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"prevc/src/backend/asm"
	"prevc/src/backend/finalize"
	"prevc/src/backend/liveness"
	"prevc/src/backend/regalloc"
	"prevc/src/backend/regfile"
	"prevc/src/ir"
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
	"prevc/src/ir/lin"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// allocDump is the JSON form of one register allocation.
type allocDump struct {
	Fragment string            `json:"fragment"`
	Rounds   int               `json:"rounds"`
	Spills   []string          `json:"spills"`
	Frame    string            `json:"frame"`
	Regs     map[string]string `json:"registers"`
}

// compiler holds the state shared by the phases of one compilation.
type compiler struct {
	opt util.Options
	log *zap.Logger
	gen *frames.Gen
	rf  regfile.RegisterFile
	w   *util.Writer
}

// ---------------------
// ----- Functions -----
// ---------------------

// Compile compiles prog and writes the result of the last phase selected by opt.Phase to w: an MMIXAL program when
// the pipeline runs to completion, a dump of the phase's result otherwise. Linkage problems are returned as
// warnings and never stop compilation.
func Compile(w *util.Writer, prog *ir.BlockExpr, opt util.Options, log *zap.Logger) (warnings error, err error) {
	rf, err := regfile.New(opt.Registers)
	if err != nil {
		return nil, err
	}
	c := compiler{opt: opt, log: log, gen: frames.NewGen(), rf: rf, w: w}

	// Frame layout.
	start := time.Now()
	layout, err := frames.Evaluate(prog, c.gen)
	if err != nil {
		return nil, err
	}
	c.phase(util.PhaseFrames, start, zap.Int("frames", len(layout.Frames)+1), zap.Int("accesses", len(layout.Accesses)))
	if opt.Phase == util.PhaseFrames {
		w.Write("%s", layout.String())
		return nil, nil
	}

	// Intermediate code.
	start = time.Now()
	code, err := imc.Generate(prog, layout, c.gen)
	if err != nil {
		return nil, err
	}
	c.phase(util.PhaseImcGen, start, zap.Int("functions", len(code.Funs)), zap.Int("expressions", len(code.Exprs)))
	if opt.Phase == util.PhaseImcGen {
		c.dumpCode(layout, code)
		return nil, nil
	}

	// Linearization.
	start = time.Now()
	frags, err := lin.Linearize(layout, code, c.gen, opt)
	if err != nil {
		return nil, err
	}
	var data []*lin.DataFragment
	var funcs []*lin.CodeFragment
	for _, e1 := range frags {
		switch e1 := e1.(type) {
		case *lin.DataFragment:
			data = append(data, e1)
		case *lin.CodeFragment:
			funcs = append(funcs, e1)
		}
	}
	c.phase(util.PhaseLinCode, start, zap.Int("data", len(data)), zap.Int("code", len(funcs)))
	if opt.Phase == util.PhaseLinCode {
		for _, e1 := range frags {
			w.Write("%s\n", e1)
		}
		return nil, nil
	}

	// Instruction selection.
	start = time.Now()
	progs := make([]*asm.Program, len(funcs))
	for i1, e1 := range funcs {
		p, err := asm.Select(e1, c.gen, code.FP, rf)
		if err != nil {
			return nil, err
		}
		progs[i1] = p
	}
	c.phase(util.PhaseAsmGen, start, zap.Int("programs", len(progs)), zap.Int64("temps", c.gen.Temps()))
	if opt.Phase == util.PhaseAsmGen {
		for _, e1 := range progs {
			w.Write("%s\n", e1.Format(nil))
		}
		return nil, nil
	}

	// Liveness analysis on the selected code. Register allocation repeats it after every spill.
	if opt.Phase == util.PhaseLiveness {
		start = time.Now()
		if err := c.dumpLiveness(progs); err != nil {
			return nil, err
		}
		c.phase(util.PhaseLiveness, start, zap.Int("programs", len(progs)))
		return nil, nil
	}

	// Register allocation.
	start = time.Now()
	allocs, err := regalloc.AllocateAll(progs, c.gen, rf, opt.Threads, log)
	if err != nil {
		return nil, err
	}
	spills := 0
	for _, e1 := range allocs {
		spills += len(e1.Spills)
	}
	c.phase(util.PhaseRegAlloc, start, zap.Int("programs", len(allocs)), zap.Int("spills", spills))
	if opt.Phase == util.PhaseRegAlloc {
		return nil, c.dumpAllocations(allocs)
	}

	// Emission.
	start = time.Now()
	warnings, err = finalize.Emit(w, data, allocs, rf, opt, log)
	if err != nil {
		return warnings, err
	}
	c.phase(util.PhaseFinalize, start)
	return warnings, nil
}

// phase logs the completion of phase p.
func (c *compiler) phase(p int, start time.Time, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("phase", util.PhaseName(p)), zap.Duration("elapsed", time.Since(start))}, fields...)
	c.log.Debug("phase done", fields...)
}

// dumpCode writes the intermediate code of every function and of the top-level statements.
func (c *compiler) dumpCode(layout *frames.Layout, code *imc.Code) {
	for _, e1 := range code.Funs {
		fr := layout.Frames[e1]
		c.w.Comment(fr.String())
		c.w.Write("%s\n", imc.Mov(imc.Temp(code.RVs[fr.Label]), code.Bodies[e1]))
	}
	c.w.Comment(layout.Main.String())
	c.w.Write("%s\n", imc.Mov(imc.Temp(code.RVs[frames.MainLabel]), code.Main))
}

// dumpLiveness writes the live sets and the interference graph of every program.
func (c *compiler) dumpLiveness(progs []*asm.Program) error {
	for _, e1 := range progs {
		res, err := liveness.Analyze(e1.Instrs, []frames.Temp{e1.RV})
		if err != nil {
			return err
		}
		g := liveness.Build(res)
		if !c.opt.JSON {
			c.w.Comment(e1.Frame.String())
			c.w.Write("%s%s\n", res.String(), g.String())
			continue
		}
		live, err := res.JSON()
		if err != nil {
			return fmt.Errorf("failed to encode liveness of %s: %w", e1.Frame.Label, err)
		}
		graph, err := g.JSON()
		if err != nil {
			return fmt.Errorf("failed to encode interference graph of %s: %w", e1.Frame.Label, err)
		}
		c.w.Write("%s\n%s\n", live, graph)
	}
	return nil
}

// dumpAllocations writes every program with registers substituted for temporaries.
func (c *compiler) dumpAllocations(allocs []*regalloc.Allocation) error {
	for _, e1 := range allocs {
		if !c.opt.JSON {
			c.w.Comment(fmt.Sprintf("rounds=%d spills=%v", e1.Rounds, e1.Spills))
			c.w.Write("%s\n", e1.Program.Format(e1.Regs))
			continue
		}
		d := allocDump{
			Fragment: string(e1.Program.Frame.Label),
			Rounds:   e1.Rounds,
			Spills:   make([]string, len(e1.Spills)),
			Frame:    e1.Program.Frame.String(),
			Regs:     make(map[string]string, len(e1.Regs)),
		}
		for i1, e2 := range e1.Spills {
			d.Spills[i1] = e2.String()
		}
		for t, r := range e1.Regs {
			d.Regs[t.String()] = r.String()
		}
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to encode allocation of %s: %w", d.Fragment, err)
		}
		c.w.Write("%s\n", b)
	}
	return nil
}
