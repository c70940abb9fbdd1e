// Package finalize writes the complete MMIXAL program: register aliases, the data segment, the startup code, every
// function with its prologue and epilogue, and the runtime routines the program calls.
package finalize

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"prevc/src/backend/asm"
	"prevc/src/backend/regalloc"
	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
	"prevc/src/ir/lin"
	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// line is one assembler line. Every label but the first is written as a separate "L IS @" line.
type line struct {
	labels []string
	op     string
	args   string
}

// emitter accumulates the lines of the program.
type emitter struct {
	rf    regfile.RegisterFile
	lines []line
}

// ---------------------
// ----- Functions -----
// ---------------------

// Emit writes the program made of the data fragments and the allocated code to w. Calls to functions that are
// neither compiled nor runtime routines are returned as linkage warnings; they do not stop emission.
func Emit(w *util.Writer, data []*lin.DataFragment, code []*regalloc.Allocation, rf regfile.RegisterFile,
	opt util.Options, log *zap.Logger) (warnings error, err error) {
	defined := make(map[frames.Label]bool, len(code))
	for _, e1 := range code {
		defined[e1.Program.Frame.Label] = true
	}
	if !defined[frames.MainLabel] {
		return nil, util.Internalf(string(frames.MainLabel), "no top-level code fragment")
	}

	// Referenced runtime routines and unresolved callees.
	used := make(map[frames.Label]bool)
	for _, e1 := range code {
		for _, e2 := range e1.Program.Calls() {
			switch {
			case defined[e2]:
			case isRuntime(e2):
				used[e2] = true
			default:
				warn := util.Linkagef(string(e1.Program.Frame.Label), "call to undefined function %s", e2)
				log.Warn("unresolved call",
					zap.String("fragment", string(e1.Program.Frame.Label)),
					zap.String("callee", string(e2)),
				)
				warnings = multierr.Append(warnings, warn)
			}
		}
	}

	em := emitter{rf: rf}
	em.aliases()
	em.data(data, used)
	em.startup(opt)
	for _, e1 := range code {
		if err := em.function(e1); err != nil {
			return warnings, err
		}
	}
	for _, e1 := range runtime {
		if used[e1.label] {
			em.lines = append(em.lines, e1.code...)
		}
	}

	em.lines = removeJumps(em.lines)
	em.write(w)
	return warnings, nil
}

func (em *emitter) ins(op string, args ...string) {
	em.lines = append(em.lines, line{op: op, args: strings.Join(args, ",")})
}

// label attaches l to the next instruction.
func (em *emitter) label(l string) {
	em.lines = append(em.lines, line{labels: []string{l}})
}

func (em *emitter) aliases() {
	for _, e1 := range []regfile.Register{em.rf.SP(), em.rf.FP(), em.rf.HP()} {
		em.lines = append(em.lines, line{labels: []string{e1.String()}, op: "IS", args: fmt.Sprintf("$%d", e1.Id())})
	}
}

// data lays out module-level variables and the runtime data used by the referenced routines.
func (em *emitter) data(data []*lin.DataFragment, used map[frames.Label]bool) {
	em.ins("LOC", "Data_Segment")
	em.ins("GREG", "@")
	for _, e1 := range data {
		words := (e1.Size + 7) / 8
		if words < 1 {
			words = 1
		}
		zeros := strings.TrimSuffix(strings.Repeat("0,", int(words)), ",")
		em.lines = append(em.lines, line{labels: []string{string(e1.Label)}, op: "OCTA", args: zeros})
	}

	need := make(map[string]bool)
	for _, e1 := range runtime {
		if used[e1.label] {
			for _, e2 := range e1.data {
				need[e2] = true
			}
		}
	}
	for _, e1 := range runtimeDataOrder {
		if need[e1] {
			em.lines = append(em.lines, runtimeData[e1])
		}
	}
}

// startup sets up the global registers, calls the top-level fragment and halts.
func (em *emitter) startup(opt util.Options) {
	sp, fp, hp := em.rf.SP().String(), em.rf.FP().String(), em.rf.HP().String()
	em.ins("LOC", "#100")
	em.label("Main")
	em.ins("PUT", "rG", fmt.Sprintf("%d", regfile.SPId))
	em.ins("SETH", fp, fmt.Sprintf("%d", opt.StackBase))
	em.ins("SUB", fp, fp, "8")
	em.ins("SET", sp, fp)
	em.ins("SETH", hp, fmt.Sprintf("%d", opt.HeapBase))
	em.ins("ADD", hp, hp, "8")
	em.ins("PUSHJ", em.rf.Call(), string(frames.MainLabel))
	em.ins("TRAP", "0", "Halt", "0")
}

// constant loads v into register reg.
func (em *emitter) constant(reg string, v int64) {
	for _, e1 := range asm.ConstOps(v) {
		em.ins(e1.Op, e1.Render(reg))
	}
}

// function writes the prologue, the body and the epilogue of an allocated program.
//
// The prologue saves the caller's FP at FP-locs-8 and the return address at FP-locs-16 of the new frame, then
// moves FP to the caller's SP and SP below the new frame. The epilogue stores the return value at FP+0 and
// undoes the prologue.
func (em *emitter) function(a *regalloc.Allocation) error {
	p := a.Program
	fr := p.Frame
	sp, fp := em.rf.SP().String(), em.rf.FP().String()
	r0, r1 := em.rf.Get(0).String(), em.rf.Get(1).String()
	rv, ok := a.Regs[p.RV]
	if !ok {
		return util.Internalf(string(fr.Label), "return value %s has no register", p.RV)
	}

	em.lines = append(em.lines, line{op: "%", args: fr.String()})
	em.label(string(fr.Label))
	em.constant(r0, fr.LocsSize+8)
	em.ins("SUB", r1, sp, r0)
	em.ins("STO", fp, r1, "0")
	em.ins("SUB", r1, r1, "8")
	em.ins("GET", r0, "rJ")
	em.ins("STO", r0, r1, "0")
	em.ins("SET", fp, sp)
	if size := fr.Size(); size <= 255 {
		em.ins("SUB", sp, sp, fmt.Sprintf("%d", size))
	} else {
		em.constant(r0, size)
		em.ins("SUB", sp, sp, r0)
	}

	for _, e1 := range p.Instrs {
		switch e1 := e1.(type) {
		case *asm.Label:
			em.label(string(e1.Label))
		case *asm.Oper:
			for _, e2 := range [][]frames.Temp{e1.Dst, e1.Src} {
				for _, e3 := range e2 {
					if _, ok := a.Regs[e3]; !ok {
						return util.Internalf(string(fr.Label), "%s in %q has no register", e3, e1)
					}
				}
			}
			em.ins(e1.Op, e1.Operands(a.Regs))
		}
	}

	em.ins("STO", rv.String(), fp, "0")
	em.constant(r0, fr.LocsSize+8)
	em.ins("SUB", r1, fp, r0)
	em.ins("LDO", fp, r1, "0")
	em.ins("SUB", r1, r1, "8")
	em.ins("LDO", r0, r1, "0")
	em.ins("PUT", "rJ", r0)
	em.constant(r0, fr.Size())
	em.ins("ADD", sp, sp, r0)
	em.ins("POP", "0", "0")
	return nil
}

// removeJumps drops every JMP to a label attached to the next instruction, and slides labels onto the
// instruction that follows them.
func removeJumps(lines []line) []line {
	// Slide first, so that every label sits on an instruction.
	slid := make([]line, 0, len(lines))
	var pending []string
	for _, e1 := range lines {
		if e1.op == "%" {
			slid = append(slid, e1)
			continue
		}
		pending = append(pending, e1.labels...)
		if len(e1.op) == 0 {
			continue
		}
		e1.labels, pending = pending, nil
		slid = append(slid, e1)
	}
	if len(pending) > 0 {
		slid = append(slid, line{labels: pending, op: "SWYM"})
	}

	res := make([]line, 0, len(slid))
	for i1, e1 := range slid {
		if e1.op == "JMP" && i1+1 < len(slid) && contains(slid[i1+1].labels, e1.args) {
			if len(e1.labels) > 0 {
				slid[i1+1].labels = append(e1.labels, slid[i1+1].labels...)
			}
			continue
		}
		res = append(res, e1)
	}
	return res
}

func contains(ss []string, s string) bool {
	for _, e1 := range ss {
		if e1 == s {
			return true
		}
	}
	return false
}

// write renders the lines in MMIXAL layout.
func (em *emitter) write(w *util.Writer) {
	for _, e1 := range em.lines {
		if e1.op == "%" {
			w.Comment(e1.args)
			continue
		}
		for _, e2 := range e1.labels[min(1, len(e1.labels)):] {
			w.Line(e2, "IS", "@")
		}
		label := ""
		if len(e1.labels) > 0 {
			label = e1.labels[0]
		}
		w.Line(label, e1.op, e1.args)
	}
}
