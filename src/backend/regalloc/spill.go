package regalloc

import (
	"fmt"

	"prevc/src/backend/asm"
	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
)

// rewrite moves temporary t of prog to the frame slot at FP-slot. Every operation using t loads a fresh temporary
// from the slot first, and every operation defining t stores it to the slot afterwards; an operation that does
// both uses one temporary for both. If t holds the return value, it is reloaded after the exit label. Every
// temporary created here is recorded in touched.
func rewrite(prog *asm.Program, t frames.Temp, slot int64, gen *frames.Gen, rf regfile.RegisterFile, touched map[frames.Temp]bool) {
	fp := rf.FP().String()
	fresh := func() frames.Temp {
		n := gen.NewTemp()
		touched[n] = true
		return n
	}

	// address returns the operations computing FP-slot into a fresh temporary, and that temporary.
	address := func() ([]asm.Instr, frames.Temp) {
		a := fresh()
		if slot <= 255 {
			return []asm.Instr{&asm.Oper{Op: "SUB", Args: fmt.Sprintf("`d0,%s,%d", fp, slot), Dst: []frames.Temp{a}}}, a
		}
		var res []asm.Instr
		for _, e1 := range asm.ConstOps(slot) {
			o := &asm.Oper{Op: e1.Op, Args: e1.Template(), Dst: []frames.Temp{a}}
			if e1.Reads() {
				o.Src = []frames.Temp{a}
			}
			res = append(res, o)
		}
		return append(res, &asm.Oper{Op: "SUB", Args: fmt.Sprintf("`d0,%s,`s0", fp), Dst: []frames.Temp{a}, Src: []frames.Temp{a}}), a
	}
	load := func(n frames.Temp) []asm.Instr {
		res, a := address()
		return append(res, &asm.Oper{Op: "LDO", Args: "`d0,`s0,0", Dst: []frames.Temp{n}, Src: []frames.Temp{a}})
	}
	store := func(n frames.Temp) []asm.Instr {
		res, a := address()
		return append(res, &asm.Oper{Op: "STO", Args: "`s0,`s1,0", Src: []frames.Temp{n, a}})
	}

	res := make([]asm.Instr, 0, len(prog.Instrs)+8)
	for _, e1 := range prog.Instrs {
		o, ok := e1.(*asm.Oper)
		if !ok {
			res = append(res, e1)
			continue
		}
		uses, defs := replaced(o.Src, t), replaced(o.Dst, t)
		if !uses && !defs {
			res = append(res, o)
			continue
		}

		n := fresh()
		c := *o
		c.Src = substitute(o.Src, t, n)
		c.Dst = substitute(o.Dst, t, n)
		if uses {
			res = append(res, load(n)...)
		}
		res = append(res, &c)
		if defs {
			res = append(res, store(n)...)
		}
	}

	if prog.RV == t {
		n := fresh()
		res = append(res, load(n)...)
		prog.RV = n
	}
	prog.Instrs = res
}

func replaced(ts []frames.Temp, t frames.Temp) bool {
	for _, e1 := range ts {
		if e1 == t {
			return true
		}
	}
	return false
}

// substitute returns a copy of ts with t replaced by n.
func substitute(ts []frames.Temp, t, n frames.Temp) []frames.Temp {
	if ts == nil {
		return nil
	}
	res := make([]frames.Temp, len(ts))
	for i1, e1 := range ts {
		if e1 == t {
			e1 = n
		}
		res[i1] = e1
	}
	return res
}
