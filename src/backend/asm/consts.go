package asm

import (
	"fmt"
	"strings"
)

// ConstOp is one step of loading a constant. Args refers to the target register as `d when written and `s when
// also read.
type ConstOp struct {
	Op   string
	Args string
}

var (
	setOps = [4]string{"SETL", "SETML", "SETMH", "SETH"}
	incOps = [4]string{"INCL", "INCML", "INCMH", "INCH"}
)

// ConstOps returns the instructions that load v into a register.
func ConstOps(v int64) []ConstOp {
	switch {
	case v == 0:
		return []ConstOp{{Op: "SETL", Args: "`d,0"}}
	case v < 0 && v >= -255:
		return []ConstOp{{Op: "NEG", Args: fmt.Sprintf("`d,0,%d", -v)}}
	case v < 0 && v >= -65535:
		return []ConstOp{
			{Op: "SETL", Args: fmt.Sprintf("`d,%d", -v)},
			{Op: "NEG", Args: "`d,0,`s"},
		}
	}

	// Wyde by wyde on the two's complement bit pattern. SET clears every other wyde, so later wydes are added.
	u := uint64(v)
	var res []ConstOp
	for i1 := 0; i1 < 4; i1++ {
		w := (u >> (16 * i1)) & 0xffff
		if w == 0 {
			continue
		}
		if len(res) == 0 {
			res = append(res, ConstOp{Op: setOps[i1], Args: fmt.Sprintf("`d,%d", w)})
		} else {
			res = append(res, ConstOp{Op: incOps[i1], Args: fmt.Sprintf("`s,%d", w)})
		}
	}
	return res
}

// Reads reports whether the step reads the target register.
func (c ConstOp) Reads() bool {
	return strings.Contains(c.Args, "`s")
}

// Render substitutes reg for the target register.
func (c ConstOp) Render(reg string) string {
	return strings.NewReplacer("`d", reg, "`s", reg).Replace(c.Args)
}

// Template returns the operand template of the step for a target that is both Dst[0] and, when read, Src[0].
func (c ConstOp) Template() string {
	return strings.NewReplacer("`d", "`d0", "`s", "`d0").Replace(c.Args)
}
