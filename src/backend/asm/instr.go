// Package asm defines MMIX assembler instructions over temporaries and selects them from linear intermediate code.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"prevc/src/backend/regfile"
	"prevc/src/ir/frames"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Instr is an assembler instruction: *Oper or *Label.
type Instr interface {
	Uses() []frames.Temp
	Defs() []frames.Temp
	String() string
	instr()
}

// Oper is an operation. Args is an operand template in which `d<n> stands for Dst[n] and `s<n> for Src[n]; every
// other character is copied as is. A temporary may be listed in Src without being referenced by the template, to
// record that the operation reads it.
type Oper struct {
	Op    string
	Args  string
	Dst   []frames.Temp
	Src   []frames.Temp
	Jumps []frames.Label // Labels control may transfer to.
	Jump  bool           // Set true if control never falls through to the next instruction.
	Move  bool           // Set true if the operation copies Src[0] to Dst[0] and does nothing else.
	Call  frames.Label   // Callee of a PUSHJ.
}

// Label marks a position in the instruction stream.
type Label struct {
	Label frames.Label
}

// Program is the selected code of one function.
type Program struct {
	Frame  *frames.Frame
	Instrs []Instr
	RV     frames.Temp  // Holds the return value at Exit.
	Entry  frames.Label // First label of the body.
	Exit   frames.Label // Label of the epilogue; the last instruction.
}

// ---------------------
// ----- Functions -----
// ---------------------

func (*Oper) instr()  {}
func (*Label) instr() {}

func (o *Oper) Uses() []frames.Temp { return o.Src }
func (o *Oper) Defs() []frames.Temp { return o.Dst }

func (*Label) Uses() []frames.Temp { return nil }
func (*Label) Defs() []frames.Temp { return nil }

func (o *Oper) String() string {
	return o.Format(nil)
}

func (l *Label) String() string {
	return string(l.Label)
}

// Format renders the operation with registers from regs. Temporaries missing from regs render as temporaries.
func (o *Oper) Format(regs map[frames.Temp]regfile.Register) string {
	if len(o.Args) == 0 {
		return o.Op
	}
	return o.Op + "\t" + o.Operands(regs)
}

// Operands renders the operand template with registers from regs.
func (o *Oper) Operands(regs map[frames.Temp]regfile.Register) string {
	sb := strings.Builder{}
	for i1 := 0; i1 < len(o.Args); i1++ {
		c := o.Args[i1]
		if c != '`' || i1+2 >= len(o.Args) {
			sb.WriteByte(c)
			continue
		}
		j := i1 + 2
		for j < len(o.Args) && o.Args[j] >= '0' && o.Args[j] <= '9' {
			j++
		}
		if j == i1+2 {
			sb.WriteByte(c)
			continue
		}
		n, _ := strconv.Atoi(o.Args[i1+2 : j])
		var ts []frames.Temp
		switch o.Args[i1+1] {
		case 'd':
			ts = o.Dst
		case 's':
			ts = o.Src
		default:
			sb.WriteByte(c)
			continue
		}
		if n >= len(ts) {
			sb.WriteString(o.Args[i1:j])
		} else {
			sb.WriteString(render(ts[n], regs))
		}
		i1 = j - 1
	}
	return sb.String()
}

// render returns the register of t, or t itself when it has none.
func render(t frames.Temp, regs map[frames.Temp]regfile.Register) string {
	if r, ok := regs[t]; ok {
		return r.String()
	}
	return t.String()
}

// Format renders the whole program, one instruction per line, with labels in the first column.
func (p *Program) Format(regs map[frames.Temp]regfile.Register) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%% %s\n", p.Frame))
	for _, e1 := range p.Instrs {
		switch e1 := e1.(type) {
		case *Label:
			sb.WriteString(string(e1.Label))
		case *Oper:
			sb.WriteString("\t")
			sb.WriteString(e1.Format(regs))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Temps returns every temporary used or defined by the program, in order of first appearance.
func (p *Program) Temps() []frames.Temp {
	seen := make(map[frames.Temp]bool)
	var res []frames.Temp
	for _, e1 := range p.Instrs {
		for _, e2 := range [][]frames.Temp{e1.Defs(), e1.Uses()} {
			for _, e3 := range e2 {
				if !seen[e3] {
					seen[e3] = true
					res = append(res, e3)
				}
			}
		}
	}
	return res
}

// Calls returns the callees of every PUSHJ in the program, in order of first appearance.
func (p *Program) Calls() []frames.Label {
	seen := make(map[frames.Label]bool)
	var res []frames.Label
	for _, e1 := range p.Instrs {
		if o, ok := e1.(*Oper); ok && len(o.Call) > 0 && !seen[o.Call] {
			seen[o.Call] = true
			res = append(res, o.Call)
		}
	}
	return res
}
