// Package regfile provides the MMIX register file seen by the register allocator and the finalizer.
package regfile

import (
	"fmt"

	"prevc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Register is a physical MMIX register.
type Register interface {
	Id() int        // The register number, 0-255.
	String() string // String returns the assembler name of the register.
}

// RegisterFile is the set of registers available to compiled code: a palette of K general purpose registers
// $0..$K-1, and the fixed stack, frame and heap pointers.
type RegisterFile interface {
	SP() Register       // Returns the stack pointer register.
	FP() Register       // Returns the frame pointer register.
	HP() Register       // Returns the heap pointer register.
	Get(i int) Register // Returns the i'th palette register.
	K() int             // K returns the number of palette registers.
	Call() string       // Call returns the register operand of PUSHJ, which saves the whole palette.
}

// mmixRegister is a numbered register, optionally known by an alias.
type mmixRegister struct {
	id    int
	alias string
}

// mmix is the register file for a palette of k registers.
type mmix struct {
	k       int
	palette []Register
}

// ---------------------
// ----- Constants -----
// ---------------------

// Fixed registers. They lie above every palette register and below the special global registers.
const (
	SPId = 250
	FPId = 251
	HPId = 252
)

// Palette bounds.
const (
	MinK = 2
	MaxK = SPId - 1
)

// -------------------
// ----- Globals -----
// -------------------

var (
	sp Register = &mmixRegister{id: SPId, alias: "SP"}
	fp Register = &mmixRegister{id: FPId, alias: "FP"}
	hp Register = &mmixRegister{id: HPId, alias: "HP"}
)

// ---------------------
// ----- Functions -----
// ---------------------

// New returns the register file with k palette registers.
func New(k int) (RegisterFile, error) {
	if k < MinK || k > MaxK {
		return nil, util.Internalf("", "register count %d out of range [%d, %d]", k, MinK, MaxK)
	}
	rf := &mmix{k: k, palette: make([]Register, k)}
	for i1 := range rf.palette {
		rf.palette[i1] = &mmixRegister{id: i1}
	}
	return rf, nil
}

func (r *mmixRegister) Id() int { return r.id }

func (r *mmixRegister) String() string {
	if len(r.alias) > 0 {
		return r.alias
	}
	return fmt.Sprintf("$%d", r.id)
}

func (rf *mmix) SP() Register { return sp }
func (rf *mmix) FP() Register { return fp }
func (rf *mmix) HP() Register { return hp }
func (rf *mmix) K() int       { return rf.k }

// Get returns palette register i. It panics if i is not a palette index, since colours come from [0, K).
func (rf *mmix) Get(i int) Register {
	return rf.palette[i]
}

// Call returns "$K": PUSHJ renames registers so that the callee's $0 is the caller's $K+1.
func (rf *mmix) Call() string {
	return fmt.Sprintf("$%d", rf.k)
}
