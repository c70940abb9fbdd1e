package lin

import (
	"prevc/src/ir/frames"
	"prevc/src/ir/imc"
)

// Block is a basic block: it starts with its label and ends with a jump or conditional jump.
type Block struct {
	Label frames.Label
	Stmts []imc.Stmt
}

// BasicBlocks splits canonical statements into basic blocks. Blocks without a leading label get a fresh one, and
// a block that would fall through gets an explicit jump to its successor; the last block jumps to exit.
func BasicBlocks(stmts []imc.Stmt, exit frames.Label, gen *frames.Gen) []*Block {
	var res []*Block
	var cur *Block

	closeWith := func(l frames.Label) {
		cur.Stmts = append(cur.Stmts, &imc.Jump{Label: l})
		res = append(res, cur)
		cur = nil
	}

	for _, e1 := range stmts {
		if l, ok := e1.(*imc.LabelStmt); ok {
			if cur != nil {
				closeWith(l.Label)
			}
			cur = &Block{Label: l.Label, Stmts: []imc.Stmt{l}}
			continue
		}
		if cur == nil {
			l := gen.NewLabel()
			cur = &Block{Label: l, Stmts: []imc.Stmt{imc.Lbl(l)}}
		}
		cur.Stmts = append(cur.Stmts, e1)
		switch e1.(type) {
		case *imc.Jump, *imc.CJump:
			res = append(res, cur)
			cur = nil
		}
	}
	if cur != nil {
		closeWith(exit)
	}
	return res
}

// Traces chains blocks into traces. From each unvisited block the trace follows the jump target, or for a
// conditional jump the false target and then the true target, until it reaches a visited block or leaves the
// function. Every block is placed exactly once.
func Traces(blocks []*Block) []imc.Stmt {
	byLabel := make(map[frames.Label]*Block, len(blocks))
	for _, e1 := range blocks {
		byLabel[e1.Label] = e1
	}
	visited := make(map[*Block]bool, len(blocks))

	res := make([]imc.Stmt, 0, len(blocks)*4)
	for _, e1 := range blocks {
		for b := e1; b != nil && !visited[b]; {
			visited[b] = true
			res = append(res, b.Stmts...)

			var next *Block
			switch j := b.Stmts[len(b.Stmts)-1].(type) {
			case *imc.Jump:
				next = byLabel[j.Label]
			case *imc.CJump:
				if n := byLabel[j.Neg]; n != nil && !visited[n] {
					next = n
				} else {
					next = byLabel[j.Pos]
				}
			}
			b = next
		}
	}
	return res
}

// Flatten concatenates blocks in their original order.
func Flatten(blocks []*Block) []imc.Stmt {
	var res []imc.Stmt
	for _, e1 := range blocks {
		res = append(res, e1.Stmts...)
	}
	return res
}

// Cleanup removes jumps to the immediately following label and a final jump to exit, which falls through into
// the epilogue.
func Cleanup(stmts []imc.Stmt, exit frames.Label) []imc.Stmt {
	res := make([]imc.Stmt, 0, len(stmts))
	for i1, e1 := range stmts {
		if j, ok := e1.(*imc.Jump); ok {
			if i1+1 < len(stmts) {
				if l, ok := stmts[i1+1].(*imc.LabelStmt); ok && l.Label == j.Label {
					continue
				}
			} else if j.Label == exit {
				continue
			}
		}
		res = append(res, e1)
	}
	return res
}
