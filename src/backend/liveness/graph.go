package liveness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/segmentio/encoding/json"

	"prevc/src/backend/asm"
	"prevc/src/ir/frames"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Node is a temporary in the interference graph.
type Node struct {
	Temp frames.Temp
	Adj  []*Node // Interfering nodes, sorted by temporary.
	adj  map[frames.Temp]*Node
}

// Pair is an unordered pair of temporaries, smallest first.
type Pair [2]frames.Temp

// Graph is the register interference graph of a program.
type Graph struct {
	Nodes []*Node // Sorted by temporary.
	index map[frames.Temp]*Node
	// Moves holds the temporaries of every move. A pair is true while the move is its only reason to share a
	// live range, and false once some other instruction forces it to interfere.
	Moves map[Pair]bool
}

type nodeDump struct {
	Temp frames.Temp   `json:"temp"`
	Adj  []frames.Temp `json:"adj"`
}

type graphDump struct {
	Nodes []nodeDump `json:"nodes"`
	Moves []moveDump `json:"moves,omitempty"`
}

type moveDump struct {
	Pair   Pair `json:"pair"`
	Exempt bool `json:"exempt"`
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewPair returns the pair of a and b.
func NewPair(a, b frames.Temp) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{a, b}
}

// Build creates the interference graph from live sets. Every temporary of the program is a node. A temporary
// defined by an instruction interferes with every other temporary live on exit from it, except that a move does
// not make its destination interfere with its source.
func Build(res *Result) *Graph {
	g := &Graph{
		index: make(map[frames.Temp]*Node),
		Moves: make(map[Pair]bool),
	}
	for _, e1 := range res.Instrs {
		for _, e2 := range e1.Defs() {
			g.node(e2)
		}
		for _, e2 := range e1.Uses() {
			g.node(e2)
		}
	}
	for _, e1 := range res.LiveOut {
		g.node(e1)
	}

	for i1, e1 := range res.Instrs {
		var src frames.Temp
		move := false
		if o, ok := e1.(*asm.Oper); ok && o.Move {
			src, move = o.Src[0], true
		}
		for _, e2 := range e1.Defs() {
			if move {
				g.Moves[NewPair(e2, src)] = true
			}
			for e3 := range res.Out[i1] {
				if e3 == e2 || (move && e3 == src) {
					continue
				}
				g.AddEdge(e2, e3)
			}
		}
	}
	for e1 := range g.Moves {
		if g.Interferes(e1[0], e1[1]) {
			g.Moves[e1] = false
		}
	}

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].Temp < g.Nodes[j].Temp })
	for _, e1 := range g.Nodes {
		e1.Adj = make([]*Node, 0, len(e1.adj))
		for _, e2 := range e1.adj {
			e1.Adj = append(e1.Adj, e2)
		}
		sort.Slice(e1.Adj, func(i, j int) bool { return e1.Adj[i].Temp < e1.Adj[j].Temp })
	}
	return g
}

// node returns the node of t, creating it if needed.
func (g *Graph) node(t frames.Temp) *Node {
	if n, ok := g.index[t]; ok {
		return n
	}
	n := &Node{Temp: t, adj: make(map[frames.Temp]*Node)}
	g.index[t] = n
	g.Nodes = append(g.Nodes, n)
	return n
}

// AddEdge makes a and b interfere.
func (g *Graph) AddEdge(a, b frames.Temp) {
	if a == b {
		return
	}
	na, nb := g.node(a), g.node(b)
	na.adj[b] = nb
	nb.adj[a] = na
}

// Node returns the node of t, or nil if t is not in the graph.
func (g *Graph) Node(t frames.Temp) *Node {
	return g.index[t]
}

// Interferes reports whether a and b interfere.
func (g *Graph) Interferes(a, b frames.Temp) bool {
	n, ok := g.index[a]
	if !ok {
		return false
	}
	_, ok = n.adj[b]
	return ok
}

// Degree returns the number of nodes interfering with n.
func (n *Node) Degree() int {
	return len(n.adj)
}

// Edges returns the number of edges in the graph.
func (g *Graph) Edges() int {
	e := 0
	for _, e1 := range g.Nodes {
		e += len(e1.adj)
	}
	return e / 2
}

// String lists every node with its neighbours.
func (g *Graph) String() string {
	sb := strings.Builder{}
	for _, e1 := range g.Nodes {
		adj := make([]string, len(e1.Adj))
		for i2, e2 := range e1.Adj {
			adj[i2] = e2.Temp.String()
		}
		sb.WriteString(fmt.Sprintf("%s\t(%d): %s\n", e1.Temp, len(adj), strings.Join(adj, " ")))
	}
	return sb.String()
}

// JSON encodes the nodes and moves of the graph.
func (g *Graph) JSON() ([]byte, error) {
	dump := graphDump{Nodes: make([]nodeDump, len(g.Nodes))}
	for i1, e1 := range g.Nodes {
		adj := make([]frames.Temp, len(e1.Adj))
		for i2, e2 := range e1.Adj {
			adj[i2] = e2.Temp
		}
		dump.Nodes[i1] = nodeDump{Temp: e1.Temp, Adj: adj}
	}
	for e1, e2 := range g.Moves {
		dump.Moves = append(dump.Moves, moveDump{Pair: e1, Exempt: e2})
	}
	sort.Slice(dump.Moves, func(i, j int) bool {
		a, b := dump.Moves[i].Pair, dump.Moves[j].Pair
		return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1])
	})
	return json.Marshal(dump)
}
