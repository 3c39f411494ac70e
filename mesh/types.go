package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/ugrefine/arena"
	"github.com/notargets/ugrefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// Class is the refinement class of an element
type Class uint8

const (
	NoClass Class = iota
	Yellow        // copy
	Green         // irregular closure
	Red           // regular, rule complete
)

func (c Class) String() string {
	return [...]string{"NoClass", "Yellow", "Green", "Red"}[c]
}

// NodeType records which father object a node was created from
type NodeType uint8

const (
	CornerNode NodeType = iota
	MidNode
	SideNode
	CenterNode
)

func (t NodeType) String() string {
	return [...]string{"Corner", "Mid", "Side", "Center"}[t]
}

// Priority distinguishes the owning copy of an object from ghost copies
type Priority uint8

const (
	Master Priority = iota
	Ghost
)

func (p Priority) String() string {
	if p == Ghost {
		return "Ghost"
	}
	return "Master"
}

// NoGreenKey marks an element that was never green refined
const NoGreenKey = ^uint64(0)

// Vertex is a geometric position shared by a node and all its corner sons
type Vertex struct {
	H      arena.Handle
	Pos    r3.Vec
	Level  int      // level of the node that created it
	Father *Element // element the vertex was created inside, nil on level 0
}

// Node is a topological vertex on one grid level
type Node struct {
	H     arena.Handle
	GID   int64
	Type  NodeType
	Level int

	Vertex *Vertex

	// Father object on the next coarser level, by Type
	FatherNode *Node     // CornerNode
	FatherEdge *Edge     // MidNode
	FatherFace []*Node   // SideNode: corners of the father side
	FatherElem *Element  // CenterNode
	Son        *Node     // corner image on the next finer level

	Prio  Priority
	Procs []int // other ranks holding a copy, sorted

	refs       int
	ownsVertex bool
}

// Refs returns the number of element corners referencing n
func (n *Node) Refs() int { return n.refs }

// AddProc records that rank p holds a copy of n
func (n *Node) AddProc(p int) {
	i := sort.SearchInts(n.Procs, p)
	if i < len(n.Procs) && n.Procs[i] == p {
		return
	}
	n.Procs = append(n.Procs, 0)
	copy(n.Procs[i+1:], n.Procs[i:])
	n.Procs[i] = p
}

// HasProc reports whether rank p holds a copy of n
func (n *Node) HasProc(p int) bool {
	i := sort.SearchInts(n.Procs, p)
	return i < len(n.Procs) && n.Procs[i] == p
}

func (n *Node) String() string {
	return fmt.Sprintf("node %d (%s, level %d)", n.GID, n.Type, n.Level)
}

// Edge joins two nodes of one level and carries the closure bits
type Edge struct {
	H     arena.Handle
	Nodes [2]*Node

	Pattern    bool  // bisect this pass
	AddPattern bool  // cleared when a red element guarantees the bisection
	Mid        *Node // node on the next level when bisected

	refs int
}

// Refs returns the number of elements referencing e
func (e *Edge) Refs() int { return e.refs }

func (e *Edge) String() string {
	return fmt.Sprintf("edge %d-%d", e.Nodes[0].GID, e.Nodes[1].GID)
}

// Element is the refinable unit
type Element struct {
	H        arena.Handle
	GID      int64
	Geometry element.ElementGeometry
	Level    int

	Corners  []*Node
	Edges    []*Edge    // one per topology edge
	Nb       []*Element // one per side, nil at boundaries and unrefined coarse neighbors
	Boundary []bool     // side lies on the domain boundary

	Father *Element
	Sons   []*Element

	Mark        int // rule requested this pass
	Refine      int // rule used by the current sons
	MarkClass   Class
	RefineClass Class
	Coarsen     bool

	SidePattern uint32 // sides carrying a side node
	DiagPattern uint32 // diagonal choice per triangular side
	GreenKey    uint64 // key of the last green refinement
	UpdateGreen bool

	OnFatherSide []int // father side each side lies on, -1 for interior sides
	Center       *Node

	Prio      Priority
	Owner     int
	Copies    []int // ranks holding a ghost copy
	Subdomain int
}

func (e *Element) Topology() *element.Topology { return element.Of(e.Geometry) }

func (e *Element) IsLeaf() bool { return len(e.Sons) == 0 }

// Regular reports whether e may be red or green refined: it lives on
// level 0 or is the son of a red refinement.
func (e *Element) Regular() bool {
	return e.Father == nil || e.Father.RefineClass == Red
}

func (e *Element) IsGhost() bool { return e.Prio == Ghost }

// SideNodes returns the corner nodes of side s
func (e *Element) SideNodes(s int) []*Node {
	idx := e.Topology().Sides[s]
	out := make([]*Node, len(idx))
	for i, c := range idx {
		out[i] = e.Corners[c]
	}
	return out
}

// SideOf returns the side of e facing nb, or -1
func (e *Element) SideOf(nb *Element) int {
	for s, n := range e.Nb {
		if n == nb {
			return s
		}
	}
	return -1
}

// EdgePattern packs the Pattern bits of the element's edges
func (e *Element) EdgePattern() uint32 {
	var p uint32
	for i, ed := range e.Edges {
		if ed.Pattern {
			p |= 1 << i
		}
	}
	return p
}

// BisectedEdges packs which edges currently own a mid node
func (e *Element) BisectedEdges() uint32 {
	var p uint32
	for i, ed := range e.Edges {
		if ed.Mid != nil {
			p |= 1 << i
		}
	}
	return p
}

// CornerPositions returns the vertex positions of the corners
func (e *Element) CornerPositions() []r3.Vec {
	out := make([]r3.Vec, len(e.Corners))
	for i, n := range e.Corners {
		out[i] = n.Vertex.Pos
	}
	return out
}

// Measure returns the area or volume of e
func (e *Element) Measure() float64 {
	v, err := element.Measure(e.Geometry, e.CornerPositions())
	if err != nil {
		panic(err)
	}
	return v
}

// AddCopy records that rank p holds a ghost copy of e
func (e *Element) AddCopy(p int) {
	for _, q := range e.Copies {
		if q == p {
			return
		}
	}
	e.Copies = append(e.Copies, p)
	sort.Ints(e.Copies)
}

func (e *Element) String() string {
	return fmt.Sprintf("%s %d (level %d)", e.Geometry, e.GID, e.Level)
}

// FaceKey builds the canonical key of a side from its corner nodes, sorted by
// handle so both elements sharing the side produce the same key.
func FaceKey(nodes []*Node) string {
	idx := make([]int, len(nodes))
	for i, n := range nodes {
		idx[i] = n.H.Index()
	}
	sort.Ints(idx)
	switch len(idx) {
	case 2:
		return fmt.Sprintf("%d-%d", idx[0], idx[1])
	case 3:
		return fmt.Sprintf("%d-%d-%d", idx[0], idx[1], idx[2])
	}
	return fmt.Sprintf("%d-%d-%d-%d", idx[0], idx[1], idx[2], idx[3])
}
