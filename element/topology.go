package element

import (
	"fmt"
	"math"
)

// Topology is the reference numbering of one shape: corners, edges, sides
// and the layout of the refinement context built on top of them.
//
// Context slots are numbered corners first, then one mid slot per edge,
// then (3D only) one side slot per side, and finally the center slot.
type Topology struct {
	Geometry ElementGeometry
	Dim      Dimensionality
	Corners  int
	Edges    [][2]int // corner pairs
	Sides    [][]int  // corners of each side in cyclic order
	// SideEdges lists the edges bounding each side, in the same cyclic
	// order as Sides: SideEdges[s][i] joins Sides[s][i] and Sides[s][i+1].
	SideEdges [][]int
	RefCoords [][3]float64
	MaxSons   int

	edgeIndex map[[2]int]int
	slotRef   [][3]float64
}

var topologies = map[ElementGeometry]*Topology{}

func init() {
	register(Tri, D2, 4,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[][2]int{{0, 1}, {1, 2}, {2, 0}},
		nil)
	register(Quad, D2, 8,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		[][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
		nil)
	// Tet faces follow the face-vertex table of the DG kernels:
	// {0,1,2}, {0,1,3}, {1,2,3}, {0,2,3}
	register(Tet, D3, 16,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[][2]int{{0, 1}, {1, 2}, {0, 2}, {0, 3}, {1, 3}, {2, 3}},
		[][]int{{0, 1, 2}, {0, 1, 3}, {1, 2, 3}, {0, 2, 3}})
	register(Pyramid, D3, 24,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0.5, 0.5, 1}},
		[][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 4}, {1, 4}, {2, 4}, {3, 4}},
		[][]int{{0, 1, 2, 3}, {0, 1, 4}, {1, 2, 4}, {2, 3, 4}, {3, 0, 4}})
	register(Prism, D3, 32,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 0, 1}, {0, 1, 1}},
		[][2]int{{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 4}, {2, 5}, {3, 4}, {4, 5}, {5, 3}},
		[][]int{{0, 1, 2}, {0, 1, 4, 3}, {1, 2, 5, 4}, {2, 0, 3, 5}, {3, 4, 5}})
	register(Hex, D3, 48,
		[][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
			{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
		[][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 4}, {1, 5}, {2, 6}, {3, 7},
			{4, 5}, {5, 6}, {6, 7}, {7, 4}},
		[][]int{{0, 1, 2, 3}, {0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7}, {4, 5, 6, 7}})
}

func register(g ElementGeometry, dim Dimensionality, maxSons int,
	ref [][3]float64, edges [][2]int, sides [][]int) {
	t := &Topology{
		Geometry:  g,
		Dim:       dim,
		Corners:   len(ref),
		Edges:     edges,
		RefCoords: ref,
		MaxSons:   maxSons,
		edgeIndex: make(map[[2]int]int, len(edges)),
	}
	for i, e := range edges {
		t.edgeIndex[[2]int{e[0], e[1]}] = i
		t.edgeIndex[[2]int{e[1], e[0]}] = i
	}
	if dim == D2 {
		// In 2D the sides of an element are its edges
		for i, e := range edges {
			t.Sides = append(t.Sides, []int{e[0], e[1]})
			t.SideEdges = append(t.SideEdges, []int{i})
		}
	} else {
		t.Sides = sides
		for _, s := range sides {
			se := make([]int, len(s))
			for i := range s {
				se[i] = t.EdgeOf(s[i], s[(i+1)%len(s)])
				if se[i] < 0 {
					panic(fmt.Errorf("%s: side %v has no edge %d-%d", g, s, s[i], s[(i+1)%len(s)]))
				}
			}
			t.SideEdges = append(t.SideEdges, se)
		}
	}
	t.slotRef = make([][3]float64, t.ContextSize())
	for c := 0; c < t.Corners; c++ {
		t.slotRef[c] = ref[c]
	}
	for i, e := range edges {
		t.slotRef[t.MidSlot(i)] = average(ref, e[:])
	}
	if dim == D3 {
		for s, corners := range t.Sides {
			t.slotRef[t.SideSlot(s)] = average(ref, corners)
		}
	}
	all := make([]int, t.Corners)
	for i := range all {
		all[i] = i
	}
	t.slotRef[t.CenterSlot()] = average(ref, all)
	topologies[g] = t
}

func average(ref [][3]float64, idx []int) (p [3]float64) {
	for _, i := range idx {
		for d := 0; d < 3; d++ {
			p[d] += ref[i][d]
		}
	}
	for d := 0; d < 3; d++ {
		p[d] /= float64(len(idx))
	}
	return
}

// Of returns the reference topology of a shape
func Of(g ElementGeometry) *Topology {
	t, ok := topologies[g]
	if !ok {
		panic(fmt.Errorf("unknown element geometry %d", uint8(g)))
	}
	return t
}

func (t *Topology) NumEdges() int { return len(t.Edges) }
func (t *Topology) NumSides() int { return len(t.Sides) }

// MidSlot is the context slot of the mid node of edge e
func (t *Topology) MidSlot(e int) int { return t.Corners + e }

// SideSlot is the context slot of the side node of side s. 3D only.
func (t *Topology) SideSlot(s int) int {
	if t.Dim != D3 {
		panic(fmt.Errorf("%s has no side nodes", t.Geometry))
	}
	return t.Corners + len(t.Edges) + s
}

func (t *Topology) CenterSlot() int {
	if t.Dim == D3 {
		return t.Corners + len(t.Edges) + len(t.Sides)
	}
	return t.Corners + len(t.Edges)
}

func (t *Topology) ContextSize() int { return t.CenterSlot() + 1 }

// EdgeOf returns the edge joining corners a and b, or -1
func (t *Topology) EdgeOf(a, b int) int {
	if e, ok := t.edgeIndex[[2]int{a, b}]; ok {
		return e
	}
	return -1
}

// SideOf returns the side whose corner set equals corners, or -1
func (t *Topology) SideOf(corners ...int) int {
	for s, sc := range t.Sides {
		if sameSet(sc, corners) {
			return s
		}
	}
	return -1
}

// Mid is shorthand for the mid slot of the edge joining corners a and b
func (t *Topology) Mid(a, b int) int {
	e := t.EdgeOf(a, b)
	if e < 0 {
		panic(fmt.Errorf("%s: no edge %d-%d", t.Geometry, a, b))
	}
	return t.MidSlot(e)
}

// Side is shorthand for the side slot of the side with the given corners
func (t *Topology) Side(corners ...int) int {
	s := t.SideOf(corners...)
	if s < 0 {
		panic(fmt.Errorf("%s: no side %v", t.Geometry, corners))
	}
	return t.SideSlot(s)
}

// SlotKind classifies a context slot
type SlotKind uint8

const (
	CornerSlot SlotKind = iota
	MidSlotKind
	SideSlotKind
	CenterSlotKind
)

func (t *Topology) Kind(slot int) SlotKind {
	switch {
	case slot < t.Corners:
		return CornerSlot
	case slot < t.Corners+len(t.Edges):
		return MidSlotKind
	case slot == t.CenterSlot():
		return CenterSlotKind
	}
	return SideSlotKind
}

// OnSide reports whether a context slot lies on side s
func (t *Topology) OnSide(slot, s int) bool {
	switch t.Kind(slot) {
	case CornerSlot:
		return contains(t.Sides[s], slot)
	case MidSlotKind:
		return contains(t.SideEdges[s], slot-t.Corners)
	case SideSlotKind:
		return slot == t.SideSlot(s)
	}
	return false
}

// SlotRef returns the reference coordinates of a context slot
func (t *Topology) SlotRef(slot int) [3]float64 { return t.slotRef[slot] }

// SlotAt returns the context slot located at reference point p, or -1
func (t *Topology) SlotAt(p [3]float64) int {
	for i, q := range t.slotRef {
		if math.Abs(q[0]-p[0]) < 1e-12 && math.Abs(q[1]-p[1]) < 1e-12 &&
			math.Abs(q[2]-p[2]) < 1e-12 {
			return i
		}
	}
	return -1
}

// SideCorners returns the number of corners of side s
func (t *Topology) SideCorners(s int) int { return len(t.Sides[s]) }

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !contains(b, x) {
			return false
		}
	}
	return true
}
