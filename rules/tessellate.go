package rules

import (
	"fmt"

	"github.com/notargets/ugrefine/element"
)

// triSectionEdge maps the reduced edge pattern of a triangular side (bit i
// set when the i-th side edge is bisected) to the side edge left unbisected,
// for the three patterns with exactly two bisected edges.
var triSectionEdge = [8]int{-1, -1, -1, 2, -1, 1, 0, -1}

// TriSectionEdge returns the unbisected side edge of a triangular side whose
// reduced pattern has exactly two bits set, or -1.
func TriSectionEdge(reduced uint8) int {
	return triSectionEdge[reduced&7]
}

// ReducedPattern restricts an element edge pattern to the edges of side s,
// in side edge order
func ReducedPattern(top *element.Topology, s int, pattern uint32) uint8 {
	var r uint8
	for i, e := range top.SideEdges[s] {
		if pattern&(1<<e) != 0 {
			r |= 1 << i
		}
	}
	return r
}

// SidePattern returns the sides that carry a side node under pattern: every
// quadrilateral side of a 3D element with at least one bisected edge.
func SidePattern(top *element.Topology, pattern uint32) uint32 {
	if top.Dim != element.D3 {
		return 0
	}
	var sp uint32
	for s, corners := range top.Sides {
		if len(corners) == 4 && ReducedPattern(top, s, pattern) != 0 {
			sp |= 1 << s
		}
	}
	return sp
}

// DiagBits computes the diagonal choice of every triangular side with
// exactly two bisected edges. The quadrilateral left after cutting off the
// corner triangle is split by the diagonal leaving the endpoint of the
// unbisected edge with the larger global id; bit s is set when that is the
// second endpoint in side order. Elements sharing the side see the same ids
// and therefore pick the same diagonal.
func DiagBits(top *element.Topology, pattern uint32, gid func(corner int) int64) uint32 {
	if top.Dim != element.D3 {
		return 0
	}
	var diag uint32
	for s, corners := range top.Sides {
		if len(corners) != 3 {
			continue
		}
		i := TriSectionEdge(ReducedPattern(top, s, pattern))
		if i < 0 {
			continue
		}
		x, y := corners[i], corners[(i+1)%3]
		if gid(y) > gid(x) {
			diag |= 1 << s
		}
	}
	return diag
}

// KeyFor builds the lookup key of an element with the given edge pattern
func KeyFor(top *element.Topology, pattern uint32, gid func(corner int) int64) Key {
	return Key{Pattern: pattern, Diag: DiagBits(top, pattern, gid)}
}

// normalizeDiag drops diagonal bits of sides that do not need one
func normalizeDiag(top *element.Topology, k Key) Key {
	if top.Dim != element.D3 {
		return Key{Pattern: k.Pattern}
	}
	var mask uint32
	for s, corners := range top.Sides {
		if len(corners) == 3 && TriSectionEdge(ReducedPattern(top, s, k.Pattern)) >= 0 {
			mask |= 1 << s
		}
	}
	return Key{Pattern: k.Pattern, Diag: k.Diag & mask}
}

// tessellateSide splits side s of a 3D element into triangles and
// quadrilaterals of context slots, following the bisected edges.
func tessellateSide(top *element.Topology, s int, k Key) [][]int {
	corners := top.Sides[s]
	n := len(corners)
	red := ReducedPattern(top, s, k.Pattern)
	mid := func(i int) int { return top.MidSlot(top.SideEdges[s][i%n]) }
	c := func(i int) int { return corners[i%n] }
	if red == 0 {
		return [][]int{append([]int(nil), corners...)}
	}
	if n == 3 {
		switch red {
		case 1, 2, 4:
			i := 0
			for red&(1<<i) == 0 {
				i++
			}
			// mid of edge i to the opposite corner
			return [][]int{{c(i), mid(i), c(i + 2)}, {mid(i), c(i + 1), c(i + 2)}}
		case 7:
			return [][]int{
				{c(0), mid(0), mid(2)},
				{mid(0), c(1), mid(1)},
				{mid(2), mid(1), c(2)},
				{mid(0), mid(1), mid(2)},
			}
		}
		i := TriSectionEdge(red)
		x, y, z := c(i), c(i+1), c(i+2)
		myz, mzx := mid(i+1), mid(i+2)
		tris := [][]int{{myz, z, mzx}}
		if k.Diag&(1<<s) == 0 {
			tris = append(tris, []int{x, y, myz}, []int{x, myz, mzx})
		} else {
			tris = append(tris, []int{x, y, mzx}, []int{y, myz, mzx})
		}
		return tris
	}
	S := top.SideSlot(s)
	if red == 15 {
		return [][]int{
			{c(0), mid(0), S, mid(3)},
			{mid(0), c(1), mid(1), S},
			{S, mid(1), c(2), mid(2)},
			{mid(3), S, mid(2), c(3)},
		}
	}
	// fan from the side node over the boundary of the side
	var ring []int
	for i := 0; i < 4; i++ {
		ring = append(ring, c(i))
		if red&(1<<i) != 0 {
			ring = append(ring, mid(i))
		}
	}
	var tris [][]int
	for i := range ring {
		tris = append(tris, []int{ring[i], ring[(i+1)%len(ring)], S})
	}
	return tris
}

// coneRule builds the tessellation joining the subdivided boundary of an
// element to its center node: every side piece becomes the base of a son.
func coneRule(top *element.Topology, k Key, name string) (*Rule, error) {
	k = normalizeDiag(top, k)
	r := &Rule{
		ID:          -1,
		Geometry:    top.Geometry,
		Name:        name,
		Pattern:     k.Pattern,
		SidePattern: SidePattern(top, k.Pattern),
		Diag:        k.Diag,
	}
	C := top.CenterSlot()
	if top.Dim == element.D2 {
		for e, ed := range top.Edges {
			if k.Pattern&(1<<e) != 0 {
				m := top.MidSlot(e)
				r.Sons = append(r.Sons, newSon(element.Tri, ed[0], m, C), newSon(element.Tri, m, ed[1], C))
			} else {
				r.Sons = append(r.Sons, newSon(element.Tri, ed[0], ed[1], C))
			}
		}
	} else {
		for s := range top.Sides {
			for _, piece := range tessellateSide(top, s, k) {
				corners := append(append([]int(nil), piece...), C)
				if len(piece) == 3 {
					r.Sons = append(r.Sons, newSon(element.Tet, corners...))
				} else {
					r.Sons = append(r.Sons, newSon(element.Pyramid, corners...))
				}
			}
		}
	}
	if len(r.Sons) > top.MaxSons {
		return nil, fmt.Errorf("%s: %d sons exceed the %d allowed", r, len(r.Sons), top.MaxSons)
	}
	if err := deriveNeighbors(top, r); err != nil {
		return nil, err
	}
	return r, nil
}
