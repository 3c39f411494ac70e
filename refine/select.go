package refine

import (
	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
	"gonum.org/v1/gonum/spatial/r3"
)

// canonicalRed picks the full red rule of e. Tetrahedra split their inner
// octahedron along the shortest of the three diagonals.
func canonicalRed(t *rules.Table, e *mesh.Element) *rules.Rule {
	variants := t.RedVariants(e.Geometry)
	if len(variants) == 1 || e.Geometry != element.Tet {
		r, _ := t.Rule(e.Geometry, rules.Red)
		return r
	}
	top := e.Topology()
	mid := func(slot int) r3.Vec {
		ed := top.Edges[slot-top.Corners]
		return r3.Scale(0.5, r3.Add(e.Corners[ed[0]].Vertex.Pos, e.Corners[ed[1]].Vertex.Pos))
	}
	best, bestLen := variants[0], -1.0
	for _, r := range variants {
		// the diagonal is the mid pair shared by every octahedron son
		p, q := diagonalOf(top, r)
		l := r3.Norm(r3.Sub(mid(p), mid(q)))
		if bestLen < 0 || l < bestLen-1e-12 {
			best, bestLen = r, l
		}
	}
	return best
}

// diagonalOf returns the two mid slots common to all sons of a red
// tetrahedron rule that contain no corner
func diagonalOf(top *element.Topology, r *rules.Rule) (int, int) {
	count := make(map[int]int)
	inner := 0
	for _, s := range r.Sons {
		corner := false
		for _, c := range s.Corners {
			if top.Kind(c) == element.CornerSlot {
				corner = true
			}
		}
		if corner {
			continue
		}
		inner++
		for _, c := range s.Corners {
			count[c]++
		}
	}
	var d []int
	for _, slot := range r.Slots() {
		if count[slot] == inner && inner > 0 {
			d = append(d, slot)
		}
	}
	if len(d) != 2 {
		return top.MidSlot(0), top.MidSlot(0)
	}
	return d[0], d[1]
}

// redRuleFor returns the rule a red element keeps for pattern k: its own
// rule when the key still matches, the registered rule for k otherwise, or
// nil when the shape has no rule for k.
func redRuleFor(t *rules.Table, e *mesh.Element, k rules.Key) *rules.Rule {
	if own, ok := t.Rule(e.Geometry, e.Mark); ok && e.Mark != rules.Copy && own.Key() == k {
		return own
	}
	r := t.Lookup(e.Geometry, k)
	if r != nil && r.IsRed {
		return canonicalRed(t, e)
	}
	return r
}
