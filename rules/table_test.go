package rules

import (
	"testing"

	"github.com/notargets/ugrefine/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func slotPositions(top *element.Topology, slots []int) []r3.Vec {
	out := make([]r3.Vec, len(slots))
	for i, s := range slots {
		p := top.SlotRef(s)
		out[i] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

func refMeasure(t *testing.T, g element.ElementGeometry) float64 {
	top := element.Of(g)
	all := make([]int, top.Corners)
	for i := range all {
		all[i] = i
	}
	v, err := element.Measure(g, slotPositions(top, all))
	require.NoError(t, err)
	return v
}

func sonMeasure(t *testing.T, top *element.Topology, r *Rule) float64 {
	var sum float64
	for _, s := range r.Sons {
		v, err := element.Measure(s.Geometry, slotPositions(top, s.Corners))
		require.NoError(t, err)
		assert.Greater(t, v, 1e-12, "%s: degenerate son %v", r, s.Corners)
		sum += v
	}
	return sum
}

func TestNewTable(t *testing.T) {
	for _, mode := range []TetRules{Complete, RegularOnly} {
		t.Run(mode.String(), func(t *testing.T) {
			tb, err := NewTable(mode)
			require.NoError(t, err)
			require.NoError(t, tb.Verify())
			for _, g := range element.Geometries {
				none, ok := tb.Rule(g, NoRefinement)
				require.True(t, ok)
				assert.Empty(t, none.Sons)
				cp, _ := tb.Rule(g, Copy)
				assert.Len(t, cp.Sons, 1)
				red, _ := tb.Rule(g, Red)
				assert.True(t, red.IsRed)
				assert.True(t, red.ForcesRed)
			}
		})
	}
}

func TestRedSonCounts(t *testing.T) {
	tb := Default()
	want := map[element.ElementGeometry]int{
		element.Tri: 4, element.Quad: 4, element.Tet: 8,
		element.Pyramid: 10, element.Prism: 8, element.Hex: 8,
	}
	for g, n := range want {
		red, _ := tb.Rule(g, Red)
		assert.Equal(t, n, red.NumSons(), "%s", g)
	}
	assert.Len(t, tb.RedVariants(element.Tet), 3)
	assert.Len(t, tb.RedVariants(element.Hex), 1)
}

func TestMeasureConservation(t *testing.T) {
	tb := Default()
	for _, g := range element.Geometries {
		top := element.Of(g)
		ref := refMeasure(t, g)
		for _, r := range tb.Rules(g) {
			if r.ID == NoRefinement {
				continue
			}
			assert.InDelta(t, ref, sonMeasure(t, top, r), 1e-12, "%s", r)
		}
	}
}

func TestGreenTessellations(t *testing.T) {
	tb, err := NewTable(RegularOnly)
	require.NoError(t, err)
	for _, g := range []element.ElementGeometry{element.Tet, element.Pyramid, element.Prism, element.Hex} {
		top := element.Of(g)
		ref := refMeasure(t, g)
		full := uint32(1)<<top.NumEdges() - 1
		for p := uint32(1); p <= full; p++ {
			r, err := tb.Green(g, Key{Pattern: p, Diag: p * 7})
			require.NoError(t, err, "%s pattern %b", g, p)
			assert.LessOrEqual(t, r.NumSons(), top.MaxSons)
			assert.InDelta(t, ref, sonMeasure(t, top, r), 1e-12, "%s", r)
		}
	}
	// memoized
	a, _ := tb.Green(element.Hex, Key{Pattern: 1})
	b, _ := tb.Green(element.Hex, Key{Pattern: 1})
	assert.Same(t, a, b)
}

func TestCompleteness(t *testing.T) {
	tb := Default()
	for _, g := range []element.ElementGeometry{element.Tri, element.Quad, element.Tet} {
		assert.True(t, tb.Complete(g))
		top := element.Of(g)
		full := uint32(1)<<top.NumEdges() - 1
		for p := uint32(0); p <= full; p++ {
			for diag := uint32(0); diag < 16; diag++ {
				r := tb.Lookup(g, Key{Pattern: p, Diag: diag})
				require.NotNil(t, r, "%s pattern %b diag %b", g, p, diag)
				assert.Equal(t, p, r.Pattern)
			}
		}
	}
	reg, err := NewTable(RegularOnly)
	require.NoError(t, err)
	assert.False(t, reg.Complete(element.Tet))
	assert.Nil(t, reg.Lookup(element.Tet, Key{Pattern: 1<<0 | 1<<5}))
	assert.NotNil(t, reg.Lookup(element.Tet, Key{Pattern: 1 << 3}))
	assert.False(t, tb.Complete(element.Hex))
	assert.Nil(t, tb.Lookup(element.Hex, Key{Pattern: 1}))
}

func TestTriSectionEdge(t *testing.T) {
	assert.Equal(t, 2, TriSectionEdge(0b011))
	assert.Equal(t, 1, TriSectionEdge(0b101))
	assert.Equal(t, 0, TriSectionEdge(0b110))
	for _, p := range []uint8{0, 1, 2, 4, 7} {
		assert.Equal(t, -1, TriSectionEdge(p))
	}
}

// Two tetrahedra sharing a face see it with different corner orders; the
// diagonal they choose on it must connect the same nodes.
func TestDiagonalAgreement(t *testing.T) {
	top := element.Of(element.Tet)
	// global ids of the corners of each tet; face {10,20,30} is shared
	a := []int64{10, 20, 30, 40}
	b := []int64{30, 10, 50, 20}
	edgeOf := func(gids []int64, x, y int64) int {
		var i, j int
		for k, g := range gids {
			if g == x {
				i = k
			}
			if g == y {
				j = k
			}
		}
		return top.EdgeOf(i, j)
	}
	faceOf := func(gids []int64) int {
		var c []int
		for k, g := range gids {
			if g == 10 || g == 20 || g == 30 {
				c = append(c, k)
			}
		}
		return top.SideOf(c...)
	}
	// the corner of the diagonal is the one shared by two triangles
	diagonalCorner := func(gids []int64, bisected [][2]int64) int64 {
		var p uint32
		for _, e := range bisected {
			p |= 1 << edgeOf(gids, e[0], e[1])
		}
		k := KeyFor(top, p, func(c int) int64 { return gids[c] })
		count := make(map[int64]int)
		for _, tri := range tessellateSide(top, faceOf(gids), k) {
			for _, slot := range tri {
				if top.Kind(slot) == element.CornerSlot {
					count[gids[slot]]++
				}
			}
		}
		for g, n := range count {
			if n == 2 {
				return g
			}
		}
		return 0
	}
	for _, tc := range []struct {
		bisected [][2]int64
		corner   int64 // larger end of the unbisected edge
	}{
		{[][2]int64{{10, 20}, {20, 30}}, 30},
		{[][2]int64{{20, 30}, {30, 10}}, 20},
		{[][2]int64{{30, 10}, {10, 20}}, 30},
	} {
		assert.Equal(t, tc.corner, diagonalCorner(a, tc.bisected), "%v", tc.bisected)
		assert.Equal(t, tc.corner, diagonalCorner(b, tc.bisected), "%v", tc.bisected)
	}
}

func TestKeyPacking(t *testing.T) {
	k := Key{Pattern: 0b101101, Diag: 0b0110}
	assert.Equal(t, k, Unpack(k.Pack()))
}

func TestSidePattern(t *testing.T) {
	hex := element.Of(element.Hex)
	// edge 0 joins corners 0 and 1: sides 0 and 1 of the hex contain it
	assert.Equal(t, uint32(0b11), SidePattern(hex, 1))
	assert.Equal(t, uint32(0), SidePattern(element.Of(element.Tet), 0b111111))
	prism := element.Of(element.Prism)
	// edge 0 of the prism lies on the bottom triangle and the quad side 1
	assert.Equal(t, uint32(0b10), SidePattern(prism, 1))
}

func TestRuleNeighbors(t *testing.T) {
	red, _ := Default().Rule(element.Tri, Red)
	// the center son touches every other son and no father side
	center := red.Sons[3]
	assert.ElementsMatch(t, []int{0, 1, 2}, center.Nb)
	assert.Equal(t, []int{-1, -1, -1}, center.FatherSide)
	for i := 0; i < 3; i++ {
		shared := 0
		for _, nb := range red.Sons[i].Nb {
			if nb == 3 {
				shared++
			}
		}
		assert.Equal(t, 1, shared)
	}
}
