package refine

import (
	"context"
	"testing"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opposingTets builds a tetrahedron t whose opposite edges 0-1 and 2-3 are
// each shared with a tetrahedron marked for a single edge split next to a
// fully refined one, so both single edge marks grow into full red ones.
func opposingTets(t *testing.T, table *rules.Table) (mg *mesh.MultiGrid, common *mesh.Element) {
	mg = mesh.NewMultiGrid(element.D3)
	p := []*mesh.Node{
		addNode(t, mg, 0, 0, 0), addNode(t, mg, 1, 0, 0), addNode(t, mg, 0, 1, 0), addNode(t, mg, 0, 0, 1),
		addNode(t, mg, 0.5, -1, 0), addNode(t, mg, 0.5, -0.5, -1), addNode(t, mg, 1.5, -1, -0.5),
		addNode(t, mg, -1, 1, 0.5), addNode(t, mg, -0.5, 1.5, 1), addNode(t, mg, -1, 1.5, 1.5),
	}
	tet := func(a, b, c, d int) *mesh.Element {
		e, err := mg.AddElement(element.Tet, p[a], p[b], p[c], p[d])
		require.NoError(t, err)
		return e
	}
	common = tet(0, 1, 2, 3)
	n1 := tet(0, 1, 4, 5)
	m1 := tet(1, 4, 5, 6)
	n2 := tet(2, 3, 7, 8)
	m2 := tet(3, 7, 8, 9)
	require.NoError(t, mg.Finalize())

	top := element.Of(element.Tet)
	single := func(e *mesh.Element, a, b *mesh.Node) int {
		var i, j int
		for k, c := range e.Corners {
			if c == a {
				i = k
			}
			if c == b {
				j = k
			}
		}
		r := table.Lookup(element.Tet, rules.Key{Pattern: 1 << top.EdgeOf(i, j)})
		require.NotNil(t, r)
		return r.ID
	}
	require.NoError(t, SetMark(table, n1, single(n1, p[0], p[4])))
	require.NoError(t, SetMark(table, m1, rules.Red))
	require.NoError(t, SetMark(table, n2, single(n2, p[2], p[7])))
	require.NoError(t, SetMark(table, m2, rules.Red))
	return mg, common
}

func TestFIFOClosureReenqueuesOnce(t *testing.T) {
	table, err := rules.NewTable(rules.RegularOnly)
	require.NoError(t, err)
	mg, common := opposingTets(t, table)
	s := NewClosureSession(context.Background(), Options{FIFO: true, Table: table})
	require.NoError(t, s.GridClosure(mg.Level(0)))

	assert.Equal(t, 1, s.Stats.Enqueued[common])
	assert.Len(t, s.Stats.Enqueued, 1)
	assert.Equal(t, 2, s.Stats.Forced)
	// five initial pops plus the one re-enqueue
	assert.Equal(t, 6, s.Stats.Iterations)

	top := element.Of(element.Tet)
	assert.Equal(t, uint32(1<<top.EdgeOf(0, 1)|1<<top.EdgeOf(2, 3)), common.EdgePattern())
	assert.Equal(t, mesh.NoClass, common.MarkClass)
	for _, e := range mg.Level(0).Masters() {
		if e != common {
			assert.Equal(t, mesh.Red, e.MarkClass)
			assert.Equal(t, uint32(0b111111), e.EdgePattern(), "%s", e)
		}
	}

	// the pattern of the common element has no rule of its own, so it is
	// closed with a tessellation around its center
	require.NoError(t, BuildGreenClosure(s, mg.Level(0)))
	assert.Equal(t, mesh.Green, common.MarkClass)
	assert.Equal(t, rules.Copy, common.Mark)
}

func TestSweepClosureMatchesFIFO(t *testing.T) {
	table, err := rules.NewTable(rules.RegularOnly)
	require.NoError(t, err)
	mg, common := opposingTets(t, table)
	s := NewClosureSession(context.Background(), Options{Table: table})
	require.NoError(t, s.GridClosure(mg.Level(0)))
	assert.Equal(t, 2, s.Stats.Forced)
	assert.Empty(t, s.Stats.Enqueued)
	top := element.Of(element.Tet)
	assert.Equal(t, uint32(1<<top.EdgeOf(0, 1)|1<<top.EdgeOf(2, 3)), common.EdgePattern())
}

func TestOpposingTetsRefinePass(t *testing.T) {
	table, err := rules.NewTable(rules.RegularOnly)
	require.NoError(t, err)
	mg, common := opposingTets(t, table)
	coarse := measureOf(mg.Level(0).Elements())
	res := runPass(t, mg, Options{FIFO: true, Table: table})
	assert.Equal(t, 4, res.Red)
	assert.Equal(t, mesh.Green, common.RefineClass)
	assertConforming(t, mg)
	assert.InDelta(t, coarse, measureOf(mg.Leaves()), 1e-9)
}

func TestFullPatternPromotesToRed(t *testing.T) {
	mg := mesh.NewMultiGrid(element.D2)
	p := []*mesh.Node{
		addNode(t, mg, 0, 0, 0), addNode(t, mg, 2, 0, 0), addNode(t, mg, 1, 2, 0),
		addNode(t, mg, 1, -1, 0), addNode(t, mg, 2.5, 1.5, 0), addNode(t, mg, -0.5, 1.5, 0),
	}
	center, err := mg.AddElement(element.Tri, p[0], p[1], p[2])
	require.NoError(t, err)
	for _, tri := range [][3]int{{0, 3, 1}, {1, 4, 2}, {2, 5, 0}} {
		e, err := mg.AddElement(element.Tri, p[tri[0]], p[tri[1]], p[tri[2]])
		require.NoError(t, err)
		require.NoError(t, SetMark(nil, e, rules.Red))
	}
	require.NoError(t, mg.Finalize())

	s := NewClosureSession(context.Background(), Options{})
	require.NoError(t, s.GridClosure(mg.Level(0)))
	assert.Equal(t, mesh.Red, center.MarkClass)
	assert.Equal(t, rules.Red, center.Mark)
	assert.Equal(t, 1, s.Stats.Promoted)
	for _, ed := range center.Edges {
		assert.False(t, ed.AddPattern)
	}
}

func TestHangingClosureOnlyRecordsPatterns(t *testing.T) {
	mg, a, b := twoTriangles(t)
	require.NoError(t, SetMark(nil, a, rules.Red))
	s := NewClosureSession(context.Background(), Options{HangingNodes: true})
	g := mg.Level(0)
	require.NoError(t, s.GridClosure(g))
	require.NoError(t, BuildGreenClosure(s, g))
	assert.Equal(t, mesh.NoClass, b.MarkClass)
	assert.NotZero(t, b.EdgePattern())
	assert.Equal(t, 1, PropagateCopies(g, CopyLocal, 1))
	assert.Equal(t, mesh.Yellow, b.MarkClass)
}

func TestPropagateCopiesFromAnyElement(t *testing.T) {
	// the triangle strip 2x1 is the chain T1-T0-T3-T2, the quad strip 5x1
	// is Q0-Q1-Q2-Q3-Q4
	tests := []struct {
		name   string
		geom   element.ElementGeometry
		nx     int
		marked int
		mode   CopyMode
		depth  int
		want   int
	}{
		{"tri local 1", element.Tri, 2, 3, CopyLocal, 1, 2},
		{"tri local 2", element.Tri, 2, 3, CopyLocal, 2, 3},
		{"tri all", element.Tri, 2, 3, CopyAll, 1, 3},
		{"quad local 1", element.Quad, 5, 2, CopyLocal, 1, 2},
		{"quad local 2", element.Quad, 5, 2, CopyLocal, 2, 4},
		{"quad last local 2", element.Quad, 5, 4, CopyLocal, 2, 2},
		{"quad all", element.Quad, 5, 4, CopyAll, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mg, err := mesh.UnitSquare(tt.nx, 1, tt.geom)
			require.NoError(t, err)
			g := mg.Level(0)
			elems := g.Elements()
			require.NoError(t, SetMark(nil, elems[tt.marked], rules.Red))
			assert.Equal(t, tt.want, PropagateCopies(g, tt.mode, tt.depth))
			yellow := 0
			for _, e := range elems {
				if e.MarkClass == mesh.Yellow {
					yellow++
					assert.Equal(t, rules.Copy, e.Mark)
				}
			}
			assert.Equal(t, tt.want, yellow)
			assert.Equal(t, mesh.Red, elems[tt.marked].MarkClass)
		})
	}
}

func TestRefinePassMarkingLastElement(t *testing.T) {
	mg, a, b := twoTriangles(t)
	require.NoError(t, SetMark(nil, b, rules.Red))
	require.NoError(t, RefineMultiGrid(mg, Options{}))
	require.NoError(t, mesh.Check(mg))
	assert.Equal(t, mesh.Red, b.RefineClass)
	assert.Equal(t, mesh.Green, a.RefineClass)
	assert.Len(t, b.Sons, 4)
	assert.Len(t, a.Sons, 2)
}
