package parallel

import (
	"context"
	"fmt"
	"testing"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/partitions"
	"github.com/notargets/ugrefine/refine"
	"github.com/notargets/ugrefine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoRankStrip distributes the 4x1 triangle strip over two ranks: T0..T3
// on rank 0, T4..T7 on rank 1. Triangles 2i and 2i+1 fill cell i, so T2
// and T3 on the left touch T4 and T5 on the right through nodes 2 and 7.
// It returns the pieces and the ids of T0..T7.
func twoRankStrip(t *testing.T) ([]*mesh.MultiGrid, []int64) {
	mg, err := mesh.UnitSquare(4, 1, element.Tri)
	require.NoError(t, err)
	pb := &partitions.PartitionBuilder{Mesh: partitions.NewMeshConnectivity(mg), NumPartitions: 2}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	parts, err := partitions.Distribute(mg, layout)
	require.NoError(t, err)
	var gids []int64
	for _, e := range mg.Level(0).Elements() {
		gids = append(gids, e.GID)
	}
	return parts, gids
}

type rankResult struct {
	first, second refine.Result
	stats         ReconcileStats
	report        InterfaceReport
}

func refineOnRanks(t *testing.T, parts []*mesh.MultiGrid, mark func(rank int, mg *mesh.MultiGrid) error) []rankResult {
	t.Helper()
	out := make([]rankResult, len(parts))
	err := Run(context.Background(), len(parts), func(ctx context.Context, ep *Endpoint) error {
		mg := parts[ep.Rank()]
		rec := NewReconciler(ep, mg, nil, nil)
		res := &out[ep.Rank()]
		if err := mark(ep.Rank(), mg); err != nil {
			return err
		}
		var err error
		opts := refine.Options{Overlap: rec}
		if res.first, err = refine.RefineMultiGridStats(ctx, mg, opts); err != nil {
			return err
		}
		if err := mesh.Check(mg); err != nil {
			return fmt.Errorf("after first pass: %w", err)
		}
		res.stats = rec.Stats
		if res.report, err = rec.CheckInterface(ctx, 1); err != nil {
			return err
		}
		if res.second, err = refine.RefineMultiGridStats(ctx, mg, opts); err != nil {
			return err
		}
		if err := mesh.Check(mg); err != nil {
			return fmt.Errorf("after second pass: %w", err)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestTwoRankRefinement(t *testing.T) {
	parts, gids := twoRankStrip(t)
	res := refineOnRanks(t, parts, func(rank int, mg *mesh.MultiGrid) error {
		if rank != 0 {
			return nil
		}
		return refine.SetMark(nil, mg.Level(0).ElementByGID(gids[2]), rules.Red)
	})
	left, right := parts[0].Level(0), parts[1].Level(0)

	// closure crosses the rank boundary through the shared edge 2-7
	assert.Equal(t, mesh.Red, left.ElementByGID(gids[2]).RefineClass)
	assert.Equal(t, mesh.Green, left.ElementByGID(gids[3]).RefineClass)
	assert.Equal(t, mesh.Yellow, left.ElementByGID(gids[0]).RefineClass)
	assert.Equal(t, mesh.Green, right.ElementByGID(gids[5]).RefineClass)
	assert.Equal(t, mesh.Yellow, right.ElementByGID(gids[4]).RefineClass)

	// both copies of the shared mid node carry the id rank 0 proposed
	mid := func(g *mesh.Grid) *mesh.Node {
		t5 := g.ElementByGID(gids[5])
		for _, ed := range g.ElementByGID(gids[2]).Edges {
			if shares(ed, t5) {
				return ed.Mid
			}
		}
		return nil
	}
	m0, m1 := mid(left), mid(right)
	require.NotNil(t, m0)
	require.NotNil(t, m1)
	assert.Equal(t, m0.GID, m1.GID)
	assert.Less(t, m0.GID, int64(1)<<40)
	assert.Equal(t, []int{1}, m0.Procs)
	assert.Equal(t, []int{0}, m1.Procs)

	// ghosts mirror the sons of their masters
	for _, c := range []struct {
		ghost, master *mesh.Grid
		gid           int64
		sons          int
	}{
		{left, right, gids[4], 1},
		{left, right, gids[5], 2},
		{right, left, gids[2], 4},
		{right, left, gids[3], 2},
	} {
		g, m := c.ghost.ElementByGID(c.gid), c.master.ElementByGID(c.gid)
		require.True(t, g.IsGhost())
		require.Len(t, g.Sons, c.sons)
		require.Len(t, m.Sons, c.sons)
		for i := range g.Sons {
			assert.Equal(t, m.Sons[i].GID, g.Sons[i].GID)
			assert.True(t, g.Sons[i].IsGhost())
		}
		assert.Equal(t, m.RefineClass, g.RefineClass)
	}

	// the ghost sons of T5 on rank 0 are linked to the red sons of T2
	t2 := left.ElementByGID(gids[2])
	links := 0
	for _, son := range left.ElementByGID(gids[5]).Sons {
		for _, nb := range son.Nb {
			if nb != nil && nb.Father == t2 {
				links++
				assert.GreaterOrEqual(t, son.SideOf(nb), 0)
				assert.GreaterOrEqual(t, nb.SideOf(son), 0)
			}
		}
	}
	assert.Equal(t, 2, links)

	for r, rr := range res {
		assert.Zero(t, rr.stats.Conflicts, "rank %d", r)
		assert.Equal(t, 2, rr.stats.GhostRebuilt, "rank %d", r)
		assert.Equal(t, 9, rr.report.Shared, "rank %d", r)
		assert.Zero(t, rr.report.Dangling, "rank %d", r)
		assert.Zero(t, rr.report.Misplaced, "rank %d", r)
		assert.NoError(t, rr.report.Unverified, "rank %d", r)

		// a second pass without new marks keeps everything
		assert.Zero(t, rr.second.ElementsCreated, "rank %d", r)
		assert.Zero(t, rr.second.ElementsRemoved, "rank %d", r)
		assert.Equal(t, 2, rr.second.Levels, "rank %d", r)
	}
	assert.Equal(t, 3, res[0].stats.GhostSons)
	assert.Equal(t, 6, res[1].stats.GhostSons)
	assert.Zero(t, res[0].stats.Identified)
	assert.Equal(t, 3, res[1].stats.Identified)
}

func shares(ed *mesh.Edge, e *mesh.Element) bool {
	for _, x := range e.Edges {
		if x == ed {
			return true
		}
	}
	return false
}

func TestTwoRankUnmarkedPass(t *testing.T) {
	parts, _ := twoRankStrip(t)
	res := refineOnRanks(t, parts, func(int, *mesh.MultiGrid) error { return nil })
	for r, rr := range res {
		assert.Zero(t, rr.first.ElementsCreated, "rank %d", r)
		assert.Equal(t, 1, rr.first.Levels, "rank %d", r)
		assert.Zero(t, rr.report.Shared, "rank %d", r)
	}
}

func TestExchangeClosureInfo(t *testing.T) {
	parts, gids := twoRankStrip(t)
	var onRight bool
	err := Run(context.Background(), 2, func(ctx context.Context, ep *Endpoint) error {
		g := parts[ep.Rank()].Level(0)
		rec := NewReconciler(ep, parts[ep.Rank()], nil, nil)
		t5 := g.ElementByGID(gids[5])
		t2 := g.ElementByGID(gids[2])
		var shared *mesh.Edge
		for _, ed := range t2.Edges {
			if shares(ed, t5) {
				shared = ed
			}
		}
		if shared == nil {
			return fmt.Errorf("rank %d: no edge between T2 and T5", ep.Rank())
		}
		if ep.Rank() == 0 {
			shared.Pattern = true
		}
		if err := rec.ExchangeClosureInfo(ctx, g); err != nil {
			return err
		}
		if ep.Rank() == 1 {
			onRight = shared.Pattern
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, onRight)
}

func TestForwardMarks(t *testing.T) {
	parts, gids := twoRankStrip(t)
	got := make([][]refine.MarkRequest, 2)
	recs := make([]*Reconciler, 2)
	err := Run(context.Background(), 2, func(ctx context.Context, ep *Endpoint) error {
		g := parts[ep.Rank()].Level(0)
		recs[ep.Rank()] = NewReconciler(ep, parts[ep.Rank()], nil, nil)
		var out []refine.MarkRequest
		if ep.Rank() == 1 {
			// T2 is a ghost on rank 1
			out = append(out, refine.MarkRequest{Elem: g.ElementByGID(gids[2]), Rule: rules.Red})
		}
		var err error
		got[ep.Rank()], err = recs[ep.Rank()].ForwardMarks(ctx, g, out)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got[0], 1)
	assert.Equal(t, gids[2], got[0][0].Elem.GID)
	assert.False(t, got[0][0].Elem.IsGhost())
	assert.Equal(t, rules.Red, got[0][0].Rule)
	assert.Empty(t, got[1])
	assert.Equal(t, 1, recs[1].Stats.Forwarded)
}

func TestCheckPartitioningRejectsOrphans(t *testing.T) {
	parts, gids := twoRankStrip(t)
	// a master son under a ghost father means the family is split
	g := parts[0].Level(0)
	ghost := g.ElementByGID(gids[4])
	fine := parts[0].EnsureLevel(1)
	var corners []*mesh.Node
	for _, c := range ghost.Corners {
		n, err := fine.NewCornerSon(c, 0)
		require.NoError(t, err)
		corners = append(corners, n)
	}
	son, err := fine.NewElement(ghost.Geometry, corners, ghost, 0)
	require.NoError(t, err)
	son.Prio = mesh.Master
	ghost.Sons = []*mesh.Element{son}
	ghost.Refine, ghost.RefineClass = rules.Copy, mesh.Yellow

	err = Run(context.Background(), 2, func(ctx context.Context, ep *Endpoint) error {
		rec := NewReconciler(ep, parts[ep.Rank()], nil, nil)
		_, err := refine.RefineMultiGridStats(ctx, parts[ep.Rank()], refine.Options{Overlap: rec})
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, refine.ErrPartitioning)
	assert.False(t, parts[0].Corrupted)
	assert.False(t, parts[1].Corrupted)
}

func TestIdentifyKey(t *testing.T) {
	parts, _ := twoRankStrip(t)
	mg := parts[0]
	coarse := mg.Level(0)
	fine := mg.EnsureLevel(1)
	var a, b *mesh.Node
	for _, n := range coarse.Nodes() {
		if len(n.Procs) > 0 {
			if a == nil {
				a = n
			} else if b == nil && coarse.Edge(a, n) != nil {
				b = n
			}
		}
	}
	require.NotNil(t, a)
	require.NotNil(t, b)
	son, err := fine.NewCornerSon(a, 0)
	require.NoError(t, err)
	key, ok := IdentifyKey(son)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("C:%d", a.GID), key)
	assert.Equal(t, []int{1}, FatherProcs(son))

	m, err := fine.NewMidNode(coarse.Edge(a, b), nil, 0)
	require.NoError(t, err)
	key, ok = IdentifyKey(m)
	require.True(t, ok)
	lo, hi := a.GID, b.GID
	if hi < lo {
		lo, hi = hi, lo
	}
	assert.Equal(t, fmt.Sprintf("M:%d-%d", lo, hi), key)
	assert.Equal(t, []int{1}, FatherProcs(m))

	_, ok = IdentifyKey(a)
	assert.False(t, ok, "level 0 nodes have no father")
}
