package partitions

import (
	"fmt"
	"sort"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/refine"
)

// Distribute splits a level-0 multigrid into one multigrid per partition.
// Each rank holds its masters plus one layer of ghosts: every element of
// another rank sharing a node with a local master. Shared nodes list the
// other ranks holding them, masters list the ranks holding ghost copies.
// Global ids are kept, so the pieces can be compared with the original.
func Distribute(mg *mesh.MultiGrid, layout *PartitionLayout) ([]*mesh.MultiGrid, error) {
	if mg.TopLevel() != 0 {
		return nil, fmt.Errorf("distribute: multigrid has %d levels, want 1", mg.TopLevel()+1)
	}
	elems := mg.Level(0).Elements()
	if len(elems) != len(layout.EToP) {
		return nil, fmt.Errorf("distribute: layout covers %d elements, level 0 has %d",
			len(layout.EToP), len(elems))
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	np := layout.NumPartitions

	// ranks owning an element around each node
	owners := make(map[*mesh.Node][]int)
	for k, e := range elems {
		for _, c := range e.Corners {
			owners[c] = addRank(owners[c], layout.EToP[k])
		}
	}
	// ranks holding each element, owner first
	holders := make([][]int, len(elems))
	for k, e := range elems {
		holders[k] = []int{layout.EToP[k]}
		for _, c := range e.Corners {
			for _, r := range owners[c] {
				if r != layout.EToP[k] && !hasRank(holders[k], r) {
					holders[k] = append(holders[k], r)
				}
			}
		}
		sort.Ints(holders[k][1:])
	}
	// ranks holding each node through any held element
	nodeProcs := make(map[*mesh.Node][]int)
	for k, e := range elems {
		for _, c := range e.Corners {
			for _, r := range holders[k] {
				nodeProcs[c] = addRank(nodeProcs[c], r)
			}
		}
	}

	out := make([]*mesh.MultiGrid, np)
	for r := 0; r < np; r++ {
		local := mesh.NewMultiGrid(mg.Dim)
		local.Rank = r
		local.Budget.Limit = mg.Budget.Limit
		g := local.Level(0)
		nodes := make(map[*mesh.Node]*mesh.Node)
		for k, e := range elems {
			if !hasRank(holders[k], r) {
				continue
			}
			corners := make([]*mesh.Node, len(e.Corners))
			for i, c := range e.Corners {
				n, ok := nodes[c]
				if !ok {
					var err error
					n, err = g.NewVertexNode(c.Vertex.Pos, c.GID)
					if err != nil {
						return nil, fmt.Errorf("distribute: rank %d: %w", r, err)
					}
					n.Prio = mesh.Ghost
					if hasRank(owners[c], r) {
						n.Prio = mesh.Master
					}
					for _, q := range nodeProcs[c] {
						if q != r {
							n.AddProc(q)
						}
					}
					nodes[c] = n
				}
				corners[i] = n
			}
			le, err := g.NewElement(e.Geometry, corners, nil, e.GID)
			if err != nil {
				return nil, fmt.Errorf("distribute: rank %d: %w", r, err)
			}
			le.Subdomain = e.Subdomain
			le.Owner = layout.EToP[k]
			if le.Owner == r {
				for _, q := range holders[k][1:] {
					le.AddCopy(q)
				}
			} else {
				le.Prio = mesh.Ghost
			}
		}
		g.Connect()
		// the ghost layer ends inside the domain, restore the true boundary
		for k, e := range elems {
			if le := g.ElementByGID(e.GID); le != nil && hasRank(holders[k], r) {
				copy(le.Boundary, e.Boundary)
			}
		}
		if err := checkGroups(&layout.Partitions[r], g); err != nil {
			return nil, fmt.Errorf("distribute: rank %d: %w", r, err)
		}
		local.SetGIDCounter(mg.GIDCounter())
		out[r] = local
	}
	return out, nil
}

// checkGroups compares the masters of a rank with the shape groups and
// size bound of its partition
func checkGroups(p *Partition, g *mesh.Grid) error {
	masters := g.Masters()
	if len(masters) != p.NumElements || len(masters) > p.MaxElements {
		return fmt.Errorf("%d masters, partition holds %d of at most %d",
			len(masters), p.NumElements, p.MaxElements)
	}
	if p.TypeGroups == nil {
		return nil
	}
	counts := make(map[element.ElementGeometry]int)
	for _, e := range masters {
		counts[e.Geometry]++
	}
	for _, grp := range p.TypeGroups {
		if counts[grp.Geometry] != grp.Count {
			return fmt.Errorf("%d %s masters, partition groups %d", counts[grp.Geometry], grp.Geometry, grp.Count)
		}
		delete(counts, grp.Geometry)
	}
	for geom, n := range counts {
		return fmt.Errorf("%d %s masters outside the partition groups", n, geom)
	}
	return nil
}

func addRank(rs []int, r int) []int {
	i := sort.SearchInts(rs, r)
	if i < len(rs) && rs[i] == r {
		return rs
	}
	rs = append(rs, 0)
	copy(rs[i+1:], rs[i:])
	rs[i] = r
	return rs
}

func hasRank(rs []int, r int) bool {
	for _, q := range rs {
		if q == r {
			return true
		}
	}
	return false
}

// CheckPartitioning verifies that every son of an irregular refinement is
// assigned to the rank of its father. assign maps element ids to ranks.
func CheckPartitioning(mg *mesh.MultiGrid, assign map[int64]int) error {
	bad := 0
	for l := 1; l <= mg.TopLevel(); l++ {
		for _, e := range mg.Level(l).Elements() {
			r, ok := assign[e.GID]
			if !ok {
				return fmt.Errorf("%w: %s has no rank", refine.ErrPartitioning, e)
			}
			if e.Regular() {
				continue
			}
			if r != assign[e.Father.GID] {
				bad++
			}
		}
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d irregular sons away from their father", refine.ErrPartitioning, bad)
	}
	return nil
}

// RestrictPartitioning moves every son of an irregular refinement to the
// rank of its father, coarse levels first, and returns the number moved
func RestrictPartitioning(mg *mesh.MultiGrid, assign map[int64]int) int {
	moved := 0
	for l := 1; l <= mg.TopLevel(); l++ {
		for _, e := range mg.Level(l).Elements() {
			if e.Regular() {
				continue
			}
			want := assign[e.Father.GID]
			if r, ok := assign[e.GID]; !ok || r != want {
				assign[e.GID] = want
				moved++
			}
		}
	}
	return moved
}
