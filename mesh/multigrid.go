package mesh

import (
	"fmt"
	"strings"

	"github.com/notargets/ugrefine/arena"
	"github.com/notargets/ugrefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// gidRankShift places the owning rank in the high bits of generated ids so
// ranks never hand out the same id.
const gidRankShift = 40

// MultiGrid is the level hierarchy 0..top of one (possibly partial) mesh
type MultiGrid struct {
	Dim      element.Dimensionality
	Rank     int
	Budget   *arena.Budget
	Vertices *arena.Arena[Vertex]

	// Corrupted is set when a refinement pass failed after it started to
	// mutate the hierarchy. Such a MultiGrid must be discarded.
	Corrupted bool

	grids   []*Grid
	nextGID int64
}

// NewMultiGrid returns an empty hierarchy with level 0 allocated
func NewMultiGrid(dim element.Dimensionality) *MultiGrid {
	mg := &MultiGrid{
		Dim:     dim,
		Budget:  &arena.Budget{},
		nextGID: 1,
	}
	mg.Vertices = arena.New[Vertex](mg.Budget)
	mg.grids = []*Grid{newGrid(mg, 0)}
	return mg
}

// NextGID returns a fresh global id prefixed with the rank
func (mg *MultiGrid) NextGID() int64 {
	gid := int64(mg.Rank)<<gidRankShift | mg.nextGID
	mg.nextGID++
	return gid
}

// GIDCounter exposes the id counter so distributed copies can continue it
func (mg *MultiGrid) GIDCounter() int64 { return mg.nextGID }

func (mg *MultiGrid) SetGIDCounter(n int64) {
	if n > mg.nextGID {
		mg.nextGID = n
	}
}

// Level returns grid l, or nil when it does not exist
func (mg *MultiGrid) Level(l int) *Grid {
	if l < 0 || l >= len(mg.grids) {
		return nil
	}
	return mg.grids[l]
}

func (mg *MultiGrid) TopLevel() int { return len(mg.grids) - 1 }
func (mg *MultiGrid) Grids() []*Grid { return mg.grids }

// CreateLevel appends a new empty finest level
func (mg *MultiGrid) CreateLevel() *Grid {
	g := newGrid(mg, len(mg.grids))
	mg.grids = append(mg.grids, g)
	return g
}

// EnsureLevel returns grid l, creating empty levels up to it
func (mg *MultiGrid) EnsureLevel(l int) *Grid {
	for mg.TopLevel() < l {
		mg.CreateLevel()
	}
	return mg.grids[l]
}

// DropEmptyTopLevels removes empty finest levels, never level 0
func (mg *MultiGrid) DropEmptyTopLevels() {
	for len(mg.grids) > 1 {
		top := mg.grids[len(mg.grids)-1]
		if top.NumElements() > 0 || top.NumNodes() > 0 {
			return
		}
		mg.grids = mg.grids[:len(mg.grids)-1]
	}
}

// AddNode creates a level-0 corner node at pos
func (mg *MultiGrid) AddNode(pos r3.Vec) (*Node, error) {
	return mg.grids[0].NewVertexNode(pos, 0)
}

// AddElement creates a level-0 element; call Finalize once all are added
func (mg *MultiGrid) AddElement(geom element.ElementGeometry, corners ...*Node) (*Element, error) {
	if geom.Dimensions() != mg.Dim {
		return nil, fmt.Errorf("%s element in a %dD multigrid", geom, int(mg.Dim)+1)
	}
	return mg.grids[0].NewElement(geom, corners, nil, 0)
}

// Finalize builds the level-0 neighbor links
func (mg *MultiGrid) Finalize() error {
	g := mg.grids[0]
	if g.NumElements() == 0 {
		return fmt.Errorf("multigrid has no elements")
	}
	g.Connect()
	return nil
}

// Leaves returns every element without sons, coarse levels first
func (mg *MultiGrid) Leaves() []*Element {
	var out []*Element
	for _, g := range mg.grids {
		for _, e := range g.Elements() {
			if e.IsLeaf() {
				out = append(out, e)
			}
		}
	}
	return out
}

// NumObjects counts every live vertex, node, edge and element
func (mg *MultiGrid) NumObjects() int { return mg.Budget.Used() }

// String returns a summary of the hierarchy
func (mg *MultiGrid) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("MultiGrid (rank %d, %dD)\n", mg.Rank, int(mg.Dim)+1))
	sb.WriteString(fmt.Sprintf("  Levels: %d, vertices: %d\n", len(mg.grids), mg.Vertices.Len()))
	for _, g := range mg.grids {
		counts := make(map[element.ElementGeometry]int)
		classes := make(map[Class]int)
		leaves := 0
		for _, e := range g.Elements() {
			counts[e.Geometry]++
			if e.IsLeaf() {
				leaves++
			} else {
				classes[e.RefineClass]++
			}
		}
		sb.WriteString(fmt.Sprintf("  Level %d: %d elements (%d leaves), %d nodes, %d edges\n",
			g.Level, g.NumElements(), leaves, g.NumNodes(), g.NumEdges()))
		for _, geom := range element.Geometries {
			if c := counts[geom]; c > 0 {
				sb.WriteString(fmt.Sprintf("    %-8s %d\n", geom, c))
			}
		}
		if len(classes) > 0 {
			sb.WriteString(fmt.Sprintf("    refined: red %d, green %d, yellow %d\n",
				classes[Red], classes[Green], classes[Yellow]))
		}
	}
	if mg.Corrupted {
		sb.WriteString("  CORRUPTED\n")
	}
	return sb.String()
}
