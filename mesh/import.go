package mesh

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/gocfd/utils"
	"github.com/notargets/ugrefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadFile loads a Gambit, Gmsh or SU2 mesh into level 0 of a new MultiGrid.
// Only elements of the highest dimension present are kept; lower dimensional
// boundary elements are dropped.
func ReadFile(meshfile string) (*MultiGrid, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", meshfile, err)
	}
	mg, err := FromArrays(msh.Vertices, msh.EtoV, msh.ElementTypes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meshfile, err)
	}
	return mg, nil
}

func geometryOf(t utils.ElementType) (element.ElementGeometry, bool) {
	switch t {
	case utils.Triangle:
		return element.Tri, true
	case utils.Quad:
		return element.Quad, true
	case utils.Tet:
		return element.Tet, true
	case utils.Hex:
		return element.Hex, true
	case utils.Prism:
		return element.Prism, true
	case utils.Pyramid:
		return element.Pyramid, true
	}
	return 0, false
}

// FromArrays builds a level-0 MultiGrid from vertex coordinates and element
// to vertex connectivity in gocfd conventions.
func FromArrays(vertices [][]float64, etov [][]int, types []utils.ElementType) (*MultiGrid, error) {
	if len(etov) != len(types) {
		return nil, fmt.Errorf("%d elements but %d element types", len(etov), len(types))
	}
	dim := 0
	for _, t := range types {
		if d := t.GetDimension(); d > dim {
			dim = d
		}
	}
	var mgDim element.Dimensionality
	switch dim {
	case 2:
		mgDim = element.D2
	case 3:
		mgDim = element.D3
	default:
		return nil, fmt.Errorf("no 2D or 3D elements found")
	}
	mg := NewMultiGrid(mgDim)
	nodes := make([]*Node, len(vertices))
	node := func(i int) (*Node, error) {
		if i < 0 || i >= len(vertices) {
			return nil, fmt.Errorf("vertex index %d out of range", i)
		}
		if nodes[i] != nil {
			return nodes[i], nil
		}
		var p r3.Vec
		v := vertices[i]
		if len(v) > 0 {
			p.X = v[0]
		}
		if len(v) > 1 {
			p.Y = v[1]
		}
		if len(v) > 2 {
			p.Z = v[2]
		}
		n, err := mg.AddNode(p)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
		return n, nil
	}
	for k, t := range types {
		if t.GetDimension() != dim {
			continue
		}
		geom, ok := geometryOf(t)
		if !ok {
			return nil, fmt.Errorf("element %d: unsupported element type %s", k, t)
		}
		top := element.Of(geom)
		if len(etov[k]) < top.Corners {
			return nil, fmt.Errorf("element %d: %s needs %d vertices, got %d",
				k, geom, top.Corners, len(etov[k]))
		}
		corners := make([]*Node, top.Corners)
		for i := range corners {
			n, err := node(etov[k][i])
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", k, err)
			}
			corners[i] = n
		}
		if _, err := mg.AddElement(geom, corners...); err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
	}
	if err := mg.Finalize(); err != nil {
		return nil, err
	}
	return mg, nil
}
