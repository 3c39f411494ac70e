package mesh

import (
	"fmt"

	"github.com/notargets/ugrefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// UnitSquare meshes [0,1]^2 with nx*ny cells, each a quad or two triangles
func UnitSquare(nx, ny int, geom element.ElementGeometry) (*MultiGrid, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("invalid cell counts %dx%d", nx, ny)
	}
	if geom != element.Tri && geom != element.Quad {
		return nil, fmt.Errorf("UnitSquare cannot build %s elements", geom)
	}
	mg := NewMultiGrid(element.D2)
	pts := make([]*Node, (nx+1)*(ny+1))
	id := func(i, j int) int { return i + j*(nx+1) }
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			n, err := mg.AddNode(r3.Vec{X: float64(i) / float64(nx), Y: float64(j) / float64(ny)})
			if err != nil {
				return nil, err
			}
			pts[id(i, j)] = n
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a, b, c, d := pts[id(i, j)], pts[id(i+1, j)], pts[id(i+1, j+1)], pts[id(i, j+1)]
			var err error
			if geom == element.Quad {
				_, err = mg.AddElement(element.Quad, a, b, c, d)
			} else {
				if _, err = mg.AddElement(element.Tri, a, b, c); err == nil {
					_, err = mg.AddElement(element.Tri, a, c, d)
				}
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return mg, mg.Finalize()
}

// Kuhn subdivision of a cube into six tetrahedra around the 0-6 diagonal.
// Translated copies conform across shared cube faces.
var kuhnTets = [][4]int{{0, 1, 2, 6}, {0, 2, 3, 6}, {0, 3, 7, 6}, {0, 7, 4, 6}, {0, 4, 5, 6}, {0, 5, 1, 6}}

// UnitCube meshes [0,1]^3 with n^3 cells: hexahedra, six tetrahedra or two
// prisms per cell.
func UnitCube(n int, geom element.ElementGeometry) (*MultiGrid, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid cell count %d", n)
	}
	mg := NewMultiGrid(element.D3)
	pts := make([]*Node, (n+1)*(n+1)*(n+1))
	id := func(i, j, k int) int { return i + (n+1)*(j+(n+1)*k) }
	h := 1 / float64(n)
	for k := 0; k <= n; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				nd, err := mg.AddNode(r3.Vec{X: float64(i) * h, Y: float64(j) * h, Z: float64(k) * h})
				if err != nil {
					return nil, err
				}
				pts[id(i, j, k)] = nd
			}
		}
	}
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				c := []*Node{
					pts[id(i, j, k)], pts[id(i+1, j, k)], pts[id(i+1, j+1, k)], pts[id(i, j+1, k)],
					pts[id(i, j, k+1)], pts[id(i+1, j, k+1)], pts[id(i+1, j+1, k+1)], pts[id(i, j+1, k+1)],
				}
				var err error
				switch geom {
				case element.Hex:
					_, err = mg.AddElement(element.Hex, c...)
				case element.Tet:
					for _, t := range kuhnTets {
						if _, err = mg.AddElement(element.Tet, c[t[0]], c[t[1]], c[t[2]], c[t[3]]); err != nil {
							break
						}
					}
				case element.Prism:
					if _, err = mg.AddElement(element.Prism, c[0], c[1], c[2], c[4], c[5], c[6]); err == nil {
						_, err = mg.AddElement(element.Prism, c[0], c[2], c[3], c[4], c[6], c[7])
					}
				default:
					err = fmt.Errorf("UnitCube cannot build %s elements", geom)
				}
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return mg, mg.Finalize()
}
