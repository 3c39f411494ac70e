package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Simplex decompositions of each shape, used to integrate measures.
// Faces are assumed planar.
var simplices = map[ElementGeometry][][]int{
	Tri:     {{0, 1, 2}},
	Quad:    {{0, 1, 2}, {0, 2, 3}},
	Tet:     {{0, 1, 2, 3}},
	Pyramid: {{0, 1, 2, 4}, {0, 2, 3, 4}},
	Prism:   {{0, 1, 2, 3}, {1, 2, 3, 4}, {2, 3, 4, 5}},
	Hex: {{0, 1, 2, 6}, {0, 2, 3, 6}, {0, 3, 7, 6},
		{0, 7, 4, 6}, {0, 4, 5, 6}, {0, 5, 1, 6}},
}

// Measure returns the area (2D) or volume (3D) of an element with corner
// positions pts.
func Measure(g ElementGeometry, pts []r3.Vec) (float64, error) {
	t := Of(g)
	if len(pts) != t.Corners {
		return 0, fmt.Errorf("%s needs %d corners, got %d", g, t.Corners, len(pts))
	}
	var total float64
	for _, s := range simplices[g] {
		total += math.Abs(simplexMeasure(pts, s))
	}
	return total, nil
}

func simplexMeasure(pts []r3.Vec, idx []int) float64 {
	n := len(idx) - 1
	J := mat.NewDense(n, n, nil)
	p0 := pts[idx[0]]
	for i := 1; i <= n; i++ {
		d := r3.Sub(pts[idx[i]], p0)
		comps := [3]float64{d.X, d.Y, d.Z}
		for j := 0; j < n; j++ {
			J.Set(i-1, j, comps[j])
		}
	}
	// |det J| / n!
	if n == 2 {
		return mat.Det(J) / 2
	}
	return mat.Det(J) / 6
}
