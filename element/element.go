package element

import "fmt"

type Dimensionality uint8

const (
	D1 Dimensionality = iota
	D2
	D3
)

// ElementGeometry identifies the shape of a refinable element
type ElementGeometry uint8

const (
	// 3D element types
	Tet     ElementGeometry = iota // Tetrahedron
	Hex                            // Hexahedron
	Prism                          // Triangular prism
	Pyramid                        // Square-based pyramid

	// 2D element types
	Tri  // Triangle
	Quad // Quadrilateral
)

// Geometries lists every supported shape in table order
var Geometries = []ElementGeometry{Tet, Hex, Prism, Pyramid, Tri, Quad}

func (g ElementGeometry) String() string {
	switch g {
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	case Prism:
		return "Prism"
	case Pyramid:
		return "Pyramid"
	case Tri:
		return "Tri"
	case Quad:
		return "Quad"
	}
	return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
}

// Dimensions returns the topological dimension of the shape
func (g ElementGeometry) Dimensions() Dimensionality {
	if g == Tri || g == Quad {
		return D2
	}
	return D3
}

// Valid reports whether g names a supported shape
func (g ElementGeometry) Valid() bool {
	return g <= Quad
}

// ForCorners picks the shape implied by a corner count within a dimension.
// Returns false when no shape matches.
func ForCorners(dim Dimensionality, n int) (ElementGeometry, bool) {
	switch dim {
	case D2:
		switch n {
		case 3:
			return Tri, true
		case 4:
			return Quad, true
		}
	case D3:
		switch n {
		case 4:
			return Tet, true
		case 5:
			return Pyramid, true
		case 6:
			return Prism, true
		case 8:
			return Hex, true
		}
	}
	return 0, false
}
