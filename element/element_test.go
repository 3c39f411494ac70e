package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTopologyCounts(t *testing.T) {
	tests := []struct {
		geom                        ElementGeometry
		corners, edges, sides, size int
	}{
		{Tri, 3, 3, 3, 7},
		{Quad, 4, 4, 4, 9},
		{Tet, 4, 6, 4, 15},
		{Pyramid, 5, 8, 5, 19},
		{Prism, 6, 9, 5, 21},
		{Hex, 8, 12, 6, 27},
	}
	for _, tt := range tests {
		t.Run(tt.geom.String(), func(t *testing.T) {
			top := Of(tt.geom)
			assert.Equal(t, tt.corners, top.Corners)
			assert.Equal(t, tt.edges, top.NumEdges())
			assert.Equal(t, tt.sides, top.NumSides())
			assert.Equal(t, tt.size, top.ContextSize())
			assert.Equal(t, tt.geom.Dimensions(), top.Dim)

			// every slot sits at a distinct reference point
			for slot := 0; slot < top.ContextSize(); slot++ {
				assert.Equal(t, slot, top.SlotAt(top.SlotRef(slot)))
			}
			// side edges close around each 3D side; a 2D side is one edge
			for s, se := range top.SideEdges {
				if top.Dim == D3 {
					assert.Len(t, se, top.SideCorners(s))
				} else {
					assert.Equal(t, []int{s}, se)
				}
			}
		})
	}
}

func TestTetSlots(t *testing.T) {
	top := Of(Tet)
	assert.Equal(t, 4, top.Mid(0, 1))
	assert.Equal(t, top.Mid(0, 1), top.Mid(1, 0))
	assert.Equal(t, -1, top.EdgeOf(0, 0))
	assert.Equal(t, top.SideSlot(0), top.Side(2, 0, 1))
	assert.Equal(t, -1, top.SideOf(0, 1))
	assert.Equal(t, 14, top.CenterSlot())

	assert.Equal(t, CornerSlot, top.Kind(3))
	assert.Equal(t, MidSlotKind, top.Kind(top.Mid(2, 3)))
	assert.Equal(t, SideSlotKind, top.Kind(top.SideSlot(3)))
	assert.Equal(t, CenterSlotKind, top.Kind(top.CenterSlot()))

	assert.True(t, top.OnSide(0, 0))
	assert.False(t, top.OnSide(3, 0))
	assert.True(t, top.OnSide(top.Mid(0, 1), 0))
	assert.False(t, top.OnSide(top.Mid(0, 3), 0))
	assert.True(t, top.OnSide(top.SideSlot(0), 0))
	assert.False(t, top.OnSide(top.SideSlot(1), 0))
	assert.False(t, top.OnSide(top.CenterSlot(), 0))

	assert.Panics(t, func() { Of(Tri).SideSlot(0) })
	assert.Panics(t, func() { top.Mid(0, 0) })
}

func TestForCorners(t *testing.T) {
	for _, g := range Geometries {
		got, ok := ForCorners(g.Dimensions(), Of(g).Corners)
		require.True(t, ok, g.String())
		assert.Equal(t, g, got)
	}
	_, ok := ForCorners(D2, 5)
	assert.False(t, ok)
	_, ok = ForCorners(D1, 2)
	assert.False(t, ok)
	assert.False(t, ElementGeometry(42).Valid())
	assert.Equal(t, "ElementGeometry(42)", ElementGeometry(42).String())
}

func TestMeasure(t *testing.T) {
	ref := func(g ElementGeometry) []r3.Vec {
		var pts []r3.Vec
		for _, p := range Of(g).RefCoords {
			pts = append(pts, r3.Vec{X: p[0], Y: p[1], Z: p[2]})
		}
		return pts
	}
	for g, want := range map[ElementGeometry]float64{
		Tri: 0.5, Quad: 1, Tet: 1. / 6, Pyramid: 1. / 3, Prism: 0.5, Hex: 1,
	} {
		got, err := Measure(g, ref(g))
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12, g.String())
	}

	// scaling by 2 multiplies a volume by 8
	pts := ref(Hex)
	for i := range pts {
		pts[i] = r3.Scale(2, pts[i])
	}
	v, err := Measure(Hex, pts)
	require.NoError(t, err)
	assert.InDelta(t, 8, v, 1e-12)

	_, err = Measure(Tet, ref(Tri))
	assert.Error(t, err)
}
