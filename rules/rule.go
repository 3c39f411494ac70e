// Package rules holds the refinement rule tables: for each element shape,
// which son elements a given edge bisection pattern produces and how those
// sons are wired to each other and to the sides of their father.
package rules

import (
	"fmt"
	"sort"

	"github.com/notargets/ugrefine/element"
)

// Rule ids shared by every shape
const (
	NoRefinement = 0
	Copy         = 1
	Red          = 2 // canonical full subdivision
)

// Son describes one son element of a rule
type Son struct {
	Geometry element.ElementGeometry
	Corners  []int // context slots of the father

	// Per son side: the sibling sharing it, or -1 when it lies on a father side
	Nb []int
	// Per son side: the father side it lies on, or -1 when interior
	FatherSide []int
}

// Rule is one subdivision of a shape
type Rule struct {
	ID       int // -1 for synthesized green tessellations
	Geometry element.ElementGeometry
	Name     string

	Pattern     uint32 // bisected edges
	SidePattern uint32 // sides carrying a side node
	Diag        uint32 // diagonal choice per triangular side, see DiagBits

	Sons      []Son
	IsRed     bool // full regular subdivision
	ForcesRed bool // an element whose pattern resolves here becomes red
}

// Key is the lookup key of a rule within one shape
type Key struct {
	Pattern uint32
	Diag    uint32
}

// Pack folds the key into one integer for storage on an element
func (k Key) Pack() uint64 { return uint64(k.Pattern)<<32 | uint64(k.Diag) }

// Unpack reverses Pack
func Unpack(v uint64) Key { return Key{Pattern: uint32(v >> 32), Diag: uint32(v)} }

func (r *Rule) Key() Key { return Key{Pattern: r.Pattern, Diag: r.Diag} }

func (r *Rule) NumSons() int { return len(r.Sons) }

// Slots returns the sorted context slots used by any son
func (r *Rule) Slots() []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range r.Sons {
		for _, c := range s.Corners {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Ints(out)
	return out
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s rule %d (%s, pattern %b, %d sons)", r.Geometry, r.ID, r.Name, r.Pattern, len(r.Sons))
}

func newSon(g element.ElementGeometry, corners ...int) Son {
	return Son{Geometry: g, Corners: corners}
}

// deriveNeighbors fills the Nb and FatherSide tables of every son by matching
// son sides on their context slot sets.
func deriveNeighbors(top *element.Topology, r *Rule) error {
	type sideRef struct{ son, side int }
	sides := make(map[string][]sideRef)
	keyOf := func(slots []int) string {
		s := append([]int(nil), slots...)
		sort.Ints(s)
		return fmt.Sprint(s)
	}
	sideSlots := func(sn *Son, s int) []int {
		st := element.Of(sn.Geometry)
		out := make([]int, len(st.Sides[s]))
		for i, c := range st.Sides[s] {
			out[i] = sn.Corners[c]
		}
		return out
	}
	for i := range r.Sons {
		sn := &r.Sons[i]
		st := element.Of(sn.Geometry)
		if len(sn.Corners) != st.Corners {
			return fmt.Errorf("%s: son %d has %d corners, %s needs %d", r, i, len(sn.Corners),
				sn.Geometry, st.Corners)
		}
		seen := make(map[int]bool)
		for _, c := range sn.Corners {
			if c < 0 || c >= top.ContextSize() {
				return fmt.Errorf("%s: son %d uses slot %d outside the context", r, i, c)
			}
			if seen[c] {
				return fmt.Errorf("%s: son %d repeats slot %d", r, i, c)
			}
			seen[c] = true
		}
		sn.Nb = make([]int, st.NumSides())
		sn.FatherSide = make([]int, st.NumSides())
		for s := range st.Sides {
			k := keyOf(sideSlots(sn, s))
			sides[k] = append(sides[k], sideRef{i, s})
		}
	}
	for i := range r.Sons {
		sn := &r.Sons[i]
		st := element.Of(sn.Geometry)
		for s := range st.Sides {
			slots := sideSlots(sn, s)
			sn.Nb[s], sn.FatherSide[s] = -1, -1
			var match []sideRef
			for _, ref := range sides[keyOf(slots)] {
				if ref.son != i {
					match = append(match, ref)
				}
			}
			if len(match) > 1 {
				return fmt.Errorf("%s: son %d side %d is shared by %d siblings", r, i, s, len(match))
			}
			if len(match) == 1 {
				sn.Nb[s] = match[0].son
				continue
			}
			for fs := range top.Sides {
				on := true
				for _, slot := range slots {
					if !top.OnSide(slot, fs) {
						on = false
						break
					}
				}
				if on {
					if sn.FatherSide[s] >= 0 {
						return fmt.Errorf("%s: son %d side %d lies on father sides %d and %d",
							r, i, s, sn.FatherSide[s], fs)
					}
					sn.FatherSide[s] = fs
				}
			}
			if sn.FatherSide[s] < 0 {
				return fmt.Errorf("%s: son %d side %d is neither shared nor on a father side", r, i, s)
			}
		}
	}
	return nil
}
