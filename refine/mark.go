package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// SetMark requests rule id for the next pass on a leaf element. Marking
// with rules.NoRefinement clears the request.
func SetMark(t *rules.Table, e *mesh.Element, id int) error {
	if t == nil {
		t = rules.Default()
	}
	if !e.IsLeaf() {
		return fmt.Errorf("%s: %w", e, ErrNotLeaf)
	}
	if _, ok := t.Rule(e.Geometry, id); !ok || id == rules.Copy {
		return fmt.Errorf("%s: rule %d: %w", e, id, ErrInvalidRule)
	}
	if id == rules.NoRefinement {
		e.Mark, e.MarkClass = rules.NoRefinement, mesh.NoClass
		return nil
	}
	e.Mark, e.MarkClass = id, mesh.Red
	e.Coarsen = false
	return nil
}

// GetMark returns the requested rule and class of e
func GetMark(e *mesh.Element) (int, mesh.Class) { return e.Mark, e.MarkClass }

// SetCoarsen flags a leaf element for removal. A father loses its sons only
// when all of them are flagged and none is marked for refinement.
func SetCoarsen(e *mesh.Element, on bool) error {
	if !e.IsLeaf() {
		return fmt.Errorf("%s: %w", e, ErrNotLeaf)
	}
	e.Coarsen = on
	return nil
}

// MarkAll marks every master leaf red with the canonical rule of its shape
func MarkAll(t *rules.Table, mg *mesh.MultiGrid) error {
	if t == nil {
		t = rules.Default()
	}
	for _, e := range mg.Leaves() {
		if e.IsGhost() {
			continue
		}
		if err := SetMark(t, e, canonicalRed(t, e).ID); err != nil {
			return err
		}
	}
	return nil
}

// MarkedLeaves returns the master leaves with a pending refinement
func MarkedLeaves(mg *mesh.MultiGrid) []*mesh.Element {
	var out []*mesh.Element
	for _, e := range mg.Leaves() {
		if !e.IsGhost() && e.MarkClass == mesh.Red {
			out = append(out, e)
		}
	}
	return out
}
