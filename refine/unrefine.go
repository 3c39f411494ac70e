package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// expectedSons returns the son count of the refinement e currently carries
func expectedSons(t *rules.Table, e *mesh.Element) (int, error) {
	switch e.RefineClass {
	case mesh.Yellow:
		return 1, nil
	case mesh.Green:
		if e.Refine == rules.Copy {
			r, err := t.Green(e.Geometry, rules.Unpack(e.GreenKey))
			if err != nil {
				return 0, err
			}
			return r.NumSons(), nil
		}
	}
	r, ok := t.Rule(e.Geometry, e.Refine)
	if !ok {
		return 0, fmt.Errorf("%s: refine rule %d: %w", e, e.Refine, ErrNoRule)
	}
	return r.NumSons(), nil
}

// collectSubtree appends the descendants of e in post order, sons after
// their own descendants
func collectSubtree(e *mesh.Element, out []*mesh.Element) []*mesh.Element {
	for _, son := range e.Sons {
		out = collectSubtree(son, out)
		out = append(out, son)
	}
	return out
}

// UnrefineElement removes every descendant of e. The subtree is collected
// first and checked against the rules that built it; then all neighbor
// links of the subtree are cut and finally the elements are disposed deepest
// first, releasing their nodes and edges by reference count. It returns the
// number of elements removed.
func UnrefineElement(t *rules.Table, mg *mesh.MultiGrid, e *mesh.Element) (int, error) {
	if e.IsLeaf() {
		return 0, nil
	}
	subtree := collectSubtree(e, nil)
	for _, x := range append(subtree, e) {
		if x.IsLeaf() {
			continue
		}
		want, err := expectedSons(t, x)
		if err != nil {
			return 0, fmt.Errorf("UnrefineElement: %w", err)
		}
		if len(x.Sons) != want {
			return 0, fmt.Errorf("UnrefineElement: %s has %d sons, %s rule %d expects %d: %w",
				x, len(x.Sons), x.RefineClass, x.Refine, want, ErrSonCount)
		}
	}
	for _, x := range subtree {
		x.Mark, x.MarkClass = rules.NoRefinement, mesh.NoClass
		mg.Level(x.Level).DisconnectElement(x)
	}
	for _, x := range subtree {
		x.Sons = nil
		if err := mg.Level(x.Level).DisposeElement(x); err != nil {
			return 0, fmt.Errorf("UnrefineElement: %w", err)
		}
	}
	e.Sons = nil
	e.GreenKey = mesh.NoGreenKey
	return len(subtree), nil
}
