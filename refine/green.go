package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// BuildGreenClosure classifies every non red master of g with a bisected
// edge as green. Shapes with a complete rule set take the rule matching
// their pattern; the others are marked Copy and get a tessellation joining
// their subdivided sides to the element center when refined.
//
// UpdateGreen is set on green elements that must be built again because the
// key driving their tessellation changed since the last pass.
func BuildGreenClosure(s *ClosureSession, g *mesh.Grid) error {
	if s.opts.HangingNodes {
		return nil
	}
	var greens []*mesh.Element
	changed := 0
	for _, e := range g.Masters() {
		if e.MarkClass == mesh.Red {
			continue
		}
		k := keyOf(e)
		if k.Pattern == 0 {
			continue
		}
		e.MarkClass = mesh.Green
		if s.table.Complete(e.Geometry) {
			r := s.table.Lookup(e.Geometry, k)
			if r == nil {
				return fmt.Errorf("BuildGreenClosure: %s pattern %b: %w", e, k.Pattern, ErrNoRule)
			}
			e.Mark = r.ID
		} else {
			if _, err := s.table.Green(e.Geometry, k); err != nil {
				return fmt.Errorf("BuildGreenClosure: %s: %w", e, err)
			}
			e.Mark = rules.Copy
		}
		e.UpdateGreen = e.IsLeaf() || e.RefineClass != mesh.Green || e.Refine != e.Mark ||
			e.GreenKey != k.Pack()
		if e.UpdateGreen && !e.IsLeaf() {
			changed++
		}
		greens = append(greens, e)
	}
	s.NoGreenUpdate = changed == 0
	if s.opts.Overlap == nil || s.opts.SequentialFallback {
		return nil
	}
	// A green element on the interface may be skipped on one rank and
	// rebuilt on another; once any rank rebuilds, all rebuild their
	// interface greens.
	flag := 0
	if changed > 0 {
		flag = 1
	}
	global, err := s.opts.Overlap.AllReduceMax(s.ctx, flag)
	if err != nil {
		return fmt.Errorf("BuildGreenClosure: level %d: %w", g.Level, err)
	}
	if global == 0 {
		return nil
	}
	s.NoGreenUpdate = false
	for _, e := range greens {
		if onInterface(e) {
			e.UpdateGreen = true
		}
	}
	return nil
}

func onInterface(e *mesh.Element) bool {
	if len(e.Copies) > 0 {
		return true
	}
	for _, c := range e.Corners {
		if len(c.Procs) > 0 {
			return true
		}
	}
	return false
}
