package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// ruleOf returns the rule e is about to be refined with, by mark class
func ruleOf(t *rules.Table, e *mesh.Element) (*rules.Rule, error) {
	switch e.MarkClass {
	case mesh.Yellow:
		r, _ := t.Rule(e.Geometry, rules.Copy)
		return r, nil
	case mesh.Green:
		if e.Mark == rules.Copy {
			return t.Green(e.Geometry, keyOf(e))
		}
	case mesh.NoClass:
		return nil, fmt.Errorf("%s is not marked", e)
	}
	r, ok := t.Rule(e.Geometry, e.Mark)
	if !ok {
		return nil, fmt.Errorf("%s: rule %d: %w", e, e.Mark, ErrNoRule)
	}
	return r, nil
}

// RefineElement builds the sons of the leaf e on the fine level according to
// its mark class: one copy son for yellow, the rule sons for red and green.
// Interior neighbor links come from the rule; links across the father sides
// are left to ConnectSonsOfElementSide.
func RefineElement(t *rules.Table, fine *mesh.Grid, e *mesh.Element) (Context, error) {
	if !e.IsLeaf() {
		return Context{}, fmt.Errorf("RefineElement: %s: %w", e, ErrNotLeaf)
	}
	r, err := ruleOf(t, e)
	if err != nil {
		return Context{}, fmt.Errorf("RefineElement: %w", err)
	}
	ctx, err := UpdateContext(fine, e, r)
	if err != nil {
		return ctx, err
	}
	sons := make([]*mesh.Element, 0, len(r.Sons))
	for i, sn := range r.Sons {
		corners := make([]*mesh.Node, len(sn.Corners))
		for j, slot := range sn.Corners {
			corners[j] = ctx.Nodes[slot]
		}
		son, err := fine.NewElement(sn.Geometry, corners, e, 0)
		if err != nil {
			e.Sons = sons
			return ctx, fmt.Errorf("RefineElement: %s son %d: %w", e, i, err)
		}
		copy(son.OnFatherSide, sn.FatherSide)
		sons = append(sons, son)
	}
	for i, sn := range r.Sons {
		for s, nb := range sn.Nb {
			if nb >= 0 {
				sons[i].Nb[s] = sons[nb]
			}
		}
	}
	e.Sons = sons
	if e.MarkClass == mesh.Green {
		e.GreenKey = keyOf(e).Pack()
	} else {
		e.GreenKey = mesh.NoGreenKey
	}
	return ctx, nil
}

type sonSide struct {
	son  *mesh.Element
	side int
}

func sonsOnSide(e *mesh.Element, s int) []sonSide {
	var out []sonSide
	for _, son := range e.Sons {
		for t, fs := range son.OnFatherSide {
			if fs == s {
				out = append(out, sonSide{son, t})
			}
		}
	}
	return out
}

// ConnectSonsOfElementSide links the sons of e lying on side s to the sons
// of the neighbor across it, matching son sides by their node sets. Sons on
// a domain boundary side are flagged. Unless relaxed, every son side must
// find exactly one partner; relaxed matching pairs what it can and is used
// with hanging nodes and next to ghost elements.
func ConnectSonsOfElementSide(e *mesh.Element, s int, relaxed bool) error {
	mine := sonsOnSide(e, s)
	if len(mine) == 0 {
		return nil
	}
	if e.Boundary[s] {
		for _, m := range mine {
			m.son.Boundary[m.side] = true
			m.son.Nb[m.side] = nil
		}
		return nil
	}
	for _, m := range mine {
		m.son.Boundary[m.side] = false
	}
	nb := e.Nb[s]
	if nb == nil || nb.IsLeaf() {
		return nil
	}
	ns := nb.SideOf(e)
	if ns < 0 {
		return fmt.Errorf("ConnectSonsOfElementSide: %s side %d: neighbor %s does not point back: %w",
			e, s, nb, ErrNeighborMismatch)
	}
	relaxed = relaxed || e.IsGhost() || nb.IsGhost()
	theirs := make(map[string]sonSide)
	for _, o := range sonsOnSide(nb, ns) {
		theirs[mesh.FaceKey(o.son.SideNodes(o.side))] = o
	}
	unmatched := 0
	for _, m := range mine {
		key := mesh.FaceKey(m.son.SideNodes(m.side))
		o, ok := theirs[key]
		if !ok {
			unmatched++
			continue
		}
		m.son.Nb[m.side] = o.son
		o.son.Nb[o.side] = m.son
		delete(theirs, key)
	}
	unmatched += len(theirs)
	if unmatched > 0 && !relaxed {
		return fmt.Errorf("ConnectSonsOfElementSide: %s side %d / %s side %d: %d son sides unmatched: %w",
			e, s, nb, ns, unmatched, ErrNeighborMismatch)
	}
	return nil
}
