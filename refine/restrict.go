package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// DropMarks moves red marks of irregular leaves to their closest regular
// ancestor. Only irregular elements that are copies of their father keep
// the rule itself; every other ancestor gets its full red rule.
func DropMarks(t *rules.Table, mg *mesh.MultiGrid) int {
	n := 0
	for _, e := range mg.Leaves() {
		if e.IsGhost() || e.MarkClass != mesh.Red || e.Regular() {
			continue
		}
		id := e.Mark
		a := e
		for !a.Regular() {
			if a.Father.RefineClass != mesh.Yellow {
				id = -1
			}
			a = a.Father
		}
		if id < 0 {
			id = canonicalRed(t, a).ID
		}
		e.Mark, e.MarkClass = rules.NoRefinement, mesh.NoClass
		a.Mark, a.MarkClass = id, mesh.Red
		n++
	}
	return n
}

// restrictMarks is the top down half of a pass. From the finest level to
// level 0 it decides which fathers keep, change or lose their sons, runs a
// closure and pushes demands that a level cannot satisfy on its own to the
// next coarser level: irregular elements that would need refinement mark
// their father, and bisected edges on the boundary of a father mark the
// coarse leaves across that boundary.
func (p *Pass) restrictMarks(top int) error {
	forced := make(map[*mesh.Element]int)
	for l := top; l >= 0; l-- {
		g := p.mg.EnsureLevel(l)
		if l < top {
			p.restrictLevel(g)
		}
		if err := p.applyForced(g, forced); err != nil {
			return err
		}
		if err := p.session.GridClosure(g); err != nil {
			return fmt.Errorf("restrict level %d: %w", l, err)
		}
		if l > 0 {
			p.escalate(g, forced)
		}
	}
	return nil
}

// restrictLevel sets the marks of the refined elements of g from the state
// of their sons. A red father keeps its rule unless all of its sons are
// leaves flagged for coarsening that need no refinement themselves; green
// and yellow fathers are reset and recomputed by the bottom up closure
// unless a red mark was already requested for them.
func (p *Pass) restrictLevel(g *mesh.Grid) {
	for _, e := range g.Masters() {
		if e.IsLeaf() {
			continue
		}
		if e.RefineClass != mesh.Red {
			// red marks on such fathers were requested this pass by DropMarks
			if e.MarkClass != mesh.Red {
				e.Mark, e.MarkClass = rules.NoRefinement, mesh.NoClass
			}
			continue
		}
		coarsen := true
		for _, son := range e.Sons {
			if !son.IsLeaf() || !son.Coarsen || son.MarkClass == mesh.Red || son.EdgePattern() != 0 {
				coarsen = false
				break
			}
		}
		if coarsen {
			e.Mark, e.MarkClass = rules.NoRefinement, mesh.NoClass
			p.res.Coarsened++
		} else {
			e.Mark, e.MarkClass = e.Refine, mesh.Red
		}
	}
}

// applyForced turns the requests collected for level g into red marks and
// forwards requests for ghosts to their owners
func (p *Pass) applyForced(g *mesh.Grid, forced map[*mesh.Element]int) error {
	var out []MarkRequest
	for e, id := range forced {
		if e.Level != g.Level {
			continue
		}
		delete(forced, e)
		if e.IsGhost() {
			out = append(out, MarkRequest{Elem: e, Rule: id})
			continue
		}
		p.force(e, id)
	}
	if p.opts.Overlap == nil {
		return nil
	}
	in, err := p.opts.Overlap.ForwardMarks(p.ctx, g, out)
	if err != nil {
		return fmt.Errorf("restrict level %d: %w", g.Level, err)
	}
	for _, req := range in {
		p.force(req.Elem, req.Rule)
	}
	return nil
}

func (p *Pass) force(e *mesh.Element, id int) {
	e.Coarsen = false
	if e.MarkClass == mesh.Red {
		return
	}
	e.Mark, e.MarkClass = id, mesh.Red
}

// escalate collects the demands of level g on its coarser level
func (p *Pass) escalate(g *mesh.Grid, forced map[*mesh.Element]int) {
	request := func(e *mesh.Element, id int) {
		if _, ok := forced[e]; !ok {
			forced[e] = id
		}
	}
	coarse := p.mg.Level(g.Level - 1)
	var around map[*mesh.Node][]*mesh.Element
	for _, e := range g.Masters() {
		f := e.Father
		if f == nil {
			continue
		}
		if !e.Regular() {
			switch {
			case e.MarkClass == mesh.Red:
				id := canonicalRed(p.t, f).ID
				if f.RefineClass == mesh.Yellow {
					id = e.Mark
				}
				request(f, id)
				e.Mark, e.MarkClass = rules.NoRefinement, mesh.NoClass
			case e.EdgePattern() != 0 && !p.opts.HangingNodes:
				request(f, canonicalRed(p.t, f).ID)
			}
		}
		if p.opts.HangingNodes {
			continue
		}
		for _, ed := range e.Edges {
			if !ed.Pattern {
				continue
			}
			if around == nil {
				around = nodeElements(coarse)
			}
			for _, nb := range coarseNeighbors(f, ed, around) {
				if nb.IsLeaf() && nb.MarkClass != mesh.Red {
					request(nb, canonicalRed(p.t, nb).ID)
				}
			}
		}
	}
}

// fatherSupport returns the coarse nodes spanning the father object a node
// was created from, or nil for center nodes
func fatherSupport(n *mesh.Node) []*mesh.Node {
	switch n.Type {
	case mesh.CornerNode:
		if n.FatherNode != nil {
			return []*mesh.Node{n.FatherNode}
		}
	case mesh.MidNode:
		if n.FatherEdge != nil {
			return n.FatherEdge.Nodes[:]
		}
	case mesh.SideNode:
		return n.FatherFace
	}
	return nil
}

// coarseNeighbors returns the coarse elements other than f whose boundary
// contains the fine edge ed
func coarseNeighbors(f *mesh.Element, ed *mesh.Edge, around map[*mesh.Node][]*mesh.Element) []*mesh.Element {
	a, b := fatherSupport(ed.Nodes[0]), fatherSupport(ed.Nodes[1])
	if a == nil || b == nil {
		return nil
	}
	support := append(append([]*mesh.Node(nil), a...), b...)
	var out []*mesh.Element
	for _, cand := range around[support[0]] {
		if cand == f {
			continue
		}
		all := true
		for _, n := range support {
			if !hasCorner(cand, n) {
				all = false
				break
			}
		}
		if all {
			out = append(out, cand)
		}
	}
	return out
}

func hasCorner(e *mesh.Element, n *mesh.Node) bool {
	for _, c := range e.Corners {
		if c == n {
			return true
		}
	}
	return false
}

func nodeElements(g *mesh.Grid) map[*mesh.Node][]*mesh.Element {
	out := make(map[*mesh.Node][]*mesh.Element)
	for _, e := range g.Elements() {
		for _, c := range e.Corners {
			out[c] = append(out[c], e)
		}
	}
	return out
}
