package mesh

import "fmt"

// Check walks every level and verifies that all references held by live
// objects resolve to live objects, that neighbor links are symmetric, that
// father and son links agree and that reference counts match.
func Check(mg *MultiGrid) error {
	for _, g := range mg.grids {
		if err := checkGrid(mg, g); err != nil {
			return fmt.Errorf("level %d: %w", g.Level, err)
		}
	}
	return nil
}

func checkGrid(mg *MultiGrid, g *Grid) error {
	coarse := mg.Level(g.Level - 1)
	fine := mg.Level(g.Level + 1)
	nodeRefs := make(map[*Node]int)
	edgeRefs := make(map[*Edge]int)
	for _, e := range g.Elements() {
		for i, c := range e.Corners {
			if !g.ValidNode(c) {
				return fmt.Errorf("%s: corner %d is stale", e, i)
			}
			nodeRefs[c]++
		}
		for i, ed := range e.Edges {
			if !g.ValidEdge(ed) {
				return fmt.Errorf("%s: edge %d is stale", e, i)
			}
			edgeRefs[ed]++
		}
		for s, nb := range e.Nb {
			if nb == nil {
				continue
			}
			if !g.ValidElement(nb) {
				return fmt.Errorf("%s: neighbor on side %d is stale", e, s)
			}
			if nb.SideOf(e) < 0 {
				return fmt.Errorf("%s: neighbor %s on side %d does not point back", e, nb, s)
			}
		}
		if e.Father != nil {
			if coarse == nil || !coarse.ValidElement(e.Father) {
				return fmt.Errorf("%s: father is stale", e)
			}
			found := false
			for _, s := range e.Father.Sons {
				if s == e {
					found = true
				}
			}
			if !found {
				return fmt.Errorf("%s: missing from the son list of %s", e, e.Father)
			}
		}
		for i, s := range e.Sons {
			if fine == nil || !fine.ValidElement(s) {
				return fmt.Errorf("%s: son %d is stale", e, i)
			}
			if s.Father != e {
				return fmt.Errorf("%s: son %s has another father", e, s)
			}
		}
		if e.Center != nil && (fine == nil || !fine.ValidNode(e.Center)) {
			return fmt.Errorf("%s: center node is stale", e)
		}
	}
	for _, n := range g.Nodes() {
		if n.refs != nodeRefs[n] {
			return fmt.Errorf("%s: %d references counted, %d recorded", n, nodeRefs[n], n.refs)
		}
		if n.Son != nil && (fine == nil || !fine.ValidNode(n.Son)) {
			return fmt.Errorf("%s: son node is stale", n)
		}
		switch n.Type {
		case CornerNode:
			if n.FatherNode != nil && (coarse == nil || !coarse.ValidNode(n.FatherNode)) {
				return fmt.Errorf("%s: father node is stale", n)
			}
		case MidNode:
			if coarse == nil || !coarse.ValidEdge(n.FatherEdge) || n.FatherEdge.Mid != n {
				return fmt.Errorf("%s: father edge is stale", n)
			}
		case SideNode:
			if coarse == nil || coarse.SideNode(n.FatherFace) != n {
				return fmt.Errorf("%s: father face lookup does not return the node", n)
			}
		case CenterNode:
			if coarse == nil || !coarse.ValidElement(n.FatherElem) || n.FatherElem.Center != n {
				return fmt.Errorf("%s: father element is stale", n)
			}
		}
		if !mg.Vertices.Valid(n.Vertex.H) {
			return fmt.Errorf("%s: vertex is stale", n)
		}
	}
	for _, ed := range g.Edges() {
		if ed.refs != edgeRefs[ed] {
			return fmt.Errorf("%s: %d references counted, %d recorded", ed, edgeRefs[ed], ed.refs)
		}
		if ed.Mid != nil && (fine == nil || !fine.ValidNode(ed.Mid)) {
			return fmt.Errorf("%s: mid node is stale", ed)
		}
	}
	return nil
}
