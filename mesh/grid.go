package mesh

import (
	"fmt"

	"github.com/notargets/ugrefine/arena"
	"github.com/notargets/ugrefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// Grid is one level of a MultiGrid. It owns the nodes, edges and elements
// living on that level.
type Grid struct {
	Level int
	MG    *MultiGrid

	nodes *arena.Arena[Node]
	edges *arena.Arena[Edge]
	elems *arena.Arena[Element]

	edgeMap   map[[2]arena.Handle]*Edge
	sideNodes map[string]*Node // side nodes on the next level, keyed by face of this level
	gidNodes  map[int64]*Node
	gidElems  map[int64]*Element
}

func newGrid(mg *MultiGrid, level int) *Grid {
	return &Grid{
		Level:     level,
		MG:        mg,
		nodes:     arena.New[Node](mg.Budget),
		edges:     arena.New[Edge](mg.Budget),
		elems:     arena.New[Element](mg.Budget),
		edgeMap:   make(map[[2]arena.Handle]*Edge),
		sideNodes: make(map[string]*Node),
		gidNodes:  make(map[int64]*Node),
		gidElems:  make(map[int64]*Element),
	}
}

func (g *Grid) Elements() []*Element { return g.elems.All() }
func (g *Grid) Nodes() []*Node       { return g.nodes.All() }
func (g *Grid) Edges() []*Edge       { return g.edges.All() }

func (g *Grid) NumElements() int { return g.elems.Len() }
func (g *Grid) NumNodes() int    { return g.nodes.Len() }
func (g *Grid) NumEdges() int    { return g.edges.Len() }

// Masters returns the locally owned elements
func (g *Grid) Masters() []*Element {
	all := g.elems.All()
	out := all[:0]
	for _, e := range all {
		if e.Prio == Master {
			out = append(out, e)
		}
	}
	return out
}

// ValidNode reports whether n is live on this level
func (g *Grid) ValidNode(n *Node) bool { return n != nil && g.nodes.Get(n.H) == n }

// ValidEdge reports whether e is live on this level
func (g *Grid) ValidEdge(e *Edge) bool { return e != nil && g.edges.Get(e.H) == e }

// ValidElement reports whether e is live on this level
func (g *Grid) ValidElement(e *Element) bool { return e != nil && g.elems.Get(e.H) == e }

func (g *Grid) NodeByGID(gid int64) *Node          { return g.gidNodes[gid] }
func (g *Grid) ElementByGID(gid int64) *Element    { return g.gidElems[gid] }
func (g *Grid) SideNode(face []*Node) *Node        { return g.sideNodes[FaceKey(face)] }
func (g *Grid) NumSideNodes() int                  { return len(g.sideNodes) }

// SetNodeGID changes the global id of n, keeping the lookup table current
func (g *Grid) SetNodeGID(n *Node, gid int64) {
	if g.gidNodes[n.GID] == n {
		delete(g.gidNodes, n.GID)
	}
	n.GID = gid
	g.gidNodes[gid] = n
}

// SetElementGID changes the global id of e
func (g *Grid) SetElementGID(e *Element, gid int64) {
	if g.gidElems[e.GID] == e {
		delete(g.gidElems, e.GID)
	}
	e.GID = gid
	g.gidElems[gid] = e
}

func edgeKey(a, b *Node) [2]arena.Handle {
	if b.H.Less(a.H) {
		a, b = b, a
	}
	return [2]arena.Handle{a.H, b.H}
}

// Edge returns the edge joining a and b, or nil
func (g *Grid) Edge(a, b *Node) *Edge { return g.edgeMap[edgeKey(a, b)] }

func (g *Grid) ensureEdge(a, b *Node) (*Edge, error) {
	key := edgeKey(a, b)
	if ed, ok := g.edgeMap[key]; ok {
		return ed, nil
	}
	ed := &Edge{Nodes: [2]*Node{a, b}, AddPattern: true}
	h, err := g.edges.Alloc(ed)
	if err != nil {
		return nil, fmt.Errorf("level %d: edge %d-%d: %w", g.Level, a.GID, b.GID, err)
	}
	ed.H = h
	g.edgeMap[key] = ed
	return ed, nil
}

func (g *Grid) releaseEdge(ed *Edge) {
	ed.refs--
	if ed.refs > 0 {
		return
	}
	delete(g.edgeMap, edgeKey(ed.Nodes[0], ed.Nodes[1]))
	g.edges.Free(ed.H)
}

func (g *Grid) newVertex(pos r3.Vec, father *Element) (*Vertex, error) {
	v := &Vertex{Pos: pos, Level: g.Level, Father: father}
	h, err := g.MG.Vertices.Alloc(v)
	if err != nil {
		return nil, fmt.Errorf("level %d: vertex: %w", g.Level, err)
	}
	v.H = h
	return v, nil
}

func (g *Grid) allocNode(n *Node, gid int64) (*Node, error) {
	h, err := g.nodes.Alloc(n)
	if err != nil {
		return nil, fmt.Errorf("level %d: %s node: %w", g.Level, n.Type, err)
	}
	n.H = h
	n.Level = g.Level
	if gid == 0 {
		gid = g.MG.NextGID()
	}
	n.GID = gid
	g.gidNodes[gid] = n
	return n, nil
}

// NewVertexNode creates a node owning a new vertex at pos. It is the only
// way level-0 corners are made; refinement uses the typed constructors below.
func (g *Grid) NewVertexNode(pos r3.Vec, gid int64) (*Node, error) {
	v, err := g.newVertex(pos, nil)
	if err != nil {
		return nil, err
	}
	n, err := g.allocNode(&Node{Type: CornerNode, Vertex: v, ownsVertex: true}, gid)
	if err != nil {
		g.MG.Vertices.Free(v.H)
		return nil, err
	}
	return n, nil
}

// NewCornerSon creates the image of father on this level, sharing its vertex
func (g *Grid) NewCornerSon(father *Node, gid int64) (*Node, error) {
	if father.Son != nil {
		return father.Son, nil
	}
	n, err := g.allocNode(&Node{Type: CornerNode, Vertex: father.Vertex, FatherNode: father,
		Prio: father.Prio}, gid)
	if err != nil {
		return nil, err
	}
	father.Son = n
	return n, nil
}

// NewMidNode creates the mid node of a father edge at the edge midpoint
func (g *Grid) NewMidNode(father *Edge, elem *Element, gid int64) (*Node, error) {
	if father.Mid != nil {
		return father.Mid, nil
	}
	pos := r3.Scale(0.5, r3.Add(father.Nodes[0].Vertex.Pos, father.Nodes[1].Vertex.Pos))
	n, err := g.newOwnedNode(MidNode, pos, elem, gid)
	if err != nil {
		return nil, err
	}
	n.FatherEdge = father
	father.Mid = n
	return n, nil
}

// NewSideNode creates the side node of a father face at its centroid.
// The face is looked up structurally first so both elements sharing it get
// the same node.
func (g *Grid) NewSideNode(face []*Node, elem *Element, gid int64) (*Node, error) {
	coarse := g.MG.Level(g.Level - 1)
	key := FaceKey(face)
	if n, ok := coarse.sideNodes[key]; ok {
		return n, nil
	}
	n, err := g.newOwnedNode(SideNode, centroid(face), elem, gid)
	if err != nil {
		return nil, err
	}
	n.FatherFace = append([]*Node(nil), face...)
	coarse.sideNodes[key] = n
	return n, nil
}

// NewCenterNode creates the center node of a father element
func (g *Grid) NewCenterNode(father *Element, gid int64) (*Node, error) {
	if father.Center != nil {
		return father.Center, nil
	}
	n, err := g.newOwnedNode(CenterNode, centroid(father.Corners), father, gid)
	if err != nil {
		return nil, err
	}
	n.FatherElem = father
	father.Center = n
	return n, nil
}

func (g *Grid) newOwnedNode(typ NodeType, pos r3.Vec, elem *Element, gid int64) (*Node, error) {
	v, err := g.newVertex(pos, elem)
	if err != nil {
		return nil, err
	}
	prio := Master
	if elem != nil {
		prio = elem.Prio
	}
	n, err := g.allocNode(&Node{Type: typ, Vertex: v, ownsVertex: true, Prio: prio}, gid)
	if err != nil {
		g.MG.Vertices.Free(v.H)
		return nil, err
	}
	return n, nil
}

func centroid(nodes []*Node) r3.Vec {
	var c r3.Vec
	for _, n := range nodes {
		c = r3.Add(c, n.Vertex.Pos)
	}
	return r3.Scale(1/float64(len(nodes)), c)
}

func (g *Grid) disposeNode(n *Node) {
	switch n.Type {
	case CornerNode:
		if n.FatherNode != nil && n.FatherNode.Son == n {
			n.FatherNode.Son = nil
		}
	case MidNode:
		if n.FatherEdge != nil && n.FatherEdge.Mid == n {
			n.FatherEdge.Mid = nil
		}
	case SideNode:
		coarse := g.MG.Level(g.Level - 1)
		key := FaceKey(n.FatherFace)
		if coarse != nil && coarse.sideNodes[key] == n {
			delete(coarse.sideNodes, key)
		}
	case CenterNode:
		if n.FatherElem != nil && n.FatherElem.Center == n {
			n.FatherElem.Center = nil
		}
	}
	if n.Son != nil {
		n.Son.FatherNode = nil
	}
	if n.ownsVertex {
		g.MG.Vertices.Free(n.Vertex.H)
	}
	if g.gidNodes[n.GID] == n {
		delete(g.gidNodes, n.GID)
	}
	g.nodes.Free(n.H)
}

// NewElement creates an element on this level. Edges are created or shared
// through the level's edge map; neighbor links are left to the caller.
func (g *Grid) NewElement(geom element.ElementGeometry, corners []*Node, father *Element,
	gid int64) (*Element, error) {
	top := element.Of(geom)
	if len(corners) != top.Corners {
		return nil, fmt.Errorf("%s needs %d corners, got %d", geom, top.Corners, len(corners))
	}
	for i, c := range corners {
		if !g.ValidNode(c) {
			return nil, fmt.Errorf("%s corner %d is not a live node of level %d", geom, i, g.Level)
		}
	}
	e := &Element{
		Geometry:     geom,
		Level:        g.Level,
		Corners:      append([]*Node(nil), corners...),
		Edges:        make([]*Edge, top.NumEdges()),
		Nb:           make([]*Element, top.NumSides()),
		Boundary:     make([]bool, top.NumSides()),
		OnFatherSide: make([]int, top.NumSides()),
		Father:       father,
		GreenKey:     NoGreenKey,
	}
	for s := range e.OnFatherSide {
		e.OnFatherSide[s] = -1
	}
	if father != nil {
		e.Prio = father.Prio
		e.Owner = father.Owner
		e.Subdomain = father.Subdomain
		e.Copies = append([]int(nil), father.Copies...)
	} else {
		e.Owner = g.MG.Rank
	}
	for i, ed := range top.Edges {
		edge, err := g.ensureEdge(corners[ed[0]], corners[ed[1]])
		if err != nil {
			for j := 0; j < i; j++ {
				g.releaseEdge(e.Edges[j])
			}
			return nil, err
		}
		edge.refs++
		e.Edges[i] = edge
	}
	h, err := g.elems.Alloc(e)
	if err != nil {
		for _, ed := range e.Edges {
			g.releaseEdge(ed)
		}
		return nil, fmt.Errorf("level %d: %s element: %w", g.Level, geom, err)
	}
	e.H = h
	for _, c := range corners {
		c.refs++
	}
	if gid == 0 {
		gid = g.MG.NextGID()
	}
	e.GID = gid
	g.gidElems[gid] = e
	return e, nil
}

// DisconnectElement clears every neighbor link pointing at e
func (g *Grid) DisconnectElement(e *Element) {
	for s, nb := range e.Nb {
		if nb == nil {
			continue
		}
		for t, back := range nb.Nb {
			if back == e {
				nb.Nb[t] = nil
			}
		}
		e.Nb[s] = nil
	}
}

// DisposeElement removes e, its unreferenced edges and nodes. Neighbor links
// must already be disconnected and e must have no sons.
func (g *Grid) DisposeElement(e *Element) error {
	if !g.ValidElement(e) {
		return fmt.Errorf("level %d: dispose of dead %s", g.Level, e)
	}
	if len(e.Sons) > 0 {
		return fmt.Errorf("level %d: dispose of %s with %d sons", g.Level, e, len(e.Sons))
	}
	for s, nb := range e.Nb {
		if nb != nil {
			return fmt.Errorf("level %d: dispose of %s still connected on side %d", g.Level, e, s)
		}
	}
	for _, ed := range e.Edges {
		g.releaseEdge(ed)
	}
	for _, c := range e.Corners {
		c.refs--
		if c.refs == 0 {
			g.disposeNode(c)
		}
	}
	if g.gidElems[e.GID] == e {
		delete(g.gidElems, e.GID)
	}
	g.elems.Free(e.H)
	return nil
}

// Connect builds neighbor links between the elements of this level by
// matching sides on their sorted corner nodes. Unmatched sides become domain
// boundary.
func (g *Grid) Connect() {
	type faceSignature struct {
		elem *Element
		side int
	}
	faceMap := make(map[string]faceSignature)
	for _, e := range g.Elements() {
		for s := range e.Nb {
			key := FaceKey(e.SideNodes(s))
			if existing, found := faceMap[key]; found {
				e.Nb[s] = existing.elem
				existing.elem.Nb[existing.side] = e
				e.Boundary[s] = false
				existing.elem.Boundary[existing.side] = false
				delete(faceMap, key)
			} else {
				faceMap[key] = faceSignature{e, s}
			}
		}
	}
	for _, f := range faceMap {
		f.elem.Nb[f.side] = nil
		f.elem.Boundary[f.side] = true
	}
}
