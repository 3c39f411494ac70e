package refine

import (
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// PropagateCopies marks unrefined masters of g yellow so the next level
// keeps a layer of copies around the refined region. It returns the number
// of elements marked.
func PropagateCopies(g *mesh.Grid, mode CopyMode, depth int) int {
	elems := g.Elements()
	var refined []int
	for i, e := range elems {
		if e.MarkClass == mesh.Red || e.MarkClass == mesh.Green {
			refined = append(refined, i)
		}
	}
	if len(refined) == 0 {
		return 0
	}
	copyOf := func(e *mesh.Element) bool {
		if e.IsGhost() || e.MarkClass != mesh.NoClass {
			return false
		}
		e.Mark, e.MarkClass = rules.Copy, mesh.Yellow
		return true
	}
	n := 0
	if mode == CopyAll {
		for _, e := range elems {
			if copyOf(e) {
				n++
			}
		}
		return n
	}
	if depth <= 0 {
		depth = 1
	}

	// Breadth first distance from a source joined to every refined element;
	// element i is graph node i, the source is node len(elems).
	index := make(map[*mesh.Element]int64, len(elems))
	for i, e := range elems {
		index[e] = int64(i)
	}
	adj := simple.NewUndirectedGraph()
	// SetEdge adds missing endpoints, so every node goes in first
	for i := range elems {
		adj.AddNode(simple.Node(i))
	}
	for i, e := range elems {
		for _, nb := range e.Nb {
			j, ok := index[nb]
			if !ok || j <= int64(i) {
				continue
			}
			adj.SetEdge(adj.NewEdge(simple.Node(i), simple.Node(j)))
		}
	}
	source := simple.Node(len(elems))
	adj.AddNode(source)
	for _, i := range refined {
		adj.SetEdge(adj.NewEdge(source, simple.Node(i)))
	}
	var bfs traverse.BreadthFirst
	bfs.Walk(adj, source, func(v graph.Node, d int) bool {
		if d > depth+1 {
			return true
		}
		if d >= 2 && copyOf(elems[v.ID()]) {
			n++
		}
		return false
	})
	return n
}
