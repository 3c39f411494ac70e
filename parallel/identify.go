package parallel

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/ugrefine/mesh"
)

// IdentifyKey names a node by the father object it was created from, in
// global ids, so every rank holding a copy of the father derives the same
// key. Center nodes have no key; they live inside one element family.
func IdentifyKey(n *mesh.Node) (string, bool) {
	switch n.Type {
	case mesh.CornerNode:
		if n.FatherNode == nil {
			return "", false
		}
		return "C:" + strconv.FormatInt(n.FatherNode.GID, 10), true
	case mesh.MidNode:
		if n.FatherEdge == nil {
			return "", false
		}
		return "M:" + gidList(n.FatherEdge.Nodes[:]), true
	case mesh.SideNode:
		return "S:" + gidList(n.FatherFace), true
	}
	return "", false
}

func gidList(nodes []*mesh.Node) string {
	gids := make([]int64, len(nodes))
	for i, n := range nodes {
		gids[i] = n.GID
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	parts := make([]string, len(gids))
	for i, g := range gids {
		parts[i] = strconv.FormatInt(g, 10)
	}
	return strings.Join(parts, "-")
}

// FatherProcs returns the ranks holding every node the father object of n
// is spanned by: the only ranks that can hold a copy of n
func FatherProcs(n *mesh.Node) []int {
	var support []*mesh.Node
	switch n.Type {
	case mesh.CornerNode:
		if n.FatherNode != nil {
			support = []*mesh.Node{n.FatherNode}
		}
	case mesh.MidNode:
		if n.FatherEdge != nil {
			support = n.FatherEdge.Nodes[:]
		}
	case mesh.SideNode:
		support = n.FatherFace
	}
	if len(support) == 0 {
		return nil
	}
	out := append([]int(nil), support[0].Procs...)
	for _, s := range support[1:] {
		kept := out[:0]
		for _, p := range out {
			if s.HasProc(p) {
				kept = append(kept, p)
			}
		}
		out = kept
	}
	return out
}

type identifyReq struct {
	Key string
	GID int64
}

// Identifier collects the identification requests of one grid level.
// Every rank proposes the id of its copy; all copies end up with the
// smallest proposal and learn which ranks hold them.
type Identifier struct {
	ep    *Endpoint
	g     *mesh.Grid
	nodes map[string]*mesh.Node
	out   map[int][]identifyReq
}

// IdentifyBegin starts an identification round on g, which may be nil for
// a rank without the level
func (ep *Endpoint) IdentifyBegin(g *mesh.Grid) *Identifier {
	return &Identifier{ep: ep, g: g, nodes: make(map[string]*mesh.Node), out: make(map[int][]identifyReq)}
}

// IdentifyObject proposes the id of n under key to rank proc
func (id *Identifier) IdentifyObject(proc int, key string, n *mesh.Node) {
	id.nodes[key] = n
	id.out[proc] = append(id.out[proc], identifyReq{Key: key, GID: n.GID})
}

// IdentifyEnd exchanges the proposals and returns the number of local nodes
// that changed id
func (id *Identifier) IdentifyEnd(ctx context.Context) (int, error) {
	out := make(map[int]any, len(id.out))
	for p, reqs := range id.out {
		out[p] = reqs
	}
	in, err := id.ep.Exchange(ctx, "identify", out)
	if err != nil {
		return 0, fmt.Errorf("IdentifyEnd: %w", err)
	}
	changed := 0
	for src, msg := range in {
		for _, r := range msg.([]identifyReq) {
			n, ok := id.nodes[r.Key]
			if !ok {
				continue
			}
			n.AddProc(src)
			if r.GID < n.GID {
				id.g.SetNodeGID(n, r.GID)
				changed++
			}
		}
	}
	return changed, nil
}
