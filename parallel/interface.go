package parallel

import (
	"context"
	"fmt"

	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// SharedNodes returns the nodes of g held by other ranks, in grid order
func SharedNodes(g *mesh.Grid) []*mesh.Node {
	var out []*mesh.Node
	if g == nil {
		return out
	}
	for _, n := range g.Nodes() {
		if len(n.Procs) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// BuildConnector gathers the shared node lists of level l from all ranks
// and builds the interface connector every rank agrees on. It returns the
// connector and the local nodes in connector order.
func BuildConnector(ctx context.Context, ep *Endpoint, mg *mesh.MultiGrid, l int) (*utils.InterfaceConnector, []*mesh.Node, error) {
	nodes := SharedNodes(mg.Level(l))
	local := make([]utils.SharedObject, len(nodes))
	for i, n := range nodes {
		local[i] = utils.SharedObject{GID: n.GID, Procs: append([]int(nil), n.Procs...)}
	}
	out := make(map[int]any, ep.Size()-1)
	for r := 0; r < ep.Size(); r++ {
		if r != ep.Rank() {
			out[r] = local
		}
	}
	in, err := ep.Exchange(ctx, "connector", out)
	if err != nil {
		return nil, nil, fmt.Errorf("BuildConnector: level %d: %w", l, err)
	}
	all := make([][]utils.SharedObject, ep.Size())
	all[ep.Rank()] = local
	for src, msg := range in {
		all[src] = msg.([]utils.SharedObject)
	}
	ic, err := utils.NewInterfaceConnector(all)
	if err != nil {
		return nil, nil, fmt.Errorf("BuildConnector: level %d: %w", l, err)
	}
	return ic, nodes, nil
}

// InterfaceExchange sends gather(i) for every local object i shared with a
// rank to that rank and hands each received value to scatter with the
// local index it belongs to
func InterfaceExchange(ctx context.Context, ep *Endpoint, ic *utils.InterfaceConnector,
	gather func(i int) any, scatter func(i, src int, v any)) error {
	out := make(map[int]any)
	for q := 0; q < ep.Size(); q++ {
		pick := ic.GetPickIndices(ep.Rank(), q)
		if len(pick) == 0 {
			continue
		}
		vals := make([]any, len(pick))
		for k, i := range pick {
			vals[k] = gather(i)
		}
		out[q] = vals
	}
	in, err := ep.Exchange(ctx, "interface", out)
	if err != nil {
		return fmt.Errorf("InterfaceExchange: %w", err)
	}
	for src, msg := range in {
		vals := msg.([]any)
		place := ic.GetPlaceIndices(ep.Rank(), src)
		if len(place) != len(vals) {
			return fmt.Errorf("InterfaceExchange: %d values from rank %d for %d places", len(vals), src, len(place))
		}
		for k, i := range place {
			scatter(i, src, vals[k])
		}
	}
	return nil
}

// InterfaceReport summarizes the consistency of one level across ranks
type InterfaceReport struct {
	Shared     int // local nodes held by other ranks
	Dangling   int // proc entries, over all ranks, naming a rank without the node
	Misplaced  int // local copies whose position differs from a remote copy
	Unverified error
}

// CheckInterface compares every shared node of level l with its remote
// copies: the connector must verify and the positions must agree
func (r *Reconciler) CheckInterface(ctx context.Context, l int) (InterfaceReport, error) {
	ic, nodes, err := BuildConnector(ctx, r.ep, r.mg, l)
	if err != nil {
		return InterfaceReport{}, err
	}
	rep := InterfaceReport{Shared: len(nodes), Dangling: ic.Dangling, Unverified: ic.Verify()}
	err = InterfaceExchange(ctx, r.ep, ic,
		func(i int) any { return nodes[i].Vertex.Pos },
		func(i, src int, v any) {
			if r3.Norm(r3.Sub(nodes[i].Vertex.Pos, v.(r3.Vec))) > 1e-12 {
				rep.Misplaced++
			}
		})
	return rep, err
}
