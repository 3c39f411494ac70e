package parallel

import (
	"context"
	"fmt"

	"github.com/notargets/ugrefine/diag"
	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/refine"
	"github.com/notargets/ugrefine/rules"
)

// ReconcileStats counts the interface work of one rank
type ReconcileStats struct {
	Identified   int // nodes that took the id of a copy on another rank
	GhostRebuilt int // ghost elements whose sons were replaced
	GhostSons    int // ghost sons created
	Conflicts    int // shipped node ids that disagreed with an existing copy
	Forwarded    int // mark requests sent to other ranks
}

// Reconciler keeps the ghost layer of one rank consistent with the masters
// on the other ranks during refinement passes
type Reconciler struct {
	ep    *Endpoint
	mg    *mesh.MultiGrid
	table *rules.Table
	sink  diag.Sink

	Stats ReconcileStats
}

// NewReconciler returns the overlap collaborator of the rank of ep. The
// table must be the one the passes refine with.
func NewReconciler(ep *Endpoint, mg *mesh.MultiGrid, table *rules.Table, sink diag.Sink) *Reconciler {
	if table == nil {
		table = rules.Default()
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Reconciler{ep: ep, mg: mg, table: table, sink: sink}
}

var _ refine.Overlap = (*Reconciler)(nil)

func (r *Reconciler) Rank() int { return r.ep.Rank() }
func (r *Reconciler) Size() int { return r.ep.Size() }

func (r *Reconciler) AllReduceMax(ctx context.Context, v int) (int, error) {
	return r.ep.AllReduceMax(ctx, v)
}

// CheckPartitioning verifies that every master on a finer level has its
// father on this rank, so element families never straddle ranks
func (r *Reconciler) CheckPartitioning(ctx context.Context, mg *mesh.MultiGrid) error {
	bad := 0
	var first *mesh.Element
	for _, g := range mg.Grids()[1:] {
		for _, e := range g.Masters() {
			if e.Father == nil || e.Father.IsGhost() {
				if first == nil {
					first = e
				}
				bad++
			}
		}
	}
	if bad > 0 {
		r.sink.PrintErrorMessage(diag.Error, "CheckPartitioning", "%d masters, first %s, have no master father", bad, first)
	}
	global, err := r.ep.AllReduceMax(ctx, bad)
	if err != nil {
		return fmt.Errorf("CheckPartitioning: %w", err)
	}
	if global > 0 {
		return fmt.Errorf("CheckPartitioning: element families split across ranks: %w", refine.ErrPartitioning)
	}
	return nil
}

type edgeBit struct{ A, B int64 }

// ExchangeClosureInfo ORs the bisection bits of edges whose both nodes are
// held by other ranks
func (r *Reconciler) ExchangeClosureInfo(ctx context.Context, g *mesh.Grid) error {
	out := make(map[int][]edgeBit)
	for _, ed := range g.Edges() {
		if !ed.Pattern {
			continue
		}
		a, b := ed.Nodes[0], ed.Nodes[1]
		for _, p := range a.Procs {
			if b.HasProc(p) {
				out[p] = append(out[p], edgeBit{a.GID, b.GID})
			}
		}
	}
	msgs := make(map[int]any, len(out))
	for p, bits := range out {
		msgs[p] = bits
	}
	in, err := r.ep.Exchange(ctx, "closure", msgs)
	if err != nil {
		return fmt.Errorf("ExchangeClosureInfo: level %d: %w", g.Level, err)
	}
	for _, msg := range in {
		for _, bit := range msg.([]edgeBit) {
			a, b := g.NodeByGID(bit.A), g.NodeByGID(bit.B)
			if a == nil || b == nil {
				continue
			}
			if ed := g.Edge(a, b); ed != nil {
				ed.Pattern = true
			}
		}
	}
	return nil
}

type markReq struct {
	GID  int64
	Rule int
}

// ForwardMarks sends mark requests for ghosts to their owners
func (r *Reconciler) ForwardMarks(ctx context.Context, g *mesh.Grid, out []refine.MarkRequest) ([]refine.MarkRequest, error) {
	byOwner := make(map[int][]markReq)
	for _, req := range out {
		byOwner[req.Elem.Owner] = append(byOwner[req.Elem.Owner], markReq{req.Elem.GID, req.Rule})
		r.Stats.Forwarded++
	}
	msgs := make(map[int]any, len(byOwner))
	for p, reqs := range byOwner {
		msgs[p] = reqs
	}
	in, err := r.ep.Exchange(ctx, "forward-marks", msgs)
	if err != nil {
		return nil, fmt.Errorf("ForwardMarks: level %d: %w", g.Level, err)
	}
	var got []refine.MarkRequest
	for src, msg := range in {
		for _, req := range msg.([]markReq) {
			e := g.ElementByGID(req.GID)
			if e == nil || e.IsGhost() {
				r.sink.PrintErrorMessage(diag.Warning, "ForwardMarks",
					"rank %d asked to mark element %d, not a master here", src, req.GID)
				continue
			}
			got = append(got, refine.MarkRequest{Elem: e, Rule: req.Rule})
		}
	}
	return got, nil
}

// IdentifyGridLevels gives the copies of every node created on levels
// from..to one global id
func (r *Reconciler) IdentifyGridLevels(ctx context.Context, mg *mesh.MultiGrid, from, to int) error {
	for l := from; l <= to; l++ {
		g := mg.Level(l)
		id := r.ep.IdentifyBegin(g)
		if g != nil {
			for _, n := range g.Nodes() {
				key, ok := IdentifyKey(n)
				if !ok {
					continue
				}
				for _, p := range FatherProcs(n) {
					id.IdentifyObject(p, key, n)
				}
			}
		}
		n, err := id.IdentifyEnd(ctx)
		if err != nil {
			return fmt.Errorf("IdentifyGridLevels: level %d: %w", l, err)
		}
		r.Stats.Identified += n
	}
	return nil
}

// UpdateGridOverlap sends the sons of every master of g with ghost copies
// to the ranks holding them; ghosts whose sons differ from what their
// owner sent are rebuilt
func (r *Reconciler) UpdateGridOverlap(ctx context.Context, g *mesh.Grid) error {
	x := r.ep.XferBegin()
	for _, e := range g.Masters() {
		if len(e.Copies) == 0 {
			continue
		}
		c := CopyOf(g, e)
		for _, p := range e.Copies {
			x.XferCopyElement(p, c)
			for _, son := range e.Sons {
				for _, n := range son.Corners {
					n.AddProc(p)
				}
			}
		}
	}
	in, err := x.XferEnd(ctx)
	if err != nil {
		return fmt.Errorf("UpdateGridOverlap: level %d: %w", g.Level, err)
	}
	for src := 0; src < r.ep.Size(); src++ {
		for _, c := range in[src] {
			if err := r.updateGhost(g, src, c); err != nil {
				return fmt.Errorf("UpdateGridOverlap: level %d: %w", g.Level, err)
			}
		}
	}
	return nil
}

func sameSons(f *mesh.Element, c ElementCopy) bool {
	if len(f.Sons) != len(c.Sons) {
		return false
	}
	for i, son := range f.Sons {
		if son.GID != c.Sons[i].GID {
			return false
		}
	}
	return true
}

func (r *Reconciler) updateGhost(g *mesh.Grid, src int, c ElementCopy) error {
	f := g.ElementByGID(c.Father)
	if f == nil || !f.IsGhost() {
		return fmt.Errorf("rank %d sent sons of element %d, not a ghost here", src, c.Father)
	}
	if sameSons(f, c) {
		f.Refine, f.RefineClass, f.GreenKey = c.Refine, c.Class, c.GreenKey
		return nil
	}
	if _, err := refine.UnrefineElement(r.table, r.mg, f); err != nil {
		return err
	}
	f.Refine, f.RefineClass, f.GreenKey = c.Refine, c.Class, c.GreenKey
	r.Stats.GhostRebuilt++
	if len(c.Sons) == 0 {
		return nil
	}
	fine := r.mg.EnsureLevel(g.Level + 1)
	top := f.Topology()
	nodes := make(map[int]*mesh.Node, len(c.Nodes))
	for _, sn := range c.Nodes {
		var (
			n   *mesh.Node
			err error
		)
		switch top.Kind(sn.Slot) {
		case element.CornerSlot:
			n, err = fine.NewCornerSon(f.Corners[sn.Slot], sn.GID)
		case element.MidSlotKind:
			n, err = fine.NewMidNode(f.Edges[sn.Slot-top.Corners], f, sn.GID)
		case element.SideSlotKind:
			n, err = fine.NewSideNode(f.SideNodes(sn.Slot-top.Corners-top.NumEdges()), f, sn.GID)
		case element.CenterSlotKind:
			n, err = fine.NewCenterNode(f, sn.GID)
		}
		if err != nil {
			return fmt.Errorf("ghost %s slot %d: %w", f, sn.Slot, err)
		}
		if n.GID != sn.GID {
			r.Stats.Conflicts++
			r.sink.PrintErrorMessage(diag.Warning, "UpdateGridOverlap",
				"%s: rank %d sent id %d for slot %d", n, src, sn.GID, sn.Slot)
		}
		n.AddProc(src)
		nodes[sn.Slot] = n
	}
	sons := make([]*mesh.Element, 0, len(c.Sons))
	for i, sc := range c.Sons {
		corners := make([]*mesh.Node, len(sc.Corners))
		for j, slot := range sc.Corners {
			corners[j] = nodes[slot]
		}
		son, err := fine.NewElement(sc.Geometry, corners, f, sc.GID)
		if err != nil {
			f.Sons = sons
			return fmt.Errorf("ghost %s son %d: %w", f, i, err)
		}
		copy(son.OnFatherSide, sc.OnFatherSide)
		sons = append(sons, son)
	}
	for i, sc := range c.Sons {
		for s, nb := range sc.Nb {
			if nb >= 0 {
				sons[i].Nb[s] = sons[nb]
			}
		}
	}
	f.Sons = sons
	r.Stats.GhostSons += len(sons)
	return nil
}

// ConnectGridOverlap links the sons of ghost elements to their neighbors
func (r *Reconciler) ConnectGridOverlap(ctx context.Context, g *mesh.Grid) error {
	if g == nil {
		return nil
	}
	coarse := r.mg.Level(g.Level - 1)
	for _, f := range coarse.Elements() {
		if !f.IsGhost() || f.IsLeaf() {
			continue
		}
		for s := range f.Nb {
			if err := refine.ConnectSonsOfElementSide(f, s, true); err != nil {
				return fmt.Errorf("ConnectGridOverlap: %w", err)
			}
		}
	}
	return ctx.Err()
}
