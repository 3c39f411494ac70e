package parallel

import (
	"context"
	"fmt"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
)

// SlotNode is one context node of a refined element, by context slot
type SlotNode struct {
	Slot int
	GID  int64
}

// SonCopy describes one son by the context slots of its corners
type SonCopy struct {
	GID          int64
	Geometry     element.ElementGeometry
	Corners      []int
	Nb           []int // son index per side, -1 across the father boundary
	OnFatherSide []int
}

// ElementCopy is the refinement state of a master element as sent to the
// ranks holding ghost copies of it
type ElementCopy struct {
	Father   int64
	Refine   int
	Class    mesh.Class
	GreenKey uint64
	Nodes    []SlotNode
	Sons     []SonCopy
}

// CopyOf packs the current sons of the element e of level g
func CopyOf(g *mesh.Grid, e *mesh.Element) ElementCopy {
	c := ElementCopy{Father: e.GID, Refine: e.Refine, Class: e.RefineClass, GreenKey: e.GreenKey}
	if e.IsLeaf() {
		return c
	}
	top := e.Topology()
	// context nodes the father can reach; only those its sons use are sent
	slotOf := make(map[*mesh.Node]int)
	add := func(n *mesh.Node, slot int) {
		if n == nil {
			return
		}
		if _, ok := slotOf[n]; !ok {
			slotOf[n] = slot
		}
	}
	for i, n := range e.Corners {
		add(n.Son, i)
	}
	for i, ed := range e.Edges {
		add(ed.Mid, top.MidSlot(i))
	}
	if top.Dim == element.D3 {
		for s := range top.Sides {
			add(g.SideNode(e.SideNodes(s)), top.SideSlot(s))
		}
	}
	add(e.Center, top.CenterSlot())
	sent := make(map[*mesh.Node]bool)
	for _, son := range e.Sons {
		for _, n := range son.Corners {
			if !sent[n] {
				sent[n] = true
				c.Nodes = append(c.Nodes, SlotNode{Slot: slotOf[n], GID: n.GID})
			}
		}
	}

	index := make(map[*mesh.Element]int, len(e.Sons))
	for i, son := range e.Sons {
		index[son] = i
	}
	for _, son := range e.Sons {
		sc := SonCopy{
			GID:          son.GID,
			Geometry:     son.Geometry,
			Corners:      make([]int, len(son.Corners)),
			Nb:           make([]int, len(son.Nb)),
			OnFatherSide: append([]int(nil), son.OnFatherSide...),
		}
		for i, n := range son.Corners {
			sc.Corners[i] = slotOf[n]
		}
		for s, nb := range son.Nb {
			sc.Nb[s] = -1
			if j, ok := index[nb]; ok && nb.Father == e {
				sc.Nb[s] = j
			}
		}
		c.Sons = append(c.Sons, sc)
	}
	return c
}

// Xfer batches element copies for one exchange
type Xfer struct {
	ep  *Endpoint
	out map[int][]ElementCopy
}

func (ep *Endpoint) XferBegin() *Xfer {
	return &Xfer{ep: ep, out: make(map[int][]ElementCopy)}
}

// XferCopyElement queues c for rank dst
func (x *Xfer) XferCopyElement(dst int, c ElementCopy) {
	x.out[dst] = append(x.out[dst], c)
}

// XferEnd sends the queued copies and returns those received, by sender
func (x *Xfer) XferEnd(ctx context.Context) (map[int][]ElementCopy, error) {
	out := make(map[int]any, len(x.out))
	for p, cs := range x.out {
		out[p] = cs
	}
	in, err := x.ep.Exchange(ctx, "xfer", out)
	if err != nil {
		return nil, fmt.Errorf("XferEnd: %w", err)
	}
	got := make(map[int][]ElementCopy, len(in))
	for src, msg := range in {
		got[src] = msg.([]ElementCopy)
	}
	return got, nil
}
