package refine

import (
	"fmt"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// Context lists the nodes on the next level that the sons of one element are
// built from, indexed by context slot. Slots the rule does not use stay nil.
type Context struct {
	Nodes   []*mesh.Node
	Created int // nodes allocated by UpdateContext
}

// UpdateContext fills the context of e for rule r on the fine level. Every
// node is created at most once per father object: corner sons through
// Node.Son, mid nodes through Edge.Mid, side nodes through the side lookup
// of the coarse level and the center through Element.Center, so elements
// sharing a father edge or side get the same node.
func UpdateContext(fine *mesh.Grid, e *mesh.Element, r *rules.Rule) (Context, error) {
	top := e.Topology()
	ctx := Context{Nodes: make([]*mesh.Node, top.ContextSize())}
	if fine.Level != e.Level+1 {
		return ctx, fmt.Errorf("UpdateContext: %s refined into level %d", e, fine.Level)
	}
	for _, slot := range r.Slots() {
		var (
			n       *mesh.Node
			err     error
			existed bool
		)
		switch top.Kind(slot) {
		case element.CornerSlot:
			father := e.Corners[slot]
			existed = father.Son != nil
			n, err = fine.NewCornerSon(father, 0)
		case element.MidSlotKind:
			ed := e.Edges[slot-top.Corners]
			existed = ed.Mid != nil
			n, err = fine.NewMidNode(ed, e, 0)
		case element.SideSlotKind:
			face := e.SideNodes(slot - top.Corners - top.NumEdges())
			existed = fine.MG.Level(e.Level).SideNode(face) != nil
			n, err = fine.NewSideNode(face, e, 0)
		case element.CenterSlotKind:
			existed = e.Center != nil
			n, err = fine.NewCenterNode(e, 0)
		}
		if err != nil {
			return ctx, fmt.Errorf("UpdateContext: %s slot %d: %w", e, slot, err)
		}
		if !existed {
			ctx.Created++
		}
		ctx.Nodes[slot] = n
	}
	return ctx, nil
}
