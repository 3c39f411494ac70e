package refine

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/ugrefine/arena"
	"github.com/notargets/ugrefine/diag"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// Result summarizes one refinement pass
type Result struct {
	Levels          int // levels after the pass
	ElementsCreated int
	ElementsRemoved int
	NodesCreated    int
	Coarsened       int // red fathers that lost their sons
	Red             int // elements refined this pass, by class
	Green           int
	Yellow          int
	Kept            int // refined elements left untouched
	Closure         ClosureStats
}

func (r Result) String() string {
	return fmt.Sprintf("levels %d, elements +%d -%d, nodes +%d, refined red %d green %d yellow %d, kept %d, coarsened %d, closure iterations %d",
		r.Levels, r.ElementsCreated, r.ElementsRemoved, r.NodesCreated, r.Red, r.Green, r.Yellow, r.Kept,
		r.Coarsened, r.Closure.Iterations)
}

// Pass carries the state of one refinement pass over a multigrid
type Pass struct {
	ctx     context.Context
	mg      *mesh.MultiGrid
	opts    Options
	t       *rules.Table
	sink    diag.Sink
	session *ClosureSession
	res     Result
}

func NewPass(ctx context.Context, mg *mesh.MultiGrid, opts Options) *Pass {
	opts = opts.withDefaults()
	return &Pass{
		ctx:     ctx,
		mg:      mg,
		opts:    opts,
		t:       opts.Table,
		sink:    opts.Sink,
		session: NewClosureSession(ctx, opts),
	}
}

// Session exposes the closure session of the pass
func (p *Pass) Session() *ClosureSession { return p.session }

// Result returns the statistics gathered so far
func (p *Pass) Result() Result {
	r := p.res
	r.Levels = p.mg.TopLevel() + 1
	r.Closure = p.session.Stats
	return r
}

// RefineMultiGrid runs one refinement pass. It returns nil on success, an
// error matching ErrOverflow or ErrPartitioning when the pass was rejected
// before touching the multigrid, and an error matching ErrCorrupted when
// it failed half way; the multigrid is then flagged and must be discarded.
func RefineMultiGrid(mg *mesh.MultiGrid, opts Options) error {
	_, err := RefineMultiGridStats(context.Background(), mg, opts)
	return err
}

// RefineMultiGridStats is RefineMultiGrid with a context for the collective
// calls of distributed runs and the statistics of the pass
func RefineMultiGridStats(ctx context.Context, mg *mesh.MultiGrid, opts Options) (Result, error) {
	if mg.Corrupted {
		return Result{}, fmt.Errorf("RefineMultiGrid: refusing a multigrid left by a failed pass: %w", ErrCorrupted)
	}
	p := NewPass(ctx, mg, opts)
	if p.opts.MaxObjects > 0 {
		mg.Budget.Limit = p.opts.MaxObjects
	}
	if err := p.precheck(); err != nil {
		return p.Result(), err
	}
	if err := p.run(); err != nil {
		mg.Corrupted = true
		return p.Result(), fmt.Errorf("RefineMultiGrid: %w: %w", ErrCorrupted, err)
	}
	res := p.Result()
	p.sink.UserWrite("refine: %s\n", res)
	return res, nil
}

// precheck rejects a pass that cannot succeed before anything is changed
func (p *Pass) precheck() error {
	ov := p.opts.Overlap
	if ov != nil {
		if err := ov.CheckPartitioning(p.ctx, p.mg); err != nil {
			p.sink.PrintErrorMessage(diag.Error, "RefineMultiGrid", "%v", err)
			if errors.Is(err, ErrPartitioning) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrPartitioning, err)
		}
	}
	need := p.predictObjects()
	over := 0
	if rem := p.mg.Budget.Remaining(); rem >= 0 && need > rem {
		over = 1
		p.sink.PrintErrorMessage(diag.Error, "RefineMultiGrid",
			"%d marked elements need about %d objects, %d left", len(MarkedLeaves(p.mg)), need, rem)
	}
	if ov != nil {
		var err error
		if over, err = ov.AllReduceMax(p.ctx, over); err != nil {
			return fmt.Errorf("RefineMultiGrid: overflow check: %w", err)
		}
	}
	if over > 0 {
		return fmt.Errorf("RefineMultiGrid: %w", ErrOverflow)
	}
	return nil
}

// predictObjects estimates the objects the marked leaves will allocate:
// sons with their edges plus one node per context slot
func (p *Pass) predictObjects() int {
	n := 0
	for _, e := range MarkedLeaves(p.mg) {
		r, ok := p.t.Rule(e.Geometry, e.Mark)
		if !ok {
			continue
		}
		for _, s := range r.Sons {
			n += 1 + len(s.Nb)
		}
		n += 2 * len(r.Slots())
	}
	return n
}

func (p *Pass) globalTop() (int, error) {
	top := p.mg.TopLevel()
	if p.opts.Overlap == nil {
		return top, nil
	}
	return p.opts.Overlap.AllReduceMax(p.ctx, top)
}

func (p *Pass) run() error {
	if p.opts.HangingNodes {
		if n := DropMarks(p.t, p.mg); n > 0 {
			p.sink.UserWrite("refine: %d marks dropped to regular ancestors\n", n)
		}
	}
	top, err := p.globalTop()
	if err != nil {
		return err
	}
	if err := p.restrictMarks(top); err != nil {
		return err
	}
	for l := 0; ; l++ {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		top, err := p.globalTop()
		if err != nil {
			return err
		}
		if l > top {
			break
		}
		if err := p.RefineGrid(l); err != nil {
			return fmt.Errorf("level %d: %w", l, err)
		}
	}
	for _, g := range p.mg.Grids() {
		for _, e := range g.Elements() {
			e.Coarsen, e.UpdateGreen = false, false
		}
	}
	p.mg.DropEmptyTopLevels()
	return nil
}

// changes reports whether the sons of e must be rebuilt
func changes(e *mesh.Element) bool {
	switch {
	case e.IsLeaf():
		return e.MarkClass != mesh.NoClass
	case e.MarkClass == mesh.NoClass:
		return true
	case e.Mark != e.Refine || e.MarkClass != e.RefineClass:
		return true
	}
	return e.MarkClass == mesh.Green && e.UpdateGreen
}

// RefineGrid runs the authoritative closure of level l, classifies green
// and yellow elements and rebuilds the sons of every master whose
// refinement changed. Unchanged refinements are left alone, so running a
// pass twice without new marks creates nothing.
func (p *Pass) RefineGrid(l int) error {
	g := p.mg.EnsureLevel(l)
	if err := p.session.GridClosure(g); err != nil {
		return err
	}
	if err := BuildGreenClosure(p.session, g); err != nil {
		return err
	}
	PropagateCopies(g, p.opts.Copy, p.opts.CopyDepth)

	var changed []*mesh.Element
	needFine := false
	for _, e := range g.Masters() {
		if e.MarkClass != mesh.NoClass {
			needFine = true
		}
		if changes(e) {
			changed = append(changed, e)
		} else if !e.IsLeaf() {
			p.res.Kept++
		}
	}
	if ov := p.opts.Overlap; ov != nil {
		// every rank creates the finer level once any rank refines into it
		flag := 0
		if needFine {
			flag = 1
		}
		global, err := ov.AllReduceMax(p.ctx, flag)
		if err != nil {
			return err
		}
		needFine = global > 0
	}
	var fine *mesh.Grid
	if needFine {
		fine = p.mg.EnsureLevel(l + 1)
	}
	for _, e := range changed {
		n, err := UnrefineElement(p.t, p.mg, e)
		if err != nil {
			return p.fatal(err)
		}
		p.res.ElementsRemoved += n
	}
	for _, e := range changed {
		if e.MarkClass == mesh.NoClass {
			continue
		}
		ctx, err := RefineElement(p.t, fine, e)
		if err != nil {
			return p.fatal(err)
		}
		p.res.NodesCreated += ctx.Created
		p.res.ElementsCreated += len(e.Sons)
		switch e.MarkClass {
		case mesh.Red:
			p.res.Red++
		case mesh.Green:
			p.res.Green++
		case mesh.Yellow:
			p.res.Yellow++
		}
	}
	for _, e := range changed {
		for s := range e.Nb {
			if err := ConnectSonsOfElementSide(e, s, p.opts.HangingNodes); err != nil {
				return p.fatal(err)
			}
		}
	}
	for _, e := range g.Masters() {
		e.Refine, e.RefineClass = e.Mark, e.MarkClass
	}
	if ov := p.opts.Overlap; ov != nil {
		if err := ov.IdentifyGridLevels(p.ctx, p.mg, l+1, l+1); err != nil {
			return err
		}
		if err := ov.UpdateGridOverlap(p.ctx, g); err != nil {
			return err
		}
		if err := ov.ConnectGridOverlap(p.ctx, fine); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pass) fatal(err error) error {
	var where string
	switch {
	case errors.Is(err, arena.ErrExhausted):
		where = "allocation"
	case errors.Is(err, ErrNeighborMismatch):
		where = "ConnectSonsOfElementSide"
	case errors.Is(err, ErrSonCount):
		where = "UnrefineElement"
	default:
		where = "RefineGrid"
	}
	p.sink.PrintErrorMessage(diag.Fatal, where, "%v", err)
	return err
}
