// Package refine implements adaptive refinement of a mesh.MultiGrid: the
// closure of edge bisection patterns on each level, rule resolution, green
// and yellow closure, element subdivision and unrefinement, and the
// multigrid pass that drives them level by level.
package refine

import (
	"context"
	"fmt"

	"github.com/notargets/ugrefine/diag"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// ClosureStats counts the work of the closure computations of a session
type ClosureStats struct {
	Iterations int // FIFO pops or full sweeps
	Forced     int // red elements switched to a full red rule
	Promoted   int // non red elements whose pattern matched a red rule
	// Enqueued counts how often each element re-entered the FIFO after the
	// initial load
	Enqueued map[*mesh.Element]int
}

// ClosureSession holds the scratch state of closure computations: the work
// queue, the element index of the current level and the statistics.
type ClosureSession struct {
	ctx   context.Context
	opts  Options
	table *rules.Table
	sink  diag.Sink

	queue     []*mesh.Element
	inQueue   map[*mesh.Element]bool
	edgeElems map[*mesh.Edge][]*mesh.Element

	// NoGreenUpdate is set when no green element needs re-refinement on the
	// level last processed by BuildGreenClosure
	NoGreenUpdate bool

	Stats ClosureStats
}

func NewClosureSession(ctx context.Context, opts Options) *ClosureSession {
	opts = opts.withDefaults()
	return &ClosureSession{
		ctx:     ctx,
		opts:    opts,
		table:   opts.Table,
		sink:    opts.Sink,
		inQueue: make(map[*mesh.Element]bool),
		Stats:   ClosureStats{Enqueued: make(map[*mesh.Element]int)},
	}
}

// GridClosure computes a conforming bisection pattern for level g. On return
// every master element marked red carries a rule whose pattern equals the
// bisection bits of its edges, and every edge bisected for a red element has
// AddPattern cleared.
func (s *ClosureSession) GridClosure(g *mesh.Grid) error {
	for _, ed := range g.Edges() {
		ed.Pattern, ed.AddPattern = false, true
	}
	for _, e := range g.Elements() {
		e.SidePattern, e.DiagPattern = 0, 0
	}
	masters := g.Masters()
	for _, e := range masters {
		if e.MarkClass != mesh.Red {
			continue
		}
		r, ok := s.table.Rule(e.Geometry, e.Mark)
		if !ok {
			return fmt.Errorf("GridClosure: %s: rule %d: %w", e, e.Mark, ErrInvalidRule)
		}
		bisect(e, r.Pattern)
	}
	s.edgeElems = make(map[*mesh.Edge][]*mesh.Element)
	for _, e := range masters {
		for _, ed := range e.Edges {
			s.edgeElems[ed] = append(s.edgeElems[ed], e)
		}
	}
	rounds := 1
	if s.opts.Overlap != nil {
		// two exchange rounds settle the supported rule sets
		rounds = 2
	}
	for i := 0; i < rounds; i++ {
		if s.opts.Overlap != nil {
			if err := s.opts.Overlap.ExchangeClosureInfo(s.ctx, g); err != nil {
				return fmt.Errorf("GridClosure: level %d: %w", g.Level, err)
			}
		}
		var err error
		if s.opts.FIFO {
			err = s.fifo(masters)
		} else {
			err = s.sweep(masters)
		}
		if err != nil {
			return err
		}
	}
	for _, e := range masters {
		if e.MarkClass != mesh.Red {
			continue
		}
		r, _ := s.table.Rule(e.Geometry, e.Mark)
		if !s.opts.HangingNodes && r.Key() != keyOf(e) {
			s.sink.PrintErrorMessage(diag.Fatal, "GridClosure", "%s: no rule for pattern %b", e, e.EdgePattern())
			return fmt.Errorf("GridClosure: %s pattern %b: %w", e, e.EdgePattern(), ErrNoRule)
		}
		for i, ed := range e.Edges {
			if r.Pattern&(1<<i) != 0 {
				ed.AddPattern = false
			}
		}
	}
	return nil
}

func (s *ClosureSession) sweep(masters []*mesh.Element) error {
	for {
		s.Stats.Iterations++
		changed := false
		for _, e := range masters {
			newly, err := s.SetElementRules(e)
			if err != nil {
				return err
			}
			if len(newly) > 0 {
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
}

func (s *ClosureSession) fifo(masters []*mesh.Element) error {
	s.queue = append(s.queue[:0], masters...)
	s.inQueue = make(map[*mesh.Element]bool, len(masters))
	for _, e := range masters {
		s.inQueue[e] = true
	}
	for len(s.queue) > 0 {
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.inQueue[e] = false
		s.Stats.Iterations++
		newly, err := s.SetElementRules(e)
		if err != nil {
			return err
		}
		for _, ed := range newly {
			for _, nb := range s.edgeElems[ed] {
				if nb == e || s.inQueue[nb] {
					continue
				}
				s.queue = append(s.queue, nb)
				s.inQueue[nb] = true
				s.Stats.Enqueued[nb]++
			}
		}
	}
	return nil
}

// SetElementRules resolves the current edge pattern of e to a rule and
// returns the edges it newly bisected. Red elements adopt the matching rule
// or, when the shape has none, fall back to the full red rule; other elements
// whose pattern matches a red rule are promoted to red.
func (s *ClosureSession) SetElementRules(e *mesh.Element) ([]*mesh.Edge, error) {
	k := keyOf(e)
	top := e.Topology()
	e.SidePattern, e.DiagPattern = rules.SidePattern(top, k.Pattern), k.Diag
	if s.opts.HangingNodes {
		return nil, nil
	}
	if e.MarkClass != mesh.Red {
		if k.Pattern == 0 {
			return nil, nil
		}
		if r := s.table.Lookup(e.Geometry, k); r != nil && r.ForcesRed {
			e.Mark, e.MarkClass = canonicalRed(s.table, e).ID, mesh.Red
			s.Stats.Promoted++
		}
		return nil, nil
	}
	r := redRuleFor(s.table, e, k)
	if r == nil {
		r = canonicalRed(s.table, e)
		s.Stats.Forced++
	}
	e.Mark = r.ID
	newly := bisect(e, r.Pattern)
	if len(newly) > 0 {
		k = keyOf(e)
		e.SidePattern, e.DiagPattern = rules.SidePattern(top, k.Pattern), k.Diag
	}
	return newly, nil
}

// bisect sets the pattern bit of the edges of e selected by pattern and
// returns those that were not set before
func bisect(e *mesh.Element, pattern uint32) []*mesh.Edge {
	var newly []*mesh.Edge
	for i, ed := range e.Edges {
		if pattern&(1<<i) != 0 && !ed.Pattern {
			ed.Pattern = true
			newly = append(newly, ed)
		}
	}
	return newly
}

// keyOf builds the rule key of the current edge pattern of e
func keyOf(e *mesh.Element) rules.Key {
	return rules.KeyFor(e.Topology(), e.EdgePattern(), func(c int) int64 { return e.Corners[c].GID })
}
