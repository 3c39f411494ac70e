package refine

import (
	"context"

	"github.com/notargets/ugrefine/diag"
	"github.com/notargets/ugrefine/mesh"
	"github.com/notargets/ugrefine/rules"
)

// CopyMode selects which unrefined elements get a yellow copy son
type CopyMode uint8

const (
	// CopyLocal copies elements within CopyDepth neighbor steps of a
	// refined element
	CopyLocal CopyMode = iota
	// CopyAll copies every unrefined element of a level that gets a finer
	// level
	CopyAll
)

func (m CopyMode) String() string {
	if m == CopyAll {
		return "ALL"
	}
	return "LOCAL"
}

// Options configures one refinement pass. The zero value is the sequential
// default: local copies one step deep, strict closure, sweep iteration and
// the complete tetrahedron rules.
type Options struct {
	Copy      CopyMode
	CopyDepth int // defaults to 1

	HangingNodes bool
	FIFO         bool
	// SequentialFallback lets distributed runs skip unchanged green
	// elements on the interface the way a single rank does
	SequentialFallback bool

	Table *rules.Table // defaults to rules.Default()

	// MaxObjects caps the number of live objects; zero keeps the current
	// budget of the multigrid
	MaxObjects int

	Sink    diag.Sink // defaults to diag.Discard
	Overlap Overlap   // nil for a single rank
}

func (o Options) withDefaults() Options {
	if o.CopyDepth <= 0 {
		o.CopyDepth = 1
	}
	if o.Table == nil {
		o.Table = rules.Default()
	}
	if o.Sink == nil {
		o.Sink = diag.Discard
	}
	return o
}

// MarkRequest asks the owner of an element to mark it with a rule
type MarkRequest struct {
	Elem *mesh.Element
	Rule int
}

// Overlap is the distributed collaborator of a refinement pass. Every
// method is collective: all ranks call it in the same order.
type Overlap interface {
	Rank() int
	Size() int

	// CheckPartitioning verifies that every element family that may change
	// this pass is owned by one rank
	CheckPartitioning(ctx context.Context, mg *mesh.MultiGrid) error
	// AllReduceMax returns the maximum of v over all ranks
	AllReduceMax(ctx context.Context, v int) (int, error)
	// ExchangeClosureInfo ORs the bisection bits of edges held by several ranks
	ExchangeClosureInfo(ctx context.Context, g *mesh.Grid) error
	// ForwardMarks sends mark requests for ghost elements to their owners
	// and returns the requests received for local masters
	ForwardMarks(ctx context.Context, g *mesh.Grid, out []MarkRequest) ([]MarkRequest, error)
	// IdentifyGridLevels gives every node created on levels from..to that is
	// shared with other ranks one global id
	IdentifyGridLevels(ctx context.Context, mg *mesh.MultiGrid, from, to int) error
	// UpdateGridOverlap sends the sons of refined masters to the ranks
	// holding ghost copies and rebuilds the local ghost sons
	UpdateGridOverlap(ctx context.Context, g *mesh.Grid) error
	// ConnectGridOverlap wires neighbor links of ghost elements on g, which
	// is nil when no rank refined into it
	ConnectGridOverlap(ctx context.Context, g *mesh.Grid) error
}
