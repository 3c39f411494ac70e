// Package parallel runs refinement passes on several ranks inside one
// process. Ranks are goroutines; every collective call goes through a
// Barrier that checks all ranks arrived for the same phase, and messages
// travel through a Hub of per rank mailboxes.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBarrierMismatch is returned to every party of a barrier generation
	// when the parties named different phases, which means the ranks left
	// the collective call sequence
	ErrBarrierMismatch = errors.New("parallel: barrier phase mismatch")
	// ErrAborted is returned by collectives after another rank gave up
	ErrAborted = errors.New("parallel: collective aborted")
)

type generation struct {
	phase   string
	arrived int
	err     error
	done    chan struct{}
}

func newGeneration() *generation { return &generation{done: make(chan struct{})} }

// Barrier is an N-party barrier. Failures are sticky: once a generation
// fails every later Await returns the same error.
type Barrier struct {
	mu     sync.Mutex
	n      int
	gen    *generation
	failed error
}

func NewBarrier(n int) *Barrier {
	return &Barrier{n: n, gen: newGeneration()}
}

// Await blocks until all parties arrived or ctx is done
func (b *Barrier) Await(ctx context.Context, phase string) error {
	b.mu.Lock()
	if b.failed != nil {
		b.mu.Unlock()
		return b.failed
	}
	g := b.gen
	if g.arrived == 0 {
		g.phase = phase
	} else if g.phase != phase && g.err == nil {
		g.err = fmt.Errorf("%w: %q and %q", ErrBarrierMismatch, g.phase, phase)
	}
	g.arrived++
	if g.arrived == b.n {
		if g.err != nil {
			b.failed = g.err
		}
		close(g.done)
		b.gen = newGeneration()
	}
	b.mu.Unlock()

	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		select {
		case <-g.done:
			return g.err
		default:
		}
		b.Abort(fmt.Errorf("%w: %w", ErrAborted, ctx.Err()))
		return ctx.Err()
	}
}

// Abort fails the waiting generation and every later one with err
func (b *Barrier) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed != nil {
		return
	}
	b.failed = err
	g := b.gen
	g.err = err
	close(g.done)
	b.gen = newGeneration()
}

// Err returns the error the barrier failed with, if any
func (b *Barrier) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}
