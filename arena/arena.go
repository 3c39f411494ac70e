// Package arena provides per-level object storage with generation checked
// handles. Freeing a slot bumps its generation so any handle still pointing
// at it no longer resolves.
package arena

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when a Budget has no room left for an allocation
var ErrExhausted = errors.New("arena: object budget exhausted")

// Handle names one slot of an Arena. The zero Handle is never valid.
type Handle struct {
	idx uint32
	gen uint32
}

func (h Handle) IsNil() bool { return h.gen == 0 }

// Index is the slot index, stable for the lifetime of the object
func (h Handle) Index() int { return int(h.idx) }

// Less orders handles by slot index
func (h Handle) Less(o Handle) bool {
	if h.idx != o.idx {
		return h.idx < o.idx
	}
	return h.gen < o.gen
}

func (h Handle) String() string { return fmt.Sprintf("#%d.%d", h.idx, h.gen) }

// Budget is a shared object count limit, standing in for a bounded heap.
// A zero Limit means unlimited.
type Budget struct {
	Limit int
	used  int
}

func (b *Budget) take() error {
	if b == nil {
		return nil
	}
	if b.Limit > 0 && b.used >= b.Limit {
		return ErrExhausted
	}
	b.used++
	return nil
}

func (b *Budget) release() {
	if b != nil && b.used > 0 {
		b.used--
	}
}

// Used returns the number of live objects charged to the budget
func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	return b.used
}

// Remaining returns how many more objects fit, or -1 when unlimited
func (b *Budget) Remaining() int {
	if b == nil || b.Limit <= 0 {
		return -1
	}
	return b.Limit - b.used
}

type slot[T any] struct {
	gen uint32
	val *T
}

// Arena stores *T values addressed by Handle
type Arena[T any] struct {
	slots  []slot[T]
	free   []uint32
	live   int
	budget *Budget
}

func New[T any](budget *Budget) *Arena[T] {
	return &Arena[T]{budget: budget}
}

// Alloc stores v and returns its handle
func (a *Arena[T]) Alloc(v *T) (Handle, error) {
	if err := a.budget.take(); err != nil {
		return Handle{}, err
	}
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.val = v
	a.live++
	return Handle{idx: idx, gen: s.gen}, nil
}

// Free releases the slot named by h. Returns false for stale handles.
func (a *Arena[T]) Free(h Handle) bool {
	if !a.Valid(h) {
		return false
	}
	s := &a.slots[h.idx]
	s.val = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.idx)
	a.live--
	a.budget.release()
	return true
}

func (a *Arena[T]) Valid(h Handle) bool {
	return !h.IsNil() && int(h.idx) < len(a.slots) && a.slots[h.idx].gen == h.gen &&
		a.slots[h.idx].val != nil
}

// Get resolves h, returning nil for stale or nil handles
func (a *Arena[T]) Get(h Handle) *T {
	if !a.Valid(h) {
		return nil
	}
	return a.slots[h.idx].val
}

// MustGet resolves h and panics on a stale handle
func (a *Arena[T]) MustGet(h Handle) *T {
	v := a.Get(h)
	if v == nil {
		panic(fmt.Errorf("arena: stale handle %v", h))
	}
	return v
}

func (a *Arena[T]) Len() int { return a.live }

// All returns a snapshot of the live values in slot order
func (a *Arena[T]) All() []*T {
	out := make([]*T, 0, a.live)
	for _, s := range a.slots {
		if s.val != nil {
			out = append(out, s.val)
		}
	}
	return out
}
