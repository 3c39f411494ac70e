package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Hub connects the ranks of one in-process run. Each rank owns a row of
// mailboxes, one slot per sender; a slot holds at most one message per
// exchange.
type Hub struct {
	n       int
	barrier *Barrier

	mu    sync.Mutex
	slots [][]any // [dst][src]
}

func NewHub(n int) *Hub {
	h := &Hub{n: n, barrier: NewBarrier(n), slots: make([][]any, n)}
	for i := range h.slots {
		h.slots[i] = make([]any, n)
	}
	return h
}

func (h *Hub) Size() int { return h.n }

// Endpoint returns the view of rank r on the hub
func (h *Hub) Endpoint(r int) *Endpoint {
	if r < 0 || r >= h.n {
		panic(fmt.Errorf("rank %d outside 0..%d", r, h.n-1))
	}
	return &Endpoint{hub: h, rank: r}
}

// Endpoint is the communicator of one rank
type Endpoint struct {
	hub  *Hub
	rank int

	// Sent and Received count the messages moved by this rank
	Sent, Received int
}

func (ep *Endpoint) Rank() int { return ep.rank }
func (ep *Endpoint) Size() int { return ep.hub.n }

// Barrier waits for every rank to reach the same phase
func (ep *Endpoint) Barrier(ctx context.Context, phase string) error {
	return ep.hub.barrier.Await(ctx, phase)
}

// Abort fails the current and every later collective of the hub
func (ep *Endpoint) Abort(err error) { ep.hub.barrier.Abort(err) }

// Exchange is the collective message round: every rank deposits its
// outgoing messages, waits for all deposits, collects what was addressed
// to it and waits again so no slot is reused before it is drained.
// Messages are handed over by reference; senders must not touch them
// afterwards.
func (ep *Endpoint) Exchange(ctx context.Context, phase string, out map[int]any) (map[int]any, error) {
	h := ep.hub
	h.mu.Lock()
	for dst, msg := range out {
		if dst < 0 || dst >= h.n || dst == ep.rank {
			h.mu.Unlock()
			err := fmt.Errorf("%s: rank %d cannot send to rank %d", phase, ep.rank, dst)
			h.barrier.Abort(fmt.Errorf("%w: %w", ErrAborted, err))
			return nil, err
		}
		h.slots[dst][ep.rank] = msg
		ep.Sent++
	}
	h.mu.Unlock()

	if err := h.barrier.Await(ctx, phase); err != nil {
		return nil, fmt.Errorf("exchange %s on rank %d: %w", phase, ep.rank, err)
	}
	in := make(map[int]any)
	h.mu.Lock()
	for src, msg := range h.slots[ep.rank] {
		if msg != nil {
			in[src] = msg
			h.slots[ep.rank][src] = nil
			ep.Received++
		}
	}
	h.mu.Unlock()
	if err := h.barrier.Await(ctx, phase+"/drain"); err != nil {
		return nil, fmt.Errorf("exchange %s on rank %d: %w", phase, ep.rank, err)
	}
	return in, nil
}

// AllReduceMax returns the maximum of v over all ranks
func (ep *Endpoint) AllReduceMax(ctx context.Context, v int) (int, error) {
	out := make(map[int]any, ep.Size()-1)
	for r := 0; r < ep.Size(); r++ {
		if r != ep.rank {
			out[r] = v
		}
	}
	in, err := ep.Exchange(ctx, "allreduce-max", out)
	if err != nil {
		return 0, err
	}
	for _, msg := range in {
		if w := msg.(int); w > v {
			v = w
		}
	}
	return v, nil
}

// Run starts fn on n ranks and waits for all of them. The first failing
// rank cancels the context of the others so none stays blocked in a
// collective; the errors of all ranks are joined.
func Run(ctx context.Context, n int, fn func(ctx context.Context, ep *Endpoint) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	hub := NewHub(n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := 0; r < n; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			if err := fn(ctx, hub.Endpoint(r)); err != nil {
				errs[r] = fmt.Errorf("rank %d: %w", r, err)
				cancel()
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}
