package pipeflow

import (
	"context"
	"sync"
)

// Dispatcher is the mailbox of the driver context. Worker goroutines never
// touch pipeline state; they Post a completion function and the goroutine
// driving evaluation runs it with Drain, Step or RunUntil.
type Dispatcher struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

// Post queues fn for execution on the driver. It is safe to call from any
// goroutine. It returns false once the dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued functions.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Drain runs queued functions, including ones posted while draining, until
// the mailbox is empty. It returns how many functions ran.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Step blocks until at least one function is queued, then drains.
func (d *Dispatcher) Step(ctx context.Context) error {
	for {
		if d.Drain() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}
	}
}

// RunUntil drives the mailbox until cond reports true or ctx ends.
func (d *Dispatcher) RunUntil(ctx context.Context, cond func() bool) error {
	d.Drain()
	for !cond() {
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close rejects further posts and drops anything still queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.pending = nil
	d.mu.Unlock()
}
