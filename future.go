package pipeflow

import (
	"context"
	"sync"
)

// Future is the result of an asynchronous evaluation. It is fulfilled on the
// driver; Done, Wait and Result may be used from any goroutine.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	state     FlowState
	err       error
	finished  bool
	canceled  bool
	callbacks []func(FlowState, error)

	onCancel func()
}

func newPromise() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture returns an already fulfilled future.
func CompletedFuture(state FlowState) *Future {
	f := newPromise()
	f.fulfill(state)
	return f
}

func (f *Future) fulfill(state FlowState) {
	f.complete(state, nil)
}

func (f *Future) fail(err error) {
	f.complete(EmptyFlowState(), err)
}

func (f *Future) complete(state FlowState, err error) bool {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return false
	}
	f.finished = true
	f.state = state
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(state, err)
	}
	return true
}

// Cancel abandons the request. A queued request is removed without
// affecting the requests behind it. Cancel must be called on the driver.
func (f *Future) Cancel() {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.canceled = true
	f.mu.Unlock()

	f.complete(EmptyFlowState(), ErrCanceled)
	if f.onCancel != nil {
		f.onCancel()
	}
}

// Done is closed once the future is fulfilled, failed or canceled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

func (f *Future) IsCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

// Result returns the evaluated state. It returns ErrCanceled for canceled
// futures and does not block: before completion it returns an empty state
// and a nil error, check IsDone first or use Wait.
func (f *Future) Result() (FlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.finished {
		return FlowState{}, nil
	}
	return f.state, f.err
}

// Wait blocks until the future completes or ctx ends. Completion requires
// the driver to run, so Wait must not be called from the driver goroutine;
// drivers use Dispatcher.RunUntil with IsDone instead.
func (f *Future) Wait(ctx context.Context) (FlowState, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return FlowState{}, ctx.Err()
	}
}

// OnDone registers cb to run when the future completes. If it already has,
// cb runs immediately.
func (f *Future) OnDone(cb func(FlowState, error)) {
	f.mu.Lock()
	if !f.finished {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	state, err := f.state, f.err
	f.mu.Unlock()
	cb(state, err)
}
