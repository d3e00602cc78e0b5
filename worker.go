package pipeflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// WorkerPool runs ComputeEngine bodies off the driver context with bounded
// concurrency. Outcomes are delivered back through the Dispatcher.
type WorkerPool struct {
	sem        *semaphore.Weighted
	dispatcher *Dispatcher
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type jobOutcome struct {
	result   any
	err      error
	duration time.Duration
}

// NewWorkerPool creates a pool running at most workers engines at once.
func NewWorkerPool(workers int, dispatcher *Dispatcher) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:        semaphore.NewWeighted(int64(workers)),
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// submit starts run on a worker. jobCtx cancels this job only; closing the
// pool cancels every job. done is posted to the dispatcher.
func (p *WorkerPool) submit(jobCtx context.Context, run func(ctx context.Context) (any, error), done func(jobOutcome)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, stop := context.WithCancel(jobCtx)
		defer stop()
		unlink := context.AfterFunc(p.ctx, stop)
		defer unlink()

		var out jobOutcome
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out.err = err
		} else {
			start := time.Now()
			out.result, out.err = runRecovered(ctx, run)
			out.duration = time.Since(start)
			p.sem.Release(1)
		}

		p.dispatcher.Post(func() { done(out) })
	}()
}

func runRecovered(ctx context.Context, run func(ctx context.Context) (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ComputationFault{
				Cause:      fmt.Errorf("panic in compute engine: %v", r),
				StackTrace: debug.Stack(),
			}
		}
	}()
	return run(ctx)
}

// Close cancels all running jobs and waits for their goroutines to exit.
func (p *WorkerPool) Close() {
	p.cancel()
	p.wg.Wait()
}
