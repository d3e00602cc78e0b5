package pipeflow

import (
	"context"
	"errors"
	"fmt"
)

// EvaluationNode is the consumer end of a pipeline. It caches the final
// state and its decorated variant, and serves asynchronous requests in
// arrival order.
type EvaluationNode struct {
	name      string
	scene     *Scene
	source    Source
	decorator Decorator

	cache      FlowState
	cacheValid bool
	deco       FlowState
	decoValid  bool

	queue         *requestQueue
	evaluating    bool
	serving       bool
	deferredServe bool
	closed        bool
	unsubscribe   func()
}

func (n *EvaluationNode) Name() string { return n.name }

// QueueLen returns the number of outstanding asynchronous requests.
func (n *EvaluationNode) QueueLen() int { return n.queue.len() }

// EvaluateImmediate returns the state at t without waiting for background
// computations. The result may carry a Pending status together with the
// best stale data available.
func (n *EvaluationNode) EvaluateImmediate(t TimePoint, decorated bool) FlowState {
	if n.evaluating {
		panic(fmt.Errorf("%w: node %q", ErrReentrantEvaluation, n.name))
	}
	state := n.evaluateGuarded(t, decorated)

	if n.deferredServe && !n.serving {
		n.ServeQueuedRequests()
	}
	return state
}

func (n *EvaluationNode) evaluateGuarded(t TimePoint, decorated bool) FlowState {
	n.evaluating = true
	defer func() { n.evaluating = false }()
	return n.evaluate(t, decorated)
}

func (n *EvaluationNode) evaluate(t TimePoint, decorated bool) FlowState {
	release := n.scene.SuppressRecording()
	defer release()

	op := &Operation{Kind: OpEvaluate, Scene: n.scene, Pipeline: n.name, Time: t, Level: CacheNode}
	if n.cacheValid && n.cache.Validity().Contains(t) && !n.cache.Status().IsPending() {
		n.scene.reportCacheLookup(op, true)
	} else {
		n.scene.reportCacheLookup(op, false)
		if n.source == nil {
			n.cache = EmptyFlowState()
		} else {
			n.cache = n.source.Evaluate(t)
		}
		n.cacheValid = true
		n.decoValid = false
	}
	if !decorated {
		return n.cache
	}

	decoOp := &Operation{Kind: OpDecorate, Scene: n.scene, Pipeline: n.name, Time: t, Level: CacheDecoration}
	if n.decoValid && n.deco.Validity().Contains(t) {
		n.scene.reportCacheLookup(decoOp, true)
		return n.deco
	}
	n.scene.reportCacheLookup(decoOp, false)

	res, err := n.scene.wrap(context.Background(), decoOp, func() (any, error) {
		return n.decorator.Decorate(n.cache), nil
	})
	deco, ok := res.(FlowState)
	if !ok {
		deco = n.cache
		if err == nil {
			err = errors.New("decoration aborted by extension")
		}
		deco.MergeStatus(ErrorStatus(err))
		n.scene.reportError(err, decoOp)
	}
	n.deco = deco
	n.decoValid = !deco.Status().IsPending()
	return deco
}

// EvaluateAsync returns a future for req. Identical outstanding requests
// share one future. If nothing is queued and the result is available right
// away, the returned future is already complete.
func (n *EvaluationNode) EvaluateAsync(req Request) *Future {
	if n.closed {
		f := newPromise()
		f.fail(ErrNodeClosed)
		return f
	}
	if e, ok := n.queue.lookup(req.Key()); ok {
		return e.future
	}

	if n.queue.len() == 0 && !n.evaluating {
		state := n.EvaluateImmediate(req.Time, req.Decorated)
		if !state.Status().IsPending() {
			return CompletedFuture(state)
		}
	} else if n.evaluating {
		n.deferredServe = true
	}

	f := newPromise()
	e := n.queue.push(req, f)
	f.onCancel = func() {
		if n.queue.remove(e) {
			n.ServeQueuedRequests()
		}
	}
	return f
}

// ServeQueuedRequests fulfills queued requests in arrival order until the
// head is still pending. It runs on every PendingStateChanged notification
// of the source. Calls made while the node is evaluating or already serving
// are folded into the running call.
func (n *EvaluationNode) ServeQueuedRequests() {
	if n.evaluating || n.serving {
		n.deferredServe = true
		return
	}
	n.serving = true
	defer func() { n.serving = false }()

	for !n.closed {
		n.deferredServe = false
		head, ok := n.queue.front()
		if !ok {
			return
		}
		if head.future.IsDone() {
			n.queue.remove(head)
			continue
		}

		gen := n.queue.generation
		state := n.evaluateGuarded(head.request.Time, head.request.Decorated)

		if cur, ok := n.queue.front(); n.queue.generation != gen || !ok || cur != head {
			// The head was canceled while it was evaluated.
			continue
		}
		if state.Status().IsPending() {
			return
		}
		n.queue.popFront()
		head.future.fulfill(state)
	}
}

func (n *EvaluationNode) onSourceEvent(ev Event) {
	switch ev.Kind {
	case EventTargetChanged:
		n.Invalidate()
	case EventPendingStateChanged:
		n.ServeQueuedRequests()
	}
}

// Peek returns the last evaluated state without evaluating.
func (n *EvaluationNode) Peek() (FlowState, bool) {
	return n.cache, n.cacheValid
}

// Invalidate drops the cached final and decorated states.
func (n *EvaluationNode) Invalidate() {
	n.cacheValid = false
	n.decoValid = false
}

// Reload drops the caches and evaluates again.
func (n *EvaluationNode) Reload(t TimePoint, decorated bool) FlowState {
	n.Invalidate()
	return n.EvaluateImmediate(t, decorated)
}

// Close cancels every queued request with ErrCanceled and detaches from
// the source. Further requests fail with ErrNodeClosed.
func (n *EvaluationNode) Close() {
	if n.closed {
		return
	}
	n.closed = true
	for _, e := range n.queue.drain() {
		e.future.onCancel = nil
		e.future.Cancel()
	}
	if n.unsubscribe != nil {
		n.unsubscribe()
		n.unsubscribe = nil
	}
	n.Invalidate()
}
