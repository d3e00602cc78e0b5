// Package pipeflow evaluates and caches modification pipelines: ordered
// chains of stages that transform a FlowState produced by a source.
//
// # Overview
//
// Pipeflow organizes code around four concepts:
//
//  1. FlowState: a copy-on-write packet of data objects, attributes, a
//     validity interval and a status
//  2. Stages: one modifier applied at one position of one pipeline
//  3. PipelineObject: the chain, with a single-slot cache of an
//     intermediate state
//  4. EvaluationNode: the consumer end, caching the final state and serving
//     asynchronous requests in arrival order
//
// # Basic Usage
//
//	scene := pipeflow.NewScene()
//	defer scene.Dispose()
//
//	src := pipeflow.NewStaticSource(pipeflow.NewFlowState(
//	    pipeflow.InfiniteInterval(),
//	    modifiers.NewPoints("x", 1, 2, 3),
//	))
//	p := scene.NewPipeline("main", src)
//	p.AppendStage(scene.NewStage(modifiers.NewScale("x", 2)))
//	p.AppendStage(scene.NewStage(modifiers.NewSum("x", "total")))
//
//	node := scene.NewNode("main", p)
//	state := node.EvaluateImmediate(0, false)
//	// state.Status() is Pending while the sum is computed in the background.
//
// # Driver and Workers
//
// Evaluation is single-threaded. The goroutine calling Evaluate* is the
// driver; only ComputeEngine bodies run on worker goroutines. Workers post
// their completions to the scene's Dispatcher, and the driver runs them:
//
//	fut := node.EvaluateAsync(pipeflow.Request{Time: 0})
//	err := scene.Dispatcher().RunUntil(ctx, fut.IsDone)
//	state, err := fut.Result()
//
// # Validity and Status
//
// Every stage narrows the validity interval of the flow to the window over
// which its own output stays constant. A stage in a live editing session
// reports an empty window; the chain cache then snapshots the state right
// before it, so edits do not recompute the stages in front of it.
//
// Statuses merge along the chain with MergeStatus: Pending dominates Error,
// which dominates Success. An error upstream of a stage that is still
// computing is therefore reported as pending.
//
// # Invalidation
//
// After editing a modifier, call Stage.ParametersChanged, or
// Scene.ModifierChanged for a modifier shared by several stages. Structural
// edits (InsertStage, RemoveStage, SetStageEnabled, ReplaceModifier)
// invalidate automatically. Observable sources invalidate the chains they
// feed when they emit EventTargetChanged.
//
// # Extensions
//
// Extensions observe evaluation through a middleware hook:
//
//	type timing struct{ pipeflow.BaseExtension }
//
//	func (e *timing) Wrap(ctx context.Context, next func() (any, error), op *pipeflow.Operation) (any, error) {
//	    start := time.Now()
//	    res, err := next()
//	    log.Printf("%s %s took %v", op.Kind, op.Pipeline, time.Since(start))
//	    return res, err
//	}
//
// The extensions package provides logging, Prometheus metrics, OpenTelemetry
// tracing and a chain dump on stage failures.
package pipeflow
