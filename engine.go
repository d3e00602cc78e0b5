package pipeflow

import (
	"context"
	"log/slog"
)

// ComputeEngine is one invocation of a potentially long-running algorithm.
// Run executes on a worker goroutine. It must poll ctx for cancellation and
// must not touch pipeline state; everything it needs is captured when the
// engine is created.
type ComputeEngine interface {
	Run(ctx context.Context, progress ProgressSink) (any, error)
}

// ComputeEngineFunc adapts a function to the ComputeEngine interface.
type ComputeEngineFunc func(ctx context.Context, progress ProgressSink) (any, error)

func (f ComputeEngineFunc) Run(ctx context.Context, progress ProgressSink) (any, error) {
	return f(ctx, progress)
}

// Modifier is an algorithm that can be applied in one or more pipelines.
// A single modifier instance may be shared by several stages.
type Modifier interface {
	Kind() string
	// ValidityWindow is the time range over which the modifier's own
	// parameters stay constant around ctx.Time.
	ValidityWindow(ctx ApplyCtx) ValidityInterval
}

// SyncModifier is a cheap modifier applied in place on the driver.
type SyncModifier interface {
	Modifier
	Apply(ctx ApplyCtx, state *FlowState) Status
}

// AsyncModifier delegates its work to a ComputeEngine.
type AsyncModifier interface {
	Modifier
	// NewEngine snapshots everything the computation needs from input.
	// A returned error is a configuration problem and no job is started.
	NewEngine(ctx ApplyCtx, input FlowState) (ComputeEngine, error)
	// ApplyResult merges a finished engine result into state.
	ApplyResult(ctx ApplyCtx, result any, state *FlowState) Status
}

// LiveEditor is implemented by modifiers that can be in an interactive
// editing session. While live, a stage reports an empty validity window.
type LiveEditor interface {
	IsLiveEditing() bool
}

// ApplyCtx is passed to modifiers while a stage is evaluated.
type ApplyCtx struct {
	Time  TimePoint
	Stage *Stage
	scene *Scene
}

func (c ApplyCtx) Logger() *slog.Logger {
	if c.scene == nil {
		return slog.Default()
	}
	return c.scene.logger
}

// GetTag retrieves a value stored on the scene.
func (c ApplyCtx) GetTag(tag any) (any, bool) {
	if c.scene == nil {
		return nil, false
	}
	return c.scene.GetTag(tag)
}

// GetSceneTag retrieves a typed tag from the scene the stage belongs to.
func GetSceneTag[T any](ctx ApplyCtx, tag Tag[T]) (T, bool) {
	if ctx.scene == nil {
		var zero T
		return zero, false
	}
	return tag.GetFromScene(ctx.scene)
}
