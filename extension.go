package pipeflow

import "context"

// Extension provides hooks into pipeline evaluation
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a scene
	Init(scene *Scene) error

	// Wrap intercepts operations. OpCompute is wrapped on the worker
	// goroutine running the engine; every other kind runs on the driver.
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError is called when a stage reports an error status or an engine
	// fails
	OnError(err error, op *Operation)

	// OnCacheLookup reports hits and misses of the chain and node caches
	OnCacheLookup(op *Operation, hit bool)

	// Dispose is called when the scene is disposed
	Dispose(scene *Scene) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(scene *Scene) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation) {
}

func (e *BaseExtension) OnCacheLookup(op *Operation, hit bool) {
}

func (e *BaseExtension) Dispose(scene *Scene) error {
	return nil
}

// Operation describes what is happening. Fields that do not apply to the
// operation kind are left zero.
type Operation struct {
	Kind      OperationKind
	Scene     *Scene
	Pipeline  string
	Chain     *PipelineObject
	StageName string
	Time      TimePoint
	Level     CacheLevel
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpEvaluate is one walk of a pipeline's stage chain
	OpEvaluate OperationKind = "evaluate"
	// OpApply is the application of a single stage
	OpApply OperationKind = "apply"
	// OpCompute is one ComputeEngine run on a worker
	OpCompute OperationKind = "compute"
	// OpDecorate is the decoration pass of an evaluation node
	OpDecorate OperationKind = "decorate"
)

// CacheLevel identifies which cache a lookup went to.
type CacheLevel string

const (
	CacheChain      CacheLevel = "chain"
	CacheNode       CacheLevel = "node"
	CacheDecoration CacheLevel = "decoration"
	CacheStage      CacheLevel = "stage"
)
