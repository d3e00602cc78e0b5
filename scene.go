package pipeflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Scene owns the shared machinery of a set of pipelines: the driver
// mailbox, the worker pool, extensions, the modifier graph and the
// evaluation history. Pipelines, stages and nodes are created through it.
//
// Evaluation is not thread-safe: everything except Dispatcher.Post and
// extension hooks for OpCompute runs on the driver goroutine.
type Scene struct {
	mu         sync.RWMutex
	tags       sync.Map
	extensions []Extension

	dispatcher *Dispatcher
	pool       *WorkerPool
	logger     *slog.Logger
	graph      *ModifierGraph
	history    *EvaluationHistory
	decorator  Decorator
	recording  recordingGuard

	workers      int
	historyLimit int
}

// SceneOption is a modifier for scenes
type SceneOption func(*Scene)

// WithSceneTag returns an option that sets a tag on a scene
func WithSceneTag[T any](tag Tag[T], val T) SceneOption {
	return func(s *Scene) {
		tag.Set(s, val)
	}
}

// WithExtension returns an option that registers an extension to a scene
func WithExtension(ext Extension) SceneOption {
	return func(s *Scene) {
		if err := s.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithLogger sets the logger used by the scene and passed to modifiers.
func WithLogger(logger *slog.Logger) SceneOption {
	return func(s *Scene) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkers limits how many compute engines run at once.
func WithWorkers(n int) SceneOption {
	return func(s *Scene) {
		s.workers = n
	}
}

// WithHistoryLimit bounds the number of retained evaluation records.
func WithHistoryLimit(n int) SceneOption {
	return func(s *Scene) {
		s.historyLimit = n
	}
}

// WithDecorator replaces DefaultDecorator for nodes created by the scene.
func WithDecorator(d Decorator) SceneOption {
	return func(s *Scene) {
		s.decorator = d
	}
}

// WithConfig applies a loaded Config.
func WithConfig(cfg *Config) SceneOption {
	return func(s *Scene) {
		s.workers = cfg.Workers
		s.historyLimit = cfg.HistoryLimit
	}
}

// NewScene creates a new scene with optional configuration
func NewScene(opts ...SceneOption) *Scene {
	s := &Scene{
		dispatcher:   NewDispatcher(),
		logger:       slog.Default(),
		graph:        NewModifierGraph(),
		decorator:    DefaultDecorator,
		workers:      DefaultConfig().Workers,
		historyLimit: DefaultConfig().HistoryLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.pool = NewWorkerPool(s.workers, s.dispatcher)
	s.history = newEvaluationHistory(s.historyLimit)
	return s
}

func (s *Scene) Dispatcher() *Dispatcher       { return s.dispatcher }
func (s *Scene) Logger() *slog.Logger          { return s.logger }
func (s *Scene) History() *EvaluationHistory   { return s.history }
func (s *Scene) ModifierGraph() *ModifierGraph { return s.graph }

// NewPipeline creates an empty chain rooted at source. source may be nil.
func (s *Scene) NewPipeline(name string, source Source) *PipelineObject {
	p := &PipelineObject{
		name:  name,
		scene: s,
		cache: chainCache{position: -1},
	}
	p.SetSource(source)
	return p
}

// NewStage wraps m into a stage that can be inserted into one pipeline.
func (s *Scene) NewStage(m Modifier, opts ...StageOption) *Stage {
	st := &Stage{
		modifier: m,
		enabled:  true,
		tags:     make(map[any]any),
		scene:    s,
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// NewNode creates an evaluation node consuming source, usually a pipeline.
func (s *Scene) NewNode(name string, source Source) *EvaluationNode {
	n := &EvaluationNode{
		name:      name,
		scene:     s,
		source:    source,
		decorator: s.decorator,
		queue:     newRequestQueue(),
	}
	if obs, ok := source.(Observable); ok {
		n.unsubscribe = obs.Subscribe(n.onSourceEvent)
	}
	return n
}

// ModifierChanged invalidates every stage applying m, in every pipeline.
func (s *Scene) ModifierChanged(m Modifier) {
	for _, st := range s.graph.StagesOf(m) {
		st.ParametersChanged()
	}
}

// UseExtension registers an extension to the scene
func (s *Scene) UseExtension(ext Extension) error {
	s.mu.Lock()
	s.extensions = append(s.extensions, ext)
	sort.Slice(s.extensions, func(i, j int) bool {
		return s.extensions[i].Order() < s.extensions[j].Order()
	})
	s.mu.Unlock()

	return ext.Init(s)
}

func (s *Scene) extensionsSnapshot() []Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exts := make([]Extension, len(s.extensions))
	copy(exts, s.extensions)
	return exts
}

// wrap runs fn inside the Wrap hooks of all extensions (middleware pattern).
func (s *Scene) wrap(ctx context.Context, op *Operation, fn func() (any, error)) (any, error) {
	exts := s.extensionsSnapshot()
	next := fn

	// Apply extensions in reverse order (last registered wraps first)
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(ctx, currentNext, op)
		}
	}

	return next()
}

func (s *Scene) reportError(err error, op *Operation) {
	for _, ext := range s.extensionsSnapshot() {
		ext.OnError(err, op)
	}
}

func (s *Scene) reportCacheLookup(op *Operation, hit bool) {
	for _, ext := range s.extensionsSnapshot() {
		ext.OnCacheLookup(op, hit)
	}
}

// GetTag retrieves a tag value from the scene
func (s *Scene) GetTag(tag any) (any, bool) {
	return s.tags.Load(tag)
}

// SetTag stores a tag value on the scene
func (s *Scene) SetTag(tag any, val any) {
	s.tags.Store(tag, val)
}

// Dispose stops all computations and disposes extensions.
func (s *Scene) Dispose() error {
	s.pool.Close()
	s.dispatcher.Close()

	for _, ext := range s.extensionsSnapshot() {
		if err := ext.Dispose(s); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}

	return nil
}
