package pipeflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testObject struct {
	label string
}

func (o *testObject) Kind() string     { return "test" }
func (o *testObject) Describe() string { return "object " + o.label }

// countingModifier is a synchronous modifier recording how often it ran.
type countingModifier struct {
	name    string
	value   any
	window  ValidityInterval
	live    bool
	status  Status
	calls   int
	onApply func(ctx ApplyCtx)
}

func newCounting(name string) *countingModifier {
	return &countingModifier{name: name, value: name, window: InfiniteInterval()}
}

func (m *countingModifier) Kind() string { return m.name }

func (m *countingModifier) ValidityWindow(ctx ApplyCtx) ValidityInterval { return m.window }

func (m *countingModifier) IsLiveEditing() bool { return m.live }

func (m *countingModifier) Apply(ctx ApplyCtx, state *FlowState) Status {
	m.calls++
	if m.onApply != nil {
		m.onApply(ctx)
	}
	state.SetAttribute(m.name, m.value)
	return m.status
}

// gatedModifier computes in the background. Engines block until gate is
// closed, or forever for times listed in stuck.
type gatedModifier struct {
	name      string
	gate      chan struct{}
	stuck     map[TimePoint]bool
	fail      error
	panicMsg  string
	engineErr error
	started   []TimePoint
}

func newGated(name string) *gatedModifier {
	gate := make(chan struct{})
	close(gate)
	return &gatedModifier{name: name, gate: gate, stuck: map[TimePoint]bool{}}
}

func (m *gatedModifier) Kind() string { return m.name }

func (m *gatedModifier) ValidityWindow(ctx ApplyCtx) ValidityInterval { return InfiniteInterval() }

func (m *gatedModifier) NewEngine(ctx ApplyCtx, input FlowState) (ComputeEngine, error) {
	if m.engineErr != nil {
		return nil, m.engineErr
	}
	m.started = append(m.started, ctx.Time)

	gate, fail, panicMsg := m.gate, m.fail, m.panicMsg
	stuck := m.stuck[ctx.Time]
	result := fmt.Sprintf("%s@%d", m.name, ctx.Time)
	return ComputeEngineFunc(func(ctx context.Context, progress ProgressSink) (any, error) {
		if stuck {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if panicMsg != "" {
			panic(panicMsg)
		}
		if fail != nil {
			return nil, fail
		}
		return result, nil
	}), nil
}

func (m *gatedModifier) ApplyResult(ctx ApplyCtx, result any, state *FlowState) Status {
	state.SetAttribute(m.name, result)
	return Success()
}

func newTestScene(t *testing.T, opts ...SceneOption) *Scene {
	t.Helper()
	s := NewScene(opts...)
	t.Cleanup(func() { s.Dispose() })
	return s
}

func staticInput(labels ...string) *StaticSource {
	state := NewFlowState(InfiniteInterval())
	for _, l := range labels {
		state.AddObject(&testObject{label: l})
	}
	return NewStaticSource(state)
}

// perTimeInput yields a distinct state for every time point.
func perTimeInput() *FuncSource {
	return NewFuncSource(func(t TimePoint) FlowState {
		return NewFlowState(PointInterval(t), &testObject{label: fmt.Sprint(t)})
	})
}

// drive runs the dispatcher until cond holds.
func drive(t *testing.T, s *Scene, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Dispatcher().RunUntil(ctx, cond))
}

func attr(state FlowState, name string) any {
	v, _ := state.Attribute(name)
	return v
}

// recordingExtension captures hook calls. Wrap may run on workers for
// OpCompute, so everything is guarded.
type recordingExtension struct {
	BaseExtension
	order int

	mu     sync.Mutex
	ops    []OperationKind
	errs   []error
	hits   map[CacheLevel]int
	misses map[CacheLevel]int
	onWrap func(op *Operation)
}

func newRecorder(name string, order int) *recordingExtension {
	return &recordingExtension{
		BaseExtension: NewBaseExtension(name),
		order:         order,
		hits:          map[CacheLevel]int{},
		misses:        map[CacheLevel]int{},
	}
}

func (e *recordingExtension) Order() int { return e.order }

func (e *recordingExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	e.mu.Lock()
	e.ops = append(e.ops, op.Kind)
	hook := e.onWrap
	e.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return next()
}

func (e *recordingExtension) OnError(err error, op *Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *recordingExtension) OnCacheLookup(op *Operation, hit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hit {
		e.hits[op.Level]++
	} else {
		e.misses[op.Level]++
	}
}

func (e *recordingExtension) recordedErrors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func (e *recordingExtension) count(kind OperationKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, k := range e.ops {
		if k == kind {
			n++
		}
	}
	return n
}
