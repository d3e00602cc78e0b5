package pipeflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// chainCache is the single cache slot of a pipeline: the state before stage
// position, plus the upstream input it was computed from.
type chainCache struct {
	position int
	state    FlowState
	input    FlowState
}

func (c chainCache) valid() bool { return c.position >= 0 }

// PipelineObject is an ordered chain of stages applied to the output of an
// upstream source. It caches one intermediate state and is itself a Source,
// so pipelines can be stacked.
type PipelineObject struct {
	name   string
	scene  *Scene
	source Source
	stages []*Stage

	cache    chainCache
	building bool

	observers         Observers
	unsubscribeSource func()
}

func (p *PipelineObject) Name() string   { return p.name }
func (p *PipelineObject) Source() Source { return p.source }

// Stages returns the stages in chain order.
func (p *PipelineObject) Stages() []*Stage {
	return slices.Clone(p.stages)
}

// CachePosition returns the chain position of the cache slot, or -1 if the
// slot is empty. Position i holds the state before stage i.
func (p *PipelineObject) CachePosition() int {
	return p.cache.position
}

// SetSource replaces the upstream source and invalidates the whole chain.
func (p *PipelineObject) SetSource(src Source) {
	if p.unsubscribeSource != nil {
		p.unsubscribeSource()
		p.unsubscribeSource = nil
	}
	p.source = src
	if obs, ok := src.(Observable); ok {
		p.unsubscribeSource = obs.Subscribe(p.onSourceEvent)
	}
	p.OnStageChanged(-1)
}

func (p *PipelineObject) onSourceEvent(ev Event) {
	switch ev.Kind {
	case EventTargetChanged:
		p.OnStageChanged(-1)
	case EventPendingStateChanged:
		p.emit(EventPendingStateChanged)
	}
}

// Subscribe registers fn for change notifications of the pipeline output.
func (p *PipelineObject) Subscribe(fn func(Event)) func() {
	return p.observers.Subscribe(fn)
}

func (p *PipelineObject) emit(kind EventKind) {
	p.observers.Emit(Event{Kind: kind, Origin: p})
}

func (p *PipelineObject) indexOf(st *Stage) int {
	return slices.Index(p.stages, st)
}

// Evaluate returns the output of the full chain at t.
func (p *PipelineObject) Evaluate(t TimePoint) FlowState {
	return p.EvaluateUpTo(t, nil)
}

// EvaluateUpTo returns the state flowing into upto, i.e. the output of all
// stages before it. A nil or foreign upto evaluates the full chain. The
// returned validity is the full range over which the result holds, not
// restricted to t.
func (p *PipelineObject) EvaluateUpTo(t TimePoint, upto *Stage) FlowState {
	if p.source == nil {
		return EmptyFlowState()
	}
	if p.building {
		panic(fmt.Errorf("%w: pipeline %q", ErrReentrantEvaluation, p.name))
	}
	p.building = true
	defer func() { p.building = false }()

	release := p.scene.SuppressRecording()
	defer release()

	uptoIndex := len(p.stages)
	if upto != nil {
		if i := p.indexOf(upto); i >= 0 {
			uptoIndex = i
		}
	}

	rec := p.scene.history.begin(p.name, t)
	defer p.scene.history.end(rec)
	input := p.source.Evaluate(t)

	op := &Operation{Kind: OpEvaluate, Scene: p.scene, Pipeline: p.name, Chain: p, Time: t}
	res, err := p.scene.wrap(context.Background(), op, func() (any, error) {
		return p.walk(t, input, uptoIndex, rec), nil
	})
	state, ok := res.(FlowState)
	if !ok {
		state = input
		if err == nil {
			err = errors.New("evaluation aborted by extension")
		}
		state.MergeStatus(ErrorStatus(err))
		p.scene.reportError(err, op)
	}

	p.scene.history.finish(rec, state.Status())
	return state
}

func (p *PipelineObject) cacheUsable(t TimePoint, input FlowState, uptoIndex int) bool {
	c := p.cache
	return c.valid() &&
		c.position <= uptoIndex &&
		c.state.Validity().Contains(t) &&
		!c.state.Status().IsPending() &&
		input.SameStructure(c.input)
}

func (p *PipelineObject) walk(t TimePoint, input FlowState, uptoIndex int, rec *EvaluationRecord) FlowState {
	lookup := &Operation{Kind: OpEvaluate, Scene: p.scene, Pipeline: p.name, Chain: p, Time: t, Level: CacheChain}

	start := 0
	state := input
	if p.cacheUsable(t, input, uptoIndex) {
		start = p.cache.position
		state = p.cache.state
		rec.CacheHit = true
		rec.ResumedFrom = start
		p.scene.reportCacheLookup(lookup, true)
	} else {
		p.cache = chainCache{position: -1}
		p.scene.reportCacheLookup(lookup, false)
	}

	snapshot := false
	actx := ApplyCtx{Time: t, scene: p.scene}
	for i := start; i < uptoIndex; i++ {
		st := p.stages[i]
		if !st.enabled {
			continue
		}
		actx.Stage = st
		before := state

		var status Status
		var window ValidityInterval
		op := &Operation{Kind: OpApply, Scene: p.scene, Pipeline: p.name, Chain: p, StageName: st.Name(), Time: t}
		_, err := p.scene.wrap(context.Background(), op, func() (any, error) {
			status, window = st.evaluate(actx, &state)
			return nil, nil
		})
		if err != nil {
			status = ErrorStatus(err)
			window = InfiniteInterval()
		}
		if _, async := st.modifier.(AsyncModifier); status.IsError() && (!async || err != nil) {
			p.scene.reportError(errors.New(status.Text), op)
		}
		rec.StagesRun++

		if window.IsEmpty() && !snapshot {
			p.cache = chainCache{position: i, state: before, input: input}
			snapshot = true
		}
		state.IntersectValidity(window)
		state.MergeStatus(status)
	}

	if !snapshot && !state.IsEmpty() {
		p.cache = chainCache{position: uptoIndex, state: state, input: input}
	}
	return state
}

// EvaluateAsync evaluates the full chain and, while the result is pending,
// re-polls on every PendingStateChanged notification until it resolves.
func (p *PipelineObject) EvaluateAsync(t TimePoint) *Future {
	state := p.Evaluate(t)
	if !state.Status().IsPending() {
		return CompletedFuture(state)
	}

	f := newPromise()
	var unsubscribe func()
	unsubscribe = p.Subscribe(func(ev Event) {
		if ev.Kind != EventPendingStateChanged || f.IsDone() || p.building {
			return
		}
		if st := p.Evaluate(t); !st.Status().IsPending() {
			unsubscribe()
			f.fulfill(st)
		}
	})
	f.onCancel = unsubscribe
	return f
}

// OnStageChanged invalidates everything downstream of stage i. Use -1 when
// the upstream source changed.
func (p *PipelineObject) OnStageChanged(i int) {
	if p.cache.position > i {
		p.cache = chainCache{position: -1}
	}
	from := max(i+1, 0)
	if from < len(p.stages) {
		for _, st := range p.stages[from:] {
			st.onInputChanged()
		}
	}
	p.emit(EventTargetChanged)
	p.emit(EventPendingStateChanged)
}

// AppendStage adds st at the end of the chain.
func (p *PipelineObject) AppendStage(st *Stage) {
	p.InsertStage(len(p.stages), st)
}

// InsertStage inserts st at index i. A stage belongs to at most one
// pipeline.
func (p *PipelineObject) InsertStage(i int, st *Stage) {
	if st.pipeline != nil {
		panic(fmt.Sprintf("stage %s already belongs to pipeline %q", st.Name(), st.pipeline.name))
	}
	p.stages = slices.Insert(p.stages, i, st)
	st.pipeline = p
	st.onInputChanged()
	p.scene.graph.Add(st.modifier, st)
	p.OnStageChanged(i - 1)
}

// RemoveStage detaches st from the chain and cancels its computation.
func (p *PipelineObject) RemoveStage(st *Stage) bool {
	i := p.indexOf(st)
	if i < 0 {
		return false
	}
	p.stages = slices.Delete(p.stages, i, i+1)
	st.cancelJob()
	st.pipeline = nil
	p.scene.graph.Remove(st.modifier, st)
	p.OnStageChanged(i - 1)
	return true
}

// SetStageEnabled toggles st. Disabled stages are skipped without being
// evaluated.
func (p *PipelineObject) SetStageEnabled(st *Stage, enabled bool) {
	i := p.indexOf(st)
	if i < 0 || st.enabled == enabled {
		return
	}
	st.enabled = enabled
	if !enabled {
		st.cancelJob()
	}
	p.OnStageChanged(i - 1)
}

// ReplaceModifier swaps the modifier applied by st, discarding its results.
func (p *PipelineObject) ReplaceModifier(st *Stage, m Modifier) {
	i := p.indexOf(st)
	if i < 0 {
		return
	}
	p.scene.graph.Remove(st.modifier, st)
	st.modifier = m
	st.result = nil
	st.onInputChanged()
	p.scene.graph.Add(m, st)
	p.OnStageChanged(i - 1)
}

// Close cancels all computations and detaches from the source.
func (p *PipelineObject) Close() {
	for _, st := range p.stages {
		st.cancelJob()
	}
	if p.unsubscribeSource != nil {
		p.unsubscribeSource()
		p.unsubscribeSource = nil
	}
	p.cache = chainCache{position: -1}
}
