package pipeflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// JobState is the state of a stage's background computation.
type JobState int

const (
	JobIdle JobState = iota
	JobComputing
)

func (s JobState) String() string {
	if s == JobComputing {
		return "computing"
	}
	return "idle"
}

// Outcome is how the last background computation of a stage ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeReady
	OutcomeFailed
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Stage is the application of one modifier at one position of one
// pipeline. The modifier may be shared with other stages; everything that
// depends on the chain, like cached engine results, lives here.
type Stage struct {
	modifier Modifier
	enabled  bool
	tags     map[any]any
	scene    *Scene
	pipeline *PipelineObject

	job      *stageJob
	gen      uint64
	result   *stageResult
	failure  *stageFailure
	halt     *stageFailure
	outcome  Outcome
	progress *TaskProgress

	applyCount int
	jobCount   int
}

type stageJob struct {
	gen      uint64
	cancel   context.CancelFunc
	inputFP  uint64
	validity ValidityInterval
}

type stageResult struct {
	value    any
	validity ValidityInterval
	inputFP  uint64
	stale    bool
}

type stageFailure struct {
	status   Status
	validity ValidityInterval
	inputFP  uint64
}

// StageOption configures a stage at creation.
type StageOption func(*Stage)

// WithStageName sets the StageName tag.
func WithStageName(name string) StageOption {
	return func(st *Stage) {
		StageName().Set(st, name)
	}
}

// WithStageTag sets an arbitrary tag on the stage.
func WithStageTag[T any](tag Tag[T], val T) StageOption {
	return func(st *Stage) {
		tag.Set(st, val)
	}
}

// Disabled creates the stage switched off.
func Disabled() StageOption {
	return func(st *Stage) {
		st.enabled = false
	}
}

func (s *Stage) Modifier() Modifier        { return s.modifier }
func (s *Stage) Enabled() bool             { return s.enabled }
func (s *Stage) Pipeline() *PipelineObject { return s.pipeline }

// Name returns the StageName tag, falling back to the modifier kind.
func (s *Stage) Name() string {
	return StageName().GetOrDefault(s, s.modifier.Kind())
}

func (s *Stage) GetTag(tag any) (any, bool) {
	val, ok := s.tags[tag]
	return val, ok
}

func (s *Stage) SetTag(tag any, val any) {
	s.tags[tag] = val
}

// Index returns the stage's position in its pipeline, or -1.
func (s *Stage) Index() int {
	if s.pipeline == nil {
		return -1
	}
	return s.pipeline.indexOf(s)
}

// JobState reports whether a background computation is running.
func (s *Stage) JobState() JobState {
	if s.job != nil {
		return JobComputing
	}
	return JobIdle
}

// LastOutcome reports how the last background computation ended.
func (s *Stage) LastOutcome() Outcome { return s.outcome }

// Progress returns the progress of the running computation, or nil.
func (s *Stage) Progress() *TaskProgress {
	if s.job == nil {
		return nil
	}
	return s.progress
}

// ApplyCount is the number of times the stage has been evaluated.
func (s *Stage) ApplyCount() int { return s.applyCount }

// JobCount is the number of compute engines the stage has started.
func (s *Stage) JobCount() int { return s.jobCount }

// ParametersChanged must be called after the modifier's parameters were
// edited. It drops the stage's own results and invalidates the chain from
// this stage on. For modifiers shared by several stages use
// Scene.ModifierChanged instead.
func (s *Stage) ParametersChanged() {
	s.onInputChanged()
	if s.pipeline != nil {
		s.pipeline.OnStageChanged(s.Index())
	}
}

// CancelComputation stops the running computation on user request. The
// stage reports an informational status and does not restart on its own
// until its input or parameters change.
func (s *Stage) CancelComputation() {
	if s.job == nil {
		return
	}
	job := s.job
	s.cancelJob()
	s.halt = &stageFailure{status: Info("computation canceled"), validity: job.validity, inputFP: job.inputFP}
	s.outcome = OutcomeCanceled
	if s.pipeline != nil {
		s.pipeline.emit(EventPendingStateChanged)
	}
}

// Retry clears a recorded failure so the next evaluation starts over.
func (s *Stage) Retry() {
	s.failure = nil
	s.halt = nil
	if s.pipeline != nil {
		s.pipeline.OnStageChanged(s.Index())
	}
}

func (s *Stage) onInputChanged() {
	s.cancelJob()
	s.failure = nil
	s.halt = nil
	if s.result != nil {
		s.result.stale = true
	}
}

func (s *Stage) cancelJob() {
	if s.job == nil {
		return
	}
	s.job.cancel()
	s.job = nil
}

func (s *Stage) window(ctx ApplyCtx) ValidityInterval {
	if live, ok := s.modifier.(LiveEditor); ok && live.IsLiveEditing() {
		return EmptyInterval()
	}
	return s.modifier.ValidityWindow(ctx)
}

// evaluate applies the stage to state and returns the stage status and the
// window over which the output stays valid.
func (s *Stage) evaluate(ctx ApplyCtx, state *FlowState) (Status, ValidityInterval) {
	s.applyCount++
	switch m := s.modifier.(type) {
	case AsyncModifier:
		return s.evaluateAsync(ctx, m, state)
	case SyncModifier:
		window := s.window(ctx)
		return m.Apply(ctx, state), window
	default:
		return Errorf("modifier %s implements neither the synchronous nor the asynchronous contract", s.modifier.Kind()), InfiniteInterval()
	}
}

func (s *Stage) evaluateAsync(ctx ApplyCtx, m AsyncModifier, state *FlowState) (Status, ValidityInterval) {
	input := *state
	fp := inputKey(input)
	own := s.window(ctx)
	op := &Operation{Kind: OpApply, Scene: s.scene, StageName: s.Name(), Time: ctx.Time, Level: CacheStage}
	if s.pipeline != nil {
		op.Pipeline = s.pipeline.name
		op.Chain = s.pipeline
	}

	if r := s.result; r != nil && !r.stale && r.inputFP == fp && r.validity.Contains(ctx.Time) {
		s.scene.reportCacheLookup(op, true)
		return m.ApplyResult(ctx, r.value, state), Intersect(r.validity, own)
	}
	s.scene.reportCacheLookup(op, false)

	if f := s.failure; f != nil && f.inputFP == fp && f.validity.Contains(ctx.Time) {
		return f.status, Intersect(f.validity, own)
	}

	if h := s.halt; h != nil && h.inputFP == fp && h.validity.Contains(ctx.Time) {
		s.applyStale(ctx, m, state)
		return h.status, EmptyInterval()
	}

	if input.Status().IsPending() {
		s.applyStale(ctx, m, state)
		return Pending("waiting for upstream data"), EmptyInterval()
	}

	if job := s.job; job != nil {
		if job.inputFP == fp && job.validity.Contains(ctx.Time) {
			s.applyStale(ctx, m, state)
			return Pending("computing"), EmptyInterval()
		}
		s.cancelJob()
	}

	engine, err := m.NewEngine(ctx, input)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Stage == "" {
			cfgErr.Stage = s.Name()
		}
		s.scene.reportError(err, op)
		return ErrorStatus(err), own
	}

	s.startJob(ctx, engine, input, fp)
	s.applyStale(ctx, m, state)
	return Pending("computing"), EmptyInterval()
}

func (s *Stage) startJob(ctx ApplyCtx, engine ComputeEngine, input FlowState, fp uint64) {
	s.gen++
	gen := s.gen
	jobCtx, cancel := context.WithCancel(context.Background())
	s.progress = newTaskProgress(jobCtx)
	s.halt = nil

	// An input valid nowhere, e.g. downstream of a live edit, still pins the
	// result to the time it was computed for.
	validity := input.Validity()
	if validity.IsEmpty() {
		validity = PointInterval(ctx.Time)
	}
	s.job = &stageJob{gen: gen, cancel: cancel, inputFP: fp, validity: validity}
	s.jobCount++

	progress := s.progress
	op := &Operation{Kind: OpCompute, Scene: s.scene, StageName: s.Name(), Time: ctx.Time}
	if s.pipeline != nil {
		op.Pipeline = s.pipeline.name
		op.Chain = s.pipeline
	}

	run := func(runCtx context.Context) (any, error) {
		return s.scene.wrap(runCtx, op, func() (any, error) {
			return engine.Run(runCtx, progress)
		})
	}
	s.scene.pool.submit(jobCtx, run, func(out jobOutcome) {
		s.onJobDone(gen, out, op)
	})
}

// onJobDone runs on the driver once the worker finished.
func (s *Stage) onJobDone(gen uint64, out jobOutcome, op *Operation) {
	job := s.job
	if job == nil || job.gen != gen {
		// Superseded by a newer input or canceled by the user.
		return
	}
	job.cancel()
	s.job = nil

	switch {
	case out.err != nil && (errors.Is(out.err, context.Canceled) || errors.Is(out.err, ErrCanceled)):
		s.outcome = OutcomeCanceled
		s.failure = &stageFailure{status: Errorf("canceled"), validity: job.validity, inputFP: job.inputFP}
	case out.err != nil:
		fault := out.err
		var cf *ComputationFault
		if errors.As(out.err, &cf) {
			if cf.Stage == "" {
				cf.Stage = s.Name()
			}
		} else {
			fault = &ComputationFault{Stage: s.Name(), Cause: out.err}
		}
		s.outcome = OutcomeFailed
		s.failure = &stageFailure{status: ErrorStatus(fault), validity: job.validity, inputFP: job.inputFP}
		s.scene.reportError(fault, op)
		s.scene.logger.Warn("compute engine failed",
			"stage", s.Name(),
			"error", fault.Error(),
		)
	default:
		s.outcome = OutcomeReady
		s.failure = nil
		s.result = &stageResult{value: out.result, validity: job.validity, inputFP: job.inputFP}
		s.scene.logger.Debug("compute engine finished",
			"stage", s.Name(),
			"duration", out.duration,
		)
	}

	if s.pipeline != nil {
		s.pipeline.emit(EventPendingStateChanged)
	}
}

// applyStale applies the previous result, if any, for progressive display
// while a new one is being computed.
func (s *Stage) applyStale(ctx ApplyCtx, m AsyncModifier, state *FlowState) {
	if s.result == nil {
		return
	}
	m.ApplyResult(ctx, s.result.value, state)
}

// inputKey identifies the input of an engine run. Inputs whose attributes
// cannot be hashed fall back to their object identities.
func inputKey(input FlowState) uint64 {
	if fp, ok := input.Fingerprint(); ok {
		return fp
	}
	fp, _ := hashstructure.Hash(input.Handles(), hashstructure.FormatV2, nil)
	return fp
}

func (s *Stage) String() string {
	return fmt.Sprintf("Stage(%s)", s.Name())
}
