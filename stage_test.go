package pipeflow

import (
	"errors"
	"strings"
	"testing"
)

func newAsyncChain(t *testing.T, opts ...SceneOption) (*Scene, *PipelineObject, *Stage, *gatedModifier) {
	t.Helper()
	s := newTestScene(t, opts...)
	g := newGated("g")
	p := s.NewPipeline("main", staticInput("x"))
	st := s.NewStage(g, WithStageName("gated"))
	p.AppendStage(st)
	return s, p, st, g
}

func TestStage_PendingUntilEngineFinishes(t *testing.T) {
	s, p, st, g := newAsyncChain(t)
	g.gate = make(chan struct{})

	state := p.Evaluate(0)
	if !state.Status().IsPending() {
		t.Fatalf("expected pending, got %s", state.Status())
	}
	if st.JobState() != JobComputing {
		t.Fatalf("expected computing, got %s", st.JobState())
	}
	if st.Progress() == nil {
		t.Fatal("expected progress while computing")
	}

	// Repeated evaluation while computing must not start another engine.
	p.Evaluate(0)
	p.Evaluate(0)
	if st.JobCount() != 1 {
		t.Fatalf("expected 1 job, got %d", st.JobCount())
	}

	close(g.gate)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state = p.Evaluate(0)
	if !state.Status().IsSuccess() {
		t.Fatalf("expected success, got %s", state.Status())
	}
	if got := attr(state, "g"); got != "g@0" {
		t.Errorf("expected g@0, got %v", got)
	}
	if st.LastOutcome() != OutcomeReady {
		t.Errorf("expected ready outcome, got %s", st.LastOutcome())
	}
	if st.JobCount() != 1 {
		t.Errorf("expected the cached result to be reused, got %d jobs", st.JobCount())
	}
}

func TestStage_CompletionNotifiesPendingStateChanged(t *testing.T) {
	s, p, st, _ := newAsyncChain(t)

	notified := 0
	p.Subscribe(func(ev Event) {
		if ev.Kind == EventPendingStateChanged {
			notified++
		}
	})

	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })
	if notified != 1 {
		t.Fatalf("expected one notification, got %d", notified)
	}
}

func TestStage_UpstreamChangeSupersedesJob(t *testing.T) {
	s, p, st, g := newAsyncChain(t)
	g.gate = make(chan struct{})
	src := p.Source().(*StaticSource)

	p.Evaluate(0)
	src.SetState(NewFlowState(InfiniteInterval(), &testObject{label: "new"}))
	if st.JobState() != JobIdle {
		t.Fatal("expected the running job to be canceled by the upstream change")
	}

	p.Evaluate(0)
	if st.JobCount() != 2 {
		t.Fatalf("expected a fresh job, got %d jobs", st.JobCount())
	}

	close(g.gate)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state := p.Evaluate(0)
	if !state.Status().IsSuccess() {
		t.Fatalf("expected success, got %s", state.Status())
	}
	if st.LastOutcome() != OutcomeReady {
		t.Errorf("expected ready outcome, got %s", st.LastOutcome())
	}
}

func TestStage_EngineErrorIsSticky(t *testing.T) {
	rec := newRecorder("rec", 1)
	s, p, st, g := newAsyncChain(t, WithExtension(rec))
	g.fail = errors.New("boom")

	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state := p.Evaluate(0)
	if !state.Status().IsError() || !strings.Contains(state.Status().Text, "boom") {
		t.Fatalf("expected boom error, got %s", state.Status())
	}
	if st.LastOutcome() != OutcomeFailed {
		t.Errorf("expected failed outcome, got %s", st.LastOutcome())
	}

	p.Evaluate(0)
	if st.JobCount() != 1 {
		t.Fatalf("a failed computation must not restart on its own, got %d jobs", st.JobCount())
	}

	errs := rec.recordedErrors()
	if len(errs) != 1 {
		t.Fatalf("expected the fault to be reported once, got %d", len(errs))
	}
	var fault *ComputationFault
	if !errors.As(errs[0], &fault) || fault.Stage != "gated" {
		t.Errorf("expected a ComputationFault for stage gated, got %v", errs[0])
	}

	g.fail = nil
	st.Retry()
	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })
	if got := attr(p.Evaluate(0), "g"); got != "g@0" {
		t.Errorf("expected retry to succeed, got %v", got)
	}
}

func TestStage_EnginePanicBecomesFault(t *testing.T) {
	rec := newRecorder("rec", 1)
	s, p, st, g := newAsyncChain(t, WithExtension(rec))
	g.panicMsg = "kaboom"

	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state := p.Evaluate(0)
	if !state.Status().IsError() || !strings.Contains(state.Status().Text, "kaboom") {
		t.Fatalf("expected kaboom error, got %s", state.Status())
	}

	errs := rec.recordedErrors()
	if len(errs) != 1 {
		t.Fatalf("expected one reported fault, got %d", len(errs))
	}
	var fault *ComputationFault
	if !errors.As(errs[0], &fault) {
		t.Fatalf("expected ComputationFault, got %T", errs[0])
	}
	if len(fault.StackTrace) == 0 {
		t.Error("expected a stack trace for a panicking engine")
	}
}

func TestStage_EngineCreationErrorIsSynchronous(t *testing.T) {
	rec := newRecorder("rec", 1)
	_, p, st, g := newAsyncChain(t, WithExtension(rec))
	g.engineErr = NewConfigurationError("no %s in input", "points")

	state := p.Evaluate(0)
	if !state.Status().IsError() {
		t.Fatalf("expected an error status, got %s", state.Status())
	}
	if st.JobCount() != 0 {
		t.Fatalf("expected no job, got %d", st.JobCount())
	}

	errs := rec.recordedErrors()
	if len(errs) != 1 {
		t.Fatalf("expected one reported error, got %d", len(errs))
	}
	var cfgErr *ConfigurationError
	if !errors.As(errs[0], &cfgErr) || cfgErr.Stage != "gated" {
		t.Errorf("expected a ConfigurationError for stage gated, got %v", errs[0])
	}
}

func TestStage_UserCancelHaltsOnlyThatInput(t *testing.T) {
	s := newTestScene(t)
	g := newGated("g")
	g.gate = make(chan struct{})
	p := s.NewPipeline("main", perTimeInput())
	st := s.NewStage(g)
	p.AppendStage(st)

	p.Evaluate(1)
	st.CancelComputation()
	if got := p.Evaluate(1).Status(); got != Info("computation canceled") {
		t.Fatalf("expected canceled info at t=1, got %s", got)
	}

	close(g.gate)
	if got := p.Evaluate(2).Status(); !got.IsPending() {
		t.Fatalf("expected a new computation at t=2, got %s", got)
	}
	if st.JobCount() != 2 || len(g.started) != 2 || g.started[1] != 2 {
		t.Fatalf("expected a job for t=2, got %d jobs started at %v", st.JobCount(), g.started)
	}
	drive(t, s, func() bool { return st.JobState() == JobIdle })
	if got := attr(p.Evaluate(2), "g"); got != "g@2" {
		t.Errorf("expected g@2, got %v", got)
	}
}

func TestStage_ResultBehindLiveStageIsReused(t *testing.T) {
	s := newTestScene(t)
	live := newCounting("live")
	live.live = true
	p := s.NewPipeline("main", staticInput("x"))
	p.AppendStage(s.NewStage(live))
	st := s.NewStage(newGated("g"))
	p.AppendStage(st)

	p.Evaluate(0)
	p.Evaluate(0)
	if st.JobCount() != 1 {
		t.Fatalf("expected the running job to be kept, got %d jobs", st.JobCount())
	}
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state := p.Evaluate(0)
	if !state.Status().IsSuccess() || attr(state, "g") != "g@0" {
		t.Fatalf("expected the finished result, got %s %v", state.Status(), attr(state, "g"))
	}
	if !state.Validity().IsEmpty() {
		t.Errorf("expected the live window to stay empty, got %s", state.Validity())
	}
	if st.JobCount() != 1 {
		t.Errorf("expected no restart, got %d jobs", st.JobCount())
	}

	p.Evaluate(3)
	if st.JobCount() != 2 {
		t.Errorf("expected a job for another time, got %d", st.JobCount())
	}
}

func TestStage_UserCancelHaltsUntilChanged(t *testing.T) {
	s, p, st, g := newAsyncChain(t)
	g.gate = make(chan struct{})

	p.Evaluate(0)
	st.CancelComputation()

	state := p.Evaluate(0)
	if state.Status() != Info("computation canceled") {
		t.Fatalf("expected canceled info, got %s", state.Status())
	}
	if st.LastOutcome() != OutcomeCanceled {
		t.Errorf("expected canceled outcome, got %s", st.LastOutcome())
	}

	// The worker still posts its completion; it must be ignored.
	s.Dispatcher().Drain()
	p.Evaluate(0)
	if st.JobCount() != 1 {
		t.Fatalf("expected the stage to stay halted, got %d jobs", st.JobCount())
	}

	close(g.gate)
	st.ParametersChanged()
	p.Evaluate(0)
	if st.JobCount() != 2 {
		t.Fatalf("expected a new job after the change, got %d", st.JobCount())
	}
	drive(t, s, func() bool { return st.JobState() == JobIdle })
	if got := attr(p.Evaluate(0), "g"); got != "g@0" {
		t.Errorf("expected g@0, got %v", got)
	}
}

func TestStage_CanceledEngineReportsError(t *testing.T) {
	s, p, st, g := newAsyncChain(t)
	g.fail = ErrCanceled

	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	state := p.Evaluate(0)
	if state.Status() != Errorf("canceled") {
		t.Fatalf("expected canceled error, got %s", state.Status())
	}
	if st.LastOutcome() != OutcomeCanceled {
		t.Errorf("expected canceled outcome, got %s", st.LastOutcome())
	}
}

func TestStage_StaleResultWhileRecomputing(t *testing.T) {
	s, p, st, g := newAsyncChain(t)

	p.Evaluate(0)
	drive(t, s, func() bool { return st.JobState() == JobIdle })

	g.gate = make(chan struct{})
	st.ParametersChanged()

	state := p.Evaluate(0)
	if !state.Status().IsPending() {
		t.Fatalf("expected pending, got %s", state.Status())
	}
	if got := attr(state, "g"); got != "g@0" {
		t.Errorf("expected the stale result to be applied, got %v", got)
	}
	close(g.gate)
}

func TestStage_DisablingCancelsJob(t *testing.T) {
	_, p, st, g := newAsyncChain(t)
	g.gate = make(chan struct{})

	p.Evaluate(0)
	p.SetStageEnabled(st, false)
	if st.JobState() != JobIdle {
		t.Fatal("expected disabling to cancel the job")
	}
	if !p.Evaluate(0).Status().IsSuccess() {
		t.Error("a disabled stage must not affect the status")
	}
}

func TestStage_NameFallsBackToKind(t *testing.T) {
	s := newTestScene(t)
	st := s.NewStage(newCounting("thing"))
	if st.Name() != "thing" {
		t.Errorf("expected kind as name, got %q", st.Name())
	}
	if st.Index() != -1 {
		t.Errorf("expected -1 for a detached stage, got %d", st.Index())
	}

	named := s.NewStage(newCounting("thing"), WithStageName("custom"))
	if named.String() != "Stage(custom)" {
		t.Errorf("unexpected String(): %s", named)
	}
}

type bareModifier struct{}

func (bareModifier) Kind() string                                 { return "bare" }
func (bareModifier) ValidityWindow(ctx ApplyCtx) ValidityInterval { return InfiniteInterval() }

func TestStage_ModifierWithoutContractFails(t *testing.T) {
	s := newTestScene(t)
	p := s.NewPipeline("main", staticInput("x"))
	p.AppendStage(s.NewStage(&bareModifier{}))

	if !p.Evaluate(0).Status().IsError() {
		t.Fatal("expected an error for a modifier without Apply or NewEngine")
	}
}
