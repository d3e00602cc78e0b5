package extensions

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/pumped-fn/pipeflow"
	"github.com/pumped-fn/pipeflow/modifiers"
)

type explodingModifier struct{}

func (explodingModifier) Kind() string { return "exploding" }

func (explodingModifier) ValidityWindow(ctx pipeflow.ApplyCtx) pipeflow.ValidityInterval {
	return pipeflow.InfiniteInterval()
}

func (explodingModifier) NewEngine(ctx pipeflow.ApplyCtx, input pipeflow.FlowState) (pipeflow.ComputeEngine, error) {
	return pipeflow.ComputeEngineFunc(func(context.Context, pipeflow.ProgressSink) (any, error) {
		panic("engine exploded")
	}), nil
}

func (explodingModifier) ApplyResult(ctx pipeflow.ApplyCtx, result any, state *pipeflow.FlowState) pipeflow.Status {
	return pipeflow.Success()
}

func TestChainDebugExtension_StageFailure(t *testing.T) {
	var buf bytes.Buffer
	s := newScene(t, NewChainDebugExtension(NewHumanHandler(&buf, slog.LevelError)))

	p := s.NewPipeline("main", pointsSource(1, 2))
	p.AppendStage(s.NewStage(modifiers.NewSetAttribute("unit", "m"), pipeflow.WithStageName("unit")))
	p.AppendStage(s.NewStage(modifiers.NewScale("missing", 2), pipeflow.WithStageName("scale")))
	p.Evaluate(0)

	out := buf.String()
	for _, want := range []string{
		"[ChainDebug] Stage Failure",
		"Pipeline: main",
		"Failed Stage: scale",
		`no points named "missing"`,
		"├─> [0] unit ✓",
		"└─> [1] scale ❌ FAILED",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestChainDebugExtension_ComputationFault(t *testing.T) {
	var buf bytes.Buffer
	s := newScene(t, NewChainDebugExtension(NewHumanHandler(&buf, slog.LevelError)))

	p := s.NewPipeline("main", pointsSource(1))
	st := s.NewStage(&explodingModifier{}, pipeflow.WithStageName("boom"))
	p.AppendStage(st)
	p.Evaluate(0)
	driveUntil(t, s, func() bool { return st.JobState() == pipeflow.JobIdle })

	out := buf.String()
	for _, want := range []string{
		"[ChainDebug] Computation Fault",
		"Stage: boom",
		"engine exploded",
		"Stack Trace:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatChain_Markers(t *testing.T) {
	s := newScene(t)
	p := s.NewPipeline("main", pointsSource(1))
	p.AppendStage(s.NewStage(modifiers.NewSetAttribute("a", 1), pipeflow.WithStageName("first"), pipeflow.Disabled()))

	out := FormatChain(p, "")
	if !strings.Contains(out, "[0] first (disabled)") {
		t.Errorf("expected disabled marker:\n%s", out)
	}
	if !strings.Contains(out, "cache: empty") {
		t.Errorf("expected empty cache:\n%s", out)
	}

	empty := s.NewPipeline("empty", nil)
	if out := FormatChain(empty, ""); !strings.Contains(out, "(no stages)") || !strings.Contains(out, "source: (none)") {
		t.Errorf("unexpected output for an empty chain:\n%s", out)
	}
}

func TestHumanHandler_PlainRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, slog.LevelInfo)).With("scene", "demo")
	logger.Debug("hidden")
	logger.Info("visible", "count", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("records below the level must be dropped")
	}
	for _, want := range []string{"[INFO] visible", "scene: demo", "count: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSilentHandler_DiscardsEverything(t *testing.T) {
	h := NewSilentHandler()
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("silent handler must not be enabled")
	}
	slog.New(h).Error("nothing")
}
