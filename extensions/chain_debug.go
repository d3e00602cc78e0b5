package extensions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pumped-fn/pipeflow"
)

const (
	msgStageFailure     = "Stage Failure"
	msgComputationFault = "Computation Fault"
)

// ChainDebugExtension logs a dump of the stage chain when a stage fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewChainDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewChainDebugExtension(handler)
//
// Faults raised by panicking compute engines are logged separately with
// their stack trace.
type ChainDebugExtension struct {
	pipeflow.BaseExtension
	logger *slog.Logger
}

// NewChainDebugExtension creates a chain debug extension logging to
// logHandler.
func NewChainDebugExtension(logHandler slog.Handler) *ChainDebugExtension {
	return &ChainDebugExtension{
		BaseExtension: pipeflow.NewBaseExtension("chain-debug"),
		logger:        slog.New(logHandler),
	}
}

// OnError logs the chain the failing stage belongs to.
func (e *ChainDebugExtension) OnError(err error, op *pipeflow.Operation) {
	var fault *pipeflow.ComputationFault
	if errors.As(err, &fault) && len(fault.StackTrace) > 0 {
		e.logger.Error(msgComputationFault,
			"stage", op.StageName,
			"error", err.Error(),
			"stack_trace", string(fault.StackTrace),
		)
		return
	}

	chain := "\n(no pipeline)\n"
	if op.Chain != nil {
		chain = FormatChain(op.Chain, op.StageName)
	}
	e.logger.Error(msgStageFailure,
		"pipeline", op.Pipeline,
		"stage", op.StageName,
		"error", err.Error(),
		"operation", string(op.Kind),
		"chain", chain,
	)
}

// FormatChain renders the stages of p with their computation state. The
// stage named failed is marked.
func FormatChain(p *pipeflow.PipelineObject, failed string) string {
	var sb strings.Builder
	sb.WriteString("\n")

	source := "(none)"
	if src := p.Source(); src != nil {
		source = fmt.Sprintf("%T", src)
	}
	fmt.Fprintf(&sb, "  source: %s\n", source)
	if pos := p.CachePosition(); pos >= 0 {
		fmt.Fprintf(&sb, "  cache: before stage %d\n", pos)
	} else {
		sb.WriteString("  cache: empty\n")
	}

	stages := p.Stages()
	if len(stages) == 0 {
		sb.WriteString("  (no stages)\n")
		return sb.String()
	}

	for i, st := range stages {
		prefix := "├─>"
		if i == len(stages)-1 {
			prefix = "└─>"
		}
		fmt.Fprintf(&sb, "  %s [%d] %s%s\n", prefix, i, st.Name(), stageMarker(st, failed))
	}
	return sb.String()
}

func stageMarker(st *pipeflow.Stage, failed string) string {
	switch {
	case !st.Enabled():
		return " (disabled)"
	case st.Name() == failed:
		return " ❌ FAILED"
	case st.JobState() == pipeflow.JobComputing:
		if p := st.Progress(); p != nil {
			value, maximum, text := p.Snapshot()
			if maximum > 0 {
				return fmt.Sprintf(" ⏳ computing %d/%d %s", value, maximum, text)
			}
		}
		return " ⏳ computing"
	case st.LastOutcome() == pipeflow.OutcomeFailed:
		return " ❌"
	case st.LastOutcome() == pipeflow.OutcomeCanceled:
		return " (canceled)"
	default:
		return " ✓"
	}
}
