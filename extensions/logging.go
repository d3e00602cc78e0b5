package extensions

import (
	"context"
	"log/slog"
	"time"

	"github.com/pumped-fn/pipeflow"
)

// LoggingExtension logs pipeline evaluations, engine runs and stage errors
type LoggingExtension struct {
	pipeflow.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension. A nil logger logs to
// slog.Default().
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{
		BaseExtension: pipeflow.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *pipeflow.Operation) (any, error) {
	if op.Kind == pipeflow.OpApply {
		return next()
	}

	start := time.Now()
	result, err := next()
	duration := time.Since(start)

	attrs := []any{
		"op", string(op.Kind),
		"pipeline", op.Pipeline,
		"time", int(op.Time),
		"duration", duration,
	}
	if op.StageName != "" {
		attrs = append(attrs, "stage", op.StageName)
	}

	switch {
	case err != nil:
		e.logger.Warn("operation failed", append(attrs, "error", err.Error())...)
	case op.Kind == pipeflow.OpEvaluate:
		if state, ok := result.(pipeflow.FlowState); ok {
			attrs = append(attrs,
				"status", state.Status().String(),
				"objects", len(state.Objects()),
				"validity", state.Validity().String(),
			)
		}
		e.logger.Debug("pipeline evaluated", attrs...)
	default:
		e.logger.Debug("operation completed", attrs...)
	}

	return result, err
}

func (e *LoggingExtension) OnError(err error, op *pipeflow.Operation) {
	e.logger.Error("stage error",
		"pipeline", op.Pipeline,
		"stage", op.StageName,
		"op", string(op.Kind),
		"error", err.Error(),
	)
}
