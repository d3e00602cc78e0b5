package extensions

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pumped-fn/pipeflow"
)

const tracerName = "github.com/pumped-fn/pipeflow"

// TracingExtension records an OpenTelemetry span per chain evaluation,
// stage application, decoration pass and compute engine run. Driver-side
// spans nest along the evaluation; engine runs start their own trace.
type TracingExtension struct {
	pipeflow.BaseExtension
	tracer trace.Tracer

	// span contexts of open driver-side operations, innermost last
	stack []context.Context
}

// NewTracingExtension creates a tracing extension. A nil provider uses the
// global one.
func NewTracingExtension(tp trace.TracerProvider) *TracingExtension {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingExtension{
		BaseExtension: pipeflow.NewBaseExtension("tracing"),
		tracer:        tp.Tracer(tracerName),
	}
}

func (e *TracingExtension) Wrap(ctx context.Context, next func() (any, error), op *pipeflow.Operation) (any, error) {
	attrs := []attribute.KeyValue{
		attribute.String("pipeflow.pipeline", op.Pipeline),
		attribute.Int("pipeflow.time", int(op.Time)),
	}
	if op.StageName != "" {
		attrs = append(attrs, attribute.String("pipeflow.stage", op.StageName))
	}

	driver := op.Kind != pipeflow.OpCompute
	parent := ctx
	if driver && len(e.stack) > 0 {
		parent = e.stack[len(e.stack)-1]
	}

	spanCtx, span := e.tracer.Start(parent, "pipeflow."+string(op.Kind), trace.WithAttributes(attrs...))
	defer span.End()

	if driver {
		e.stack = append(e.stack, spanCtx)
		defer func() { e.stack = e.stack[:len(e.stack)-1] }()
	}

	result, err := next()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	if state, ok := result.(pipeflow.FlowState); ok {
		status := state.Status()
		span.SetAttributes(
			attribute.String("pipeflow.status", status.Kind.String()),
			attribute.Int("pipeflow.objects", len(state.Objects())),
		)
		if status.IsError() {
			span.SetStatus(codes.Error, status.Text)
			return result, err
		}
	}
	span.SetStatus(codes.Ok, "")
	return result, err
}

func (e *TracingExtension) OnError(err error, op *pipeflow.Operation) {
	if len(e.stack) == 0 || op.Kind == pipeflow.OpCompute {
		return
	}
	span := trace.SpanFromContext(e.stack[len(e.stack)-1])
	span.AddEvent("stage error", trace.WithAttributes(
		attribute.String("pipeflow.stage", op.StageName),
		attribute.String("error", err.Error()),
	))
}
