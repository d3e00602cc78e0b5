package modifiers

import (
	"context"
	"fmt"
	"time"

	"github.com/pumped-fn/pipeflow"
)

const SumKind = "sum"

// Sum totals the values of the target series in the background and stores
// the result in the Output attribute.
type Sum struct {
	Live   `yaml:",inline"`
	Target string `yaml:"target"`
	Output string `yaml:"output" validate:"required"`
	// Delay is slept per value; it makes the computation observable in
	// demos and tests.
	Delay time.Duration `yaml:"delay" validate:"gte=0"`
}

// SumResult is the engine result of a Sum stage.
type SumResult struct {
	Total float64
	Count int
}

func newSum(params map[string]any) (pipeflow.Modifier, error) {
	m := &Sum{Output: "sum"}
	if err := decodeParams(params, m); err != nil {
		return nil, err
	}
	return m, nil
}

func NewSum(target, output string) *Sum {
	return &Sum{Target: target, Output: output}
}

func (m *Sum) Kind() string { return SumKind }

func (m *Sum) ValidityWindow(ctx pipeflow.ApplyCtx) pipeflow.ValidityInterval {
	return pipeflow.InfiniteInterval()
}

func (m *Sum) NewEngine(ctx pipeflow.ApplyCtx, input pipeflow.FlowState) (pipeflow.ComputeEngine, error) {
	_, points := FindPoints(input, m.Target)
	if len(points) == 0 {
		return nil, pipeflow.NewConfigurationError("no points named %q in input", m.Target)
	}

	var values []float64
	for _, p := range points {
		values = append(values, p.Values...)
	}
	delay := m.Delay

	return pipeflow.ComputeEngineFunc(func(ctx context.Context, progress pipeflow.ProgressSink) (any, error) {
		progress.SetMaximum(int64(len(values)))
		progress.SetText("summing")

		var total float64
		for i, v := range values {
			if !progress.SetValue(int64(i)) {
				return nil, pipeflow.ErrCanceled
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			} else if err := ctx.Err(); err != nil {
				return nil, err
			}
			total += v
		}
		progress.SetValue(int64(len(values)))
		return SumResult{Total: total, Count: len(values)}, nil
	}), nil
}

func (m *Sum) ApplyResult(ctx pipeflow.ApplyCtx, result any, state *pipeflow.FlowState) pipeflow.Status {
	res, err := pipeflow.ResultAs[SumResult](result)
	if err != nil {
		return pipeflow.ErrorStatus(err)
	}
	state.SetAttribute(m.Output, res.Total)
	return pipeflow.Info(fmt.Sprintf("summed %d values", res.Count))
}
