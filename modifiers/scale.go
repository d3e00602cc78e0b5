package modifiers

import (
	"fmt"

	"github.com/pumped-fn/pipeflow"
)

const ScaleKind = "scale"

// Scale multiplies point values by Factor + Rate*t. With a zero Rate the
// result does not depend on time.
type Scale struct {
	Live   `yaml:",inline"`
	Target string  `yaml:"target"`
	Factor float64 `yaml:"factor"`
	Rate   float64 `yaml:"rate"`
}

func newScale(params map[string]any) (pipeflow.Modifier, error) {
	m := &Scale{Factor: 1}
	if err := decodeParams(params, m); err != nil {
		return nil, err
	}
	return m, nil
}

func NewScale(target string, factor float64) *Scale {
	return &Scale{Target: target, Factor: factor}
}

func (m *Scale) Kind() string { return ScaleKind }

func (m *Scale) ValidityWindow(ctx pipeflow.ApplyCtx) pipeflow.ValidityInterval {
	if m.Rate != 0 {
		return pipeflow.PointInterval(ctx.Time)
	}
	return pipeflow.InfiniteInterval()
}

func (m *Scale) factorAt(t pipeflow.TimePoint) float64 {
	return m.Factor + m.Rate*float64(t)
}

func (m *Scale) Apply(ctx pipeflow.ApplyCtx, state *pipeflow.FlowState) pipeflow.Status {
	handles, points := FindPoints(*state, m.Target)
	if len(points) == 0 {
		return pipeflow.ErrorStatus(pipeflow.NewConfigurationError("no points named %q in input", m.Target))
	}

	f := m.factorAt(ctx.Time)
	for i, h := range handles {
		scaled := points[i].Clone()
		for j := range scaled.Values {
			scaled.Values[j] *= f
		}
		state.ReplaceObject(h, scaled)
	}
	return pipeflow.Info(fmt.Sprintf("scaled %d series by %g", len(points), f))
}
