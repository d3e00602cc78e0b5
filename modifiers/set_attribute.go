package modifiers

import (
	"github.com/pumped-fn/pipeflow"
)

const SetAttributeKind = "set-attribute"

// SetAttribute stores a global attribute in the flow.
type SetAttribute struct {
	Live  `yaml:",inline"`
	Name  string `yaml:"name" validate:"required"`
	Value any    `yaml:"value"`
}

func newSetAttribute(params map[string]any) (pipeflow.Modifier, error) {
	m := &SetAttribute{}
	if err := decodeParams(params, m); err != nil {
		return nil, err
	}
	return m, nil
}

func NewSetAttribute(name string, value any) *SetAttribute {
	return &SetAttribute{Name: name, Value: value}
}

func (m *SetAttribute) Kind() string { return SetAttributeKind }

func (m *SetAttribute) ValidityWindow(ctx pipeflow.ApplyCtx) pipeflow.ValidityInterval {
	return pipeflow.InfiniteInterval()
}

func (m *SetAttribute) Apply(ctx pipeflow.ApplyCtx, state *pipeflow.FlowState) pipeflow.Status {
	state.SetAttribute(m.Name, m.Value)
	return pipeflow.Success()
}
