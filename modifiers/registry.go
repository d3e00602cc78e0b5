package modifiers

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pumped-fn/pipeflow"
)

// Factory builds a modifier from decoded parameters.
type Factory func(params map[string]any) (pipeflow.Modifier, error)

// Registry maps modifier kinds to factories. Create one per application;
// NewRegistry already contains the built-in kinds.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in modifiers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(SetAttributeKind, newSetAttribute)
	r.Register(ScaleKind, newScale)
	r.Register(SumKind, newSum)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates a modifier of the given kind.
func (r *Registry) Build(kind string, params map[string]any) (pipeflow.Modifier, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown modifier kind %q (known: %v)", kind, r.Kinds())
	}
	m, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("building %s modifier: %w", kind, err)
	}
	return m, nil
}

var paramsValidate = validator.New()

// decodeParams converts a generic parameter map into the typed parameter
// struct of a modifier and validates it.
func decodeParams(params map[string]any, out any) error {
	if len(params) > 0 {
		raw, err := yaml.Marshal(params)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(raw, out); err != nil {
			return err
		}
	}
	if err := paramsValidate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			slices.Sort(fields)
			return fmt.Errorf("invalid parameters: %v", fields)
		}
		return err
	}
	return nil
}

// Live is embedded by built-in modifiers to support interactive editing.
// While Editing is set the stage reports an empty validity window, so the
// chain cache snapshots the state right before it.
type Live struct {
	Editing bool `yaml:"live"`
}

func (l *Live) IsLiveEditing() bool { return l.Editing }
