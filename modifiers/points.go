// Package modifiers contains the built-in modifiers and the registry that
// builds them from pipeline descriptions.
package modifiers

import (
	"fmt"
	"slices"

	"github.com/pumped-fn/pipeflow"
)

const PointsKind = "points"

// Points is a named series of values, the data object the built-in
// modifiers operate on. Treat it as immutable once added to a FlowState.
type Points struct {
	Name   string
	Values []float64
}

func NewPoints(name string, values ...float64) *Points {
	return &Points{Name: name, Values: values}
}

func (p *Points) Kind() string { return PointsKind }

func (p *Points) Describe() string {
	return fmt.Sprintf("%s: %d values", p.Name, len(p.Values))
}

// Clone returns a deep copy that can be modified and put back with
// FlowState.ReplaceObject.
func (p *Points) Clone() *Points {
	return &Points{Name: p.Name, Values: slices.Clone(p.Values)}
}

// FindPoints returns the handles and objects of all Points in state whose
// name matches target. An empty target matches all of them.
func FindPoints(state pipeflow.FlowState, target string) ([]pipeflow.Handle, []*Points) {
	var handles []pipeflow.Handle
	var found []*Points
	for _, h := range state.Handles() {
		obj, _ := state.Object(h)
		p, ok := obj.(*Points)
		if !ok || (target != "" && p.Name != target) {
			continue
		}
		handles = append(handles, h)
		found = append(found, p)
	}
	return handles, found
}
