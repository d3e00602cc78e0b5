package pipeflow

import "weak"

const DecorationKind = "decoration"

// Decoration is renderer-facing data derived from one data object. It keeps
// only a weak reference to its owner, so decorations never keep pipeline
// output alive on their own.
type Decoration struct {
	owner       weak.Pointer[objectRecord]
	ownerHandle Handle
	Label       string
	Data        any
}

func (d *Decoration) Kind() string { return DecorationKind }

// OwnerHandle returns the handle of the decorated object.
func (d *Decoration) OwnerHandle() Handle { return d.ownerHandle }

// Owner returns the decorated object if it is still alive.
func (d *Decoration) Owner() (DataObject, bool) {
	rec := d.owner.Value()
	if rec == nil {
		return nil, false
	}
	return rec.obj, true
}

// Decorate appends a decoration for the object identified by h.
func (s *FlowState) Decorate(h Handle, label string, data any) (Handle, bool) {
	idx := s.indexOf(h)
	if idx < 0 {
		return 0, false
	}
	rec := s.objects[idx]
	return s.AddObject(&Decoration{
		owner:       weak.Make(rec),
		ownerHandle: rec.handle,
		Label:       label,
		Data:        data,
	}), true
}

// Decorations returns all decorations in the state.
func (s FlowState) Decorations() []*Decoration {
	var out []*Decoration
	for _, rec := range s.objects {
		if d, ok := rec.obj.(*Decoration); ok {
			out = append(out, d)
		}
	}
	return out
}

// Decorator prepares renderer-facing data for an evaluated state.
type Decorator interface {
	Decorate(state FlowState) FlowState
}

// DecoratorFunc adapts a function to the Decorator interface.
type DecoratorFunc func(state FlowState) FlowState

func (f DecoratorFunc) Decorate(state FlowState) FlowState { return f(state) }

// Describer is implemented by data objects that can summarize themselves
// for display.
type Describer interface {
	Describe() string
}

// DefaultDecorator attaches one decoration per describable data object.
var DefaultDecorator Decorator = DecoratorFunc(func(state FlowState) FlowState {
	for _, h := range state.Handles() {
		obj, _ := state.Object(h)
		if d, ok := obj.(Describer); ok {
			state.Decorate(h, obj.Kind(), d.Describe())
		}
	}
	return state
})
