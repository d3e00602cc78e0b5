package pipeflow

import (
	"maps"
	"slices"
	"sync/atomic"

	"github.com/mitchellh/hashstructure/v2"
)

// DataObject is one typed piece of data carried by a FlowState.
// Objects are treated as immutable once added; a stage that wants to modify
// one adds a modified copy with ReplaceObject.
type DataObject interface {
	Kind() string
}

// Handle is the stable identity of a data object inside the flow. Copies of
// a FlowState share handles, so equal handles mean the very same object.
type Handle uint64

var handleCounter atomic.Uint64

func nextHandle() Handle {
	return Handle(handleCounter.Add(1))
}

type objectRecord struct {
	handle Handle
	obj    DataObject
}

// FlowState is the packet of data passed between stages: an ordered list of
// data objects, an attribute map, a validity interval and a status.
//
// FlowState has value semantics. Copying it is cheap because the object list
// and the attribute map are shared; every mutating method replaces only the
// part it changes, so a copy never observes mutations of another copy.
type FlowState struct {
	objects  []*objectRecord
	attrs    map[string]any
	validity ValidityInterval
	status   Status
}

// EmptyFlowState returns the sentinel meaning "no input available yet".
func EmptyFlowState() FlowState {
	return FlowState{validity: InfiniteInterval()}
}

// NewFlowState creates a state valid over the given interval.
func NewFlowState(validity ValidityInterval, objects ...DataObject) FlowState {
	s := FlowState{validity: validity}
	for _, obj := range objects {
		s.AddObject(obj)
	}
	return s
}

// IsEmpty reports whether the state carries no data objects.
func (s FlowState) IsEmpty() bool {
	return len(s.objects) == 0
}

// AddObject appends obj and returns its new handle. Later objects may refer
// to earlier ones by handle.
func (s *FlowState) AddObject(obj DataObject) Handle {
	rec := &objectRecord{handle: nextHandle(), obj: obj}
	objects := make([]*objectRecord, len(s.objects), len(s.objects)+1)
	copy(objects, s.objects)
	s.objects = append(objects, rec)
	return rec.handle
}

// ReplaceObject swaps the object identified by h for obj, keeping its
// position. The replacement gets a new handle. It returns false if h is not
// part of the state.
func (s *FlowState) ReplaceObject(h Handle, obj DataObject) (Handle, bool) {
	idx := s.indexOf(h)
	if idx < 0 {
		return 0, false
	}
	rec := &objectRecord{handle: nextHandle(), obj: obj}
	objects := slices.Clone(s.objects)
	objects[idx] = rec
	s.objects = objects
	return rec.handle, true
}

// RemoveObject drops the object identified by h.
func (s *FlowState) RemoveObject(h Handle) bool {
	idx := s.indexOf(h)
	if idx < 0 {
		return false
	}
	objects := make([]*objectRecord, 0, len(s.objects)-1)
	objects = append(objects, s.objects[:idx]...)
	s.objects = append(objects, s.objects[idx+1:]...)
	return true
}

func (s FlowState) indexOf(h Handle) int {
	for i, rec := range s.objects {
		if rec.handle == h {
			return i
		}
	}
	return -1
}

// Object returns the object identified by h.
func (s FlowState) Object(h Handle) (DataObject, bool) {
	if idx := s.indexOf(h); idx >= 0 {
		return s.objects[idx].obj, true
	}
	return nil, false
}

// Objects returns the data objects in insertion order.
func (s FlowState) Objects() []DataObject {
	out := make([]DataObject, len(s.objects))
	for i, rec := range s.objects {
		out[i] = rec.obj
	}
	return out
}

// Handles returns the handles of the data objects in insertion order.
func (s FlowState) Handles() []Handle {
	out := make([]Handle, len(s.objects))
	for i, rec := range s.objects {
		out[i] = rec.handle
	}
	return out
}

// FindObject returns the last object of the given kind, which is the most
// recently added version of it.
func (s FlowState) FindObject(kind string) (DataObject, Handle, bool) {
	for i := len(s.objects) - 1; i >= 0; i-- {
		if s.objects[i].obj.Kind() == kind {
			return s.objects[i].obj, s.objects[i].handle, true
		}
	}
	return nil, 0, false
}

// SetAttribute stores a global attribute. The last writer wins.
func (s *FlowState) SetAttribute(name string, value any) {
	attrs := make(map[string]any, len(s.attrs)+1)
	maps.Copy(attrs, s.attrs)
	attrs[name] = value
	s.attrs = attrs
}

func (s FlowState) Attribute(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Attributes returns a copy of the attribute map.
func (s FlowState) Attributes() map[string]any {
	return maps.Clone(s.attrs)
}

func (s FlowState) Validity() ValidityInterval { return s.validity }

func (s *FlowState) SetValidity(v ValidityInterval) { s.validity = v }

// IntersectValidity narrows the validity of the state.
func (s *FlowState) IntersectValidity(v ValidityInterval) {
	s.validity = Intersect(s.validity, v)
}

func (s FlowState) Status() Status { return s.status }

func (s *FlowState) SetStatus(st Status) { s.status = st }

// MergeStatus folds st into the state's status using MergeStatus.
func (s *FlowState) MergeStatus(st Status) {
	s.status = MergeStatus(s.status, st)
}

type structureKey struct {
	Handles []Handle
	Attrs   map[string]any
}

// Fingerprint hashes the structural identity of the state: the object
// handles and the attribute map. Validity and status are not part of it.
// ok is false when an attribute value cannot be hashed.
func (s FlowState) Fingerprint() (fp uint64, ok bool) {
	h, err := hashstructure.Hash(structureKey{Handles: s.Handles(), Attrs: s.attrs}, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, false
	}
	return h, true
}

// SameStructure reports whether s and other hold the same data-object
// identities and the same attribute map.
func (s FlowState) SameStructure(other FlowState) bool {
	if !slices.Equal(s.Handles(), other.Handles()) {
		return false
	}
	a, okA := s.Fingerprint()
	b, okB := other.Fingerprint()
	return okA && okB && a == b
}
