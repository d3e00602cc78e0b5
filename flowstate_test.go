package pipeflow

import (
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowState_CopyOnWrite(t *testing.T) {
	base := NewFlowState(InfiniteInterval(), &testObject{label: "a"})
	base.SetAttribute("k", 1)

	copied := base
	copied.AddObject(&testObject{label: "b"})
	copied.SetAttribute("k", 2)
	copied.SetAttribute("extra", true)
	copied.SetValidity(PointInterval(3))

	assert.Len(t, base.Objects(), 1)
	assert.Len(t, copied.Objects(), 2)
	assert.Equal(t, 1, attr(base, "k"))
	assert.Equal(t, 2, attr(copied, "k"))
	assert.Nil(t, attr(base, "extra"))
	assert.True(t, base.Validity().IsInfinite())
	assert.Equal(t, base.Handles()[0], copied.Handles()[0])
}

func TestFlowState_ReplaceAndRemove(t *testing.T) {
	s := NewFlowState(InfiniteInterval())
	h1 := s.AddObject(&testObject{label: "a"})
	h2 := s.AddObject(&testObject{label: "b"})
	before := s

	h3, ok := s.ReplaceObject(h1, &testObject{label: "a2"})
	require.True(t, ok)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, []Handle{h3, h2}, s.Handles())
	assert.Equal(t, []Handle{h1, h2}, before.Handles())

	_, ok = s.ReplaceObject(h1, &testObject{})
	assert.False(t, ok)

	require.True(t, s.RemoveObject(h3))
	assert.Equal(t, []Handle{h2}, s.Handles())
	assert.False(t, s.RemoveObject(h3))
}

func TestFlowState_FindObjectReturnsLatest(t *testing.T) {
	s := NewFlowState(InfiniteInterval(), &testObject{label: "old"}, &testObject{label: "new"})
	obj, _, ok := s.FindObject("test")
	require.True(t, ok)
	assert.Equal(t, "new", obj.(*testObject).label)

	_, _, ok = s.FindObject("missing")
	assert.False(t, ok)
}

func TestFlowState_SameStructure(t *testing.T) {
	s := NewFlowState(InfiniteInterval(), &testObject{label: "a"})
	s.SetAttribute("n", 3)

	other := s
	other.SetValidity(PointInterval(1))
	other.SetStatus(Pending("busy"))
	assert.True(t, s.SameStructure(other), "validity and status are not structural")

	other.SetAttribute("n", 4)
	assert.False(t, s.SameStructure(other))

	lookalike := NewFlowState(InfiniteInterval(), &testObject{label: "a"})
	lookalike.SetAttribute("n", 3)
	assert.False(t, s.SameStructure(lookalike), "equal content with new identities differs")
}

func TestFlowState_UnhashableAttributeIsNeverSame(t *testing.T) {
	s := NewFlowState(InfiniteInterval(), &testObject{label: "a"})
	s.SetAttribute("fn", func() {})
	_, ok := s.Fingerprint()
	assert.False(t, ok)
	assert.False(t, s.SameStructure(s))
}

func TestFlowState_AttributesReturnsCopy(t *testing.T) {
	s := NewFlowState(InfiniteInterval())
	s.SetAttribute("a", 1)
	s.SetAttribute("b", "two")

	attrs := s.Attributes()
	attrs["a"] = 100
	if diff := cmp.Diff(map[string]any{"a": 1, "b": "two"}, s.Attributes()); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestFlowState_EmptySentinel(t *testing.T) {
	s := EmptyFlowState()
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Validity().IsInfinite())
	assert.True(t, s.Status().IsSuccess())
}

func TestDecoration_WeakOwner(t *testing.T) {
	s := NewFlowState(InfiniteInterval())
	h := s.AddObject(&testObject{label: "owner"})
	dh, ok := s.Decorate(h, "label", 42)
	require.True(t, ok)

	decos := s.Decorations()
	require.Len(t, decos, 1)
	d := decos[0]
	assert.Equal(t, h, d.OwnerHandle())
	owner, alive := d.Owner()
	require.True(t, alive)
	assert.Equal(t, "owner", owner.(*testObject).label)

	_, ok = s.Decorate(Handle(0), "none", nil)
	assert.False(t, ok)

	// Once no state holds the owner any more the decoration lets it go.
	s.RemoveObject(h)
	runtime.GC()
	runtime.GC()
	_, alive = d.Owner()
	assert.False(t, alive)

	_, ok = s.Object(dh)
	assert.True(t, ok)
}
