package pipeflow

// Source produces the input of a pipeline. A PipelineObject is itself a
// Source, so chains can be stacked.
type Source interface {
	Evaluate(t TimePoint) FlowState
	EvaluateAsync(t TimePoint) *Future
}

// EventKind identifies a change notification.
type EventKind int

const (
	// EventTargetChanged means previously produced output is no longer valid.
	EventTargetChanged EventKind = iota
	// EventPendingStateChanged means a pending computation may have
	// resolved, so consumers should poll again.
	EventPendingStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventTargetChanged:
		return "target-changed"
	case EventPendingStateChanged:
		return "pending-state-changed"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to subscribers on the driver.
type Event struct {
	Kind   EventKind
	Origin any
}

// Observable sources notify subscribers about changes of their output.
type Observable interface {
	Subscribe(fn func(Event)) (unsubscribe func())
}

type subscriber struct {
	id int
	fn func(Event)
}

// Observers is an ordered list of synchronous subscribers. Sources embed it
// to implement Observable. It is not safe for concurrent use.
type Observers struct {
	nextID int
	subs   []subscriber
}

// Subscribe adds fn and returns a function removing it again.
func (l *Observers) Subscribe(fn func(Event)) func() {
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every subscriber in subscription order. Subscribers may
// unsubscribe while being notified.
func (l *Observers) Emit(ev Event) {
	subs := make([]subscriber, len(l.subs))
	copy(subs, l.subs)
	for _, s := range subs {
		s.fn(ev)
	}
}

// StaticSource serves a fixed state until it is replaced with SetState.
type StaticSource struct {
	state     FlowState
	observers Observers
}

func NewStaticSource(state FlowState) *StaticSource {
	return &StaticSource{state: state}
}

func (s *StaticSource) Evaluate(t TimePoint) FlowState {
	return s.state
}

func (s *StaticSource) EvaluateAsync(t TimePoint) *Future {
	return CompletedFuture(s.state)
}

// SetState replaces the served state and notifies subscribers.
func (s *StaticSource) SetState(state FlowState) {
	s.state = state
	s.observers.Emit(Event{Kind: EventTargetChanged, Origin: s})
}

func (s *StaticSource) Subscribe(fn func(Event)) func() {
	return s.observers.Subscribe(fn)
}

// FuncSource computes its state from the animation time, e.g. a trajectory
// provider that yields one frame per tick. The last result is reused while
// its validity covers the requested time, so downstream caches see stable
// object identities.
type FuncSource struct {
	fn        func(t TimePoint) FlowState
	last      FlowState
	hasLast   bool
	observers Observers
}

func NewFuncSource(fn func(t TimePoint) FlowState) *FuncSource {
	return &FuncSource{fn: fn}
}

func (s *FuncSource) Evaluate(t TimePoint) FlowState {
	if s.hasLast && s.last.Validity().Contains(t) {
		return s.last
	}
	s.last = s.fn(t)
	s.hasLast = true
	return s.last
}

func (s *FuncSource) EvaluateAsync(t TimePoint) *Future {
	return CompletedFuture(s.Evaluate(t))
}

// Changed notifies subscribers that fn now produces different output.
func (s *FuncSource) Changed() {
	s.hasLast = false
	s.observers.Emit(Event{Kind: EventTargetChanged, Origin: s})
}

func (s *FuncSource) Subscribe(fn func(Event)) func() {
	return s.observers.Subscribe(fn)
}
