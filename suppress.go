package pipeflow

import (
	"sync"
	"sync/atomic"
)

type recordingGuard struct {
	depth atomic.Int32
}

// SuppressRecording marks the start of a scope in which changes must not be
// recorded as user-undoable actions, e.g. evaluation triggered while a
// dialog populates a combo box. Call the returned function to end the scope;
// scopes nest.
func (s *Scene) SuppressRecording() (release func()) {
	s.recording.depth.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.recording.depth.Add(-1) })
	}
}

// RecordingSuppressed reports whether an undo stack should ignore changes
// happening right now.
func (s *Scene) RecordingSuppressed() bool {
	return s.recording.depth.Load() > 0
}
