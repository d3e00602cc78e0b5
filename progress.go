package pipeflow

import (
	"context"
	"sync"
)

// ProgressSink receives progress reports from a running ComputeEngine.
type ProgressSink interface {
	SetMaximum(max int64)
	// SetValue reports progress. It returns false once the computation has
	// been canceled, so engines can use it as their polling point.
	SetValue(value int64) bool
	SetText(text string)
}

// TaskProgress is a ProgressSink that can be read concurrently, e.g. by a
// status bar.
type TaskProgress struct {
	mu      sync.RWMutex
	ctx     context.Context
	maximum int64
	value   int64
	text    string
}

func newTaskProgress(ctx context.Context) *TaskProgress {
	return &TaskProgress{ctx: ctx}
}

func (p *TaskProgress) SetMaximum(max int64) {
	p.mu.Lock()
	p.maximum = max
	p.mu.Unlock()
}

func (p *TaskProgress) SetValue(value int64) bool {
	p.mu.Lock()
	p.value = value
	p.mu.Unlock()
	return p.ctx == nil || p.ctx.Err() == nil
}

func (p *TaskProgress) SetText(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
}

// Snapshot returns the current value, maximum and text.
func (p *TaskProgress) Snapshot() (value, maximum int64, text string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value, p.maximum, p.text
}
