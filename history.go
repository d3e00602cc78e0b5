package pipeflow

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EvaluationRecord describes one pipeline evaluation. Evaluations of an
// upstream pipeline triggered by a downstream one are recorded as children.
type EvaluationRecord struct {
	ID          string
	ParentID    string
	Pipeline    string
	Time        TimePoint
	CacheHit    bool
	ResumedFrom int
	StagesRun   int
	Status      Status
	Started     time.Time
	Duration    time.Duration
}

// EvaluationHistory keeps a bounded tree of evaluation records. When the
// limit is exceeded the oldest root and its subtree are evicted. A limit of
// zero disables recording.
type EvaluationHistory struct {
	mu       sync.RWMutex
	records  map[string]*EvaluationRecord
	byParent map[string][]string
	roots    []string
	limit    int

	// open evaluations on the driver, innermost last
	stack []*EvaluationRecord
}

func newEvaluationHistory(limit int) *EvaluationHistory {
	return &EvaluationHistory{
		records:  make(map[string]*EvaluationRecord),
		byParent: make(map[string][]string),
		limit:    limit,
	}
}

func (h *EvaluationHistory) begin(pipeline string, t TimePoint) *EvaluationRecord {
	rec := &EvaluationRecord{
		ID:          uuid.NewString(),
		Pipeline:    pipeline,
		Time:        t,
		ResumedFrom: -1,
		Started:     time.Now(),
	}
	if n := len(h.stack); n > 0 {
		rec.ParentID = h.stack[n-1].ID
	}
	h.stack = append(h.stack, rec)
	return rec
}

func (h *EvaluationHistory) finish(rec *EvaluationRecord, status Status) {
	rec.Status = status
	rec.Duration = time.Since(rec.Started)
	if h.limit > 0 {
		h.add(rec)
	}
}

// end closes rec on the driver stack, together with anything a panicking
// evaluation left above it.
func (h *EvaluationHistory) end(rec *EvaluationRecord) {
	if i := slices.Index(h.stack, rec); i >= 0 {
		h.stack = h.stack[:i]
	}
}

func (h *EvaluationHistory) add(rec *EvaluationRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[rec.ID] = rec
	if rec.ParentID == "" {
		h.roots = append(h.roots, rec.ID)
	} else {
		h.byParent[rec.ParentID] = append(h.byParent[rec.ParentID], rec.ID)
	}

	for len(h.records) > h.limit && len(h.roots) > 0 {
		oldest := h.roots[0]
		h.roots = h.roots[1:]
		h.removeSubtree(oldest)
	}
}

func (h *EvaluationHistory) removeSubtree(id string) {
	delete(h.records, id)
	children := h.byParent[id]
	delete(h.byParent, id)
	for _, child := range children {
		h.removeSubtree(child)
	}
}

// Len returns the number of retained records.
func (h *EvaluationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func (h *EvaluationHistory) GetRecord(id string) *EvaluationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.records[id]
}

// GetChildren returns the upstream evaluations triggered by record id.
func (h *EvaluationHistory) GetChildren(id string) []*EvaluationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.byParent[id]
	children := make([]*EvaluationRecord, 0, len(ids))
	for _, child := range ids {
		if rec := h.records[child]; rec != nil {
			children = append(children, rec)
		}
	}
	return children
}

// GetRoots returns the top-level evaluations, oldest first.
func (h *EvaluationHistory) GetRoots() []*EvaluationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roots := make([]*EvaluationRecord, 0, len(h.roots))
	for _, id := range h.roots {
		if rec := h.records[id]; rec != nil {
			roots = append(roots, rec)
		}
	}
	return roots
}

func (h *EvaluationHistory) Filter(predicate func(*EvaluationRecord) bool) []*EvaluationRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []*EvaluationRecord
	for _, rec := range h.records {
		if predicate(rec) {
			result = append(result, rec)
		}
	}
	return result
}

// Walk visits the record id and its descendants depth-first. Returning false
// from visitor skips the children of that record.
func (h *EvaluationHistory) Walk(id string, visitor func(*EvaluationRecord) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.walkLocked(id, visitor)
}

func (h *EvaluationHistory) walkLocked(id string, visitor func(*EvaluationRecord) bool) {
	rec := h.records[id]
	if rec == nil || !visitor(rec) {
		return
	}
	for _, child := range h.byParent[id] {
		h.walkLocked(child, visitor)
	}
}
