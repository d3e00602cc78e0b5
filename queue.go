package pipeflow

import "fmt"

// Request is one asynchronous evaluation request for a node.
type Request struct {
	Time      TimePoint
	Decorated bool
}

// RequestKey identifies requests that produce the same result.
type RequestKey string

func (r Request) Key() RequestKey {
	return RequestKey(fmt.Sprintf("%d/%t", r.Time, r.Decorated))
}

type queueEntry struct {
	request Request
	key     RequestKey
	future  *Future
}

// requestQueue is the FIFO of outstanding requests of a node, with a key
// index for de-duplication. generation changes whenever the head changes.
type requestQueue struct {
	entries    []*queueEntry
	byKey      map[RequestKey]*queueEntry
	generation uint64
}

func newRequestQueue() *requestQueue {
	return &requestQueue{byKey: make(map[RequestKey]*queueEntry)}
}

func (q *requestQueue) len() int { return len(q.entries) }

func (q *requestQueue) lookup(key RequestKey) (*queueEntry, bool) {
	e, ok := q.byKey[key]
	return e, ok
}

func (q *requestQueue) push(req Request, f *Future) *queueEntry {
	e := &queueEntry{request: req, key: req.Key(), future: f}
	q.entries = append(q.entries, e)
	q.byKey[e.key] = e
	if len(q.entries) == 1 {
		q.generation++
	}
	return e
}

func (q *requestQueue) front() (*queueEntry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

func (q *requestQueue) popFront() *queueEntry {
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	delete(q.byKey, e.key)
	q.generation++
	return e
}

// remove drops e from anywhere in the queue. It reports whether e was the
// head.
func (q *requestQueue) remove(e *queueEntry) (wasHead bool) {
	for i, cur := range q.entries {
		if cur != e {
			continue
		}
		q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
		if q.byKey[e.key] == e {
			delete(q.byKey, e.key)
		}
		if i == 0 {
			q.generation++
			return true
		}
		return false
	}
	return false
}

// drain empties the queue and returns the removed entries in order.
func (q *requestQueue) drain() []*queueEntry {
	entries := q.entries
	q.entries = nil
	clear(q.byKey)
	q.generation++
	return entries
}
