package thinker

import (
	"container/heap"
	"time"
)

// Func is invoked when a scheduled entry expires. now is the time passed to
// Fire, not the wake time.
type Func func(now time.Time)

// Handle identifies a scheduled entry. The zero Handle is never issued.
type Handle uint64

type entry struct {
	at    time.Time
	seq   uint64
	fn    Func
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of pending callbacks keyed by wake time. Entries with
// the same wake time fire in scheduling order.
type Queue struct {
	heap    entryHeap
	byID    map[Handle]*entry
	nextSeq uint64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{byID: make(map[Handle]*entry)}
}

// Schedule registers fn to run at or after at.
func (q *Queue) Schedule(at time.Time, fn Func) Handle {
	q.nextSeq++
	e := &entry{at: at, seq: q.nextSeq, fn: fn}
	heap.Push(&q.heap, e)
	h := Handle(e.seq)
	q.byID[h] = e
	return h
}

// Cancel removes a pending entry. It reports false if the handle already
// fired, was cancelled, or is zero.
func (q *Queue) Cancel(h Handle) bool {
	e, ok := q.byID[h]
	if !ok {
		return false
	}
	delete(q.byID, h)
	heap.Remove(&q.heap, e.index)
	return true
}

// Pending reports whether h is still scheduled.
func (q *Queue) Pending(h Handle) bool {
	_, ok := q.byID[h]
	return ok
}

// Fire runs every entry due at or before now, earliest first, and returns how
// many ran. Entries scheduled by callbacks that are already due run in the
// same call.
func (q *Queue) Fire(now time.Time) int {
	fired := 0
	for len(q.heap) > 0 {
		e := q.heap[0]
		if e.at.After(now) {
			break
		}
		heap.Pop(&q.heap)
		delete(q.byID, Handle(e.seq))
		e.fn(now)
		fired++
	}
	return fired
}

// Next returns the earliest wake time.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].at, true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.heap)
}
