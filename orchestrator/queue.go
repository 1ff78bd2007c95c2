package orchestrator

import (
	"sync"

	"github.com/cyclicarb/arbengine/evaluate"
)

// DefaultQueueCapacity is the approved-queue bound from spec §4.7.
const DefaultQueueCapacity = 2048

// ApprovedQueue is the bounded, backpressured holding area for Approved
// opportunities between Phase D and submission/recording. On overflow the
// lowest-scored entry is dropped (spec §4.7) and counted.
type ApprovedQueue struct {
	mu       sync.Mutex
	capacity int
	items    []*evaluate.Opportunity
	dropped  int
}

// NewApprovedQueue constructs a queue bounded at capacity; capacity <= 0
// uses DefaultQueueCapacity.
func NewApprovedQueue(capacity int) *ApprovedQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ApprovedQueue{capacity: capacity}
}

// Push inserts o, keeping the queue sorted by ascending MLScore so the
// lowest-scored entry can be found and dropped in O(1) on overflow. It
// returns the dropped opportunity, or nil if nothing was dropped.
func (q *ApprovedQueue) Push(o *evaluate.Opportunity) *evaluate.Opportunity {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := 0
	for idx < len(q.items) && q.items[idx].MLScore < o.MLScore {
		idx++
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = o

	if len(q.items) <= q.capacity {
		return nil
	}
	dropped := q.items[0]
	q.items = q.items[1:]
	q.dropped++
	return dropped
}

// Pop removes and returns the highest-scored entry (FIFO within a score
// class per spec §5, since Push above places each entry before earlier
// entries of equal score, leaving the oldest of them nearest the end).
func (q *ApprovedQueue) Pop() (*evaluate.Opportunity, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	last := len(q.items) - 1
	o := q.items[last]
	q.items = q.items[:last]
	return o, true
}

// Len returns the current queue depth.
func (q *ApprovedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the cumulative count of backpressure-dropped entries.
func (q *ApprovedQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
