package sim

import "container/heap"

// Visit reasons recorded in the dispatch trace.
const (
	ReasonOverdue  = "overdue"
	ReasonDue      = "due"
	ReasonResume   = "resume"
	ReasonFollowUp = "follow-up"
)

// DueSite is a site waiting for a crew on the current day.
type DueSite struct {
	Site     *Site
	Planner  *SurveyPlanner
	Overdue  bool
	Deadline int
	Reason   string
	seq      uint64
}

// SiteQueue implements a priority queue of due sites with deterministic
// ordering. Ordering: overdue first → earliest deadline → insertion order.
type SiteQueue struct {
	items   []*DueSite
	nextSeq uint64
}

// NewSiteQueue creates an empty queue.
func NewSiteQueue() *SiteQueue {
	q := &SiteQueue{items: make([]*DueSite, 0)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *SiteQueue) Len() int {
	return len(q.items)
}

// Less implements heap.Interface with deterministic ordering
func (q *SiteQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]

	// Primary: overdue sites first
	if a.Overdue != b.Overdue {
		return a.Overdue
	}

	// Secondary: earliest deadline
	if a.Deadline != b.Deadline {
		return a.Deadline < b.Deadline
	}

	// Tertiary: insertion sequence (FIFO tie-breaker)
	return a.seq < b.seq
}

// Swap implements heap.Interface
func (q *SiteQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

// Push implements heap.Interface
func (q *SiteQueue) Push(x interface{}) {
	q.items = append(q.items, x.(*DueSite))
}

// Pop implements heap.Interface
func (q *SiteQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[0 : n-1]
	return item
}

// Schedule adds a due site, stamping it with the next sequence number.
// The sequence counter never resets, so FIFO order holds across days.
func (q *SiteQueue) Schedule(d *DueSite) {
	d.seq = q.nextSeq
	q.nextSeq++
	heap.Push(q, d)
}

// PopNext removes and returns the highest-priority site.
func (q *SiteQueue) PopNext() *DueSite {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*DueSite)
}

// Peek returns the highest-priority site without removing it.
func (q *SiteQueue) Peek() *DueSite {
	if q.Len() == 0 {
		return nil
	}
	return q.items[0]
}

// Drain empties the queue and returns its items in priority order.
func (q *SiteQueue) Drain() []*DueSite {
	out := make([]*DueSite, 0, q.Len())
	for q.Len() > 0 {
		out = append(out, q.PopNext())
	}
	return out
}
