package sim

// Flag is a screening result awaiting a follow-up survey.
type Flag struct {
	SiteID       string
	Day          int
	MeasuredRate float64
	Company      string
}

// FollowUpQueue holds sites flagged by screening methods until a
// follow-up method surveys them. One queue is shared by all companies of
// a program; flags keep the order they were raised in.
type FollowUpQueue struct {
	flags []Flag
	index map[string]int
}

// NewFollowUpQueue creates an empty queue.
func NewFollowUpQueue() *FollowUpQueue {
	return &FollowUpQueue{index: make(map[string]int)}
}

// Flag raises a flag for a site. A site already flagged keeps its
// original flag and Flag returns false.
func (q *FollowUpQueue) Flag(f Flag) bool {
	if _, ok := q.index[f.SiteID]; ok {
		return false
	}
	q.index[f.SiteID] = len(q.flags)
	q.flags = append(q.flags, f)
	return true
}

// Resolve clears a site's flag. Returns false if the site was not flagged.
func (q *FollowUpQueue) Resolve(siteID string) bool {
	i, ok := q.index[siteID]
	if !ok {
		return false
	}
	q.flags = append(q.flags[:i], q.flags[i+1:]...)
	delete(q.index, siteID)
	for j := i; j < len(q.flags); j++ {
		q.index[q.flags[j].SiteID] = j
	}
	return true
}

// Pending returns a copy of the outstanding flags, oldest first.
func (q *FollowUpQueue) Pending() []Flag {
	return append([]Flag(nil), q.flags...)
}

// Flagged reports whether a site has an outstanding flag.
func (q *FollowUpQueue) Flagged(siteID string) bool {
	_, ok := q.index[siteID]
	return ok
}

// Len returns the number of outstanding flags.
func (q *FollowUpQueue) Len() int { return len(q.flags) }
