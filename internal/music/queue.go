package music

// QueueItem is one row of a queue listing, 1-based.
type QueueItem struct {
	Position int
	Title    string
}

// trackQueue is a FIFO of pending tracks. The currently sounding track is
// never in the queue; it is removed the moment playback starts. All access
// goes through the owning Player's mutex.
type trackQueue struct {
	items []TrackRequest
}

// push appends a track and returns the new queue length.
func (q *trackQueue) push(t TrackRequest) int {
	q.items = append(q.items, t)
	return len(q.items)
}

func (q *trackQueue) peek() (TrackRequest, bool) {
	if len(q.items) == 0 {
		return TrackRequest{}, false
	}
	return q.items[0], true
}

func (q *trackQueue) pop() (TrackRequest, bool) {
	if len(q.items) == 0 {
		return TrackRequest{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

func (q *trackQueue) size() int {
	return len(q.items)
}

func (q *trackQueue) empty() bool {
	return len(q.items) == 0
}

func (q *trackQueue) clear() {
	q.items = nil
}

// snapshot returns the pending tracks in play order with 1-based positions.
// An empty queue yields a nil slice so callers can render a distinct
// "nothing queued" message instead of an empty listing.
func (q *trackQueue) snapshot() []QueueItem {
	if len(q.items) == 0 {
		return nil
	}
	out := make([]QueueItem, len(q.items))
	for i, t := range q.items {
		out[i] = QueueItem{Position: i + 1, Title: t.Title}
	}
	return out
}
