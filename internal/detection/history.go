package detection

// History is a bounded sliding window of the most recent inference results,
// oldest first. One scanning session owns exactly one History; the session
// serializes access, so History itself is not safe for concurrent use.
type History struct {
	capacity int
	entries  []*Result
}

// DefaultHistorySize is the number of samples retained for stabilization,
// roughly 3-6 seconds of scanning at the nominal detection interval.
const DefaultHistorySize = 3

// NewHistory creates a history window with the given capacity.
// A capacity below one falls back to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &History{
		capacity: capacity,
		entries:  make([]*Result, 0, capacity),
	}
}

// Push appends a result, evicting the oldest entry when over capacity.
func (h *History) Push(r *Result) {
	if r == nil {
		return
	}
	h.entries = append(h.entries, r)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
	}
}

// Len returns the number of retained results.
func (h *History) Len() int {
	return len(h.entries)
}

// Latest returns the most recent result, or nil when empty.
func (h *History) Latest() *Result {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// Entries returns the retained results, oldest first. The returned slice is
// the window itself and must not be mutated by callers.
func (h *History) Entries() []*Result {
	return h.entries
}

// Reset clears the window. Called when a scanning session stops.
func (h *History) Reset() {
	h.entries = h.entries[:0]
}
