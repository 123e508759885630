// Package synth schedules speech synthesis through a priority queue with a
// single active render. Higher-priority utterances jump ahead of queued ones
// but never interrupt the utterance currently being spoken. The Queue is
// owned by the orchestrator event loop and is not safe for concurrent use.
package synth

// entry wraps a queued utterance with scheduling metadata. The seq field
// provides FIFO ordering within the same priority level.
type entry struct {
	item Item
	seq  uint64 // monotonic insertion order for FIFO tie-breaking
}

// itemHeap implements [container/heap.Interface] as a max-heap ordered by
// priority (descending), with FIFO tie-breaking on seq (ascending).
type itemHeap []entry

func (h itemHeap) Len() int { return len(h) }

// Less reports whether element i should be dequeued before element j.
// Higher priority wins; equal priority falls back to insertion order.
func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority > h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
