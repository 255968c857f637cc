package frontier

import "container/heap"

// urlHeap orders QueuedURLs by priority (higher first), then readiness
// time, then insertion order. Within one queue all retry entries share
// PriorityRetry, so the retry heap degenerates to readiness order while
// the main heap (always-ready entries) resolves by priority then FIFO.
type urlHeap []*QueuedURL

func (h urlHeap) Len() int { return len(h) }

func (h urlHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].ReadyAt.Equal(h[j].ReadyAt) {
		return h[i].ReadyAt.Before(h[j].ReadyAt)
	}
	return h[i].seq < h[j].seq
}

func (h urlHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *urlHeap) Push(x any) {
	*h = append(*h, x.(*QueuedURL))
}

func (h *urlHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// priorityQueue wraps urlHeap with the operations the frontier needs.
type priorityQueue struct {
	items urlHeap
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{items: urlHeap{}}
	heap.Init(&pq.items)
	return pq
}

func (q *priorityQueue) push(item *QueuedURL) {
	heap.Push(&q.items, item)
}

func (q *priorityQueue) pop() (*QueuedURL, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(&q.items).(*QueuedURL), true
}

// peek returns the head entry (highest priority, then earliest ReadyAt,
// then FIFO) without removing it.
func (q *priorityQueue) peek() (*QueuedURL, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

func (q *priorityQueue) size() int {
	return len(q.items)
}

// remove deletes the entry for the given URL, if present.
func (q *priorityQueue) remove(url string) bool {
	for i, item := range q.items {
		if item.URL == url {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// entries returns a copy of the queue contents in heap order.
func (q *priorityQueue) entries() []QueuedURL {
	out := make([]QueuedURL, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}
