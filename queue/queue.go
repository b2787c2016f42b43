// Package queue provides a priority queue over scored row keys and a
// bounded top-k collector built on it, used to rank pairs by count,
// log-likelihood or mutual information.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents a scored key in the priority queue.
type PriorityQueueItem struct {
	Key   string  // Key is the row key of the item, which can be arbitrary.
	Score float64 // Score is the priority of the item in the queue.
	Index int     // Index is needed by update and is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
type PriorityQueue struct {
	Order bool                 // Order specifies whether the priority queue is in ascending or descending order.
	Items []*PriorityQueueItem // Items contains the elements of the priority queue.
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if !pq.Order {
		return pq.Items[i].Score < pq.Items[j].Score
	} else {
		return pq.Items[i].Score > pq.Items[j].Score
	}
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j // Update indices
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil // Or handle the error accordingly
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil       // Avoid memory leak
	item.Index = -1      // For safety
	pq.Items = old[:n-1] // Reslice without creating a new underlying array

	return item
}

// Top returns the top element of the priority queue.
func (pq *PriorityQueue) Top() any {
	return pq.Items[0]
}

// TopK collects the k highest-scoring keys from a stream of candidates.
// It keeps a min-heap of size k so that the lowest retained score is
// always at the top and cheap to compare against.
type TopK struct {
	k  int
	pq *PriorityQueue
}

// NewTopK returns a collector retaining the k highest-scoring keys.
// A k of zero or less retains everything.
func NewTopK(k int) *TopK {
	return &TopK{
		k:  k,
		pq: &PriorityQueue{},
	}
}

// Add offers a scored key. When the collector is full and the score does
// not beat the current minimum, the key is dropped.
func (t *TopK) Add(key string, score float64) {
	if t.k > 0 && t.pq.Len() == t.k {
		if min, _ := t.pq.Top().(*PriorityQueueItem); score <= min.Score {
			return
		}

		heap.Pop(t.pq)
	}

	heap.Push(t.pq, &PriorityQueueItem{Key: key, Score: score})
}

// Len returns the number of retained items.
func (t *TopK) Len() int { return t.pq.Len() }

// Results drains the collector and returns the retained items in
// descending score order. The collector is empty afterwards.
func (t *TopK) Results() []*PriorityQueueItem {
	out := make([]*PriorityQueueItem, t.pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := heap.Pop(t.pq).(*PriorityQueueItem)
		out[i] = item
	}

	return out
}
