package queue

import (
	"container/heap"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue_Ascending(t *testing.T) {
	pq := &PriorityQueue{}
	heap.Init(pq)

	heap.Push(pq, &PriorityQueueItem{Key: "b", Score: 2.0})
	heap.Push(pq, &PriorityQueueItem{Key: "a", Score: 1.0})
	heap.Push(pq, &PriorityQueueItem{Key: "c", Score: 3.0})

	require.Equal(t, 3, pq.Len())
	assert.Equal(t, "a", pq.Top().(*PriorityQueueItem).Key)

	var keys []string
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*PriorityQueueItem)
		keys = append(keys, item.Key)
	}

	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestPriorityQueue_Descending(t *testing.T) {
	pq := &PriorityQueue{Order: true}
	heap.Init(pq)

	heap.Push(pq, &PriorityQueueItem{Key: "b", Score: 2.0})
	heap.Push(pq, &PriorityQueueItem{Key: "a", Score: 1.0})
	heap.Push(pq, &PriorityQueueItem{Key: "c", Score: 3.0})

	assert.Equal(t, "c", pq.Top().(*PriorityQueueItem).Key)

	var keys []string
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*PriorityQueueItem)
		keys = append(keys, item.Key)
	}

	assert.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestPriorityQueue_PopEmpty(t *testing.T) {
	pq := &PriorityQueue{}
	assert.Nil(t, pq.Pop())
}

func TestTopK_RetainsHighest(t *testing.T) {
	tk := NewTopK(3)

	for i := 0; i < 10; i++ {
		tk.Add(fmt.Sprintf("key-%d", i), float64(i))
	}

	require.Equal(t, 3, tk.Len())

	results := tk.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "key-9", results[0].Key)
	assert.Equal(t, "key-8", results[1].Key)
	assert.Equal(t, "key-7", results[2].Key)
	assert.Equal(t, 0, tk.Len())
}

func TestTopK_FewerThanK(t *testing.T) {
	tk := NewTopK(10)
	tk.Add("a", 1.0)
	tk.Add("b", 5.0)

	results := tk.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Key)
	assert.Equal(t, "a", results[1].Key)
}

func TestTopK_Unbounded(t *testing.T) {
	tk := NewTopK(0)

	for i := 0; i < 100; i++ {
		tk.Add(fmt.Sprintf("key-%d", i), float64(i%7))
	}

	assert.Equal(t, 100, tk.Len())

	results := tk.Results()
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestTopK_DropsLowScores(t *testing.T) {
	tk := NewTopK(2)
	tk.Add("high", 10.0)
	tk.Add("higher", 20.0)
	tk.Add("low", 1.0) // full and below the retained minimum

	results := tk.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "higher", results[0].Key)
	assert.Equal(t, "high", results[1].Key)
}
