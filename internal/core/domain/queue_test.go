package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string) *QueueItem {
	return &QueueItem{Video: Video{VideoID: VideoID{Service: "direct", ID: id}}}
}

func queueIDs(q *VideoQueue) []string {
	items := q.Items()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestQueueEnqueueDequeue(t *testing.T) {
	q := NewVideoQueue()
	assert.Equal(t, 0, q.Length())
	assert.Nil(t, q.Dequeue())

	require.NoError(t, q.Enqueue(item("a"), item("b")))
	require.NoError(t, q.Enqueue(item("c")))
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(q))

	head := q.Dequeue()
	require.NotNil(t, head)
	assert.Equal(t, "a", head.ID)
	assert.Equal(t, []string{"b", "c"}, queueIDs(q))
}

func TestQueueRejectsNilItems(t *testing.T) {
	q := NewVideoQueue()
	assert.ErrorIs(t, q.Enqueue(nil), ErrNilQueueItem)
	assert.ErrorIs(t, q.PushTop(item("a"), nil), ErrNilQueueItem)
	assert.ErrorIs(t, q.Insert(nil, 0), ErrNilQueueItem)
	assert.Equal(t, 0, q.Length())
}

func TestQueuePushTop(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("c")))
	require.NoError(t, q.PushTop(item("a"), item("b")))
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(q))
}

func TestQueueInsertAndMove(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("a"), item("c")))
	require.NoError(t, q.Insert(item("b"), 1))
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(q))

	assert.ErrorIs(t, q.Insert(item("x"), 7), ErrQueueIndexRange)
	assert.ErrorIs(t, q.Move(0, 9), ErrQueueIndexRange)
	assert.ErrorIs(t, q.Move(-1, 0), ErrQueueIndexRange)

	require.NoError(t, q.Move(2, 0))
	assert.Equal(t, []string{"c", "a", "b"}, queueIDs(q))

	// moving onto itself is a no-op even out of range
	require.NoError(t, q.Move(5, 5))
}

func TestQueueEvict(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("a"), item("b"), item("c")))

	idx, evicted, err := q.Evict(VideoID{Service: "direct", ID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", evicted.ID)
	assert.Equal(t, []string{"a", "c"}, queueIDs(q))

	_, _, err = q.Evict(VideoID{Service: "direct", ID: "missing"})
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestQueueContainsFindIndex(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("a"), item("b")))
	assert.True(t, q.Contains(VideoID{Service: "direct", ID: "b"}))
	assert.Equal(t, 1, q.FindIndex(VideoID{Service: "direct", ID: "b"}))
	assert.False(t, q.Contains(VideoID{Service: "youtube", ID: "b"}))
	assert.Equal(t, -1, q.FindIndex(VideoID{Service: "youtube", ID: "b"}))
}

func TestQueueOrderByMarksDirtyOnlyOnChange(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("b"), item("a"), item("c")))

	dirty := 0
	q.SetDirtyCallback(func() { dirty++ })

	q.OrderBy(func(a, b *QueueItem) bool { return a.ID < b.ID })
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(q))
	assert.Equal(t, 1, dirty)

	// already sorted, no change, no dirty
	q.OrderBy(func(a, b *QueueItem) bool { return a.ID < b.ID })
	assert.Equal(t, 1, dirty)
}

func TestQueueSetReplacesContents(t *testing.T) {
	q := NewVideoQueue()
	require.NoError(t, q.Enqueue(item("a")))
	require.NoError(t, q.Set([]*QueueItem{item("x"), item("y")}))
	assert.Equal(t, []string{"x", "y"}, queueIDs(q))
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	q := NewVideoQueue()
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Enqueue(item(fmt.Sprintf("v%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, q.Length())
}
