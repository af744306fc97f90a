package domain

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
)

// VideoQueue is a concurrency-safe ordered list of queue items. A single
// mutex serializes all mutations; readers never take the lock, they see the
// snapshot published by the most recently completed mutation.
type VideoQueue struct {
	mu       sync.Mutex
	items    []*QueueItem
	snapshot atomic.Pointer[[]*QueueItem]
	onDirty  func()
}

func NewVideoQueue() *VideoQueue {
	q := &VideoQueue{}
	q.publish()
	return q
}

// SetDirtyCallback registers the function invoked after every mutation. The
// owning room uses it to schedule a sync broadcast.
func (q *VideoQueue) SetDirtyCallback(fn func()) {
	q.mu.Lock()
	q.onDirty = fn
	q.mu.Unlock()
}

// publish installs the current items as the read snapshot. Callers must hold
// the mutex.
func (q *VideoQueue) publish() {
	snap := make([]*QueueItem, len(q.items))
	copy(snap, q.items)
	q.snapshot.Store(&snap)
}

// markDirty must be called with the mutex held, after the mutation.
func (q *VideoQueue) markDirty() {
	q.publish()
	if q.onDirty != nil {
		q.onDirty()
	}
}

// Items returns the latest published snapshot. The returned slice must not be
// mutated.
func (q *VideoQueue) Items() []*QueueItem {
	return *q.snapshot.Load()
}

func (q *VideoQueue) Length() int {
	return len(*q.snapshot.Load())
}

func checkItems(items []*QueueItem) error {
	for _, item := range items {
		if item == nil {
			return ErrNilQueueItem
		}
	}
	return nil
}

// Set replaces the entire queue contents.
func (q *VideoQueue) Set(items []*QueueItem) error {
	if err := checkItems(items); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]*QueueItem, len(items))
	copy(q.items, items)
	q.markDirty()
	return nil
}

// Enqueue appends items to the back of the queue.
func (q *VideoQueue) Enqueue(items ...*QueueItem) error {
	if err := checkItems(items); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	q.markDirty()
	return nil
}

// Dequeue pops the head of the queue. Returns nil on an empty queue.
func (q *VideoQueue) Dequeue() *QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.markDirty()
	return item
}

// PushTop prepends items to the front of the queue.
func (q *VideoQueue) PushTop(items ...*QueueItem) error {
	if err := checkItems(items); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]*QueueItem, 0, len(items)+len(q.items)), items...), q.items...)
	q.markDirty()
	return nil
}

// Insert places an item at the given index, shifting later items back.
func (q *VideoQueue) Insert(item *QueueItem, index int) error {
	if item == nil {
		return ErrNilQueueItem
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index > len(q.items) {
		return ErrQueueIndexRange
	}
	q.items = append(q.items, nil)
	copy(q.items[index+1:], q.items[index:])
	q.items[index] = item
	q.markDirty()
	return nil
}

// Move relocates the item at fromIdx to toIdx. Equal indexes are a no-op.
func (q *VideoQueue) Move(fromIdx, toIdx int) error {
	if fromIdx == toIdx {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if fromIdx < 0 || fromIdx >= len(q.items) || toIdx < 0 || toIdx >= len(q.items) {
		return ErrQueueIndexRange
	}
	item := q.items[fromIdx]
	q.items = append(q.items[:fromIdx], q.items[fromIdx+1:]...)
	q.items = append(q.items, nil)
	copy(q.items[toIdx+1:], q.items[toIdx:])
	q.items[toIdx] = item
	q.markDirty()
	return nil
}

// Evict removes the item matching the video id and returns its former index.
func (q *VideoQueue) Evict(id VideoID) (int, *QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.VideoID.Equal(id) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.markDirty()
			return i, item, nil
		}
	}
	return -1, nil, ErrVideoNotFound
}

// OrderBy stably re-sorts the queue with the given less function. The queue
// is marked dirty only when the order actually changed.
func (q *VideoQueue) OrderBy(less func(a, b *QueueItem) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := make([]*QueueItem, len(q.items))
	copy(before, q.items)
	sort.SliceStable(q.items, func(i, j int) bool { return less(q.items[i], q.items[j]) })
	for i := range q.items {
		if q.items[i] != before[i] {
			q.markDirty()
			return
		}
	}
}

// Shuffle randomly permutes the queue.
func (q *VideoQueue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
	q.markDirty()
}

// Contains reports whether a video with the id is queued.
func (q *VideoQueue) Contains(id VideoID) bool {
	return q.FindIndex(id) >= 0
}

// FindIndex returns the index of the video with the id, or -1.
func (q *VideoQueue) FindIndex(id VideoID) int {
	for i, item := range q.Items() {
		if item.VideoID.Equal(id) {
			return i
		}
	}
	return -1
}
