package engine

import (
	"container/heap"
	"time"
)

// timed is an entry ordered by deadline; ties are broken by insertion order.
type timed interface {
	deadline() time.Time
	order() uint64
	position() int
	setPosition(int)
}

// expiryQueue is a min-heap on deadline. Entries track their own position so they can
// be fixed or removed in O(log n) when refreshed or deleted through the primary map.
type expiryQueue[T timed] struct {
	items []T
}

func (q *expiryQueue[T]) Len() int { return len(q.items) }

func (q *expiryQueue[T]) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.deadline().Equal(b.deadline()) {
		return a.order() < b.order()
	}
	return a.deadline().Before(b.deadline())
}

func (q *expiryQueue[T]) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].setPosition(i)
	q.items[j].setPosition(j)
}

func (q *expiryQueue[T]) Push(x any) {
	it := x.(T)
	it.setPosition(len(q.items))
	q.items = append(q.items, it)
}

func (q *expiryQueue[T]) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	var zero T
	q.items[n-1] = zero
	q.items = q.items[:n-1]
	it.setPosition(-1)
	return it
}

func (q *expiryQueue[T]) add(it T) {
	heap.Push(q, it)
}

// peek returns the entry with the earliest deadline.
func (q *expiryQueue[T]) peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

func (q *expiryQueue[T]) remove(it T) {
	if i := it.position(); i >= 0 && i < len(q.items) {
		heap.Remove(q, i)
	}
}

// fix restores ordering after its deadline changed.
func (q *expiryQueue[T]) fix(it T) {
	if i := it.position(); i >= 0 && i < len(q.items) {
		heap.Fix(q, i)
	}
}
