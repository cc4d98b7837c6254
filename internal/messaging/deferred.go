package messaging

import "time"

// deferredQueue holds work requested while no session is ready. It backs
// both pending subscriptions and pending sends so that both drain through
// the same FIFO path once a session is up. Guarded by Client.mu.
type deferredQueue[T any] struct {
	items []deferred[T]
}

type deferred[T any] struct {
	value    T
	enqueued time.Time
}

func (q *deferredQueue[T]) push(v T) {
	q.items = append(q.items, deferred[T]{value: v, enqueued: time.Now()})
}

// drain hands every queued value to fn in FIFO order and empties the queue.
func (q *deferredQueue[T]) drain(fn func(v T, enqueued time.Time)) {
	items := q.items
	q.items = nil
	for _, it := range items {
		fn(it.value, it.enqueued)
	}
}

func (q *deferredQueue[T]) len() int {
	return len(q.items)
}
