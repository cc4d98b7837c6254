package messaging

import "sync"

// lanes runs functions serially per key: work pushed under one key runs in
// push order on a single goroutine, while different keys run concurrently.
// A lane's goroutine exits when its queue is empty and is restarted on the
// next push.
type lanes struct {
	mu     sync.Mutex
	queues map[string]*lane
}

type lane struct {
	queue []func()
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string]*lane)}
}

// push appends fn to key's lane and returns the lane's backlog including fn.
func (l *lanes) push(key string, fn func()) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, running := l.queues[key]
	if !running {
		q = &lane{}
		l.queues[key] = q
	}
	q.queue = append(q.queue, fn)
	if !running {
		go l.run(key, q)
	}
	return len(q.queue)
}

func (l *lanes) run(key string, q *lane) {
	for {
		l.mu.Lock()
		if len(q.queue) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
