package pipelink

import (
	"sync"
	"time"
)

// Queue is an unbounded thread-safe FIFO of messages. Push never blocks;
// consumers either poll with TryPop or wait a bounded time with PopWait.
// Each Process/Interface owns its queues exclusively and replaces them
// wholesale on Reset, so a queue is never shared across generations.
type Queue struct {
	mu    sync.Mutex
	items []*Message
	wake  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Push appends a message to the tail.
func (q *Queue) Push(msg *Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	// Wake at most one waiter; a full wake channel means one is already due.
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the head, or nil if the queue is empty.
func (q *Queue) TryPop() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg
}

// PopWait removes and returns the head, waiting up to timeout for one to
// arrive. Returns nil on timeout.
func (q *Queue) PopWait(timeout time.Duration) *Message {
	if msg := q.TryPop(); msg != nil {
		return msg
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if msg := q.TryPop(); msg != nil {
				return msg
			}
			// Spurious wake: another consumer won the race, keep waiting.
		case <-timer.C:
			return q.TryPop()
		}
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
