// Package bus carries engine-boundary events to export subscribers (journal,
// database store) without ever blocking the shard writer: publication is
// non-blocking and drops are counted, never waited out.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"matchbook/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Event is the unit passed through the in-memory bus.
type Event struct {
	Header  schema.EventHeader
	Payload []byte
}

// Queue is a bounded, non-blocking event queue with a single consumer.
// Publishing and closing may race: the lock holds the channel open until
// every in-flight TryPublish has returned.
type Queue struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Chan exposes the receive side for consumers that select alongside other
// channels.
func (q *Queue) Chan() <-chan Event {
	return q.ch
}

// Close stops the queue from accepting new events. Safe to call while
// publishers are active and safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}

// Fanout publishes each event to a set of subscriber queues. Events carry
// payloads owned by the publisher, so each subscriber gets its own copy.
type Fanout struct {
	queues []*Queue
	drops  uint64
}

// NewFanout creates a fanout over the given queues.
func NewFanout(queues ...*Queue) *Fanout {
	return &Fanout{queues: queues}
}

// Publish copies the event to every queue, dropping per queue when full.
// It returns the number of queues that accepted the event.
func (f *Fanout) Publish(e Event) int {
	accepted := 0
	for _, q := range f.queues {
		ev := e
		if len(e.Payload) > 0 {
			ev.Payload = make([]byte, len(e.Payload))
			copy(ev.Payload, e.Payload)
		}
		if err := q.TryPublish(ev); err != nil {
			atomic.AddUint64(&f.drops, 1)
			continue
		}
		accepted++
	}
	return accepted
}

// Len returns the number of subscriber queues.
func (f *Fanout) Len() int {
	return len(f.queues)
}

// Drops returns the number of dropped deliveries so far.
func (f *Fanout) Drops() uint64 {
	return atomic.LoadUint64(&f.drops)
}

// Close closes all subscriber queues.
func (f *Fanout) Close() {
	for _, q := range f.queues {
		q.Close()
	}
}
