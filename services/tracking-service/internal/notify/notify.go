// Package notify provides the unbounded in-order queues used to hand
// session and cache changes to subscribers without blocking the producer.
package notify

import (
	"sort"
	"sync"
)

// Queue is an unbounded FIFO. Push never blocks on a slow reader; items
// pushed before Close are still delivered on Out, which is then closed.
type Queue[T any] struct {
	mu     sync.Mutex
	in     chan T
	out    chan T
	closed bool
}

// NewQueue starts the queue's pump goroutine
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.pump()
	return q
}

func (q *Queue[T]) pump() {
	var pending []T
	in := q.in
	for in != nil || len(pending) > 0 {
		var out chan T
		var next T
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, v)
		case out <- next:
			var zero T
			pending[0] = zero
			pending = pending[1:]
		}
	}
	close(q.out)
}

// Push enqueues v. It reports false when the queue is already closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.in <- v
	return true
}

// Out delivers items in push order
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Close stops accepting items. Already queued items are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.in)
}

// Broadcaster delivers published values to every subscriber, one value at
// a time and in publish order, from a single dispatcher goroutine.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]func(T)
	nextID uint64
	queue  *Queue[T]
	done   chan struct{}
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	b := &Broadcaster[T]{
		subs:  make(map[uint64]func(T)),
		queue: NewQueue[T](),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Broadcaster[T]) dispatch() {
	defer close(b.done)
	for v := range b.queue.Out() {
		for _, fn := range b.handlers() {
			fn(v)
		}
	}
}

func (b *Broadcaster[T]) handlers() []func(T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = b.subs[id]
	}
	return fns
}

// Subscribe registers fn and returns its unsubscribe function.
// Handlers must not call Close.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish queues v for delivery
func (b *Broadcaster[T]) Publish(v T) {
	b.queue.Push(v)
}

// Close delivers what is queued and stops the dispatcher
func (b *Broadcaster[T]) Close() {
	b.queue.Close()
	<-b.done
}
