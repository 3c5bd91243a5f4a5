package broadcast

import (
	"sync"
	"sync/atomic"
)

const defaultFeedBuffer = 16

// Feed is an event stream without replay. Publish never blocks: an event is
// dropped for a subscriber whose buffer is full.
type Feed[T any] struct {
	mu      sync.Mutex
	buffer  int
	subs    map[*Subscription[T]]struct{}
	dropped atomic.Uint64
}

// NewFeed creates a feed whose subscribers buffer up to buffer events.
// A non-positive buffer uses the default of 16.
func NewFeed[T any](buffer int) *Feed[T] {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	return &Feed[T]{
		buffer: buffer,
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Publish delivers ev to every subscriber.
func (f *Feed[T]) Publish(ev T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. Only events published afterwards
// are delivered.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, f.buffer)}
	sub.cancel = func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, sub)
		drainAndClose(sub.ch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub] = struct{}{}
	return sub
}

// Dropped returns how many events were discarded for full subscribers.
func (f *Feed[T]) Dropped() uint64 {
	return f.dropped.Load()
}
