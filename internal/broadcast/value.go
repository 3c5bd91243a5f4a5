// Package broadcast provides small publish/subscribe primitives shared by the
// aggregators and the portfolio cache.
package broadcast

import "sync"

// Value holds the latest published value. New subscribers receive the
// current value first. A slow subscriber only ever sees the newest value.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[*Subscription[T]]struct{}
}

// Subscription is a handle returned by Subscribe.
type Subscription[T any] struct {
	ch     chan T
	cancel func()
	once   sync.Once
}

// C returns the receive channel. It is closed by Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unsubscribes, discards unread values and closes the channel. Safe to
// call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

// NewValue creates a holder seeded with initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[*Subscription[T]]struct{}),
	}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Publish stores val and notifies every subscriber, even when val equals
// the previous value.
func (v *Value[T]) Publish(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = val
	for sub := range v.subs {
		offerLatest(sub.ch, val)
	}
}

// Subscribe registers a new subscriber.
func (v *Value[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, 1)}
	sub.cancel = func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, sub)
		drainAndClose(sub.ch)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs[sub] = struct{}{}
	sub.ch <- v.current
	return sub
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// offerLatest replaces any unread value with val. Callers hold the lock so
// the channel has no other writer.
func offerLatest[T any](ch chan T, val T) {
	select {
	case ch <- val:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- val:
	default:
	}
}

// drainAndClose empties ch and closes it. Callers hold the publisher's lock.
func drainAndClose[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
