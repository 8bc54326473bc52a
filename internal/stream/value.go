// Package stream provides a small reactive value container: a cell that
// holds a current value, replays it to new subscribers, and notifies all
// subscribers synchronously on every change.
//
// It is the primitive underneath the settings and diagnostics engines;
// both publish immutable snapshots through it.
//
// Callbacks run while the cell's emission lock is held and must not call
// Set or Subscribe on the same cell; re-entry deadlocks.
package stream

import (
	"reflect"
	"sync"
)

// Value holds a current value of type T and an ordered subscriber list.
//
// Publication is atomic from the perspective of any single subscriber:
// a callback observes either the prior or the new value, never a partial
// one. Callbacks fire synchronously in subscription order.
type Value[T any] struct {
	// emitMu serializes Set/Subscribe so that replay and change
	// notifications are never interleaved or reordered.
	emitMu sync.Mutex

	mu      sync.RWMutex
	current T
	subs    []*subscriber[T]
	nextID  uint64
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// NewValue creates a value cell seeded with initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set publishes a new value and notifies all subscribers in order.
func (v *Value[T]) Set(next T) {
	v.emitMu.Lock()
	defer v.emitMu.Unlock()

	v.mu.Lock()
	v.current = next
	subs := make([]*subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
}

// Subscribe registers fn, invokes it immediately with the current value,
// and invokes it again on every subsequent change. The returned cancel
// function is idempotent and safe to call concurrently.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.emitMu.Lock()

	v.mu.Lock()
	v.nextID++
	sub := &subscriber[T]{id: v.nextID, fn: fn}
	v.subs = append(v.subs, sub)
	current := v.current
	v.mu.Unlock()

	// Replay the current value before any later Set can run.
	fn(current)
	v.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.unsubscribe(sub.id)
		})
	}
}

func (v *Value[T]) unsubscribe(id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subs {
		if s.id == id {
			v.subs = append(v.subs[:i], v.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (v *Value[T]) SubscriberCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}

// DeepEqual is an equality function for Map based on reflect.DeepEqual.
// It is the right default for the any-typed snapshots the engines publish.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
