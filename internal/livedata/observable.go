// Package livedata provides the two asynchronous primitives of the SDK:
// Observable, a last-value-replay value cell that notifies subscribers only
// when its value actually changes, and Call, a cancellable single-shot
// asynchronous operation handle.
//
// Design notes:
//   - Observable is deliberately independent of any UI framework. The state
//     layer publishes into cells; UI bindings (or test spies) subscribe.
//   - Notification happens on inequality only, so a field that did not
//     change never re-notifies its observers.
package livedata

import "sync"

// Observer receives value updates from an Observable.
type Observer[T any] func(value T)

// Observable is a concurrency-safe value cell with last-value replay.
//
// Subscribers registered while a value is present receive it immediately.
// Set publishes only when the new value differs from the current one under
// the cell's equality function, so spurious re-notifications cannot happen.
type Observable[T any] struct {
	mu        sync.Mutex
	value     T
	hasValue  bool
	eq        func(a, b T) bool
	observers map[int]Observer[T]
	nextID    int
}

// NewObservable creates an empty cell using eq to decide whether a newly set
// value differs from the current one. A nil eq disables suppression and
// every Set notifies.
func NewObservable[T any](eq func(a, b T) bool) *Observable[T] {
	return &Observable[T]{
		eq:        eq,
		observers: make(map[int]Observer[T]),
	}
}

// NewObservableValue creates a cell seeded with an initial value. Seeding
// does not notify (there are no subscribers yet) but the value replays to
// future subscribers.
func NewObservableValue[T any](initial T, eq func(a, b T) bool) *Observable[T] {
	o := NewObservable(eq)
	o.value = initial
	o.hasValue = true
	return o
}

// Observe registers fn and returns an unsubscribe function. If the cell
// holds a value, fn is invoked synchronously with it before Observe returns.
func (o *Observable[T]) Observe(fn Observer[T]) (cancel func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.observers[id] = fn
	replay, hasValue := o.value, o.hasValue
	o.mu.Unlock()

	if hasValue {
		fn(replay)
	}
	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Set publishes value to all observers unless it equals the current value.
// It reports whether a notification was emitted.
func (o *Observable[T]) Set(value T) bool {
	o.mu.Lock()
	if o.hasValue && o.eq != nil && o.eq(o.value, value) {
		o.mu.Unlock()
		return false
	}
	o.value = value
	o.hasValue = true
	observers := make([]Observer[T], 0, len(o.observers))
	for _, fn := range o.observers {
		observers = append(observers, fn)
	}
	o.mu.Unlock()

	for _, fn := range observers {
		fn(value)
	}
	return true
}

// Value returns the current value and whether one has been set.
func (o *Observable[T]) Value() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.hasValue
}

// EqComparable is an equality function for comparable value types.
func EqComparable[T comparable](a, b T) bool { return a == b }

// EqSliceFunc builds an equality function for slices compared element-wise
// with eq.
func EqSliceFunc[T any](eq func(a, b T) bool) func(a, b []T) bool {
	return func(a, b []T) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !eq(a[i], b[i]) {
				return false
			}
		}
		return true
	}
}
