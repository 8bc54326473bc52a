package stream

// Derived is a read-only view of a source Value remapped through a
// transform, with consecutive duplicate emissions suppressed.
type Derived[U any] struct {
	out    *Value[U]
	cancel func()
}

// Map creates a derived view of src. Every published source value is
// passed through transform; the result is re-published only when eq
// reports it differs from the previously published result
// (distinct-until-changed). A nil eq falls back to DeepEqual.
//
// The view holds a subscription on src until Close is called.
func Map[T, U any](src *Value[T], transform func(T) U, eq func(U, U) bool) *Derived[U] {
	if eq == nil {
		eq = DeepEqual[U]
	}

	d := &Derived[U]{}
	seeded := false
	var last U

	// Subscribe replays synchronously, so out is initialized before
	// Map returns.
	d.cancel = src.Subscribe(func(t T) {
		u := transform(t)
		if !seeded {
			seeded = true
			last = u
			d.out = NewValue(u)
			return
		}
		if eq(last, u) {
			return
		}
		last = u
		d.out.Set(u)
	})

	return d
}

// Get returns the current derived value.
func (d *Derived[U]) Get() U {
	return d.out.Get()
}

// Subscribe behaves like Value.Subscribe on the derived view.
func (d *Derived[U]) Subscribe(fn func(U)) (cancel func()) {
	return d.out.Subscribe(fn)
}

// Close releases the subscription on the source value. Idempotent.
func (d *Derived[U]) Close() {
	d.cancel()
}
