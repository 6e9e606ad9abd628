package urlparam

import (
	"sync"
	"time"

	"github.com/jobtrail/jobtrail/pkg/stable"
)

// Debounced fronts a State with a local value for free-typing inputs.
//
// Set updates the local value at once and schedules a URL write for when
// input has been quiet for the configured delay. A change of the URL value
// that this instance did not write (back button, a link, another control
// resetting the key) discards the pending write and resyncs both values.
type Debounced[T any] struct {
	state *State[T]
	delay time.Duration

	mu        sync.Mutex
	local     T
	debounced T
	urlValue  T
	gen       uint64
	timer     *time.Timer
	pending   bool
	closed    bool

	unsubscribe func()
}

// NewDebounced starts from the state's current value. Call Close when the
// owning view goes away.
func NewDebounced[T any](state *State[T], delay time.Duration) *Debounced[T] {
	cur := state.Get()
	d := &Debounced[T]{
		state:     state,
		delay:     delay,
		local:     cur,
		debounced: cur,
		urlValue:  cur,
	}
	d.unsubscribe = state.Location().Subscribe(d.onChange)
	return d
}

// Get returns the local value, which reflects every Set immediately.
func (d *Debounced[T]) Get() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.local
}

// Debounced returns the value most recently settled after the delay.
func (d *Debounced[T]) Debounced() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.debounced
}

// Pending reports whether a URL write is scheduled.
func (d *Debounced[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Set updates the local value and restarts the delay.
func (d *Debounced[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.local = v
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush writes the pending value now.
func (d *Debounced[T]) Flush() {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	v := d.settle()
	d.mu.Unlock()

	d.state.Set(v)
}

// Close cancels any pending write and detaches from the Location.
func (d *Debounced[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.unsubscribe()
}

func (d *Debounced[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.settle()
	d.mu.Unlock()

	d.state.Set(v)
}

// settle must be called with d.mu held.
func (d *Debounced[T]) settle() T {
	d.pending = false
	d.timer = nil
	d.debounced = d.local
	d.urlValue = d.local
	return d.local
}

func (d *Debounced[T]) onChange(Change) {
	cur := d.state.Get()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || stable.Equal(cur, d.urlValue) {
		return
	}

	d.urlValue = cur
	d.local = cur
	d.debounced = cur
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
