// Package debounce provides trailing debounce primitives keyed by a
// generation counter.
//
// Every scheduled call carries the generation it was scheduled under. A
// newer schedule, a Cancel or an explicit Next bumps the generation, so any
// timer or in-flight call from an older generation finds itself stale and
// does nothing.
package debounce

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Generation is a monotonically increasing token source. The zero value is
// ready to use.
type Generation struct {
	n atomic.Uint64
}

// Next starts a new generation and returns its token.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current reports whether token is still the latest generation.
func (g *Generation) Current(token uint64) bool {
	return g.n.Load() == token
}

// Debouncer runs the most recently scheduled function once the delay has
// passed without another Schedule.
type Debouncer struct {
	delay time.Duration
	gen   Generation

	mu    sync.Mutex
	timer *time.Timer
}

// New returns a Debouncer with the given delay.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule replaces any pending function with fn and restarts the delay.
// fn receives the generation token it was scheduled under.
func (d *Debouncer) Schedule(fn func(token uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	token := d.gen.Next()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if !d.gen.Current(token) {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn(token)
	})
	return token
}

// Cancel drops the pending function, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen.Next()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a function is waiting for its delay.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Current reports whether token is still the latest schedule.
func (d *Debouncer) Current(token uint64) bool {
	return d.gen.Current(token)
}

// Result is the outcome of one debounced mutation call.
type Result[R any] struct {
	Value R
	Err   error
}

// Mutation debounces calls to an async function.
//
// Each Submit returns a channel. Only the latest submission's channel ever
// receives a Result; a superseded submission is ghosted: its channel is
// never written to and never closed. This holds even when the superseded
// call was already running when the newer Submit arrived.
type Mutation[V, R any] struct {
	fn func(context.Context, V) (R, error)
	d  *Debouncer

	running atomic.Int32
}

// NewMutation wraps fn with a trailing debounce of delay.
func NewMutation[V, R any](delay time.Duration, fn func(context.Context, V) (R, error)) *Mutation[V, R] {
	return &Mutation[V, R]{fn: fn, d: New(delay)}
}

// Submit schedules fn(ctx, v) and returns the channel its result is
// delivered on, if it is still the latest submission when fn returns.
func (m *Mutation[V, R]) Submit(ctx context.Context, v V) <-chan Result[R] {
	ch := make(chan Result[R], 1)
	m.SubmitFunc(ctx, v, func(r Result[R]) {
		ch <- r
		close(ch)
	})
	return ch
}

// SubmitFunc is Submit for fire-and-forget callers: done receives the
// result instead of a channel, and is never called for a ghosted
// submission.
func (m *Mutation[V, R]) SubmitFunc(ctx context.Context, v V, done func(Result[R])) {
	m.d.Schedule(func(token uint64) {
		m.running.Add(1)
		defer m.running.Add(-1)

		val, err := m.fn(ctx, v)
		if m.d.Current(token) {
			done(Result[R]{Value: val, Err: err})
		}
	})
}

// Cancel ghosts the latest submission.
func (m *Mutation[V, R]) Cancel() {
	m.d.Cancel()
}

// Pending reports whether a submission is waiting or running.
func (m *Mutation[V, R]) Pending() bool {
	return m.d.Pending() || m.running.Load() > 0
}
