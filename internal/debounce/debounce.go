// Package debounce delays a call until its input has been quiet for a while.
package debounce

import (
	"sync"
	"time"
)

// Debouncer invokes fn with the last argument passed to Call once delay has
// passed without another Call.
type Debouncer[T any] struct {
	fn    func(T)
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	arg   T
	armed bool
	gen   uint64
}

// New creates a Debouncer for fn.
func New[T any](fn func(T), delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{fn: fn, delay: delay}
}

// Call records arg and restarts the quiet period.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.arg = arg
	d.armed = true
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush invokes fn now if a call is pending.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Stop drops the pending call, if any.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.armed = false
	d.gen++
}

// fire runs fn unless gen was superseded by a later Call or Stop. A timer
// whose Stop came too late lands here with a stale gen.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	arg := d.arg
	d.armed = false
	d.timer = nil
	d.mu.Unlock()

	d.fn(arg)
}
