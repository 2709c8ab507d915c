package dcbnotify

import (
	"sync"

	"github.com/dcbkit/eventstore/internal/dcbcore"
)

// coalescingDispatcher implements spec §4.4's eventually-consistent
// delivery: a single goroutine (single-threaded dispatcher) owns a
// "pending target" reference. Concurrent appends only ever advance the
// target to the largest-seen reference (never move it backwards); the
// goroutine, when idle, wakes on any advance, reads the current target,
// and calls every registered listener once with it, recording each
// listener's returned "processed up to" reference as that listener's last
// delivered watermark. If the target has advanced again since the read,
// the loop repeats without waiting — this is the "one more delivery after
// the current one completes, with the max target seen" rule.
type coalescingDispatcher struct {
	mu        sync.Mutex
	target    *dcbcore.EventReference
	wake      chan struct{}
	listeners []*listenerState
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

type listenerState struct {
	fn            EventuallyConsistentListener
	lastDelivered *dcbcore.EventReference
}

func newCoalescingDispatcher() *coalescingDispatcher {
	d := &coalescingDispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *coalescingDispatcher) subscribe(l EventuallyConsistentListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, &listenerState{fn: l})
}

// advance records ref as the new target if it is greater than the current
// one (nil counts as "less than anything"), and wakes the dispatcher.
func (d *coalescingDispatcher) advance(ref dcbcore.EventReference) {
	d.mu.Lock()
	if d.target == nil || ref.HappenedAfter(*d.target) {
		r := ref
		d.target = &r
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
		// A wake is already pending; the run loop hasn't consumed it yet,
		// so it will observe this advance too when it does.
	}
}

func (d *coalescingDispatcher) run() {
	for {
		select {
		case <-d.wake:
		case <-d.done:
			return
		}

		for {
			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				return
			}
			target := d.target
			listeners := make([]*listenerState, len(d.listeners))
			copy(listeners, d.listeners)
			d.mu.Unlock()

			if target == nil {
				break
			}

			for _, ls := range listeners {
				if ls.lastDelivered != nil && !target.HappenedAfter(*ls.lastDelivered) {
					// Target has not advanced past this listener's last
					// delivered watermark: drop, per the coalescing rule.
					continue
				}
				processed := ls.fn(*target)
				ls.lastDelivered = &processed
			}

			d.mu.Lock()
			advancedAgain := d.target != nil && d.target.HappenedAfter(*target)
			d.mu.Unlock()
			if !advancedAgain {
				break
			}
			// The target moved again while delivering: loop once more
			// with the new max, without waiting for another wake.
		}
	}
}

func (d *coalescingDispatcher) close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
	})
}
