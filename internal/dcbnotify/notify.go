// Package dcbnotify implements the dual notification fabric of spec §4.4:
// a synchronous, in-the-appending-thread "consistent" channel and an
// asynchronous, coalesced "eventually-consistent" channel, plus
// uncoalesced bookmark-placed notifications. There is no direct
// equivalent in the teacher (go-crablet delivers results back to the
// caller directly, with no listener/subscriber concept), so this package
// is built fresh, in the idiom the teacher uses for everything
// goroutine/channel-shaped: a owned goroutine per dispatcher, buffered
// channels, and select-based cancellation
// (postgres/channel_streaming.go, projection.go's QueryStream).
package dcbnotify

import (
	"sync"

	"github.com/dcbkit/eventstore/internal/dcbcore"
)

// ConsistentListener is called synchronously, in the appending thread,
// after commit and before Append returns, with the full batch of
// just-appended events for one stream.
type ConsistentListener func(events []dcbcore.StoredEvent)

// EventuallyConsistentListener is called asynchronously, at most once per
// coalesced target reference. It returns the reference it has processed
// up to, which becomes the dispatcher's "last delivered" watermark.
type EventuallyConsistentListener func(target dcbcore.EventReference) dcbcore.EventReference

// BookmarkListener is called asynchronously on every bookmark upsert; no
// coalescing is applied.
type BookmarkListener func(b dcbcore.Bookmark)

// Hub is a per-EventStreamId notification fan-out point: one consistent
// listener list, one eventually-consistent dispatcher, one bookmark
// listener list. Hubs are created per stream facade and never shared
// across streams, matching spec §4.5's "facade holds these lists" model.
type Hub struct {
	mu                  sync.RWMutex
	consistent          []ConsistentListener
	bookmarkListeners   []BookmarkListener
	dispatcher          *coalescingDispatcher
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{dispatcher: newCoalescingDispatcher()}
}

// SubscribeConsistent registers l. Registration never reorders with
// in-flight notifications: it only affects calls to NotifyConsistent made
// after this returns.
func (h *Hub) SubscribeConsistent(l ConsistentListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consistent = append(h.consistent, l)
}

// SubscribeEventuallyConsistent registers l with the coalescing
// dispatcher. See coalescingDispatcher for the delivery contract.
func (h *Hub) SubscribeEventuallyConsistent(l EventuallyConsistentListener) {
	h.dispatcher.subscribe(l)
}

// SubscribeBookmark registers l for uncoalesced bookmark notifications.
func (h *Hub) SubscribeBookmark(l BookmarkListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bookmarkListeners = append(h.bookmarkListeners, l)
}

// NotifyConsistent delivers events to every consistent listener, in
// registration order, as a single list call per listener. Exceptions are
// not a concept here (Go has no checked exceptions); a listener that
// panics is allowed to propagate to the caller, matching the spec's "the
// append has already committed" semantics — this call happens after the
// caller's commit, so a panic here cannot roll anything back.
func (h *Hub) NotifyConsistent(events []dcbcore.StoredEvent) {
	h.mu.RLock()
	listeners := make([]ConsistentListener, len(h.consistent))
	copy(listeners, h.consistent)
	h.mu.RUnlock()

	for _, l := range listeners {
		l(events)
	}
}

// NotifyEventuallyConsistent advances the dispatcher's pending target to
// ref (if greater) and wakes it if idle.
func (h *Hub) NotifyEventuallyConsistent(ref dcbcore.EventReference) {
	h.dispatcher.advance(ref)
}

// NotifyBookmark delivers b to every bookmark listener, uncoalesced, one
// call per upsert.
func (h *Hub) NotifyBookmark(b dcbcore.Bookmark) {
	h.mu.RLock()
	listeners := make([]BookmarkListener, len(h.bookmarkListeners))
	copy(listeners, h.bookmarkListeners)
	h.mu.RUnlock()

	for _, l := range listeners {
		go l(b)
	}
}

// Close stops the hub's dispatcher goroutine. Safe to call once.
func (h *Hub) Close() { h.dispatcher.close() }
