// Package dcbfacade implements the per-EventStreamId view onto storage and
// codec (spec §4.5): query/queryBackwards with legacy-type expansion,
// write gating against wildcard stream ids, subscription routing over a
// dcbnotify.Hub, and bookmark delegation. Net new relative to the
// teacher — go-crablet's EventStore is called directly by application
// code with no per-stream wrapper — built in the teacher's
// constructor-returns-a-struct idiom (event_store.go's NewEventStore).
package dcbfacade

import (
	"context"
	"fmt"

	"github.com/dcbkit/eventstore/internal/dcbcodec"
	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
	"github.com/dcbkit/eventstore/internal/dcbnotify"
	"github.com/dcbkit/eventstore/internal/dcbstore"
)

// Facade is a lightweight, side-effect-free-to-construct view over one
// EventStreamId.
type Facade struct {
	stream dcbcore.EventStreamId
	store  dcbstore.Engine
	codec  dcbcodec.Codec
	hub    *dcbnotify.Hub
}

// New builds a facade for the given stream id. Construction never touches
// storage; it only wires together the already-open engine, codec, and a
// fresh notification hub.
func New(stream dcbcore.EventStreamId, store dcbstore.Engine, codec dcbcodec.Codec) *Facade {
	return &Facade{stream: stream, store: store, codec: codec, hub: dcbnotify.NewHub()}
}

// Stream returns the facade's stream id.
func (f *Facade) Stream() dcbcore.EventStreamId { return f.stream }

// Close releases the facade's notification dispatcher. It does not close
// the underlying storage engine, which may be shared by other facades.
func (f *Facade) Close() { f.hub.Close() }

// DecodedEvent pairs a StoredEvent's metadata with its decoded domain
// payload.
type DecodedEvent struct {
	Stream    dcbcore.EventStreamId
	Type      string
	Reference dcbcore.EventReference
	Payload   any
	Tags      dcbcore.Tags
}

func (f *Facade) expand(query dcbcore.EventQuery) dcbcore.EventQuery {
	items, hasItems := query.Items()
	if !hasItems {
		return query
	}
	expandedItems := make([]dcbcore.EventQueryItem, len(items))
	for i, item := range items {
		types := item.EventTypes().Types()
		names := make([]string, len(types))
		for j, t := range types {
			names[j] = string(t)
		}
		expandedNames := f.codec.ExpandTypeFilter(names)
		expandedTypes := make([]dcbcore.EventType, len(expandedNames))
		for j, n := range expandedNames {
			expandedTypes[j] = dcbcore.EventType(n)
		}
		expandedItems[i] = dcbcore.NewEventQueryItem(dcbcore.NewEventTypesFilter(expandedTypes...), item.Tags())
	}
	expanded := dcbcore.NewEventQuery(expandedItems...)
	if u := query.Until(); u != nil {
		expanded = expanded.WithUntil(*u)
	}
	return expanded
}

func (f *Facade) decode(stored dcbcore.StoredEvent) (DecodedEvent, error) {
	payload, err := f.codec.Deserialize(string(stored.Type), stored.ImmutableData, stored.ErasableData)
	if err != nil {
		return DecodedEvent{}, fmt.Errorf("dcbfacade: decode event %s: %w", stored.Reference.ID, err)
	}
	return DecodedEvent{
		Stream:    stored.Stream,
		Type:      string(stored.Type),
		Reference: stored.Reference,
		Payload:   payload,
		Tags:      stored.Tags,
	}, nil
}

// Query runs query forward, filtered to events this facade can read.
func (f *Facade) Query(ctx context.Context, query dcbcore.EventQuery, from *dcbcore.EventReference, limit dcbcore.Limit) ([]DecodedEvent, error) {
	return f.runQuery(ctx, query, from, limit, dcbcore.Forward)
}

// QueryBackwards runs query in descending position order.
func (f *Facade) QueryBackwards(ctx context.Context, query dcbcore.EventQuery, from *dcbcore.EventReference, limit dcbcore.Limit) ([]DecodedEvent, error) {
	return f.runQuery(ctx, query, from, limit, dcbcore.Backward)
}

func (f *Facade) runQuery(ctx context.Context, query dcbcore.EventQuery, from *dcbcore.EventReference, limit dcbcore.Limit, direction dcbcore.Direction) ([]DecodedEvent, error) {
	results, err := f.store.Query(ctx, f.expand(query), &f.stream, from, limit, direction)
	if err != nil {
		return nil, err
	}
	var out []DecodedEvent
	for r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		decoded, err := f.decode(r.Event)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

// Append encodes and appends events to storage, rejecting wildcard stream
// targets before storage is ever touched, then fires consistent
// notifications before returning.
func (f *Facade) Append(ctx context.Context, criteria dcbcore.AppendCriteria, domainEvents []any, tagsPerEvent []dcbcore.Tags) ([]DecodedEvent, error) {
	if f.stream.IsWildcard() {
		return nil, dcberr.NewValidation("append", "stream", f.stream.String(),
			fmt.Errorf("facade for wildcard stream id %q is read-only", f.stream.String()))
	}
	if len(domainEvents) != len(tagsPerEvent) {
		return nil, dcberr.NewValidation("append", "events", "mismatched", fmt.Errorf("domainEvents and tagsPerEvent must be the same length"))
	}

	newEvents := make([]dcbcore.NewEvent, len(domainEvents))
	for i, obj := range domainEvents {
		eventType, immutable, erasable, err := f.codec.Serialize(obj)
		if err != nil {
			return nil, fmt.Errorf("dcbfacade: encode event at index %d: %w", i, err)
		}
		newEvents[i] = dcbcore.NewEvent{
			Stream:        f.stream,
			Type:          dcbcore.EventType(eventType),
			ImmutableData: immutable,
			ErasableData:  erasable,
			Tags:          tagsPerEvent[i],
		}
	}

	stored, err := f.store.Append(ctx, criteria, newEvents)
	if err != nil {
		return nil, err
	}

	f.hub.NotifyConsistent(stored)
	if len(stored) > 0 {
		f.hub.NotifyEventuallyConsistent(stored[len(stored)-1].Reference)
	}

	decoded := make([]DecodedEvent, len(stored))
	for i, ev := range stored {
		d, err := f.decode(ev)
		if err != nil {
			return nil, err
		}
		decoded[i] = d
	}
	return decoded, nil
}

// GetEventByID delegates to storage and filters out events this facade
// cannot read.
func (f *Facade) GetEventByID(ctx context.Context, id dcbcore.EventId) (*DecodedEvent, error) {
	stored, err := f.store.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil || !f.stream.CanRead(stored.Stream) {
		return nil, nil
	}
	decoded, err := f.decode(*stored)
	if err != nil {
		return nil, err
	}
	return &decoded, nil
}

// PlaceBookmark delegates to storage and fires an uncoalesced bookmark
// notification.
func (f *Facade) PlaceBookmark(ctx context.Context, reader string, ref dcbcore.EventReference, tags dcbcore.Tags) error {
	bm, err := f.store.PlaceBookmark(ctx, reader, ref, tags)
	if err != nil {
		return err
	}
	f.hub.NotifyBookmark(bm)
	return nil
}

// GetBookmark delegates to storage.
func (f *Facade) GetBookmark(ctx context.Context, reader string) (*dcbcore.Bookmark, error) {
	return f.store.GetBookmark(ctx, reader)
}

// SubscribeConsistent registers a synchronous, in-append-thread listener.
func (f *Facade) SubscribeConsistent(l dcbnotify.ConsistentListener) { f.hub.SubscribeConsistent(l) }

// SubscribeEventuallyConsistent registers a coalesced, async listener.
func (f *Facade) SubscribeEventuallyConsistent(l dcbnotify.EventuallyConsistentListener) {
	f.hub.SubscribeEventuallyConsistent(l)
}

// SubscribeBookmark registers an uncoalesced bookmark listener.
func (f *Facade) SubscribeBookmark(l dcbnotify.BookmarkListener) { f.hub.SubscribeBookmark(l) }
