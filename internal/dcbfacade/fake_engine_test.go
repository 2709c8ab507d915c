package dcbfacade

import (
	"context"
	"sync"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcbstore"
)

// fakeEngine is an in-memory dcbstore.Engine used to exercise the facade
// without a running Postgres instance. It implements the same
// check-then-append ordering as the real engine but with a plain mutex
// instead of an advisory lock.
type fakeEngine struct {
	mu        sync.Mutex
	events    []dcbcore.StoredEvent
	bookmarks map[string]dcbcore.Bookmark
	nextPos   uint64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{bookmarks: make(map[string]dcbcore.Bookmark)}
}

func (e *fakeEngine) Append(ctx context.Context, criteria dcbcore.AppendCriteria, events []dcbcore.NewEvent) ([]dcbcore.StoredEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var actual *dcbcore.EventReference
	for i := len(e.events) - 1; i >= 0; i-- {
		ev := e.events[i]
		if criteria.Query().Matches(ev.Type, ev.Tags, ev.Reference) {
			ref := ev.Reference
			actual = &ref
			break
		}
	}
	if !criteria.Satisfied(actual) {
		return nil, dcbcoreConcurrencyErr{}
	}

	stored := make([]dcbcore.StoredEvent, len(events))
	for i, ev := range events {
		e.nextPos++
		stored[i] = dcbcore.StoredEvent{
			Stream:        ev.Stream,
			Type:          ev.Type,
			Reference:     dcbcore.EventReference{ID: dcbcore.NewEventId(), Position: e.nextPos},
			ImmutableData: ev.ImmutableData,
			ErasableData:  ev.ErasableData,
			Tags:          ev.Tags,
		}
		e.events = append(e.events, stored[i])
	}
	return stored, nil
}

func (e *fakeEngine) Query(ctx context.Context, query dcbcore.EventQuery, stream *dcbcore.EventStreamId, from *dcbcore.EventReference, limit dcbcore.Limit, direction dcbcore.Direction) (<-chan dcbstore.QueryResult, error) {
	e.mu.Lock()
	var matched []dcbcore.StoredEvent
	for _, ev := range e.events {
		if stream != nil && !stream.CanRead(ev.Stream) {
			continue
		}
		if from != nil {
			if direction == dcbcore.Forward && ev.Reference.Position <= from.Position {
				continue
			}
			if direction == dcbcore.Backward && ev.Reference.Position >= from.Position {
				continue
			}
		}
		if !query.Matches(ev.Type, ev.Tags, ev.Reference) {
			continue
		}
		matched = append(matched, ev)
	}
	e.mu.Unlock()

	if direction == dcbcore.Backward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if n, ok := limit.Value(); ok && uint64(len(matched)) > n {
		matched = matched[:n]
	}

	out := make(chan dcbstore.QueryResult, len(matched))
	for _, ev := range matched {
		out <- dcbstore.QueryResult{Event: ev}
	}
	close(out)
	return out, nil
}

func (e *fakeEngine) GetEventByID(ctx context.Context, id dcbcore.EventId) (*dcbcore.StoredEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.Reference.ID.Equal(id) {
			cp := ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (e *fakeEngine) GetBookmark(ctx context.Context, reader string) (*dcbcore.Bookmark, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bm, ok := e.bookmarks[reader]; ok {
		cp := bm
		return &cp, nil
	}
	return nil, nil
}

func (e *fakeEngine) PlaceBookmark(ctx context.Context, reader string, ref dcbcore.EventReference, tags dcbcore.Tags) (dcbcore.Bookmark, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bm := dcbcore.Bookmark{Reader: reader, Reference: ref, Tags: tags}
	e.bookmarks[reader] = bm
	return bm, nil
}

func (e *fakeEngine) Close() {}

type dcbcoreConcurrencyErr struct{}

func (dcbcoreConcurrencyErr) Error() string { return "concurrency violation" }

var _ dcbstore.Engine = (*fakeEngine)(nil)
