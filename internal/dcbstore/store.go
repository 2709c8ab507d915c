// Package dcbstore defines the storage engine contract: append with DCB
// optimistic locking, tag-indexed query in either direction, point lookup
// by id, and the reader bookmark table. internal/dcbstore/postgres
// provides the pgx-backed implementation.
package dcbstore

import (
	"context"

	"github.com/dcbkit/eventstore/internal/dcbcore"
)

// Engine is the storage engine's public contract. Implementations must
// satisfy the ordering, atomicity, and DCB-correctness invariants described
// alongside each method.
type Engine interface {
	// Append atomically validates criteria against the log and, if
	// satisfied, assigns each event a fresh id and the next contiguous
	// positions, stamps a timestamp, and installs the rows. Returns the
	// fully-populated StoredEvents in append order.
	Append(ctx context.Context, criteria dcbcore.AppendCriteria, events []dcbcore.NewEvent) ([]dcbcore.StoredEvent, error)

	// Query returns events matching query (already legacy-expanded by the
	// caller), optionally filtered by stream, after the from position
	// (exclusive; nil means the extreme of the log in the scan direction),
	// up to limit, in direction order.
	Query(ctx context.Context, query dcbcore.EventQuery, stream *dcbcore.EventStreamId, from *dcbcore.EventReference, limit dcbcore.Limit, direction dcbcore.Direction) (<-chan QueryResult, error)

	// GetEventByID performs a point lookup. No stream filtering is applied
	// at this level.
	GetEventByID(ctx context.Context, id dcbcore.EventId) (*dcbcore.StoredEvent, error)

	// GetBookmark returns a reader's recorded position, or nil if absent.
	GetBookmark(ctx context.Context, reader string) (*dcbcore.Bookmark, error)

	// PlaceBookmark upserts a reader's bookmark and returns the stored row
	// (with UpdatedAt populated by the engine).
	PlaceBookmark(ctx context.Context, reader string, ref dcbcore.EventReference, tags dcbcore.Tags) (dcbcore.Bookmark, error)

	// Close releases engine resources (e.g. the connection pool).
	Close()
}

// QueryResult is one item of a Query stream: either a decoded event or a
// terminal error, after which the channel is closed.
type QueryResult struct {
	Event dcbcore.StoredEvent
	Err   error
}

// Config holds the engine-wide tunables carried over from the teacher's
// EventStoreConfig, extended with the result-size cap and advisory-lock
// namespace this spec's storage engine adds.
type Config struct {
	MaxBatchSize           int
	StreamBuffer           int
	DefaultAppendIsolation IsolationLevel
	QueryTimeoutMs         int
	AppendTimeoutMs        int
	// MaxQueryResults bounds the size of an unconsumed result set; 0 means
	// unlimited. Resolves the "hard cap" Open Question.
	MaxQueryResults int
	// AdvisoryLockNamespace salts the commit-token advisory lock key so
	// multiple event stores can share a Postgres cluster without
	// colliding.
	AdvisoryLockNamespace string
}

// DefaultConfig mirrors the teacher's defaults (1000-event batches, a
// buffered stream channel, serializable isolation) plus this spec's
// unlimited-by-default result cap.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:           1000,
		StreamBuffer:           100,
		DefaultAppendIsolation: IsolationLevelSerializable,
		QueryTimeoutMs:         5000,
		AppendTimeoutMs:        5000,
		MaxQueryResults:        0,
		AdvisoryLockNamespace:  "dcbkit",
	}
}

// IsolationLevel mirrors the teacher's enum of transaction isolation
// levels, kept independent of any specific driver's type.
type IsolationLevel int

const (
	IsolationLevelReadCommitted IsolationLevel = iota
	IsolationLevelRepeatableRead
	IsolationLevelSerializable
)
