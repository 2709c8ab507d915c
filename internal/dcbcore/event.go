package dcbcore

import "time"

// Direction selects whether a query scans positions ascending or
// descending.
type Direction int

const (
	// Forward yields positions in ascending order.
	Forward Direction = iota
	// Backward yields positions in descending order.
	Backward
)

// NewEvent is the input shape for a single event handed to an append call,
// before the engine has assigned it a reference.
type NewEvent struct {
	Stream        EventStreamId
	Type          EventType
	ImmutableData []byte
	ErasableData  []byte // nil means absent, distinct from an empty-but-present blob
	Tags          Tags
}

// StoredEvent is an immutable, persisted event. ErasableData is nil once an
// administrative erasure has cleared it; the engine remains correct with it
// missing.
type StoredEvent struct {
	Stream        EventStreamId
	Type          EventType
	Reference     EventReference
	ImmutableData []byte
	ErasableData  []byte
	Tags          Tags
	Timestamp     time.Time
}

// HasErasableData reports whether erasable data is still present.
func (e StoredEvent) HasErasableData() bool { return e.ErasableData != nil }

// Bookmark records how far a named reader has processed the log.
type Bookmark struct {
	Reader    string
	Reference EventReference
	Tags      Tags
	UpdatedAt time.Time
}
