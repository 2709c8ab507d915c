package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
)

// Append implements the protocol of spec §4.2.1: acquire the commit token,
// evaluate the DCB check against the log as of that acquisition, assign
// positions, install the rows, and return the fully-populated events. The
// advisory lock is taken as the first statement of the transaction and
// held until commit, so the check-then-insert sequence below is atomic
// with respect to every other append — grounded on the teacher's
// SERIALIZABLE-isolation BeginTx pattern (append.go), generalized to use
// an explicit advisory lock rather than relying on the isolation level
// alone to surface conflicts as serialization failures.
func (e *Engine) Append(ctx context.Context, criteria dcbcore.AppendCriteria, events []dcbcore.NewEvent) ([]dcbcore.StoredEvent, error) {
	if len(events) == 0 {
		return nil, dcberr.NewValidation("append", "events", "empty", fmt.Errorf("event list must not be empty"))
	}
	if len(events) > e.config.MaxBatchSize {
		return nil, dcberr.NewValidation("append", "events", fmt.Sprintf("count:%d", len(events)),
			fmt.Errorf("batch size %d exceeds maximum of %d", len(events), e.config.MaxBatchSize))
	}
	for i, ev := range events {
		if ev.Type == "" {
			return nil, dcberr.NewValidation("append", "type", "empty", fmt.Errorf("event at index %d has empty type", i))
		}
		if ev.Stream.IsWildcard() {
			return nil, dcberr.NewValidation("append", "stream", ev.Stream.String(),
				fmt.Errorf("event at index %d targets a wildcard stream id, which is read-only", i))
		}
	}

	appendCtx, cancel := withTimeout(ctx, e.config.AppendTimeoutMs)
	defer cancel()

	tx, err := e.pool.BeginTx(appendCtx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(e.config.DefaultAppendIsolation)})
	if err != nil {
		return nil, dcberr.NewResource("append", "database", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(appendCtx)

	// Step 1: acquire the commit token. A single, fixed advisory-lock key
	// per engine namespace serializes every append against every other —
	// the simplest correct implementation the spec allows.
	if _, err := tx.Exec(appendCtx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(e.config.AdvisoryLockNamespace)); err != nil {
		return nil, dcberr.NewResource("append", "database", fmt.Errorf("acquire commit token: %w", err))
	}

	// Step 2: evaluate the DCB check against the log as it stands now that
	// the token is held.
	actual, err := lastMatching(appendCtx, tx, criteria.Query())
	if err != nil {
		return nil, err
	}
	if !criteria.Satisfied(actual) {
		return nil, dcberr.NewConcurrency("append", criteria.Query(), refToErr(criteria.ExpectedLastReference()), refToErr(actual))
	}

	// Step 3+4: assign ids/positions, install rows.
	stored, err := insertBatch(appendCtx, tx, events)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(appendCtx); err != nil {
		return nil, dcberr.NewResource("append", "database", fmt.Errorf("commit: %w", err))
	}

	e.LogPoolHealth("append")
	return stored, nil
}

func refToErr(r *dcbcore.EventReference) *dcberr.Reference {
	if r == nil {
		return nil
	}
	return &dcberr.Reference{ID: r.ID.String(), Position: r.Position}
}

// lastMatching returns the reference of the highest-position event
// matching query, or nil if none match. Query.Until is honored as an
// inclusive upper bound, pushed into the WHERE clause alongside the rest
// of the predicate.
func lastMatching(ctx context.Context, tx pgx.Tx, query dcbcore.EventQuery) (*dcbcore.EventReference, error) {
	if query.IsMatchNone() {
		return nil, nil
	}

	sql, args, err := buildQuerySQL(query, nil, nil, dcbcore.NoLimit(), dcbcore.Forward, true)
	if err != nil {
		return nil, dcberr.NewValidation("append", "query", "invalid", err)
	}

	var id string
	var position int64
	row := tx.QueryRow(ctx, sql, args...)
	if scanErr := row.Scan(&id, &position); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, dcberr.NewResource("append", "database", fmt.Errorf("dcb check query: %w", scanErr))
	}
	parsed, err := dcbcore.ParseEventId(id)
	if err != nil {
		return nil, dcberr.NewResource("append", "database", fmt.Errorf("parse id in dcb check: %w", err))
	}
	return &dcbcore.EventReference{ID: parsed, Position: uint64(position)}, nil
}

func insertBatch(ctx context.Context, tx pgx.Tx, events []dcbcore.NewEvent) ([]dcbcore.StoredEvent, error) {
	batch := &pgx.Batch{}
	ids := make([]dcbcore.EventId, len(events))
	for i, ev := range events {
		id := dcbcore.NewEventId()
		ids[i] = id
		context, _ := ev.Stream.Context()
		purpose, _ := ev.Stream.Purpose()
		batch.Queue(`
			INSERT INTO events (id, stream_context, stream_purpose, type, tags, immutable_data, erasable_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING position, occurred_at
		`, id.String(), context, purpose, string(ev.Type), ev.Tags.ToArray(), ev.ImmutableData, nullableJSON(ev.ErasableData))
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	stored := make([]dcbcore.StoredEvent, len(events))
	for i, ev := range events {
		var position int64
		var occurredAt time.Time
		row := results.QueryRow()
		if err := row.Scan(&position, &occurredAt); err != nil {
			return nil, dcberr.NewResource("append", "database", fmt.Errorf("insert event at index %d: %w", i, err))
		}
		stored[i] = dcbcore.StoredEvent{
			Stream:        ev.Stream,
			Type:          ev.Type,
			Reference:     dcbcore.EventReference{ID: ids[i], Position: uint64(position)},
			ImmutableData: ev.ImmutableData,
			ErasableData:  ev.ErasableData,
			Tags:          ev.Tags,
			Timestamp:     occurredAt,
		}
	}
	return stored, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
