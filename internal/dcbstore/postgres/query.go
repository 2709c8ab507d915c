package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
	"github.com/dcbkit/eventstore/internal/dcbstore"
)

// Query streams matching events over a buffered channel, grounded on the
// teacher's channel-based QueryStream (postgres/channel_streaming.go):
// a goroutine owns the rows cursor and selects on ctx.Done() to give the
// caller backpressure-respecting cancellation.
func (e *Engine) Query(ctx context.Context, query dcbcore.EventQuery, stream *dcbcore.EventStreamId, from *dcbcore.EventReference, limit dcbcore.Limit, direction dcbcore.Direction) (<-chan dcbstore.QueryResult, error) {
	effectiveLimit := limit
	if e.config.MaxQueryResults > 0 {
		if n, ok := limit.Value(); !ok || n > uint64(e.config.MaxQueryResults) {
			// Probe one past the cap: if a query with no caller limit (or a
			// caller limit above the cap) would return more than the cap
			// without being fully consumed, that's TooManyEventsError, not
			// a silent truncation.
			effectiveLimit = dcbcore.NewLimit(uint64(e.config.MaxQueryResults) + 1)
		}
	}

	sql, args, err := buildQuerySQL(query, stream, from, effectiveLimit, direction, false)
	if err != nil {
		return nil, dcberr.NewValidation("query", "query", "invalid", err)
	}

	queryCtx, cancel := withTimeout(ctx, e.config.QueryTimeoutMs)
	rows, err := e.pool.Query(queryCtx, sql, args...)
	if err != nil {
		cancel()
		return nil, dcberr.NewResource("query", "database", fmt.Errorf("execute query: %w", err))
	}

	out := make(chan dcbstore.QueryResult, e.config.StreamBuffer)
	go func() {
		defer cancel()
		defer close(out)
		defer rows.Close()

		count := 0
		for rows.Next() {
			if e.config.MaxQueryResults > 0 && count >= e.config.MaxQueryResults {
				select {
				case out <- dcbstore.QueryResult{Err: dcberr.NewTooManyEvents("query", e.config.MaxQueryResults)}:
				case <-ctx.Done():
				}
				return
			}
			var r rowEvent
			if scanErr := rows.Scan(&r.ID, &r.Position, &r.StreamContext, &r.StreamPurpose, &r.Type, &r.Tags, &r.Immutable, &r.Erasable, &r.OccurredAt); scanErr != nil {
				select {
				case out <- dcbstore.QueryResult{Err: dcberr.NewResource("query", "database", scanErr)}:
				case <-ctx.Done():
				}
				return
			}
			stored, convErr := r.toStoredEvent()
			if convErr != nil {
				select {
				case out <- dcbstore.QueryResult{Err: dcberr.NewResource("query", "database", convErr)}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- dcbstore.QueryResult{Event: stored}:
			case <-ctx.Done():
				return
			}
			count++
		}
		if err := rows.Err(); err != nil {
			select {
			case out <- dcbstore.QueryResult{Err: dcberr.NewResource("query", "database", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// GetEventByID performs a point lookup with no stream filtering.
func (e *Engine) GetEventByID(ctx context.Context, id dcbcore.EventId) (*dcbcore.StoredEvent, error) {
	queryCtx, cancel := withTimeout(ctx, e.config.QueryTimeoutMs)
	defer cancel()

	var r rowEvent
	row := e.pool.QueryRow(queryCtx, `
		SELECT id, position, stream_context, stream_purpose, type, tags, immutable_data, erasable_data, occurred_at
		FROM events WHERE id = $1
	`, id.String())
	if err := row.Scan(&r.ID, &r.Position, &r.StreamContext, &r.StreamPurpose, &r.Type, &r.Tags, &r.Immutable, &r.Erasable, &r.OccurredAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, dcberr.NewResource("getEventById", "database", err)
	}
	stored, err := r.toStoredEvent()
	if err != nil {
		return nil, dcberr.NewResource("getEventById", "database", err)
	}
	return &stored, nil
}
