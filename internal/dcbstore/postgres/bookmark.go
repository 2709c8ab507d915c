package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
)

// GetBookmark returns reader's recorded position, or nil if the reader has
// never written one.
func (e *Engine) GetBookmark(ctx context.Context, reader string) (*dcbcore.Bookmark, error) {
	queryCtx, cancel := withTimeout(ctx, e.config.QueryTimeoutMs)
	defer cancel()

	var id string
	var position int64
	var tags []string
	var bm dcbcore.Bookmark
	row := e.pool.QueryRow(queryCtx, `SELECT event_id, position, tags, updated_at FROM bookmarks WHERE reader = $1`, reader)
	if err := row.Scan(&id, &position, &tags, &bm.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, dcberr.NewResource("getBookmark", "database", err)
	}
	parsed, err := dcbcore.ParseEventId(id)
	if err != nil {
		return nil, dcberr.NewResource("getBookmark", "database", err)
	}
	bm.Reader = reader
	bm.Reference = dcbcore.EventReference{ID: parsed, Position: uint64(position)}
	bm.Tags = dcbcore.TagsFromArray(tags)
	return &bm, nil
}

// PlaceBookmark upserts reader's bookmark row. Bookmark notification
// dispatch (every upsert fires one, per spec §4.4) is the caller's
// responsibility (dcbfacade), since it crosses into the notification
// fabric, which this engine does not own.
func (e *Engine) PlaceBookmark(ctx context.Context, reader string, ref dcbcore.EventReference, tags dcbcore.Tags) (dcbcore.Bookmark, error) {
	queryCtx, cancel := withTimeout(ctx, e.config.AppendTimeoutMs)
	defer cancel()

	var updatedAt = dcbcore.Bookmark{}.UpdatedAt
	row := e.pool.QueryRow(queryCtx, `
		INSERT INTO bookmarks (reader, event_id, position, tags, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (reader) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			position = EXCLUDED.position,
			tags = EXCLUDED.tags,
			updated_at = now()
		RETURNING updated_at
	`, reader, ref.ID.String(), int64(ref.Position), tags.ToArray())
	if err := row.Scan(&updatedAt); err != nil {
		return dcbcore.Bookmark{}, dcberr.NewResource("placeBookmark", "database", err)
	}

	return dcbcore.Bookmark{Reader: reader, Reference: ref, Tags: tags, UpdatedAt: updatedAt}, nil
}
