package postgres

// bootstrapSQL creates the events and bookmarks tables and the supporting
// indexes this engine depends on. Column names and types follow the shape
// the teacher's db_validation.go asserts against (type varchar, tags
// text[], data json, position bigint, occurred_at timestamptz) — no .sql
// schema file was available to copy, so this is synthesized from those
// column-level expectations plus the query shapes in append.go/projection.go.
const bootstrapSQL = `
CREATE TABLE IF NOT EXISTS events (
	id             uuid PRIMARY KEY,
	position       bigserial NOT NULL,
	stream_context text NOT NULL DEFAULT '',
	stream_purpose text NOT NULL DEFAULT '',
	type           varchar(255) NOT NULL,
	tags           text[] NOT NULL DEFAULT '{}',
	immutable_data json NOT NULL,
	erasable_data  json,
	occurred_at    timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS events_position_idx ON events (position);
CREATE INDEX IF NOT EXISTS events_tags_gin_idx ON events USING gin (tags);
CREATE INDEX IF NOT EXISTS events_type_idx ON events (type);
CREATE INDEX IF NOT EXISTS events_stream_idx ON events (stream_context, stream_purpose);

CREATE TABLE IF NOT EXISTS bookmarks (
	reader     text PRIMARY KEY,
	event_id   uuid NOT NULL,
	position   bigint NOT NULL,
	tags       text[] NOT NULL DEFAULT '{}',
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// New executes bootstrapSQL on every construction. Each statement uses IF
// NOT EXISTS, so running it repeatedly never drops or mutates existing rows.
