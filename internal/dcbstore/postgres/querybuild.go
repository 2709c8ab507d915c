package postgres

import (
	"fmt"
	"strings"

	"github.com/dcbkit/eventstore/internal/dcbcore"
)

// buildQuerySQL renders query (plus the optional stream filter, positional
// window, limit and direction) into a parameterized SQL statement, mirroring
// the teacher's projection.go/store.go dynamic WHERE-clause construction:
// one OR-group per query item, each item itself an AND of a type-IN clause
// and a tags @> containment clause.
//
// When lastOnly is true, the statement selects only id/position of the
// single highest-position match (used by the DCB check); otherwise it
// selects the full row set ordered and limited per direction/limit.
func buildQuerySQL(query dcbcore.EventQuery, stream *dcbcore.EventStreamId, from *dcbcore.EventReference, limit dcbcore.Limit, direction dcbcore.Direction, lastOnly bool) (string, []any, error) {
	var b strings.Builder
	var args []any
	argIdx := 1
	next := func(v any) string {
		args = append(args, v)
		s := fmt.Sprintf("$%d", argIdx)
		argIdx++
		return s
	}

	if lastOnly {
		b.WriteString("SELECT id, position FROM events")
	} else {
		b.WriteString("SELECT id, position, stream_context, stream_purpose, type, tags, immutable_data, erasable_data, occurred_at FROM events")
	}

	var where []string

	// Each axis is filtered independently: a context-only stream id (purpose
	// wildcard) must still constrain stream_context, and vice versa. Gating
	// this block on IsWildcard() (true when *either* axis is absent) would
	// skip the one axis that is actually specified.
	if stream != nil {
		if ctx, ok := stream.Context(); ok {
			where = append(where, "stream_context = "+next(ctx))
		}
		if purpose, ok := stream.Purpose(); ok {
			where = append(where, "stream_purpose = "+next(purpose))
		}
	}

	items, hasItems := query.Items()
	if hasItems {
		if len(items) == 0 {
			// match-none: no row can ever satisfy this.
			where = append(where, "FALSE")
		} else {
			var orGroups []string
			for _, item := range items {
				var and []string
				if types := item.EventTypes().Types(); len(types) > 0 {
					placeholders := make([]string, len(types))
					for i, t := range types {
						placeholders[i] = next(string(t))
					}
					and = append(and, "type IN ("+strings.Join(placeholders, ", ")+")")
				}
				if tags := item.Tags().ToArray(); len(tags) > 0 {
					and = append(and, "tags @> "+next(tags)+"::text[]")
				}
				if len(and) == 0 {
					and = append(and, "TRUE")
				}
				orGroups = append(orGroups, "("+strings.Join(and, " AND ")+")")
			}
			where = append(where, "("+strings.Join(orGroups, " OR ")+")")
		}
	}

	if until := query.Until(); until != nil {
		where = append(where, "position <= "+next(int64(until.Position)))
	}

	if from != nil {
		if direction == dcbcore.Backward && !lastOnly {
			where = append(where, "position < "+next(int64(from.Position)))
		} else {
			where = append(where, "position > "+next(int64(from.Position)))
		}
	}

	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if lastOnly {
		b.WriteString(" ORDER BY position DESC LIMIT 1")
		return b.String(), args, nil
	}

	if direction == dcbcore.Backward {
		b.WriteString(" ORDER BY position DESC")
	} else {
		b.WriteString(" ORDER BY position ASC")
	}

	if n, ok := limit.Value(); ok {
		b.WriteString(" LIMIT " + next(int64(n)))
	}

	return b.String(), args, nil
}
