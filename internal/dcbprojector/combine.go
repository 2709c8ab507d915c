package dcbprojector

import "github.com/dcbkit/eventstore/internal/dcbcore"

// CombineQueries merges several projectors' queries into one OR-of-items
// query suitable for a single combined storage scan, the way the teacher's
// combineProjectorQueries merges BatchProjector.StateProjector.Query items
// ahead of building one SQL statement. Match-all queries are rejected: a
// combined scan only makes sense when every input query names its own
// items.
func CombineQueries(queries ...dcbcore.EventQuery) (dcbcore.EventQuery, error) {
	if len(queries) == 0 {
		return dcbcore.MatchNone(), nil
	}
	combined := queries[0]
	for _, q := range queries[1:] {
		var err error
		combined, err = combined.CombineWith(q)
		if err != nil {
			return dcbcore.EventQuery{}, err
		}
	}
	return combined, nil
}
