package dcbprojector

import (
	"context"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcbfacade"
)

// StateQuery pairs a named in-memory fold with the query that feeds it: a
// lightweight companion to the full batch Projector, for command-handler
// call sites that want to read a decision model and re-derive an
// AppendCriteria in one shot rather than drive a resumable runtime.
// Grounded on the teacher's StateProjector/BatchProjector
// (decision_model.go), generalized to use the facade's decoded events
// instead of the teacher's raw Event.
type StateQuery struct {
	Query        dcbcore.EventQuery
	InitialState any
	Transition   func(state any, event dcbfacade.DecodedEvent) any
}

// DecisionModel is the result of BuildDecisionModel: one projected state
// per named StateQuery, plus a combined AppendCriteria suitable for the
// write that the decision model informs.
type DecisionModel struct {
	States          map[string]any
	AppendCriteria  dcbcore.AppendCriteria
}

// BuildDecisionModel projects every named query against facade and
// combines their queries into a single AppendCriteria: the append this
// decision informs is only valid if none of the combined queries gained a
// new match since the last reference observed here. Grounded on the
// teacher's BuildDecisionModel, which does the equivalent with
// ProjectBatch + CombineProjectorQueries.
func BuildDecisionModel(ctx context.Context, facade *dcbfacade.Facade, queries map[string]StateQuery) (*DecisionModel, error) {
	states := make(map[string]any, len(queries))
	var lastRef *dcbcore.EventReference
	var toCombine []dcbcore.EventQuery

	for name, sq := range queries {
		state := sq.InitialState
		events, err := facade.Query(ctx, sq.Query, nil, dcbcore.NoLimit())
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			state = sq.Transition(state, ev)
			ref := ev.Reference
			if lastRef == nil || ref.HappenedAfter(*lastRef) {
				lastRef = &ref
			}
		}
		states[name] = state
		toCombine = append(toCombine, sq.Query)
	}

	combined, err := CombineQueries(toCombine...)
	if err != nil {
		return nil, err
	}

	return &DecisionModel{
		States:         states,
		AppendCriteria: dcbcore.NewAppendCriteria(combined, lastRef),
	}, nil
}
