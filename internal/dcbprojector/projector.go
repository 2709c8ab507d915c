// Package dcbprojector implements the cursor-driven batch replay of spec
// §4.6: bounded batches, bookmark-driven resumption, before/after/cancel
// hooks, and failure semantics that leave the persistent cursor at the
// last successfully committed batch. Grounded on the teacher's
// StateProjector/batch_projection.go/decision_model.go family — that
// machinery computes a single projected state in one pass; this package
// generalizes it into a standalone, resumable runtime with its own
// lifecycle, since the teacher has no equivalent of a long-lived,
// bookmark-resuming Projector value.
package dcbprojector

import (
	"context"
	"fmt"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcberr"
	"github.com/dcbkit/eventstore/internal/dcbfacade"
)

// BookmarkPolicy controls when a Projector consults its bookmark to
// relocate its cursor.
type BookmarkPolicy int

const (
	// ReadOnManualTriggerOnly never auto-reads the bookmark; the caller
	// must call Projector.ReloadFromBookmark explicitly.
	ReadOnManualTriggerOnly BookmarkPolicy = iota
	// ReadAtCreation reads the bookmark once, when the Projector is
	// constructed.
	ReadAtCreation
	// ReadBeforeFirstExecution reads the bookmark just before the first
	// call to RunBatch or Run.
	ReadBeforeFirstExecution
	// ReadBeforeEachExecution reads the bookmark before every batch.
	ReadBeforeEachExecution
)

// Handler processes one event with its reference, as part of a batch. An
// error aborts the in-progress batch: CancelBatch (if set) is called, the
// persistent cursor is not advanced, and RunBatch surfaces a
// dcberr.ProjectorError naming the failing reference.
type Handler func(ctx context.Context, event dcbfacade.DecodedEvent) error

// Hooks are optional batch-lifecycle callbacks.
type Hooks struct {
	BeforeBatch func(ctx context.Context) error
	AfterBatch  func(ctx context.Context, lastEventReference dcbcore.EventReference) error
	CancelBatch func(ctx context.Context, failedAt dcbcore.EventReference, cause error)
}

// Metrics accumulate across a Projector's lifetime, reset only by
// recreating the Projector.
type Metrics struct {
	QueriesDone       int
	EventsStreamed    int
	EventsHandled     int
	LastEventReference *dcbcore.EventReference
}

// Config configures a Projector.
type Config struct {
	Facade        *dcbfacade.Facade
	Query         dcbcore.EventQuery
	Handler       Handler
	Hooks         Hooks
	BatchSize     int // 0 means unbounded (one query per RunBatch call)
	BookmarkName  string
	Policy        BookmarkPolicy
	StartingAfter *dcbcore.EventReference
}

// Projector is the owned, stateful runtime driving one Config.
type Projector struct {
	cfg     Config
	cursor  *dcbcore.EventReference
	metrics Metrics
	firstRunDone bool
}

// New constructs a Projector. If Policy is ReadAtCreation, the bookmark is
// consulted immediately.
func New(ctx context.Context, cfg Config) (*Projector, error) {
	p := &Projector{cfg: cfg, cursor: cfg.StartingAfter}
	if cfg.Policy == ReadAtCreation {
		if err := p.ReloadFromBookmark(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ReloadFromBookmark replaces the cursor with the named reader's bookmark,
// if one exists; otherwise the cursor is left unchanged.
func (p *Projector) ReloadFromBookmark(ctx context.Context) error {
	if p.cfg.BookmarkName == "" {
		return nil
	}
	bm, err := p.cfg.Facade.GetBookmark(ctx, p.cfg.BookmarkName)
	if err != nil {
		return err
	}
	if bm != nil {
		ref := bm.Reference
		p.cursor = &ref
	}
	return nil
}

// Cursor returns the projector's current persistent cursor.
func (p *Projector) Cursor() *dcbcore.EventReference { return p.cursor }

// Metrics returns a snapshot of the accumulated metrics.
func (p *Projector) Metrics() Metrics { return p.metrics }

// RunBatch executes a single batch: applies bookmark policy, queries events
// after the cursor up to BatchSize (probing one extra to learn whether
// more work remains), invokes the handler per event, and on success
// advances the persistent cursor to the batch's last reference. It returns
// the number of events handled and whether further batches may have work
// (true only when the probe found an event beyond the batch; always false
// when BatchSize is 0).
func (p *Projector) RunBatch(ctx context.Context) (handled int, more bool, err error) {
	if p.cfg.Policy == ReadBeforeEachExecution || (p.cfg.Policy == ReadBeforeFirstExecution && !p.firstRunDone) {
		if err := p.ReloadFromBookmark(ctx); err != nil {
			return 0, false, err
		}
	}
	p.firstRunDone = true

	if p.cfg.Hooks.BeforeBatch != nil {
		if err := p.cfg.Hooks.BeforeBatch(ctx); err != nil {
			return 0, false, fmt.Errorf("dcbprojector: beforeBatch: %w", err)
		}
	}

	fetchLimit := dcbcore.NoLimit()
	probing := p.cfg.BatchSize > 0
	if probing {
		fetchLimit = dcbcore.NewLimit(uint64(p.cfg.BatchSize + 1))
	}

	events, err := p.cfg.Facade.Query(ctx, p.cfg.Query, p.cursor, fetchLimit)
	if err != nil {
		return 0, false, err
	}
	p.metrics.QueriesDone++
	p.metrics.EventsStreamed += len(events)

	more = false
	toProcess := events
	if probing && len(events) > p.cfg.BatchSize {
		toProcess = events[:p.cfg.BatchSize]
		more = true
	}

	if len(toProcess) == 0 {
		return 0, false, nil
	}

	var batchLast dcbcore.EventReference
	for _, ev := range toProcess {
		if err := p.cfg.Handler(ctx, ev); err != nil {
			if p.cfg.Hooks.CancelBatch != nil {
				p.cfg.Hooks.CancelBatch(ctx, ev.Reference, err)
			}
			return 0, false, dcberr.NewProjectorError("runBatch", dcberr.Reference{
				ID:       ev.Reference.ID.String(),
				Position: ev.Reference.Position,
			}, err)
		}
		batchLast = ev.Reference
		handled++
	}

	if p.cfg.Hooks.AfterBatch != nil {
		if err := p.cfg.Hooks.AfterBatch(ctx, batchLast); err != nil {
			return handled, more, fmt.Errorf("dcbprojector: afterBatch: %w", err)
		}
	}

	p.cursor = &batchLast
	p.metrics.EventsHandled += handled
	p.metrics.LastEventReference = &batchLast
	return handled, more, nil
}

// Run iterates RunBatch until a batch streams zero events, or until until
// is reached (inclusive), whichever comes first.
func (p *Projector) Run(ctx context.Context, until *dcbcore.EventReference) error {
	for {
		if until != nil && p.cursor != nil && !p.cursor.HappenedBefore(*until) {
			return nil
		}
		handled, more, err := p.RunBatch(ctx)
		if err != nil {
			return err
		}
		if handled == 0 && !more {
			return nil
		}
	}
}
