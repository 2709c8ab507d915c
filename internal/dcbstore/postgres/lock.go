package postgres

import (
	"context"
	"fmt"

	"github.com/dcbkit/eventstore/internal/dcbcore"
)

// AppendWithTagLocks is an opt-in, finer-grained alternative to the single
// global commit token: it additionally takes a per-tag advisory lock for
// each of lockTags before running the same DCB-check-then-insert protocol
// as Append. Grounded on the teacher's z_advisory_locks_test.go, which
// demonstrates `lock:<key>:<value>`-tagged per-entity locking as a
// throughput optimization for disjoint-tag workloads — it is never a
// substitute for the global commit token, which is still acquired in the
// same transaction right after the per-tag locks; the per-tag locks are
// only an additional serialization point taken ahead of it.
func (e *Engine) AppendWithTagLocks(ctx context.Context, criteria dcbcore.AppendCriteria, events []dcbcore.NewEvent, lockTags dcbcore.Tags) ([]dcbcore.StoredEvent, error) {
	appendCtx, cancel := withTimeout(ctx, e.config.AppendTimeoutMs)
	defer cancel()

	tx, err := e.pool.Begin(appendCtx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(appendCtx)

	for _, tag := range lockTags.Slice() {
		if _, err := tx.Exec(appendCtx, "SELECT pg_advisory_xact_lock(hashtext($1))", "lock:"+tag.String()); err != nil {
			return nil, fmt.Errorf("acquire per-tag lock for %q: %w", tag.String(), err)
		}
	}

	if _, err := tx.Exec(appendCtx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(e.config.AdvisoryLockNamespace)); err != nil {
		return nil, fmt.Errorf("acquire commit token: %w", err)
	}

	actual, err := lastMatching(appendCtx, tx, criteria.Query())
	if err != nil {
		return nil, err
	}
	if !criteria.Satisfied(actual) {
		return nil, fmt.Errorf("append condition violated: expected %v, actual %v", criteria.ExpectedLastReference(), actual)
	}

	stored, err := insertBatch(appendCtx, tx, events)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(appendCtx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}
