package archive

import (
	"context"

	"extrato/internal/core"
)

// Ports for the persistence adapter. The coordinator owns the
// transaction boundary; everything between Begin and Commit either all
// takes effect or none of it does.
type (
	Store interface {
		// StatementExists reports whether a statement is already
		// persisted for the period. Used for the idempotency check
		// before any transaction is opened.
		StatementExists(ctx context.Context, p core.Period) (bool, error)

		// Begin opens the single atomic unit covering query, snapshot
		// write and live-record deletion.
		Begin(ctx context.Context) (Tx, error)

		// AppendRunLedger records an archival attempt. Always called
		// outside the run transaction so failed runs are still
		// durably audited.
		AppendRunLedger(ctx context.Context, e core.RunLedgerEntry) error
	}

	Tx interface {
		// QueryPeriod fetches all live records dated inside the
		// period. Empty results for any kind are valid.
		QueryPeriod(ctx context.Context, p core.Period) (core.RecordSet, error)

		// WriteStatement persists the snapshot. With overwrite set, a
		// prior statement for the same period is replaced in place,
		// preserving a pre-overwrite copy for recovery; without it, a
		// duplicate period is an error.
		WriteStatement(ctx context.Context, st core.MonthlyStatement, overwrite bool) error

		// DeleteRecords removes live records of one kind by id.
		DeleteRecords(ctx context.Context, kind core.RecordKind, ids []int64) error

		Commit() error
		Rollback() error
	}

	// Verifier gates destructive work on a verified backup. False
	// means the backup artifact is missing or invalid; reasons are
	// logged, never returned.
	Verifier interface {
		Verify(ctx context.Context, p core.Period) bool
	}
)
