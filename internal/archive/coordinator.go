// Package archive implements the monthly archival engine: it moves one
// period's live records into an immutable statement snapshot, deletes
// the originals and audits every attempt, all-or-nothing.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"extrato/internal/batch"
	"extrato/internal/core"
)

// Config carries the tunables of the coordinator.
type Config struct {
	// BatchSize bounds how many records a single aggregation or delete
	// pass holds. Minimum enforced at 1.
	BatchSize int

	// RequireBackup gates every run on a verified backup artifact.
	// Production-safe default is true; disabling skips the verifier.
	RequireBackup bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 100, RequireBackup: true}
}

func (c Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: archive batch size %d", batch.ErrInvalidBatchSize, c.BatchSize)
	}
	return nil
}

// Result is what a single archival attempt resolved to. Err carries the
// rollback cause when Outcome is rolled-back; it is informational, the
// attempt itself is already fully undone.
type Result struct {
	Outcome       core.Outcome
	CorrelationID string
	Counts        core.RecordCounts
	Err           error
}

// Coordinator runs the archival state machine. It holds no state
// between runs; each invocation is parameterized only by period and
// force flag. Safe to call from independent triggers: a per-period
// mutex serializes concurrent runs in-process and the store's unique
// statement constraint rules out a double archive across processes.
type Coordinator struct {
	store    Store
	verifier Verifier
	cfg      Config

	mu      sync.Mutex
	periods map[core.Period]*sync.Mutex

	now func() time.Time
}

func New(store Store, verifier Verifier, cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		store:    store,
		verifier: verifier,
		cfg:      cfg,
		periods:  make(map[core.Period]*sync.Mutex),
		now:      time.Now,
	}, nil
}

// Run archives one period. The returned error is non-nil only for
// configuration problems caught before any store access; every other
// path resolves to one of the four outcomes and is written to the run
// ledger whatever happened.
func (c *Coordinator) Run(ctx context.Context, p core.Period, force bool) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{CorrelationID: uuid.NewString()}
	started := c.now()
	log := slog.With(
		"year", p.Year,
		"month", p.Month,
		"force", force,
		"correlation_id", res.CorrelationID,
	)

	// Step 1: idempotency. An existing statement without force is a
	// successful no-op, not an error.
	exists, err := c.store.StatementExists(ctx, p)
	if err != nil {
		res.Outcome = core.OutcomeRolledBack
		res.Err = fmt.Errorf("statement lookup: %w", err)
		log.ErrorContext(ctx, "Archive run failed before transaction", "error", res.Err)
		c.writeLedger(ctx, p, res, started)
		return res, nil
	}
	if exists && !force {
		res.Outcome = core.OutcomeAlreadyExists
		log.InfoContext(ctx, "Statement already exists, nothing to do")
		c.writeLedger(ctx, p, res, started)
		return res, nil
	}

	// Step 2: backup precondition. Checked before the transaction is
	// opened; a destructive run never starts without a verified backup.
	if c.cfg.RequireBackup {
		if c.verifier == nil || !c.verifier.Verify(ctx, p) {
			res.Outcome = core.OutcomePreconditionFailed
			log.WarnContext(ctx, "Backup verification failed, archive refused")
			c.writeLedger(ctx, p, res, started)
			return res, nil
		}
	} else {
		log.WarnContext(ctx, "Backup requirement disabled, archiving without verification")
	}

	lock := c.periodLock(p)
	lock.Lock()
	defer lock.Unlock()

	// Steps 3-8: one atomic unit.
	counts, err := c.archiveTx(ctx, p, force, exists, log)
	if err != nil {
		res.Outcome = core.OutcomeRolledBack
		res.Err = err
		log.ErrorContext(ctx, "Archive run rolled back", "error", err)
	} else {
		res.Outcome = core.OutcomeSuccess
		res.Counts = counts
		log.InfoContext(ctx, "Archive run committed",
			"payments", counts.Payments,
			"sessions", counts.Sessions,
			"commissions", counts.Commissions,
			"expenses", counts.Expenses,
			"duration_ms", c.now().Sub(started).Milliseconds())
	}

	// Step 9: ledger write, outside the (possibly rolled back) tx.
	c.writeLedger(ctx, p, res, started)
	return res, nil
}

// archiveTx runs steps 3-8. Any error means the transaction was rolled
// back in full and nothing is observable afterward.
func (c *Coordinator) archiveTx(ctx context.Context, p core.Period, force, existed bool, log *slog.Logger) (core.RecordCounts, error) {
	var counts core.RecordCounts

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	rs, err := tx.QueryPeriod(ctx, p)
	if err != nil {
		return counts, fmt.Errorf("query period records: %w", err)
	}
	counts = rs.Counts()

	if existed && !rs.Empty() {
		// Live records after a prior archival mean something wrote
		// into an already archived month. Archive them anyway under
		// force, but make the anomaly impossible to miss.
		log.WarnContext(ctx, "ANOMALY: live records found for an already archived period",
			"records", counts.Total())
	}

	snapshot, err := buildSnapshot(rs, c.cfg.BatchSize)
	if err != nil {
		return counts, fmt.Errorf("build snapshot: %w", err)
	}

	totals, err := ComputeTotals(rs, c.cfg.BatchSize)
	if err != nil {
		return counts, fmt.Errorf("compute totals: %w", err)
	}

	st := core.MonthlyStatement{
		Year:      p.Year,
		Month:     p.Month,
		Records:   snapshot,
		Totais:    totals,
		CreatedAt: c.now().UTC(),
	}
	if err := tx.WriteStatement(ctx, st, force); err != nil {
		return counts, fmt.Errorf("write statement: %w", err)
	}

	// Delete originals in reference order, commissions ahead of the
	// payments they point at.
	for _, kind := range core.DeletionOrder {
		if err := c.deleteKind(ctx, tx, kind, rs); err != nil {
			return counts, err
		}
	}

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("commit: %w", err)
	}
	tx = nil
	return counts, nil
}

func (c *Coordinator) deleteKind(ctx context.Context, tx Tx, kind core.RecordKind, rs core.RecordSet) error {
	var ids []int64
	switch kind {
	case core.KindPayment:
		for _, r := range rs.Payments {
			ids = append(ids, r.ID)
		}
	case core.KindSession:
		for _, r := range rs.Sessions {
			ids = append(ids, r.ID)
		}
	case core.KindCommission:
		for _, r := range rs.Commissions {
			ids = append(ids, r.ID)
		}
	case core.KindExpense:
		for _, r := range rs.Expenses {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := batch.Process(ids, c.cfg.BatchSize,
		func(chunk []int64) (int, error) {
			if err := tx.DeleteRecords(ctx, kind, chunk); err != nil {
				return 0, err
			}
			return len(chunk), nil
		},
		func(a, b int) int { return a + b },
	)
	if err != nil {
		return fmt.Errorf("delete %s records: %w", kind, err)
	}
	return nil
}

// buildSnapshot copies the record set chunk by chunk so the snapshot
// assembly shares the batch memory bound with the aggregation passes.
func buildSnapshot(rs core.RecordSet, batchSize int) (core.RecordSet, error) {
	var out core.RecordSet
	var err error

	out.Payments, err = batch.Append(rs.Payments, batchSize, copyChunk[core.Payment])
	if err != nil {
		return out, err
	}
	out.Sessions, err = batch.Append(rs.Sessions, batchSize, copyChunk[core.Session])
	if err != nil {
		return out, err
	}
	out.Commissions, err = batch.Append(rs.Commissions, batchSize, copyChunk[core.Commission])
	if err != nil {
		return out, err
	}
	out.Expenses, err = batch.Append(rs.Expenses, batchSize, copyChunk[core.Expense])
	if err != nil {
		return out, err
	}
	return out, nil
}

func copyChunk[T any](chunk []T) ([]T, error) {
	out := make([]T, len(chunk))
	copy(out, chunk)
	return out, nil
}

func (c *Coordinator) periodLock(p core.Period) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.periods[p]
	if !ok {
		lock = &sync.Mutex{}
		c.periods[p] = lock
	}
	return lock
}

func (c *Coordinator) writeLedger(ctx context.Context, p core.Period, res Result, started time.Time) {
	entry := core.RunLedgerEntry{
		Year:          p.Year,
		Month:         p.Month,
		CorrelationID: res.CorrelationID,
		StartedAt:     started.UTC(),
		FinishedAt:    c.now().UTC(),
		Outcome:       res.Outcome,
		Counts:        res.Counts,
	}
	if res.Err != nil {
		entry.Detail = res.Err.Error()
	}
	if err := c.store.AppendRunLedger(ctx, entry); err != nil {
		// The ledger is best-effort audit; the run itself already
		// resolved. Nothing left to do but shout.
		slog.ErrorContext(ctx, "Failed to append run ledger entry",
			"year", p.Year,
			"month", p.Month,
			"correlation_id", res.CorrelationID,
			"outcome", res.Outcome,
			"error", err)
	}
}
