// Package storage is the SQLite persistence adapter. It owns all
// tables (live records, statements, statement history, run ledger) and
// implements the archive store ports plus the live CRUD used by the
// record endpoints.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"extrato/internal/archive"
	"extrato/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// ErrStatementNotFound is returned by GetStatement for periods never
// archived.
var ErrStatementNotFound = fmt.Errorf("statement not found")

type SQLiteRepository struct {
	db *sql.DB
}

var _ archive.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL keeps readers unblocked during the archival transaction;
	// foreign keys enforce the commission -> payment reference.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so period queries
// run identically inside and outside the archival transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- live record CRUD ---

func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.Payment) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (date, amount_cents, client_name, artist_name, method, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Date.Format(dateLayout), p.Amount.Cents, p.ClientName, p.ArtistName, p.Method, p.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (date, amount_cents, client_name, artist_name, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		s.Date.Format(dateLayout), s.Amount.Cents, s.ClientName, s.ArtistName, s.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) CreateCommission(ctx context.Context, c core.Commission) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO commissions (date, amount_cents, artist_name, payment_id, percent, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Date.Format(dateLayout), c.Amount.Cents, c.ArtistName, c.PaymentID, c.Percent, c.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert commission: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (date, amount_cents, category, method, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Date.Format(dateLayout), e.Amount.Cents, e.Category, e.Method, e.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return res.LastInsertId()
}

// QueryPeriod fetches one period's live records outside any
// transaction, for backup export and the record list endpoints.
func (r *SQLiteRepository) QueryPeriod(ctx context.Context, p core.Period) (core.RecordSet, error) {
	return queryPeriod(ctx, r.db, p)
}

// CountPeriodRecords implements the backup live counter: total live
// records across all four kinds for the period.
func (r *SQLiteRepository) CountPeriodRecords(ctx context.Context, p core.Period) (int, error) {
	from, to := periodBounds(p)
	var total int
	for _, table := range []string{"payments", "sessions", "commissions", "expenses"} {
		var n int
		err := r.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE date >= ? AND date < ?", table),
			from, to).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// --- archive.Store ---

func (r *SQLiteRepository) StatementExists(ctx context.Context, p core.Period) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM monthly_statements WHERE year = ? AND month = ?",
		p.Year, p.Month).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("statement exists: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Begin(ctx context.Context) (archive.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

func (r *SQLiteRepository) AppendRunLedger(ctx context.Context, e core.RunLedgerEntry) error {
	counts, err := json.Marshal(e.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO archive_runs (year, month, correlation_id, started_at, finished_at, outcome, counts, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Year, e.Month, e.CorrelationID,
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(e.Outcome), string(counts), e.Detail)
	if err != nil {
		return fmt.Errorf("append run ledger: %w", err)
	}
	slog.InfoContext(ctx, "Run ledger entry recorded",
		"year", e.Year, "month", e.Month,
		"correlation_id", e.CorrelationID, "outcome", e.Outcome)
	return nil
}

// --- statement and ledger reads ---

func (r *SQLiteRepository) GetStatement(ctx context.Context, p core.Period) (core.MonthlyStatement, error) {
	var (
		payload, totals, createdAt string
		st                         core.MonthlyStatement
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT payload, totals, created_at FROM monthly_statements WHERE year = ? AND month = ?",
		p.Year, p.Month).Scan(&payload, &totals, &createdAt)
	if err == sql.ErrNoRows {
		return st, fmt.Errorf("%w: %s", ErrStatementNotFound, p)
	}
	if err != nil {
		return st, fmt.Errorf("get statement: %w", err)
	}

	st.Year, st.Month = p.Year, p.Month
	if err := json.Unmarshal([]byte(payload), &st.Records); err != nil {
		return st, fmt.Errorf("parse statement payload: %w", err)
	}
	if err := json.Unmarshal([]byte(totals), &st.Totais); err != nil {
		return st, fmt.Errorf("parse statement totals: %w", err)
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return st, fmt.Errorf("parse statement timestamp: %w", err)
	}
	return st, nil
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]core.RunLedgerEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, year, month, correlation_id, started_at, finished_at, outcome, counts, detail
		 FROM archive_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []core.RunLedgerEntry
	for rows.Next() {
		var (
			e                            core.RunLedgerEntry
			startedAt, finishedAt, cnts  string
			outcome                      string
		)
		if err := rows.Scan(&e.ID, &e.Year, &e.Month, &e.CorrelationID,
			&startedAt, &finishedAt, &outcome, &cnts, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Outcome = core.Outcome(outcome)
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse run started_at: %w", err)
		}
		if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("parse run finished_at: %w", err)
		}
		if err := json.Unmarshal([]byte(cnts), &e.Counts); err != nil {
			return nil, fmt.Errorf("parse run counts: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- transaction ---

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) QueryPeriod(ctx context.Context, p core.Period) (core.RecordSet, error) {
	return queryPeriod(ctx, t.tx, p)
}

// WriteStatement persists the snapshot. Without overwrite, a duplicate
// period hits the UNIQUE(year, month) constraint and errors, which is
// exactly the cross-process race guard. With overwrite, the prior row
// moves to statement_history first, inside the same transaction.
func (t *sqlTx) WriteStatement(ctx context.Context, st core.MonthlyStatement, overwrite bool) error {
	payload, err := json.Marshal(st.Records)
	if err != nil {
		return fmt.Errorf("marshal statement payload: %w", err)
	}
	totals, err := json.Marshal(st.Totais)
	if err != nil {
		return fmt.Errorf("marshal statement totals: %w", err)
	}

	if overwrite {
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO statement_history (year, month, payload, totals, created_at)
			 SELECT year, month, payload, totals, created_at
			 FROM monthly_statements WHERE year = ? AND month = ?`,
			st.Year, st.Month)
		if err != nil {
			return fmt.Errorf("preserve prior statement: %w", err)
		}
		_, err = t.tx.ExecContext(ctx,
			"DELETE FROM monthly_statements WHERE year = ? AND month = ?",
			st.Year, st.Month)
		if err != nil {
			return fmt.Errorf("remove prior statement: %w", err)
		}
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO monthly_statements (year, month, payload, totals, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		st.Year, st.Month, string(payload), string(totals),
		st.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert statement: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteRecords(ctx context.Context, kind core.RecordKind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("unknown record kind %q", kind)
	}

	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}

	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, placeholders), args...)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && int(n) != len(ids) {
		return fmt.Errorf("delete from %s: affected %d rows, expected %d", table, n, len(ids))
	}
	return nil
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

var kindTables = map[core.RecordKind]string{
	core.KindPayment:    "payments",
	core.KindSession:    "sessions",
	core.KindCommission: "commissions",
	core.KindExpense:    "expenses",
}

// --- shared queries ---

func periodBounds(p core.Period) (string, string) {
	return p.Start().Format(dateLayout), p.End().Format(dateLayout)
}

func queryPeriod(ctx context.Context, q querier, p core.Period) (core.RecordSet, error) {
	var rs core.RecordSet
	from, to := periodBounds(p)

	rows, err := q.QueryContext(ctx,
		`SELECT id, date, amount_cents, client_name, artist_name, method, notes
		 FROM payments WHERE date >= ? AND date < ? ORDER BY id`, from, to)
	if err != nil {
		return rs, fmt.Errorf("query payments: %w", err)
	}
	for rows.Next() {
		var (
			r    core.Payment
			date string
		)
		if err := rows.Scan(&r.ID, &date, &r.Amount.Cents, &r.ClientName, &r.ArtistName, &r.Method, &r.Notes); err != nil {
			rows.Close()
			return rs, fmt.Errorf("scan payment: %w", err)
		}
		if r.Date, err = time.Parse(dateLayout, date); err != nil {
			rows.Close()
			return rs, fmt.Errorf("parse payment date: %w", err)
		}
		rs.Payments = append(rs.Payments, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rs, fmt.Errorf("iterate payments: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, date, amount_cents, client_name, artist_name, notes
		 FROM sessions WHERE date >= ? AND date < ? ORDER BY id`, from, to)
	if err != nil {
		return rs, fmt.Errorf("query sessions: %w", err)
	}
	for rows.Next() {
		var (
			r    core.Session
			date string
		)
		if err := rows.Scan(&r.ID, &date, &r.Amount.Cents, &r.ClientName, &r.ArtistName, &r.Notes); err != nil {
			rows.Close()
			return rs, fmt.Errorf("scan session: %w", err)
		}
		if r.Date, err = time.Parse(dateLayout, date); err != nil {
			rows.Close()
			return rs, fmt.Errorf("parse session date: %w", err)
		}
		rs.Sessions = append(rs.Sessions, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rs, fmt.Errorf("iterate sessions: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, date, amount_cents, artist_name, payment_id, percent, notes
		 FROM commissions WHERE date >= ? AND date < ? ORDER BY id`, from, to)
	if err != nil {
		return rs, fmt.Errorf("query commissions: %w", err)
	}
	for rows.Next() {
		var (
			r    core.Commission
			date string
		)
		if err := rows.Scan(&r.ID, &date, &r.Amount.Cents, &r.ArtistName, &r.PaymentID, &r.Percent, &r.Notes); err != nil {
			rows.Close()
			return rs, fmt.Errorf("scan commission: %w", err)
		}
		if r.Date, err = time.Parse(dateLayout, date); err != nil {
			rows.Close()
			return rs, fmt.Errorf("parse commission date: %w", err)
		}
		rs.Commissions = append(rs.Commissions, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rs, fmt.Errorf("iterate commissions: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		`SELECT id, date, amount_cents, category, method, notes
		 FROM expenses WHERE date >= ? AND date < ? ORDER BY id`, from, to)
	if err != nil {
		return rs, fmt.Errorf("query expenses: %w", err)
	}
	for rows.Next() {
		var (
			r    core.Expense
			date string
		)
		if err := rows.Scan(&r.ID, &date, &r.Amount.Cents, &r.Category, &r.Method, &r.Notes); err != nil {
			rows.Close()
			return rs, fmt.Errorf("scan expense: %w", err)
		}
		if r.Date, err = time.Parse(dateLayout, date); err != nil {
			rows.Close()
			return rs, fmt.Errorf("parse expense date: %w", err)
		}
		rs.Expenses = append(rs.Expenses, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rs, fmt.Errorf("iterate expenses: %w", err)
	}

	return rs, nil
}
