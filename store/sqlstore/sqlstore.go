/*
Package sqlstore provides a relational implementation of ledger.TxStore.

PURPOSE:
  Implements the ledger persistence boundary with sqlx. The same statements
  run on SQLite (default, mattn/go-sqlite3) and PostgreSQL (lib/pq); queries
  are written with "?" placeholders and rebound for the active driver.

KEY TABLES:
  alumni:        profiles with cached total_pledged / total_contributed
  pledges:       alumni pledges and their status
  payments:      payments, optional pledge link, unique gateway_ref
  program_funds: amount / allocated_amount / remaining_amount / version
  expenses:      allocations recorded against a fund
  events:        planned or funded events
  entries:       append-only record of every balance change

MONEY:
  Amounts are stored as BIGINT minor units (cents) so the conditional
  "remaining_amount >= ?" comparison is exact on both drivers.

CONCURRENCY:
  No process-level lock. Every balance write is an atomic increment or a
  conditional UPDATE whose affected-row count is checked; CHECK constraints
  on program_funds reject any write that would break the fund identity.
  SQLite is opened with WAL, a busy timeout and BEGIN IMMEDIATE so concurrent
  writers queue instead of failing.

USAGE:
  store, err := sqlstore.New("sqlite3", "./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, logger)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/scholarship-ledger/ledger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements ledger.TxStore.
type Store struct {
	*conn
	db     *sqlx.DB
	driver string
}

// conn runs queries against either the pool or an open transaction.
type conn struct {
	q sqlx.ExtContext
}

// New opens the database and migrates the schema.
// Use driver "sqlite3" with ":memory:" for an in-memory database.
func New(driver, dsn string) (*Store, error) {
	memory := false
	switch driver {
	case DriverSQLite:
		memory = strings.HasPrefix(dsn, ":memory:")
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: &conn{q: db}, db: db, driver: driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alumni (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		graduation_year INTEGER NOT NULL DEFAULT 0,
		total_pledged BIGINT NOT NULL DEFAULT 0,
		total_contributed BIGINT NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pledges (
		id TEXT PRIMARY KEY,
		alumni_id TEXT NOT NULL REFERENCES alumni(id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		pledge_date TEXT NOT NULL,
		fulfillment_date TEXT,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_pledges_alumni ON pledges(alumni_id);
	CREATE INDEX IF NOT EXISTS idx_pledges_status ON pledges(status);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		alumni_id TEXT NOT NULL REFERENCES alumni(id),
		pledge_id TEXT REFERENCES pledges(id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_ref TEXT,
		receipt_path TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		verified_by TEXT NOT NULL DEFAULT '',
		verified_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_alumni ON payments(alumni_id);
	CREATE INDEX IF NOT EXISTS idx_payments_pledge ON payments(pledge_id) WHERE pledge_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at);

	-- one payment per gateway transaction
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_ref
		ON payments(gateway_ref) WHERE gateway_ref IS NOT NULL;

	CREATE TABLE IF NOT EXISTS program_funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		amount BIGINT NOT NULL,
		allocated_amount BIGINT NOT NULL DEFAULT 0,
		remaining_amount BIGINT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version BIGINT NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		CHECK (remaining_amount >= 0),
		CHECK (amount = allocated_amount + remaining_amount)
	);

	CREATE INDEX IF NOT EXISTS idx_program_funds_category ON program_funds(category);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL REFERENCES program_funds(id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		description TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		recorded_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_fund ON expenses(fund_id);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		required_funds BIGINT NOT NULL,
		fund_id TEXT REFERENCES program_funds(id),
		status TEXT NOT NULL,
		event_date TEXT,
		created_at TEXT NOT NULL
	);

	-- Entries (append-only)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		alumni_id TEXT NOT NULL DEFAULT '',
		fund_id TEXT NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_subject ON entries(subject_id);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// Errors returned by fn are passed through unwrapped.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.withTx(ctx, nil, fn)
}

// ReadSnapshot runs fn in a transaction whose reads all see one snapshot.
// SQLite transactions begin IMMEDIATE and already exclude writers; on
// PostgreSQL the transaction is read-only at REPEATABLE READ.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(ledger.Store) error) error {
	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return s.withTx(ctx, opts, fn)
}

func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func (c *conn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, c.q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *conn) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

func (c *conn) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

// where collects optional filter clauses.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Helper functions

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts rows written without fractional seconds.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isCheckConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	return false
}
