package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bazaar/internal/domain"
)

// TxManager owns transaction boundaries. Repo methods never begin transactions
// themselves; they run on whatever sqlx.ExtContext the caller hands them.
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

func NewTxManager(db *sqlx.DB, isolation sql.IsolationLevel) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: isolation}}
}

// DB exposes the pool for reads that need no transaction.
func (m *TxManager) DB() *sqlx.DB { return m.db }

// InTx runs fn in one transaction, committing only if fn returns nil.
func (m *TxManager) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return classify(ctx, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(ctx, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// InTxTimeout is InTx bounded by timeout; a stuck transaction aborts as StorageUnavailable.
func (m *TxManager) InTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *sqlx.Tx) error) error {
	if timeout <= 0 {
		return m.InTx(ctx, fn)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.InTx(ctx, fn)
}

// ParseIsolation validates the configured isolation level. The sqlite driver ignores
// TxOptions.Isolation; writers are serialized by the DSN's _txlock=immediate, so
// only "default" and "serializable" describe what actually happens.
func ParseIsolation(s string) (sql.IsolationLevel, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "default", "serializable":
		return sql.LevelDefault, nil
	case "read-committed", "repeatable-read":
		return sql.LevelDefault, fmt.Errorf("isolation level %q is not supported: sqlite write transactions are always serialized", s)
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

// classify turns lock contention and deadline errors into the transient domain error.
// Domain errors pass through untouched.
func classify(ctx context.Context, err error) error {
	if err == nil || domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.StorageUnavailable(err)
	}
	if isBusy(err) {
		return domain.StorageUnavailable(err)
	}
	return err
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return true
	}
	return false
}

// IsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
