// Package storage is the durable ledger store: SQLite-backed accounts,
// categories and transactions, plus the transactional half of the balance
// reconciler. Every balance adjustment is a single read-modify-write UPDATE
// executed inside a write transaction, so concurrent mutations serialize in
// the engine and a partial unit of work is never observable.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateUsername   = errors.New("username already exists")
	ErrDuplicateCategory   = errors.New("category already exists")
)

const dateLayout = "2006-01-02"

type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at dbPath and runs
// pending migrations. Write transactions take the lock up front (_txlock=
// immediate) and writers wait on the busy timeout instead of failing, which
// is what serializes concurrent balance updates.
func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?" + url.Values{
		"_txlock": {"immediate"},
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Ping reports whether the database connection is still usable. Backs the
// readiness endpoint.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Tx is one unit of work against the ledger. All mutations inside it commit
// together or roll back together.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a write transaction. Any error from fn rolls the
// whole unit back and is returned unchanged, so sentinel errors survive for
// errors.Is at the boundary.
func (l *Ledger) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ApplyDelta adds delta to the stored balance of the account, scoped to the
// owning user. The adjustment is one UPDATE statement so the read-modify-write
// happens atomically inside the engine; it is never computed in application
// memory. Returns ErrAccountNotFound when no account matches under the
// owner's scope.
func (tx *Tx) ApplyDelta(ctx context.Context, ownerID, accountID int64, delta core.Money) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ? AND user_id = ?`,
		delta.Cents, accountID, ownerID)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply balance delta rows: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// InsertTransaction inserts the row and fills in the generated ID and
// creation time. The account and category references are checked under the
// owner's scope first so a dangling reference surfaces as ErrAccountNotFound
// or ErrCategoryNotFound rather than a raw constraint error.
func (tx *Tx) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	if err := tx.checkAccount(ctx, t.OwnerID, t.AccountID); err != nil {
		return err
	}
	if err := tx.checkCategory(ctx, t.OwnerID, t.CategoryID); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, account_id, category_id, description, amount_cents, date, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.AccountID, t.CategoryID, t.Description, t.Amount.Cents,
		t.Date.Format(dateLayout), string(t.Kind), now)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert transaction id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	return nil
}

// GetTransaction loads a transaction scoped to its owner, for use inside a
// unit of work (reading the old row before reversing its delta).
func (tx *Tx) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row := tx.tx.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, category_id, description, amount_cents, date, kind, created_at
		 FROM transactions WHERE id = ? AND user_id = ?`, id, ownerID)
	return scanTransaction(row)
}

// OverwriteTransaction replaces all mutable fields of an existing row.
func (tx *Tx) OverwriteTransaction(ctx context.Context, t core.Transaction) error {
	if err := tx.checkAccount(ctx, t.OwnerID, t.AccountID); err != nil {
		return err
	}
	if err := tx.checkCategory(ctx, t.OwnerID, t.CategoryID); err != nil {
		return err
	}

	res, err := tx.tx.ExecContext(ctx,
		`UPDATE transactions SET account_id = ?, category_id = ?, description = ?, amount_cents = ?, date = ?, kind = ?
		 WHERE id = ? AND user_id = ?`,
		t.AccountID, t.CategoryID, t.Description, t.Amount.Cents,
		t.Date.Format(dateLayout), string(t.Kind), t.ID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("overwrite transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("overwrite transaction rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// DeleteTransaction removes the row scoped to its owner.
func (tx *Tx) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	res, err := tx.tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (tx *Tx) checkAccount(ctx context.Context, ownerID, accountID int64) error {
	var one int
	err := tx.tx.QueryRowContext(ctx,
		`SELECT 1 FROM accounts WHERE id = ? AND user_id = ?`, accountID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	return nil
}

func (tx *Tx) checkCategory(ctx context.Context, ownerID, categoryID int64) error {
	var one int
	err := tx.tx.QueryRowContext(ctx,
		`SELECT 1 FROM categories WHERE id = ? AND user_id = ?`, categoryID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		dateStr string
		kind    string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.AccountID, &t.CategoryID,
		&t.Description, &t.Amount.Cents, &dateStr, &kind, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Kind = core.Kind(kind)
	t.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", dateStr, err)
	}
	return t, nil
}
