package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// User is the stored credential record. Password hashing lives in the
// identity package; storage only persists the hash.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	CategoryID int64
	Month      string // YYYY-MM
}

func (l *Ledger) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateUsername
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user id: %w", err)
	}
	return id, nil
}

func (l *Ledger) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := l.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (l *Ledger) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := l.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
		id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateAccount inserts the account with its opening balance and fills in
// the generated ID.
func (l *Ledger) CreateAccount(ctx context.Context, a *core.Account) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, balance_cents, opening_cents) VALUES (?, ?, ?, ?)`,
		a.OwnerID, a.Name, a.Balance.Cents, a.Balance.Cents)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create account id: %w", err)
	}
	a.ID = id
	a.Opening = a.Balance
	return nil
}

func (l *Ledger) GetAccount(ctx context.Context, ownerID, id int64) (core.Account, error) {
	var a core.Account
	err := l.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, balance_cents, opening_cents FROM accounts WHERE id = ? AND user_id = ?`,
		id, ownerID).Scan(&a.ID, &a.OwnerID, &a.Name, &a.Balance.Cents, &a.Opening.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (l *Ledger) ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, name, balance_cents, opening_cents FROM accounts WHERE user_id = ? ORDER BY name ASC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Balance.Cents, &a.Opening.Cents); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts rows: %w", err)
	}
	return accounts, nil
}

// AllAccounts returns every account regardless of owner. Used by the
// reconcile sweep, not by request handlers.
func (l *Ledger) AllAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, name, balance_cents, opening_cents FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Balance.Cents, &a.Opening.Cents); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all accounts rows: %w", err)
	}
	return accounts, nil
}

func (l *Ledger) CreateCategory(ctx context.Context, c *core.Category) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)`, c.OwnerID, c.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCategory
		}
		return fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create category id: %w", err)
	}
	c.ID = id
	return nil
}

func (l *Ledger) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories rows: %w", err)
	}
	return categories, nil
}

// GetTransaction is the read-path lookup, outside any unit of work.
func (l *Ledger) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, user_id, account_id, category_id, description, amount_cents, date, kind, created_at
		 FROM transactions WHERE id = ? AND user_id = ?`, id, ownerID)
	return scanTransaction(row)
}

// ListTransactions returns the owner's transactions, newest date first,
// optionally narrowed by category and by month.
func (l *Ledger) ListTransactions(ctx context.Context, ownerID int64, filter TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, user_id, account_id, category_id, description, amount_cents, date, kind, created_at
	          FROM transactions WHERE user_id = ?`
	args := []any{ownerID}
	if filter.CategoryID != 0 {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if filter.Month != "" {
		query += ` AND strftime('%Y-%m', date) = ?`
		args = append(args, filter.Month)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions rows: %w", err)
	}
	return transactions, nil
}

// SumDeltas recomputes an account balance from its transaction log: the sum
// of signed contributions. This is the authoritative value the stored
// balance must agree with.
func (l *Ledger) SumDeltas(ctx context.Context, ownerID, accountID int64) (core.Money, error) {
	var cents int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE -amount_cents END), 0)
		 FROM transactions WHERE account_id = ? AND user_id = ?`,
		accountID, ownerID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum deltas: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
