package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Kind tells whether a transaction adds to or subtracts from an account.
	Kind string

	Money struct {
		Cents int64
	}

	// Account carries a stored running balance. The balance is a cached
	// aggregate: it must equal the opening balance plus the sum of signed
	// deltas of all transactions against the account whenever no mutation
	// is in flight.
	Account struct {
		ID      int64
		OwnerID int64
		Name    string
		Balance Money
		Opening Money // balance at creation, before any transaction
	}

	Category struct {
		ID      int64
		OwnerID int64
		Name    string
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		AccountID   int64
		CategoryID  int64
		Description string
		Amount      Money // always positive; Kind determines sign
		Date        time.Time
		Kind        Kind
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
)

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	}
	return ErrInvalidKind
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 100 {
		return errors.New("account name too long (max 100 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.AccountID <= 0 {
		return errors.New("account reference required")
	}
	if t.CategoryID <= 0 {
		return errors.New("category reference required")
	}
	return nil
}
