// Package services orchestrates ledger operations: each transaction
// mutation pairs the row change with its balance reconciliation inside one
// unit of work, then fans out best-effort notifications.
package services

import (
	"context"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// EventPublisher is satisfied by the AMQP client. Publishing is best-effort:
// a failed publish never fails the request, the mutation is already durable.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// TransactionService owns the balance-consistency protocol. Every mutation
// reverses stale deltas before applying fresh ones, and the row change plus
// all balance adjustments commit together or not at all.
type TransactionService struct {
	ledger   *storage.Ledger
	events   EventPublisher
	onMutate func(ownerID int64) // cache invalidation hook, may be nil
}

func NewTransactionService(ledger *storage.Ledger, events EventPublisher, onMutate func(ownerID int64)) *TransactionService {
	return &TransactionService{
		ledger:   ledger,
		events:   events,
		onMutate: onMutate,
	}
}

// Create validates and inserts a transaction, applying its signed delta to
// the owning account in the same unit of work.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	delta, err := core.SignedDelta(t.Amount, t.Kind)
	if err != nil {
		return core.Transaction{}, err
	}

	err = s.ledger.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}
		return tx.ApplyDelta(ctx, t.OwnerID, t.AccountID, delta)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", t.ID,
		"account_id", t.AccountID,
		"kind", string(t.Kind),
		"amount_cents", t.Amount.Cents)

	s.notify(ctx, amqp.NewLedgerEvent(amqp.OpCreate, t.ID, t.OwnerID, t.AccountID))
	return t, nil
}

// Update overwrites a transaction with new field values. Inside one unit of
// work it reverses the old delta on the old account, overwrites the row, and
// applies the new delta on the new account. When old and new account match,
// the two adjustments net to balance + new - old; either way a reader never
// observes the state between them.
func (s *TransactionService) Update(ctx context.Context, ownerID, id int64, updated core.Transaction) (core.Transaction, error) {
	updated.ID = id
	updated.OwnerID = ownerID
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	newDelta, err := core.SignedDelta(updated.Amount, updated.Kind)
	if err != nil {
		return core.Transaction{}, err
	}

	var oldAccountID int64
	err = s.ledger.WithTx(ctx, func(tx *storage.Tx) error {
		old, err := tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		oldDelta, err := core.SignedDelta(old.Amount, old.Kind)
		if err != nil {
			return err
		}
		oldAccountID = old.AccountID
		updated.CreatedAt = old.CreatedAt

		if err := tx.ApplyDelta(ctx, ownerID, old.AccountID, oldDelta.Neg()); err != nil {
			return err
		}
		if err := tx.OverwriteTransaction(ctx, updated); err != nil {
			return err
		}
		return tx.ApplyDelta(ctx, ownerID, updated.AccountID, newDelta)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", id,
		"old_account_id", oldAccountID,
		"account_id", updated.AccountID,
		"amount_cents", updated.Amount.Cents)

	event := amqp.NewLedgerEvent(amqp.OpUpdate, id, ownerID, updated.AccountID)
	event.OldAccountID = oldAccountID
	s.notify(ctx, event)
	return updated, nil
}

// Delete reverses the transaction's delta on its account and removes the
// row, both in one unit of work.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id int64) error {
	var accountID int64
	err := s.ledger.WithTx(ctx, func(tx *storage.Tx) error {
		old, err := tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		delta, err := core.SignedDelta(old.Amount, old.Kind)
		if err != nil {
			return err
		}
		accountID = old.AccountID

		if err := tx.ApplyDelta(ctx, ownerID, old.AccountID, delta.Neg()); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, ownerID, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"account_id", accountID)

	s.notify(ctx, amqp.NewLedgerEvent(amqp.OpDelete, id, ownerID, accountID))
	return nil
}

func (s *TransactionService) notify(ctx context.Context, event *amqp.LedgerEventMessage) {
	if s.onMutate != nil {
		s.onMutate(event.OwnerID)
	}
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"error", err,
			"op", event.Op,
			"transaction_id", event.TransactionID)
	}
}
