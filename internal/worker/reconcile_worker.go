// Package worker hosts the reconcile worker: it audits stored account
// balances against the transaction log, both on ledger events and on a
// periodic sweep, and mirrors new transactions to the statement sheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// Drift describes an account whose stored balance disagrees with its
// opening balance plus the sum of signed deltas.
type Drift struct {
	AccountID int64
	OwnerID   int64
	Stored    core.Money
	Expected  core.Money
}

type ReconcileWorker struct {
	ledger *storage.Ledger
	mirror sheets.StatementWriter // optional
}

func NewReconcileWorker(ledger *storage.Ledger, mirror sheets.StatementWriter) *ReconcileWorker {
	return &ReconcileWorker{
		ledger: ledger,
		mirror: mirror,
	}
}

// HandleLedgerEvent processes one ledger event from AMQP: it rechecks every
// account the mutation touched and, for creates, mirrors the transaction to
// the statement sheet.
func (w *ReconcileWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"op", msg.Op,
		"transaction_id", msg.TransactionID,
		"owner_id", msg.OwnerID)

	for _, accountID := range msg.Accounts() {
		drift, err := w.checkAccount(ctx, msg.OwnerID, accountID)
		if err != nil {
			return fmt.Errorf("check account %d: %w", accountID, err)
		}
		if drift != nil {
			w.reportDrift(ctx, *drift)
		}
	}

	if msg.Op == amqp.OpCreate && w.mirror != nil {
		t, err := w.ledger.GetTransaction(ctx, msg.OwnerID, msg.TransactionID)
		if err != nil {
			return fmt.Errorf("load transaction %d for mirror: %w", msg.TransactionID, err)
		}
		rowRef, err := w.mirror.AppendStatement(ctx, t)
		if err != nil {
			return fmt.Errorf("mirror transaction %d: %w", msg.TransactionID, err)
		}
		slog.InfoContext(ctx, "Transaction mirrored to statement",
			"transaction_id", msg.TransactionID,
			"row_ref", rowRef)
	}

	return nil
}

// Sweep rechecks every account in the ledger and returns the drifts found.
func (w *ReconcileWorker) Sweep(ctx context.Context) ([]Drift, error) {
	accounts, err := w.ledger.AllAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var drifts []Drift
	for _, a := range accounts {
		drift, err := w.checkAccount(ctx, a.OwnerID, a.ID)
		if err != nil {
			return drifts, fmt.Errorf("check account %d: %w", a.ID, err)
		}
		if drift != nil {
			drifts = append(drifts, *drift)
			w.reportDrift(ctx, *drift)
		}
	}

	slog.InfoContext(ctx, "Reconcile sweep completed",
		"accounts_checked", len(accounts),
		"drifts", len(drifts))
	return drifts, nil
}

// Run performs periodic sweeps until the context is canceled.
func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconcile sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// checkAccount returns a Drift when the stored balance disagrees with
// opening plus the recomputed delta sum, nil when consistent.
func (w *ReconcileWorker) checkAccount(ctx context.Context, ownerID, accountID int64) (*Drift, error) {
	account, err := w.ledger.GetAccount(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := w.ledger.SumDeltas(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}

	expected := core.Money{Cents: account.Opening.Cents + sum.Cents}
	if account.Balance.Cents == expected.Cents {
		return nil, nil
	}
	return &Drift{
		AccountID: accountID,
		OwnerID:   ownerID,
		Stored:    account.Balance,
		Expected:  expected,
	}, nil
}

func (w *ReconcileWorker) reportDrift(ctx context.Context, d Drift) {
	slog.ErrorContext(ctx, "Balance drift detected",
		"account_id", d.AccountID,
		"owner_id", d.OwnerID,
		"stored_cents", d.Stored.Cents,
		"expected_cents", d.Expected.Cents)
}
