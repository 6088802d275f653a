package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEventMessage
}

func (p *capturingPublisher) PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *msg)
	return nil
}

type fixture struct {
	ledger     *storage.Ledger
	service    *TransactionService
	publisher  *capturingPublisher
	ownerID    int64
	accountID  int64
	categoryID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ledger, err := storage.Open(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	ownerID, err := ledger.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	account := core.Account{OwnerID: ownerID, Name: "Checking", Balance: core.Money{Cents: 10000}}
	if err := ledger.CreateAccount(ctx, &account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	category := core.Category{OwnerID: ownerID, Name: "Groceries"}
	if err := ledger.CreateCategory(ctx, &category); err != nil {
		t.Fatalf("create category: %v", err)
	}

	publisher := &capturingPublisher{}
	return &fixture{
		ledger:     ledger,
		service:    NewTransactionService(ledger, publisher, nil),
		publisher:  publisher,
		ownerID:    ownerID,
		accountID:  account.ID,
		categoryID: category.ID,
	}
}

func (f *fixture) balance(t *testing.T, accountID int64) int64 {
	t.Helper()
	account, err := f.ledger.GetAccount(context.Background(), f.ownerID, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return account.Balance.Cents
}

// checkInvariant recomputes the balance from the transaction log and
// compares it with the stored running total.
func (f *fixture) checkInvariant(t *testing.T, accountID int64) {
	t.Helper()
	ctx := context.Background()
	account, err := f.ledger.GetAccount(ctx, f.ownerID, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	sum, err := f.ledger.SumDeltas(ctx, f.ownerID, accountID)
	if err != nil {
		t.Fatalf("sum deltas: %v", err)
	}
	want := account.Opening.Cents + sum.Cents
	if account.Balance.Cents != want {
		t.Fatalf("balance drifted: stored %d, opening+deltas %d", account.Balance.Cents, want)
	}
}

func (f *fixture) transaction(cents int64, kind core.Kind) core.Transaction {
	return core.Transaction{
		OwnerID:     f.ownerID,
		AccountID:   f.accountID,
		CategoryID:  f.categoryID,
		Description: "test entry",
		Amount:      core.Money{Cents: cents},
		Date:        time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Kind:        kind,
	}
}

func TestCreateAdjustsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		cents int64
		kind  core.Kind
		want  int64
	}{
		{"expense subtracts", 2500, core.Expense, 7500},
		{"income adds", 4000, core.Income, 11500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := f.service.Create(ctx, f.transaction(tt.cents, tt.kind))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.ID == 0 {
				t.Fatal("expected transaction ID to be set")
			}
			if got := f.balance(t, f.accountID); got != tt.want {
				t.Fatalf("balance = %d, want %d", got, tt.want)
			}
			f.checkInvariant(t, f.accountID)
		})
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, f.transaction(0, core.Expense)); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := f.balance(t, f.accountID); got != 10000 {
		t.Fatalf("balance changed on rejected create: %d", got)
	}
}

func TestCreateRollsBackOnMissingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr := f.transaction(500, core.Expense)
	tr.AccountID = 9999
	if _, err := f.service.Create(ctx, tr); !errors.Is(err, storage.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	// The insert must not survive the failed delta.
	list, err := f.ledger.ListTransactions(ctx, f.ownerID, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no transactions after rollback, got %d", len(list))
	}
}

func TestUpdateSameAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.transaction(3000, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.balance(t, f.accountID); got != 7000 {
		t.Fatalf("balance after create = %d, want 7000", got)
	}

	amended := f.transaction(1000, core.Expense)
	amended.Description = "amended entry"
	if _, err := f.service.Update(ctx, f.ownerID, created.ID, amended); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.balance(t, f.accountID); got != 9000 {
		t.Fatalf("balance after update = %d, want 9000", got)
	}
	f.checkInvariant(t, f.accountID)

	got, err := f.ledger.GetTransaction(ctx, f.ownerID, created.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.Description != "amended entry" || got.Amount.Cents != 1000 {
		t.Fatalf("row not overwritten: %+v", got)
	}
	if got.CreatedAt.Unix() != created.CreatedAt.Unix() {
		t.Fatalf("CreatedAt changed on update: %v vs %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestUpdateKindFlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.transaction(2000, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.service.Update(ctx, f.ownerID, created.ID, f.transaction(2000, core.Income)); err != nil {
		t.Fatalf("update: %v", err)
	}
	// 10000 with the 2000 expense reversed and 2000 income applied
	if got := f.balance(t, f.accountID); got != 12000 {
		t.Fatalf("balance after kind flip = %d, want 12000", got)
	}
	f.checkInvariant(t, f.accountID)
}

func TestUpdateMovesBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	savings := core.Account{OwnerID: f.ownerID, Name: "Savings", Balance: core.Money{Cents: 20000}}
	if err := f.ledger.CreateAccount(ctx, &savings); err != nil {
		t.Fatalf("create account: %v", err)
	}

	created, err := f.service.Create(ctx, f.transaction(5000, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.balance(t, f.accountID); got != 5000 {
		t.Fatalf("source balance after create = %d, want 5000", got)
	}

	moved := f.transaction(5000, core.Expense)
	moved.AccountID = savings.ID
	if _, err := f.service.Update(ctx, f.ownerID, created.ID, moved); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := f.balance(t, f.accountID); got != 10000 {
		t.Fatalf("source balance after move = %d, want 10000", got)
	}
	if got := f.balance(t, savings.ID); got != 15000 {
		t.Fatalf("target balance after move = %d, want 15000", got)
	}
	f.checkInvariant(t, f.accountID)
	f.checkInvariant(t, savings.ID)
}

func TestUpdateRollsBackOnMissingTargetAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.transaction(3000, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	moved := f.transaction(3000, core.Expense)
	moved.AccountID = 9999
	if _, err := f.service.Update(ctx, f.ownerID, created.ID, moved); !errors.Is(err, storage.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	// Both the reversal and the overwrite must have been rolled back.
	if got := f.balance(t, f.accountID); got != 7000 {
		t.Fatalf("balance after failed update = %d, want 7000", got)
	}
	row, err := f.ledger.GetTransaction(ctx, f.ownerID, created.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if row.AccountID != f.accountID || row.Amount.Cents != 3000 {
		t.Fatalf("row changed despite rollback: %+v", row)
	}
	f.checkInvariant(t, f.accountID)
}

func TestUpdateUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Update(ctx, f.ownerID, 9999, f.transaction(1000, core.Expense)); !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if got := f.balance(t, f.accountID); got != 10000 {
		t.Fatalf("balance changed on unknown transaction: %d", got)
	}
}

func TestDeleteReversesDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.transaction(3000, core.Income))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.balance(t, f.accountID); got != 13000 {
		t.Fatalf("balance after income = %d, want 13000", got)
	}

	if err := f.service.Delete(ctx, f.ownerID, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := f.balance(t, f.accountID); got != 10000 {
		t.Fatalf("balance after delete = %d, want 10000", got)
	}
	f.checkInvariant(t, f.accountID)

	if _, err := f.ledger.GetTransaction(ctx, f.ownerID, created.ID); !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}
}

func TestDeleteUnknownTransaction(t *testing.T) {
	f := newFixture(t)

	err := f.service.Delete(context.Background(), f.ownerID, 9999)
	if !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestConcurrentCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amounts := []int64{1000, 2000}
	var wg sync.WaitGroup
	errs := make([]error, len(amounts))
	for i, cents := range amounts {
		wg.Add(1)
		go func(i int, cents int64) {
			defer wg.Done()
			_, errs[i] = f.service.Create(ctx, f.transaction(cents, core.Expense))
		}(i, cents)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent create %d: %v", i, err)
		}
	}
	if got := f.balance(t, f.accountID); got != 7000 {
		t.Fatalf("balance after concurrent creates = %d, want 7000", got)
	}
	f.checkInvariant(t, f.accountID)
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.transaction(1500, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.service.Update(ctx, f.ownerID, created.ID, f.transaction(2500, core.Expense)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.service.Delete(ctx, f.ownerID, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(f.publisher.events))
	}
	wantOps := []string{amqp.OpCreate, amqp.OpUpdate, amqp.OpDelete}
	for i, event := range f.publisher.events {
		if event.Op != wantOps[i] {
			t.Fatalf("event %d op = %q, want %q", i, event.Op, wantOps[i])
		}
		if event.TransactionID != created.ID || event.OwnerID != f.ownerID {
			t.Fatalf("event %d has wrong identifiers: %+v", i, event)
		}
	}
}

func TestMutationsInvokeInvalidationHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var invalidated []int64
	f.service = NewTransactionService(f.ledger, f.publisher, func(ownerID int64) {
		mu.Lock()
		invalidated = append(invalidated, ownerID)
		mu.Unlock()
	})

	created, err := f.service.Create(ctx, f.transaction(1000, core.Expense))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.service.Delete(ctx, f.ownerID, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invalidated) != 2 || invalidated[0] != f.ownerID || invalidated[1] != f.ownerID {
		t.Fatalf("unexpected invalidations: %v", invalidated)
	}
}
