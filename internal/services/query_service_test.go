package services

import (
	"context"
	"testing"

	"tally/internal/core"
)

func TestListAccountsCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queries := NewQueryService(f.ledger)

	first, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(first) != 1 || first[0].Name != "Checking" {
		t.Fatalf("unexpected accounts: %+v", first)
	}

	// A write that bypasses the cache is invisible until invalidation.
	savings := core.Account{OwnerID: f.ownerID, Name: "Savings", Balance: core.Money{Cents: 0}}
	if err := f.ledger.CreateAccount(ctx, &savings); err != nil {
		t.Fatalf("create account: %v", err)
	}
	cached, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected stale cached list of 1, got %d", len(cached))
	}

	queries.InvalidateAccounts(f.ownerID)
	fresh, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected 2 accounts after invalidation, got %d", len(fresh))
	}
}

func TestListAccountsCacheReturnsCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queries := NewQueryService(f.ledger)

	first, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	first[0].Name = "mutated"

	second, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if second[0].Name != "Checking" {
		t.Fatalf("cache entry was mutated through a returned slice: %+v", second[0])
	}
}

func TestListAccountsScopedPerOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queries := NewQueryService(f.ledger)

	otherID, err := f.ledger.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	mine, err := queries.ListAccounts(ctx, f.ownerID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	theirs, err := queries.ListAccounts(ctx, otherID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(mine) != 1 || len(theirs) != 0 {
		t.Fatalf("owner scoping broken: mine=%d theirs=%d", len(mine), len(theirs))
	}
}
