package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/storage"
)

// QueryService serves the read paths: filtered transaction history and
// account listings. Account listings are cached per owner and invalidated
// on every mutation, since each one touches a stored balance.
type QueryService struct {
	ledger   *storage.Ledger
	accounts *cache.LRU[[]core.Account]
}

func NewQueryService(ledger *storage.Ledger) *QueryService {
	return &QueryService{
		ledger:   ledger,
		accounts: cache.NewLRU[[]core.Account](500, 5*time.Minute),
	}
}

func (q *QueryService) ListTransactions(ctx context.Context, ownerID int64, filter storage.TransactionFilter) ([]core.Transaction, error) {
	return q.ledger.ListTransactions(ctx, ownerID, filter)
}

func (q *QueryService) ListAccounts(ctx context.Context, ownerID int64) ([]core.Account, error) {
	key := strconv.FormatInt(ownerID, 10)
	if accounts, found := q.accounts.Get(key); found {
		slog.DebugContext(ctx, "Account list cache hit", "owner_id", ownerID)
		result := make([]core.Account, len(accounts))
		copy(result, accounts)
		return result, nil
	}

	accounts, err := q.ledger.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	q.accounts.Set(key, accounts)
	result := make([]core.Account, len(accounts))
	copy(result, accounts)
	return result, nil
}

// InvalidateAccounts drops the owner's cached account listing. Wired as the
// TransactionService mutation hook and called after account creation.
func (q *QueryService) InvalidateAccounts(ownerID int64) {
	q.accounts.Delete(strconv.FormatInt(ownerID, 10))
}

func (q *QueryService) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	return q.ledger.ListCategories(ctx, ownerID)
}
