package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/service"
)

// Reconciler recomputes account balances from the full transaction
// history. A full replay in value date order makes the result independent
// of the order transactions arrived in, which matters when a statement
// upload backfills rows older than already-ingested email alerts.
type Reconciler struct {
	storage service.Storage
}

// NewReconciler creates a reconciler over the given storage.
func NewReconciler(storage service.Storage) *Reconciler {
	return &Reconciler{storage: storage}
}

// Reconcile replays every transaction of the account on top of its
// baseline and persists the resulting balance. Returns the new balance.
func (r *Reconciler) Reconcile(ctx context.Context, account *model.Account) (decimal.Decimal, error) {
	transactions, err := r.storage.ListTransactionsForReplay(ctx, account.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transactions for replay: %w", err)
	}

	balance := account.Baseline
	for i := range transactions {
		balance = balance.Add(transactions[i].Amount)
	}

	// The balance write can hit SQLITE_BUSY under concurrent batches.
	err = common.WithRetry(ctx, func() error {
		return r.storage.UpdateAccountBalance(ctx, account.ID, balance, time.Now().UTC())
	}, common.RetryOptions{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to store reconciled balance: %w", err)
	}
	return balance, nil
}
