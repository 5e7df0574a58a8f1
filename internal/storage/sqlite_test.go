package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestAccount(t *testing.T, store *SQLiteStorage) *model.Account {
	t.Helper()
	account := &model.Account{
		ID:       "acc-1",
		Number:   "0347020000027",
		BankName: "Bank Muscat",
		Currency: "OMR",
		Branch:   "Ruwi",
		Baseline: decimal.RequireFromString("100.000"),
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func makeTestTransaction(accountID string, day int, amount string) *model.Transaction {
	txn := &model.Transaction{
		ID:           fmt.Sprintf("txn-%s-%d-%s", accountID, day, amount),
		AccountID:    accountID,
		ValueDate:    time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
		Narration:    fmt.Sprintf("POS 685694-TEST MERCHANT POS25%dD175XM3X", day),
		Counterparty: "TEST MERCHANT",
		Amount:       decimal.RequireFromString(amount),
		Currency:     "OMR",
		Type:         model.TypeExpense,
		Source:       model.SourceEmail,
		Category:     model.UncategorizedName,
	}
	txn.Fingerprint = txn.GenerateFingerprint()
	return txn
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	account := createTestAccount(t, store)

	t.Run("get by id", func(t *testing.T) {
		got, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Number, got.Number)
		assert.True(t, got.Baseline.Equal(decimal.RequireFromString("100.000")))
	})

	t.Run("get by number", func(t *testing.T) {
		got, err := store.GetAccountByNumber(ctx, account.Number)
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := store.GetAccountByID(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("set baseline and balance", func(t *testing.T) {
		require.NoError(t, store.SetAccountBaseline(ctx, account.ID, decimal.RequireFromString("250.500")))
		at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpdateAccountBalance(ctx, account.ID, decimal.RequireFromString("240.250"), at))

		got, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, got.Baseline.Equal(decimal.RequireFromString("250.500")))
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("240.250")))
		assert.False(t, got.BalanceUpdatedAt.IsZero())
	})

	t.Run("update missing account", func(t *testing.T) {
		err := store.SetAccountBaseline(ctx, "nope", decimal.Zero)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		accounts, err := store.ListAccounts(ctx)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})
}

func TestInsertTransactionIfAbsent(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	account := createTestAccount(t, store)

	txn := makeTestTransaction(account.ID, 10, "-15.000")

	result, err := store.InsertTransactionIfAbsent(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, service.InsertCreated, result)

	t.Run("same fingerprint is a duplicate", func(t *testing.T) {
		again := makeTestTransaction(account.ID, 10, "-15.000")
		again.ID = "txn-resent"
		result, err := store.InsertTransactionIfAbsent(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, service.InsertDuplicate, result)

		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{})
		require.NoError(t, err)
		assert.Len(t, txns, 1)
	})

	t.Run("whitespace and case do not change the fingerprint", func(t *testing.T) {
		variant := makeTestTransaction(account.ID, 10, "-15.000")
		variant.ID = "txn-variant"
		variant.Narration = "  pos 685694-test   merchant pos2510d175xm3x "
		variant.Fingerprint = ""
		result, err := store.InsertTransactionIfAbsent(ctx, variant)
		require.NoError(t, err)
		assert.Equal(t, service.InsertDuplicate, result)
	})

	t.Run("different amount creates a new row", func(t *testing.T) {
		other := makeTestTransaction(account.ID, 10, "-16.000")
		result, err := store.InsertTransactionIfAbsent(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, service.InsertCreated, result)
	})

	t.Run("rejects invalid transaction", func(t *testing.T) {
		bad := makeTestTransaction(account.ID, 11, "-1.000")
		bad.Currency = ""
		_, err := store.InsertTransactionIfAbsent(ctx, bad)
		assert.Error(t, err)
	})
}

func TestFingerprintExists(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	account := createTestAccount(t, store)

	txn := makeTestTransaction(account.ID, 10, "-15.000")
	_, err := store.InsertTransactionIfAbsent(ctx, txn)
	require.NoError(t, err)

	window := 48 * time.Hour

	exists, err := store.FingerprintExists(ctx, account.ID, txn.Fingerprint, txn.ValueDate, window)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.FingerprintExists(ctx, account.ID, txn.Fingerprint, txn.ValueDate.AddDate(0, 0, 1), window)
	require.NoError(t, err)
	assert.True(t, exists, "one day of date jitter stays inside the window")

	exists, err = store.FingerprintExists(ctx, account.ID, txn.Fingerprint, txn.ValueDate.AddDate(0, 0, 10), window)
	require.NoError(t, err)
	assert.False(t, exists, "far outside the window")

	exists, err = store.FingerprintExists(ctx, account.ID, "deadbeef", txn.ValueDate, window)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListTransactionsByAccount(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	account := createTestAccount(t, store)

	for day, amount := range map[int]string{5: "-10.000", 10: "-15.000", 15: "200.000"} {
		txn := makeTestTransaction(account.ID, day, amount)
		if amount == "200.000" {
			txn.Type = model.TypeIncome
			txn.Counterparty = "Salary for 6 202"
			txn.Narration = "SALARY Salary for 6 202"
			txn.Fingerprint = txn.GenerateFingerprint()
		}
		_, err := store.InsertTransactionIfAbsent(ctx, txn)
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, 15, txns[0].ValueDate.Day())
		assert.Equal(t, 5, txns[2].ValueDate.Day())
	})

	t.Run("date range", func(t *testing.T) {
		from := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{DateFrom: &from, DateTo: &to})
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, 10, txns[0].ValueDate.Day())
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		from := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
		_, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{DateFrom: &from, DateTo: &to})
		assert.ErrorIs(t, err, ErrInvalidDateRange)
	})

	t.Run("type filter", func(t *testing.T) {
		income := model.TypeIncome
		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{Type: &income})
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, model.TypeIncome, txns[0].Type)
	})

	t.Run("text search", func(t *testing.T) {
		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{Search: "Salary"})
		require.NoError(t, err)
		require.Len(t, txns, 1)
	})

	t.Run("limit and offset", func(t *testing.T) {
		txns, err := store.ListTransactionsByAccount(ctx, account.ID, service.TransactionFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, 10, txns[0].ValueDate.Day())
	})

	t.Run("replay order is ascending", func(t *testing.T) {
		txns, err := store.ListTransactionsForReplay(ctx, account.ID)
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, 5, txns[0].ValueDate.Day())
		assert.Equal(t, 15, txns[2].ValueDate.Day())
	})
}

func TestUpdateTransactionCategory(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	account := createTestAccount(t, store)

	txn := makeTestTransaction(account.ID, 10, "-15.000")
	_, err := store.InsertTransactionIfAbsent(ctx, txn)
	require.NoError(t, err)

	t.Run("auto assignment", func(t *testing.T) {
		require.NoError(t, store.UpdateTransactionCategory(ctx, txn.ID, "Groceries", model.CategoryAuto))
		got, err := store.GetTransactionByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "Groceries", got.Category)
		assert.Equal(t, model.CategoryAuto, got.CategorySource)
	})

	t.Run("manual assignment", func(t *testing.T) {
		require.NoError(t, store.UpdateTransactionCategory(ctx, txn.ID, "Dining", model.CategoryManual))
		got, err := store.GetTransactionByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dining", got.Category)
		assert.Equal(t, model.CategoryManual, got.CategorySource)
	})

	t.Run("auto never clobbers manual", func(t *testing.T) {
		require.NoError(t, store.UpdateTransactionCategory(ctx, txn.ID, "Groceries", model.CategoryAuto))
		got, err := store.GetTransactionByID(ctx, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dining", got.Category)
		assert.Equal(t, model.CategoryManual, got.CategorySource)
	})

	t.Run("manual on missing transaction", func(t *testing.T) {
		err := store.UpdateTransactionCategory(ctx, "nope", "Dining", model.CategoryManual)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()
	account := createTestAccount(t, store)

	txn := makeTestTransaction(account.ID, 10, "-15.000")
	_, err := store.InsertTransactionIfAbsent(ctx, txn)
	require.NoError(t, err)

	require.NoError(t, store.DeleteTransaction(ctx, txn.ID))
	_, err = store.GetTransactionByID(ctx, txn.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.DeleteTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCategoriesAndRules(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	t.Run("seeded taxonomy present", func(t *testing.T) {
		categories, err := store.ListCategories(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, categories)

		uncat, err := store.GetCategoryByName(ctx, model.UncategorizedName)
		require.NoError(t, err)
		assert.True(t, uncat.IsActive)
	})

	t.Run("create and fetch", func(t *testing.T) {
		cat, err := store.CreateCategory(ctx, "Travel", "Flights and hotels", model.CategoryTypeExpense)
		require.NoError(t, err)
		assert.NotZero(t, cat.ID)

		got, err := store.GetCategoryByName(ctx, "Travel")
		require.NoError(t, err)
		assert.Equal(t, model.CategoryTypeExpense, got.Type)
	})

	t.Run("uncategorized fallback exists for every type", func(t *testing.T) {
		categories, err := store.ListCategories(ctx)
		require.NoError(t, err)

		types := make(map[model.CategoryType]bool)
		for _, c := range categories {
			if c.Name == model.UncategorizedName {
				types[c.Type] = true
			}
		}
		assert.True(t, types[model.CategoryTypeIncome])
		assert.True(t, types[model.CategoryTypeExpense])
		assert.True(t, types[model.CategoryTypeTransfer])
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := store.CreateCategory(ctx, "Travel", "", model.CategoryTypeExpense)
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)
	})

	t.Run("same name allowed for a different type", func(t *testing.T) {
		_, err := store.CreateCategory(ctx, "Travel", "Reimbursed trips", model.CategoryTypeIncome)
		require.NoError(t, err)
	})

	t.Run("rules ordered by priority", func(t *testing.T) {
		rule := &model.MappingRule{
			Pattern:  "OMAN AIR",
			Category: "Travel",
			Kind:     model.MatchSubstring,
			Priority: 500,
			IsActive: true,
		}
		require.NoError(t, store.CreateMappingRule(ctx, rule))
		assert.NotZero(t, rule.ID)

		rules, err := store.ListMappingRules(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, rules)
		assert.Equal(t, "OMAN AIR", rules[0].Pattern)
	})

	t.Run("rule with unknown category rejected", func(t *testing.T) {
		rule := &model.MappingRule{
			Pattern:  "X",
			Category: "Nope",
			Kind:     model.MatchPrefix,
			Priority: 1,
			IsActive: true,
		}
		err := store.CreateMappingRule(ctx, rule)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
