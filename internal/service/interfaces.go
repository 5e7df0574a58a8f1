// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/model"
)

// InsertResult reports the outcome of an insert-if-absent call.
type InsertResult int

const (
	// InsertCreated means a new row was written.
	InsertCreated InsertResult = iota
	// InsertDuplicate means an existing row already carried the fingerprint.
	InsertDuplicate
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Type     *model.TransactionType
	Search   string // free text over counterparty, narration, amount
	Limit    int
	Offset   int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetAccountBaseline(ctx context.Context, id string, baseline decimal.Decimal) error
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error

	// Transaction operations
	InsertTransactionIfAbsent(ctx context.Context, txn *model.Transaction) (InsertResult, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string, filter TransactionFilter) ([]model.Transaction, error)
	ListTransactionsForReplay(ctx context.Context, accountID string) ([]model.Transaction, error)
	FingerprintExists(ctx context.Context, accountID, fingerprint string, around time.Time, window time.Duration) (bool, error)
	UpdateTransactionCategory(ctx context.Context, id, category string, source model.CategorySource) error
	DeleteTransaction(ctx context.Context, id string) error

	// Category operations
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name, description string, categoryType model.CategoryType) (*model.Category, error)
	ListMappingRules(ctx context.Context) ([]model.MappingRule, error)
	CreateMappingRule(ctx context.Context, rule *model.MappingRule) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
