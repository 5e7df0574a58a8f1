package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
)

// CreateAccount inserts a new account record.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, number, bank_name, currency, branch, baseline, balance, balance_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, account.ID, account.Number, account.BankName, account.Currency, account.Branch,
		account.Baseline.String(), account.Balance.String(), nullableTime(account.BalanceUpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", account.Number, err)
	}
	return nil
}

// GetAccountByID retrieves an account by its identifier.
func (s *SQLiteStorage) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getAccount(ctx, "id = ?", id)
}

// GetAccountByNumber retrieves an account by its full account number.
func (s *SQLiteStorage) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(number, "number"); err != nil {
		return nil, err
	}
	return s.getAccount(ctx, "number = ?", number)
}

func (s *SQLiteStorage) getAccount(ctx context.Context, where string, arg any) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, bank_name, currency, branch, baseline, balance, balance_updated_at, created_at
		FROM accounts WHERE `+where, arg)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %v: %w", arg, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns all accounts ordered by creation time.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, bank_name, currency, branch, baseline, balance, balance_updated_at, created_at
		FROM accounts ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan account: %w", scanErr)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// SetAccountBaseline replaces the account's opening balance anchor.
// Derived balances become stale until the next reconciliation.
func (s *SQLiteStorage) SetAccountBaseline(ctx context.Context, id string, baseline decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET baseline = ? WHERE id = ?`, baseline.String(), id)
	if err != nil {
		return fmt.Errorf("failed to set baseline for account %s: %w", id, err)
	}
	return requireRowAffected(result, id)
}

// UpdateAccountBalance stores a freshly reconciled balance.
func (s *SQLiteStorage) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, balance_updated_at = ? WHERE id = ?`,
		balance.String(), at, id)
	if err != nil {
		return fmt.Errorf("failed to update balance for account %s: %w", id, err)
	}
	return requireRowAffected(result, id)
}

func requireRowAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	var account model.Account
	var baseline, balance string
	var balanceUpdatedAt sql.NullTime

	err := row.Scan(&account.ID, &account.Number, &account.BankName, &account.Currency,
		&account.Branch, &baseline, &balance, &balanceUpdatedAt, &account.CreatedAt)
	if err != nil {
		return nil, err
	}

	if account.Baseline, err = decimal.NewFromString(baseline); err != nil {
		return nil, fmt.Errorf("corrupt baseline %q: %w", baseline, err)
	}
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance %q: %w", balance, err)
	}
	if balanceUpdatedAt.Valid {
		account.BalanceUpdatedAt = balanceUpdatedAt.Time
	}
	return &account, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
