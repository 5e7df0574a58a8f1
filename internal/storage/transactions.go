package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/service"
)

// InsertTransactionIfAbsent writes a transaction unless one with the same
// (account, fingerprint) pair already exists. The unique index makes this
// safe under concurrent ingestion of the same notification.
func (s *SQLiteStorage) InsertTransactionIfAbsent(ctx context.Context, txn *model.Transaction) (service.InsertResult, error) {
	if err := validateContext(ctx); err != nil {
		return service.InsertDuplicate, err
	}
	if txn != nil && txn.Fingerprint == "" {
		txn.Fingerprint = txn.GenerateFingerprint()
	}
	if err := validateTransaction(txn); err != nil {
		return service.InsertDuplicate, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, account_id, fingerprint, value_date, post_date, narration,
			counterparty, reference, amount, currency, type, source,
			category, category_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, fingerprint) DO NOTHING
	`, txn.ID, txn.AccountID, txn.Fingerprint, txn.ValueDate, nullableTime(txn.PostDate),
		txn.Narration, txn.Counterparty, txn.Reference, txn.Amount.String(), txn.Currency,
		string(txn.Type), string(txn.Source), txn.Category, string(txn.CategorySource))
	if err != nil {
		return service.InsertDuplicate, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return service.InsertDuplicate, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return service.InsertDuplicate, nil
	}
	return service.InsertCreated, nil
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListTransactionsByAccount returns an account's transactions ordered by
// value date descending, newest first, honoring the filter.
func (s *SQLiteStorage) ListTransactionsByAccount(ctx context.Context, accountID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateFrom.After(*filter.DateTo) {
		return nil, ErrInvalidDateRange
	}

	query := transactionSelect + ` WHERE account_id = ?`
	args := []any{accountID}

	if filter.DateFrom != nil {
		query += ` AND value_date >= ?`
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query += ` AND value_date <= ?`
		args = append(args, *filter.DateTo)
	}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*filter.Type))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query += ` AND (counterparty LIKE ? OR narration LIKE ? OR amount LIKE ?)`
		like := "%" + search + "%"
		args = append(args, like, like, like)
	}

	query += ` ORDER BY value_date DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// ListTransactionsForReplay returns every transaction of an account in
// replay order: value date ascending, insertion order as tiebreaker.
func (s *SQLiteStorage) ListTransactionsForReplay(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		transactionSelect+` WHERE account_id = ? ORDER BY value_date ASC, created_at ASC, id ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

// FingerprintExists reports whether the account already holds a transaction
// with this fingerprint whose value date falls within the window around the
// given date. The window absorbs value/post date jitter between an email
// alert and the matching statement row.
func (s *SQLiteStorage) FingerprintExists(ctx context.Context, accountID, fingerprint string, around time.Time, window time.Duration) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return false, err
	}
	if err := validateString(fingerprint, "fingerprint"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = ? AND fingerprint = ? AND value_date BETWEEN ? AND ?
	`, accountID, fingerprint, around.Add(-window), around.Add(window)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return count > 0, nil
}

// UpdateTransactionCategory sets a transaction's category. A MANUAL
// assignment is never replaced by an AUTO one.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, id, category string, source model.CategorySource) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	query := `UPDATE transactions SET category = ?, category_source = ? WHERE id = ?`
	if source == model.CategoryAuto {
		query += ` AND category_source != 'MANUAL'`
	}

	result, err := s.db.ExecContext(ctx, query, category, string(source), id)
	if err != nil {
		return fmt.Errorf("failed to update category for transaction %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 && source == model.CategoryManual {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a transaction permanently.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

const transactionSelect = `
	SELECT id, account_id, fingerprint, value_date, post_date, narration,
		counterparty, reference, amount, currency, type, source,
		category, category_source, created_at
	FROM transactions`

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount, txnType, source, categorySource string
	var postDate sql.NullTime

	err := row.Scan(&txn.ID, &txn.AccountID, &txn.Fingerprint, &txn.ValueDate, &postDate,
		&txn.Narration, &txn.Counterparty, &txn.Reference, &amount, &txn.Currency,
		&txnType, &source, &txn.Category, &categorySource, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	if postDate.Valid {
		txn.PostDate = postDate.Time
	}
	txn.Type = model.TransactionType(txnType)
	txn.Source = model.TransactionSource(source)
	txn.CategorySource = model.CategorySource(categorySource)
	return &txn, nil
}
