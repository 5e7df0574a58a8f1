// Package model defines the core domain types for the bankfeed pipeline.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the monetary direction of a transaction.
type TransactionType string

const (
	// TypeIncome represents money entering the account.
	TypeIncome TransactionType = "INCOME"
	// TypeExpense represents money leaving the account.
	TypeExpense TransactionType = "EXPENSE"
	// TypeTransfer represents movement between the user's own accounts.
	TypeTransfer TransactionType = "TRANSFER"
)

// IsValid reports whether t is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	return t == TypeIncome || t == TypeExpense || t == TypeTransfer
}

// TransactionSource records which ingestion path produced a transaction.
type TransactionSource string

const (
	// SourceEmail marks transactions parsed from bank alert emails.
	SourceEmail TransactionSource = "EMAIL"
	// SourceStatement marks transactions extracted from PDF statements.
	SourceStatement TransactionSource = "STATEMENT"
	// SourceOFX marks transactions imported from OFX/QFX files.
	SourceOFX TransactionSource = "OFX"
	// SourceManual marks transactions entered by hand.
	SourceManual TransactionSource = "MANUAL"
)

// CategorySource indicates how a transaction's category was assigned.
type CategorySource string

const (
	// CategoryAuto indicates the category came from the rule matcher.
	CategoryAuto CategorySource = "AUTO"
	// CategoryManual indicates a user-set category that re-ingestion must not clobber.
	CategoryManual CategorySource = "MANUAL"
)

// Transaction is a canonical, deduplicated record attached to one account.
// Immutable after insert except for the category fields.
type Transaction struct {
	ValueDate      time.Time
	PostDate       time.Time
	CreatedAt      time.Time
	ID             string
	AccountID      string
	Narration      string // raw narration/description text as extracted
	Counterparty   string
	Reference      string // bank-assigned id embedded in the narration; empty if none
	Category       string
	CategorySource CategorySource
	Fingerprint    string
	Currency       string
	Type           TransactionType
	Source         TransactionSource
	Amount         decimal.Decimal // signed: negative for expenses
}

// GenerateFingerprint derives the stable dedup key for this transaction.
// Two ingestions of the same underlying bank event must produce the same
// fingerprint even when the raw text differs in whitespace or case.
func (t *Transaction) GenerateFingerprint() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.AccountID,
		t.ValueDate.Format("2006-01-02"),
		t.Amount.String(),
		t.Currency,
		NormalizeNarration(t.Narration))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// NormalizeNarration collapses runs of whitespace and upper-cases the text so
// cosmetic differences between re-sent notifications do not change the
// fingerprint.
func NormalizeNarration(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// SignedAmount applies the sign implied by the transaction type: expenses
// negative, income positive. Transfers keep the sign they arrived with;
// their direction is decided before they are re-labeled.
func SignedAmount(t TransactionType, magnitude decimal.Decimal) decimal.Decimal {
	switch t {
	case TypeExpense:
		return magnitude.Abs().Neg()
	case TypeIncome:
		return magnitude.Abs()
	default:
		return magnitude
	}
}
