// Package normalize builds canonical transactions from raw parsed inputs.
package normalize

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/email"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/narration"
	"github.com/muscatlabs/bankfeed/internal/ofx"
	"github.com/muscatlabs/bankfeed/internal/statement"
)

// Normalizer converts statement rows, email alerts and OFX entries into
// canonical transactions: signed decimal amount, type, counterparty,
// reference and fingerprint. Stateless and safe to use from multiple
// goroutines.
type Normalizer struct {
	// transferPatterns re-label a transaction as TRANSFER when one of
	// these case-insensitive substrings appears in the counterparty or
	// narration, e.g. the user's own other account number.
	transferPatterns []string
}

// New creates a Normalizer with the given transfer override patterns.
func New(transferPatterns ...string) *Normalizer {
	return &Normalizer{transferPatterns: transferPatterns}
}

// FromStatementRow builds a transaction from one extracted statement row.
// Exactly one of the debit and credit cells must carry a non-zero amount.
func (n *Normalizer) FromStatementRow(account *model.Account, cfg model.BankConfig, currency string, row statement.Row) (*model.Transaction, error) {
	debit, err := parseOptionalAmount(row.Debit)
	if err != nil {
		return nil, fmt.Errorf("debit cell %q: %w", row.Debit, common.ErrUnparseableAmount)
	}
	credit, err := parseOptionalAmount(row.Credit)
	if err != nil {
		return nil, fmt.Errorf("credit cell %q: %w", row.Credit, common.ErrUnparseableAmount)
	}

	var txnType model.TransactionType
	var magnitude decimal.Decimal
	switch {
	case debit != nil && credit != nil:
		return nil, fmt.Errorf("debit %s and credit %s: %w", row.Debit, row.Credit, common.ErrAmbiguousRow)
	case debit != nil:
		txnType, magnitude = model.TypeExpense, *debit
	case credit != nil:
		txnType, magnitude = model.TypeIncome, *credit
	default:
		return nil, fmt.Errorf("row has no amount: %w", common.ErrUnparseableAmount)
	}
	if row.ValueDate.IsZero() {
		return nil, fmt.Errorf("row has no value date: %w", common.ErrUnparseableDate)
	}

	txn := &model.Transaction{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		ValueDate: row.ValueDate,
		PostDate:  row.PostDate,
		Narration: row.Narration,
		Currency:  pickCurrency(currency, cfg, account),
		Type:      txnType,
		Source:    model.SourceStatement,
	}
	n.finish(txn, cfg, magnitude)
	return txn, nil
}

// FromAlert builds a transaction from a parsed bank alert email.
func (n *Normalizer) FromAlert(account *model.Account, cfg model.BankConfig, alert *email.Alert) (*model.Transaction, error) {
	var txnType model.TransactionType
	switch alert.Direction {
	case "income":
		txnType = model.TypeIncome
	case "expense":
		txnType = model.TypeExpense
	default:
		return nil, fmt.Errorf("alert direction unknown: %w", common.ErrUnparseableAmount)
	}
	if alert.Amount.IsZero() {
		return nil, fmt.Errorf("alert has zero amount: %w", common.ErrUnparseableAmount)
	}

	narrationText := alert.Description
	if narrationText == "" {
		narrationText = alert.Counterparty
	}

	txn := &model.Transaction{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		ValueDate: alert.ValueDate,
		Narration: narrationText,
		Currency:  pickCurrency(alert.Currency, cfg, account),
		Type:      txnType,
		Source:    model.SourceEmail,
	}
	n.finish(txn, cfg, alert.Amount)

	// The email parser already isolated the counterparty; prefer it over
	// re-deriving from the shorter narration.
	if alert.Counterparty != "" {
		txn.Counterparty = alert.Counterparty
	}
	if alert.Reference != "" {
		txn.Reference = alert.Reference
	}
	return txn, nil
}

// FromOFXEntry builds a transaction from an OFX statement entry. OFX signs
// amounts already: negative is a debit.
func (n *Normalizer) FromOFXEntry(account *model.Account, cfg model.BankConfig, entry ofx.Entry) (*model.Transaction, error) {
	if entry.Amount.IsZero() {
		return nil, fmt.Errorf("ofx entry has zero amount: %w", common.ErrUnparseableAmount)
	}
	if entry.Posted.IsZero() {
		return nil, fmt.Errorf("ofx entry has no posted date: %w", common.ErrUnparseableDate)
	}

	txnType := model.TypeIncome
	if entry.Amount.IsNegative() {
		txnType = model.TypeExpense
	}

	narrationText := entry.Name
	if entry.Memo != "" {
		narrationText = strings.TrimSpace(narrationText + " " + entry.Memo)
	}

	txn := &model.Transaction{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		ValueDate: entry.Posted,
		Narration: narrationText,
		Currency:  pickCurrency(entry.Currency, cfg, account),
		Type:      txnType,
		Source:    model.SourceOFX,
	}
	n.finish(txn, cfg, entry.Amount)
	if entry.RefNum != "" {
		txn.Reference = entry.RefNum
	}
	return txn, nil
}

// finish fills the derived fields shared by all sources: parsed
// counterparty and reference, the signed amount, the transfer override and
// the fingerprint. The amount is signed from the source-derived direction
// before the transfer re-label so a transfer debit stays negative.
func (n *Normalizer) finish(txn *model.Transaction, cfg model.BankConfig, magnitude decimal.Decimal) {
	parsed := narration.ForRuleSet(cfg.RuleSet).Parse(txn.Narration)
	txn.Counterparty = parsed.Counterparty
	txn.Reference = parsed.Reference

	txn.Amount = model.SignedAmount(txn.Type, magnitude)
	if n.isTransfer(txn.Counterparty, txn.Narration) {
		txn.Type = model.TypeTransfer
	}
	txn.Category = model.UncategorizedName
	txn.CategorySource = model.CategoryAuto
	txn.Fingerprint = txn.GenerateFingerprint()
}

func (n *Normalizer) isTransfer(counterparty, narrationText string) bool {
	for _, p := range n.transferPatterns {
		if p == "" {
			continue
		}
		lp := strings.ToLower(p)
		if strings.Contains(strings.ToLower(counterparty), lp) ||
			strings.Contains(strings.ToLower(narrationText), lp) {
			return true
		}
	}
	return false
}

// parseOptionalAmount treats an empty or zero cell as absent. A non-empty
// cell that is not a number is an error, not an absence.
func parseOptionalAmount(cell string) (*decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, nil
	}
	return &d, nil
}

func pickCurrency(explicit string, cfg model.BankConfig, account *model.Account) string {
	if explicit != "" {
		return strings.ToUpper(explicit)
	}
	if cfg.Currency != "" {
		return cfg.Currency
	}
	return account.Currency
}
