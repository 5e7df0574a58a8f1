package model

import "time"

// CategoryType indicates which transaction directions a category applies to.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for expense transactions.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeTransfer represents categories for own-account transfers.
	CategoryTypeTransfer CategoryType = "transfer"
)

// UncategorizedName is the fallback category assigned when no mapping rule
// matches a transaction.
const UncategorizedName = "Uncategorized"

// Category is a user-visible transaction grouping.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	Type        CategoryType
	ID          int
	IsActive    bool
}

// MatchKind selects how a mapping rule's pattern is compared.
type MatchKind string

const (
	// MatchSubstring matches the pattern anywhere in the text.
	MatchSubstring MatchKind = "substring"
	// MatchPrefix matches the pattern at the start of the text.
	MatchPrefix MatchKind = "prefix"
)

// MappingRule maps a counterparty or narration pattern to a category.
// Rules are evaluated in descending priority order; first match wins.
type MappingRule struct {
	CreatedAt time.Time
	Pattern   string
	Category  string
	Kind      MatchKind
	ID        int
	Priority  int
	IsActive  bool
}
