package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents one bank account owned by the user.
// Balance is derived: Baseline plus the sum of all accepted transaction
// amounts. Only the reconciler and explicit user edits mutate it.
type Account struct {
	CreatedAt        time.Time
	BalanceUpdatedAt time.Time
	ID               string
	Number           string
	BankName         string
	Currency         string
	Branch           string
	Baseline         decimal.Decimal
	Balance          decimal.Decimal
}

// MatchesNumber reports whether a possibly-masked account number from a
// notification (e.g. "xxxx0027") refers to this account. Banks mask all but
// the trailing digits, so a suffix match on the unmasked portion suffices.
func (a *Account) MatchesNumber(number string) bool {
	n := strings.TrimSpace(strings.ToLower(number))
	if n == "" {
		return false
	}
	own := strings.ToLower(a.Number)
	if n == own {
		return true
	}
	tail := strings.TrimLeft(n, "x*")
	if tail == "" {
		return false
	}
	return strings.HasSuffix(own, tail)
}
