// Package bank holds immutable reference data about known banks and
// identifies which bank produced a given notification or statement.
package bank

import (
	"strings"

	"github.com/muscatlabs/bankfeed/internal/model"
)

// Registry resolves senders, subjects and statement layouts to bank
// configurations. The configured set is fixed at construction.
type Registry struct {
	banks []model.BankConfig
}

// NewRegistry creates a registry seeded with the built-in bank set.
func NewRegistry() *Registry {
	return &Registry{banks: builtinBanks()}
}

// NewRegistryWith creates a registry from an explicit configuration set.
// Used by tests and by config-file overrides.
func NewRegistryWith(banks []model.BankConfig) *Registry {
	return &Registry{banks: banks}
}

// Banks returns the configured banks, excluding the generic fallback.
func (r *Registry) Banks() []model.BankConfig {
	out := make([]model.BankConfig, 0, len(r.banks))
	for _, b := range r.banks {
		if !b.IsGeneric() {
			out = append(out, b)
		}
	}
	return out
}

// Generic returns the degraded fallback configuration. Items handled under
// it keep their raw narration as counterparty and carry no bank identity.
func (r *Registry) Generic() model.BankConfig {
	for _, b := range r.banks {
		if b.IsGeneric() {
			return b
		}
	}
	return model.BankConfig{Name: "Unknown", RuleSet: model.GenericRuleSet}
}

// IdentifySender matches an email sender address against the known banks.
// Matching is case-insensitive on the address part; a display name wrapper
// like "Bank Muscat <alerts@bankmuscat.com>" is tolerated.
func (r *Registry) IdentifySender(from string) (model.BankConfig, bool) {
	addr := strings.ToLower(strings.TrimSpace(from))
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	for _, b := range r.banks {
		for _, sender := range b.SenderAddresses {
			if addr == strings.ToLower(sender) {
				return b, true
			}
		}
	}
	return r.Generic(), false
}

// IdentifySubject reports whether a subject line looks like a transaction
// notification for the given bank.
func (r *Registry) IdentifySubject(bank model.BankConfig, subject string) bool {
	s := strings.ToLower(subject)
	for _, kw := range bank.SubjectKeywords {
		if strings.Contains(s, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// IdentifyHeader matches an ordered list of statement column names against
// the known banks' header signatures. Column comparison ignores case and
// surrounding whitespace.
func (r *Registry) IdentifyHeader(columns []string) (model.BankConfig, bool) {
	for _, b := range r.banks {
		if len(b.HeaderSignature) == 0 {
			continue
		}
		if headerMatches(b.HeaderSignature, columns) {
			return b, true
		}
	}
	return r.Generic(), false
}

func headerMatches(signature, columns []string) bool {
	if len(signature) != len(columns) {
		return false
	}
	for i, want := range signature {
		if !strings.EqualFold(strings.TrimSpace(columns[i]), want) {
			return false
		}
	}
	return true
}

func builtinBanks() []model.BankConfig {
	return []model.BankConfig{
		{
			Name:            "Bank Muscat",
			RuleSet:         "bankmuscat",
			Currency:        "OMR",
			Host:            "imap.gmail.com",
			Port:            993,
			UseSSL:          true,
			SenderAddresses: []string{"bankmuscat@bankmuscat.com", "alerts@bankmuscat.com"},
			SubjectKeywords: []string{"transaction", "alert", "notification"},
			HeaderSignature: []string{"Post Date", "Value Date", "Narration", "Debit", "Credit", "Balance"},
		},
		{
			Name:    "Unknown",
			RuleSet: model.GenericRuleSet,
		},
	}
}
