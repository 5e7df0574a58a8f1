// Package category assigns categories to transactions with ordered
// mapping rules.
package category

import (
	"strings"

	"github.com/muscatlabs/bankfeed/internal/model"
)

// Matcher evaluates mapping rules against a transaction's counterparty and
// narration. Rules are held in matching order (priority descending); the
// first match wins. A Matcher is immutable once built.
type Matcher struct {
	rules []model.MappingRule
}

// NewMatcher creates a matcher over an ordered rule list. Inactive rules
// are dropped up front.
func NewMatcher(rules []model.MappingRule) *Matcher {
	active := make([]model.MappingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return &Matcher{rules: active}
}

// Match returns the category for a transaction. The counterparty is
// checked before the narration; comparison is case-insensitive. When no
// rule matches, the result is the Uncategorized default.
func (m *Matcher) Match(txn *model.Transaction) string {
	counterparty := strings.ToLower(txn.Counterparty)
	narrationText := strings.ToLower(txn.Narration)

	for _, rule := range m.rules {
		pattern := strings.ToLower(rule.Pattern)
		if pattern == "" {
			continue
		}
		if matches(rule.Kind, counterparty, pattern) || matches(rule.Kind, narrationText, pattern) {
			return rule.Category
		}
	}
	return model.UncategorizedName
}

func matches(kind model.MatchKind, text, pattern string) bool {
	switch kind {
	case model.MatchPrefix:
		return strings.HasPrefix(text, pattern)
	default:
		return strings.Contains(text, pattern)
	}
}
