package category

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/muscatlabs/bankfeed/internal/model"
)

func testRules() []model.MappingRule {
	return []model.MappingRule{
		{Pattern: "SALARY", Category: "Salary", Kind: model.MatchPrefix, Priority: 100, IsActive: true},
		{Pattern: "LULU", Category: "Groceries", Kind: model.MatchSubstring, Priority: 50, IsActive: true},
		{Pattern: "MART", Category: "Groceries", Kind: model.MatchSubstring, Priority: 40, IsActive: true},
		{Pattern: "MART", Category: "Shopping", Kind: model.MatchSubstring, Priority: 10, IsActive: true},
		{Pattern: "CDM", Category: "Cash", Kind: model.MatchPrefix, Priority: 60, IsActive: true},
		{Pattern: "FEE", Category: "Fees", Kind: model.MatchSubstring, Priority: 30, IsActive: false},
	}
}

func TestMatch(t *testing.T) {
	m := NewMatcher(testRules())

	tests := []struct {
		name         string
		counterparty string
		narration    string
		want         string
	}{
		{
			name:         "substring on counterparty",
			counterparty: "SHARARAH MART AL M",
			narration:    "POS 685694-SHARARAH MART AL M POS251610D175XM3X",
			want:         "Groceries",
		},
		{
			name:         "case insensitive",
			counterparty: "Lulu Hypermarket",
			want:         "Groceries",
		},
		{
			name:         "prefix matches only at the start",
			counterparty: "Salary for 6 202",
			narration:    "SALARY Salary for 6 202",
			want:         "Salary",
		},
		{
			name:         "prefix does not match mid-string on either field",
			counterparty: "MY CDM",
			narration:    "NOT A CASH ROW MY CDM",
			want:         model.UncategorizedName,
		},
		{
			name:         "narration checked when counterparty misses",
			counterparty: "SOMEONE",
			narration:    "payment at LULU branch",
			want:         "Groceries",
		},
		{
			name:         "first match wins across equal patterns",
			counterparty: "SHARARAH MART",
			want:         "Groceries",
		},
		{
			name:         "inactive rules never match",
			counterparty: "SERVICE FEE",
			want:         model.UncategorizedName,
		},
		{
			name: "empty transaction",
			want: model.UncategorizedName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := &model.Transaction{Counterparty: tt.counterparty, Narration: tt.narration}
			assert.Equal(t, tt.want, m.Match(txn))
		})
	}
}

func TestMatchNoRules(t *testing.T) {
	m := NewMatcher(nil)
	txn := &model.Transaction{Counterparty: "ANYONE"}
	assert.Equal(t, model.UncategorizedName, m.Match(txn))
}
