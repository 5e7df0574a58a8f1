package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/muscatlabs/bankfeed/internal/model"
)

func TestIdentifySender(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name     string
		from     string
		wantBank string
		wantOK   bool
	}{
		{
			name:     "plain address",
			from:     "bankmuscat@bankmuscat.com",
			wantBank: "Bank Muscat",
			wantOK:   true,
		},
		{
			name:     "mixed case with display name",
			from:     "Bank Muscat <Alerts@BankMuscat.com>",
			wantBank: "Bank Muscat",
			wantOK:   true,
		},
		{
			name:     "unknown sender falls back to generic",
			from:     "offers@somestore.com",
			wantBank: "Unknown",
			wantOK:   false,
		},
		{
			name:     "empty sender",
			from:     "",
			wantBank: "Unknown",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, ok := r.IdentifySender(tt.from)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantBank, cfg.Name)
			if !ok {
				assert.True(t, cfg.IsGeneric())
			}
		})
	}
}

func TestIdentifySubject(t *testing.T) {
	r := NewRegistry()
	muscat, ok := r.IdentifySender("bankmuscat@bankmuscat.com")
	assert.True(t, ok)

	assert.True(t, r.IdentifySubject(muscat, "Transaction Alert from Bank Muscat"))
	assert.True(t, r.IdentifySubject(muscat, "mBanking NOTIFICATION"))
	assert.False(t, r.IdentifySubject(muscat, "Your monthly newsletter"))
}

func TestIdentifyHeader(t *testing.T) {
	r := NewRegistry()

	t.Run("exact signature", func(t *testing.T) {
		cfg, ok := r.IdentifyHeader([]string{"Post Date", "Value Date", "Narration", "Debit", "Credit", "Balance"})
		assert.True(t, ok)
		assert.Equal(t, "Bank Muscat", cfg.Name)
	})

	t.Run("case and whitespace tolerated", func(t *testing.T) {
		cfg, ok := r.IdentifyHeader([]string{" post date ", "VALUE DATE", "Narration", "debit", "Credit", "balance "})
		assert.True(t, ok)
		assert.Equal(t, "Bank Muscat", cfg.Name)
	})

	t.Run("wrong column order is not a match", func(t *testing.T) {
		_, ok := r.IdentifyHeader([]string{"Value Date", "Post Date", "Narration", "Debit", "Credit", "Balance"})
		assert.False(t, ok)
	})

	t.Run("unknown layout falls back to generic", func(t *testing.T) {
		cfg, ok := r.IdentifyHeader([]string{"Date", "Description", "Amount"})
		assert.False(t, ok)
		assert.True(t, cfg.IsGeneric())
	})
}

func TestBanksExcludesGeneric(t *testing.T) {
	r := NewRegistry()
	for _, b := range r.Banks() {
		assert.NotEqual(t, model.GenericRuleSet, b.RuleSet)
	}
	generic := r.Generic()
	assert.True(t, generic.IsGeneric())
}
