package narration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBankMuscatParse(t *testing.T) {
	p := ForRuleSet("bankmuscat")

	tests := []struct {
		name             string
		narration        string
		wantCounterparty string
		wantReference    string
	}{
		{
			name:             "pos purchase",
			narration:        "POS 685694-SHARARAH MART AL M POS251610D175XM3X",
			wantCounterparty: "SHARARAH MART AL M",
			wantReference:    "POS251610D175XM3X",
		},
		{
			name:             "pos without trailing reference",
			narration:        "POS 685694-LULU HYPERMARKET",
			wantCounterparty: "LULU HYPERMARKET",
			wantReference:    "",
		},
		{
			name:             "wallet transfer keeps the wallet code as reference",
			narration:        "Wallet Trx BMCT010484967766 AHMED NASSER KHALF AL MUFARGI FT25161622715487",
			wantCounterparty: "AHMED NASSER KHALF AL MUFARGI",
			wantReference:    "BMCT010484967766",
		},
		{
			name:             "wallet credit marker",
			narration:        "Wallet Trx Cr BMCT010484967766 AHMED NASSER KHALF AL MUFARGI FT25161622715487",
			wantCounterparty: "AHMED NASSER KHALF AL MUFARGI",
			wantReference:    "BMCT010484967766",
		},
		{
			name:             "easy deposit keeps the device id as reference",
			narration:        "Easy Deposit CDM12478415 13:38:31 ABDULMAJEED CDM251660294YXKKS",
			wantCounterparty: "ABDULMAJEED",
			wantReference:    "CDM12478415",
		},
		{
			name:             "salary",
			narration:        "SALARY Salary for 6 202 SALARY 209948320732336.050001",
			wantCounterparty: "Salary for 6 202",
			wantReference:    "209948320732336.050001",
		},
		{
			name:             "transfer with short trailing word",
			narration:        "Transfer Lunch for new couples and light fix IMAN MOHAMMED KHASIB AL HADHRAMI LF",
			wantCounterparty: "Lunch for new couples and light fix IMAN MOHAMMED KHASIB AL HADHRAMI LF",
			wantReference:    "",
		},
		{
			name:             "transfer with trailing reference token",
			narration:        "Transfer SAID AL BALUSHI FT25161622715487",
			wantCounterparty: "SAID AL BALUSHI",
			wantReference:    "FT25161622715487",
		},
		{
			name:             "unrecognized layout keeps whole narration",
			narration:        "CHQ CLEARING 000123",
			wantCounterparty: "CHQ CLEARING 000123",
			wantReference:    "",
		},
		{
			name:             "whitespace is normalized",
			narration:        "  POS  685694-SHARARAH   MART AL M   POS251610D175XM3X ",
			wantCounterparty: "SHARARAH MART AL M",
			wantReference:    "POS251610D175XM3X",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := p.Parse(tt.narration)
			assert.Equal(t, tt.wantCounterparty, parsed.Counterparty)
			assert.Equal(t, tt.wantReference, parsed.Reference)
			assert.NotEmpty(t, parsed.Details)
		})
	}
}

func TestParseIsTotal(t *testing.T) {
	p := ForRuleSet("bankmuscat")

	// Parsing never fails, whatever the input.
	for _, narration := range []string{"", "   ", "POS", "Transfer", "Wallet Trx", "???!!!"} {
		parsed := p.Parse(narration)
		assert.Equal(t, parsed.Details, parsed.Counterparty)
	}
}

func TestGenericRuleSet(t *testing.T) {
	p := ForRuleSet("generic")
	parsed := p.Parse("POS 685694-SHARARAH MART AL M POS251610D175XM3X")
	assert.Equal(t, "POS 685694-SHARARAH MART AL M POS251610D175XM3X", parsed.Counterparty)
	assert.Empty(t, parsed.Reference)
}
