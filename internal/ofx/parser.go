// Package ofx parses OFX/QFX exports into statement entries for ingestion.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// Entry is one transaction from an OFX statement, signed the OFX way:
// negative amounts are debits.
type Entry struct {
	Posted        time.Time
	AccountNumber string
	Name          string
	Memo          string
	RefNum        string
	Currency      string
	TrnType       string
	Amount        decimal.Decimal
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes common formatting issues in OFX files: leading blank
// lines, mixed-case SEVERITY values, and SGML tags missing their closing
// bracket.
func (p *Parser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseFile parses an OFX/QFX file and returns its entries.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]Entry, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var entries []Entry
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := stmt.CurDef.String()
		for _, ofxTx := range stmt.BankTranList.Transactions {
			entries = append(entries, p.convert(ofxTx, string(stmt.BankAcctFrom.AcctID), currency))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := stmt.CurDef.String()
		for _, ofxTx := range stmt.BankTranList.Transactions {
			entries = append(entries, p.convert(ofxTx, string(stmt.CCAcctFrom.AcctID), currency))
		}
	}

	slog.Info("Parsed OFX file", "entries", len(entries))
	return entries, nil
}

func (p *Parser) convert(ofxTx ofxgo.Transaction, accountNumber, currency string) Entry {
	name := string(ofxTx.Name)
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		name = string(ofxTx.Payee.Name)
	}

	return Entry{
		Posted:        ofxTx.DtPosted.Time,
		AccountNumber: accountNumber,
		Name:          strings.TrimSpace(name),
		Memo:          strings.TrimSpace(string(ofxTx.Memo)),
		RefNum:        string(ofxTx.FiTID),
		Currency:      currency,
		TrnType:       ofxTx.TrnType.String(),
		Amount:        decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 3),
	}
}
