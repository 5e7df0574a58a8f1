// Package narration extracts structured fields from raw bank narration text.
//
// A narration line like "POS 685694-SHARARAH MART AL M POS251610D175XM3X"
// carries a counterparty and a bank-assigned reference id in a bank-specific
// layout. Each bank's layouts are expressed as an ordered list of rules; the
// first rule that recognizes the text wins. Every rule is pure and total: it
// either produces a result or declines, it never fails.
package narration

import (
	"regexp"
	"strings"
)

// Parsed is the structured result of parsing one narration line.
type Parsed struct {
	Counterparty string
	Reference    string // bank-assigned id; empty when the layout carries none
	Details      string // normalized full narration text
}

// Rule recognizes one narration layout. Match reports false to pass the
// text to the next rule.
type Rule struct {
	Match func(text string) (Parsed, bool)
	Name  string
}

// Parser applies an ordered rule list to narration text.
type Parser struct {
	rules []Rule
}

// NewParser builds a parser from an explicit rule list.
func NewParser(rules []Rule) *Parser {
	return &Parser{rules: rules}
}

// ForRuleSet returns the parser for a bank's rule set key. Unknown keys get
// the generic parser, which keeps the whole narration as the counterparty.
func ForRuleSet(key string) *Parser {
	switch key {
	case "bankmuscat":
		return NewParser(bankMuscatRules())
	default:
		return NewParser(nil)
	}
}

// Parse runs the rules in order and returns the first match. When no rule
// recognizes the text, the whole normalized narration becomes the
// counterparty so nothing is silently dropped.
func (p *Parser) Parse(narration string) Parsed {
	text := strings.Join(strings.Fields(narration), " ")
	for _, rule := range p.rules {
		if parsed, ok := rule.Match(text); ok {
			return parsed
		}
	}
	return Parsed{Counterparty: text, Details: text}
}

var (
	posRe         = regexp.MustCompile(`(?i)^POS\s+\d+-([A-Z0-9\s\-.,@]+?)(?:\s+(POS\d+[A-Z0-9]+))?$`)
	walletRe      = regexp.MustCompile(`(?i)^Wallet\s+Trx(?:\s+(?:Cr|Dr))?\s+([A-Z0-9]+)\s+([A-Z][A-Z0-9\s\-]*?)(?:\s+[FL]T\d+)?$`)
	easyDepositRe = regexp.MustCompile(`(?i)^Easy\s+Deposit\s+([A-Z0-9]+)\s+\d{2}:\d{2}:\d{2}\s+([A-Z][A-Z\s]*[A-Z])\s+[A-Z0-9]+$`)
	salaryRe      = regexp.MustCompile(`(?i)^SALARY\s+(.*?)\s+SALARY\s+([\d.]+)$`)
	transferRe    = regexp.MustCompile(`(?i)^Transfer\s+(.*?)(?:\s+([A-Z0-9]{10,}))?$`)
)

// bankMuscatRules covers the narration layouts seen in Bank Muscat
// statements and alert emails. Order matters: the more specific card and
// wallet layouts run before the broad transfer rule.
func bankMuscatRules() []Rule {
	return []Rule{
		{
			// "POS 685694-SHARARAH MART AL M POS251610D175XM3X"
			Name: "pos",
			Match: func(text string) (Parsed, bool) {
				m := posRe.FindStringSubmatch(text)
				if m == nil {
					return Parsed{}, false
				}
				return Parsed{
					Counterparty: strings.TrimSpace(m[1]),
					Reference:    m[2],
					Details:      text,
				}, true
			},
		},
		{
			// "Wallet Trx BMCT010484967766 AHMED NASSER ... FT25161622715487"
			// The leading wallet code identifies the event; the trailing FT
			// code is the counterparty bank's and is not stable.
			Name: "wallet",
			Match: func(text string) (Parsed, bool) {
				m := walletRe.FindStringSubmatch(text)
				if m == nil {
					return Parsed{}, false
				}
				return Parsed{
					Counterparty: strings.TrimSpace(m[2]),
					Reference:    m[1],
					Details:      text,
				}, true
			},
		},
		{
			// "Easy Deposit CDM12478415 13:38:31 ABDULMAJEED CDM251660294YXKKS"
			Name: "easy-deposit",
			Match: func(text string) (Parsed, bool) {
				m := easyDepositRe.FindStringSubmatch(text)
				if m == nil {
					return Parsed{}, false
				}
				return Parsed{
					Counterparty: strings.TrimSpace(m[2]),
					Reference:    m[1],
					Details:      text,
				}, true
			},
		},
		{
			// "SALARY Salary for 6 202 SALARY 209948320732336.050001"
			Name: "salary",
			Match: func(text string) (Parsed, bool) {
				m := salaryRe.FindStringSubmatch(text)
				if m == nil {
					return Parsed{}, false
				}
				return Parsed{
					Counterparty: strings.TrimSpace(m[1]),
					Reference:    m[2],
					Details:      text,
				}, true
			},
		},
		{
			// "Transfer Lunch for new couples ... AL HADHRAMI LF"
			// Free text after the keyword is the counterparty; a trailing
			// long alphanumeric token, when present, is a reference id.
			Name: "transfer",
			Match: func(text string) (Parsed, bool) {
				m := transferRe.FindStringSubmatch(text)
				if m == nil || strings.TrimSpace(m[1]) == "" {
					return Parsed{}, false
				}
				return Parsed{
					Counterparty: strings.TrimSpace(m[1]),
					Reference:    m[2],
					Details:      text,
				}, true
			},
		},
	}
}
