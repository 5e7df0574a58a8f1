// Package email parses bank alert emails into transaction candidates.
//
// Bank Muscat alerts arrive as quoted-printable HTML. The parser first
// reduces the body to plain text lines, then pulls the structured fields
// out with per-field patterns so one malformed field does not lose the
// whole alert.
package email

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/common"
)

// Alert holds the fields extracted from one bank notification email.
type Alert struct {
	ValueDate     time.Time
	AccountNumber string // masked, e.g. "xxxx0027"
	Branch        string
	Counterparty  string
	Reference     string
	Description   string
	Currency      string
	Country       string
	Direction     string // "income", "expense" or "unknown"
	Body          string // cleaned plain text
	Amount        decimal.Decimal
}

var (
	softBreakRe = regexp.MustCompile(`=\r?\n`)
	brTagRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockDropRe = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(?:style|script)>`)
	anyTagRe    = regexp.MustCompile(`(?s)<[^>]*>`)

	accountRe  = regexp.MustCompile(`(?i)(?:account\s+|Account number\s*:\s*|a/c\s+)(x+\d{4})`)
	branchRe   = regexp.MustCompile(`(?i)with\s+([\d\- ]*Br [A-Za-z ]+?)(?:\s+has\b|[.,\r\n]|$)`)
	currencyRe = regexp.MustCompile(`(?i)\s(OMR|USD|EUR|GBP|AED|SAR|QAR|KWD|BHD|JPY)\s*([\d,]+\.\d+|[\d,]+)`)
	valueRe    = regexp.MustCompile(`(?i)value date\s+(\d{2}/\d{2}/\d{2})`)
	dateTimeRe = regexp.MustCompile(`(?i)Date/Time\s*:\s*(\d{1,2})\s+([A-Z]{3})\s+(\d{2})\s+(\d{1,2}):(\d{2})`)
	txnIDRe    = regexp.MustCompile(`(?i)Txn Id\s+(\w+)`)
	countryRe  = regexp.MustCompile(`(?i)Transaction Country\s*:\s*(.+)`)
	descRe     = regexp.MustCompile(`(?i)Description\s*:\s*(.+?)(?:\s+(?:Amount|Date/Time|Transaction Country|Txn Id)\b|[\r\n]|$)`)
	leadRefRe  = regexp.MustCompile(`^[#\s]*\d{2,}\s*[-:]\s*`)
	fromToRe   = regexp.MustCompile(`(?i:from|to)\s+([A-Z][A-Z\s]+[A-Z])`)
	upperLine  = regexp.MustCompile(`^[A-Z][A-Z\s]`)
)

// incomeKeywords and expenseKeywords classify an alert by the earliest
// keyword occurrence in the body.
var (
	incomeKeywords  = []string{"credited", "received", "deposited"}
	expenseKeywords = []string{"debit", "utilised", "sent", "payment", "purchase", "withdrawal", "spent"}
)

// CleanText reduces a quoted-printable HTML email body to plain text lines.
func CleanText(raw string) string {
	text := softBreakRe.ReplaceAllString(raw, "")
	text = decodeHexEscapes(text)
	text = html.UnescapeString(text)
	text = blockDropRe.ReplaceAllString(text, "")
	text = brTagRe.ReplaceAllString(text, "\n")
	text = anyTagRe.ReplaceAllString(text, "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// decodeHexEscapes resolves quoted-printable =XX escapes to raw bytes
// before the string is read as UTF-8. Multi-byte sequences, like Arabic
// names, span several escapes, so decoding escape-by-rune would mangle
// them.
func decodeHexEscapes(s string) string {
	if !strings.Contains(s, "=") {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) && isHexUpper(s[i+1]) && isHexUpper(s[i+2]) {
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func isHexUpper(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

// ParseAlert extracts a transaction candidate from an alert email body.
// The amount is mandatory; every other field degrades gracefully. Wallet
// alerts carry no date in the body, so the message's header date is
// accepted as the fallback value date; received may be zero when the
// caller has no header date.
func ParseAlert(body string, received time.Time) (*Alert, error) {
	text := CleanText(body)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty email body: %w", common.ErrUnparseableAmount)
	}

	alert := &Alert{Body: text}

	if m := accountRe.FindStringSubmatch(text); m != nil {
		alert.AccountNumber = strings.ToLower(m[1])
	}
	if m := branchRe.FindStringSubmatch(text); m != nil {
		alert.Branch = strings.TrimSpace(m[1])
	}
	if m := txnIDRe.FindStringSubmatch(text); m != nil {
		alert.Reference = m[1]
	}
	if m := countryRe.FindStringSubmatch(text); m != nil {
		alert.Country = strings.Fields(m[1])[0]
	}
	if m := descRe.FindStringSubmatch(text); m != nil {
		alert.Description = strings.TrimSpace(m[1])
	}

	m := currencyRe.FindStringSubmatch("\n" + text)
	if m == nil {
		return nil, fmt.Errorf("no currency amount in alert: %w", common.ErrUnparseableAmount)
	}
	alert.Currency = strings.ToUpper(m[1])
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", m[2], common.ErrUnparseableAmount)
	}
	alert.Amount = amount

	date, err := parseAlertDate(text)
	if err != nil {
		if received.IsZero() {
			return nil, err
		}
		date = received
	}
	alert.ValueDate = date

	alert.Direction = classifyDirection(text)
	alert.Counterparty = extractCounterparty(text, alert.Description)

	return alert, nil
}

// parseAlertDate handles both alert date layouts: "value date 13/06/25"
// (day first) and "Date/Time : 13 MAY 25 17:20" for card transactions.
func parseAlertDate(text string) (time.Time, error) {
	if m := valueRe.FindStringSubmatch(text); m != nil {
		t, err := time.Parse("02/01/06", m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("value date %q: %w", m[1], common.ErrUnparseableDate)
		}
		return t, nil
	}
	if m := dateTimeRe.FindStringSubmatch(text); m != nil {
		month, ok := months[strings.ToUpper(m[2])]
		if !ok {
			return time.Time{}, fmt.Errorf("month %q: %w", m[2], common.ErrUnparseableDate)
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		return time.Date(2000+year, month, day, hour, minute, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("no date in alert: %w", common.ErrUnparseableDate)
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

func classifyDirection(text string) string {
	lower := strings.ToLower(text)
	best, bestIdx := "unknown", len(lower)+1

	for _, kw := range incomeKeywords {
		if i := strings.Index(lower, kw); i >= 0 && i < bestIdx {
			best, bestIdx = "income", i
		}
	}
	for _, kw := range expenseKeywords {
		if i := strings.Index(lower, kw); i >= 0 && i < bestIdx {
			best, bestIdx = "expense", i
		}
	}
	return best
}

// extractCounterparty tries the description field first, then "from/to
// NAME" phrasing, then a standalone uppercase line.
func extractCounterparty(text, description string) string {
	if description != "" {
		raw := leadRefRe.ReplaceAllString(description, "")
		parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '-' || r == ':' })
		for i := len(parts) - 1; i >= 0; i-- {
			p := strings.TrimSpace(parts[i])
			if hasLetterRun(p) {
				return trimCurrencyTail(p)
			}
		}
		if raw = strings.TrimSpace(raw); raw != "" {
			return trimCurrencyTail(raw)
		}
	}

	if m := fromToRe.FindStringSubmatch(text); m != nil {
		return cleanName(m[1])
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !upperLine.MatchString(line) {
			continue
		}
		if isBoilerplate(line) {
			continue
		}
		return cleanName(line)
	}
	return ""
}

func hasLetterRun(s string) bool {
	run := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			run++
			if run >= 2 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func trimCurrencyTail(s string) string {
	for _, cur := range []string{"OMR", "USD", "EUR", "GBP", "AED", "SAR", "QAR", "KWD", "BHD", "JPY"} {
		if i := strings.Index(s, " "+cur); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func cleanName(s string) string {
	name := strings.Join(strings.Fields(s), " ")
	if strings.HasPrefix(strings.ToUpper(name), "TRANSFER") {
		name = strings.TrimSpace(name[8:])
	}
	return name
}

var boilerplateWords = []string{
	"dear customer", "thank you", "regards", "sincerely",
	"bank muscat", "customer service", "email", "phone",
	"visit", "website", "disclaimer", "confidential",
	"value date", "transaction", "account", "amount", "omr",
}

func isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range boilerplateWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
