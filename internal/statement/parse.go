package statement

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/muscatlabs/bankfeed/internal/bank"
	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/model"
)

// Row is one logical transaction row from the statement table. Debit,
// Credit and Balance keep the raw cell text; empty string means the cell
// was blank. A row where both Debit and Credit are set could not be
// disambiguated and will be rejected by the normalizer.
type Row struct {
	PostDate  time.Time
	ValueDate time.Time
	Narration string
	Debit     string
	Credit    string
	Balance   string
	Page      int
}

// Identity is the one-row account identity table from the first page.
type Identity struct {
	AccountNumber string
	Currency      string
	Branch        string
}

// PageError records a page whose content could not be parsed. Other pages
// are unaffected.
type PageError struct {
	Err  error
	Page int
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// Document is the parsed statement: the identity tuple, the reassembled
// transaction rows across all pages, and any per-page errors.
type Document struct {
	Identity   Identity
	Bank       model.BankConfig
	Rows       []Row
	PageErrors []PageError
}

var (
	dateTokenRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`)
	numericRe   = regexp.MustCompile(`^-?[\d,]+(?:\.\d+)?$`)
	columnSplit = regexp.MustCompile(`\s{2,}`)
)

// Parse turns extracted page texts into a Document. The statement layout
// is identified from the transaction table header on the first page; an
// unknown layout degrades to the generic bank configuration instead of
// failing. A logical row starts with a parseable date in the leading
// column; date-less lines are narration continuations of the previous row,
// including across page boundaries where the header does not repeat.
func Parse(pages []string, registry *bank.Registry) (*Document, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("statement has no pages: %w", common.ErrUnrecognizedLayout)
	}

	doc := &Document{Bank: registry.Generic()}
	doc.Identity = parseIdentity(pages[0])

	headerSeen := false
	var current *Row
	var prevBalance *decimal.Decimal

	flush := func() {
		if current != nil {
			current.Narration = strings.Join(strings.Fields(current.Narration), " ")
			doc.Rows = append(doc.Rows, *current)
			current = nil
		}
	}

	for pageIdx, page := range pages {
		pageNo := pageIdx + 1
		pageHadContent := false

		for _, line := range strings.Split(page, "\n") {
			line = strings.TrimRight(line, " \t")
			if strings.TrimSpace(line) == "" {
				continue
			}

			columns := splitColumns(line)

			if strings.Contains(strings.ToLower(line), "opening balance") && len(columns) > 0 {
				if b := parseCellDecimal(columns[len(columns)-1]); b != nil {
					prevBalance = b
					pageHadContent = true
					continue
				}
			}

			if !headerSeen {
				if cfg, ok := registry.IdentifyHeader(columns); ok {
					doc.Bank = cfg
					headerSeen = true
					pageHadContent = true
					continue
				}
			} else if isHeaderRepeat(doc.Bank, columns) {
				// Some statements do repeat the header; skip it.
				continue
			}

			row, bal, ok := parseRowLine(columns, pageNo, prevBalance)
			if ok {
				flush()
				current = row
				if bal != nil {
					prevBalance = bal
				}
				pageHadContent = true
				continue
			}

			if current != nil {
				// Continuation of the previous row's wrapped narration.
				current.Narration += " " + strings.TrimSpace(line)
				pageHadContent = true
			}
		}

		if !pageHadContent {
			doc.PageErrors = append(doc.PageErrors, PageError{
				Page: pageNo,
				Err:  common.ErrUnrecognizedLayout,
			})
		}
	}
	flush()

	if !headerSeen && len(doc.Rows) == 0 {
		return doc, fmt.Errorf("no transaction table found: %w", common.ErrUnrecognizedLayout)
	}
	return doc, nil
}

// parseIdentity looks for the account identity table on the first page: a
// label row naming Account Number and Currency, with the values on the
// following line.
func parseIdentity(page string) Identity {
	lines := strings.Split(page, "\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "account number") || !strings.Contains(lower, "currency") {
			continue
		}
		if i+1 >= len(lines) {
			return Identity{}
		}
		values := splitColumns(lines[i+1])
		id := Identity{}
		if len(values) > 0 {
			id.AccountNumber = values[0]
		}
		if len(values) > 1 {
			id.Currency = strings.ToUpper(values[1])
		}
		if len(values) > 2 {
			id.Branch = values[2]
		}
		return id
	}
	return Identity{}
}

// parseRowLine recognizes a transaction row: one or two leading dates,
// narration text, and a numeric tail of amount cells. Reports the row's
// closing balance when present so the next row can be disambiguated.
func parseRowLine(columns []string, page int, prevBalance *decimal.Decimal) (*Row, *decimal.Decimal, bool) {
	if len(columns) < 3 {
		return nil, nil, false
	}

	postDate, ok := parseCellDate(columns[0])
	if !ok {
		return nil, nil, false
	}
	valueDate := postDate
	rest := columns[1:]
	if d, ok := parseCellDate(rest[0]); ok {
		valueDate = d
		rest = rest[1:]
	}

	// Numeric cells cling to the end of the row.
	tail := 0
	for tail < len(rest) && numericRe.MatchString(rest[len(rest)-1-tail]) {
		tail++
	}
	if tail > 3 {
		tail = 3
	}
	narration := strings.Join(rest[:len(rest)-tail], " ")
	if strings.TrimSpace(narration) == "" {
		return nil, nil, false
	}

	row := &Row{
		PostDate:  postDate,
		ValueDate: valueDate,
		Narration: narration,
		Page:      page,
	}

	nums := rest[len(rest)-tail:]
	var balance *decimal.Decimal
	switch len(nums) {
	case 3:
		row.Debit, row.Credit, row.Balance = nums[0], nums[1], nums[2]
		balance = parseCellDecimal(nums[2])
	case 2:
		// One amount cell plus the balance; debit or credit is decided by
		// the direction the balance moved.
		row.Balance = nums[1]
		balance = parseCellDecimal(nums[1])
		amount := parseCellDecimal(nums[0])
		switch {
		case amount == nil || balance == nil || prevBalance == nil:
			row.Debit, row.Credit = nums[0], nums[0]
		case prevBalance.Sub(*amount).Equal(*balance):
			row.Debit = nums[0]
		case prevBalance.Add(*amount).Equal(*balance):
			row.Credit = nums[0]
		default:
			row.Debit, row.Credit = nums[0], nums[0]
		}
	case 1:
		row.Balance = nums[0]
		balance = parseCellDecimal(nums[0])
	}
	return row, balance, true
}

func splitColumns(line string) []string {
	var columns []string
	for _, c := range columnSplit.Split(strings.TrimSpace(line), -1) {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}
	return columns
}

func isHeaderRepeat(cfg model.BankConfig, columns []string) bool {
	if len(cfg.HeaderSignature) == 0 || len(columns) != len(cfg.HeaderSignature) {
		return false
	}
	for i, want := range cfg.HeaderSignature {
		if !strings.EqualFold(strings.TrimSpace(columns[i]), want) {
			return false
		}
	}
	return true
}

func parseCellDate(cell string) (time.Time, bool) {
	if !dateTokenRe.MatchString(cell) {
		return time.Time{}, false
	}
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseCellDecimal(cell string) *decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(cell, ",", ""))
	if err != nil {
		return nil
	}
	return &d
}
