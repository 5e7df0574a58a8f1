// Package engine orchestrates ingestion batches through the pipeline:
// identify, parse, normalize, dedup, categorize, reconcile.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/muscatlabs/bankfeed/internal/bank"
	"github.com/muscatlabs/bankfeed/internal/category"
	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/email"
	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/normalize"
	"github.com/muscatlabs/bankfeed/internal/ofx"
	"github.com/muscatlabs/bankfeed/internal/service"
	"github.com/muscatlabs/bankfeed/internal/statement"
)

// Pipeline stage names used in per-item failure reports.
const (
	StageParse     = "parse"
	StageNormalize = "normalize"
	StageDedup     = "dedup"
	StagePersist   = "persist"
)

// RawEmail is one fetched notification email.
type RawEmail struct {
	Date    time.Time // header date; fallback value date for bodies without one
	Ref     string    // caller-side identifier, e.g. the message id
	From    string
	Subject string
	Body    string
}

// ItemError reports one failed item of a batch.
type ItemError struct {
	ItemRef string
	Stage   string
	Reason  string
}

// Summary is the outcome of one ingestion batch. Every input item is
// accounted for in exactly one bucket.
type Summary struct {
	Failed       []ItemError
	Created      int
	Duplicates   int
	NotAttempted int
}

// Config holds the engine's tunable policy constants.
type Config struct {
	// DedupWindow bounds the fingerprint lookback around a candidate's
	// value date, absorbing date jitter between re-sent notifications.
	DedupWindow time.Duration
	// LockTimeout bounds how long a batch waits for the account lock.
	LockTimeout time.Duration
	// Workers is the parse-phase parallelism within one batch.
	Workers int
}

// DefaultConfig returns the standard policy constants.
func DefaultConfig() Config {
	return Config{
		DedupWindow: 48 * time.Hour,
		LockTimeout: 30 * time.Second,
		Workers:     4,
	}
}

// Engine drives ingestion batches. Parsing is parallel and stateless; the
// dedup-insert-reconcile sequence runs under a per-account lock.
type Engine struct {
	storage    service.Storage
	registry   *bank.Registry
	normalizer *normalize.Normalizer
	reconciler *Reconciler
	locks      *accountLocks
	cfg        Config
}

// New creates an ingestion engine.
func New(storage service.Storage, registry *bank.Registry, normalizer *normalize.Normalizer, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig().DedupWindow
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	return &Engine{
		storage:    storage,
		registry:   registry,
		normalizer: normalizer,
		reconciler: NewReconciler(storage),
		locks:      newAccountLocks(),
		cfg:        cfg,
	}
}

// candidate is one parsed item awaiting the serialized commit phase.
type candidate struct {
	txn     *model.Transaction
	failure *ItemError
	ref     string
}

// IngestEmails runs a batch of notification emails for one account.
func (e *Engine) IngestEmails(ctx context.Context, accountID string, emails []RawEmail) (*Summary, error) {
	account, err := e.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAccount, err)
	}

	candidates := e.parseEmails(account, emails)
	return e.commit(ctx, account, candidates)
}

// parseEmails runs the stateless parse phase in parallel. Results keep
// input order.
func (e *Engine) parseEmails(account *model.Account, emails []RawEmail) []candidate {
	candidates := make([]candidate, len(emails))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)
	for i := range emails {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			candidates[i] = e.parseOneEmail(account, emails[i])
		}(i)
	}
	wg.Wait()
	return candidates
}

func (e *Engine) parseOneEmail(account *model.Account, raw RawEmail) candidate {
	ref := raw.Ref
	if ref == "" {
		ref = raw.Subject
	}

	cfg, known := e.registry.IdentifySender(raw.From)
	if !known {
		slog.Debug("Unrecognized sender, using generic rule set", "from", raw.From)
	}

	alert, err := email.ParseAlert(raw.Body, raw.Date)
	if err != nil {
		return candidate{ref: ref, failure: &ItemError{ItemRef: ref, Stage: StageParse, Reason: err.Error()}}
	}

	if alert.AccountNumber != "" && !account.MatchesNumber(alert.AccountNumber) {
		return candidate{ref: ref, failure: &ItemError{
			ItemRef: ref,
			Stage:   StageNormalize,
			Reason:  fmt.Sprintf("alert is for account %s, not %s", alert.AccountNumber, account.Number),
		}}
	}

	txn, err := e.normalizer.FromAlert(account, cfg, alert)
	if err != nil {
		return candidate{ref: ref, failure: &ItemError{ItemRef: ref, Stage: StageNormalize, Reason: err.Error()}}
	}
	return candidate{ref: ref, txn: txn}
}

// IngestStatement runs the rows of one extracted statement document for
// one account. Page texts come from ExtractText or any equivalent source.
func (e *Engine) IngestStatement(ctx context.Context, accountID string, pages []string) (*Summary, error) {
	account, err := e.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAccount, err)
	}

	doc, err := statement.Parse(pages, e.registry)
	if err != nil {
		return nil, err
	}
	if doc.Identity.AccountNumber != "" && !account.MatchesNumber(doc.Identity.AccountNumber) {
		return nil, fmt.Errorf("statement is for account %s, not %s: %w",
			doc.Identity.AccountNumber, account.Number, common.ErrInvalidAccount)
	}

	candidates := make([]candidate, 0, len(doc.Rows)+len(doc.PageErrors))
	for _, pe := range doc.PageErrors {
		candidates = append(candidates, candidate{
			ref:     fmt.Sprintf("page %d", pe.Page),
			failure: &ItemError{ItemRef: fmt.Sprintf("page %d", pe.Page), Stage: StageParse, Reason: pe.Err.Error()},
		})
	}
	for _, row := range doc.Rows {
		ref := fmt.Sprintf("page %d: %s", row.Page, snippet(row.Narration))
		txn, err := e.normalizer.FromStatementRow(account, doc.Bank, doc.Identity.Currency, row)
		if err != nil {
			candidates = append(candidates, candidate{
				ref:     ref,
				failure: &ItemError{ItemRef: ref, Stage: StageNormalize, Reason: err.Error()},
			})
			continue
		}
		candidates = append(candidates, candidate{ref: ref, txn: txn})
	}

	return e.commit(ctx, account, candidates)
}

// IngestOFX runs an OFX/QFX export for one account.
func (e *Engine) IngestOFX(ctx context.Context, accountID string, reader io.Reader) (*Summary, error) {
	account, err := e.storage.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidAccount, err)
	}

	entries, err := ofx.NewParser().ParseFile(ctx, reader)
	if err != nil {
		return nil, err
	}

	cfg := e.registry.Generic()
	candidates := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		ref := entry.RefNum
		if ref == "" {
			ref = snippet(entry.Name)
		}
		if entry.AccountNumber != "" && !account.MatchesNumber(entry.AccountNumber) {
			candidates = append(candidates, candidate{
				ref: ref,
				failure: &ItemError{
					ItemRef: ref,
					Stage:   StageNormalize,
					Reason:  fmt.Sprintf("entry is for account %s, not %s", entry.AccountNumber, account.Number),
				},
			})
			continue
		}
		txn, err := e.normalizer.FromOFXEntry(account, cfg, entry)
		if err != nil {
			candidates = append(candidates, candidate{
				ref:     ref,
				failure: &ItemError{ItemRef: ref, Stage: StageNormalize, Reason: err.Error()},
			})
			continue
		}
		candidates = append(candidates, candidate{ref: ref, txn: txn})
	}

	return e.commit(ctx, account, candidates)
}

// commit runs the serialized phase: dedup, insert and categorize each
// candidate, then reconcile the balance once. Per-item failures never
// abort the batch; a lost lock or failed reconciliation does.
func (e *Engine) commit(ctx context.Context, account *model.Account, candidates []candidate) (*Summary, error) {
	summary := &Summary{}

	release, err := e.locks.acquire(ctx, account.ID, e.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	matcher, err := e.loadMatcher(ctx)
	if err != nil {
		return nil, err
	}

	changed := false
	for i, cand := range candidates {
		if ctx.Err() != nil {
			summary.NotAttempted = len(candidates) - i
			break
		}
		if cand.failure != nil {
			summary.Failed = append(summary.Failed, *cand.failure)
			continue
		}

		txn := cand.txn
		exists, err := e.storage.FingerprintExists(ctx, account.ID, txn.Fingerprint, txn.ValueDate, e.cfg.DedupWindow)
		if err != nil {
			summary.Failed = append(summary.Failed, ItemError{ItemRef: cand.ref, Stage: StageDedup, Reason: err.Error()})
			continue
		}
		if exists {
			summary.Duplicates++
			continue
		}

		txn.Category = matcher.Match(txn)
		var result service.InsertResult
		// Retry absorbs SQLITE_BUSY from a competing batch's writes.
		err = common.WithRetry(ctx, func() error {
			var insertErr error
			result, insertErr = e.storage.InsertTransactionIfAbsent(ctx, txn)
			return insertErr
		}, common.RetryOptions{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond})
		if err != nil {
			summary.Failed = append(summary.Failed, ItemError{ItemRef: cand.ref, Stage: StagePersist, Reason: err.Error()})
			continue
		}
		if result == service.InsertDuplicate {
			summary.Duplicates++
			continue
		}
		summary.Created++
		changed = true
	}

	if changed {
		if _, err := e.reconciler.Reconcile(ctx, account); err != nil {
			return summary, err
		}
	}

	slog.Info("Ingestion batch finished",
		"account", account.Number,
		"created", summary.Created,
		"duplicates", summary.Duplicates,
		"failed", len(summary.Failed),
		"not_attempted", summary.NotAttempted)
	return summary, nil
}

func (e *Engine) loadMatcher(ctx context.Context) (*category.Matcher, error) {
	rules, err := e.storage.ListMappingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping rules: %w", err)
	}
	return category.NewMatcher(rules), nil
}

func snippet(s string) string {
	if len(s) > 40 {
		return s[:40]
	}
	return s
}
