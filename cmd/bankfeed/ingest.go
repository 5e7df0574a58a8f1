package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/muscatlabs/bankfeed/internal/common"
	"github.com/muscatlabs/bankfeed/internal/engine"
	"github.com/muscatlabs/bankfeed/internal/statement"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest transactions from notifications, statements, or OFX exports",
		Long: `Parse raw bank documents into canonical transactions. Each batch is
deduplicated against already-stored transactions and the account balance
is reconciled after the new rows land. Re-running the same input is safe.`,
	}

	cmd.AddCommand(ingestEmailsCmd())
	cmd.AddCommand(ingestStatementCmd())
	cmd.AddCommand(ingestOFXCmd())

	return cmd
}

func ingestEmailsCmd() *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "emails [files...]",
		Short: "Ingest saved bank alert emails",
		Long: `Ingest transaction alert emails saved as files. Each file holds one
message: RFC 822 style headers (From, Subject) followed by a blank line
and the body, which may be quoted-printable HTML.

Examples:
  bankfeed ingest emails --account 0347020000027 ~/mail/alerts/*.eml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			files, err := expandFileArgs(args)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := resolveAccount(ctx, store, accountRef)
			if err != nil {
				return err
			}

			bar := newProgressBar(len(files), "Reading emails...")
			emails := make([]engine.RawEmail, 0, len(files))
			for _, path := range files {
				raw, readErr := readEmailFile(path)
				if readErr != nil {
					slog.Error("Failed to read email file", "file", path, "error", readErr)
					_ = bar.Add(1)
					continue
				}
				emails = append(emails, raw)
				_ = bar.Add(1)
			}

			if len(emails) == 0 {
				return fmt.Errorf("no readable email files")
			}

			summary, err := buildEngine(store).IngestEmails(ctx, account.ID, emails)
			if err != nil {
				return common.NewUserError("email ingestion failed", err)
			}

			printSummary(summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "account id or number (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func ingestStatementCmd() *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "statement <pdf>",
		Short: "Ingest a PDF account statement",
		Long: `Extract the transaction table from a tabular PDF statement and ingest
its rows. Statements overlapping previously ingested alerts produce
duplicates, not double entries.

Examples:
  bankfeed ingest statement --account 0347020000027 ~/statements/2025-05.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := resolveAccount(ctx, store, accountRef)
			if err != nil {
				return err
			}

			slog.Info("Extracting statement text", "file", filepath.Base(args[0]))
			pages, err := statement.ExtractText(args[0])
			if err != nil {
				return common.NewUserError("could not extract text from the statement PDF", err)
			}

			summary, err := buildEngine(store).IngestStatement(ctx, account.ID, pages)
			if err != nil {
				return common.NewUserError("statement ingestion failed", err)
			}

			printSummary(summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "account id or number (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func ingestOFXCmd() *cobra.Command {
	var accountRef string

	cmd := &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Ingest OFX/QFX export files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			files, err := expandFileArgs(args)
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := resolveAccount(ctx, store, accountRef)
			if err != nil {
				return err
			}

			eng := buildEngine(store)
			bar := newProgressBar(len(files), "Importing OFX files...")

			total := &engine.Summary{}
			for _, path := range files {
				f, openErr := os.Open(path)
				if openErr != nil {
					slog.Error("Failed to open file", "file", path, "error", openErr)
					_ = bar.Add(1)
					continue
				}

				summary, ingestErr := eng.IngestOFX(ctx, account.ID, f)
				_ = f.Close()
				if ingestErr != nil {
					slog.Error("Failed to ingest OFX file", "file", path, "error", ingestErr)
					_ = bar.Add(1)
					continue
				}

				total.Created += summary.Created
				total.Duplicates += summary.Duplicates
				total.NotAttempted += summary.NotAttempted
				total.Failed = append(total.Failed, summary.Failed...)
				_ = bar.Add(1)
			}

			printSummary(total)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "account id or number (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

// expandFileArgs resolves glob patterns and verifies plain paths exist.
func expandFileArgs(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, statErr := os.Stat(pattern); statErr == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			files = append(files, matches...)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to ingest")
	}
	return files, nil
}

// readEmailFile parses a saved message into headers and body. The format is
// forgiving: any "Header: value" lines before the first blank line are
// headers, everything after is the body.
func readEmailFile(path string) (engine.RawEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.RawEmail{}, err
	}
	defer func() { _ = f.Close() }()

	raw := engine.RawEmail{Ref: filepath.Base(path)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inBody := false
	var body strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if inBody {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		if strings.TrimSpace(line) == "" {
			inBody = true
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			// Not a header block at all; treat the whole file as the body.
			inBody = true
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "from":
			raw.From = strings.TrimSpace(value)
		case "subject":
			raw.Subject = strings.TrimSpace(value)
		case "date":
			if d, dateErr := mail.ParseDate(strings.TrimSpace(value)); dateErr == nil {
				raw.Date = d
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return engine.RawEmail{}, err
	}

	raw.Body = body.String()
	return raw, nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func printSummary(summary *engine.Summary) {
	fmt.Printf("Created: %d  Duplicates: %d  Failed: %d  Not attempted: %d\n",
		summary.Created, summary.Duplicates, len(summary.Failed), summary.NotAttempted)

	for _, f := range summary.Failed {
		fmt.Printf("  FAILED [%s] %s: %s\n", f.Stage, f.ItemRef, f.Reason)
	}
}
