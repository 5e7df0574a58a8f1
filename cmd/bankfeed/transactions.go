package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muscatlabs/bankfeed/internal/model"
	"github.com/muscatlabs/bankfeed/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Browse and recategorize stored transactions",
	}

	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsSetCategoryCmd())

	return cmd
}

func transactionsListCmd() *cobra.Command {
	var (
		accountRef string
		fromStr    string
		toStr      string
		typeStr    string
		search     string
		limit      int
		offset     int
		days       int
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions for an account, newest first",
		Long: `List stored transactions for one account. Without an explicit date range
only recent transactions are shown; pass --all or --from/--to to widen it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			filter := service.TransactionFilter{
				Search: search,
				Limit:  limit,
				Offset: offset,
			}

			if fromStr != "" {
				from, parseErr := time.Parse("2006-01-02", fromStr)
				if parseErr != nil {
					return fmt.Errorf("invalid --from date %q: %w", fromStr, parseErr)
				}
				filter.DateFrom = &from
			}
			if toStr != "" {
				to, parseErr := time.Parse("2006-01-02", toStr)
				if parseErr != nil {
					return fmt.Errorf("invalid --to date %q: %w", toStr, parseErr)
				}
				filter.DateTo = &to
			}

			// Default to a recent window when no explicit range is given.
			if !all && filter.DateFrom == nil && filter.DateTo == nil {
				if days <= 0 {
					days = viper.GetInt("transactions.recent_days")
				}
				from := time.Now().AddDate(0, 0, -days)
				filter.DateFrom = &from
			}

			if typeStr != "" {
				txnType := model.TransactionType(typeStr)
				if !txnType.IsValid() {
					return fmt.Errorf("invalid --type %q (want INCOME, EXPENSE, or TRANSFER)", typeStr)
				}
				filter.Type = &txnType
			}

			transactions, err := store.ListTransactionsByAccount(ctx, account.ID, filter)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if len(transactions) == 0 {
				fmt.Println("No transactions found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCOUNTERPARTY\tCATEGORY\tSOURCE\tID")
			for _, t := range transactions {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
					t.ValueDate.Format("2006-01-02"),
					t.Type,
					t.Amount.StringFixed(3), t.Currency,
					t.Counterparty,
					t.Category,
					t.Source,
					t.ID)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&accountRef, "account", "", "account id or number (required)")
	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&typeStr, "type", "", "filter by type (INCOME, EXPENSE, TRANSFER)")
	cmd.Flags().StringVar(&search, "search", "", "free text search over counterparty, narration, and amount")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&days, "days", 0, "recent window in days when no date range is given")
	cmd.Flags().BoolVar(&all, "all", false, "show the full history")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func transactionsSetCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-category <transaction-id> <category>",
		Short: "Manually set a transaction's category",
		Long: `Assign a category by hand. Manual assignments are preserved across
re-ingestion and rule changes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			// Reject unknown categories before touching the transaction.
			if _, err := store.GetCategoryByName(ctx, args[1]); err != nil {
				return fmt.Errorf("unknown category %q: %w", args[1], err)
			}

			if err := store.UpdateTransactionCategory(ctx, args[0], args[1], model.CategoryManual); err != nil {
				return fmt.Errorf("failed to set category: %w", err)
			}

			fmt.Printf("Transaction %s categorized as %q\n", args[0], args[1])
			return nil
		},
	}
}
