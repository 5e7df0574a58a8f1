package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/muscatlabs/bankfeed/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
		Long:  `Register accounts, list them with their reconciled balances, and adjust baselines.`,
	}

	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsSetBaselineCmd())

	return cmd
}

func accountsAddCmd() *cobra.Command {
	var (
		bankName string
		currency string
		branch   string
		baseline string
	)

	cmd := &cobra.Command{
		Use:   "add <account-number>",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			base, err := decimal.NewFromString(baseline)
			if err != nil {
				return fmt.Errorf("invalid baseline %q: %w", baseline, err)
			}

			account := &model.Account{
				ID:       uuid.New().String(),
				Number:   strings.TrimSpace(args[0]),
				BankName: bankName,
				Currency: strings.ToUpper(currency),
				Branch:   branch,
				Baseline: base,
				Balance:  base,
			}

			if err := store.CreateAccount(ctx, account); err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			fmt.Printf("Created account %s (%s)\n", account.Number, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&bankName, "bank", "Bank Muscat", "bank name")
	cmd.Flags().StringVar(&currency, "currency", "OMR", "account currency code")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name")
	cmd.Flags().StringVar(&baseline, "baseline", "0", "opening balance before the first ingested transaction")

	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts with balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts found. Use 'bankfeed accounts add' to register one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "NUMBER\tBANK\tCURRENCY\tBALANCE\tUPDATED\tID")
			for _, a := range accounts {
				updated := "never"
				if !a.BalanceUpdatedAt.IsZero() {
					updated = a.BalanceUpdatedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.Number, a.BankName, a.Currency, a.Balance.StringFixed(3), updated, a.ID)
			}

			return nil
		},
	}
}

func accountsSetBaselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-baseline <account> <amount>",
		Short: "Set an account's baseline balance",
		Long: `Set the balance the account held before its earliest ingested transaction.
The reconciled balance is recomputed from this value on the next ingestion.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := resolveAccount(ctx, store, args[0])
			if err != nil {
				return err
			}

			baseline, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid baseline %q: %w", args[1], err)
			}

			if err := store.SetAccountBaseline(ctx, account.ID, baseline); err != nil {
				return fmt.Errorf("failed to set baseline: %w", err)
			}

			fmt.Printf("Baseline for %s set to %s %s\n",
				account.Number, baseline.StringFixed(3), account.Currency)
			return nil
		},
	}
}
