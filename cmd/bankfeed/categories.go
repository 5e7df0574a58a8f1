package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/muscatlabs/bankfeed/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage transaction categories",
		Long:  `List and add the categories that mapping rules assign to transactions.`,
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())

	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories, err := store.ListCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "ID\tNAME\tTYPE\tDESCRIPTION")
			for _, c := range categories {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Description)
			}

			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	var (
		description  string
		categoryType string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			category, err := store.CreateCategory(ctx, args[0], description, model.CategoryType(categoryType))
			if err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			fmt.Printf("Created category %q (id %d)\n", category.Name, category.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "category description")
	cmd.Flags().StringVar(&categoryType, "type", string(model.CategoryTypeExpense), "category type (income, expense, transfer)")

	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage category mapping rules",
		Long: `Mapping rules assign categories to newly ingested transactions by matching
their counterparty or narration text. Rules run in descending priority order
and the first match wins. Manually set categories are never overwritten.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mapping rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.ListMappingRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintln(w, "PRIORITY\tPATTERN\tKIND\tCATEGORY\tACTIVE")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", r.Priority, r.Pattern, r.Kind, r.Category, r.IsActive)
			}

			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		kind     string
		priority int
	)

	cmd := &cobra.Command{
		Use:   "add <pattern> <category>",
		Short: "Add a mapping rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule := &model.MappingRule{
				Pattern:  args[0],
				Category: args[1],
				Kind:     model.MatchKind(kind),
				Priority: priority,
				IsActive: true,
			}

			if err := store.CreateMappingRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Printf("Created rule %q -> %q (priority %d)\n", rule.Pattern, rule.Category, rule.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(model.MatchSubstring), "match kind (substring, prefix)")
	cmd.Flags().IntVar(&priority, "priority", 0, "rule priority; higher runs first")

	return cmd
}
